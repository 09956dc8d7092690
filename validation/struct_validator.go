package validation

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/util"
)

// SelfValidating is implemented by types with constraints that tags cannot
// express. ValidateSelf records failures on v; paths are relative to the
// value.
type SelfValidating interface {
	ValidateSelf(v *Validator)
}

// StructValidator validates structs using tags and SelfValidating hooks.
type StructValidator struct {
	engine *validator.Validate
}

var (
	defaultValidator *StructValidator
	once             sync.Once
)

// Default returns the shared validator instance.
func Default() *StructValidator {
	once.Do(func() {
		defaultValidator = NewStructValidator()
	})
	return defaultValidator
}

// NewStructValidator creates a validator with the framework's tag names and
// custom constraints registered.
func NewStructValidator() *StructValidator {
	engine := validator.New(validator.WithRequiredStructEnabled())
	engine.RegisterTagNameFunc(fieldName)

	must := func(tag string, fn validator.Func) {
		if err := engine.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("validation: register %s: %v", tag, err))
		}
	}
	must("duration_min", durationBound(func(v, bound time.Duration) bool { return v >= bound }))
	must("duration_max", durationBound(func(v, bound time.Duration) bool { return v <= bound }))
	must("size_min", sizeBound(func(v, bound util.Size) bool { return v >= bound }))
	must("size_max", sizeBound(func(v, bound util.Size) bool { return v <= bound }))

	return &StructValidator{engine: engine}
}

// Engine exposes the underlying validator for registering more constraints.
func (sv *StructValidator) Engine() *validator.Validate {
	return sv.engine
}

// RegisterValidation adds a custom tag.
func (sv *StructValidator) RegisterValidation(tag string, fn validator.Func) error {
	return sv.engine.RegisterValidation(tag, fn)
}

// Struct validates s and returns every violation found. A nil or non-struct
// value yields no violations.
func (sv *StructValidator) Struct(s any) Violations {
	var out Violations
	if err := sv.engine.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			for _, e := range verrs {
				out = append(out, Violation{Path: stripRoot(e.Namespace()), Message: message(e)})
			}
		}
	}
	out = append(out, selfValidate(reflect.ValueOf(s), "", 0)...)
	return out
}

// Validate validates a request entity with the shared validator and returns
// an AppError listing the violations, or nil.
func Validate(s any) error {
	violations := Default().Struct(s)
	if violations.Empty() {
		return nil
	}
	return errors.Validation(violations.Strings())
}

// squashMarker names embedded structs whose fields are flattened into the
// parent; it is removed from reported paths.
const squashMarker = "~"

// fieldName maps a struct field to the name used in documents.
func fieldName(fld reflect.StructField) string {
	if fld.Anonymous && squashed(fld) {
		return squashMarker
	}
	for _, tag := range []string{"mapstructure", "yaml", "json"} {
		name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return lowerFirst(fld.Name)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// stripRoot drops the root type name from a validator namespace. Squashed
// embedded structs surface as empty segments, which are dropped too.
func stripRoot(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	} else {
		return ""
	}
	parts := strings.Split(ns, ".")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" && p != squashMarker {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

// message renders a field error the way constraint messages read in
// configuration error reports.
func message(e validator.FieldError) string {
	kind := e.Kind()
	sized := kind == reflect.String || kind == reflect.Slice || kind == reflect.Map || kind == reflect.Array
	switch e.Tag() {
	case "required", "required_if", "required_unless", "required_with", "required_without":
		if sized {
			return "must not be empty"
		}
		return "must not be null"
	case "min", "gte":
		if sized {
			return "size must be at least " + e.Param()
		}
		return "must be greater than or equal to " + e.Param()
	case "max", "lte":
		if sized {
			return "size must be at most " + e.Param()
		}
		return "must be less than or equal to " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "lt":
		return "must be less than " + e.Param()
	case "len":
		return "size must be exactly " + e.Param()
	case "oneof":
		return "must be one of [" + strings.Join(strings.Fields(e.Param()), ", ") + "]"
	case "email":
		return "must be a well-formed email address"
	case "url", "uri", "http_url":
		return "must be a valid URL"
	case "hostname", "hostname_rfc1123", "hostname_port":
		return "must be a valid hostname"
	case "ip", "ipv4", "ipv6":
		return "must be a valid IP address"
	case "duration_min":
		return "must be greater than or equal to " + e.Param()
	case "duration_max":
		return "must be less than or equal to " + e.Param()
	case "size_min":
		return "must be at least " + e.Param()
	case "size_max":
		return "must be at most " + e.Param()
	default:
		return fmt.Sprintf("failed the '%s' constraint", e.Tag())
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

func durationBound(cmp func(v, bound time.Duration) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		bound, err := util.ParseDuration(fl.Param())
		if err != nil {
			panic(fmt.Sprintf("validation: bad duration parameter %q", fl.Param()))
		}
		f := fl.Field()
		if f.Kind() != reflect.Int64 {
			return false
		}
		if !f.Type().ConvertibleTo(durationType) {
			return false
		}
		return cmp(time.Duration(f.Int()), bound.Std())
	}
}

func sizeBound(cmp func(v, bound util.Size) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		bound, err := util.ParseSize(fl.Param())
		if err != nil {
			panic(fmt.Sprintf("validation: bad size parameter %q", fl.Param()))
		}
		f := fl.Field()
		if f.Kind() != reflect.Int64 {
			return false
		}
		return cmp(util.Size(f.Int()), bound)
	}
}

var selfValidatingType = reflect.TypeOf((*SelfValidating)(nil)).Elem()

// selfValidate walks v depth first and runs every SelfValidating hook it
// finds, prefixing reported paths with the location of the value.
func selfValidate(v reflect.Value, path string, depth int) Violations {
	if depth > 32 || !v.IsValid() {
		return nil
	}
	var out Violations

	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		return selfValidate(v.Elem(), path, depth+1)
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		if v.Type().Implements(selfValidatingType) {
			out = append(out, runSelf(v.Interface().(SelfValidating), path)...)
		}
		return append(out, walkFields(v.Elem(), path, depth)...)
	}
	if v.CanAddr() && v.Addr().Type().Implements(selfValidatingType) {
		out = append(out, runSelf(v.Addr().Interface().(SelfValidating), path)...)
	} else if v.Type().Implements(selfValidatingType) {
		out = append(out, runSelf(v.Interface().(SelfValidating), path)...)
	}
	return append(out, walkFields(v, path, depth)...)
}

func walkFields(v reflect.Value, path string, depth int) Violations {
	var out Violations
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			name := fieldName(sf)
			switch name {
			case "":
				continue
			case squashMarker:
				name = ""
			}
			out = append(out, selfValidate(v.Field(i), join(path, name), depth+1)...)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			out = append(out, selfValidate(v.Index(i), fmt.Sprintf("%s[%d]", path, i), depth+1)...)
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			out = append(out, selfValidate(iter.Value(), fmt.Sprintf("%s[%v]", path, iter.Key().Interface()), depth+1)...)
		}
	}
	return out
}

func squashed(sf reflect.StructField) bool {
	tag := sf.Tag.Get("mapstructure")
	return tag == "" || strings.Contains(tag, "squash")
}

func runSelf(sv SelfValidating, path string) Violations {
	v := New()
	sv.ValidateSelf(v)
	return v.Violations().Prefixed(path)
}

func join(path, name string) string {
	switch {
	case name == "":
		return path
	case path == "":
		return name
	}
	return path + "." + name
}
