package config

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Defaulter is implemented by configuration types that fill in default
// values. It is called on the root before binding and on every struct the
// binder creates for a new list element or map entry.
type Defaulter interface {
	ApplyDefaults()
}

var defaulterType = reflect.TypeOf((*Defaulter)(nil)).Elem()

// bind decodes doc onto target, which must be a pointer. Unknown keys are
// reported with the closest known names.
func bind(doc Document, target any, path string, caseInsensitive bool) error {
	md := &mapstructure.Metadata{}
	match := func(mapKey, fieldName string) bool { return mapKey == fieldName }
	if caseInsensitive {
		match = strings.EqualFold
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			defaultsHook,
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Squash:           true,
		Metadata:         md,
		Result:           target,
		TagName:          "mapstructure",
		MatchName:        match,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(map[string]any(doc)); err != nil {
		return typeError(path, err)
	}

	if len(md.Unused) > 0 {
		sort.Strings(md.Unused)
		field := md.Unused[0]
		return &ParsingError{
			Path:        path,
			Summary:     "Unrecognized field",
			FieldPath:   field,
			Suggestions: suggestions(reflect.TypeOf(target), field),
		}
	}
	return nil
}

// defaultsHook applies defaults to structs created while decoding, such as
// the elements of a list that is longer than its default.
func defaultsHook(from, to reflect.Value) (any, error) {
	if to.Kind() == reflect.Struct && to.CanAddr() && to.IsZero() &&
		to.Addr().Type().Implements(defaulterType) && from.Kind() == reflect.Map {
		to.Addr().Interface().(Defaulter).ApplyDefaults()
	}
	return from.Interface(), nil
}

// typeError converts a decoder failure into a parsing error naming the
// first offending field.
func typeError(path string, err error) error {
	perr := &ParsingError{Path: path, Summary: "Failed to parse configuration", Detail: err.Error(), Cause: err}
	if decErr := firstDecodeError(err); decErr != nil {
		perr.FieldPath = decErr.Name()
		perr.Detail = decErr.Unwrap().Error()
		var parseErr *mapstructure.ParseError
		var convErr *mapstructure.UnconvertibleTypeError
		if errors.As(decErr, &parseErr) || errors.As(decErr, &convErr) {
			perr.Summary = "Incorrect type of value"
		}
	}
	return perr
}

// firstDecodeError walks joined and wrapped errors depth first and returns
// the innermost decode error of the first branch that has one.
func firstDecodeError(err error) *mapstructure.DecodeError {
	switch e := err.(type) {
	case nil:
		return nil
	case *mapstructure.DecodeError:
		if inner := firstDecodeError(e.Unwrap()); inner != nil {
			return inner
		}
		return e
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if de := firstDecodeError(inner); de != nil {
				return de
			}
		}
	case interface{ Unwrap() error }:
		return firstDecodeError(e.Unwrap())
	}
	return nil
}

var indexPart = regexp.MustCompile(`\[[^\]]*\]`)

// suggestions lists the known field names at the level of an unrecognized
// field, closest first.
func suggestions(root reflect.Type, field string) []string {
	segments := strings.Split(indexPart.ReplaceAllString(field, ""), ".")
	unknown := segments[len(segments)-1]

	t := root
	for _, seg := range segments[:len(segments)-1] {
		t = structOf(t)
		if t == nil {
			return nil
		}
		next, ok := fieldType(t, seg)
		if !ok {
			return nil
		}
		t = next
	}
	t = structOf(t)
	if t == nil {
		return nil
	}

	names := fieldNames(t)
	sort.SliceStable(names, func(i, j int) bool {
		return levenshtein(names[i], unknown) < levenshtein(names[j], unknown)
	})
	return names
}

// structOf dereferences pointers, slices and maps down to a struct type.
func structOf(t reflect.Type) reflect.Type {
	for t != nil {
		switch t.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Array, reflect.Map:
			t = t.Elem()
		case reflect.Struct:
			return t
		default:
			return nil
		}
	}
	return nil
}

func fieldType(t reflect.Type, name string) (reflect.Type, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, squash := tagName(f)
		if squash {
			if inner := structOf(f.Type); inner != nil {
				if ft, ok := fieldType(inner, name); ok {
					return ft, true
				}
			}
			continue
		}
		if tag == name {
			return f.Type, true
		}
	}
	return nil, false
}

func fieldNames(t reflect.Type) []string {
	var names []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() && !f.Anonymous {
			continue
		}
		tag, squash := tagName(f)
		if squash {
			if inner := structOf(f.Type); inner != nil {
				names = append(names, fieldNames(inner)...)
			}
			continue
		}
		if tag != "" && tag != "-" {
			names = append(names, tag)
		}
	}
	return names
}

// tagName returns a field's mapstructure name and whether it is squashed.
func tagName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("mapstructure")
	name, opts, _ := strings.Cut(tag, ",")
	if f.Anonymous && (strings.Contains(opts, "squash") || tag == "") {
		return "", true
	}
	if name == "" {
		return f.Name, false
	}
	return name, false
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
