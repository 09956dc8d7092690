package config

import (
	"fmt"
	"reflect"

	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/validation"
)

// DefaultSourceName labels errors of configurations built without a document.
const DefaultSourceName = "default configuration"

// Factory builds configuration objects of type T. T is normally a pointer to
// a struct; newConfig must return a fresh value on every call.
type Factory[T any] struct {
	newConfig func() T
	prefix    string
	validator *validation.StructValidator
	format    Format
	log       *logger.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	prefix       string
	validator    *validation.StructValidator
	noValidation bool
	format       Format
	log          *logger.Logger
}

// WithPrefix sets the override key prefix. A trailing dot is implied.
func WithPrefix(prefix string) FactoryOption {
	return func(o *factoryOptions) { o.prefix = prefix }
}

// WithValidator sets the validator. Passing nil disables validation.
func WithValidator(v *validation.StructValidator) FactoryOption {
	return func(o *factoryOptions) {
		o.validator = v
		o.noValidation = v == nil
	}
}

// WithFormat fixes the document format instead of detecting it from the path.
func WithFormat(f Format) FactoryOption {
	return func(o *factoryOptions) { o.format = f }
}

// WithLogger sets the logger used to report applied overrides.
func WithLogger(l *logger.Logger) FactoryOption {
	return func(o *factoryOptions) { o.log = l }
}

// NewFactory creates a factory producing values from newConfig.
func NewFactory[T any](newConfig func() T, opts ...FactoryOption) *Factory[T] {
	o := &factoryOptions{prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(o)
	}
	if o.validator == nil && !o.noValidation {
		o.validator = validation.Default()
	}
	if o.log == nil {
		o.log = logger.NewNop()
	}
	return &Factory[T]{
		newConfig: newConfig,
		prefix:    normalizePrefix(o.prefix),
		validator: o.validator,
		format:    o.format,
		log:       o.log.WithComponent("config"),
	}
}

// Prefix returns the override prefix, including the trailing dot.
func (f *Factory[T]) Prefix() string { return f.prefix }

// Build opens path through provider, parses it, merges overrides, binds and
// validates the result.
func (f *Factory[T]) Build(provider SourceProvider, path string, overrides Overrides) (T, error) {
	var zero T
	rc, err := provider.Open(path)
	if err != nil {
		return zero, err
	}
	defer rc.Close()

	format := f.format
	if format == FormatAuto {
		format = DetectFormat(path)
	}
	doc, err := Parse(rc, format, path)
	if err != nil {
		return zero, err
	}
	return f.build(doc, path, overrides, format.caseInsensitive())
}

// BuildDocument merges overrides into an already parsed document, then binds
// and validates it. The document is modified in place.
func (f *Factory[T]) BuildDocument(doc Document, path string, overrides Overrides) (T, error) {
	return f.build(doc, path, overrides, false)
}

// BuildDefault builds a configuration from the defaults of newConfig with
// overrides applied.
func (f *Factory[T]) BuildDefault(overrides Overrides) (T, error) {
	var zero T
	defaults := f.newConfig()
	if d, ok := any(defaults).(Defaulter); ok {
		d.ApplyDefaults()
	}
	doc, err := documentOf(defaults)
	if err != nil {
		return zero, fmt.Errorf("render default configuration: %w", err)
	}
	return f.build(doc, DefaultSourceName, overrides, false)
}

func (f *Factory[T]) build(doc Document, path string, overrides Overrides, caseInsensitive bool) (T, error) {
	var zero T
	if doc == nil {
		return zero, &ParsingError{Path: path, Summary: fmt.Sprintf("Configuration at %s must not be empty", path)}
	}
	if err := ApplyOverrides(doc, f.prefix, overrides); err != nil {
		return zero, err
	}
	for key := range overrides {
		if len(key) > len(f.prefix) && key[:len(f.prefix)] == f.prefix {
			f.log.Debug("applied configuration override", map[string]interface{}{logger.FieldName: key})
		}
	}

	cfg := f.newConfig()
	if d, ok := any(cfg).(Defaulter); ok {
		d.ApplyDefaults()
	}
	target := any(cfg)
	if reflect.ValueOf(target).Kind() != reflect.Ptr {
		target = &cfg
	}
	if err := bind(doc, target, path, caseInsensitive); err != nil {
		return zero, err
	}

	if f.validator != nil {
		if violations := f.validator.Struct(target); !violations.Empty() {
			return zero, &ValidationError{Path: path, Violations: violations}
		}
	}
	return cfg, nil
}
