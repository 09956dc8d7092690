package validation

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/gowizard/errors"
)

// Validator collects the violations of a SelfValidating value. Paths are
// relative to the value; the struct validator prefixes them with its
// location in the configuration.
type Validator struct {
	violations Violations
}

// New creates an empty Validator.
func New() *Validator {
	return &Validator{violations: make(Violations, 0)}
}

// AddError records a violation of field.
func (v *Validator) AddError(field, message string) {
	v.violations = append(v.violations, Violation{Path: field, Message: message})
}

// HasErrors reports whether any violation was recorded.
func (v *Validator) HasErrors() bool { return len(v.violations) > 0 }

// Violations returns the recorded violations.
func (v *Validator) Violations() Violations { return v.violations }

// Validate returns a VALIDATION_FAILED AppError listing the violations, or
// nil.
func (v *Validator) Validate() *errors.AppError {
	if !v.HasErrors() {
		return nil
	}
	return errors.Validation(v.violations.Strings())
}

// Required rejects blank strings.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "must not be empty")
	}
	return v
}

// Range rejects numbers outside [minVal, maxVal].
func (v *Validator) Range(field string, value, minVal, maxVal int) *Validator {
	if value < minVal || value > maxVal {
		v.AddError(field, fmt.Sprintf("must be between %d and %d", minVal, maxVal))
	}
	return v
}

// AtMost rejects a value larger than the value of another field.
func (v *Validator) AtMost(field string, value int, limitField string, limit int) *Validator {
	if value > limit {
		v.AddError(field, fmt.Sprintf("must not exceed %s (%d)", limitField, limit))
	}
	return v
}

// DurationBetween rejects durations outside [minVal, maxVal]. A zero maxVal
// leaves the duration unbounded above.
func (v *Validator) DurationBetween(field string, d, minVal, maxVal time.Duration) *Validator {
	switch {
	case d < minVal:
		v.AddError(field, fmt.Sprintf("must be at least %s", minVal))
	case maxVal > 0 && d > maxVal:
		v.AddError(field, fmt.Sprintf("must be at most %s", maxVal))
	}
	return v
}

var patterns sync.Map

// Pattern rejects non-empty strings that do not match pattern. Compiled
// patterns are cached.
func (v *Validator) Pattern(field, value, pattern string) *Validator {
	if value == "" {
		return v
	}
	re, ok := patterns.Load(pattern)
	if !ok {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			v.AddError(field, fmt.Sprintf("invalid pattern %q: %v", pattern, err))
			return v
		}
		re, _ = patterns.LoadOrStore(pattern, compiled)
	}
	if !re.(*regexp.Regexp).MatchString(value) {
		v.AddError(field, fmt.Sprintf("must match %q", pattern))
	}
	return v
}

// OneOf rejects non-empty strings outside allowed.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" {
		return v
	}
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of [%s]", strings.Join(allowed, ", ")))
	return v
}

// Unique rejects a key already claimed by another field. seen maps claimed
// keys to the field that claimed them and is shared across calls.
func (v *Validator) Unique(field, key string, seen map[string]string) *Validator {
	if other, ok := seen[key]; ok {
		v.AddError(field, fmt.Sprintf("%s is also used by %s", key, other))
		return v
	}
	seen[key] = field
	return v
}

// Custom records message for field unless condition holds.
func (v *Validator) Custom(condition bool, field, message string) *Validator {
	if !condition {
		v.AddError(field, message)
	}
	return v
}
