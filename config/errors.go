package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kbukum/gowizard/validation"
)

// maxSuggestions bounds the "Did you mean" list of a parsing error.
const maxSuggestions = 5

// ErrInvalidOverride matches every *OverrideError.
var ErrInvalidOverride = errors.New("invalid configuration override")

// ParsingError reports a document that could not be parsed or bound.
type ParsingError struct {
	// Path names the configuration source.
	Path string
	// Summary is a short description such as "Unrecognized field".
	Summary string
	// FieldPath is the dotted location of the offending field, if known.
	FieldPath string
	// Line and Column locate the error in the source; zero when unknown.
	Line   int
	Column int
	// Detail adds context from the parser or binder.
	Detail string
	// Suggestions lists known field names close to an unrecognized one.
	Suggestions []string
	Cause       error
}

func (e *ParsingError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Summary)
	switch {
	case e.FieldPath != "":
		sb.WriteString(" at: ")
		sb.WriteString(e.FieldPath)
	case e.Line > 0:
		fmt.Fprintf(&sb, " at line: %d, column: %d", e.Line, e.Column)
	}
	if e.Detail != "" {
		sb.WriteString("; ")
		sb.WriteString(e.Detail)
	}
	if len(e.Suggestions) > 0 {
		sb.WriteString("\n    Did you mean?:")
		for i, s := range e.Suggestions {
			if i == maxSuggestions {
				fmt.Fprintf(&sb, "\n        [%d more]", len(e.Suggestions)-maxSuggestions)
				break
			}
			sb.WriteString("\n      - ")
			sb.WriteString(s)
		}
	}
	return formatReport(e.Path, []string{sb.String()})
}

func (e *ParsingError) Unwrap() error { return e.Cause }

// OverrideError reports an override key that does not address a valid
// location in the document, or two overrides that contradict each other.
type OverrideError struct {
	Key    string
	Reason string
}

func (e *OverrideError) Error() string {
	return fmt.Sprintf("Unable to override %s; %s", e.Key, e.Reason)
}

// Is reports whether target is ErrInvalidOverride.
func (e *OverrideError) Is(target error) bool { return target == ErrInvalidOverride }

// ValidationError carries every constraint the bound configuration failed.
type ValidationError struct {
	Path       string
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	return formatReport(e.Path, e.Violations.Strings())
}

// formatReport renders a titled, bulleted error report for a source.
func formatReport(path string, entries []string) string {
	var sb strings.Builder
	sb.WriteString(path)
	if len(entries) == 1 {
		sb.WriteString(" has an error:\n")
	} else {
		sb.WriteString(" has the following errors:\n")
	}
	for _, entry := range entries {
		sb.WriteString("  * ")
		sb.WriteString(entry)
		sb.WriteString("\n")
	}
	return sb.String()
}
