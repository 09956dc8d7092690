package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"
)

// Document is a parsed configuration tree: nested map[string]any and []any
// values with scalar leaves.
type Document map[string]any

// Format identifies a document syntax.
type Format string

const (
	// FormatAuto picks the format from the source path extension and falls
	// back to YAML.
	FormatAuto Format = ""
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	// FormatTOML documents are read through viper, which folds keys to lower
	// case; fields are then matched case-insensitively.
	FormatTOML Format = "toml"
)

// DetectFormat returns the format implied by a path's extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "json":
		return FormatJSON
	case "toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// caseInsensitive reports whether documents of this format lose key case.
func (f Format) caseInsensitive() bool { return f == FormatTOML }

var yamlLine = regexp.MustCompile(`(?s)^line (\d+): (.*)$`)

// Parse reads a document in the given format. path only labels errors.
func Parse(r io.Reader, format Format, path string) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read configuration at %s: %w", path, err)
	}
	if format == FormatAuto {
		format = DetectFormat(path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParsingError{Path: path, Summary: fmt.Sprintf("Configuration at %s must not be empty", path)}
	}

	var root any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&root); err != nil {
			perr := &ParsingError{Path: path, Summary: "Malformed JSON", Detail: err.Error(), Cause: err}
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				perr.Line, perr.Column = position(data, syntaxErr.Offset)
			}
			return nil, perr
		}
	case FormatTOML:
		v := viper.New()
		v.SetConfigType("toml")
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, &ParsingError{Path: path, Summary: "Malformed TOML", Detail: err.Error(), Cause: err}
		}
		root = v.AllSettings()
	default:
		if err := yaml.Unmarshal(data, &root); err != nil {
			line, detail := yamlDetail(err)
			return nil, &ParsingError{Path: path, Summary: "Malformed YAML", Line: line, Column: 1, Detail: detail, Cause: err}
		}
	}

	if root == nil {
		return nil, &ParsingError{Path: path, Summary: fmt.Sprintf("Configuration at %s must not be empty", path)}
	}
	obj, ok := normalize(root).(map[string]any)
	if !ok {
		return nil, &ParsingError{Path: path, Summary: "Incorrect type of value", Detail: "the document root must be an object"}
	}
	return Document(obj), nil
}

// position converts a byte offset into a one-based line and column.
func position(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	before := data[:offset]
	line := bytes.Count(before, []byte("\n")) + 1
	col := int(offset) - bytes.LastIndexByte(before, '\n')
	return line, col
}

// yamlDetail splits "yaml: line N: message" into its line and message.
func yamlDetail(err error) (int, string) {
	msg := strings.TrimPrefix(err.Error(), "yaml: ")
	if m := yamlLine.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		return line, m[2]
	}
	return 0, msg
}

// normalize converts parser output to map[string]any / []any trees.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	return cloneValue(map[string]any(d)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// documentOf renders a value through its yaml tags into a document.
func documentOf(v any) (Document, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	obj, ok := normalize(root).(map[string]any)
	if !ok {
		return Document{}, nil
	}
	return Document(obj), nil
}
