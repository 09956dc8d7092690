package config

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// SourceProvider opens configuration documents by path.
type SourceProvider interface {
	Open(path string) (io.ReadCloser, error)
}

// FileSystem interface for file operations (useful for testing).
type FileSystem interface {
	Exists(path string) bool
	Open(path string) (io.ReadCloser, error)
	Getwd() (string, error)
}

// RealFileSystem implements FileSystem using actual file operations.
type RealFileSystem struct{}

func (rfs *RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (rfs *RealFileSystem) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (rfs *RealFileSystem) Getwd() (string, error) {
	return os.Getwd()
}

// FileSourceProvider reads documents from a FileSystem.
type FileSourceProvider struct {
	FileSystem FileSystem
}

// NewFileSourceProvider reads from the local file system.
func NewFileSourceProvider() *FileSourceProvider {
	return &FileSourceProvider{FileSystem: &RealFileSystem{}}
}

func (p *FileSourceProvider) Open(path string) (io.ReadCloser, error) {
	fsys := p.FileSystem
	if fsys == nil {
		fsys = &RealFileSystem{}
	}
	if !fsys.Exists(path) {
		return nil, fmt.Errorf("file %s not found: %w", path, fs.ErrNotExist)
	}
	return fsys.Open(path)
}

// FSSourceProvider reads documents from an fs.FS such as an embed.FS.
type FSSourceProvider struct {
	FS fs.FS
}

func (p *FSSourceProvider) Open(path string) (io.ReadCloser, error) {
	f, err := p.FS.Open(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("resource %s not found: %w", path, err)
	}
	return f, nil
}

// ReaderSourceProvider serves a single stream regardless of path, for
// documents read from stdin or built in memory.
type ReaderSourceProvider struct {
	Reader io.Reader
}

func (p *ReaderSourceProvider) Open(string) (io.ReadCloser, error) {
	return io.NopCloser(p.Reader), nil
}

// LookupFunc resolves a variable name, like os.LookupEnv.
type LookupFunc func(name string) (string, bool)

// UndefinedVariableError reports ${NAME} expressions with no value and no
// default when substitution is strict.
type UndefinedVariableError struct {
	Names []string
}

func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("The environment variable '%s' is not defined; could not substitute the expression '${%s}'.", e.Names[0], e.Names[0])
	}
	return fmt.Sprintf("The environment variables %s are not defined.", strings.Join(e.Names, ", "))
}

// SubstitutingSourceProvider replaces ${NAME} and ${NAME:-default}
// expressions in the documents of Delegate. $${NAME} yields a literal
// ${NAME}. Undefined variables without a default are left in place unless
// Strict is set.
type SubstitutingSourceProvider struct {
	Delegate SourceProvider
	Lookup   LookupFunc
	Strict   bool
}

// NewEnvSubstitutingSourceProvider substitutes process environment variables.
func NewEnvSubstitutingSourceProvider(delegate SourceProvider, strict bool) *SubstitutingSourceProvider {
	return &SubstitutingSourceProvider{Delegate: delegate, Lookup: os.LookupEnv, Strict: strict}
}

func (p *SubstitutingSourceProvider) Open(path string) (io.ReadCloser, error) {
	rc, err := p.Delegate.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	out, err := Substitute(string(data), p.Lookup, p.Strict)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewBufferString(out)), nil
}

// Substitute expands variable expressions in s.
func Substitute(s string, lookup LookupFunc, strict bool) (string, error) {
	var sb strings.Builder
	undefined := map[string]struct{}{}

	for i := 0; i < len(s); i++ {
		if strings.HasPrefix(s[i:], "$${") {
			end := strings.IndexByte(s[i+3:], '}')
			if end >= 0 {
				sb.WriteString(s[i+1 : i+3+end+1])
				i += 3 + end
				continue
			}
		}
		if strings.HasPrefix(s[i:], "${") {
			end := strings.IndexByte(s[i+2:], '}')
			if end >= 0 {
				expr := s[i+2 : i+2+end]
				name, def, hasDefault := strings.Cut(expr, ":-")
				name = strings.TrimSpace(name)
				if value, ok := lookup(name); ok {
					sb.WriteString(value)
				} else if hasDefault {
					sb.WriteString(def)
				} else {
					undefined[name] = struct{}{}
					sb.WriteString(s[i : i+2+end+1])
				}
				i += 2 + end
				continue
			}
		}
		sb.WriteByte(s[i])
	}

	if strict && len(undefined) > 0 {
		names := make([]string, 0, len(undefined))
		for n := range undefined {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", &UndefinedVariableError{Names: names}
	}
	return sb.String(), nil
}
