package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/util"
)

const (
	DefaultDriver          = "postgres"
	DefaultValidationQuery = "SELECT 1"
)

// DataSourceFactory configures a connection pool.
type DataSourceFactory struct {
	Driver     string            `yaml:"driver" mapstructure:"driver" validate:"required"`
	URL        string            `yaml:"url" mapstructure:"url" validate:"required"`
	User       string            `yaml:"user" mapstructure:"user"`
	Password   string            `yaml:"password" mapstructure:"password"`
	Properties map[string]string `yaml:"properties" mapstructure:"properties"`

	// MaxSize bounds open connections; MinSize is the number of idle
	// connections kept in the pool.
	MaxSize int `yaml:"maxSize" mapstructure:"maxSize" validate:"min=1"`
	MinSize int `yaml:"minSize" mapstructure:"minSize" validate:"min=0,ltefield=MaxSize"`
	// MaxConnectionAge closes connections older than this; zero keeps them.
	MaxConnectionAge util.Duration `yaml:"maxConnectionAge" mapstructure:"maxConnectionAge"`
	MaxIdleTime      util.Duration `yaml:"maxIdleTime" mapstructure:"maxIdleTime"`

	ValidationQuery         string        `yaml:"validationQuery" mapstructure:"validationQuery"`
	ValidationQueryTimeout  util.Duration `yaml:"validationQueryTimeout" mapstructure:"validationQueryTimeout"`
	CheckConnectionOnBorrow bool          `yaml:"checkConnectionOnBorrow" mapstructure:"checkConnectionOnBorrow"`

	// ConnectionRetries is the number of validation attempts made on start.
	ConnectionRetries int           `yaml:"connectionRetries" mapstructure:"connectionRetries" validate:"min=1"`
	RetryBackoff      util.Duration `yaml:"retryBackoff" mapstructure:"retryBackoff"`
}

// ApplyDefaults fills in unset values.
func (f *DataSourceFactory) ApplyDefaults() {
	if f.Driver == "" {
		f.Driver = DefaultDriver
	}
	if f.MaxSize == 0 {
		f.MaxSize = 100
	}
	if f.MinSize == 0 {
		f.MinSize = min(10, f.MaxSize)
	}
	if f.MaxIdleTime == 0 {
		f.MaxIdleTime = util.Duration(time.Minute)
	}
	if f.ValidationQuery == "" {
		f.ValidationQuery = DefaultValidationQuery
	}
	if f.ValidationQueryTimeout == 0 {
		f.ValidationQueryTimeout = util.Duration(5 * time.Second)
	}
	if f.ConnectionRetries == 0 {
		f.ConnectionRetries = 1
	}
	if f.RetryBackoff == 0 {
		f.RetryBackoff = util.Duration(time.Second)
	}
}

// DataSourceName combines URL, credentials and properties into the string
// handed to the driver. URL-style locations get credentials in the user
// info and properties as query parameters; postgres keyword strings get
// additional key=value pairs.
func (f *DataSourceFactory) DataSourceName() string {
	if u, err := url.Parse(f.URL); err == nil && u.Scheme != "" && strings.Contains(f.URL, "://") {
		if f.User != "" {
			u.User = url.UserPassword(f.User, f.Password)
		}
		q := u.Query()
		for _, k := range sortedKeys(f.Properties) {
			q.Set(k, f.Properties[k])
		}
		u.RawQuery = q.Encode()
		return u.String()
	}

	if f.Driver == "postgres" {
		var b strings.Builder
		b.WriteString(f.URL)
		pairs := map[string]string{}
		for k, v := range f.Properties {
			pairs[k] = v
		}
		if f.User != "" {
			pairs["user"] = f.User
			pairs["password"] = f.Password
		}
		for _, k := range sortedKeys(pairs) {
			fmt.Fprintf(&b, " %s=%s", k, quoteKeyword(pairs[k]))
		}
		return strings.TrimSpace(b.String())
	}

	if len(f.Properties) == 0 {
		return f.URL
	}
	q := url.Values{}
	for k, v := range f.Properties {
		q.Set(k, v)
	}
	sep := "?"
	if strings.Contains(f.URL, "?") {
		sep = "&"
	}
	return f.URL + sep + q.Encode()
}

func quoteKeyword(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Open creates the pool without connecting. Start the returned data source
// to validate the connection.
func (f *DataSourceFactory) Open(name string, log *logger.Logger) (*ManagedDataSource, error) {
	f.ApplyDefaults()
	db, err := sql.Open(f.Driver, f.DataSourceName())
	if err != nil {
		return nil, fmt.Errorf("db %s: open %s: %w", name, f.Driver, err)
	}
	return NewManagedDataSource(name, *f, db, log), nil
}

// Redacted returns the data source name with the password masked, for
// logging.
func (f *DataSourceFactory) Redacted() string {
	masked := *f
	if masked.Password != "" {
		masked.Password = "xxxxx"
	}
	return util.RedactURL(masked.DataSourceName())
}
