package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/gowizard/util"
)

// Config is an auth section applications can embed in their configuration:
//
//	auth:
//	  cachePolicy: maximumSize=1000, expireAfterAccess=10m
//	  jwt:
//	    secret: ${JWT_SECRET}
//	    issuer: hello
type Config struct {
	CachePolicy CachePolicy    `yaml:"cachePolicy" mapstructure:"cachePolicy"`
	JWT         JWTConfig      `yaml:"jwt" mapstructure:"jwt"`
	Password    PasswordConfig `yaml:"password" mapstructure:"password"`
}

// ApplyDefaults fills in unset values.
func (c *Config) ApplyDefaults() {
	c.JWT.ApplyDefaults()
	c.Password.ApplyDefaults()
}

// CachePolicy bounds a CachingAuthenticator. Zero values mean unbounded.
type CachePolicy struct {
	MaximumSize       int           `yaml:"maximumSize" mapstructure:"maximumSize" validate:"min=0"`
	ExpireAfterAccess util.Duration `yaml:"expireAfterAccess" mapstructure:"expireAfterAccess"`
}

// ParseCachePolicy parses a comma separated spec such as
// "maximumSize=1000, expireAfterAccess=10m".
func ParseCachePolicy(spec string) (CachePolicy, error) {
	var p CachePolicy
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return CachePolicy{}, fmt.Errorf("cache policy: expected key=value, got %q", part)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "maximumSize":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return CachePolicy{}, fmt.Errorf("cache policy: invalid maximumSize %q", value)
			}
			p.MaximumSize = n
		case "expireAfterAccess":
			d, err := util.ParseDuration(value)
			if err != nil {
				return CachePolicy{}, fmt.Errorf("cache policy: invalid expireAfterAccess: %w", err)
			}
			p.ExpireAfterAccess = d
		default:
			return CachePolicy{}, fmt.Errorf("cache policy: unknown key %q", key)
		}
	}
	return p, nil
}

// UnmarshalText accepts the form parsed by ParseCachePolicy.
func (p *CachePolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseCachePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText renders the policy in the same form.
func (p CachePolicy) MarshalText() ([]byte, error) {
	parts := make([]string, 0, 2)
	if p.MaximumSize > 0 {
		parts = append(parts, "maximumSize="+strconv.Itoa(p.MaximumSize))
	}
	if p.ExpireAfterAccess > 0 {
		parts = append(parts, "expireAfterAccess="+p.ExpireAfterAccess.String())
	}
	return []byte(strings.Join(parts, ", ")), nil
}

// JWTConfig configures a TokenService.
type JWTConfig struct {
	// Method is the signing algorithm. HS* methods use Secret; RS* and ES*
	// verify with PublicKeyFile and sign with PrivateKeyFile.
	Method         string        `yaml:"method" mapstructure:"method" validate:"oneof=HS256 HS384 HS512 RS256 RS384 RS512 ES256 ES384 ES512"`
	Secret         string        `yaml:"secret" mapstructure:"secret"`
	PublicKeyFile  string        `yaml:"publicKeyFile" mapstructure:"publicKeyFile"`
	PrivateKeyFile string        `yaml:"privateKeyFile" mapstructure:"privateKeyFile"`
	Issuer         string        `yaml:"issuer" mapstructure:"issuer"`
	Audience       string        `yaml:"audience" mapstructure:"audience"`
	TokenTTL       util.Duration `yaml:"tokenTTL" mapstructure:"tokenTTL"`
	Leeway         util.Duration `yaml:"leeway" mapstructure:"leeway"`
}

// ApplyDefaults fills in unset values.
func (c *JWTConfig) ApplyDefaults() {
	if c.Method == "" {
		c.Method = "HS256"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = util.Duration(15 * time.Minute)
	}
}

// PasswordConfig selects a password Hasher.
type PasswordConfig struct {
	Algorithm     string `yaml:"algorithm" mapstructure:"algorithm" validate:"oneof=bcrypt argon2id"`
	BcryptCost    int    `yaml:"bcryptCost" mapstructure:"bcryptCost" validate:"min=4,max=31"`
	Argon2Time    uint32 `yaml:"argon2Time" mapstructure:"argon2Time"`
	Argon2Memory  uint32 `yaml:"argon2Memory" mapstructure:"argon2Memory"`
	Argon2Threads uint8  `yaml:"argon2Threads" mapstructure:"argon2Threads"`
}

// ApplyDefaults fills in unset values.
func (c *PasswordConfig) ApplyDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = "bcrypt"
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.Argon2Time == 0 {
		c.Argon2Time = 1
	}
	if c.Argon2Memory == 0 {
		c.Argon2Memory = 64 * 1024
	}
	if c.Argon2Threads == 0 {
		c.Argon2Threads = 4
	}
}
