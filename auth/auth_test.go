package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/crypto/bcrypt"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/config"
	"github.com/kbukum/gowizard/metrics"
	"github.com/kbukum/gowizard/rest"
	"github.com/kbukum/gowizard/testutil"
	"github.com/kbukum/gowizard/util"
)

type user struct {
	Name  string
	Roles []string
}

type claims struct {
	gojwt.RegisteredClaims
	Roles []string `json:"roles"`
}

func users(t *testing.T) UserLookup[*user] {
	t.Helper()
	hash, err := BcryptHasher{Cost: bcrypt.MinCost}.Hash("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	known := map[string]*user{
		"alice": {Name: "alice", Roles: []string{"admin"}},
		"bob":   {Name: "bob", Roles: []string{"people:read"}},
	}
	return func(_ context.Context, name string) (*user, string, bool, error) {
		u, ok := known[name]
		return u, hash, ok, nil
	}
}

func basicAuth(name, pass string) string {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth(name, pass)
	return req.Header.Get("Authorization")
}

func rolesOf(u *user) []string { return u.Roles }

func whoami(r gin.IRouter) {
	r.GET("/whoami", Required(), func(c *gin.Context) {
		c.String(http.StatusOK, MustPrincipal[*user](c).Name)
	})
	r.GET("/public", func(c *gin.Context) {
		if u, ok := Principal[*user](c); ok {
			c.String(http.StatusOK, "hello "+u.Name)
			return
		}
		c.String(http.StatusOK, "hello stranger")
	})
	r.DELETE("/people", RolesAllowed("people:write"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/people", RolesAllowed("people:read", "people:write"), func(c *gin.Context) { c.Status(http.StatusOK) })
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern, required string
		want              bool
	}{
		{"admin", "admin", true},
		{"admin", "user", false},
		{"*", "anything", true},
		{"*:*", "people:write", true},
		{"people:*", "people:write", true},
		{"*:read", "people:read", true},
		{"*:read", "people:write", false},
		{"people:read", "people", false},
		{"people", "people:read", false},
	}
	for _, tc := range tests {
		if got := MatchPattern(tc.pattern, tc.required); got != tc.want {
			t.Errorf("MatchPattern(%q, %q): expected %v, got %v", tc.pattern, tc.required, tc.want, got)
		}
	}
}

func TestBasicFilterProtect(t *testing.T) {
	filter := NewBasicFilter(PasswordAuthenticator(users(t), BcryptHasher{})).WithRealm("hello")
	h := testutil.NewResourceHarness(t,
		testutil.WithMiddleware(Protect(filter)),
		testutil.WithResource(rest.ResourceFunc(whoami)),
	)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"no credentials", "", http.StatusUnauthorized, ""},
		{"wrong password", basicAuth("alice", "nope"), http.StatusUnauthorized, ""},
		{"unknown user", basicAuth("carol", "secret"), http.StatusUnauthorized, ""},
		{"wrong scheme", "Bearer abc", http.StatusUnauthorized, ""},
		{"garbage", "Basic !!!", http.StatusUnauthorized, ""},
		{"valid", basicAuth("alice", "secret"), http.StatusOK, "alice"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var headers []string
			if tc.header != "" {
				headers = []string{"Authorization", tc.header}
			}
			resp, body := h.Request(http.MethodGet, "/whoami", nil, headers...)
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d %s", tc.status, resp.StatusCode, body)
			}
			if tc.status == http.StatusUnauthorized {
				if got := resp.Header.Get("WWW-Authenticate"); got != `Basic realm="hello"` {
					t.Errorf("expected challenge, got %q", got)
				}
				return
			}
			if body != tc.body {
				t.Errorf("expected %q, got %q", tc.body, body)
			}
		})
	}
}

func TestOptionalAndRolesAllowed(t *testing.T) {
	filter := NewBasicFilter(PasswordAuthenticator(users(t), BcryptHasher{})).
		WithAuthorizer(GrantAuthorizer(rolesOf, map[string][]string{
			"admin":       {"*:*"},
			"people:read": {"people:read"},
		}))
	h := testutil.NewResourceHarness(t,
		testutil.WithMiddleware(Optional(filter)),
		testutil.WithResource(rest.ResourceFunc(whoami)),
	)
	alice, bob := basicAuth("alice", "secret"), basicAuth("bob", "secret")

	tests := []struct {
		name, method, path, header string
		status                     int
	}{
		{"public anonymous", http.MethodGet, "/public", "", http.StatusOK},
		{"public bad credentials", http.MethodGet, "/public", basicAuth("bob", "x"), http.StatusOK},
		{"required anonymous", http.MethodGet, "/whoami", "", http.StatusUnauthorized},
		{"roles anonymous", http.MethodGet, "/people", "", http.StatusUnauthorized},
		{"read allowed", http.MethodGet, "/people", bob, http.StatusOK},
		{"write forbidden", http.MethodDelete, "/people", bob, http.StatusForbidden},
		{"admin writes", http.MethodDelete, "/people", alice, http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var headers []string
			if tc.header != "" {
				headers = []string{"Authorization", tc.header}
			}
			resp, body := h.Request(tc.method, tc.path, nil, headers...)
			if resp.StatusCode != tc.status {
				t.Errorf("expected %d, got %d %s", tc.status, resp.StatusCode, body)
			}
		})
	}

	if _, body := h.Request(http.MethodGet, "/public", nil, "Authorization", bob); body != "hello bob" {
		t.Errorf("expected principal on public route, got %q", body)
	}
}

func TestAuthenticatorErrorIsServerError(t *testing.T) {
	failing := AuthenticatorFunc[BasicCredentials, *user](func(context.Context, BasicCredentials) (*user, bool, error) {
		return nil, false, errors.New("directory unavailable")
	})
	h := testutil.NewResourceHarness(t,
		testutil.WithMiddleware(Protect(NewBasicFilter[*user](failing))),
		testutil.WithResource(rest.ResourceFunc(whoami)),
	)
	resp, _ := h.Request(http.MethodGet, "/whoami", nil, "Authorization", basicAuth("alice", "secret"))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
}

func newTokenService(t *testing.T, cfg JWTConfig) *TokenService[*claims] {
	t.Helper()
	svc, err := NewTokenService(cfg, func() *claims { return &claims{} })
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func issue(t *testing.T, svc *TokenService[*claims], subject string, roles ...string) string {
	t.Helper()
	c := &claims{Roles: roles}
	c.Subject = subject
	token, err := svc.Issue(c, &c.RegisteredClaims)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func TestTokenService(t *testing.T) {
	svc := newTokenService(t, JWTConfig{Secret: "s3cret", Issuer: "hello", Audience: "api"})

	parsed, err := svc.Parse(issue(t, svc, "alice", "admin"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Subject != "alice" || len(parsed.Roles) != 1 || parsed.Roles[0] != "admin" {
		t.Errorf("unexpected claims %+v", parsed)
	}

	other := newTokenService(t, JWTConfig{Secret: "s3cret", Issuer: "elsewhere"})
	if _, err := svc.Parse(issue(t, other, "alice")); err == nil {
		t.Error("expected issuer mismatch to fail")
	}

	hs384 := newTokenService(t, JWTConfig{Secret: "s3cret", Method: "HS384", Issuer: "hello", Audience: "api"})
	if _, err := svc.Parse(issue(t, hs384, "alice")); err == nil {
		t.Error("expected signing method mismatch to fail")
	}

	expired := issue(t, svc, "alice")
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := svc.Parse(expired); !errors.Is(err, gojwt.ErrTokenExpired) {
		t.Errorf("expected expired token, got %v", err)
	}

	if _, err := NewTokenService(JWTConfig{}, func() *claims { return &claims{} }); err == nil {
		t.Error("expected missing secret to fail")
	}
	if _, err := NewTokenService(JWTConfig{Method: "none"}, func() *claims { return &claims{} }); err == nil {
		t.Error("expected unsupported method to fail")
	}
}

func TestChainedFilter(t *testing.T) {
	svc := newTokenService(t, JWTConfig{Secret: "s3cret"})
	bearer := NewOAuthFilter(TokenAuthenticator(svc, func(_ context.Context, c *claims) (*user, bool, error) {
		return &user{Name: c.Subject, Roles: c.Roles}, true, nil
	})).WithQueryParam("access_token")
	basic := NewBasicFilter(PasswordAuthenticator(users(t), BcryptHasher{}))
	chain := Chain(basic, bearer)

	h := testutil.NewResourceHarness(t,
		testutil.WithMiddleware(Protect(chain)),
		testutil.WithResource(rest.ResourceFunc(whoami)),
	)
	token := issue(t, svc, "dave")

	tests := []struct {
		name   string
		path   string
		header string
		want   string
	}{
		{"basic", "/whoami", basicAuth("bob", "secret"), "bob"},
		{"bearer", "/whoami", "Bearer " + token, "dave"},
		{"query parameter", "/whoami?access_token=" + token, "", "dave"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var headers []string
			if tc.header != "" {
				headers = []string{"Authorization", tc.header}
			}
			resp, body := h.Request(http.MethodGet, tc.path, nil, headers...)
			if resp.StatusCode != http.StatusOK || body != tc.want {
				t.Errorf("expected 200 %q, got %d %q", tc.want, resp.StatusCode, body)
			}
		})
	}

	resp, body := h.Request(http.MethodGet, "/whoami", nil, "Authorization", "Bearer not-a-token")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); got != `Basic realm="realm"` {
		t.Errorf("expected first filter's challenge, got %q", got)
	}
	if !strings.Contains(body, `"errorCode":"INVALID_TOKEN"`) {
		t.Errorf("expected INVALID_TOKEN for a rejected bearer token, got %s", body)
	}

	resp, body = h.Request(http.MethodGet, "/whoami", nil, "Authorization", basicAuth("bob", "wrong"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `"errorCode":"UNAUTHORIZED"`) {
		t.Errorf("expected UNAUTHORIZED for a wrong password, got %s", body)
	}
}

func TestCachingAuthenticator(t *testing.T) {
	calls := 0
	underlying := AuthenticatorFunc[string, string](func(_ context.Context, token string) (string, bool, error) {
		calls++
		return "user-" + token, token != "bad", nil
	})
	registry := metrics.NewRegistry()
	cached := NewCachingAuthenticator[string, string](underlying, CachePolicy{MaximumSize: 2}, registry, "tokens")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if p, ok, err := cached.Authenticate(ctx, "a"); err != nil || !ok || p != "user-a" {
			t.Fatalf("expected user-a, got %q %v %v", p, ok, err)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 underlying call, got %d", calls)
	}

	cached.Authenticate(ctx, "bad")
	cached.Authenticate(ctx, "bad")
	if calls != 3 {
		t.Errorf("expected failures not to be cached, got %d calls", calls)
	}

	cached.Authenticate(ctx, "b")
	cached.Authenticate(ctx, "c")
	if cached.Size() != 2 {
		t.Errorf("expected size bounded to 2, got %d", cached.Size())
	}

	cached.InvalidateMatching(func(k string) bool { return k == "c" })
	cached.Invalidate("b")
	if cached.Size() != 0 {
		t.Errorf("expected empty cache, got %d", cached.Size())
	}

	counter := registry.Counter("tokens_cache_requests_total", "", "result")
	if hits := promtest.ToFloat64(counter.WithLabelValues("hit")); hits != 2 {
		t.Errorf("expected 2 hits, got %v", hits)
	}
}

func TestCachingAuthenticatorExpiry(t *testing.T) {
	calls := 0
	underlying := AuthenticatorFunc[string, string](func(_ context.Context, token string) (string, bool, error) {
		calls++
		return token, true, nil
	})
	cached := NewCachingAuthenticator[string, string](underlying,
		CachePolicy{ExpireAfterAccess: util.Duration(50 * time.Millisecond)}, nil, "")
	ctx := context.Background()

	cached.Authenticate(ctx, "a")
	time.Sleep(150 * time.Millisecond)
	cached.Authenticate(ctx, "a")
	if calls != 2 {
		t.Errorf("expected entry to expire, got %d calls", calls)
	}
	cached.InvalidateAll()
	if cached.Size() != 0 {
		t.Errorf("expected empty cache, got %d", cached.Size())
	}
}

func TestParseCachePolicy(t *testing.T) {
	tests := []struct {
		spec    string
		want    CachePolicy
		wantErr bool
	}{
		{"", CachePolicy{}, false},
		{"maximumSize=100", CachePolicy{MaximumSize: 100}, false},
		{"maximumSize=10, expireAfterAccess=10m", CachePolicy{MaximumSize: 10, ExpireAfterAccess: util.Duration(10 * time.Minute)}, false},
		{"maximumSize=-1", CachePolicy{}, true},
		{"expireAfterWrite=1m", CachePolicy{}, true},
		{"maximumSize", CachePolicy{}, true},
	}
	for _, tc := range tests {
		got, err := ParseCachePolicy(tc.spec)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: expected error %v, got %v", tc.spec, tc.wantErr, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: expected %+v, got %+v", tc.spec, tc.want, got)
		}
	}
}

func TestHashers(t *testing.T) {
	hashers := map[string]Hasher{
		"bcrypt":   BcryptHasher{Cost: bcrypt.MinCost},
		"argon2id": &Argon2Hasher{Time: 1, Memory: 1024, Threads: 1},
		"config":   NewHasher(PasswordConfig{Algorithm: "argon2id", Argon2Memory: 1024}),
	}
	for name, h := range hashers {
		t.Run(name, func(t *testing.T) {
			hash, err := h.Hash("correct horse")
			if err != nil {
				t.Fatalf("Hash: %v", err)
			}
			if err := h.Verify("correct horse", hash); err != nil {
				t.Errorf("expected match, got %v", err)
			}
			if err := h.Verify("battery staple", hash); !errors.Is(err, ErrMismatchedPassword) {
				t.Errorf("expected ErrMismatchedPassword, got %v", err)
			}
		})
	}
}

type securedConfig struct {
	config.Configuration `yaml:",inline" mapstructure:",squash"`
	Auth                 Config `yaml:"auth" mapstructure:"auth"`
}

type securedApp struct {
	lookup UserLookup[*user]
}

func (securedApp) Name() string                                    { return "secured" }
func (securedApp) NewConfiguration() *securedConfig                { return &securedConfig{} }
func (securedApp) Initialize(*bootstrap.Bootstrap[*securedConfig]) {}

func (a securedApp) Run(_ context.Context, cfg *securedConfig, env *bootstrap.Environment) error {
	authn := NewCachingAuthenticator(PasswordAuthenticator(a.lookup, NewHasher(cfg.Auth.Password)), cfg.Auth.CachePolicy, env.Metrics(), "basic")
	if err := NewBundle(NewBasicFilter[*user](authn).WithRealm("secured")).Run(env); err != nil {
		return err
	}
	env.Rest().Register(rest.ResourceFunc(whoami))
	return nil
}

func TestBundleInApplication(t *testing.T) {
	cfg := &securedConfig{}
	cfg.ApplyDefaults()
	cfg.Auth.ApplyDefaults()
	cfg.Logging.Level = "off"
	cfg.Auth.CachePolicy = CachePolicy{MaximumSize: 10}

	app := testutil.NewAppSupportWithConfig[*securedConfig](t, securedApp{lookup: users(t)}, cfg)

	if status, _ := app.Get("/whoami"); status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", status)
	}
	req, _ := http.NewRequest(http.MethodGet, app.URL("/whoami"), nil)
	req.SetBasicAuth("alice", "secret")
	resp, err := app.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if status, body := app.Get("/public"); status != http.StatusOK || body != "hello stranger" {
		t.Errorf("expected anonymous access, got %d %q", status, body)
	}
}
