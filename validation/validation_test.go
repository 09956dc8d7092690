package validation

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/util"
)

type connector struct {
	Port     int    `mapstructure:"port" validate:"min=0,max=65535"`
	BindHost string `mapstructure:"bindHost" validate:"omitempty,hostname|ip"`
}

type pool struct {
	MinSize int `mapstructure:"minSize" validate:"min=0"`
	MaxSize int `mapstructure:"maxSize" validate:"min=1"`
}

func (p *pool) ValidateSelf(v *Validator) {
	v.Custom(p.MinSize <= p.MaxSize, "minSize", "must not exceed maxSize")
}

type base struct {
	Name string `mapstructure:"name" validate:"required"`
}

type appConfig struct {
	base       `mapstructure:",squash"`
	Connectors []connector      `mapstructure:"connectors" validate:"dive"`
	Database   pool             `mapstructure:"database"`
	Timeout    util.Duration    `mapstructure:"timeout" validate:"duration_min=1s,duration_max=1m"`
	MaxBody    util.Size        `mapstructure:"maxBody" validate:"size_max=1MiB"`
	Level      string           `mapstructure:"level" validate:"omitempty,oneof=debug info"`
	Pools      map[string]*pool `mapstructure:"pools"`
}

func validConfig() *appConfig {
	return &appConfig{
		base:       base{Name: "app"},
		Connectors: []connector{{Port: 8080}},
		Database:   pool{MinSize: 1, MaxSize: 4},
		Timeout:    util.Duration(5 * time.Second),
		MaxBody:    util.Kibibyte,
	}
}

func paths(vs Violations) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Path
	}
	return out
}

func TestStructValid(t *testing.T) {
	if vs := NewStructValidator().Struct(validConfig()); !vs.Empty() {
		t.Fatalf("expected no violations, got %v", vs)
	}
}

func TestStructCollectsAllViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Name = ""
	cfg.Connectors = append(cfg.Connectors, connector{Port: 70000})
	cfg.Database = pool{MinSize: 5, MaxSize: 2}
	cfg.Timeout = util.Duration(2 * time.Minute)
	cfg.Level = "verbose"

	vs := NewStructValidator().Struct(cfg)
	want := map[string]string{
		"name":               "must not be empty",
		"connectors[1].port": "must be less than or equal to 65535",
		"database.minSize":   "must not exceed maxSize",
		"timeout":            "must be less than or equal to 1m",
		"level":              "must be one of [debug, info]",
	}
	if len(vs) != len(want) {
		t.Fatalf("expected %d violations, got %d: %v", len(want), len(vs), vs)
	}
	for _, v := range vs {
		msg, ok := want[v.Path]
		if !ok {
			t.Errorf("unexpected violation path %q (all: %v)", v.Path, paths(vs))
			continue
		}
		if v.Message != msg {
			t.Errorf("%s: expected message %q, got %q", v.Path, msg, v.Message)
		}
	}
}

func TestStructSizeBound(t *testing.T) {
	cfg := validConfig()
	cfg.MaxBody = 2 * util.Mebibyte
	vs := NewStructValidator().Struct(cfg)
	if len(vs) != 1 || vs[0].Path != "maxBody" {
		t.Fatalf("expected maxBody violation, got %v", vs)
	}
}

func TestSelfValidatingInMap(t *testing.T) {
	cfg := validConfig()
	cfg.Pools = map[string]*pool{"reports": {MinSize: 3, MaxSize: 1}}
	vs := NewStructValidator().Struct(cfg)
	if len(vs) != 1 || vs[0].Path != "pools[reports].minSize" {
		t.Fatalf("expected map entry violation, got %v", vs)
	}
}

func TestViolationsStringsSorted(t *testing.T) {
	vs := Violations{
		{Path: "b", Message: "is bad"},
		{Path: "a", Message: "is worse"},
	}
	got := vs.Strings()
	if got[0] != "a is worse" || got[1] != "b is bad" {
		t.Errorf("unexpected order %v", got)
	}
	if !strings.Contains(vs.Error(), "a is worse; b is bad") {
		t.Errorf("unexpected error text %q", vs.Error())
	}
}

func TestViolationsPrefixed(t *testing.T) {
	vs := Violations{{Path: "port", Message: "x"}, {Path: "", Message: "y"}, {Path: "[0]", Message: "z"}}
	got := paths(vs.Prefixed("server"))
	want := []string{"server.port", "server", "server[0]"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %q, got %q", want[i], got[i])
		}
	}
}

func TestValidateReturnsAppError(t *testing.T) {
	type person struct {
		FullName string `json:"fullName" validate:"required"`
		Age      int    `json:"age" validate:"min=1"`
	}
	err := Validate(&person{})
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", appErr.HTTPStatus)
	}
	list := appErr.Details["errors"].([]string)
	if len(list) != 2 || list[0] != "age must be greater than or equal to 1" {
		t.Errorf("unexpected errors %v", list)
	}
	if Validate(&person{FullName: "a", Age: 3}) != nil {
		t.Error("expected valid person")
	}
}

func TestValidatorChecks(t *testing.T) {
	seen := map[string]string{}
	v := New().
		Required("name", " ").
		Range("port", 70000, 0, 65535).
		AtMost("minSize", 20, "maxSize", 10).
		DurationBetween("timeout", time.Millisecond, time.Second, 0).
		DurationBetween("ttl", time.Hour, 0, time.Minute).
		Pattern("slug", "Not A Slug", `^[a-z-]+$`).
		Pattern("broken", "x", `(`).
		OneOf("mode", "x", []string{"a", "b"}).
		Unique("connectors[0].port", ":8080", seen).
		Unique("connectors[1].port", ":8080", seen).
		Custom(false, "custom", "failed")

	want := map[string]string{
		"name":               "must not be empty",
		"port":               "must be between 0 and 65535",
		"minSize":            "must not exceed maxSize (10)",
		"timeout":            "must be at least 1s",
		"ttl":                "must be at most 1m0s",
		"slug":               `must match "^[a-z-]+$"`,
		"mode":               "must be one of [a, b]",
		"connectors[1].port": ":8080 is also used by connectors[0].port",
		"custom":             "failed",
	}
	got := map[string]string{}
	for _, vl := range v.Violations() {
		got[vl.Path] = vl.Message
	}
	if len(v.Violations()) != len(want)+1 {
		t.Fatalf("expected %d violations, got %d: %v", len(want)+1, len(v.Violations()), v.Violations())
	}
	for path, msg := range want {
		if got[path] != msg {
			t.Errorf("%s: expected %q, got %q", path, msg, got[path])
		}
	}
	if !strings.HasPrefix(got["broken"], "invalid pattern") {
		t.Errorf("expected invalid pattern violation, got %q", got["broken"])
	}
	if appErr := v.Validate(); appErr == nil || appErr.Code != errors.ErrCodeValidation {
		t.Errorf("expected validation AppError, got %v", appErr)
	}
	if New().Required("name", "x").Unique("a", "k", map[string]string{}).Validate() != nil {
		t.Error("expected no error for valid input")
	}
}
