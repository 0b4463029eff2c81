package validation

import (
	"strings"
	"testing"

	"github.com/kbukum/switchyard/errors"
)

func TestValidatorRequired(t *testing.T) {
	v := New()
	v.Required("id", "")
	v.Required("version", "   ")
	v.Required("entry", "main")

	if len(v.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(v.Errors()))
	}
	if v.Errors()[0].Field != "id" {
		t.Errorf("expected first error on id, got %s", v.Errors()[0].Field)
	}
}

func TestValidatorIdentifier(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"billing-plugin", true},
		{"acme.tracker_v2", true},
		{"", true},
		{"-leading", false},
		{"has space", false},
		{"slash/name", false},
	}
	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			v := New().Identifier("id", tc.value)
			if v.HasErrors() == tc.ok {
				t.Errorf("Identifier(%q) errors=%v, want ok=%v", tc.value, v.Errors(), tc.ok)
			}
		})
	}
}

func TestValidatorHexDigest(t *testing.T) {
	v := New()
	v.HexDigest("digest.a", strings.Repeat("ab", 32), 32)
	v.HexDigest("digest.b", "abc123", 32)
	v.HexDigest("digest.c", strings.Repeat("zz", 32), 32)
	v.HexDigest("digest.d", "", 32)
	if len(v.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %v", v.Errors())
	}
	if v.Errors()[0].Field != "digest.b" || !strings.Contains(v.Errors()[0].Message, "64-character") {
		t.Errorf("unexpected first error %+v", v.Errors()[0])
	}
}

func TestValidatorKeys(t *testing.T) {
	manifest := map[string]string{
		"digest.b.bin": "2",
		"digest.a.bin": "1",
		"entry":        "main",
	}
	var seen []string
	New().Keys(manifest, "digest.", func(_ *Validator, key, value string) {
		seen = append(seen, key+"="+value)
	})
	if strings.Join(seen, ",") != "a.bin=1,b.bin=2" {
		t.Errorf("unexpected keys %v", seen)
	}
}

func TestValidatorOneOf(t *testing.T) {
	v := New()
	v.OneOf("runtime", "wasm", []string{"inproc", "process"})
	if !v.HasErrors() {
		t.Fatal("expected an error for an unknown runtime")
	}
	if !strings.Contains(v.Errors()[0].Message, "inproc, process") {
		t.Errorf("unexpected message: %s", v.Errors()[0].Message)
	}

	v = New().OneOf("runtime", "process", []string{"inproc", "process"})
	if v.HasErrors() {
		t.Error("expected no error for an allowed value")
	}
}

func TestValidatorValidate(t *testing.T) {
	if err := New().Validate(); err != nil {
		t.Errorf("expected nil for no errors, got %v", err)
	}

	v := New()
	v.Check(false, "paths", "must not be empty")
	err := v.Validate()
	if !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	fields, ok := appErr.Details["fields"].([]FieldError)
	if !ok || len(fields) != 1 || fields[0].Field != "paths" {
		t.Errorf("unexpected details: %+v", appErr.Details)
	}
}

type sample struct {
	ID     string            `yaml:"id" validate:"required,identifier"`
	Paths  []string          `yaml:"paths" validate:"min=1,dive,required"`
	Name   string            `json:"display_name" validate:"max=8"`
	Weight float64           `validate:"gte=0"`
	Labels map[string]string `yaml:"labels"`
}

func TestStructValidateValid(t *testing.T) {
	s := sample{ID: "p1", Paths: []string{"lib.so"}, Name: "short"}
	if err := Validate(s); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStructValidateInvalid(t *testing.T) {
	s := sample{ID: "bad id", Name: "much too long", Weight: -1}
	err := Validate(s)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"id: must start with", "paths: must contain at least 1 item(s)", "display_name: must be at most 8", "weight: must be greater than or equal to 0"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestStructValidateDive(t *testing.T) {
	s := sample{ID: "p1", Paths: []string{"ok", ""}}
	err := Validate(s)
	if err == nil || !strings.Contains(err.Error(), "paths[1]: is required") {
		t.Errorf("expected paths[1] error, got %v", err)
	}
}

func TestToSnakeCase(t *testing.T) {
	if got := toSnakeCase("CacheTTL"); got != "cache_t_t_l" {
		t.Errorf("unexpected %q", got)
	}
	if got := toSnakeCase("Weight"); got != "weight" {
		t.Errorf("unexpected %q", got)
	}
}
