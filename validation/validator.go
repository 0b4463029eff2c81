package validation

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/kbukum/switchyard/errors"
)

// Validator accumulates field errors for checks that struct tags cannot
// express, such as manifest entries keyed by free-form strings.
type Validator struct {
	errors []FieldError
}

// FieldError is one failed check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates an empty Validator.
func New() *Validator {
	return &Validator{}
}

// AddError records a failure on field.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any check failed.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns the failures in the order they were recorded.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Validate folds the failures into one INVALID_INPUT AppError, or nil.
func (v *Validator) Validate() error {
	if !v.HasErrors() {
		return nil
	}
	messages := make([]string, len(v.errors))
	for i, e := range v.errors {
		messages[i] = e.Field + ": " + e.Message
	}
	appErr := errors.Validation(strings.Join(messages, "; "))
	appErr.Details = map[string]any{"fields": v.errors}
	return appErr
}

// Required fails on blank values.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// Identifier fails on non-empty values that are not plugin or provider ids.
func (v *Validator) Identifier(field, value string) *Validator {
	if value != "" && !IsIdentifier(value) {
		v.AddError(field, "is not a valid identifier")
	}
	return v
}

// HexDigest fails unless value is empty or exactly size bytes of hex.
func (v *Validator) HexDigest(field, value string, size int) *Validator {
	if value == "" {
		return v
	}
	raw, err := hex.DecodeString(value)
	if err != nil || len(raw) != size {
		v.AddError(field, fmt.Sprintf("must be a %d-character hex digest", size*2))
	}
	return v
}

// OneOf fails on non-empty values outside allowed.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" {
		return v
	}
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.AddError(field, "must be one of: "+strings.Join(allowed, ", "))
	return v
}

// Keys runs check on every entry of m whose key starts with prefix, in key
// order, passing the key with the prefix removed.
func (v *Validator) Keys(m map[string]string, prefix string, check func(v *Validator, key, value string)) *Validator {
	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		check(v, strings.TrimPrefix(k, prefix), m[k])
	}
	return v
}

// Check records message on field when ok is false.
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.AddError(field, message)
	}
	return v
}
