// Package validation checks plugin descriptors, configuration sections and
// admin request bodies.
//
// Struct tag validation uses go-playground/validator and reports field names
// using their yaml or json tag:
//
//	type Descriptor struct {
//	    ID    string   `yaml:"id" validate:"required,identifier"`
//	    Paths []string `yaml:"paths" validate:"min=1,dive,required"`
//	}
//	err := validation.Validate(d)
//
// Checks that depend on runtime values use the collecting Validator:
//
//	v := validation.New()
//	v.OneOf("manifest.runtime", runtime, []string{"inproc", "process"})
//	err := v.Validate()
package validation
