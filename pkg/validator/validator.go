package validator

import (
	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator for struct-tag based validation
// of configuration types.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator with the project's base validation rules.
func New() *Validator {
	return &Validator{
		validate: validator.New(),
	}
}

// ValidateStruct validates a struct using its `validate` tags.
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}

// ValidateVar validates a single variable against a tag.
func (v *Validator) ValidateVar(field interface{}, tag string) error {
	return v.validate.Var(field, tag)
}
