/*
Package validator provides struct-tag input validation for the bus's
configuration types (poll counts, retry counts, adapter endpoints) on top
of go-playground/validator.

Usage:

	import "github.com/busline/msgbus/pkg/validator"

	v := validator.New()

	// Validate struct
	err := v.ValidateStruct(myStruct)

	// Validate single value
	err := v.ValidateVar(email, "required,email")
*/
package validator
