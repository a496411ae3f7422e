package config

import (
	"reflect"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// Validator is implemented by configuration structs that need checks
// beyond the required tag. Load calls Validate after the required-field
// pass succeeds. Errors that are already *sserr.Error are returned as-is;
// others are wrapped with [sserr.CodeValidation].
//
//	func (c *Config) Validate() error {
//	    if c.MaxRequests <= 0 {
//	        return sserr.Configuration("ratelimit: max requests must be positive")
//	    }
//	    return nil
//	}
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv); err != nil {
		return err
	}

	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			if _, isSSErr := sserr.AsError(err); isSSErr {
				return err
			}
			return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
		}
	}
	return nil
}

// validateRequired checks that every field tagged `required:"true"`
// holds a non-zero value. Error messages carry the dotted field path
// (e.g. "Auth.SigningKey").
func validateRequired(rv reflect.Value) error {
	return requiredAt(rv, "")
}

func requiredAt(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if field.Kind() == reflect.Struct {
			if err := requiredAt(field, fieldPath); err != nil {
				return err
			}
			continue
		}

		if sf.Tag.Get("required") == "true" && field.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}
	return nil
}
