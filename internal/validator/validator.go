package validator

import "github.com/garrettladley/paygate/internal/xerrors"

type Validator interface {
	// Validate validates the fields of the struct and returns a map of errors.
	// returns nil if no errors are found
	Validate() map[string]string
}

// Validate returns an *xerrors.Error carrying the field errors, or nil.
func Validate(v Validator) error {
	if fields := v.Validate(); len(fields) > 0 {
		return xerrors.Validation(fields)
	}
	return nil
}
