package diffmap

import "github.com/pkg/errors"

// ErrDimensionMismatch is wrapped by every error reporting incompatible map dimensions.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// NewDimensionMismatchError is used when a map is combined with, or registered against,
// something of an incompatible size.
func NewDimensionMismatchError(what string, expected, actual int) error {
	return errors.Wrapf(ErrDimensionMismatch, "%s: expected %d but got %d", what, expected, actual)
}

// CheckDimensions returns a dimension mismatch error unless f maps R^n to R^m.
func CheckDimensions(f Map, n, m int) error {
	if f.InputDimension() != n {
		return NewDimensionMismatchError("input dimension", n, f.InputDimension())
	}
	if f.OutputDimension() != m {
		return NewDimensionMismatchError("output dimension", m, f.OutputDimension())
	}
	return nil
}
