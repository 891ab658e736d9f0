package value

import (
	"errors"
	"fmt"
)

// ErrMalformedPackage is returned when a package is missing required fields
// or its content cannot be decoded under its declared type.
var ErrMalformedPackage = errors.New("malformed value package")

// ErrNotANumber is returned by ToCty for NaN, which has no cty representation.
var ErrNotANumber = errors.New("NaN cannot be converted to a cty number")

// UnsupportedFormatError is returned when a package declares a format that
// cannot carry its type, such as a table serialized as anything other than
// csv or tsv.
type UnsupportedFormatError struct {
	Type   Type
	Format Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unable to unpack value of type %q from format %q", e.Type, e.Format)
}
