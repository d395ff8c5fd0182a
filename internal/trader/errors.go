package trader

import "errors"

var (
	// ErrDegenerateSensitivity is returned when A+B resolves to zero, which
	// leaves the quote formula undefined.
	ErrDegenerateSensitivity = errors.New("degenerate price sensitivity: A+B is zero")

	// ErrInvalidParams is returned for a memory length below one or an
	// initial state outside {-1, 0, 1}.
	ErrInvalidParams = errors.New("invalid trader parameters")
)
