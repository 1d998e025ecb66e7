package protocol

import "errors"

// Protocol-related errors.
var (
	// ErrDuplicateProtocol indicates a protocol name or id is already registered
	ErrDuplicateProtocol = errors.New("protocol already registered")

	// ErrFieldOverflow indicates a value does not fit in the field width
	ErrFieldOverflow = errors.New("value does not fit in field")

	// ErrUnknownField indicates the protocol has no field with that name
	ErrUnknownField = errors.New("unknown field")

	// ErrFieldType indicates a value of the wrong type was bound to a field
	ErrFieldType = errors.New("unsupported value type for field")

	// ErrShortBuffer indicates a header buffer is too small for a field
	ErrShortBuffer = errors.New("buffer too short for field")

	// ErrInvalidHeader indicates a header carries an impossible length
	ErrInvalidHeader = errors.New("invalid header")
)
