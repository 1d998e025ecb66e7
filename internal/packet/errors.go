package packet

import "errors"

// Codec errors.
var (
	// ErrTruncated indicates the data ends inside a header
	ErrTruncated = errors.New("packet truncated")

	// ErrUnknownProtocol indicates no registered protocol recognised the data
	ErrUnknownProtocol = errors.New("unknown protocol")

	// ErrNoPseudoHeader indicates a layer needs a pseudo-header but no
	// enclosing network layer can build one
	ErrNoPseudoHeader = errors.New("no enclosing layer provides a pseudo-header")

	// ErrNoLayers indicates an attempt to encode an empty layer stack
	ErrNoLayers = errors.New("no layers to encode")

	// ErrNoLayer indicates a decoded packet lacks the requested layer
	ErrNoLayer = errors.New("layer not present")
)
