package probe

import "errors"

// Probe-related errors.
var (
	// ErrInvalidTTL indicates the TTL value is out of range
	ErrInvalidTTL = errors.New("TTL must be between 1 and 255")

	// ErrPacketSize indicates the requested packet cannot hold the headers
	ErrPacketSize = errors.New("packet size too small for protocol headers")

	// ErrAddressFamily indicates source and destination families differ
	ErrAddressFamily = errors.New("source and destination address families differ")

	// ErrInvalidAddress indicates a missing or unusable address
	ErrInvalidAddress = errors.New("invalid address")

	// ErrUnknownMethod indicates an unsupported probe method name
	ErrUnknownMethod = errors.New("unknown probe method")

	// ErrInvalidFlowLabel indicates an IPv6 flow label wider than 20 bits
	ErrInvalidFlowLabel = errors.New("flow label out of range")
)

// IsPacketSizeError returns true if the error is a packet size error.
func IsPacketSizeError(err error) bool {
	return errors.Is(err, ErrPacketSize)
}
