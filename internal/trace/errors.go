package trace

import "errors"

// Trace-related errors.
var (
	// ErrInvalidTTL indicates a TTL is out of valid range (1-255)
	ErrInvalidTTL = errors.New("ttl must be between 1 and 255")

	// ErrInvalidTTLRange indicates the first TTL exceeds the last one
	ErrInvalidTTLRange = errors.New("min ttl must not exceed max ttl")

	// ErrInvalidProbeCount indicates probe count is out of valid range
	ErrInvalidProbeCount = errors.New("probe count must be between 1 and 255")

	// ErrInvalidMaxUndiscovered indicates the undiscovered hop limit is out of range
	ErrInvalidMaxUndiscovered = errors.New("max undiscovered must be between 1 and 255")

	// ErrInvalidCount indicates the ping count is out of range
	ErrInvalidCount = errors.New("count must be between 1 and 65535")

	// ErrInvalidPacketSize indicates a negative packet size
	ErrInvalidPacketSize = errors.New("packet size must not be negative")

	// ErrInvalidInterval indicates a negative interval between probes
	ErrInvalidInterval = errors.New("interval must not be negative")

	// ErrNoDestination indicates no destination address was given
	ErrNoDestination = errors.New("destination address required")

	// ErrNoFactory indicates the machine has nothing to build probes with
	ErrNoFactory = errors.New("probe factory required")

	// ErrProbeAllocation indicates a probe could not be built
	ErrProbeAllocation = errors.New("failed to allocate probe")

	// ErrNotStarted indicates an input arrived before Start
	ErrNotStarted = errors.New("state machine not started")

	// ErrAlreadyStarted indicates Start was called twice
	ErrAlreadyStarted = errors.New("state machine already started")

	// ErrTargetResolution indicates the target could not be resolved
	ErrTargetResolution = errors.New("could not resolve target hostname")

	// ErrTraceIncomplete indicates the trace did not reach the destination
	ErrTraceIncomplete = errors.New("trace did not reach destination")
)
