package trace

import (
	"net/netip"
	"time"
)

// Algorithm selects the exploration algorithm.
type Algorithm int

const (
	// AlgorithmTraceroute walks TTLs until the destination answers
	AlgorithmTraceroute Algorithm = iota
	// AlgorithmPing repeats probes at a single TTL
	AlgorithmPing
)

// String returns the string representation of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmTraceroute:
		return "traceroute"
	case AlgorithmPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Options drive the state machine. They are derived from TracerouteOptions
// or PingOptions.
type Options struct {
	Algorithm   Algorithm
	MinTTL      int
	MaxTTL      int
	NumProbes   int
	Destination netip.Addr
	DoResolve   bool

	// MaxUndiscovered stops the run after that many consecutive hops that
	// revealed no new interface; 0 disables the check.
	MaxUndiscovered int

	// Interval spaces the probes of one hop.
	Interval time.Duration
}

// Validate checks ranges.
func (o *Options) Validate() error {
	if o.MinTTL < 1 || o.MinTTL > 255 || o.MaxTTL < 1 || o.MaxTTL > 255 {
		return ErrInvalidTTL
	}
	if o.MinTTL > o.MaxTTL {
		return ErrInvalidTTLRange
	}
	if o.NumProbes < 1 || o.NumProbes > 65535 {
		return ErrInvalidProbeCount
	}
	if o.MaxUndiscovered < 0 || o.MaxUndiscovered > 255 {
		return ErrInvalidMaxUndiscovered
	}
	if o.Interval < 0 {
		return ErrInvalidInterval
	}
	if !o.Destination.IsValid() {
		return ErrNoDestination
	}
	return nil
}

// TracerouteOptions holds the settings of a traceroute run.
type TracerouteOptions struct {
	MinTTL          int        // First TTL probed (default: 1)
	MaxTTL          int        // Last TTL probed (default: 30)
	NumProbes       int        // Probes per hop (default: 3)
	MaxUndiscovered int        // Consecutive silent hops tolerated (default: 3)
	Destination     netip.Addr // Address being traced
	DoResolve       bool       // Resolve responder names (default: true)
}

// DefaultTracerouteOptions returns options with sensible defaults.
func DefaultTracerouteOptions() TracerouteOptions {
	return TracerouteOptions{
		MinTTL:          1,
		MaxTTL:          30,
		NumProbes:       3,
		MaxUndiscovered: 3,
		DoResolve:       true,
	}
}

// Validate checks if the options are valid.
func (o TracerouteOptions) Validate() error {
	if o.MinTTL < 1 || o.MinTTL > 255 || o.MaxTTL < 1 || o.MaxTTL > 255 {
		return ErrInvalidTTL
	}
	if o.MinTTL > o.MaxTTL {
		return ErrInvalidTTLRange
	}
	if o.NumProbes < 1 || o.NumProbes > 255 {
		return ErrInvalidProbeCount
	}
	if o.MaxUndiscovered < 1 || o.MaxUndiscovered > 255 {
		return ErrInvalidMaxUndiscovered
	}
	if !o.Destination.IsValid() {
		return ErrNoDestination
	}
	return nil
}

// Options converts to machine options.
func (o TracerouteOptions) Options() Options {
	return Options{
		Algorithm:       AlgorithmTraceroute,
		MinTTL:          o.MinTTL,
		MaxTTL:          o.MaxTTL,
		NumProbes:       o.NumProbes,
		MaxUndiscovered: o.MaxUndiscovered,
		Destination:     o.Destination,
		DoResolve:       o.DoResolve,
	}
}

// PingOptions holds the settings of a ping run.
type PingOptions struct {
	TTL           int           // IP TTL of every probe (default: 64)
	Count         int           // Number of echo probes (default: 5)
	PacketSize    int           // Total packet size, 0 for the minimum
	Interval      time.Duration // Delay between probes (default: 1s)
	Quiet         bool          // Only print the summary
	Verbose       bool          // Print ICMP errors as well as replies
	ShowTimestamp bool          // Prefix lines with the receive time
	Destination   netip.Addr    // Address being pinged
	DoResolve     bool          // Resolve responder names (default: true)
}

// DefaultPingOptions returns options with sensible defaults.
func DefaultPingOptions() PingOptions {
	return PingOptions{
		TTL:       64,
		Count:     5,
		Interval:  time.Second,
		DoResolve: true,
	}
}

// Validate checks if the options are valid.
func (o PingOptions) Validate() error {
	if o.TTL < 1 || o.TTL > 255 {
		return ErrInvalidTTL
	}
	if o.Count < 1 || o.Count > 65535 {
		return ErrInvalidCount
	}
	if o.PacketSize < 0 {
		return ErrInvalidPacketSize
	}
	if o.Interval < 0 {
		return ErrInvalidInterval
	}
	if !o.Destination.IsValid() {
		return ErrNoDestination
	}
	return nil
}

// Options converts to machine options: a single hop at TTL with Count
// probes and no undiscovered-hop limit.
func (o PingOptions) Options() Options {
	return Options{
		Algorithm:   AlgorithmPing,
		MinTTL:      o.TTL,
		MaxTTL:      o.TTL,
		NumProbes:   o.Count,
		Interval:    o.Interval,
		Destination: o.Destination,
		DoResolve:   o.DoResolve,
	}
}
