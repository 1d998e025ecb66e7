// Package output provides formatting and output functionality for trace and
// ping results.
package output

import (
	"fmt"
	"strings"

	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
)

// Format represents the output format type.
type Format int

const (
	// FormatText is the classic traceroute/ping output
	FormatText Format = iota
	// FormatVerbose is the detailed table output
	FormatVerbose
	// FormatJSON is JSON output
	FormatJSON
	// FormatCSV is CSV output
	FormatCSV
)

// String returns the string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatVerbose:
		return "verbose"
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "verbose", "table":
		return FormatVerbose, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	}
	return FormatText, fmt.Errorf("unknown output format %q", s)
}

// Formatter defines the interface for output formatters.
type Formatter interface {
	// Format converts a TraceResult to formatted output bytes.
	Format(result *trace.TraceResult) ([]byte, error)

	// FormatPing converts a PingResult to formatted output bytes.
	FormatPing(result *trace.PingResult) ([]byte, error)

	// ContentType returns the MIME type for the output.
	ContentType() string

	// FileExtension returns the typical file extension for the output.
	FileExtension() string
}

// Config holds configuration for formatters.
type Config struct {
	// Colors enables ANSI color output
	Colors bool

	// NoHostname disables hostname display
	NoHostname bool

	// MaxHops is shown in the traceroute header (0 = number of hops)
	MaxHops int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Colors: true,
	}
}

// NewFormatter creates a formatter based on the specified format.
func NewFormatter(format Format, config Config) Formatter {
	switch format {
	case FormatText:
		return NewTextFormatter(config)
	case FormatVerbose:
		return NewTableFormatter(config)
	case FormatJSON:
		return NewJSONFormatter(config)
	case FormatCSV:
		return NewCSVFormatter(config)
	default:
		return NewTextFormatter(config)
	}
}

// statusText describes the terminal event of a run.
func statusText(status string) string {
	switch status {
	case trace.EventDestinationReached.String():
		return "destination reached"
	case trace.EventMaxTTLReached.String():
		return "max TTL reached"
	case trace.EventTooManyStars.String():
		return "too many unresponsive hops"
	case trace.EventCancelled.String():
		return "cancelled"
	case "":
		return "unknown"
	}
	return strings.ToLower(status)
}
