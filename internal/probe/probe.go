// Package probe provides the probe and reply records exchanged with the
// probing state machine, and the skeleton that builds tagged probes and
// recognises the replies they trigger.
package probe

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/KilimcininKorOglu/parisprobe/internal/packet"
)

// Method represents the transport used by probes.
type Method int

const (
	// MethodICMP uses ICMP Echo Request packets
	MethodICMP Method = iota
	// MethodUDP uses UDP packets to high ports
	MethodUDP
	// MethodTCP uses TCP SYN (or ACK) segments
	MethodTCP
)

// String returns the string representation of the probe method.
func (m Method) String() string {
	switch m {
	case MethodICMP:
		return "icmp"
	case MethodUDP:
		return "udp"
	case MethodTCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// ParseMethod converts a method name to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "icmp":
		return MethodICMP, nil
	case "udp":
		return MethodUDP, nil
	case "tcp":
		return MethodTCP, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Probe is one packet sent towards the destination.
type Probe struct {
	// Tag identifies the probe in the replies it triggers
	Tag uint16

	// TTL is the IP time-to-live (hop limit) the probe is sent with
	TTL uint8

	// Index is the position of the probe within its hop
	Index int

	// Dst is the destination address
	Dst netip.Addr

	// Layers is the protocol stack, outermost first
	Layers []packet.Layer

	// Payload follows the innermost header
	Payload []byte

	// Bytes holds the encoded packet once Encode succeeded
	Bytes []byte

	// SentAt is set by the sender when the probe leaves
	SentAt time.Time
}

// Encode serialises the probe into Bytes.
func (p *Probe) Encode() error {
	b, err := packet.Encode(p.Layers, p.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode probe %d: %w", p.Tag, err)
	}
	p.Bytes = b
	return nil
}

// String returns a short description used in logs.
func (p *Probe) String() string {
	return fmt.Sprintf("probe{tag=%d ttl=%d dst=%s}", p.Tag, p.TTL, p.Dst)
}
