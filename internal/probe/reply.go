package probe

import (
	"net/netip"
	"time"

	"github.com/KilimcininKorOglu/parisprobe/internal/packet"
)

// Kind classifies a reply.
type Kind int

const (
	// KindReply is an answer from the probed host itself
	// (echo reply, TCP segment)
	KindReply Kind = iota
	// KindTimeExceeded is an ICMP time exceeded message from a router
	KindTimeExceeded
	// KindUnreachable is an ICMP destination unreachable message
	KindUnreachable
	// KindError is any other ICMP error quoting the probe
	KindError
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindTimeExceeded:
		return "time-exceeded"
	case KindUnreachable:
		return "unreachable"
	case KindError:
		return "icmp-error"
	default:
		return "unknown"
	}
}

// Match is what a skeleton extracts from a reply that belongs to it.
type Match struct {
	Tag      uint16
	Kind     Kind
	Src      netip.Addr
	ICMPType uint8
	ICMPCode uint8
	TTL      uint8
}

// Reply is a received packet correlated with the probe that caused it.
type Reply struct {
	// Probe is the probe this reply answers
	Probe *Probe

	// Src is the address that sent the reply
	Src netip.Addr

	// ReceivedAt is the receive timestamp
	ReceivedAt time.Time

	// Packet holds the decoded reply
	Packet *packet.Packet

	// Kind classifies the reply
	Kind Kind

	// ICMPType and ICMPCode are set for ICMP replies
	ICMPType uint8
	ICMPCode uint8

	// TTL is the remaining TTL of the reply packet
	TTL uint8
}

// NewReply binds a match to its probe.
func NewReply(p *Probe, m Match, pkt *packet.Packet, receivedAt time.Time) *Reply {
	return &Reply{
		Probe:      p,
		Src:        m.Src,
		ReceivedAt: receivedAt,
		Packet:     pkt,
		Kind:       m.Kind,
		ICMPType:   m.ICMPType,
		ICMPCode:   m.ICMPCode,
		TTL:        m.TTL,
	}
}

// RTT returns the round-trip time, or zero when the send time is unknown.
func (r *Reply) RTT() time.Duration {
	if r.Probe == nil || r.Probe.SentAt.IsZero() {
		return 0
	}
	return r.ReceivedAt.Sub(r.Probe.SentAt)
}
