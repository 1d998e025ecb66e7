package protocol

import (
	"encoding/binary"
	"fmt"
)

// ICMP protocol identities.
const (
	ICMPv4Name = "icmpv4"
	ICMPv4ID   = 1
	ICMPv6Name = "icmpv6"
	ICMPv6ID   = 58
)

// ICMPv4 message types used by the probing engine.
const (
	ICMPv4EchoReply        = 0
	ICMPv4DestUnreachable  = 3
	ICMPv4EchoRequest      = 8
	ICMPv4TimeExceeded     = 11
	ICMPv4ParameterProblem = 12
)

// ICMPv6 message types used by the probing engine.
const (
	ICMPv6DestUnreachable  = 1
	ICMPv6PacketTooBig     = 2
	ICMPv6TimeExceeded     = 3
	ICMPv6ParameterProblem = 4
	ICMPv6EchoRequest      = 128
	ICMPv6EchoReply        = 129
)

func icmpFields(defaultType uint64) []Field {
	return []Field{
		{Key: "type", Offset: 0, Width: 8, Default: defaultType},
		{Key: "code", Offset: 8, Width: 8},
		{Key: "checksum", Offset: 16, Width: 16},
		{Key: "identifier", Offset: 32, Width: 16},
		{Key: "sequence", Offset: 48, Width: 16},
	}
}

// ICMPv4 describes the ICMP header (RFC 792). Error messages carry the
// offending IPv4 datagram, which NextProtocol exposes for decoding.
type ICMPv4 struct {
	header
}

// NewICMPv4 returns the ICMPv4 descriptor. The default message is an echo
// request.
func NewICMPv4() *ICMPv4 {
	return &ICMPv4{header{
		name:   ICMPv4Name,
		id:     ICMPv4ID,
		length: 8,
		fields: icmpFields(ICMPv4EchoRequest),
	}}
}

// NeedsExternalChecksum is false: the ICMPv4 checksum covers the message only.
func (p *ICMPv4) NeedsExternalChecksum() bool { return false }

// WriteChecksum computes the checksum over the whole ICMP message.
func (p *ICMPv4) WriteChecksum(segment, _ []byte) error {
	return writeChecksum(segment, 2, nil, false)
}

// InstanceOf reports whether b starts with a known ICMPv4 message type.
func (p *ICMPv4) InstanceOf(b []byte) bool {
	if len(b) < p.length {
		return false
	}
	switch b[0] {
	case ICMPv4EchoReply, ICMPv4DestUnreachable, 4, 5, ICMPv4EchoRequest,
		ICMPv4TimeExceeded, ICMPv4ParameterProblem, 13, 14:
		return b[1] <= 15
	}
	return false
}

// NextProtocol reports the quoted IPv4 datagram of error messages.
func (p *ICMPv4) NextProtocol(hdr []byte) (uint8, bool) {
	if len(hdr) < 1 {
		return 0, false
	}
	switch hdr[0] {
	case ICMPv4DestUnreachable, ICMPv4TimeExceeded, ICMPv4ParameterProblem:
		return IPv4ID, true
	}
	return 0, false
}

// ICMPv6 describes the ICMPv6 header (RFC 4443). Its checksum includes the
// IPv6 pseudo-header.
type ICMPv6 struct {
	header
}

// NewICMPv6 returns the ICMPv6 descriptor. The default message is an echo
// request.
func NewICMPv6() *ICMPv6 {
	return &ICMPv6{header{
		name:   ICMPv6Name,
		id:     ICMPv6ID,
		length: 8,
		fields: icmpFields(ICMPv6EchoRequest),
	}}
}

// NeedsExternalChecksum is true.
func (p *ICMPv6) NeedsExternalChecksum() bool { return true }

// WriteChecksum computes the checksum over pseudo-header and message.
func (p *ICMPv6) WriteChecksum(segment, pseudo []byte) error {
	return writeChecksum(segment, 2, pseudo, false)
}

// InstanceOf reports whether b starts with an ICMPv6 error type or a known
// informational type (echo and neighbor discovery).
func (p *ICMPv6) InstanceOf(b []byte) bool {
	if len(b) < p.length {
		return false
	}
	t := b[0]
	return (t >= ICMPv6DestUnreachable && t <= ICMPv6ParameterProblem) || (t >= ICMPv6EchoRequest && t <= 137)
}

// NextProtocol reports the quoted IPv6 packet of error messages.
func (p *ICMPv6) NextProtocol(hdr []byte) (uint8, bool) {
	if len(hdr) < 1 {
		return 0, false
	}
	switch hdr[0] {
	case ICMPv6DestUnreachable, ICMPv6PacketTooBig, ICMPv6TimeExceeded, ICMPv6ParameterProblem:
		return IPv6ID, true
	}
	return 0, false
}

// writeChecksum zeroes the 16-bit checksum at off, sums pseudo and segment
// and stores the result. With nonZero set a computed zero is sent as 0xFFFF.
func writeChecksum(segment []byte, off int, pseudo []byte, nonZero bool) error {
	if len(segment) < off+2 {
		return fmt.Errorf("%w: checksum at offset %d of %d-byte segment", ErrShortBuffer, off, len(segment))
	}
	binary.BigEndian.PutUint16(segment[off:off+2], 0)
	c := ChecksumParts(pseudo, segment)
	if nonZero && c == 0 {
		c = 0xffff
	}
	binary.BigEndian.PutUint16(segment[off:off+2], c)
	return nil
}
