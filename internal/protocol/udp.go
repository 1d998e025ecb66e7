package protocol

import (
	"encoding/binary"
	"fmt"
)

// UDP protocol identity.
const (
	UDPName = "udp"
	UDPID   = 17
)

// UDP describes the UDP header (RFC 768).
type UDP struct {
	header
}

// NewUDP returns the UDP descriptor.
func NewUDP() *UDP {
	return &UDP{header{
		name:   UDPName,
		id:     UDPID,
		length: 8,
		fields: []Field{
			{Key: "src_port", Offset: 0, Width: 16, Default: 33456},
			{Key: "dst_port", Offset: 16, Width: 16, Default: 33457},
			{Key: "length", Offset: 32, Width: 16, Default: 8},
			{Key: "checksum", Offset: 48, Width: 16},
		},
	}}
}

// InstanceOf reports whether b holds a UDP header whose length field covers
// at least the header and no less than b. Quoted datagrams are usually
// truncated, so a length beyond b is accepted.
func (p *UDP) InstanceOf(b []byte) bool {
	if len(b) < p.length {
		return false
	}
	l := int(binary.BigEndian.Uint16(b[4:6]))
	return l >= p.length && l >= len(b)
}

// NextProtocol is always false: the UDP payload is opaque.
func (p *UDP) NextProtocol([]byte) (uint8, bool) { return 0, false }

// Finalize stores the datagram length.
func (p *UDP) Finalize(segment []byte) error {
	if len(segment) > 0xffff {
		return fmt.Errorf("%w: udp datagram of %d bytes", ErrFieldOverflow, len(segment))
	}
	return p.field("length").SetUint(segment, uint64(len(segment)))
}

// NeedsExternalChecksum is true.
func (p *UDP) NeedsExternalChecksum() bool { return true }

// WriteChecksum computes the checksum over pseudo-header and datagram. A
// computed zero is transmitted as 0xFFFF since zero means "no checksum".
func (p *UDP) WriteChecksum(segment, pseudo []byte) error {
	return writeChecksum(segment, 6, pseudo, true)
}
