package protocol

import (
	"encoding/binary"
	"fmt"
)

// IPv6 protocol identity.
const (
	IPv6Name = "ipv6"
	IPv6ID   = 41
)

// IPv6 describes the fixed IPv6 header (RFC 8200). Extension headers are
// not decoded.
type IPv6 struct {
	header
}

// NewIPv6 returns the IPv6 descriptor.
func NewIPv6() *IPv6 {
	return &IPv6{header{
		name:   IPv6Name,
		id:     IPv6ID,
		length: 40,
		fields: []Field{
			{Key: "version", Offset: 0, Width: 4, Default: 6},
			{Key: "traffic_class", Offset: 4, Width: 8},
			{Key: "flow_label", Offset: 12, Width: 20},
			{Key: "length", Offset: 32, Width: 16},
			{Key: "next_header", Offset: 48, Width: 8},
			{Key: "hop_limit", Offset: 56, Width: 8, Default: 64},
			{Key: "src_ip", Offset: 64, Width: 128, Kind: KindIPv6},
			{Key: "dst_ip", Offset: 192, Width: 128, Kind: KindIPv6},
		},
	}}
}

// InstanceOf reports whether b starts with an IPv6 version nibble.
func (p *IPv6) InstanceOf(b []byte) bool {
	return len(b) > 0 && b[0]>>4 == 6
}

// Finalize stores the payload length.
func (p *IPv6) Finalize(segment []byte) error {
	if len(segment) < p.length {
		return fmt.Errorf("%w: ipv6 header of %d bytes", ErrShortBuffer, len(segment))
	}
	return p.field("length").SetUint(segment, uint64(len(segment)-p.length))
}

// PseudoHeader builds the 40-byte pseudo-header of RFC 8200 section 8.1.
func (p *IPv6) PseudoHeader(hdr []byte, next uint8, length int) ([]byte, error) {
	if len(hdr) < p.length {
		return nil, fmt.Errorf("%w: ipv6 header of %d bytes", ErrShortBuffer, len(hdr))
	}
	ph := make([]byte, 40)
	copy(ph[0:32], hdr[8:40])
	binary.BigEndian.PutUint32(ph[32:36], uint32(length))
	ph[39] = next
	return ph, nil
}

// NextProtocol returns the next header field.
func (p *IPv6) NextProtocol(hdr []byte) (uint8, bool) {
	if len(hdr) < p.length {
		return 0, false
	}
	return hdr[6], true
}

// SetNextProtocol stores id in the next header field.
func (p *IPv6) SetNextProtocol(hdr []byte, id uint8) error {
	return p.field("next_header").SetUint(hdr, uint64(id))
}
