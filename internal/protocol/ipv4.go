package protocol

import (
	"encoding/binary"
	"fmt"
)

// IPv4 protocol identity.
const (
	IPv4Name = "ipv4"
	IPv4ID   = 4
)

// IPv4 describes the IPv4 header (RFC 791).
type IPv4 struct {
	header
}

// NewIPv4 returns the IPv4 descriptor.
func NewIPv4() *IPv4 {
	return &IPv4{header{
		name:   IPv4Name,
		id:     IPv4ID,
		length: 20,
		fields: []Field{
			{Key: "version", Offset: 0, Width: 4, Default: 4},
			{Key: "ihl", Offset: 4, Width: 4, Default: 5},
			{Key: "tos", Offset: 8, Width: 8},
			{Key: "length", Offset: 16, Width: 16, Default: 20},
			{Key: "identification", Offset: 32, Width: 16},
			{Key: "flags", Offset: 48, Width: 3},
			{Key: "fragment_offset", Offset: 51, Width: 13},
			{Key: "ttl", Offset: 64, Width: 8, Default: 64},
			{Key: "protocol", Offset: 72, Width: 8},
			{Key: "checksum", Offset: 80, Width: 16},
			{Key: "src_ip", Offset: 96, Width: 32, Kind: KindIPv4},
			{Key: "dst_ip", Offset: 128, Width: 32, Kind: KindIPv4},
		},
	}}
}

// HeaderSize returns the header length announced by the IHL field.
func (p *IPv4) HeaderSize(hdr []byte) (int, error) {
	if len(hdr) < 1 {
		return 0, fmt.Errorf("%w: empty ipv4 header", ErrShortBuffer)
	}
	ihl := int(hdr[0]&0x0f) * 4
	if ihl < p.length {
		return 0, fmt.Errorf("%w: ipv4 ihl %d", ErrInvalidHeader, ihl/4)
	}
	return ihl, nil
}

// InstanceOf reports whether b starts with an IPv4 version nibble and a
// header length of at least 20 bytes.
func (p *IPv4) InstanceOf(b []byte) bool {
	return len(b) > 0 && b[0]>>4 == 4 && int(b[0]&0x0f)*4 >= p.length
}

// Finalize stores the total length.
func (p *IPv4) Finalize(segment []byte) error {
	if len(segment) > 0xffff {
		return fmt.Errorf("%w: ipv4 datagram of %d bytes", ErrFieldOverflow, len(segment))
	}
	return p.field("length").SetUint(segment, uint64(len(segment)))
}

// NeedsExternalChecksum is false: the IPv4 checksum covers the header only.
func (p *IPv4) NeedsExternalChecksum() bool { return false }

// WriteChecksum computes the header checksum.
func (p *IPv4) WriteChecksum(segment, _ []byte) error {
	size, err := p.HeaderSize(segment)
	if err != nil {
		return err
	}
	if len(segment) < size {
		return fmt.Errorf("%w: ipv4 header of %d bytes", ErrShortBuffer, len(segment))
	}
	binary.BigEndian.PutUint16(segment[10:12], 0)
	binary.BigEndian.PutUint16(segment[10:12], Checksum(segment[:size]))
	return nil
}

// PseudoHeader builds the 12-byte pseudo-header of RFC 768 / RFC 793.
func (p *IPv4) PseudoHeader(hdr []byte, next uint8, length int) ([]byte, error) {
	if len(hdr) < p.length {
		return nil, fmt.Errorf("%w: ipv4 header of %d bytes", ErrShortBuffer, len(hdr))
	}
	if length > 0xffff {
		return nil, fmt.Errorf("%w: ipv4 payload of %d bytes", ErrFieldOverflow, length)
	}
	ph := make([]byte, 12)
	copy(ph[0:8], hdr[12:20])
	ph[9] = next
	binary.BigEndian.PutUint16(ph[10:12], uint16(length))
	return ph, nil
}

// NextProtocol returns the protocol field.
func (p *IPv4) NextProtocol(hdr []byte) (uint8, bool) {
	if len(hdr) < p.length {
		return 0, false
	}
	return hdr[9], true
}

// SetNextProtocol stores id in the protocol field.
func (p *IPv4) SetNextProtocol(hdr []byte, id uint8) error {
	return p.field("protocol").SetUint(hdr, uint64(id))
}
