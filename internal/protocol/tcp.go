package protocol

import "fmt"

// TCP protocol identity.
const (
	TCPName = "tcp"
	TCPID   = 6
)

// TCP flag bits of header byte 13.
const (
	tcpFIN = 1 << iota
	tcpSYN
	tcpRST
	tcpPSH
	tcpACK
)

// TCP describes the TCP header (RFC 793). Each control flag is a one-bit
// field.
type TCP struct {
	header
}

// NewTCP returns the TCP descriptor. The default segment is a bare SYN.
func NewTCP() *TCP {
	return &TCP{header{
		name:   TCPName,
		id:     TCPID,
		length: 20,
		fields: []Field{
			{Key: "src_port", Offset: 0, Width: 16, Default: 16449},
			{Key: "dst_port", Offset: 16, Width: 16, Default: 16963},
			{Key: "seq_num", Offset: 32, Width: 32},
			{Key: "ack_num", Offset: 64, Width: 32},
			{Key: "data_offset", Offset: 96, Width: 4, Default: 5},
			{Key: "reserved", Offset: 100, Width: 4},
			{Key: "cwr", Offset: 104, Width: 1},
			{Key: "ece", Offset: 105, Width: 1},
			{Key: "urg", Offset: 106, Width: 1},
			{Key: "ack", Offset: 107, Width: 1},
			{Key: "psh", Offset: 108, Width: 1},
			{Key: "rst", Offset: 109, Width: 1},
			{Key: "syn", Offset: 110, Width: 1, Default: 1},
			{Key: "fin", Offset: 111, Width: 1},
			{Key: "window", Offset: 112, Width: 16, Default: 5840},
			{Key: "checksum", Offset: 128, Width: 16},
			{Key: "urgent_pointer", Offset: 144, Width: 16},
		},
	}}
}

// HeaderSize returns the header length announced by the data offset.
func (p *TCP) HeaderSize(hdr []byte) (int, error) {
	if len(hdr) < 13 {
		return 0, fmt.Errorf("%w: tcp header of %d bytes", ErrShortBuffer, len(hdr))
	}
	size := int(hdr[12]>>4) * 4
	if size < p.length {
		return 0, fmt.Errorf("%w: tcp data offset %d", ErrInvalidHeader, size/4)
	}
	return size, nil
}

// InstanceOf reports whether b holds a TCP header: a data offset that fits
// in b, clear reserved bits and at least one of SYN, ACK, RST or FIN.
func (p *TCP) InstanceOf(b []byte) bool {
	if len(b) < p.length {
		return false
	}
	size := int(b[12]>>4) * 4
	if size < p.length || size > len(b) || b[12]&0x0f != 0 {
		return false
	}
	return b[13]&(tcpFIN|tcpSYN|tcpRST|tcpACK) != 0
}

// NextProtocol is always false: the TCP payload is opaque.
func (p *TCP) NextProtocol([]byte) (uint8, bool) { return 0, false }

// NeedsExternalChecksum is true.
func (p *TCP) NeedsExternalChecksum() bool { return true }

// WriteChecksum computes the checksum over pseudo-header and segment.
func (p *TCP) WriteChecksum(segment, pseudo []byte) error {
	return writeChecksum(segment, 16, pseudo, false)
}
