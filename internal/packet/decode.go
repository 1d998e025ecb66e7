package packet

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/KilimcininKorOglu/parisprobe/internal/protocol"
)

// DefaultMaxDepth bounds the number of layers Decode walks through.
const DefaultMaxDepth = 8

// Decoded is one parsed protocol header.
type Decoded struct {
	Protocol protocol.Protocol

	// Header holds the header bytes, options included.
	Header []byte

	// Segment holds the header and everything that followed it.
	Segment []byte
}

// Name returns the protocol name.
func (d *Decoded) Name() string {
	return d.Protocol.Name()
}

// Body returns the bytes following the header.
func (d *Decoded) Body() []byte {
	return d.Segment[len(d.Header):]
}

// Get returns the value of a field in its natural type.
func (d *Decoded) Get(field string) (any, error) {
	f, ok := protocol.FieldByName(d.Protocol, field)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", d.Name(), protocol.ErrUnknownField, field)
	}
	return f.Get(d.Header)
}

// Uint returns the value of an integer field.
func (d *Decoded) Uint(field string) (uint64, error) {
	f, ok := protocol.FieldByName(d.Protocol, field)
	if !ok {
		return 0, fmt.Errorf("%s: %w: %q", d.Name(), protocol.ErrUnknownField, field)
	}
	return f.Uint(d.Header)
}

// Addr returns the value of an address field.
func (d *Decoded) Addr(field string) (netip.Addr, error) {
	v, err := d.Get(field)
	if err != nil {
		return netip.Addr{}, err
	}
	addr, ok := v.(netip.Addr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("%s: %w: %q is not an address", d.Name(), protocol.ErrFieldType, field)
	}
	return addr, nil
}

// Packet is the result of decoding wire bytes.
type Packet struct {
	// Layers holds the recognised headers, outermost first.
	Layers []*Decoded

	// Payload holds the bytes no protocol claimed.
	Payload []byte
}

// Layer returns the first layer named name.
func (p *Packet) Layer(name string) (*Decoded, bool) {
	return p.LayerN(name, 0)
}

// LayerN returns the n-th (zero based) layer named name. ICMP errors quote
// the offending datagram, so the same protocol may appear more than once.
func (p *Packet) LayerN(name string, n int) (*Decoded, bool) {
	for _, l := range p.Layers {
		if l.Name() != name {
			continue
		}
		if n == 0 {
			return l, true
		}
		n--
	}
	return nil, false
}

// Names returns the layer names, outermost first.
func (p *Packet) Names() []string {
	names := make([]string, len(p.Layers))
	for i, l := range p.Layers {
		names[i] = l.Name()
	}
	return names
}

// Decoder turns wire bytes into layers.
type Decoder struct {
	Registry *protocol.Registry
	MaxDepth int
}

// NewDecoder returns a decoder over reg with the default depth limit.
func NewDecoder(reg *protocol.Registry) *Decoder {
	return &Decoder{Registry: reg, MaxDepth: DefaultMaxDepth}
}

// Decode parses raw using the process-wide registry.
func Decode(raw []byte) (*Packet, error) {
	return NewDecoder(protocol.Default()).Decode(raw)
}

// Decode parses raw. The first layer is found by sniffing; each following
// layer is chosen by the previous layer's demultiplexing field, or by
// sniffing when the previous layer has none. On ErrTruncated the layers
// decoded so far are returned together with the unparsed remainder.
func (d *Decoder) Decode(raw []byte) (*Packet, error) {
	pkt := &Packet{}
	maxDepth := d.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	p, ok := d.Registry.Sniff(raw)
	if !ok {
		pkt.Payload = raw
		return pkt, ErrUnknownProtocol
	}

	rest := raw
	for depth := 0; ok && depth < maxDepth && len(rest) > 0; depth++ {
		if len(rest) < p.HeaderLen() {
			pkt.Payload = rest
			return pkt, fmt.Errorf("%s: %w: %d of %d header bytes", p.Name(), ErrTruncated, len(rest), p.HeaderLen())
		}
		size, err := p.HeaderSize(rest)
		if err != nil {
			pkt.Payload = rest
			return pkt, fmt.Errorf("%s: %w", p.Name(), err)
		}
		if len(rest) < size {
			pkt.Payload = rest
			return pkt, fmt.Errorf("%s: %w: %d of %d header bytes", p.Name(), ErrTruncated, len(rest), size)
		}

		layer := &Decoded{Protocol: p, Header: rest[:size], Segment: rest}
		pkt.Layers = append(pkt.Layers, layer)
		rest = rest[size:]

		if dm, isDemux := p.(protocol.Demuxer); isDemux {
			var id uint8
			if id, ok = dm.NextProtocol(layer.Header); ok {
				p, ok = d.Registry.ByID(id)
			}
		} else {
			p, ok = d.Registry.Sniff(rest)
		}
	}

	pkt.Payload = rest
	return pkt, nil
}

// IsTruncated reports whether err is a truncation error.
func IsTruncated(err error) bool {
	return errors.Is(err, ErrTruncated)
}
