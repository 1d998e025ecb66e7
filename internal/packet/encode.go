// Package packet serialises protocol layer stacks to wire bytes and decodes
// wire bytes back into layers using a protocol registry.
package packet

import (
	"fmt"
	"sort"

	"github.com/KilimcininKorOglu/parisprobe/internal/buffer"
	"github.com/KilimcininKorOglu/parisprobe/internal/protocol"
)

// Values binds field names to values. Accepted value types are those of
// protocol.Field.Set.
type Values map[string]any

// Layer is one protocol header to be encoded, with the field values that
// override the protocol defaults.
type Layer struct {
	Protocol protocol.Protocol
	Values   Values
}

// NewLayer looks up name in reg and returns a layer bound to values.
func NewLayer(reg *protocol.Registry, name string, values Values) (Layer, error) {
	p, ok := reg.ByName(name)
	if !ok {
		return Layer{}, fmt.Errorf("%w: %q", ErrUnknownProtocol, name)
	}
	return Layer{Protocol: p, Values: values}, nil
}

// Encode serialises layers (outermost first) followed by payload.
//
// Headers are written outer to inner: default header, link to the next
// layer, bound values, then Finalize on the layer's segment. Checksums are
// computed afterwards from the innermost layer outwards so that a layer's
// checksum always covers final bytes; transport layers obtain their
// pseudo-header from the nearest enclosing network layer.
func Encode(layers []Layer, payload []byte) ([]byte, error) {
	if len(layers) == 0 {
		return nil, ErrNoLayers
	}

	total := len(payload)
	for _, l := range layers {
		total += l.Protocol.HeaderLen()
	}
	buf := buffer.New(total)

	offsets := make([]int, len(layers))
	off := 0
	for i, l := range layers {
		offsets[i] = off
		off += l.Protocol.HeaderLen()
	}
	copy(buf.Bytes()[off:], payload)

	for i, l := range layers {
		p := l.Protocol
		hdr, err := buf.Slice(offsets[i], p.HeaderLen())
		if err != nil {
			return nil, err
		}
		p.WriteDefaultHeader(hdr)

		if i+1 < len(layers) {
			if lk, ok := p.(protocol.Linker); ok {
				if err := lk.SetNextProtocol(hdr, layers[i+1].Protocol.ID()); err != nil {
					return nil, fmt.Errorf("%s: %w", p.Name(), err)
				}
			}
		}

		if err := bind(p, hdr, l.Values); err != nil {
			return nil, err
		}

		if fin, ok := p.(protocol.Finalizer); ok {
			segment, _ := buf.Tail(offsets[i])
			if err := fin.Finalize(segment); err != nil {
				return nil, fmt.Errorf("%s: failed to finalize: %w", p.Name(), err)
			}
		}
	}

	for i := len(layers) - 1; i >= 0; i-- {
		p := layers[i].Protocol
		cs, ok := p.(protocol.Checksummer)
		if !ok {
			continue
		}
		segment, _ := buf.Tail(offsets[i])

		var pseudo []byte
		if cs.NeedsExternalChecksum() {
			var err error
			pseudo, err = pseudoHeader(layers[:i], offsets, buf, p.ID(), len(segment))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.Name(), err)
			}
		}
		if err := cs.WriteChecksum(segment, pseudo); err != nil {
			return nil, fmt.Errorf("%s: failed to write checksum: %w", p.Name(), err)
		}
	}

	return buf.Bytes(), nil
}

// bind writes the bound values into hdr in a stable order.
func bind(p protocol.Protocol, hdr []byte, values Values) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		f, ok := protocol.FieldByName(p, k)
		if !ok {
			return fmt.Errorf("%s: %w: %q", p.Name(), protocol.ErrUnknownField, k)
		}
		if err := f.Set(hdr, values[k]); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

// pseudoHeader asks the nearest enclosing layer able to build one.
func pseudoHeader(outer []Layer, offsets []int, buf *buffer.Buffer, next uint8, length int) ([]byte, error) {
	for j := len(outer) - 1; j >= 0; j-- {
		ph, ok := outer[j].Protocol.(protocol.PseudoHeaderer)
		if !ok {
			continue
		}
		hdr, err := buf.Slice(offsets[j], outer[j].Protocol.HeaderLen())
		if err != nil {
			return nil, err
		}
		return ph.PseudoHeader(hdr, next, length)
	}
	return nil, ErrNoPseudoHeader
}
