package protocol

import (
	"fmt"
	"net"
	"net/netip"
)

// Kind describes how a field's bits are interpreted.
type Kind int

const (
	// KindUint is an unsigned integer of up to 64 bits
	KindUint Kind = iota
	// KindIPv4 is a 32-bit IPv4 address
	KindIPv4
	// KindIPv6 is a 128-bit IPv6 address
	KindIPv6
	// KindBytes is an opaque byte-aligned blob
	KindBytes
)

// Field describes one named value inside a protocol header. Offset and Width
// are expressed in bits, most significant bit first (network order).
type Field struct {
	Key     string
	Offset  uint
	Width   uint
	Kind    Kind
	Default uint64
}

// byteSpan returns the byte range covering the field.
func (f Field) byteSpan() (int, int) {
	return int(f.Offset / 8), int((f.Offset + f.Width + 7) / 8)
}

func (f Field) check(hdr []byte) error {
	_, end := f.byteSpan()
	if end > len(hdr) {
		return fmt.Errorf("%w: %s needs %d bytes, have %d", ErrShortBuffer, f.Key, end, len(hdr))
	}
	return nil
}

func (f Field) aligned() bool {
	return f.Offset%8 == 0 && f.Width%8 == 0
}

// Uint reads the field as an unsigned integer.
func (f Field) Uint(hdr []byte) (uint64, error) {
	if f.Width > 64 {
		return 0, fmt.Errorf("%w: %s is %d bits wide", ErrFieldType, f.Key, f.Width)
	}
	if err := f.check(hdr); err != nil {
		return 0, err
	}
	var v uint64
	if f.aligned() {
		start, end := f.byteSpan()
		for _, b := range hdr[start:end] {
			v = v<<8 | uint64(b)
		}
		return v, nil
	}
	for i := uint(0); i < f.Width; i++ {
		bit := f.Offset + i
		v = v<<1 | uint64(hdr[bit/8]>>(7-bit%8)&1)
	}
	return v, nil
}

// SetUint writes v into the field. Values wider than the field are rejected.
func (f Field) SetUint(hdr []byte, v uint64) error {
	if f.Width > 64 {
		return fmt.Errorf("%w: %s is %d bits wide", ErrFieldType, f.Key, f.Width)
	}
	if f.Width < 64 && v>>f.Width != 0 {
		return fmt.Errorf("%w: %d in %d-bit field %s", ErrFieldOverflow, v, f.Width, f.Key)
	}
	if err := f.check(hdr); err != nil {
		return err
	}
	if f.aligned() {
		start, end := f.byteSpan()
		for i := end - 1; i >= start; i-- {
			hdr[i] = byte(v)
			v >>= 8
		}
		return nil
	}
	for i := uint(0); i < f.Width; i++ {
		bit := f.Offset + i
		mask := byte(1) << (7 - bit%8)
		if v>>(f.Width-1-i)&1 == 1 {
			hdr[bit/8] |= mask
		} else {
			hdr[bit/8] &^= mask
		}
	}
	return nil
}

// Bytes returns the raw bytes of a byte-aligned field. The slice aliases hdr.
func (f Field) Bytes(hdr []byte) ([]byte, error) {
	if !f.aligned() {
		return nil, fmt.Errorf("%w: %s is not byte aligned", ErrFieldType, f.Key)
	}
	if err := f.check(hdr); err != nil {
		return nil, err
	}
	start, end := f.byteSpan()
	return hdr[start:end], nil
}

// SetBytes copies b into a byte-aligned field; len(b) must match the width.
func (f Field) SetBytes(hdr []byte, b []byte) error {
	dst, err := f.Bytes(hdr)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("%w: %d bytes in %d-byte field %s", ErrFieldOverflow, len(b), len(dst), f.Key)
	}
	copy(dst, b)
	return nil
}

// Get reads the field in its natural Go type: uint64 for integers,
// netip.Addr for addresses and []byte for blobs.
func (f Field) Get(hdr []byte) (any, error) {
	switch f.Kind {
	case KindIPv4, KindIPv6:
		b, err := f.Bytes(hdr)
		if err != nil {
			return nil, err
		}
		addr, _ := netip.AddrFromSlice(b)
		return addr, nil
	case KindBytes:
		b, err := f.Bytes(hdr)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), b...), nil
	default:
		return f.Uint(hdr)
	}
}

// Set writes v into the field, converting from common Go types.
func (f Field) Set(hdr []byte, v any) error {
	switch val := v.(type) {
	case netip.Addr:
		if f.Kind == KindIPv4 && val.Is4() {
			b := val.As4()
			return f.SetBytes(hdr, b[:])
		}
		if f.Kind == KindIPv6 {
			b := val.As16()
			return f.SetBytes(hdr, b[:])
		}
		return fmt.Errorf("%w: address %s for %s", ErrFieldType, val, f.Key)
	case net.IP:
		addr, ok := netip.AddrFromSlice(val)
		if !ok {
			return fmt.Errorf("%w: invalid IP for %s", ErrFieldType, f.Key)
		}
		if f.Kind == KindIPv4 {
			addr = addr.Unmap()
		}
		return f.Set(hdr, addr)
	case []byte:
		return f.SetBytes(hdr, val)
	case bool:
		if val {
			return f.SetUint(hdr, 1)
		}
		return f.SetUint(hdr, 0)
	case uint64:
		return f.SetUint(hdr, val)
	case uint:
		return f.SetUint(hdr, uint64(val))
	case uint8:
		return f.SetUint(hdr, uint64(val))
	case uint16:
		return f.SetUint(hdr, uint64(val))
	case uint32:
		return f.SetUint(hdr, uint64(val))
	case int:
		return f.setInt(hdr, int64(val))
	case int64:
		return f.setInt(hdr, val)
	case int32:
		return f.setInt(hdr, int64(val))
	}
	return fmt.Errorf("%w: %T for %s", ErrFieldType, v, f.Key)
}

func (f Field) setInt(hdr []byte, v int64) error {
	if v < 0 {
		return fmt.Errorf("%w: negative value %d for %s", ErrFieldOverflow, v, f.Key)
	}
	return f.SetUint(hdr, uint64(v))
}

// writeDefaults stores every non-zero integer default into hdr.
func writeDefaults(hdr []byte, fields []Field) {
	for _, f := range fields {
		if f.Kind == KindUint && f.Default != 0 {
			_ = f.SetUint(hdr, f.Default)
		}
	}
}
