// Package buffer provides the growable byte buffer packets are built in.
package buffer

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a slice request exceeds the buffer.
var ErrOutOfRange = errors.New("buffer: range out of bounds")

// Buffer is a resizable byte sequence. The zero value is an empty buffer.
type Buffer struct {
	data []byte
}

// New returns a zero-filled buffer of the given size.
func New(size int) *Buffer {
	if size < 0 {
		size = 0
	}
	return &Buffer{data: make([]byte, size)}
}

// FromBytes returns a buffer holding a copy of b.
func FromBytes(b []byte) *Buffer {
	data := make([]byte, len(b))
	copy(data, b)
	return &Buffer{data: data}
}

// Bytes returns the underlying bytes. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the current size in bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Resize grows or shrinks the buffer to n bytes. Grown bytes are zero.
func (b *Buffer) Resize(n int) {
	if n < 0 {
		n = 0
	}
	if n <= cap(b.data) {
		old := len(b.data)
		b.data = b.data[:n]
		for i := old; i < n; i++ {
			b.data[i] = 0
		}
		return
	}
	data := make([]byte, n)
	copy(data, b.data)
	b.data = data
}

// Slice returns the n bytes starting at off, aliasing the buffer.
func (b *Buffer) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(b.data) {
		return nil, fmt.Errorf("%w: [%d:%d] of %d", ErrOutOfRange, off, off+n, len(b.data))
	}
	return b.data[off : off+n], nil
}

// Tail returns every byte from off to the end of the buffer.
func (b *Buffer) Tail(off int) ([]byte, error) {
	return b.Slice(off, len(b.data)-off)
}

// Clone returns an independent copy.
func (b *Buffer) Clone() *Buffer {
	return FromBytes(b.data)
}
