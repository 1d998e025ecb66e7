package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResize(t *testing.T) {
	b := FromBytes([]byte{1, 2, 3, 4})

	b.Resize(2)
	assert.Equal(t, []byte{1, 2}, b.Bytes())

	// Regrowing within capacity must not resurrect old bytes.
	b.Resize(4)
	assert.Equal(t, []byte{1, 2, 0, 0}, b.Bytes())

	b.Resize(10)
	assert.Equal(t, 10, b.Len())
	assert.Equal(t, byte(0), b.Bytes()[9])
}

func TestSlice(t *testing.T) {
	b := New(8)

	s, err := b.Slice(2, 4)
	require.NoError(t, err)
	s[0] = 0xaa
	assert.Equal(t, byte(0xaa), b.Bytes()[2], "slice aliases buffer")

	_, err = b.Slice(6, 4)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = b.Slice(-1, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	tail, err := b.Tail(5)
	require.NoError(t, err)
	assert.Len(t, tail, 3)
}

func TestClone(t *testing.T) {
	b := FromBytes([]byte{1, 2})
	c := b.Clone()
	c.Bytes()[0] = 9
	assert.Equal(t, byte(1), b.Bytes()[0])
}
