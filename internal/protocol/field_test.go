package protocol

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldUnalignedRoundTrip(t *testing.T) {
	hdr := make([]byte, 4)
	hi := Field{Key: "hi", Offset: 0, Width: 4}
	mid := Field{Key: "mid", Offset: 4, Width: 13}
	lo := Field{Key: "lo", Offset: 17, Width: 15}

	require.NoError(t, hi.SetUint(hdr, 0xa))
	require.NoError(t, mid.SetUint(hdr, 0x1abc))
	require.NoError(t, lo.SetUint(hdr, 0x7001))

	v, err := hi.Uint(hdr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xa), v)

	v, err = mid.Uint(hdr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1abc), v)

	v, err = lo.Uint(hdr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7001), v)

	// Rewriting a neighbour must not disturb the others.
	require.NoError(t, mid.SetUint(hdr, 0))
	v, _ = hi.Uint(hdr)
	assert.Equal(t, uint64(0xa), v)
	v, _ = lo.Uint(hdr)
	assert.Equal(t, uint64(0x7001), v)
}

func TestFieldOverflow(t *testing.T) {
	hdr := make([]byte, 2)
	f := Field{Key: "four", Offset: 0, Width: 4}

	assert.ErrorIs(t, f.SetUint(hdr, 16), ErrFieldOverflow)
	assert.ErrorIs(t, f.Set(hdr, -1), ErrFieldOverflow)
	assert.NoError(t, f.SetUint(hdr, 15))
	assert.Equal(t, byte(0xf0), hdr[0])
}

func TestFieldShortBuffer(t *testing.T) {
	f := Field{Key: "word", Offset: 16, Width: 16}
	_, err := f.Uint(make([]byte, 3))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestFieldAddress(t *testing.T) {
	hdr := make([]byte, 20)
	ip := NewIPv4()
	dst, ok := FieldByName(ip, "dst_ip")
	require.True(t, ok)

	addr := netip.MustParseAddr("192.0.2.7")
	require.NoError(t, dst.Set(hdr, addr))
	assert.Equal(t, []byte{192, 0, 2, 7}, hdr[16:20])

	got, err := dst.Get(hdr)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	assert.ErrorIs(t, dst.Set(hdr, netip.MustParseAddr("2001:db8::1")), ErrFieldType)
	assert.ErrorIs(t, dst.Set(hdr, "192.0.2.7"), ErrFieldType)
}

func TestFieldBool(t *testing.T) {
	hdr := make([]byte, 20)
	syn, ok := FieldByName(NewTCP(), "syn")
	require.True(t, ok)

	require.NoError(t, syn.Set(hdr, true))
	assert.Equal(t, byte(0x02), hdr[13])
	require.NoError(t, syn.Set(hdr, false))
	assert.Equal(t, byte(0x00), hdr[13])
}
