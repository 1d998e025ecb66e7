package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProto is a minimal descriptor whose sniff result is fixed.
type fakeProto struct {
	header
	match bool
}

func newFake(name string, id uint8, match bool) *fakeProto {
	return &fakeProto{
		header: header{name: name, id: id, length: 4, fields: []Field{
			{Key: "word", Offset: 0, Width: 32},
		}},
		match: match,
	}
}

func (p *fakeProto) InstanceOf(b []byte) bool { return p.match }

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))

	for _, p := range Builtins() {
		byName, ok := reg.ByName(p.Name())
		require.True(t, ok, "ByName(%q)", p.Name())
		assert.Equal(t, p.ID(), byName.ID())

		byID, ok := reg.ByID(p.ID())
		require.True(t, ok, "ByID(%d)", p.ID())
		assert.Equal(t, p.Name(), byID.Name())
	}

	_, ok := reg.ByName("sctp")
	assert.False(t, ok)
	_, ok = reg.ByID(132)
	assert.False(t, ok)
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newFake("alpha", 200, false)))

	tests := []struct {
		name  string
		proto Protocol
	}{
		{"same name", newFake("alpha", 201, false)},
		{"same id", newFake("beta", 200, false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.proto)
			assert.ErrorIs(t, err, ErrDuplicateProtocol)
		})
	}

	// Rejected descriptors leave no trace.
	assert.Len(t, reg.Protocols(), 1)
	_, ok := reg.ByName("beta")
	assert.False(t, ok)
	_, ok = reg.ByID(201)
	assert.False(t, ok)
}

func TestRegistrySniffPrecedence(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newFake("never", 100, false)))
	require.NoError(t, reg.Register(newFake("first", 101, true)))
	require.NoError(t, reg.Register(newFake("second", 102, true)))

	p, ok := reg.Sniff([]byte{0, 0, 0, 0})
	require.True(t, ok)
	assert.Equal(t, "first", p.Name())
}

func TestRegistrySniffBuiltins(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))

	tests := []struct {
		name string
		data []byte
		want string
		ok   bool
	}{
		{"ipv4", []byte{0x45, 0x00}, IPv4Name, true},
		{"ipv6", []byte{0x60, 0x00}, IPv6Name, true},
		{"garbage", []byte{0x12}, "", false},
		{"empty", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := reg.Sniff(tt.data)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, p.Name())
			}
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := Default()
	require.NotNil(t, reg)
	assert.Same(t, reg, Default())

	_, ok := reg.ByName(UDPName)
	assert.True(t, ok)

	// Later calls are no-ops.
	assert.NoError(t, InitRegistry(newFake("late", 250, false)))
	_, ok = reg.ByName("late")
	assert.False(t, ok)
}

func TestFieldByName(t *testing.T) {
	udp := NewUDP()

	f, ok := FieldByName(udp, "dst_port")
	require.True(t, ok)
	assert.Equal(t, uint(16), f.Offset)
	assert.Equal(t, uint(16), f.Width)

	_, ok = FieldByName(udp, "window")
	assert.False(t, ok)

	var keys []string
	IterFields(udp, func(f Field) { keys = append(keys, f.Key) })
	assert.Equal(t, []string{"src_port", "dst_port", "length", "checksum"}, keys)
}
