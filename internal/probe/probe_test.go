package probe

import (
	"encoding/binary"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/parisprobe/internal/packet"
	"github.com/KilimcininKorOglu/parisprobe/internal/protocol"
)

var (
	src    = netip.MustParseAddr("192.0.2.1")
	dst    = netip.MustParseAddr("198.51.100.9")
	router = netip.MustParseAddr("203.0.113.5")
	src6   = netip.MustParseAddr("2001:db8::1")
	dst6   = netip.MustParseAddr("2001:db8::99")
)

func decode(t *testing.T, raw []byte) *packet.Packet {
	t.Helper()
	pkt, err := packet.Decode(raw)
	require.NoError(t, err)
	return pkt
}

func encode(t *testing.T, payload []byte, ls ...packet.Layer) []byte {
	t.Helper()
	raw, err := packet.Encode(ls, payload)
	require.NoError(t, err)
	return raw
}

func layer(t *testing.T, name string, v packet.Values) packet.Layer {
	t.Helper()
	l, err := packet.NewLayer(protocol.Default(), name, v)
	require.NoError(t, err)
	return l
}

// timeExceeded builds the ICMP error a router would send for p, quoting
// only the IP header and 8 transport bytes.
func timeExceeded(t *testing.T, p *Probe, from netip.Addr) []byte {
	t.Helper()
	quote := p.Bytes[:28]
	return encode(t, quote,
		layer(t, "ipv4", packet.Values{"src_ip": from, "dst_ip": src}),
		layer(t, "icmpv4", packet.Values{"type": protocol.ICMPv4TimeExceeded}),
	)
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"icmp", MethodICMP, false},
		{"UDP", MethodUDP, false},
		{"tcp", MethodTCP, false},
		{"sctp", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownMethod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
}

func TestUDPChecksumCarriesTag(t *testing.T) {
	s := NewSkeleton(MethodUDP, src, dst)

	for _, tag := range []uint16{1, 2, 0x00ff, 0x8000, 0xfffe, 0xffff} {
		p, err := s.Build(5, tag)
		require.NoError(t, err)

		pkt := decode(t, p.Bytes)
		udp, ok := pkt.Layer("udp")
		require.True(t, ok)

		sum, err := udp.Uint("checksum")
		require.NoError(t, err)
		assert.Equal(t, uint64(tag), sum, "tag %#x", tag)

		ip, _ := pkt.Layer("ipv4")
		ph, err := protocol.NewIPv4().PseudoHeader(ip.Header, protocol.UDPID, len(udp.Segment))
		require.NoError(t, err)
		assert.True(t, protocol.ValidateChecksum(ph, udp.Segment), "tag %#x", tag)

		// The flow stays constant.
		sp, _ := udp.Uint("src_port")
		dp, _ := udp.Uint("dst_port")
		assert.Equal(t, uint64(DefaultUDPSrcPort), sp)
		assert.Equal(t, uint64(DefaultUDPDstPort), dp)
	}
}

func TestICMPChecksumConstant(t *testing.T) {
	for _, pair := range [][2]netip.Addr{{src, dst}, {src6, dst6}} {
		s := NewSkeleton(MethodICMP, pair[0], pair[1])
		s.Identifier = 0x4242

		var first uint64
		for i, tag := range []uint16{1, 2, 300, 0xabcd} {
			p, err := s.Build(3, tag)
			require.NoError(t, err)

			pkt := decode(t, p.Bytes)
			icmp, ok := pkt.Layer(s.TransportName())
			require.True(t, ok)

			seq, _ := icmp.Uint("sequence")
			assert.Equal(t, uint64(tag), seq)

			sum, _ := icmp.Uint("checksum")
			if i == 0 {
				first = sum
				continue
			}
			assert.Equal(t, first, sum, "%s tag %d", s.TransportName(), tag)
		}
	}
}

func TestTCPSequenceCarriesTag(t *testing.T) {
	s := NewSkeleton(MethodTCP, src, dst)
	s.DstPort = HTTPPort

	p, err := s.Build(9, 77)
	require.NoError(t, err)

	tcp, ok := decode(t, p.Bytes).Layer("tcp")
	require.True(t, ok)
	seq, _ := tcp.Uint("seq_num")
	syn, _ := tcp.Uint("syn")
	assert.Equal(t, uint64(77), seq)
	assert.Equal(t, uint64(1), syn)
}

func TestPacketSize(t *testing.T) {
	s := NewSkeleton(MethodUDP, src, dst)
	assert.Equal(t, 30, s.MinPacketSize())

	s.PacketSize = 29
	assert.ErrorIs(t, s.Validate(), ErrPacketSize)

	s.PacketSize = 60
	p, err := s.Build(1, 1)
	require.NoError(t, err)
	assert.Len(t, p.Bytes, 60)

	tcp := NewSkeleton(MethodTCP, src, dst)
	assert.Equal(t, 40, tcp.MinPacketSize())

	mixed := NewSkeleton(MethodICMP, src6, dst)
	assert.ErrorIs(t, mixed.Validate(), ErrAddressFamily)

	_, err = s.Build(0, 1)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestFlowLabel(t *testing.T) {
	s := NewSkeleton(MethodUDP, src6, dst6)
	s.FlowLabel = 0xbeef
	p, err := s.Build(3, 7)
	require.NoError(t, err)

	ip, ok := decode(t, p.Bytes).Layer(protocol.IPv6Name)
	require.True(t, ok)
	fl, err := ip.Uint("flow_label")
	require.NoError(t, err)
	assert.Equal(t, uint64(0xbeef), fl)

	s.FlowLabel = MaxFlowLabel + 1
	assert.ErrorIs(t, s.Validate(), ErrInvalidFlowLabel)
}

func TestMatchTimeExceeded(t *testing.T) {
	for _, m := range []Method{MethodICMP, MethodUDP, MethodTCP} {
		t.Run(m.String(), func(t *testing.T) {
			s := NewSkeleton(m, src, dst)
			p, err := s.Build(2, 1234)
			require.NoError(t, err)

			got, ok := s.Match(decodeLenient(t, timeExceeded(t, p, router)))
			require.True(t, ok)
			assert.Equal(t, uint16(1234), got.Tag)
			assert.Equal(t, KindTimeExceeded, got.Kind)
			assert.Equal(t, router, got.Src)
			assert.Equal(t, uint8(protocol.ICMPv4TimeExceeded), got.ICMPType)

			// A different flow does not match.
			other := NewSkeleton(m, src, dst)
			other.SrcPort++
			other.Identifier++
			_, ok = other.Match(decodeLenient(t, timeExceeded(t, p, router)))
			assert.False(t, ok)
		})
	}
}

// decodeLenient accepts quotes cut inside the transport header.
func decodeLenient(t *testing.T, raw []byte) *packet.Packet {
	t.Helper()
	pkt, err := packet.Decode(raw)
	if err != nil {
		require.ErrorIs(t, err, packet.ErrTruncated)
	}
	return pkt
}

func TestMatchEchoReply(t *testing.T) {
	s := NewSkeleton(MethodICMP, src, dst)
	s.Identifier = 99

	reply := encode(t, []byte{0, 0},
		layer(t, "ipv4", packet.Values{"src_ip": dst, "dst_ip": src, "ttl": 57}),
		layer(t, "icmpv4", packet.Values{"type": protocol.ICMPv4EchoReply, "identifier": 99, "sequence": 7}),
	)

	got, ok := s.Match(decode(t, reply))
	require.True(t, ok)
	assert.Equal(t, uint16(7), got.Tag)
	assert.Equal(t, KindReply, got.Kind)
	assert.Equal(t, uint8(57), got.TTL)

	s.Identifier = 100
	_, ok = s.Match(decode(t, reply))
	assert.False(t, ok)
}

func TestMatchTCPReply(t *testing.T) {
	s := NewSkeleton(MethodTCP, src, dst)

	synAck := encode(t, nil,
		layer(t, "ipv4", packet.Values{"src_ip": dst, "dst_ip": src}),
		layer(t, "tcp", packet.Values{
			"src_port": s.DstPort, "dst_port": s.SrcPort,
			"syn": 1, "ack": 1, "ack_num": uint32(501),
		}),
	)
	got, ok := s.Match(decode(t, synAck))
	require.True(t, ok)
	assert.Equal(t, uint16(500), got.Tag)

	rst := encode(t, nil,
		layer(t, "ipv4", packet.Values{"src_ip": dst, "dst_ip": src}),
		layer(t, "tcp", packet.Values{
			"src_port": s.DstPort, "dst_port": s.SrcPort,
			"syn": 0, "rst": 1, "seq_num": uint32(42),
		}),
	)
	got, ok = s.Match(decode(t, rst))
	require.True(t, ok)
	assert.Equal(t, uint16(42), got.Tag)
}

func TestCompensationWord(t *testing.T) {
	seg := []byte{0x12, 0x34, 0x56, 0x78, 0x00, 0x00}
	current := protocol.Checksum(seg)

	w := CompensationWord(current, 0x0102)
	binary.BigEndian.PutUint16(seg[4:6], w)
	assert.Equal(t, uint16(0x0102), protocol.Checksum(seg))
}

func TestFactoryTags(t *testing.T) {
	f := NewFactory(NewSkeleton(MethodICMP, src, dst))
	f.next = 0xfffe

	assert.Equal(t, uint16(0xffff), f.NextTag())
	assert.Equal(t, uint16(1), f.NextTag())

	p, err := f.Build(4, 2)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), p.Tag)
	assert.Equal(t, 2, p.Index)
	assert.Equal(t, uint8(4), p.TTL)
}

func TestReplyRTT(t *testing.T) {
	sent := time.Unix(100, 0)
	p := &Probe{Tag: 1, SentAt: sent}
	r := NewReply(p, Match{Tag: 1, Src: router}, nil, sent.Add(15*time.Millisecond))

	assert.Equal(t, 15*time.Millisecond, r.RTT())
	assert.Equal(t, router, r.Src)
	assert.Zero(t, (&Reply{}).RTT())
}

func TestCollection(t *testing.T) {
	c := NewCollection(2)
	a, b, d := &Probe{Tag: 1}, &Probe{Tag: 2}, &Probe{Tag: 3}
	c.Add(a)
	c.Add(b)
	c.Add(d)
	require.Equal(t, 3, c.Len())

	assert.True(t, c.Remove(b))
	assert.False(t, c.Remove(b))
	assert.Equal(t, []*Probe{a, d}, c.Probes())

	c.Clear()
	assert.Zero(t, c.Len())
}

func TestCollectionRemoveFunc(t *testing.T) {
	c := NewCollection(4)
	probes := []*Probe{{Tag: 1, TTL: 1}, {Tag: 2, TTL: 2}, {Tag: 3, TTL: 1}, {Tag: 4, TTL: 3}}
	for _, p := range probes {
		c.Add(p)
	}

	removed := c.RemoveFunc(func(p *Probe) bool { return p.TTL == 1 })
	assert.Equal(t, []*Probe{probes[0], probes[2]}, removed)
	assert.Equal(t, []*Probe{probes[1], probes[3]}, c.Probes())

	assert.Empty(t, c.RemoveFunc(func(*Probe) bool { return false }))
	assert.Equal(t, 2, c.Len())

	removed = c.RemoveFunc(func(*Probe) bool { return true })
	assert.Equal(t, []*Probe{probes[1], probes[3]}, removed)
	assert.Zero(t, c.Len())
}
