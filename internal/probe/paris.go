package probe

import (
	"encoding/binary"
	"fmt"

	"github.com/KilimcininKorOglu/parisprobe/internal/packet"
	"github.com/KilimcininKorOglu/parisprobe/internal/protocol"
)

// tag embeds the probe tag without touching the flow identifier.
//
//   - ICMP: the tag is the echo sequence; the first payload word is its
//     one's complement so the ICMP checksum is the same for every probe.
//   - UDP: the first payload word is chosen so that the UDP checksum
//     equals the tag.
//   - TCP: the tag is the sequence number.
func (s *Skeleton) tag(p *Probe) error {
	switch s.Method {
	case MethodICMP:
		binary.BigEndian.PutUint16(p.Payload[0:2], ^p.Tag)
		return p.Encode()

	case MethodUDP:
		binary.BigEndian.PutUint16(p.Payload[0:2], 0)
		if err := p.Encode(); err != nil {
			return err
		}
		off := len(p.Bytes) - len(p.Payload) - 2
		current := binary.BigEndian.Uint16(p.Bytes[off : off+2])
		binary.BigEndian.PutUint16(p.Payload[0:2], CompensationWord(current, p.Tag))
		return p.Encode()
	}
	return p.Encode()
}

// CompensationWord returns the 16-bit word that, added to a zero word of a
// segment whose checksum is current, turns the checksum into want.
func CompensationWord(current, want uint16) uint16 {
	return protocol.OnesAdd(^want, current)
}

// Match reports whether pkt was triggered by a probe built from s, and if
// so which one.
func (s *Skeleton) Match(pkt *packet.Packet) (Match, bool) {
	if len(pkt.Layers) < 2 {
		return Match{}, false
	}
	outer, tr := pkt.Layers[0], pkt.Layers[1]

	m := Match{}
	src, err := outer.Addr("src_ip")
	if err != nil {
		return m, false
	}
	m.Src = src
	if ttl, err := outer.Uint(ttlField(outer)); err == nil {
		m.TTL = uint8(ttl)
	}

	switch tr.Name() {
	case protocol.ICMPv4Name, protocol.ICMPv6Name:
		return s.matchICMP(pkt, tr, m)
	case protocol.TCPName:
		return s.matchTCP(tr, m)
	}
	return m, false
}

func ttlField(d *packet.Decoded) string {
	if d.Name() == protocol.IPv6Name {
		return "hop_limit"
	}
	return "ttl"
}

func (s *Skeleton) matchICMP(pkt *packet.Packet, tr *packet.Decoded, m Match) (Match, bool) {
	typ, _ := tr.Uint("type")
	code, _ := tr.Uint("code")
	m.ICMPType, m.ICMPCode = uint8(typ), uint8(code)

	v6 := tr.Name() == protocol.ICMPv6Name
	switch {
	case !v6 && typ == protocol.ICMPv4EchoReply, v6 && typ == protocol.ICMPv6EchoReply:
		if s.Method != MethodICMP || m.Src != s.Dst {
			return m, false
		}
		id, _ := tr.Uint("identifier")
		if uint16(id) != s.Identifier {
			return m, false
		}
		seq, _ := tr.Uint("sequence")
		m.Tag = uint16(seq)
		m.Kind = KindReply
		return m, true

	case !v6 && typ == protocol.ICMPv4TimeExceeded, v6 && typ == protocol.ICMPv6TimeExceeded:
		m.Kind = KindTimeExceeded
	case !v6 && typ == protocol.ICMPv4DestUnreachable, v6 && typ == protocol.ICMPv6DestUnreachable:
		m.Kind = KindUnreachable
	default:
		m.Kind = KindError
	}

	// The quoted datagram follows the ICMP header.
	inner, ok := pkt.LayerN(s.NetworkName(), 1)
	if !ok {
		return m, false
	}
	tag, ok := s.quotedTag(inner)
	if !ok {
		return m, false
	}
	m.Tag = tag
	return m, true
}

// quotedTag recovers the tag from the datagram quoted in an ICMP error. Only
// the first 8 transport bytes are guaranteed to be quoted.
func (s *Skeleton) quotedTag(inner *packet.Decoded) (uint16, bool) {
	dst, err := inner.Addr("dst_ip")
	if err != nil || dst != s.Dst {
		return 0, false
	}
	reg := s.registry()
	tr, ok := reg.ByName(s.TransportName())
	if !ok {
		return 0, false
	}
	if dm, ok := inner.Protocol.(protocol.Demuxer); ok {
		if next, ok := dm.NextProtocol(inner.Header); !ok || next != tr.ID() {
			return 0, false
		}
	}

	body := inner.Body()
	get := func(name string) (uint64, bool) {
		f, ok := protocol.FieldByName(tr, name)
		if !ok {
			return 0, false
		}
		v, err := f.Uint(body)
		return v, err == nil
	}

	switch s.Method {
	case MethodICMP:
		id, ok1 := get("identifier")
		seq, ok2 := get("sequence")
		if !ok1 || !ok2 || uint16(id) != s.Identifier {
			return 0, false
		}
		return uint16(seq), true
	case MethodUDP:
		if !s.portsMatch(get, "src_port", "dst_port") {
			return 0, false
		}
		sum, ok := get("checksum")
		return uint16(sum), ok
	case MethodTCP:
		if !s.portsMatch(get, "src_port", "dst_port") {
			return 0, false
		}
		seq, ok := get("seq_num")
		return uint16(seq), ok
	}
	return 0, false
}

func (s *Skeleton) portsMatch(get func(string) (uint64, bool), srcKey, dstKey string) bool {
	sp, ok1 := get(srcKey)
	dp, ok2 := get(dstKey)
	return ok1 && ok2 && uint16(sp) == s.SrcPort && uint16(dp) == s.DstPort
}

// matchTCP handles segments sent back by the destination: SYN+ACK or RST
// for SYN probes, RST for ACK probes.
func (s *Skeleton) matchTCP(tr *packet.Decoded, m Match) (Match, bool) {
	if s.Method != MethodTCP || m.Src != s.Dst {
		return m, false
	}
	sp, _ := tr.Uint("src_port")
	dp, _ := tr.Uint("dst_port")
	if uint16(sp) != s.DstPort || uint16(dp) != s.SrcPort {
		return m, false
	}

	ackFlag, _ := tr.Uint("ack")
	if ackFlag == 1 {
		ack, _ := tr.Uint("ack_num")
		m.Tag = uint16(ack - 1)
	} else {
		seq, _ := tr.Uint("seq_num")
		m.Tag = uint16(seq)
	}
	m.Kind = KindReply
	return m, true
}

// Factory builds successive probes from a skeleton, allocating a fresh tag
// for each.
type Factory struct {
	Skeleton *Skeleton
	next     uint16
}

// NewFactory returns a factory whose first tag is 1.
func NewFactory(s *Skeleton) *Factory {
	return &Factory{Skeleton: s}
}

// NextTag returns the next tag. Zero is skipped: a zero UDP checksum means
// "no checksum" on the wire.
func (f *Factory) NextTag() uint16 {
	f.next++
	if f.next == 0 {
		f.next = 1
	}
	return f.next
}

// Build returns the index-th probe of a hop sent with ttl.
func (f *Factory) Build(ttl uint8, index int) (*Probe, error) {
	p, err := f.Skeleton.Build(ttl, f.NextTag())
	if err != nil {
		return nil, fmt.Errorf("failed to build probe: %w", err)
	}
	p.Index = index
	return p, nil
}
