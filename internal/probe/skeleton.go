package probe

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/KilimcininKorOglu/parisprobe/internal/packet"
	"github.com/KilimcininKorOglu/parisprobe/internal/protocol"
)

// Default flow ports.
const (
	DefaultUDPSrcPort = 33456
	DefaultUDPDstPort = 33457
	DefaultTCPSrcPort = 16449
	DefaultTCPDstPort = 16963

	// DNSPort is used by --udp-dns style probing
	DNSPort = 53
	// HTTPPort is used by --tcp-http style probing
	HTTPPort = 80

	// MaxPacketSize is the largest IP datagram
	MaxPacketSize = 65535

	// MaxFlowLabel is the largest IPv6 flow label
	MaxFlowLabel = 1<<20 - 1
)

// Skeleton holds everything that stays constant across the probes of one
// run. All probes built from a skeleton share their flow identifier (ports
// or ICMP identifier), so per-flow load balancers forward them along the
// same path.
type Skeleton struct {
	Method Method
	Src    netip.Addr
	Dst    netip.Addr

	// SrcPort and DstPort are used by UDP and TCP probes
	SrcPort uint16
	DstPort uint16

	// Identifier is the ICMP echo identifier
	Identifier uint16

	// TCPAck sends ACK instead of SYN segments
	TCPAck bool

	// FlowLabel is the IPv6 flow label (20 bits)
	FlowLabel uint32

	// PacketSize is the total IP packet size; 0 means the smallest possible
	PacketSize int

	// Registry resolves protocol names; nil means the default registry
	Registry *protocol.Registry
}

// NewSkeleton returns a skeleton with the default flow for method.
func NewSkeleton(method Method, src, dst netip.Addr) *Skeleton {
	s := &Skeleton{
		Method:     method,
		Src:        src,
		Dst:        dst,
		Identifier: uint16(os.Getpid() & 0xffff),
	}
	switch method {
	case MethodUDP:
		s.SrcPort, s.DstPort = DefaultUDPSrcPort, DefaultUDPDstPort
	case MethodTCP:
		s.SrcPort, s.DstPort = DefaultTCPSrcPort, DefaultTCPDstPort
	}
	return s
}

func (s *Skeleton) registry() *protocol.Registry {
	if s.Registry != nil {
		return s.Registry
	}
	return protocol.Default()
}

// NetworkName returns the network layer protocol name.
func (s *Skeleton) NetworkName() string {
	if s.Dst.Is4() {
		return protocol.IPv4Name
	}
	return protocol.IPv6Name
}

// TransportName returns the transport layer protocol name.
func (s *Skeleton) TransportName() string {
	switch s.Method {
	case MethodUDP:
		return protocol.UDPName
	case MethodTCP:
		return protocol.TCPName
	}
	if s.Dst.Is4() {
		return protocol.ICMPv4Name
	}
	return protocol.ICMPv6Name
}

// minPayload is the room needed for the tag compensation word.
func (s *Skeleton) minPayload() int {
	if s.Method == MethodTCP {
		return 0
	}
	return 2
}

func (s *Skeleton) headersLen() (int, error) {
	reg := s.registry()
	total := 0
	for _, name := range []string{s.NetworkName(), s.TransportName()} {
		p, ok := reg.ByName(name)
		if !ok {
			return 0, fmt.Errorf("%w: %q", packet.ErrUnknownProtocol, name)
		}
		total += p.HeaderLen()
	}
	return total, nil
}

// MinPacketSize returns the smallest packet size the skeleton can build.
func (s *Skeleton) MinPacketSize() int {
	n, err := s.headersLen()
	if err != nil {
		return 0
	}
	return n + s.minPayload()
}

// Validate checks addresses and packet size.
func (s *Skeleton) Validate() error {
	if !s.Dst.IsValid() {
		return fmt.Errorf("%w: no destination", ErrInvalidAddress)
	}
	if s.Src.IsValid() && s.Src.Is4() != s.Dst.Is4() {
		return fmt.Errorf("%w: %s -> %s", ErrAddressFamily, s.Src, s.Dst)
	}
	if _, err := s.headersLen(); err != nil {
		return err
	}
	if s.FlowLabel > MaxFlowLabel {
		return fmt.Errorf("%w: flow label %d", ErrInvalidFlowLabel, s.FlowLabel)
	}
	if s.PacketSize < 0 || s.PacketSize > MaxPacketSize {
		return fmt.Errorf("%w: %d", ErrPacketSize, s.PacketSize)
	}
	if s.PacketSize != 0 && s.PacketSize < s.MinPacketSize() {
		return fmt.Errorf("%w: %d < %d", ErrPacketSize, s.PacketSize, s.MinPacketSize())
	}
	return nil
}

// Build returns an encoded probe with the given TTL and tag.
func (s *Skeleton) Build(ttl uint8, tag uint16) (*Probe, error) {
	if ttl == 0 {
		return nil, ErrInvalidTTL
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	reg := s.registry()
	netLayer, err := packet.NewLayer(reg, s.NetworkName(), s.networkValues(ttl, tag))
	if err != nil {
		return nil, err
	}
	trLayer, err := packet.NewLayer(reg, s.TransportName(), s.transportValues(tag))
	if err != nil {
		return nil, err
	}

	size := s.minPayload()
	if s.PacketSize != 0 {
		hl, _ := s.headersLen()
		size = s.PacketSize - hl
	}

	p := &Probe{
		Tag:     tag,
		TTL:     ttl,
		Dst:     s.Dst,
		Layers:  []packet.Layer{netLayer, trLayer},
		Payload: make([]byte, size),
	}
	if err := s.tag(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Skeleton) networkValues(ttl uint8, tag uint16) packet.Values {
	v := packet.Values{"dst_ip": s.Dst}
	if s.Src.IsValid() {
		v["src_ip"] = s.Src
	}
	if s.Dst.Is4() {
		v["ttl"] = ttl
		v["identification"] = tag
	} else {
		v["hop_limit"] = ttl
		v["flow_label"] = s.FlowLabel
	}
	return v
}

func (s *Skeleton) transportValues(tag uint16) packet.Values {
	switch s.Method {
	case MethodUDP:
		return packet.Values{"src_port": s.SrcPort, "dst_port": s.DstPort}
	case MethodTCP:
		v := packet.Values{"src_port": s.SrcPort, "dst_port": s.DstPort, "seq_num": uint32(tag)}
		if s.TCPAck {
			v["syn"] = 0
			v["ack"] = 1
			v["ack_num"] = uint32(tag)
		}
		return v
	}
	return packet.Values{"identifier": s.Identifier, "sequence": tag}
}
