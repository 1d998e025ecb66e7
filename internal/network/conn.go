// Package network provides the raw socket transport used to send probes and
// collect the packets they trigger.
//
// IPv4 probes are written with their IP header included. IPv6 sockets
// cannot carry a caller-built header, so the transport segment is sent with
// the hop limit set per packet, and received segments are given back a
// synthesized IPv6 header so that every datagram handed to the engine
// starts with its network layer.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/KilimcininKorOglu/parisprobe/internal/engine"
	"github.com/KilimcininKorOglu/parisprobe/internal/packet"
	"github.com/KilimcininKorOglu/parisprobe/internal/probe"
	"github.com/KilimcininKorOglu/parisprobe/internal/protocol"
)

const (
	readBufferSize       = 4096
	defaultReceiveBuffer = 1 << 20
)

// Options configures Open.
type Options struct {
	// Method selects which reply sockets are needed
	Method probe.Method

	// Dst selects the address family
	Dst netip.Addr

	// ReceiveBuffer is the kernel receive buffer size, 0 for the default
	ReceiveBuffer int

	Logger *log.Logger
}

type readResult struct {
	dg  engine.Datagram
	err error
}

// Conn is a raw socket transport. It implements engine.Sender and
// engine.Receiver.
type Conn struct {
	logger *log.Logger
	v6     bool

	raw4  *ipv4.RawConn
	recv4 []*ipv4.RawConn

	send6 map[uint8]*ipv6.PacketConn
	recv6 map[uint8]*ipv6.PacketConn

	closers []io.Closer
	packets chan readResult
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// Open creates the sockets needed to probe opts.Dst with opts.Method.
func Open(opts Options) (*Conn, error) {
	if !opts.Dst.IsValid() {
		return nil, fmt.Errorf("%w: %s", probe.ErrInvalidAddress, opts.Dst)
	}
	if opts.Logger == nil {
		opts.Logger = log.New()
		opts.Logger.SetOutput(io.Discard)
	}
	if opts.ReceiveBuffer <= 0 {
		opts.ReceiveBuffer = defaultReceiveBuffer
	}

	c := &Conn{
		logger:  opts.Logger,
		v6:      opts.Dst.Is6() && !opts.Dst.Is4In6(),
		packets: make(chan readResult, 128),
		done:    make(chan struct{}),
	}

	var err error
	if c.v6 {
		err = c.open6(opts)
	} else {
		err = c.open4(opts)
	}
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) listen(network, address string, rcvbuf int) (net.PacketConn, error) {
	pc, err := net.ListenPacket(network, address)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %s: %v", ErrPermissionDenied, network, err)
		}
		return nil, fmt.Errorf("failed to listen on %s: %w", network, err)
	}
	c.closers = append(c.closers, pc)

	if ipc, ok := pc.(*net.IPConn); ok {
		if rc, err := ipc.SyscallConn(); err == nil {
			var setErr error
			_ = rc.Control(func(fd uintptr) {
				setErr = setReceiveBuffer(fd, rcvbuf)
			})
			if setErr != nil {
				c.logger.Debugf("failed to set receive buffer on %s: %v", network, setErr)
			}
		}
	}
	return pc, nil
}

func (c *Conn) open4(opts Options) error {
	pc, err := c.listen("ip4:255", "0.0.0.0", opts.ReceiveBuffer)
	if err != nil {
		return err
	}
	if c.raw4, err = ipv4.NewRawConn(pc); err != nil {
		return fmt.Errorf("failed to create raw IPv4 socket: %w", err)
	}

	protos := []string{"ip4:icmp"}
	if opts.Method == probe.MethodTCP {
		protos = append(protos, "ip4:tcp")
	}
	for _, network := range protos {
		pc, err := c.listen(network, "0.0.0.0", opts.ReceiveBuffer)
		if err != nil {
			return err
		}
		rc, err := ipv4.NewRawConn(pc)
		if err != nil {
			return fmt.Errorf("failed to create raw IPv4 socket: %w", err)
		}
		c.recv4 = append(c.recv4, rc)
		c.wg.Add(1)
		go c.read4(rc)
	}
	return nil
}

func (c *Conn) open6(opts Options) error {
	c.send6 = make(map[uint8]*ipv6.PacketConn)
	c.recv6 = make(map[uint8]*ipv6.PacketConn)

	icmp, err := c.packetConn6("ip6:ipv6-icmp", opts.ReceiveBuffer)
	if err != nil {
		return err
	}
	c.send6[protocol.ICMPv6ID] = icmp
	c.recv6[protocol.ICMPv6ID] = icmp

	switch opts.Method {
	case probe.MethodUDP:
		udp, err := c.packetConn6("ip6:udp", opts.ReceiveBuffer)
		if err != nil {
			return err
		}
		c.send6[protocol.UDPID] = udp
	case probe.MethodTCP:
		tcp, err := c.packetConn6("ip6:tcp", opts.ReceiveBuffer)
		if err != nil {
			return err
		}
		c.send6[protocol.TCPID] = tcp
		c.recv6[protocol.TCPID] = tcp
	}

	for proto, pc := range c.recv6 {
		c.wg.Add(1)
		go c.read6(pc, proto)
	}
	return nil
}

func (c *Conn) packetConn6(network string, rcvbuf int) (*ipv6.PacketConn, error) {
	pc, err := c.listen(network, "::", rcvbuf)
	if err != nil {
		return nil, err
	}
	p := ipv6.NewPacketConn(pc)
	if err := p.SetControlMessage(ipv6.FlagHopLimit|ipv6.FlagDst, true); err != nil {
		c.logger.Debugf("control messages unavailable on %s: %v", network, err)
	}
	return p, nil
}

// Send writes an encoded probe. pkt must start with its IP header.
func (c *Conn) Send(ctx context.Context, pkt []byte, dst netip.Addr) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if c.v6 {
		return c.send6Packet(pkt, dst)
	}
	h, err := ipv4.ParseHeader(pkt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	if err := c.raw4.WriteTo(h, pkt[h.Len:], nil); err != nil {
		return fmt.Errorf("failed to send to %s: %w", dst, err)
	}
	return nil
}

func (c *Conn) send6Packet(pkt []byte, dst netip.Addr) error {
	if len(pkt) < ipv6.HeaderLen || pkt[0]>>4 != 6 {
		return ErrMalformedPacket
	}
	next, hopLimit := pkt[6], int(pkt[7])
	pc, ok := c.send6[next]
	if !ok {
		return fmt.Errorf("%w: no socket for protocol %d", ErrMalformedPacket, next)
	}

	cm := &ipv6.ControlMessage{
		TrafficClass: int(pkt[0]&0x0f)<<4 | int(pkt[1]>>4),
		HopLimit:     hopLimit,
	}
	if _, err := pc.WriteTo(pkt[ipv6.HeaderLen:], cm, &net.IPAddr{IP: dst.AsSlice()}); err != nil {
		return fmt.Errorf("failed to send to %s: %w", dst, err)
	}
	return nil
}

// Receive returns the next received datagram.
func (c *Conn) Receive(ctx context.Context) (engine.Datagram, error) {
	select {
	case <-ctx.Done():
		return engine.Datagram{}, ctx.Err()
	case <-c.done:
		return engine.Datagram{}, ErrClosed
	case r := <-c.packets:
		return r.dg, r.err
	}
}

func (c *Conn) read4(rc *ipv4.RawConn) {
	defer c.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		h, payload, _, err := rc.ReadFrom(buf)
		at := time.Now()
		if err != nil {
			c.fail(err)
			return
		}
		hdr, err := h.Marshal()
		if err != nil {
			c.logger.Debugf("dropping IPv4 packet with bad header: %v", err)
			continue
		}
		data := make([]byte, 0, len(hdr)+len(payload))
		data = append(append(data, hdr...), payload...)
		c.deliver(engine.Datagram{Data: data, ReceivedAt: at})
	}
}

func (c *Conn) read6(pc *ipv6.PacketConn, proto uint8) {
	defer c.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, cm, src, err := pc.ReadFrom(buf)
		at := time.Now()
		if err != nil {
			c.fail(err)
			return
		}
		data, err := synthesize6(buf[:n], cm, src, proto)
		if err != nil {
			c.logger.Debugf("dropping IPv6 packet: %v", err)
			continue
		}
		c.deliver(engine.Datagram{Data: data, ReceivedAt: at})
	}
}

// synthesize6 rebuilds the IPv6 header the kernel stripped from a received
// segment.
func synthesize6(segment []byte, cm *ipv6.ControlMessage, src net.Addr, proto uint8) ([]byte, error) {
	from, ok := addrOf(src)
	if !ok {
		return nil, fmt.Errorf("%w: source %v", ErrMalformedPacket, src)
	}
	values := packet.Values{
		"src_ip":      from,
		"next_header": proto,
	}
	if cm != nil {
		values["hop_limit"] = cm.HopLimit
		if to, ok := netip.AddrFromSlice(cm.Dst); ok {
			values["dst_ip"] = to
		}
	}
	l, err := packet.NewLayer(protocol.Default(), protocol.IPv6Name, values)
	if err != nil {
		return nil, err
	}
	return packet.Encode([]packet.Layer{l}, segment)
}

func addrOf(a net.Addr) (netip.Addr, bool) {
	switch a := a.(type) {
	case *net.IPAddr:
		ip, ok := netip.AddrFromSlice(a.IP)
		return ip.Unmap(), ok
	case *net.UDPAddr:
		ip, ok := netip.AddrFromSlice(a.IP)
		return ip.Unmap(), ok
	}
	return netip.Addr{}, false
}

func (c *Conn) deliver(dg engine.Datagram) {
	select {
	case c.packets <- readResult{dg: dg}:
	case <-c.done:
	}
}

func (c *Conn) fail(err error) {
	select {
	case <-c.done:
		return
	default:
	}
	if errors.Is(err, net.ErrClosed) {
		err = ErrClosed
	}
	select {
	case c.packets <- readResult{err: err}:
	case <-c.done:
	}
}

// Close closes every socket and waits for the readers to stop.
func (c *Conn) Close() error {
	var first error
	c.once.Do(func() {
		close(c.done)
		for _, cl := range c.closers {
			if err := cl.Close(); err != nil && first == nil {
				first = err
			}
		}
		c.wg.Wait()
	})
	return first
}

// SourceFor returns the local address the kernel would use to reach dst.
// No packet is sent.
func SourceFor(dst netip.Addr) (netip.Addr, error) {
	network := "udp4"
	if dst.Is6() && !dst.Is4In6() {
		network = "udp6"
	}
	conn, err := net.DialUDP(network, nil, net.UDPAddrFromAddrPort(netip.AddrPortFrom(dst, probe.DefaultUDPDstPort)))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %s: %v", ErrNoRoute, dst, err)
	}
	defer conn.Close()

	local, ok := addrOf(conn.LocalAddr())
	if !ok || local.IsUnspecified() {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrNoRoute, dst)
	}
	return local, nil
}
