package output

import (
	"bytes"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/KilimcininKorOglu/parisprobe/internal/probe"
	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
)

var streamDst = netip.MustParseAddr("192.0.2.9")

func streamProbe(tag uint16, ttl uint8) *probe.Probe {
	return &probe.Probe{
		Tag:    tag,
		TTL:    ttl,
		Dst:    streamDst,
		Bytes:  make([]byte, 64),
		SentAt: time.Unix(100, 0),
	}
}

func streamReply(p *probe.Probe, src string, ttl uint8) *probe.Reply {
	return &probe.Reply{
		Probe:      p,
		Src:        netip.MustParseAddr(src),
		Kind:       probe.KindTimeExceeded,
		ReceivedAt: p.SentAt.Add(5 * time.Millisecond),
		TTL:        ttl,
	}
}

func routerNames(ip net.IP) string {
	if ip.Equal(net.ParseIP("10.0.0.1")) {
		return "router.local"
	}
	return ""
}

func TestTraceStreamPrintsResolvedHops(t *testing.T) {
	var buf bytes.Buffer
	rec := trace.NewRecorder("example.net", streamDst, "udp")
	stream := NewTraceStream(&buf, NewTextFormatter(Config{}), rec, routerNames)
	handle := trace.Chain(rec.Handle, stream.Handle)
	opts := trace.Options{}

	p1, p2 := streamProbe(1, 1), streamProbe(2, 1)
	handle(trace.Event{Type: trace.EventProbeReply, Probe: p1, Reply: streamReply(p1, "10.0.0.1", 64)},
		opts, trace.HopState{TTL: 1, InFlight: 1})
	if buf.Len() != 0 {
		t.Fatalf("Hop printed before all probes resolved: %q", buf.String())
	}

	handle(trace.Event{Type: trace.EventProbeReply, Probe: p2, Reply: streamReply(p2, "10.0.0.1", 64)},
		opts, trace.HopState{TTL: 1, InFlight: 0})
	want := "  1  router.local (10.0.0.1)  5.000 ms  5.000 ms  \n"
	if buf.String() != want {
		t.Fatalf("output = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	p3 := streamProbe(3, 2)
	handle(trace.Event{Type: trace.EventStar, Probe: p3}, opts, trace.HopState{TTL: 2, InFlight: 1})
	handle(trace.Event{Type: trace.EventCancelled}, opts, trace.HopState{TTL: 2})

	if buf.String() != "  2  *\n" {
		t.Errorf("cancelled hop output = %q, want %q", buf.String(), "  2  *\n")
	}
	if got := rec.Result().Status; got != "CANCELLED" {
		t.Errorf("Status = %q, want CANCELLED", got)
	}
}

func TestTraceStreamTerminalAfterPrintedHop(t *testing.T) {
	var buf bytes.Buffer
	rec := trace.NewRecorder("example.net", streamDst, "icmp")
	stream := NewTraceStream(&buf, NewTextFormatter(Config{}), rec, nil)
	handle := trace.Chain(rec.Handle, stream.Handle)

	p := streamProbe(1, 1)
	r := streamReply(p, streamDst.String(), 60)
	r.Kind = probe.KindReply
	handle(trace.Event{Type: trace.EventProbeReply, Probe: p, Reply: r}, trace.Options{}, trace.HopState{TTL: 1})
	handle(trace.Event{Type: trace.EventDestinationReached}, trace.Options{}, trace.HopState{TTL: 1})

	if buf.String() != "  1  192.0.2.9  5.000 ms  \n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPingStream(t *testing.T) {
	var buf bytes.Buffer
	stream := NewPingStream(&buf, NewTextFormatter(Config{}), PingLineOptions{Verbose: true}, false, nil)

	p := streamProbe(1, 64)
	r := streamReply(p, streamDst.String(), 60)
	r.Kind = probe.KindReply
	stream.Handle(trace.Event{Type: trace.EventProbeReply, Probe: p, Reply: r}, trace.Options{}, trace.HopState{})
	stream.Handle(trace.Event{Type: trace.EventStar, Probe: streamProbe(2, 64)}, trace.Options{}, trace.HopState{})
	stream.Handle(trace.Event{Type: trace.EventMaxTTLReached}, trace.Options{}, trace.HopState{})

	want := "64 bytes from 192.0.2.9: seq=1 ttl=60 time=5.000 ms\n" +
		"Request timeout for seq 2\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestPingStreamQuiet(t *testing.T) {
	var buf bytes.Buffer
	stream := NewPingStream(&buf, NewTextFormatter(Config{}), PingLineOptions{}, true, nil)

	p := streamProbe(1, 64)
	stream.Handle(trace.Event{Type: trace.EventProbeReply, Probe: p, Reply: streamReply(p, "192.0.2.9", 60)},
		trace.Options{}, trace.HopState{})
	stream.Handle(trace.Event{Type: trace.EventStar, Probe: streamProbe(2, 64)}, trace.Options{}, trace.HopState{})

	if buf.Len() != 0 {
		t.Errorf("quiet stream wrote %q", buf.String())
	}
}
