package trace

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/KilimcininKorOglu/parisprobe/internal/probe"
)

func TestCalculateRTTStats(t *testing.T) {
	tests := []struct {
		name       string
		rtts       []float64
		wantAvg    float64
		wantMin    float64
		wantMax    float64
		wantJitter float64
	}{
		{
			name:       "single value",
			rtts:       []float64{10.0},
			wantAvg:    10.0,
			wantMin:    10.0,
			wantMax:    10.0,
			wantJitter: 0,
		},
		{
			name:       "multiple values",
			rtts:       []float64{10.0, 20.0, 30.0},
			wantAvg:    20.0,
			wantMin:    10.0,
			wantMax:    30.0,
			wantJitter: 20.0,
		},
		{
			name:       "with timeouts",
			rtts:       []float64{10.0, -1, 20.0, -1},
			wantAvg:    15.0,
			wantMin:    10.0,
			wantMax:    20.0,
			wantJitter: 10.0,
		},
		{
			name:    "all timeouts",
			rtts:    []float64{-1, -1, -1},
			wantAvg: 0,
		},
		{
			name:    "empty",
			rtts:    []float64{},
			wantAvg: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avg, min, max, jitter := calculateRTTStats(tt.rtts)
			if avg != tt.wantAvg {
				t.Errorf("avg = %v, want %v", avg, tt.wantAvg)
			}
			if min != tt.wantMin {
				t.Errorf("min = %v, want %v", min, tt.wantMin)
			}
			if max != tt.wantMax {
				t.Errorf("max = %v, want %v", max, tt.wantMax)
			}
			if jitter != tt.wantJitter {
				t.Errorf("jitter = %v, want %v", jitter, tt.wantJitter)
			}
		})
	}
}

func TestCalculateLossPercent(t *testing.T) {
	tests := []struct {
		name string
		rtts []float64
		want float64
	}{
		{name: "no loss", rtts: []float64{10, 20, 30}, want: 0},
		{name: "50% loss", rtts: []float64{10, -1, 20, -1}, want: 50},
		{name: "100% loss", rtts: []float64{-1, -1, -1}, want: 100},
		{name: "empty", rtts: []float64{}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateLossPercent(tt.rtts); got != tt.want {
				t.Errorf("calculateLossPercent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateMdev(t *testing.T) {
	if got := calculateMdev([]float64{10, -1, 20}); got != 5 {
		t.Errorf("calculateMdev() = %v, want 5", got)
	}
	if got := calculateMdev([]float64{-1}); got != 0 {
		t.Errorf("calculateMdev() = %v, want 0", got)
	}
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder("example.net", target, "udp")
	sent := time.Unix(1000, 0)
	router := netip.MustParseAddr("10.0.0.1")
	other := netip.MustParseAddr("10.0.0.2")

	mk := func(tag uint16, ttl uint8) *probe.Probe {
		return &probe.Probe{Tag: tag, TTL: ttl, SentAt: sent}
	}
	reply := func(p *probe.Probe, src netip.Addr, ms int) *probe.Reply {
		return &probe.Reply{Probe: p, Src: src, ReceivedAt: sent.Add(time.Duration(ms) * time.Millisecond)}
	}

	p1, p2, p3 := mk(1, 1), mk(2, 1), mk(3, 1)
	rec.Handle(Event{Type: EventProbeReply, Probe: p1, Reply: reply(p1, router, 10)}, Options{}, HopState{})
	rec.Handle(Event{Type: EventStar, Probe: p2}, Options{}, HopState{})
	rec.Handle(Event{Type: EventProbeReply, Probe: p3, Reply: reply(p3, other, 20)}, Options{}, HopState{})

	p4 := mk(4, 2)
	unreach := reply(p4, target, 30)
	unreach.Kind = probe.KindUnreachable
	unreach.ICMPCode = 1
	rec.Handle(Event{Type: EventICMPError, Probe: p4, Reply: unreach}, Options{}, HopState{})
	rec.Handle(Event{Type: EventMaxTTLReached}, Options{}, HopState{})

	res := rec.Result()
	if len(res.Hops) != 2 {
		t.Fatalf("len(Hops) = %d, want 2", len(res.Hops))
	}

	h := res.Hops[0]
	if !h.IP.Equal(net.ParseIP("10.0.0.1")) {
		t.Errorf("IP = %v, want 10.0.0.1", h.IP)
	}
	if len(h.Others) != 1 || !h.Others[0].Equal(net.ParseIP("10.0.0.2")) {
		t.Errorf("Others = %v, want [10.0.0.2]", h.Others)
	}
	if h.AvgRTT != 15 {
		t.Errorf("AvgRTT = %v, want 15", h.AvgRTT)
	}
	if h.LossPercent < 33 || h.LossPercent > 34 {
		t.Errorf("LossPercent = %v, want ~33.3", h.LossPercent)
	}

	if got := res.Hops[1].Annotations; len(got) != 1 || got[0] != "!H" {
		t.Errorf("Annotations = %v, want [!H]", got)
	}
	if res.Completed {
		t.Error("Completed should be false")
	}
	if res.Status != "MAX_TTL_REACHED" {
		t.Errorf("Status = %q, want MAX_TTL_REACHED", res.Status)
	}
	if res.Summary.TotalHops != 2 {
		t.Errorf("TotalHops = %d, want 2", res.Summary.TotalHops)
	}
}

func TestPingRecorder(t *testing.T) {
	rec := NewPingRecorder("example.net", target, "icmp")
	sent := time.Unix(1000, 0)

	for i, ms := range []int{10, -1, 30} {
		p := &probe.Probe{Tag: uint16(i + 1), SentAt: sent}
		if ms < 0 {
			rec.Handle(Event{Type: EventStar, Probe: p}, Options{}, HopState{})
			continue
		}
		r := &probe.Reply{Probe: p, Src: target, TTL: 55, ReceivedAt: sent.Add(time.Duration(ms) * time.Millisecond)}
		rec.Handle(Event{Type: EventProbeReply, Probe: p, Reply: r}, Options{}, HopState{})
	}
	rec.Handle(Event{Type: EventDestinationReached}, Options{}, HopState{})

	res := rec.Result()
	if res.Transmitted != 3 || res.Received != 2 {
		t.Errorf("transmitted/received = %d/%d, want 3/2", res.Transmitted, res.Received)
	}
	if res.MinRTT != 10 || res.MaxRTT != 30 || res.AvgRTT != 20 {
		t.Errorf("min/avg/max = %v/%v/%v, want 10/20/30", res.MinRTT, res.AvgRTT, res.MaxRTT)
	}
	if res.Replies[1].Seq != 3 || res.Replies[1].TTL != 55 {
		t.Errorf("reply = %+v, want seq 3 ttl 55", res.Replies[1])
	}
	if res.Status != "DESTINATION_REACHED" {
		t.Errorf("Status = %q", res.Status)
	}
}

func TestPingRecorderCancelled(t *testing.T) {
	rec := NewPingRecorder("example.net", target, "icmp")
	sent := time.Unix(1000, 0)

	first := &probe.Probe{Tag: 1, SentAt: sent}
	r := &probe.Reply{Probe: first, Src: target, ReceivedAt: sent.Add(10 * time.Millisecond)}
	rec.Handle(Event{Type: EventProbeReply, Probe: first, Reply: r}, Options{}, HopState{})

	// Probe 2 left but got no answer, probe 3 was still waiting for its
	// send delay.
	released := []*probe.Probe{{Tag: 2, SentAt: sent}, {Tag: 3}}
	rec.Handle(Event{Type: EventCancelled, Released: released}, Options{}, HopState{})

	res := rec.Result()
	if res.Transmitted != 2 || res.Received != 1 {
		t.Errorf("transmitted/received = %d/%d, want 2/1", res.Transmitted, res.Received)
	}
	if res.LossPercent != 50 {
		t.Errorf("LossPercent = %v, want 50", res.LossPercent)
	}
	if res.Status != "CANCELLED" {
		t.Errorf("Status = %q", res.Status)
	}
}

func TestChain(t *testing.T) {
	var order []int
	h := Chain(
		func(Event, Options, HopState) { order = append(order, 1) },
		nil,
		func(Event, Options, HopState) { order = append(order, 2) },
	)
	h(Event{}, Options{}, HopState{})
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v, want [1 2]", order)
	}
}

func TestResolveTarget(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		target  string
		family  Family
		want    string
		wantErr bool
	}{
		{name: "IPv4 address", target: "192.0.2.1", want: "192.0.2.1"},
		{name: "IPv6 address", target: "2001:db8::1", want: "2001:db8::1"},
		{name: "mapped address", target: "::ffff:192.0.2.1", want: "192.0.2.1"},
		{name: "family mismatch", target: "192.0.2.1", family: FamilyIPv6, wantErr: true},
		{name: "lookup prefers IPv4", target: "dual.test", want: "192.0.2.5"},
		{name: "lookup IPv6 only", target: "dual.test", family: FamilyIPv6, want: "2001:db8::5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveTarget(ctx, fakeLookup{}, tt.target, tt.family)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ResolveTarget() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveTarget() error = %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("ResolveTarget() = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeLookup struct{}

func (fakeLookup) LookupNetIP(_ context.Context, network, host string) ([]netip.Addr, error) {
	v4 := netip.MustParseAddr("192.0.2.5")
	v6 := netip.MustParseAddr("2001:db8::5")
	switch network {
	case "ip6":
		return []netip.Addr{v6}, nil
	case "ip4":
		return []netip.Addr{v4}, nil
	}
	return []netip.Addr{v6, v4}, nil
}
