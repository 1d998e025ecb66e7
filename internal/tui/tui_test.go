package tui

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/KilimcininKorOglu/parisprobe/internal/probe"
	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
)

var dst = netip.MustParseAddr("192.0.2.1")

// replayRun returns a Session.Run that feeds a two-hop trace to the handler.
func replayRun() func(ctx context.Context, h trace.Handler) error {
	return func(ctx context.Context, h trace.Handler) error {
		sent := time.Unix(100, 0)
		opts := trace.Options{Destination: dst}

		p1 := &probe.Probe{Tag: 1, TTL: 1, Dst: dst, SentAt: sent}
		h(trace.Event{Type: trace.EventProbeReply, Probe: p1, Reply: &probe.Reply{
			Probe: p1, Src: netip.MustParseAddr("10.0.0.1"), Kind: probe.KindTimeExceeded,
			ReceivedAt: sent.Add(4 * time.Millisecond),
		}}, opts, trace.HopState{TTL: 1})

		p2 := &probe.Probe{Tag: 2, TTL: 2, Dst: dst, SentAt: sent}
		h(trace.Event{Type: trace.EventProbeReply, Probe: p2, Reply: &probe.Reply{
			Probe: p2, Src: dst, Kind: probe.KindReply,
			ReceivedAt: sent.Add(9 * time.Millisecond),
		}}, opts, trace.HopState{TTL: 2, DestinationReached: true})

		h(trace.Event{Type: trace.EventDestinationReached}, opts, trace.HopState{TTL: 2})
		return nil
	}
}

func newSession(run func(ctx context.Context, h trace.Handler) error) *Session {
	return &Session{
		Target:   "example.com",
		Method:   "udp",
		MaxHops:  30,
		Recorder: trace.NewRecorder("example.com", dst, "udp"),
		Names: func(ip net.IP) string {
			if ip.Equal(net.ParseIP("10.0.0.1")) {
				return "gw.example.com"
			}
			return ""
		},
		Run: run,
	}
}

func TestNewRequiresSession(t *testing.T) {
	if _, err := New(context.Background(), nil); err == nil {
		t.Error("New(nil) should fail")
	}
	if _, err := New(context.Background(), &Session{Target: "x"}); err == nil {
		t.Error("New() without Run should fail")
	}
}

func TestRunTraceStreamsHops(t *testing.T) {
	m, err := New(context.Background(), newSession(replayRun()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	msg := m.runTrace()()
	complete, ok := msg.(CompleteMsg)
	if !ok {
		t.Fatalf("runTrace() = %T, want CompleteMsg", msg)
	}
	if complete.Result.Status != "DESTINATION_REACHED" {
		t.Errorf("Status = %q", complete.Result.Status)
	}
	if len(complete.Result.Hops) != 2 {
		t.Fatalf("len(Hops) = %d, want 2", len(complete.Result.Hops))
	}
	if complete.Result.Hops[0].Hostname != "gw.example.com" {
		t.Errorf("Hops[0].Hostname = %q", complete.Result.Hops[0].Hostname)
	}

	// Both hops were forwarded while the trace ran.
	var model tea.Model = *m
	for i := 0; i < 2; i++ {
		hop, ok := m.waitForHop()().(HopMsg)
		if !ok {
			t.Fatalf("waitForHop() #%d did not return a HopMsg", i)
		}
		if hop.Hop.Number != i+1 {
			t.Errorf("hop #%d Number = %d", i, hop.Hop.Number)
		}
		model, _ = model.Update(hop)
	}
	model, _ = model.Update(complete)

	final := model.(Model)
	if final.state != StateComplete {
		t.Errorf("state = %v, want StateComplete", final.state)
	}
	view := final.View()
	for _, want := range []string{"example.com", "gw.example.com", "192.0.2.1", "Complete"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestRunTraceError(t *testing.T) {
	boom := errors.New("socket gone")
	m, err := New(context.Background(), newSession(func(context.Context, trace.Handler) error {
		return boom
	}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer m.Close()

	msg := m.runTrace()()
	e, ok := msg.(ErrorMsg)
	if !ok || !errors.Is(e.Err, boom) {
		t.Fatalf("runTrace() = %#v, want ErrorMsg", msg)
	}

	updated, cmd := m.Update(e)
	if updated.(Model).state != StateError {
		t.Error("state should be StateError")
	}
	if cmd == nil {
		t.Error("an error should quit the program")
	}
}

func TestQuitCancelsTrace(t *testing.T) {
	m, err := New(context.Background(), newSession(replayRun()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	select {
	case <-m.ctx.Done():
	default:
		t.Error("q should cancel the trace context")
	}

	// A blocked handler gives up once the context is done.
	done := make(chan struct{})
	handle := trace.Chain(m.session.Recorder.Handle, m.handle)
	go func() {
		for i := 0; i < cap(m.hopChan)+1; i++ {
			handle(trace.Event{Type: trace.EventStar, Probe: &probe.Probe{TTL: 1}},
				trace.Options{}, trace.HopState{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("handler blocked after cancel")
	}
}

func TestSetHopKeepsOrder(t *testing.T) {
	m := &Model{}
	m.setHop(trace.Hop{Number: 3})
	m.setHop(trace.Hop{Number: 1})
	m.setHop(trace.Hop{Number: 2})
	m.setHop(trace.Hop{Number: 1, Responded: true})

	if len(m.hops) != 3 {
		t.Fatalf("len(hops) = %d, want 3", len(m.hops))
	}
	for i, h := range m.hops {
		if h.Number != i+1 {
			t.Errorf("hops[%d].Number = %d", i, h.Number)
		}
	}
	if !m.hops[0].Responded {
		t.Error("hop 1 should have been replaced")
	}
}

func TestDefaultStyles(t *testing.T) {
	styles := DefaultStyles()

	// Check RTT colors are different
	low := styles.RTTLow.Render("test")
	med := styles.RTTMed.Render("test")
	high := styles.RTTHigh.Render("test")

	if low == med || med == high {
		t.Log("RTT styles should be visually different")
	}
}

func TestThemeByName(t *testing.T) {
	for _, name := range []string{"", "dark", "light", "minimal", "unknown"} {
		t.Run(name, func(t *testing.T) {
			styles := ThemeByName(name)
			if styles.HopNum.Render("1") == "" {
				t.Error("styles should render text")
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a very long string", 10, "this is..."},
		{"ab", 2, "ab"},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := truncate(tt.input, tt.maxLen)
			if result != tt.expected {
				t.Errorf("truncate(%q, %d) = %q, want %q",
					tt.input, tt.maxLen, result, tt.expected)
			}
		})
	}
}

func TestModelRenderHopRow(t *testing.T) {
	model := &Model{
		session: newSession(replayRun()),
		styles:  DefaultStyles(),
	}

	// Test responding hop
	hop := trace.Hop{
		Number:      1,
		IP:          net.ParseIP("10.0.0.1"),
		Responded:   true,
		AvgRTT:      10.5,
		MinRTT:      8.2,
		MaxRTT:      12.3,
		Annotations: []string{"!N"},
	}

	row := model.renderHopRow(hop)
	if !strings.Contains(row, "10.0.0.1") || !strings.Contains(row, "!N") {
		t.Errorf("renderHopRow() = %q", row)
	}

	// Test non-responding hop
	hopTimeout := trace.Hop{
		Number:    2,
		Responded: false,
	}

	row2 := model.renderHopRow(hopTimeout)
	if !strings.Contains(row2, "*") {
		t.Error("renderHopRow should handle timeout hops")
	}
}

func TestColorizeRTT(t *testing.T) {
	model := &Model{
		styles: DefaultStyles(),
	}

	tests := []struct {
		name string
		rtt  float64
	}{
		{"low latency", 25.0},
		{"medium latency", 75.0},
		{"high latency", 200.0},
		{"zero", 0},
		{"negative", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := model.colorizeRTT("10.00 ms", tt.rtt)
			if !strings.Contains(result, "10.00 ms") {
				t.Errorf("colorizeRTT() = %q", result)
			}
		})
	}
}
