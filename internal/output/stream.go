package output

import (
	"io"
	"net"
	"sync"

	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
)

// NameFunc returns the hostname of ip, or "".
type NameFunc func(ip net.IP) string

// TraceStream prints each hop as soon as all of its probes are resolved.
// Its Handle must be chained after the recorder's.
type TraceStream struct {
	mu      sync.Mutex
	out     io.Writer
	f       *TextFormatter
	rec     *trace.Recorder
	names   NameFunc
	pending int // ttl with events not yet printed
	printed int
}

// NewTraceStream returns a stream printing hops recorded by rec to out.
// names may be nil.
func NewTraceStream(out io.Writer, f *TextFormatter, rec *trace.Recorder, names NameFunc) *TraceStream {
	return &TraceStream{out: out, f: f, rec: rec, names: names}
}

// Handle is a trace.Handler.
func (s *TraceStream) Handle(ev trace.Event, opts trace.Options, hs trace.HopState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Type.Terminal() {
		// A cancelled hop is printed with what it got.
		if s.pending > s.printed {
			s.print(s.pending)
		}
		return
	}

	ttl := int(ev.Probe.TTL)
	s.pending = ttl
	if hs.InFlight == 0 {
		s.print(ttl)
	}
}

func (s *TraceStream) print(ttl int) {
	hop, ok := s.rec.Hop(ttl)
	if !ok {
		return
	}
	if s.names != nil && hop.IP != nil {
		hop.Hostname = s.names(hop.IP)
	}
	io.WriteString(s.out, s.f.FormatHop(&hop))
	s.printed = ttl
}

// PingStream prints ping replies as they arrive.
type PingStream struct {
	mu    sync.Mutex
	out   io.Writer
	f     *TextFormatter
	opts  PingLineOptions
	quiet bool
	names NameFunc
}

// NewPingStream returns a stream printing to out. Nothing is printed when
// quiet is set.
func NewPingStream(out io.Writer, f *TextFormatter, opts PingLineOptions, quiet bool, names NameFunc) *PingStream {
	return &PingStream{out: out, f: f, opts: opts, quiet: quiet, names: names}
}

// Handle is a trace.Handler.
func (s *PingStream) Handle(ev trace.Event, _ trace.Options, _ trace.HopState) {
	if s.quiet || ev.Type.Terminal() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Type == trace.EventStar {
		if s.opts.Verbose {
			io.WriteString(s.out, s.f.PingTimeout(int(ev.Probe.Tag)))
		}
		return
	}

	r := trace.NewPingReply(ev)
	if s.names != nil && r.From != nil {
		r.Hostname = s.names(r.From)
	}
	io.WriteString(s.out, s.f.PingLine(r, s.opts))
}
