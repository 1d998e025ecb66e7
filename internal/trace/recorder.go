package trace

import (
	"fmt"
	"math"
	"net"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/KilimcininKorOglu/parisprobe/internal/probe"
)

// Chain returns a handler calling each non-nil handler in order.
func Chain(handlers ...Handler) Handler {
	return func(ev Event, opts Options, hop HopState) {
		for _, h := range handlers {
			if h != nil {
				h(ev, opts, hop)
			}
		}
	}
}

// Recorder aggregates traceroute events into a TraceResult. Its Handle
// method is a Handler.
type Recorder struct {
	mu     sync.Mutex
	target string
	method string
	dest   netip.Addr
	start  time.Time
	hops   map[int]*Hop
	status string
	done   bool
}

// NewRecorder returns a recorder for a trace of target.
func NewRecorder(target string, dest netip.Addr, method string) *Recorder {
	return &Recorder{
		target: target,
		method: method,
		dest:   dest,
		start:  time.Now(),
		hops:   make(map[int]*Hop),
	}
}

// Handle records one event.
func (r *Recorder) Handle(ev Event, opts Options, hs HopState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Type.Terminal() {
		r.status = ev.Type.String()
		r.done = ev.Type == EventDestinationReached
		return
	}

	h := r.hop(int(ev.Probe.TTL))
	switch ev.Type {
	case EventStar:
		h.RTTs = append(h.RTTs, -1)
	case EventProbeReply, EventICMPError:
		h.RTTs = append(h.RTTs, msec(ev.Reply.RTT()))
		h.Responded = true
		addResponder(h, ev.Reply.Src)
		if ev.Type == EventICMPError {
			if mark := Annotation(ev.Reply); mark != "" {
				h.Annotations = appendUnique(h.Annotations, mark)
			}
		}
	}
}

// Hop returns a copy of the recorded hop at ttl with statistics filled in.
func (r *Recorder) Hop(ttl int) (Hop, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hops[ttl]
	if !ok {
		return Hop{}, false
	}
	out := *h
	fillStats(&out)
	return out, true
}

// Result builds the TraceResult from everything recorded so far.
func (r *Recorder) Result() *TraceResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	ttls := make([]int, 0, len(r.hops))
	for ttl := range r.hops {
		ttls = append(ttls, ttl)
	}
	sort.Ints(ttls)

	hops := make([]Hop, 0, len(ttls))
	for _, ttl := range ttls {
		h := *r.hops[ttl]
		fillStats(&h)
		hops = append(hops, h)
	}

	return &TraceResult{
		Target:      r.target,
		ResolvedIP:  toIP(r.dest),
		Timestamp:   r.start,
		ProbeMethod: r.method,
		Hops:        hops,
		Completed:   r.done,
		Status:      r.status,
		Summary:     calculateSummary(hops),
	}
}

func (r *Recorder) hop(ttl int) *Hop {
	h, ok := r.hops[ttl]
	if !ok {
		h = &Hop{Number: ttl, RTTs: make([]float64, 0, 3)}
		r.hops[ttl] = h
	}
	return h
}

func addResponder(h *Hop, a netip.Addr) {
	ip := toIP(a)
	if h.IP == nil {
		h.IP = ip
		return
	}
	if h.IP.Equal(ip) {
		return
	}
	for _, o := range h.Others {
		if o.Equal(ip) {
			return
		}
	}
	h.Others = append(h.Others, ip)
}

func fillStats(h *Hop) {
	h.AvgRTT, h.MinRTT, h.MaxRTT, h.Jitter = calculateRTTStats(h.RTTs)
	h.LossPercent = calculateLossPercent(h.RTTs)
}

// PingRecorder aggregates ping events into a PingResult.
type PingRecorder struct {
	mu     sync.Mutex
	result PingResult
	rtts   []float64
}

// NewPingRecorder returns a recorder for a ping of target.
func NewPingRecorder(target string, dest netip.Addr, method string) *PingRecorder {
	return &PingRecorder{result: PingResult{
		Target:      target,
		ResolvedIP:  toIP(dest),
		Timestamp:   time.Now(),
		ProbeMethod: method,
	}}
}

// Handle records one event.
func (r *PingRecorder) Handle(ev Event, opts Options, hs HopState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Type.Terminal() {
		r.result.Status = ev.Type.String()
		// Probes that left before the run stopped count as lost.
		for _, p := range ev.Released {
			if !p.SentAt.IsZero() {
				r.result.Transmitted++
				r.rtts = append(r.rtts, -1)
			}
		}
		return
	}

	r.result.Transmitted++
	switch ev.Type {
	case EventStar:
		r.rtts = append(r.rtts, -1)
	case EventProbeReply, EventICMPError:
		reply := NewPingReply(ev)
		r.result.Replies = append(r.result.Replies, reply)
		if ev.Type == EventICMPError {
			r.result.Errors++
			r.rtts = append(r.rtts, -1)
			return
		}
		r.result.Received++
		r.rtts = append(r.rtts, reply.RTT)
	}
}

// Result builds the PingResult from everything recorded so far.
func (r *PingRecorder) Result() *PingResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.result
	out.Replies = append([]PingReply(nil), r.result.Replies...)
	out.AvgRTT, out.MinRTT, out.MaxRTT, _ = calculateRTTStats(r.rtts)
	out.MdevRTT = calculateMdev(r.rtts)
	out.LossPercent = calculateLossPercent(r.rtts)
	return &out
}

// NewPingReply converts a reply or error event to a ping line.
func NewPingReply(ev Event) PingReply {
	pr := PingReply{Seq: int(ev.Probe.Tag)}
	if ev.Reply == nil {
		return pr
	}
	pr.From = toIP(ev.Reply.Src)
	pr.TTL = int(ev.Reply.TTL)
	pr.Size = len(ev.Probe.Bytes)
	pr.RTT = msec(ev.Reply.RTT())
	pr.ReceivedAt = ev.Reply.ReceivedAt
	if ev.Type == EventICMPError {
		pr.Error = ErrorText(ev.Reply)
	}
	return pr
}

// Annotation returns the traceroute mark for an ICMP error reply.
func Annotation(r *probe.Reply) string {
	if r.Kind != probe.KindUnreachable {
		return ""
	}
	v6 := r.Src.Is6() && !r.Src.Is4In6()
	if v6 {
		switch r.ICMPCode {
		case 0:
			return "!N"
		case 1:
			return "!X"
		case 3:
			return "!H"
		case 4:
			return ""
		}
		return fmt.Sprintf("!<%d>", r.ICMPCode)
	}
	switch r.ICMPCode {
	case 0:
		return "!N"
	case 1:
		return "!H"
	case 2:
		return "!P"
	case 3:
		return ""
	case 4:
		return "!F"
	case 5:
		return "!S"
	case 9, 10, 13:
		return "!X"
	}
	return fmt.Sprintf("!<%d>", r.ICMPCode)
}

// ErrorText describes an ICMP error reply for ping output.
func ErrorText(r *probe.Reply) string {
	switch r.Kind {
	case probe.KindTimeExceeded:
		return "Time to live exceeded"
	case probe.KindUnreachable:
		switch Annotation(r) {
		case "!N":
			return "Destination Net Unreachable"
		case "!H":
			return "Destination Host Unreachable"
		case "!P":
			return "Destination Protocol Unreachable"
		case "":
			return "Destination Port Unreachable"
		case "!F":
			return "Frag needed"
		case "!X":
			return "Communication prohibited"
		}
		return "Destination Unreachable"
	}
	return fmt.Sprintf("ICMP type %d code %d", r.ICMPType, r.ICMPCode)
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func toIP(a netip.Addr) net.IP {
	if !a.IsValid() {
		return nil
	}
	return net.IP(a.AsSlice())
}

func msec(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

// calculateSummary calculates aggregate statistics for the trace.
func calculateSummary(hops []Hop) Summary {
	summary := Summary{
		TotalHops: len(hops),
	}

	var totalLoss float64
	for _, hop := range hops {
		totalLoss += hop.LossPercent
	}
	if len(hops) > 0 {
		summary.PacketLossPercent = totalLoss / float64(len(hops))
	}

	// Total time is the RTT to the last responding hop
	for i := len(hops) - 1; i >= 0; i-- {
		if hops[i].AvgRTT > 0 {
			summary.TotalTimeMs = hops[i].AvgRTT
			break
		}
	}

	return summary
}

// calculateRTTStats calculates RTT statistics from a slice of RTT values.
// Negative values are treated as timeouts and excluded from calculations.
func calculateRTTStats(rtts []float64) (avg, min, max, jitter float64) {
	var valid []float64
	for _, rtt := range rtts {
		if rtt >= 0 {
			valid = append(valid, rtt)
		}
	}

	if len(valid) == 0 {
		return 0, 0, 0, 0
	}

	min = valid[0]
	max = valid[0]
	sum := 0.0

	for _, rtt := range valid {
		sum += rtt
		if rtt < min {
			min = rtt
		}
		if rtt > max {
			max = rtt
		}
	}

	avg = sum / float64(len(valid))
	jitter = max - min

	return
}

// calculateMdev returns the standard deviation of the valid RTTs, as
// reported by ping.
func calculateMdev(rtts []float64) float64 {
	var sum, sq float64
	n := 0
	for _, rtt := range rtts {
		if rtt < 0 {
			continue
		}
		sum += rtt
		sq += rtt * rtt
		n++
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	v := sq/float64(n) - mean*mean
	if v < 0 {
		return 0
	}
	return math.Sqrt(v)
}

// calculateLossPercent calculates packet loss percentage.
// Negative RTT values indicate timeouts.
func calculateLossPercent(rtts []float64) float64 {
	if len(rtts) == 0 {
		return 0
	}

	timeouts := 0
	for _, rtt := range rtts {
		if rtt < 0 {
			timeouts++
		}
	}

	return float64(timeouts) / float64(len(rtts)) * 100
}
