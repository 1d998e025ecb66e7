package trace

import (
	"net"
	"time"
)

// Hop represents a single hop in the trace path.
type Hop struct {
	// Number is the hop number (TTL value that triggered the response)
	Number int `json:"hop"`

	// IP is the first address that responded at this TTL
	IP net.IP `json:"ip,omitempty"`

	// Hostname is the reverse DNS name (if resolved)
	Hostname string `json:"hostname,omitempty"`

	// Others lists further distinct responders (load-balanced paths)
	Others []net.IP `json:"others,omitempty"`

	// RTTs contains individual round-trip times in milliseconds
	// A value of -1 indicates a timeout
	RTTs []float64 `json:"rtts"`

	// AvgRTT is the average RTT in milliseconds
	AvgRTT float64 `json:"avg_rtt"`

	// MinRTT is the minimum RTT in milliseconds
	MinRTT float64 `json:"min_rtt"`

	// MaxRTT is the maximum RTT in milliseconds
	MaxRTT float64 `json:"max_rtt"`

	// Jitter is the difference between max and min RTT
	Jitter float64 `json:"jitter"`

	// LossPercent is the packet loss percentage (0-100)
	LossPercent float64 `json:"loss_percent"`

	// Annotations are traceroute-style ICMP error marks (!H, !N, ...)
	Annotations []string `json:"annotations,omitempty"`

	// Responded indicates if at least one probe got a response
	Responded bool `json:"responded"`
}

// TraceResult contains the complete result of a trace operation.
type TraceResult struct {
	// Target is the original target (hostname or IP)
	Target string `json:"target"`

	// ResolvedIP is the resolved IP address of the target
	ResolvedIP net.IP `json:"resolved_ip"`

	// Timestamp is when the trace was performed
	Timestamp time.Time `json:"timestamp"`

	// ProbeMethod is the probe method used (icmp, udp, tcp)
	ProbeMethod string `json:"probe_method"`

	// Hops contains all the hops in the trace
	Hops []Hop `json:"hops"`

	// Completed indicates if the trace reached the destination
	Completed bool `json:"completed"`

	// Status is the terminal event of the run
	Status string `json:"status"`

	// Summary contains aggregate statistics
	Summary Summary `json:"summary"`
}

// Summary contains aggregate statistics for a trace.
type Summary struct {
	// TotalHops is the number of hops in the trace
	TotalHops int `json:"total_hops"`

	// TotalTimeMs is the average RTT of the last responding hop
	TotalTimeMs float64 `json:"total_time_ms"`

	// PacketLossPercent is the average packet loss across all hops
	PacketLossPercent float64 `json:"packet_loss_percent"`
}

// IsDestination checks if this hop is the final destination.
func (h *Hop) IsDestination(dest net.IP) bool {
	if h.IP == nil {
		return false
	}
	return h.IP.Equal(dest)
}

// PingReply is one line of ping output.
type PingReply struct {
	Seq        int       `json:"seq"`
	From       net.IP    `json:"from,omitempty"`
	Hostname   string    `json:"hostname,omitempty"`
	TTL        int       `json:"ttl,omitempty"`
	Size       int       `json:"size,omitempty"`
	RTT        float64   `json:"rtt"`
	Error      string    `json:"error,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// PingResult contains the complete result of a ping run.
type PingResult struct {
	Target      string      `json:"target"`
	ResolvedIP  net.IP      `json:"resolved_ip"`
	Timestamp   time.Time   `json:"timestamp"`
	ProbeMethod string      `json:"probe_method"`
	Transmitted int         `json:"transmitted"`
	Received    int         `json:"received"`
	Errors      int         `json:"errors"`
	LossPercent float64     `json:"loss_percent"`
	MinRTT      float64     `json:"min_rtt"`
	AvgRTT      float64     `json:"avg_rtt"`
	MaxRTT      float64     `json:"max_rtt"`
	MdevRTT     float64     `json:"mdev_rtt"`
	Replies     []PingReply `json:"replies"`
	Status      string      `json:"status"`
}
