package output

import (
	"encoding/json"
	"net"
	"time"

	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
)

// JSONFormatter formats results as JSON.
type JSONFormatter struct {
	config Config
	pretty bool
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(config Config) *JSONFormatter {
	return &JSONFormatter{
		config: config,
		pretty: true, // Default to pretty-printed
	}
}

// NewJSONFormatterCompact creates a JSON formatter with compact output.
func NewJSONFormatterCompact(config Config) *JSONFormatter {
	return &JSONFormatter{
		config: config,
		pretty: false,
	}
}

// SetPretty enables or disables pretty-printing.
func (f *JSONFormatter) SetPretty(pretty bool) {
	f.pretty = pretty
}

// Format formats the trace result as JSON.
func (f *JSONFormatter) Format(result *trace.TraceResult) ([]byte, error) {
	return f.marshal(f.toJSONOutput(result))
}

// FormatPing formats the ping result as JSON.
func (f *JSONFormatter) FormatPing(result *trace.PingResult) ([]byte, error) {
	return f.marshal(f.toJSONPing(result))
}

func (f *JSONFormatter) marshal(v any) ([]byte, error) {
	if f.pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// JSONOutput is the JSON-serializable representation of a trace result.
type JSONOutput struct {
	Target      string      `json:"target"`
	ResolvedIP  string      `json:"resolved_ip"`
	Timestamp   string      `json:"timestamp"`
	ProbeMethod string      `json:"probe_method"`
	Completed   bool        `json:"completed"`
	Status      string      `json:"status"`
	Hops        []JSONHop   `json:"hops"`
	Summary     JSONSummary `json:"summary"`
}

// JSONHop represents a single hop in JSON format.
type JSONHop struct {
	Hop         int       `json:"hop"`
	IP          string    `json:"ip,omitempty"`
	Hostname    string    `json:"hostname,omitempty"`
	Others      []string  `json:"others,omitempty"`
	Annotations []string  `json:"annotations,omitempty"`
	RTTs        []float64 `json:"rtts"`
	AvgRTT      float64   `json:"avg_rtt_ms"`
	MinRTT      float64   `json:"min_rtt_ms"`
	MaxRTT      float64   `json:"max_rtt_ms"`
	Jitter      float64   `json:"jitter_ms"`
	LossPercent float64   `json:"loss_percent"`
	Responded   bool      `json:"responded"`
}

// JSONSummary represents trace summary in JSON format.
type JSONSummary struct {
	TotalHops         int     `json:"total_hops"`
	TotalTimeMs       float64 `json:"total_time_ms"`
	PacketLossPercent float64 `json:"packet_loss_percent"`
}

// JSONPing is the JSON-serializable representation of a ping result.
type JSONPing struct {
	Target      string          `json:"target"`
	ResolvedIP  string          `json:"resolved_ip"`
	Timestamp   string          `json:"timestamp"`
	ProbeMethod string          `json:"probe_method"`
	Status      string          `json:"status"`
	Transmitted int             `json:"transmitted"`
	Received    int             `json:"received"`
	Errors      int             `json:"errors"`
	LossPercent float64         `json:"loss_percent"`
	MinRTT      float64         `json:"min_rtt_ms"`
	AvgRTT      float64         `json:"avg_rtt_ms"`
	MaxRTT      float64         `json:"max_rtt_ms"`
	MdevRTT     float64         `json:"mdev_rtt_ms"`
	Replies     []JSONPingReply `json:"replies"`
}

// JSONPingReply represents one ping reply in JSON format.
type JSONPingReply struct {
	Seq      int     `json:"seq"`
	From     string  `json:"from,omitempty"`
	Hostname string  `json:"hostname,omitempty"`
	TTL      int     `json:"ttl,omitempty"`
	Size     int     `json:"size,omitempty"`
	RTT      float64 `json:"rtt_ms"`
	Error    string  `json:"error,omitempty"`
}

// toJSONOutput converts a TraceResult to JSONOutput.
func (f *JSONFormatter) toJSONOutput(result *trace.TraceResult) *JSONOutput {
	output := &JSONOutput{
		Target:      result.Target,
		ResolvedIP:  ipString(result.ResolvedIP),
		Timestamp:   result.Timestamp.Format(time.RFC3339),
		ProbeMethod: result.ProbeMethod,
		Completed:   result.Completed,
		Status:      result.Status,
		Hops:        make([]JSONHop, len(result.Hops)),
		Summary: JSONSummary{
			TotalHops:         result.Summary.TotalHops,
			TotalTimeMs:       roundFloat(result.Summary.TotalTimeMs, 3),
			PacketLossPercent: roundFloat(result.Summary.PacketLossPercent, 1),
		},
	}

	for i, hop := range result.Hops {
		output.Hops[i] = f.toJSONHop(&hop)
	}

	return output
}

// toJSONHop converts a Hop to JSONHop.
func (f *JSONFormatter) toJSONHop(hop *trace.Hop) JSONHop {
	jh := JSONHop{
		Hop:         hop.Number,
		IP:          ipString(hop.IP),
		Annotations: hop.Annotations,
		RTTs:        hop.RTTs,
		AvgRTT:      roundFloat(hop.AvgRTT, 3),
		MinRTT:      roundFloat(hop.MinRTT, 3),
		MaxRTT:      roundFloat(hop.MaxRTT, 3),
		Jitter:      roundFloat(hop.Jitter, 3),
		LossPercent: roundFloat(hop.LossPercent, 1),
		Responded:   hop.Responded,
	}

	if !f.config.NoHostname {
		jh.Hostname = hop.Hostname
	}
	for _, ip := range hop.Others {
		jh.Others = append(jh.Others, ip.String())
	}

	return jh
}

func (f *JSONFormatter) toJSONPing(result *trace.PingResult) *JSONPing {
	out := &JSONPing{
		Target:      result.Target,
		ResolvedIP:  ipString(result.ResolvedIP),
		Timestamp:   result.Timestamp.Format(time.RFC3339),
		ProbeMethod: result.ProbeMethod,
		Status:      result.Status,
		Transmitted: result.Transmitted,
		Received:    result.Received,
		Errors:      result.Errors,
		LossPercent: roundFloat(result.LossPercent, 1),
		MinRTT:      roundFloat(result.MinRTT, 3),
		AvgRTT:      roundFloat(result.AvgRTT, 3),
		MaxRTT:      roundFloat(result.MaxRTT, 3),
		MdevRTT:     roundFloat(result.MdevRTT, 3),
		Replies:     make([]JSONPingReply, len(result.Replies)),
	}
	for i, r := range result.Replies {
		out.Replies[i] = JSONPingReply{
			Seq:   r.Seq,
			From:  ipString(r.From),
			TTL:   r.TTL,
			Size:  r.Size,
			RTT:   roundFloat(r.RTT, 3),
			Error: r.Error,
		}
		if !f.config.NoHostname {
			out.Replies[i].Hostname = r.Hostname
		}
	}
	return out
}

// ContentType returns the MIME type for JSON output.
func (f *JSONFormatter) ContentType() string {
	return "application/json"
}

// FileExtension returns the file extension for JSON output.
func (f *JSONFormatter) FileExtension() string {
	return "json"
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

// Helper function to round floats
func roundFloat(val float64, precision int) float64 {
	if precision == 0 {
		return float64(int(val + 0.5))
	}
	p := float64(1)
	for i := 0; i < precision; i++ {
		p *= 10
	}
	return float64(int(val*p+0.5)) / p
}
