package output

import (
	"bytes"
	"fmt"
	"net"

	"github.com/fatih/color"

	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
)

// TextFormatter formats results in classic traceroute and ping style.
type TextFormatter struct {
	config Config
	colors *ColorScheme
}

// NewTextFormatter creates a new text formatter.
func NewTextFormatter(config Config) *TextFormatter {
	var colors *ColorScheme
	if config.Colors {
		colors = DefaultColorScheme()
	}

	return &TextFormatter{
		config: config,
		colors: colors,
	}
}

// Format formats the trace result as classic traceroute text output.
func (f *TextFormatter) Format(result *trace.TraceResult) ([]byte, error) {
	var buf bytes.Buffer

	maxHops := f.config.MaxHops
	if maxHops == 0 {
		maxHops = len(result.Hops)
	}
	buf.WriteString(f.TraceHeader(result.Target, result.ResolvedIP, maxHops))

	for _, hop := range result.Hops {
		f.formatHop(&buf, &hop)
	}

	buf.WriteString(f.TraceSummary(result))
	return buf.Bytes(), nil
}

// TraceHeader returns the first line of traceroute output.
func (f *TextFormatter) TraceHeader(target string, ip net.IP, maxHops int) string {
	return fmt.Sprintf("traceroute to %s (%s), %d hops max\n", target, ip, maxHops)
}

// TraceSummary returns the closing lines of traceroute output.
func (f *TextFormatter) TraceSummary(result *trace.TraceResult) string {
	if result.Completed {
		return fmt.Sprintf("\nTrace complete. %d hops, %.2f ms total\n",
			result.Summary.TotalHops, result.Summary.TotalTimeMs)
	}
	return fmt.Sprintf("\nTrace incomplete after %d hops (%s)\n",
		result.Summary.TotalHops, statusText(result.Status))
}

// FormatHop formats a single hop and returns it as a string.
// This can be used for streaming output.
func (f *TextFormatter) FormatHop(hop *trace.Hop) string {
	var buf bytes.Buffer
	f.formatHop(&buf, hop)
	return buf.String()
}

// formatHop formats a single hop line.
func (f *TextFormatter) formatHop(buf *bytes.Buffer, hop *trace.Hop) {
	// Hop number
	buf.WriteString(f.paint(f.hopColor(), fmt.Sprintf("%3d  ", hop.Number)))

	// No response
	if !hop.Responded {
		stars := ""
		for i := range hop.RTTs {
			if i > 0 {
				stars += " "
			}
			stars += "*"
		}
		if stars == "" {
			stars = "*"
		}
		buf.WriteString(f.paint(f.timeoutColor(), stars))
		buf.WriteString("\n")
		return
	}

	buf.WriteString(f.host(hop.IP, hop.Hostname))
	buf.WriteString("  ")

	// RTT values
	for _, rtt := range hop.RTTs {
		if rtt < 0 {
			fmt.Fprintf(buf, "%s  ", f.paint(f.timeoutColor(), "*"))
		} else {
			fmt.Fprintf(buf, "%s  ", f.colorizeRTT(rtt))
		}
	}

	for _, mark := range hop.Annotations {
		fmt.Fprintf(buf, "%s ", f.paint(f.timeoutColor(), mark))
	}

	// Further responders of a load-balanced hop
	for _, ip := range hop.Others {
		fmt.Fprintf(buf, "\n     %s", f.paint(f.ipColor(), ip.String()))
	}

	buf.WriteString("\n")
}

// host renders "name (ip)" or "ip".
func (f *TextFormatter) host(ip net.IP, hostname string) string {
	ipStr := f.paint(f.ipColor(), ip.String())
	if hostname != "" && !f.config.NoHostname {
		return fmt.Sprintf("%s (%s)", f.paint(f.hostnameColor(), hostname), ipStr)
	}
	return ipStr
}

// FormatPing formats a full ping run: header, reply lines and statistics.
func (f *TextFormatter) FormatPing(result *trace.PingResult) ([]byte, error) {
	var buf bytes.Buffer
	size := 0
	if len(result.Replies) > 0 {
		size = result.Replies[0].Size
	}
	buf.WriteString(f.PingHeader(result.Target, result.ResolvedIP, size))
	for _, r := range result.Replies {
		buf.WriteString(f.PingLine(r, PingLineOptions{Verbose: true}))
	}
	buf.WriteString(f.PingSummary(result))
	return buf.Bytes(), nil
}

// PingLineOptions controls per-reply ping output.
type PingLineOptions struct {
	// Verbose prints ICMP errors as well as replies
	Verbose bool
	// ShowTimestamp prefixes lines with the receive time
	ShowTimestamp bool
}

// PingHeader returns the first line of ping output.
func (f *TextFormatter) PingHeader(target string, ip net.IP, size int) string {
	return fmt.Sprintf("PING %s (%s): %d bytes\n", target, ip, size)
}

// PingLine formats one reply or error. Errors are omitted unless
// opts.Verbose is set.
func (f *TextFormatter) PingLine(r trace.PingReply, opts PingLineOptions) string {
	var buf bytes.Buffer
	if opts.ShowTimestamp && !r.ReceivedAt.IsZero() {
		fmt.Fprintf(&buf, "[%d.%06d] ", r.ReceivedAt.Unix(), r.ReceivedAt.Nanosecond()/1000)
	}

	if r.Error != "" {
		if !opts.Verbose {
			return ""
		}
		fmt.Fprintf(&buf, "From %s: seq=%d %s\n",
			f.host(r.From, r.Hostname), r.Seq, f.paint(f.timeoutColor(), r.Error))
		return buf.String()
	}

	fmt.Fprintf(&buf, "%d bytes from %s: seq=%d ttl=%d time=%s\n",
		r.Size, f.host(r.From, r.Hostname), r.Seq, r.TTL, f.colorizeRTT(r.RTT))
	return buf.String()
}

// PingTimeout formats the line printed in verbose mode for a lost probe.
func (f *TextFormatter) PingTimeout(seq int) string {
	return f.paint(f.timeoutColor(), fmt.Sprintf("Request timeout for seq %d", seq)) + "\n"
}

// PingSummary returns the statistics block closing ping output.
func (f *TextFormatter) PingSummary(result *trace.PingResult) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n--- %s ping statistics ---\n", result.Target)
	fmt.Fprintf(&buf, "%d packets transmitted, %d received, ", result.Transmitted, result.Received)
	if result.Errors > 0 {
		fmt.Fprintf(&buf, "+%d errors, ", result.Errors)
	}
	fmt.Fprintf(&buf, "%.1f%% packet loss\n", result.LossPercent)
	if result.Received > 0 {
		fmt.Fprintf(&buf, "rtt min/avg/max/mdev = %.3f/%.3f/%.3f/%.3f ms\n",
			result.MinRTT, result.AvgRTT, result.MaxRTT, result.MdevRTT)
	}
	return buf.String()
}

// colorizeRTT returns a colored RTT string based on latency thresholds.
func (f *TextFormatter) colorizeRTT(rtt float64) string {
	str := fmt.Sprintf("%.3f ms", rtt)
	if f.colors == nil {
		return str
	}

	switch {
	case rtt < 50:
		return f.colors.RTTLow.Sprint(str)
	case rtt < 150:
		return f.colors.RTTMed.Sprint(str)
	default:
		return f.colors.RTTHigh.Sprint(str)
	}
}

func (f *TextFormatter) paint(c *color.Color, s string) string {
	if c == nil {
		return s
	}
	return c.Sprint(s)
}

func (f *TextFormatter) hopColor() *color.Color {
	if f.colors == nil {
		return nil
	}
	return f.colors.Hop
}

func (f *TextFormatter) ipColor() *color.Color {
	if f.colors == nil {
		return nil
	}
	return f.colors.IP
}

func (f *TextFormatter) hostnameColor() *color.Color {
	if f.colors == nil {
		return nil
	}
	return f.colors.Hostname
}

func (f *TextFormatter) timeoutColor() *color.Color {
	if f.colors == nil {
		return nil
	}
	return f.colors.Timeout
}

// ContentType returns the MIME type for text output.
func (f *TextFormatter) ContentType() string {
	return "text/plain"
}

// FileExtension returns the file extension for text output.
func (f *TextFormatter) FileExtension() string {
	return "txt"
}

// ColorScheme defines colors for different output elements.
type ColorScheme struct {
	Hop      *color.Color
	IP       *color.Color
	Hostname *color.Color
	RTTLow   *color.Color // < 50ms
	RTTMed   *color.Color // 50-150ms
	RTTHigh  *color.Color // > 150ms
	Timeout  *color.Color
	Header   *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Hop:      color.New(color.FgCyan, color.Bold),
		IP:       color.New(color.FgWhite),
		Hostname: color.New(color.FgGreen),
		RTTLow:   color.New(color.FgGreen),
		RTTMed:   color.New(color.FgYellow),
		RTTHigh:  color.New(color.FgRed),
		Timeout:  color.New(color.FgRed, color.Bold),
		Header:   color.New(color.FgWhite, color.Bold),
	}
}

// Helper functions

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
