// Package tui provides an interactive terminal UI for traceroute.
package tui

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
)

// State represents the current state of the TUI.
type State int

const (
	StateRunning State = iota
	StateComplete
	StateError
)

// Session is a traceroute prepared by the caller. Run must drive the trace
// to completion, delivering every event to h, and return when it is over
// or ctx is cancelled.
type Session struct {
	Target   string
	Method   string
	MaxHops  int
	Recorder *trace.Recorder
	Names    func(ip net.IP) string
	Run      func(ctx context.Context, h trace.Handler) error

	// Theme is "dark" (default), "light" or "minimal"
	Theme string
}

// Model is the Bubble Tea model for the traceroute TUI.
type Model struct {
	// Configuration
	session *Session
	width   int
	height  int

	// State
	state     State
	hops      []trace.Hop
	ttl       int
	status    string
	err       error
	elapsed   time.Duration
	startTime time.Time

	// UI components
	spinner spinner.Model

	// Styles
	styles Styles

	ctx    context.Context
	cancel context.CancelFunc

	// Channel for hop updates
	hopChan chan HopMsg
}

// HopMsg is sent whenever a hop gains a result.
type HopMsg struct {
	Hop      trace.Hop
	Resolved bool
}

// CompleteMsg is sent when the trace is complete.
type CompleteMsg struct {
	Result *trace.TraceResult
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Err error
}

// TickMsg is sent to update elapsed time.
type TickMsg time.Time

// New creates a new TUI model for session. Cancelling ctx stops the trace.
func New(ctx context.Context, session *Session) (*Model, error) {
	if session == nil || session.Run == nil || session.Recorder == nil {
		return nil, fmt.Errorf("incomplete session")
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ctx, cancel := context.WithCancel(ctx)
	m := &Model{
		session:   session,
		state:     StateRunning,
		hops:      make([]trace.Hop, 0),
		spinner:   s,
		styles:    ThemeByName(session.Theme),
		width:     80,
		height:    24,
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		hopChan:   make(chan HopMsg, 64),
	}

	return m, nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.runTrace(),
		m.tickCmd(),
		m.waitForHop(),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		m.elapsed = time.Since(m.startTime)
		if m.state == StateRunning {
			return m, m.tickCmd()
		}

	case HopMsg:
		m.setHop(msg.Hop)
		if !msg.Resolved {
			m.ttl = msg.Hop.Number
		}
		// Continue waiting for more hops
		return m, m.waitForHop()

	case CompleteMsg:
		m.state = StateComplete
		m.elapsed = time.Since(m.startTime)
		m.status = msg.Result.Status
		// The recorder is authoritative once the run is over.
		m.hops = msg.Result.Hops

	case ErrorMsg:
		m.state = StateError
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// setHop inserts or replaces a hop, keeping them ordered by number.
func (m *Model) setHop(hop trace.Hop) {
	for i := range m.hops {
		if m.hops[i].Number == hop.Number {
			m.hops[i] = hop
			return
		}
		if m.hops[i].Number > hop.Number {
			m.hops = append(m.hops[:i], append([]trace.Hop{hop}, m.hops[i:]...)...)
			return
		}
	}
	m.hops = append(m.hops, hop)
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	// Header
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	// Hop table
	b.WriteString(m.renderHops())

	// Footer
	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

// renderHeader renders the header section.
func (m Model) renderHeader() string {
	title := m.styles.Title.Render("Paris Traceroute")

	var status string
	switch m.state {
	case StateRunning:
		status = m.spinner.View() + " Tracing..."
		if m.ttl > 0 {
			status += fmt.Sprintf(" (hop %d)", m.ttl)
		}
	case StateComplete:
		if m.status == trace.EventDestinationReached.String() {
			status = m.styles.Success.Render("✓ Complete")
		} else {
			status = m.styles.Warning.Render("! " + statusText(m.status))
		}
	case StateError:
		status = m.styles.Error.Render("✗ Error")
	}

	info := fmt.Sprintf("Target: %s | Method: %s", m.session.Target, strings.ToUpper(m.session.Method))
	if m.session.MaxHops > 0 {
		info += fmt.Sprintf(" | Max hops: %d", m.session.MaxHops)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.styles.Subtle.Render(info),
		status,
	)
}

// renderHops renders the hop table.
func (m Model) renderHops() string {
	if len(m.hops) == 0 {
		return m.styles.Subtle.Render("Waiting for responses...")
	}

	var rows []string

	// Header row
	header := fmt.Sprintf("%-4s %-15s %-25s %-10s %-10s %-10s %-6s",
		"Hop", "IP", "Hostname", "Avg", "Min", "Max", "Loss")
	rows = append(rows, m.styles.Header.Render(header))

	// Separator
	rows = append(rows, m.styles.Subtle.Render(strings.Repeat("─", 86)))

	// Hop rows
	for _, hop := range m.hops {
		rows = append(rows, m.renderHopRow(hop))
		for _, ip := range hop.Others {
			rows = append(rows, fmt.Sprintf("%-4s %s", "", m.styles.IP.Render(ip.String())))
		}
	}

	return strings.Join(rows, "\n")
}

// renderHopRow renders a single hop row.
func (m Model) renderHopRow(hop trace.Hop) string {
	hopNum := fmt.Sprintf("%-4d", hop.Number)

	var ip, hostname, avg, min, max string

	if !hop.Responded {
		ip = "*"
		hostname = ""
		avg = "*"
		min = "*"
		max = "*"
	} else {
		if hop.IP != nil {
			ip = hop.IP.String()
		} else {
			ip = "*"
		}
		hostname = truncate(hop.Hostname, 25)

		if hop.AvgRTT > 0 {
			avg = fmt.Sprintf("%.2f ms", hop.AvgRTT)
			min = fmt.Sprintf("%.2f", hop.MinRTT)
			max = fmt.Sprintf("%.2f", hop.MaxRTT)
		} else {
			avg = "-"
			min = "-"
			max = "-"
		}
	}

	// Color RTT based on latency
	avgStyled := m.colorizeRTT(avg, hop.AvgRTT)

	loss := fmt.Sprintf("%.0f%%", hop.LossPercent)
	if hop.LossPercent > 0 {
		loss = m.styles.Timeout.Render(loss)
	}

	row := fmt.Sprintf("%-4s %-15s %-25s %-10s %-10s %-10s %-6s",
		m.styles.HopNum.Render(hopNum),
		m.styles.IP.Render(truncate(ip, 15)),
		m.styles.Hostname.Render(hostname),
		avgStyled,
		m.styles.Subtle.Render(min),
		m.styles.Subtle.Render(max),
		loss,
	)
	if len(hop.Annotations) > 0 {
		row += " " + m.styles.Annotation.Render(strings.Join(hop.Annotations, " "))
	}
	return row
}

// colorizeRTT applies color based on latency.
func (m Model) colorizeRTT(s string, rtt float64) string {
	if rtt <= 0 {
		return m.styles.Subtle.Render(s)
	}

	switch {
	case rtt < 50:
		return m.styles.RTTLow.Render(s)
	case rtt < 150:
		return m.styles.RTTMed.Render(s)
	default:
		return m.styles.RTTHigh.Render(s)
	}
}

// renderFooter renders the footer section.
func (m Model) renderFooter() string {
	var parts []string

	if m.state == StateComplete {
		parts = append(parts, fmt.Sprintf("Hops: %d", len(m.hops)))
		if len(m.hops) > 0 && m.hops[len(m.hops)-1].AvgRTT > 0 {
			parts = append(parts, fmt.Sprintf("Total: %.2f ms", m.hops[len(m.hops)-1].AvgRTT))
		}
	}
	parts = append(parts, fmt.Sprintf("Elapsed: %s", m.elapsed.Round(100*time.Millisecond)))

	parts = append(parts, "Press 'q' to quit")

	return m.styles.Subtle.Render(strings.Join(parts, " | "))
}

// handle forwards hop updates to the UI. It runs on the engine goroutine.
func (m Model) handle(ev trace.Event, _ trace.Options, hs trace.HopState) {
	if ev.Type.Terminal() {
		return
	}
	hop, ok := m.session.Recorder.Hop(int(ev.Probe.TTL))
	if !ok {
		return
	}
	if m.session.Names != nil && hop.IP != nil {
		hop.Hostname = m.session.Names(hop.IP)
	}
	select {
	case m.hopChan <- HopMsg{Hop: hop, Resolved: hs.InFlight == 0}:
	case <-m.ctx.Done():
	}
}

// runTrace runs the traceroute in the background.
func (m Model) runTrace() tea.Cmd {
	return func() tea.Msg {
		handler := trace.Chain(m.session.Recorder.Handle, m.handle)
		if err := m.session.Run(m.ctx, handler); err != nil {
			if m.ctx.Err() != nil {
				return CompleteMsg{Result: m.result()}
			}
			return ErrorMsg{Err: err}
		}
		return CompleteMsg{Result: m.result()}
	}
}

func (m Model) result() *trace.TraceResult {
	res := m.session.Recorder.Result()
	if m.session.Names != nil {
		for i := range res.Hops {
			if res.Hops[i].IP != nil {
				res.Hops[i].Hostname = m.session.Names(res.Hops[i].IP)
			}
		}
	}
	return res
}

// waitForHop waits for a hop from the channel.
func (m Model) waitForHop() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.hopChan:
			return msg
		case <-m.ctx.Done():
			// Stopped from outside (signal) or by the user.
			return tea.Quit()
		}
	}
}

// tickCmd returns a command that sends tick messages.
func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Close stops the trace if it is still running.
func (m *Model) Close() error {
	m.cancel()
	return nil
}

func statusText(status string) string {
	switch status {
	case trace.EventMaxTTLReached.String():
		return "Max TTL reached"
	case trace.EventTooManyStars.String():
		return "Too many unresponsive hops"
	case trace.EventCancelled.String():
		return "Cancelled"
	}
	return "Stopped"
}

// truncate truncates a string to maxLen.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
