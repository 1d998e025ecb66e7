// Package trace implements the probing algorithms (traceroute and ping) as a
// single-threaded state machine. The machine never touches the network: it
// returns the probes to send and consumes replies and timeouts fed back by
// the caller.
package trace

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/KilimcininKorOglu/parisprobe/internal/probe"
)

// State is the machine state.
type State int

const (
	// StateInit is the state before Start
	StateInit State = iota
	// StateSending is the transient state while a hop's probes are built
	StateSending
	// StateAwaitingReplies waits for every probe of the hop to resolve
	StateAwaitingReplies
	// StateTerminated is absorbing
	StateTerminated
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSending:
		return "sending"
	case StateAwaitingReplies:
		return "awaiting-replies"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ProbeFactory builds the probes of a hop.
type ProbeFactory interface {
	Build(ttl uint8, index int) (*probe.Probe, error)
}

// ProbeFactoryFunc adapts a function to ProbeFactory.
type ProbeFactoryFunc func(ttl uint8, index int) (*probe.Probe, error)

// Build calls f.
func (f ProbeFactoryFunc) Build(ttl uint8, index int) (*probe.Probe, error) {
	return f(ttl, index)
}

// Input is fed to Handle.
type Input interface {
	isInput()
}

// ReplyInput reports a reply to a probe.
type ReplyInput struct {
	Probe *probe.Probe
	Reply *probe.Reply
}

// ICMPErrorInput reports an ICMP error caused by a probe.
type ICMPErrorInput struct {
	Probe *probe.Probe
	Reply *probe.Reply
}

// TimeoutInput reports that a probe's timer fired.
type TimeoutInput struct {
	Probe *probe.Probe
}

// StopInput cancels the run.
type StopInput struct{}

func (ReplyInput) isInput()     {}
func (ICMPErrorInput) isInput() {}
func (TimeoutInput) isInput()   {}
func (StopInput) isInput()      {}

// Send asks the caller to transmit Probe after Delay.
type Send struct {
	Probe *probe.Probe
	Delay time.Duration
}

// Step is the outcome of Start or Handle.
type Step struct {
	State  State
	TTL    int
	Sends  []Send
	Events []Event
}

// Terminal returns the terminal event of the step, if any.
func (s Step) Terminal() (Event, bool) {
	for _, ev := range s.Events {
		if ev.Type.Terminal() {
			return ev, true
		}
	}
	return Event{}, false
}

// Machine runs one probing algorithm instance.
type Machine struct {
	opts    Options
	factory ProbeFactory
	handler Handler

	state State
	ttl   int

	inFlight     *probe.Collection
	replies      int
	stars        int
	reached      bool
	responders   []netip.Addr
	newResponder bool
	undiscovered int

	// seen holds every responder of earlier hops.
	seen map[netip.Addr]struct{}
}

// NewMachine returns a machine in StateInit.
func NewMachine(opts Options, factory ProbeFactory, handler Handler) (*Machine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, ErrNoFactory
	}
	return &Machine{
		opts:     opts,
		factory:  factory,
		handler:  handler,
		inFlight: probe.NewCollection(opts.NumProbes),
		seen:     make(map[netip.Addr]struct{}),
	}, nil
}

// NewTraceroute returns a traceroute machine.
func NewTraceroute(opts TracerouteOptions, factory ProbeFactory, handler Handler) (*Machine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return NewMachine(opts.Options(), factory, handler)
}

// NewPing returns a ping machine.
func NewPing(opts PingOptions, factory ProbeFactory, handler Handler) (*Machine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return NewMachine(opts.Options(), factory, handler)
}

// Options returns the options of the run.
func (m *Machine) Options() Options {
	return m.opts
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Done reports whether the machine terminated.
func (m *Machine) Done() bool {
	return m.state == StateTerminated
}

// Hop returns a snapshot of the current hop.
func (m *Machine) Hop() HopState {
	return HopState{
		TTL:                m.ttl,
		DestinationReached: m.reached,
		NumReplies:         m.replies,
		NumStars:           m.stars,
		NumUndiscovered:    m.undiscovered,
		InFlight:           m.inFlight.Len(),
		Responders:         append([]netip.Addr(nil), m.responders...),
	}
}

// InFlight returns the probes of the current hop that are still unresolved.
func (m *Machine) InFlight() []*probe.Probe {
	return m.inFlight.Probes()
}

// Start sends the first hop.
func (m *Machine) Start() (Step, error) {
	if m.state != StateInit {
		return m.step(), ErrAlreadyStarted
	}
	m.ttl = m.opts.MinTTL
	m.resetHop()

	step := m.step()
	err := m.sendHop(&step)
	return m.finish(step), err
}

// Handle consumes one input. Inputs about probes that are not in flight
// (late or duplicate) are ignored, as is everything after termination.
func (m *Machine) Handle(in Input) (Step, error) {
	switch m.state {
	case StateInit:
		return m.step(), ErrNotStarted
	case StateTerminated:
		return m.step(), nil
	}

	step := m.step()
	switch in := in.(type) {
	case ReplyInput:
		if in.Reply == nil || !m.inFlight.Remove(in.Probe) {
			return step, nil
		}
		m.replies++
		if in.Reply.Src == m.opts.Destination {
			m.reached = true
		}
		m.record(in.Reply.Src)
		m.emit(&step, Event{Type: EventProbeReply, Probe: in.Probe, Reply: in.Reply})

	case ICMPErrorInput:
		if in.Reply == nil || !m.inFlight.Remove(in.Probe) {
			return step, nil
		}
		m.record(in.Reply.Src)
		m.emit(&step, Event{Type: EventICMPError, Probe: in.Probe, Reply: in.Reply})

	case TimeoutInput:
		if !m.inFlight.Remove(in.Probe) {
			return step, nil
		}
		m.stars++
		m.emit(&step, Event{Type: EventStar, Probe: in.Probe})

	case StopInput:
		m.terminate(&step, EventCancelled)
		return m.finish(step), nil
	}

	var err error
	if m.inFlight.Len() == 0 {
		err = m.endHop(&step)
	}
	return m.finish(step), err
}

// endHop decides what follows a fully resolved hop.
func (m *Machine) endHop(step *Step) error {
	if m.reached || m.newResponder {
		m.undiscovered = 0
	} else {
		m.undiscovered++
	}
	for _, a := range m.responders {
		m.seen[a] = struct{}{}
	}

	switch {
	case m.reached:
		m.terminate(step, EventDestinationReached)
	case m.opts.MaxUndiscovered > 0 && m.undiscovered >= m.opts.MaxUndiscovered:
		m.terminate(step, EventTooManyStars)
	case m.ttl >= m.opts.MaxTTL:
		m.terminate(step, EventMaxTTLReached)
	default:
		m.ttl++
		m.resetHop()
		return m.sendHop(step)
	}
	return nil
}

// sendHop builds the probes of the current TTL.
func (m *Machine) sendHop(step *Step) error {
	m.state = StateSending
	for i := 0; i < m.opts.NumProbes; i++ {
		p, err := m.factory.Build(uint8(m.ttl), i)
		if err == nil && p == nil {
			err = fmt.Errorf("factory returned no probe")
		}
		if err != nil {
			m.inFlight.Clear()
			step.Sends = nil
			m.state = StateTerminated
			return fmt.Errorf("%w: ttl %d probe %d: %w", ErrProbeAllocation, m.ttl, i, err)
		}
		m.inFlight.Add(p)
		step.Sends = append(step.Sends, Send{Probe: p, Delay: time.Duration(i) * m.opts.Interval})
	}
	m.state = StateAwaitingReplies
	return nil
}

func (m *Machine) resetHop() {
	m.inFlight.Clear()
	m.replies = 0
	m.stars = 0
	m.reached = false
	m.responders = nil
	m.newResponder = false
}

// record notes a responder of the current hop.
func (m *Machine) record(a netip.Addr) {
	for _, r := range m.responders {
		if r == a {
			return
		}
	}
	m.responders = append(m.responders, a)
	if _, ok := m.seen[a]; !ok {
		m.newResponder = true
	}
}

// terminate releases the probes still in flight and emits the terminal
// event t carrying them.
func (m *Machine) terminate(step *Step, t EventType) {
	released := m.inFlight.RemoveFunc(func(*probe.Probe) bool { return true })
	m.state = StateTerminated
	m.emit(step, Event{Type: t, Released: released})
}

func (m *Machine) emit(step *Step, ev Event) {
	step.Events = append(step.Events, ev)
	if m.handler != nil {
		m.handler(ev, m.opts, m.Hop())
	}
}

func (m *Machine) step() Step {
	return Step{State: m.state, TTL: m.ttl}
}

func (m *Machine) finish(step Step) Step {
	step.State = m.state
	step.TTL = m.ttl
	return step
}
