package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/KilimcininKorOglu/parisprobe/internal/packet"
	"github.com/KilimcininKorOglu/parisprobe/internal/probe"
	"github.com/KilimcininKorOglu/parisprobe/internal/protocol"
	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
)

// DefaultTimeout is how long a probe waits for its reply.
const DefaultTimeout = 3 * time.Second

// Config holds the optional collaborators of a Loop.
type Config struct {
	// Timeout is the per-probe reply timeout
	Timeout time.Duration

	// Decoder parses received datagrams. The default registry is used
	// when nil.
	Decoder *packet.Decoder

	// Scheduler runs timers. RealScheduler when nil.
	Scheduler Scheduler

	// Capture, when set, receives every packet sent and matched
	Capture PacketRecorder

	// Logger receives debug traces of the loop
	Logger *log.Logger
}

// message is anything the loop goroutine reacts to.
type message interface{}

type sendMsg struct{ probe *probe.Probe }

type timeoutMsg struct{ probe *probe.Probe }

type replyMsg struct {
	match probe.Match
	pkt   *packet.Packet
	at    time.Time
}

type recvErrMsg struct{ err error }

type pendingProbe struct {
	probe *probe.Probe
	timer Timer
}

// Loop drives one machine to completion.
type Loop struct {
	machine  *trace.Machine
	sender   Sender
	receiver Receiver
	matcher  Matcher

	timeout time.Duration
	decoder *packet.Decoder
	sched   Scheduler
	capture PacketRecorder
	logger  *log.Entry

	msgs    chan message
	done    chan struct{}
	pending map[uint16]*pendingProbe
	delayed []Timer
}

// NewLoop binds a machine to its transport.
func NewLoop(m *trace.Machine, s Sender, r Receiver, match Matcher, cfg Config) (*Loop, error) {
	if s == nil {
		return nil, ErrNoSender
	}
	if r == nil {
		return nil, ErrNoReceiver
	}
	if match == nil {
		return nil, ErrNoMatcher
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Decoder == nil {
		cfg.Decoder = packet.NewDecoder(protocol.Default())
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New()
		cfg.Logger.SetOutput(io.Discard)
	}

	opts := m.Options()
	return &Loop{
		machine:  m,
		sender:   s,
		receiver: r,
		matcher:  match,
		timeout:  cfg.Timeout,
		decoder:  cfg.Decoder,
		sched:    cfg.Scheduler,
		capture:  cfg.Capture,
		logger: cfg.Logger.WithFields(log.Fields{
			"algorithm":   opts.Algorithm.String(),
			"destination": opts.Destination.String(),
		}),
		msgs:    make(chan message, 64),
		done:    make(chan struct{}),
		pending: make(map[uint16]*pendingProbe),
	}, nil
}

// Run starts the machine and processes its inputs until it terminates.
// Cancelling ctx stops the machine; Run then returns ctx.Err(). A loop
// runs once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer l.stopTimers()

	recvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go l.receive(recvCtx)

	step, err := l.machine.Start()
	if err != nil {
		return err
	}
	if err := l.apply(ctx, step); err != nil {
		return err
	}

	for !l.machine.Done() {
		var fatal error
		select {
		case <-ctx.Done():
			l.logger.Debug("context done, stopping")
			step, err = l.machine.Handle(trace.StopInput{})
			fatal = ctx.Err()
		case msg := <-l.msgs:
			if e, ok := msg.(recvErrMsg); ok {
				l.logger.Errorf("receive failed: %v", e.err)
				step, err = l.machine.Handle(trace.StopInput{})
				fatal = fmt.Errorf("receive: %w", e.err)
				break
			}
			step, err = l.handle(ctx, msg)
		}
		if err != nil {
			return err
		}
		if err := l.apply(ctx, step); err != nil {
			return err
		}
		if fatal != nil {
			return fatal
		}
	}

	l.logger.Debug("machine terminated")
	return nil
}

func (l *Loop) handle(ctx context.Context, msg message) (trace.Step, error) {
	switch msg := msg.(type) {
	case sendMsg:
		return l.transmit(ctx, msg.probe)

	case timeoutMsg:
		if _, ok := l.pending[msg.probe.Tag]; !ok {
			return trace.Step{}, nil
		}
		delete(l.pending, msg.probe.Tag)
		l.logger.Debugf("probe %s timed out", msg.probe)
		return l.machine.Handle(trace.TimeoutInput{Probe: msg.probe})

	case replyMsg:
		pp, ok := l.pending[msg.match.Tag]
		if !ok {
			l.logger.Debugf("discarding reply with unknown tag %d from %s", msg.match.Tag, msg.match.Src)
			return trace.Step{}, nil
		}
		pp.timer.Stop()
		delete(l.pending, msg.match.Tag)

		reply := probe.NewReply(pp.probe, msg.match, msg.pkt, msg.at)
		l.logger.Debugf("probe %s answered by %s (%s) in %s", pp.probe, reply.Src, reply.Kind, reply.RTT())
		return l.machine.Handle(Classify(reply))
	}
	return trace.Step{}, nil
}

// Classify turns a correlated reply into a machine input. Time exceeded
// messages and anything sent by the destination itself count as replies;
// other ICMP errors from routers are reported as errors.
func Classify(r *probe.Reply) trace.Input {
	switch {
	case r.Kind == probe.KindReply, r.Kind == probe.KindTimeExceeded:
		return trace.ReplyInput{Probe: r.Probe, Reply: r}
	case r.Probe != nil && r.Src == r.Probe.Dst:
		return trace.ReplyInput{Probe: r.Probe, Reply: r}
	default:
		return trace.ICMPErrorInput{Probe: r.Probe, Reply: r}
	}
}

// apply performs the sends a step asks for.
func (l *Loop) apply(ctx context.Context, step trace.Step) error {
	for _, s := range step.Sends {
		if s.Delay > 0 {
			p := s.Probe
			l.delayed = append(l.delayed, l.sched.AfterFunc(s.Delay, func() {
				l.post(sendMsg{probe: p})
			}))
			continue
		}
		next, err := l.transmit(ctx, s.Probe)
		if err != nil {
			return err
		}
		// A failed send resolves into a timeout, which may itself ask
		// for more probes.
		if err := l.apply(ctx, next); err != nil {
			return err
		}
	}
	if l.machine.Done() {
		l.stopTimers()
	}
	return nil
}

// transmit sends p and arms its timeout. A send failure is reported to the
// machine as an immediate timeout.
func (l *Loop) transmit(ctx context.Context, p *probe.Probe) (trace.Step, error) {
	if l.machine.Done() {
		return trace.Step{}, nil
	}
	p.SentAt = time.Now()
	if err := l.sender.Send(ctx, p.Bytes, p.Dst); err != nil {
		l.logger.Warnf("failed to send probe %s: %v", p, err)
		return l.machine.Handle(trace.TimeoutInput{Probe: p})
	}
	l.record(p.SentAt, p.Bytes)

	l.pending[p.Tag] = &pendingProbe{
		probe: p,
		timer: l.sched.AfterFunc(l.timeout, func() {
			l.post(timeoutMsg{probe: p})
		}),
	}
	return trace.Step{}, nil
}

// receive reads datagrams until ctx is done, forwarding those that match.
func (l *Loop) receive(ctx context.Context) {
	for {
		dg, err := l.receiver.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			l.post(recvErrMsg{err: err})
			return
		}

		pkt, err := l.decoder.Decode(dg.Data)
		if err != nil && !packet.IsTruncated(err) {
			l.logger.Debugf("dropping undecodable datagram: %v", err)
			continue
		}
		m, ok := l.matcher.Match(pkt)
		if !ok {
			continue
		}
		l.record(dg.ReceivedAt, dg.Data)
		l.post(replyMsg{match: m, pkt: pkt, at: dg.ReceivedAt})
	}
}

func (l *Loop) post(msg message) {
	select {
	case l.msgs <- msg:
	case <-l.done:
	}
}

func (l *Loop) record(ts time.Time, data []byte) {
	if l.capture == nil {
		return
	}
	if err := l.capture.WritePacket(ts, data); err != nil {
		l.logger.Warnf("failed to capture packet: %v", err)
	}
}

func (l *Loop) stopTimers() {
	for tag, pp := range l.pending {
		pp.timer.Stop()
		delete(l.pending, tag)
	}
	for _, t := range l.delayed {
		t.Stop()
	}
	l.delayed = nil
}
