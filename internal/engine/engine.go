// Package engine drives a probing state machine over real (or simulated)
// sockets. A Loop owns one machine and serialises everything that happens
// to it (replies, timeouts, delayed sends, cancellation) through a single
// channel, so the machine itself never needs locking.
package engine

import (
	"context"
	"net/netip"
	"time"

	"github.com/KilimcininKorOglu/parisprobe/internal/packet"
	"github.com/KilimcininKorOglu/parisprobe/internal/probe"
)

// Sender transmits encoded packets.
type Sender interface {
	Send(ctx context.Context, pkt []byte, dst netip.Addr) error
}

// Datagram is a received IP packet, network header included.
type Datagram struct {
	Data       []byte
	ReceivedAt time.Time
}

// Receiver delivers received packets. Receive blocks until a packet
// arrives, ctx is done or the receiver fails.
type Receiver interface {
	Receive(ctx context.Context) (Datagram, error)
}

// Matcher correlates a decoded packet with a probe tag.
type Matcher interface {
	Match(pkt *packet.Packet) (probe.Match, bool)
}

// PacketRecorder stores a copy of every packet sent or received.
type PacketRecorder interface {
	WritePacket(ts time.Time, data []byte) error
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules with the runtime timers.
type RealScheduler struct{}

// AfterFunc calls time.AfterFunc.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
