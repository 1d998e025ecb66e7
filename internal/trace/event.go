package trace

import (
	"net/netip"

	"github.com/KilimcininKorOglu/parisprobe/internal/probe"
)

// EventType identifies what happened.
type EventType int

const (
	// EventProbeReply reports a reply (from a router or the destination)
	EventProbeReply EventType = iota
	// EventICMPError reports an ICMP error quoting a probe
	EventICMPError
	// EventStar reports a probe that timed out
	EventStar
	// EventDestinationReached ends a run that reached the destination
	EventDestinationReached
	// EventMaxTTLReached ends a run that exhausted its TTL range
	EventMaxTTLReached
	// EventTooManyStars ends a run after too many silent hops
	EventTooManyStars
	// EventCancelled ends a run that was stopped from outside
	EventCancelled
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventProbeReply:
		return "PROBE_REPLY"
	case EventICMPError:
		return "ICMP_ERROR"
	case EventStar:
		return "STAR"
	case EventDestinationReached:
		return "DESTINATION_REACHED"
	case EventMaxTTLReached:
		return "MAX_TTL_REACHED"
	case EventTooManyStars:
		return "TOO_MANY_STARS"
	case EventCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the event ends a run.
func (t EventType) Terminal() bool {
	return t >= EventDestinationReached
}

// Event is emitted by the state machine. Probe is set for reply, error and
// star events; Reply is set for reply and error events.
type Event struct {
	Type  EventType
	Probe *probe.Probe
	Reply *probe.Reply

	// Released lists the probes still in flight when a terminal event
	// ended the run, in send order.
	Released []*probe.Probe
}

// HopState is a snapshot of the hop being explored.
type HopState struct {
	TTL                int
	DestinationReached bool
	NumReplies         int
	NumStars           int
	NumUndiscovered    int
	InFlight           int
	Responders         []netip.Addr
}

// Handler receives every event, in emission order, with the options of the
// run and the hop state at emission time.
type Handler func(ev Event, opts Options, hop HopState)
