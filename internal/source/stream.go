package source

import (
	"sync"

	"github.com/goliatone/go-logger/glog"
)

// Stream is the plumbing shared by every Source: decoding, type filtering,
// deduplication and hand-off to the events channel.
type Stream struct {
	origin string
	types  []string
	dedupe *Deduper
	events chan Event
	logger glog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewStream creates a stream tagging events with origin.
// An empty types list accepts every event type.
func NewStream(origin string, logger glog.Logger, types []string, buffer int) *Stream {
	if buffer <= 0 {
		buffer = 100
	}
	return &Stream{
		origin: origin,
		types:  types,
		dedupe: NewDeduper(DefaultDedupeSize),
		events: make(chan Event, buffer),
		logger: glog.Ensure(logger),
		done:   make(chan struct{}),
	}
}

// Events returns the channel for receiving events
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Done is closed once Stop has been called
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Stop unblocks pending Accept calls. It is safe to call more than once.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Accept decodes data and queues the event. fallbackID is used for
// deduplication when the payload has no id of its own.
//
// Events that are dropped (invalid, filtered or duplicate) are acknowledged
// immediately so brokers do not redeliver them. Accepted events carry ack
// and are acknowledged by the consumer after dispatch.
func (s *Stream) Accept(data []byte, fallbackID string, carrier map[string]string, ack func()) bool {
	if ack == nil {
		ack = func() {}
	}

	ev, err := Decode(data)
	if err != nil {
		s.logger.Error("Dropping invalid order event", "origin", s.origin, "error", err)
		ack()
		return false
	}
	if ev.ID == "" {
		ev.ID = fallbackID
	}

	if !Accepts(s.types, ev.Type) {
		s.logger.Debug("Ignoring order event type", "origin", s.origin, "type", ev.Type, "event_id", ev.ID)
		ack()
		return false
	}
	if s.dedupe.Seen(ev.ID) {
		s.logger.Debug("Skipping duplicate order event", "origin", s.origin, "event_id", ev.ID)
		ack()
		return false
	}

	ev.Origin = s.origin
	ev.Carrier = carrier
	ev.Ack = ack

	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}
