// Package source defines the order event streams that trigger notifications.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Source represents a stream of order events
type Source interface {
	Connect(ctx context.Context) error
	Events() <-chan Event
	Close() error
}

// Event is one order event ready to be dispatched
type Event struct {
	ID         string
	OrderID    int64
	Type       string
	Origin     string // name of the source that produced it
	ReceivedAt time.Time

	// Carrier holds propagation headers (traceparent) when the transport has them
	Carrier map[string]string

	// Ack, when set, must be called once the event has been dispatched
	Ack func()
}

// Done acknowledges the event if the source asked for it
func (e Event) Done() {
	if e.Ack != nil {
		e.Ack()
	}
}

// TextCodeInvalidEvent tags decoding failures
const TextCodeInvalidEvent = "INVALID_ORDER_EVENT"

type message struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	OrderID json.RawMessage `json:"order_id"`
}

// Decode parses an order event:
//
//	{"id": "evt-1", "type": "order.paid", "order_id": 42}
//
// order_id may also be a numeric string ("42"). It must be a non-negative integer.
func Decode(data []byte) (Event, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed order event").
			WithTextCode(TextCodeInvalidEvent)
	}

	orderID, err := ParseOrderID(msg.OrderID)
	if err != nil {
		return Event{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid order_id").
			WithTextCode(TextCodeInvalidEvent).
			WithMetadata(map[string]any{"event_id": msg.ID})
	}

	return Event{
		ID:         msg.ID,
		OrderID:    orderID,
		Type:       msg.Type,
		ReceivedAt: time.Now(),
	}, nil
}

// ParseOrderID accepts a JSON integer or a JSON string holding one
func ParseOrderID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("order_id is missing")
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}
		text = strings.TrimSpace(text)
	}

	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("order_id %s is not an integer", raw)
	}
	if id < 0 {
		return 0, fmt.Errorf("order_id %d is negative", id)
	}
	return id, nil
}

// Accepts reports whether eventType passes the filter. An empty filter accepts everything.
func Accepts(types []string, eventType string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == eventType {
			return true
		}
	}
	return false
}

// DefaultDedupeSize is how many event ids a Deduper remembers
const DefaultDedupeSize = 1000

// Deduper remembers the most recent event ids, evicting the oldest first
type Deduper struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	max   int
}

func NewDeduper(max int) *Deduper {
	if max <= 0 {
		max = DefaultDedupeSize
	}
	return &Deduper{
		seen:  make(map[string]struct{}),
		order: make([]string, 0, max),
		max:   max,
	}
}

// Seen records id and reports whether it was already present.
// Events without an id are never treated as duplicates.
func (d *Deduper) Seen(id string) bool {
	if id == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)

	if len(d.order) > d.max {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}
	return false
}

// Len returns the number of remembered ids
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
