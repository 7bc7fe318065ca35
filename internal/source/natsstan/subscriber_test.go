package natsstan

import (
	"strings"
	"testing"
	"time"

	"github.com/otiai10/orderhook/internal/config"
)

func TestNewSubscriber_Defaults(t *testing.T) {
	s := NewSubscriber(config.NATSSourceConfig{
		URL:       "nats://localhost:4222",
		ClusterID: "test-cluster",
		Subject:   "orders",
	})

	if !strings.HasPrefix(s.clientID, "orderhook-") {
		t.Errorf("clientID = %q, want generated orderhook-*", s.clientID)
	}
	if s.queue != defaultQueue {
		t.Errorf("queue = %q, want %q", s.queue, defaultQueue)
	}
	if s.durable != defaultDurable {
		t.Errorf("durable = %q, want %q", s.durable, defaultDurable)
	}
	if s.ackWait != defaultAckWait {
		t.Errorf("ackWait = %v, want %v", s.ackWait, defaultAckWait)
	}
}

func TestNewSubscriber_Explicit(t *testing.T) {
	s := NewSubscriber(config.NATSSourceConfig{
		ClientID: "worker-1",
		Queue:    "q",
		Durable:  "d",
	}, WithAckWait(5*time.Second), WithAckWait(-1))

	if s.clientID != "worker-1" || s.queue != "q" || s.durable != "d" {
		t.Errorf("clientID, queue, durable = %q, %q, %q", s.clientID, s.queue, s.durable)
	}
	if s.ackWait != 5*time.Second {
		t.Errorf("ackWait = %v, want 5s", s.ackWait)
	}
}

func TestSubscriber_Handle(t *testing.T) {
	s := NewSubscriber(config.NATSSourceConfig{}, WithTypes("order.paid"))
	defer s.Close()

	acked := map[uint64]int{}
	ackFor := func(seq uint64) func() {
		return func() { acked[seq]++ }
	}

	if !s.handle([]byte(`{"type":"order.paid","order_id":10}`), 1, ackFor(1)) {
		t.Fatal("valid message rejected")
	}
	// redelivery of the same sequence
	if s.handle([]byte(`{"type":"order.paid","order_id":10}`), 1, ackFor(1)) {
		t.Error("redelivered message accepted twice")
	}
	if s.handle([]byte(`{"type":"order.created","order_id":11}`), 2, ackFor(2)) {
		t.Error("filtered message accepted")
	}
	if s.handle([]byte(`garbage`), 3, ackFor(3)) {
		t.Error("invalid message accepted")
	}

	if acked[1] != 1 || acked[2] != 1 || acked[3] != 1 {
		t.Errorf("dropped messages acks = %v, want one each", acked)
	}

	select {
	case ev := <-s.Events():
		if ev.OrderID != 10 || ev.ID != "seq-1" || ev.Origin != Origin {
			t.Errorf("event = %+v", ev)
		}
		ev.Done()
		if acked[1] != 2 {
			t.Errorf("acks for sequence 1 after Done() = %d, want 2", acked[1])
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestSubscriber_CloseWithoutConnect(t *testing.T) {
	s := NewSubscriber(config.NATSSourceConfig{})
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
