package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/otiai10/orderhook/internal/source"
)

// mockSource is a mock implementation of source.Source for testing
type mockSource struct {
	events     chan source.Event
	connected  bool
	connectErr error
	closed     bool
	mu         sync.Mutex
}

func newMockSource() *mockSource {
	return &mockSource{
		events: make(chan source.Event, 10),
	}
}

func (m *mockSource) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *mockSource) Events() <-chan source.Event {
	return m.events
}

func (m *mockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	return nil
}

func (m *mockSource) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mockDispatcher records every order id it is asked to dispatch
type mockDispatcher struct {
	mu       sync.Mutex
	orders   []int64
	contexts []context.Context
	result   bool
	called   chan int64
}

func newMockDispatcher(result bool) *mockDispatcher {
	return &mockDispatcher{result: result, called: make(chan int64, 10)}
}

func (m *mockDispatcher) Dispatch(ctx context.Context, orderID int64) bool {
	m.mu.Lock()
	m.orders = append(m.orders, orderID)
	m.contexts = append(m.contexts, ctx)
	m.mu.Unlock()
	m.called <- orderID
	return m.result
}

func (m *mockDispatcher) Orders() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.orders...)
}

// blockingDispatcher holds each dispatch until release is closed
type blockingDispatcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (d *blockingDispatcher) Dispatch(ctx context.Context, orderID int64) bool {
	d.once.Do(func() { close(d.started) })
	<-d.release
	return true
}

func TestNewApp(t *testing.T) {
	d := newMockDispatcher(true)
	app := NewApp(d, WithSources(newMockSource(), nil, newMockSource()), WithLogger(nil))

	if app.dispatcher != d {
		t.Error("App dispatcher not set correctly")
	}
	if len(app.sources) != 2 {
		t.Errorf("len(sources) = %d, want 2 (nil skipped)", len(app.sources))
	}
	if app.logger == nil {
		t.Error("logger is nil")
	}
}

func TestApp_handleEvent(t *testing.T) {
	t.Run("dispatches and acknowledges", func(t *testing.T) {
		for _, result := range []bool{true, false} {
			d := newMockDispatcher(result)
			app := NewApp(d)

			acked := 0
			got := app.handleEvent(context.Background(), source.Event{
				ID:      "evt-1",
				OrderID: 42,
				Ack:     func() { acked++ },
			})

			if got != result {
				t.Errorf("handleEvent() = %v, want %v", got, result)
			}
			if orders := d.Orders(); len(orders) != 1 || orders[0] != 42 {
				t.Errorf("dispatched orders = %v, want [42]", orders)
			}
			if acked != 1 {
				t.Errorf("acked = %d, want 1", acked)
			}
		}
	})

	t.Run("continues trace from carrier", func(t *testing.T) {
		d := newMockDispatcher(true)
		app := NewApp(d)

		app.handleEvent(context.Background(), source.Event{
			OrderID: 7,
			Carrier: map[string]string{
				"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			},
		})

		sc := trace.SpanContextFromContext(d.contexts[0])
		if !sc.IsValid() {
			t.Fatal("dispatch context carries no remote span context")
		}
		if got := sc.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
			t.Errorf("TraceID = %s", got)
		}
	})
}

func TestApp_Run(t *testing.T) {
	t.Run("consumes every source", func(t *testing.T) {
		s1, s2 := newMockSource(), newMockSource()
		d := newMockDispatcher(true)
		app := NewApp(d, WithSources(s1, s2))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			errCh <- app.Run(ctx)
		}()

		s1.events <- source.Event{ID: "a", OrderID: 1}
		s2.events <- source.Event{ID: "b", OrderID: 2}

		seen := map[int64]bool{}
		for i := 0; i < 2; i++ {
			select {
			case id := <-d.called:
				seen[id] = true
			case <-time.After(time.Second):
				t.Fatal("timeout waiting for dispatch")
			}
		}
		if !seen[1] || !seen[2] {
			t.Errorf("dispatched = %v, want orders 1 and 2", seen)
		}

		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Run did not return after cancel")
		}
		if !s1.isClosed() || !s2.isClosed() {
			t.Error("sources not closed on shutdown")
		}
	})

	t.Run("connect failure closes connected sources", func(t *testing.T) {
		ok := newMockSource()
		bad := newMockSource()
		bad.connectErr = errors.New("connection refused")
		app := NewApp(newMockDispatcher(true), WithSources(ok, bad))

		err := app.Run(context.Background())
		if err == nil {
			t.Fatal("Run() error = nil, want connect error")
		}
		if !errors.Is(err, bad.connectErr) {
			t.Errorf("Run() error = %v, want wrapped %v", err, bad.connectErr)
		}
		if !ok.isClosed() {
			t.Error("connected source not closed")
		}
	})

	t.Run("in-flight dispatch is acknowledged before the source closes", func(t *testing.T) {
		src := newMockSource()
		d := &blockingDispatcher{started: make(chan struct{}), release: make(chan struct{})}
		app := NewApp(d, WithSources(src))

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- app.Run(ctx)
		}()

		var mu sync.Mutex
		var order []string
		src.events <- source.Event{ID: "a", OrderID: 1, Ack: func() {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, "ack")
			if src.isClosed() {
				order = append(order, "closed-before-ack")
			}
		}}

		select {
		case <-d.started:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for dispatch")
		}
		cancel()
		time.Sleep(20 * time.Millisecond)
		if src.isClosed() {
			t.Error("source closed while a dispatch was in flight")
		}
		close(d.release)

		select {
		case <-errCh:
		case <-time.After(time.Second):
			t.Fatal("Run did not return after cancel")
		}
		mu.Lock()
		defer mu.Unlock()
		if len(order) != 1 || order[0] != "ack" {
			t.Errorf("order = %v, want a single ack before close", order)
		}
		if !src.isClosed() {
			t.Error("source not closed on shutdown")
		}
	})

	t.Run("no sources waits for cancellation", func(t *testing.T) {
		app := NewApp(newMockDispatcher(true))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if err := app.Run(ctx); err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})
}
