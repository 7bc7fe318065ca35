package wsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Mock WebSocket server for testing
func newMockWSServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("Upgrade error: %v", err)
			return
		}
		defer conn.Close()

		handler(conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestNewClient(t *testing.T) {
	client := NewClient("wss://shop.example.com/events")

	if client.endpoint != "wss://shop.example.com/events" {
		t.Errorf("endpoint = %q", client.endpoint)
	}
	if client.reconnectInterval != defaultReconnectInterval {
		t.Errorf("reconnectInterval = %v, want %v", client.reconnectInterval, defaultReconnectInterval)
	}
	if client.Events() == nil {
		t.Error("Events() returned nil channel")
	}
}

func TestClient_ReceivesOrderEvents(t *testing.T) {
	server := newMockWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"evt-1","type":"order.paid","order_id":42}`))
		time.Sleep(200 * time.Millisecond)
	})

	client := NewClient(wsURL(server))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	select {
	case ev := <-client.Events():
		if ev.OrderID != 42 {
			t.Errorf("OrderID = %d, want 42", ev.OrderID)
		}
		if ev.ID != "evt-1" || ev.Type != "order.paid" {
			t.Errorf("ID, Type = %q, %q", ev.ID, ev.Type)
		}
		if ev.Origin != Origin {
			t.Errorf("Origin = %q, want %q", ev.Origin, Origin)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

func TestClient_FiltersAndDeduplicates(t *testing.T) {
	server := newMockWSServer(t, func(conn *websocket.Conn) {
		msgs := []string{
			`{"id":"a","type":"order.created","order_id":1}`,
			`{"id":"b","type":"order.paid","order_id":2}`,
			`{"id":"b","type":"order.paid","order_id":2}`,
			`not json`,
			`{"id":"c","type":"order.paid","order_id":"3"}`,
		}
		for _, m := range msgs {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(m))
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte(`{"id":"d","type":"order.paid","order_id":4}`))
		time.Sleep(300 * time.Millisecond)
	})

	client := NewClient(wsURL(server), WithTypes("order.paid"))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var got []int64
	timeout := time.After(500 * time.Millisecond)
	for {
		select {
		case ev := <-client.Events():
			got = append(got, ev.OrderID)
			continue
		case <-timeout:
		}
		break
	}

	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("received order ids = %v, want [2 3]", got)
	}
}

func TestClient_ReconnectsAfterServerClose(t *testing.T) {
	var connections atomic.Int32
	server := newMockWSServer(t, func(conn *websocket.Conn) {
		n := connections.Add(1)
		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"first","order_id":1}`))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"second","order_id":2}`))
		time.Sleep(300 * time.Millisecond)
	})

	client := NewClient(wsURL(server), withRetryDelay(10*time.Millisecond))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	want := []string{"first", "second"}
	for _, id := range want {
		select {
		case ev := <-client.Events():
			if ev.ID != id {
				t.Errorf("ID = %q, want %q", ev.ID, id)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timeout waiting for %s", id)
		}
	}
	if connections.Load() < 2 {
		t.Errorf("connections = %d, want at least 2", connections.Load())
	}
}

func TestClient_ConnectFailsWhenContextCancelled(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/events", withRetryDelay(10*time.Millisecond))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := client.Connect(ctx); err == nil {
		t.Fatal("Connect() error = nil, want error for unreachable endpoint")
	}
}

func TestClient_Close(t *testing.T) {
	client := NewClient("wss://shop.example.com/events")

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := client.connect(context.Background()); err != errClosed {
		t.Errorf("connect() after Close = %v, want %v", err, errClosed)
	}
}
