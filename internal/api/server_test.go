package api

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestServer_StartAndShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", NewRouter(RouterConfig{Dispatcher: &fakeDispatcher{}}))
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, body = %s", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Start() error = %v", err)
	}
}

func TestServer_Addr(t *testing.T) {
	s := NewServer(":8080", http.NotFoundHandler())
	if s.Addr() != ":8080" {
		t.Errorf("Addr() = %q, want :8080", s.Addr())
	}
}
