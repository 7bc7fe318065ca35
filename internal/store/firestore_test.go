package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/otiai10/orderhook/internal/config"
)

func TestNewFirestoreClient_EmptyProjectID(t *testing.T) {
	_, err := NewFirestoreClient(context.Background(), config.StoreConfig{}, nil)
	if err == nil {
		t.Fatal("NewFirestoreClient() should return error for empty projectID")
	}

	expectedMsg := "projectID is required"
	if err.Error() != expectedMsg {
		t.Errorf("NewFirestoreClient() error = %q, want %q", err.Error(), expectedMsg)
	}
}

func TestFirestoreClient_Accessors(t *testing.T) {
	fc := &FirestoreClient{
		client:    nil,
		projectID: "test-project-123",
		database:  "custom-db",
	}

	if fc.ProjectID() != "test-project-123" {
		t.Errorf("ProjectID() = %q, want %q", fc.ProjectID(), "test-project-123")
	}
	if fc.Database() != "custom-db" {
		t.Errorf("Database() = %q, want %q", fc.Database(), "custom-db")
	}
	if fc.Client() != nil {
		t.Error("Client() should return nil when underlying client is nil")
	}
	if err := fc.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil for nil client", err)
	}
}

func TestFlattenFields(t *testing.T) {
	data := map[string]any{
		"webhook.url1": "https://flat.example.com",
		"webhook": map[string]any{
			"url1":    "https://nested.example.com",
			"url2":    "https://two.example.com",
			"enabled": false,
			"timeout": int64(15),
			"urls":    []any{"https://a.example.com", "https://b.example.com"},
			"secret":  nil,
		},
	}

	tests := []struct {
		key       string
		want      string
		wantFound bool
	}{
		{key: "webhook.url1", want: "https://flat.example.com", wantFound: true},
		{key: "webhook.url2", want: "https://two.example.com", wantFound: true},
		{key: "webhook.enabled", want: "false", wantFound: true},
		{key: "webhook.timeout", want: "15", wantFound: true},
		{key: "webhook.urls", want: "https://a.example.com\nhttps://b.example.com", wantFound: true},
		{key: "webhook.secret", wantFound: false},
		{key: "webhook.url3", wantFound: false},
		{key: "webhook.url2.deeper", wantFound: false},
	}
	flat := flattenFields(data)
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, found := flat[tt.key]
			if got != tt.want || found != tt.wantFound {
				t.Errorf("flattenFields()[%q] = %q, %v, want %q, %v", tt.key, got, found, tt.want, tt.wantFound)
			}
		})
	}

	if got := flattenFields(nil); len(got) != 0 {
		t.Errorf("flattenFields(nil) = %v, want empty", got)
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 1, 15, 12, 30, 45, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "string", in: " 30 ", want: " 30 "},
		{name: "bool", in: true, want: "true"},
		{name: "int", in: 3, want: "3"},
		{name: "float", in: 2.5, want: "2.5"},
		{name: "time", in: ts, want: "2024-01-15T12:30:45Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := formatValue(tt.in); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFirestoreSettings_Snapshot(t *testing.T) {
	s := &FirestoreSettings{
		path: "settings/orderhook",
		fetch: func(ctx context.Context) (map[string]any, error) {
			return map[string]any{"webhook.secret": "s3cret"}, nil
		},
	}
	got, err := s.Snapshot(context.Background())
	if err != nil || got["webhook.secret"] != "s3cret" {
		t.Errorf("Snapshot() = %v, %v", got, err)
	}

	cause := errors.New("unavailable")
	s.fetch = func(ctx context.Context) (map[string]any, error) { return nil, cause }
	if _, err := s.Snapshot(context.Background()); !errors.Is(err, cause) {
		t.Errorf("Snapshot() error = %v, want wrapped %v", err, cause)
	}
}

func TestFirestoreSettings_ThroughReader(t *testing.T) {
	fetches := 0
	s := &FirestoreSettings{
		path: "settings/orderhook",
		fetch: func(ctx context.Context) (map[string]any, error) {
			fetches++
			return map[string]any{
				"webhook": map[string]any{
					"enabled": true,
					"url1":    "https://a.example.com/hook",
					"url3":    "https://c.example.com/hook",
					"timeout": int64(5),
				},
			}, nil
		},
	}
	r := config.NewReader(s)
	ctx := context.Background()

	urls, err := r.EndpointURLs(ctx)
	if err != nil {
		t.Fatalf("EndpointURLs() error = %v", err)
	}
	if len(urls) != 2 || urls[0] != "https://a.example.com/hook" || urls[1] != "https://c.example.com/hook" {
		t.Errorf("EndpointURLs() = %v", urls)
	}
	if timeout, _ := r.Timeout(ctx); timeout != 5*time.Second {
		t.Errorf("Timeout() = %v, want 5s", timeout)
	}

	fetches = 0
	settings, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if fetches != 1 {
		t.Errorf("document reads per load = %d, want 1", fetches)
	}
	if len(settings.URLs) != 2 || settings.Timeout != 5*time.Second {
		t.Errorf("Load() = %+v", settings)
	}
}
