package config

import (
	"context"
	"strconv"
	"strings"
)

// Keys consumed by the notifier
const (
	KeyEnabled  = "webhook.enabled"
	KeyURLs     = "webhook.urls"
	KeyURLSlots = "webhook.url_slots"
	KeyTimeout  = "webhook.timeout"
	KeySecret   = "webhook.secret"
)

// URLKey returns the key of the n-th (1-based) URL slot, e.g. webhook.url2
func URLKey(n int) string {
	return "webhook.url" + strconv.Itoa(n)
}

// Store is a read-only key-value view of the settings.
// Snapshot returns every key in one read, so values taken from the same
// snapshot always belong to the same revision. Missing keys are simply absent.
type Store interface {
	Snapshot(ctx context.Context) (map[string]string, error)
}

// StaticStore serves values fixed at construction time
type StaticStore struct {
	values map[string]string
}

var _ Store = (*StaticStore)(nil)

// NewStaticStore creates a store over a copy of values
func NewStaticStore(values map[string]string) *StaticStore {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &StaticStore{values: copied}
}

// StaticStoreFromWebhook flattens the YAML webhook block into its keys.
// Unset fields are left out so the reader falls back to its defaults.
func StaticStoreFromWebhook(w WebhookConfig) *StaticStore {
	values := map[string]string{}
	if w.Enabled != nil {
		values[KeyEnabled] = strconv.FormatBool(*w.Enabled)
	}
	for i, u := range []string{w.URL1, w.URL2, w.URL3} {
		if u != "" {
			values[URLKey(i+1)] = u
		}
	}
	if len(w.URLs) > 0 {
		values[KeyURLs] = strings.Join(w.URLs, ",")
	}
	if w.URLSlots > 0 {
		values[KeyURLSlots] = strconv.Itoa(w.URLSlots)
	}
	if w.Timeout > 0 {
		values[KeyTimeout] = strconv.Itoa(w.Timeout)
	}
	if w.Secret != "" {
		values[KeySecret] = w.Secret
	}
	return &StaticStore{values: values}
}

// Snapshot returns a copy of the stored values
func (s *StaticStore) Snapshot(_ context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}
