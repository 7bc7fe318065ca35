package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Defaults applied when a key is absent or empty
const (
	DefaultEnabled  = true
	DefaultURLSlots = 3
	DefaultTimeout  = 30 * time.Second
)

// Settings is the resolved endpoint configuration of one dispatch.
// When Enabled is false the other fields are left zero.
type Settings struct {
	Enabled bool
	URLs    []string
	Timeout time.Duration
	Secret  string
}

// Reader provides typed reads of the webhook settings.
// Every call takes a fresh snapshot from the underlying Store; nothing is
// cached, so changes made between dispatches are picked up by the next one.
type Reader struct {
	store Store
}

// NewReader wraps a Store
func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

// Load resolves all settings from a single snapshot.
// Endpoint keys are only validated when notifications are enabled.
func (r *Reader) Load(ctx context.Context) (Settings, error) {
	v, err := r.snapshot(ctx)
	if err != nil {
		return Settings{}, err
	}
	enabled, err := v.enabled()
	if err != nil || !enabled {
		return Settings{}, err
	}
	urls, err := v.endpointURLs()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Enabled: true,
		URLs:    urls,
		Timeout: v.timeout(),
		Secret:  v.secret(),
	}, nil
}

// Enabled reports webhook.enabled (default true)
func (r *Reader) Enabled(ctx context.Context) (bool, error) {
	v, err := r.snapshot(ctx)
	if err != nil {
		return false, err
	}
	return v.enabled()
}

// EndpointURLs resolves the ordered list of non-empty endpoint URLs:
// webhook.url1 .. webhook.url<slots> first, then entries of webhook.urls.
func (r *Reader) EndpointURLs(ctx context.Context) ([]string, error) {
	v, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return v.endpointURLs()
}

// Timeout returns webhook.timeout as a duration (default 30s).
// Non-numeric or non-positive values fall back to the default.
func (r *Reader) Timeout(ctx context.Context) (time.Duration, error) {
	v, err := r.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return v.timeout(), nil
}

// Secret returns webhook.secret (default empty)
func (r *Reader) Secret(ctx context.Context) (string, error) {
	v, err := r.snapshot(ctx)
	if err != nil {
		return "", err
	}
	return v.secret(), nil
}

func (r *Reader) snapshot(ctx context.Context) (values, error) {
	if r == nil || r.store == nil {
		return nil, goerrors.New("settings store is not configured", goerrors.CategoryInternal)
	}
	v, err := r.store.Snapshot(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to read webhook settings").
			WithTextCode("CONFIG_READ_FAILED")
	}
	return values(v), nil
}

// values is one snapshot of the settings keys
type values map[string]string

// lookup trims the value and treats blank as absent
func (v values) lookup(key string) (string, bool) {
	s := strings.TrimSpace(v[key])
	return s, s != ""
}

func (v values) enabled() (bool, error) {
	s, ok := v.lookup(KeyEnabled)
	if !ok {
		return DefaultEnabled, nil
	}
	enabled, err := ParseBool(s)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid "+KeyEnabled).
			WithMetadata(map[string]any{"value": s})
	}
	return enabled, nil
}

func (v values) endpointURLs() ([]string, error) {
	slots := DefaultURLSlots
	if s, ok := v.lookup(KeyURLSlots); ok {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, goerrors.New("invalid "+KeyURLSlots, goerrors.CategoryValidation).
				WithMetadata(map[string]any{"value": s})
		}
		slots = n
	}

	urls := make([]string, 0, slots)
	for i := 1; i <= slots; i++ {
		if u, ok := v.lookup(URLKey(i)); ok {
			urls = append(urls, u)
		}
	}
	if extra, ok := v.lookup(KeyURLs); ok {
		urls = append(urls, SplitList(extra)...)
	}
	return urls, nil
}

func (v values) timeout() time.Duration {
	s, ok := v.lookup(KeyTimeout)
	if !ok {
		return DefaultTimeout
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return DefaultTimeout
	}
	return time.Duration(n) * time.Second
}

// secret is returned untrimmed
func (v values) secret() string {
	return v[KeySecret]
}

// ParseBool accepts the usual spellings of a flag: true/false, 1/0, yes/no, on/off.
func ParseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}

// SplitList splits on commas and newlines, dropping blank entries
func SplitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
