package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/otiai10/orderhook/internal/config"
)

const (
	defaultSettingsCollection = "settings"
	defaultSettingsDocument   = "orderhook"
)

// FirestoreSettings reads webhook.* keys from a single document.
//
// Keys may be stored flat ("webhook.url1": "...") or nested
// ("webhook": {"url1": "..."}); the flat field wins when both exist.
// Each snapshot is one document read.
// A missing document means every key is unset.
type FirestoreSettings struct {
	fetch func(ctx context.Context) (map[string]any, error)
	path  string
}

var _ config.Store = (*FirestoreSettings)(nil)

// NewFirestoreSettings reads from collection/document, defaulting to settings/orderhook
func NewFirestoreSettings(client *FirestoreClient, collection, document string) *FirestoreSettings {
	if collection == "" {
		collection = defaultSettingsCollection
	}
	if document == "" {
		document = defaultSettingsDocument
	}
	doc := client.Client().Collection(collection).Doc(document)
	return &FirestoreSettings{
		fetch: func(ctx context.Context) (map[string]any, error) {
			return fetchDocument(ctx, doc)
		},
		path: collection + "/" + document,
	}
}

func fetchDocument(ctx context.Context, doc *firestore.DocumentRef) (map[string]any, error) {
	snap, err := doc.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap.Data(), nil
}

// Snapshot implements config.Store with a single document read
func (s *FirestoreSettings) Snapshot(ctx context.Context) (map[string]string, error) {
	data, err := s.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings document %s: %w", s.path, err)
	}
	return flattenFields(data), nil
}

// flattenFields turns document data into dotted keys. Nested maps are
// walked first so a flat field with the same dotted name overrides them.
func flattenFields(data map[string]any) map[string]string {
	out := map[string]string{}
	for k, v := range data {
		if m, ok := v.(map[string]any); ok {
			flattenInto(out, k, m)
		}
	}
	for k, v := range data {
		if _, nested := v.(map[string]any); nested {
			continue
		}
		if value, ok := formatValue(v); ok {
			out[k] = value
		}
	}
	return out
}

func flattenInto(out map[string]string, prefix string, m map[string]any) {
	for k, v := range m {
		key := prefix + "." + k
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		if value, ok := formatValue(v); ok {
			out[key] = value
		}
	}
}
