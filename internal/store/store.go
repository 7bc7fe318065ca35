// Package store holds the runtime settings backends read by the notifier on
// every dispatch: a Firestore document or a Postgres key-value table.
package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Store defines the base interface for data store operations
type Store interface {
	// Close releases any resources held by the store
	Close() error
}

// formatValue renders a stored value the way the settings reader expects it
func formatValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case int:
		return strconv.Itoa(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case time.Time:
		return val.Format(time.RFC3339), true
	case []any:
		// lists are stored as the newline-separated form of webhook.urls
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, "\n"), true
	default:
		return fmt.Sprint(val), true
	}
}
