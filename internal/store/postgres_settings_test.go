package store

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/otiai10/orderhook/internal/config"
)

type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.value
	return nil
}

type fakeQuerier struct {
	row     fakeRow
	calls   int
	lastSQL string
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.calls++
	q.lastSQL = sql
	return q.row
}

func TestTableName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: `"orderhook_settings"`},
		{in: "shop_settings", want: `"shop_settings"`},
		{in: `evil"; DROP TABLE x; --`, want: `"evil""; DROP TABLE x; --"`},
	}
	for _, tt := range tests {
		if got := tableName(tt.in); got != tt.want {
			t.Errorf("tableName(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPostgresSettings_Snapshot(t *testing.T) {
	tests := []struct {
		name    string
		row     fakeRow
		want    map[string]string
		wantErr bool
	}{
		{
			name: "aggregated rows",
			row:  fakeRow{value: `{"webhook.enabled":"1","webhook.secret":" spaced "}`},
			want: map[string]string{config.KeyEnabled: "1", config.KeySecret: " spaced "},
		},
		{name: "empty table", row: fakeRow{value: `{}`}, want: map[string]string{}},
		{name: "no rows", row: fakeRow{err: pgx.ErrNoRows}, want: map[string]string{}},
		{name: "query error", row: fakeRow{err: errors.New("connection reset")}, wantErr: true},
		{name: "malformed aggregate", row: fakeRow{value: `not json`}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQuerier{row: tt.row}
			s := &PostgresSettings{db: q, table: tableName("")}

			got, err := s.Snapshot(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Errorf("Snapshot() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Snapshot() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Snapshot() = %v, want %v", got, tt.want)
			}
			if q.calls != 1 {
				t.Errorf("queries = %d, want 1", q.calls)
			}
			if !strings.Contains(q.lastSQL, `"orderhook_settings"`) {
				t.Errorf("query = %q, want sanitized table name", q.lastSQL)
			}
		})
	}
}

func TestPostgresSettings_ReaderLoadsOnce(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{value: `{"webhook.url1":"https://a.example.com","webhook.secret":"s1","webhook.timeout":"4"}`}}
	r := config.NewReader(&PostgresSettings{db: q, table: tableName("")})

	settings, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if q.calls != 1 {
		t.Errorf("queries per load = %d, want 1", q.calls)
	}
	if len(settings.URLs) != 1 || settings.Secret != "s1" || settings.Timeout != 4*time.Second {
		t.Errorf("Load() = %+v", settings)
	}
}

func TestPostgresSettings_ReaderWrapsStoreErrors(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{err: errors.New("connection reset")}}
	r := config.NewReader(&PostgresSettings{db: q, table: tableName("")})

	if _, err := r.Enabled(context.Background()); err == nil {
		t.Error("Enabled() error = nil, want store error")
	}
}

func TestNewPostgresSettings_InvalidDSN(t *testing.T) {
	_, err := NewPostgresSettings(context.Background(), config.PostgresConfig{DSN: "postgres://%zz"})
	if err == nil {
		t.Error("NewPostgresSettings() error = nil, want parse error")
	}
}

func TestPostgresSettings_CloseWithoutPool(t *testing.T) {
	s := &PostgresSettings{}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
