package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// Settings backends
const (
	BackendStatic    = "static"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
)

// Config represents the application configuration
type Config struct {
	Webhook  WebhookConfig   `yaml:"webhook"`
	Settings SettingsConfig  `yaml:"settings"`
	Store    *StoreConfig    `yaml:"store,omitempty"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
	API      *APIConfig      `yaml:"api,omitempty"`
	Auth     *AuthConfig     `yaml:"auth,omitempty"`
	Sources  SourcesConfig   `yaml:"sources"`
	Tracing  *TracingConfig  `yaml:"tracing,omitempty"`
	Log      LogConfig       `yaml:"log"`
}

// WebhookConfig holds the endpoint settings used by the static backend,
// plus sender tuning that is not part of the runtime key-value settings.
type WebhookConfig struct {
	Enabled  *bool    `yaml:"enabled,omitempty"`
	URL1     string   `yaml:"url1,omitempty"`
	URL2     string   `yaml:"url2,omitempty"`
	URL3     string   `yaml:"url3,omitempty"`
	URLs     []string `yaml:"urls,omitempty"`
	URLSlots int      `yaml:"url_slots,omitempty"`
	Timeout  int      `yaml:"timeout,omitempty"` // seconds
	Secret   string   `yaml:"secret,omitempty"`

	UserAgent    string `yaml:"user_agent,omitempty"`
	Concurrent   bool   `yaml:"concurrent,omitempty"`
	ValidateURLs bool   `yaml:"validate_urls,omitempty"`
	AllowLocal   bool   `yaml:"allow_local,omitempty"`
}

// SettingsConfig selects where webhook.* keys are read from on every dispatch
type SettingsConfig struct {
	Backend string `yaml:"backend"` // "static" | "firestore" | "postgres"
}

// StoreConfig holds Firestore settings
type StoreConfig struct {
	ProjectID   string `yaml:"project_id"`
	Database    string `yaml:"database,omitempty"`
	Credentials string `yaml:"credentials,omitempty"`
	Collection  string `yaml:"collection,omitempty"`
	Document    string `yaml:"document,omitempty"`
}

// PostgresConfig holds the key-value table settings
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table,omitempty"`
}

// APIConfig holds the HTTP trigger settings
type APIConfig struct {
	Addr                string `yaml:"addr"`
	StripeWebhookSecret string `yaml:"stripe_webhook_secret,omitempty"`
}

// AuthConfig holds Firebase Auth settings for the HTTP trigger
type AuthConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ProjectID   string `yaml:"project_id"`
	Credentials string `yaml:"credentials,omitempty"`
	TenantID    string `yaml:"tenant_id,omitempty"`
}

// SourcesConfig lists the event streams order events are consumed from
type SourcesConfig struct {
	WebSocket *WebSocketSourceConfig `yaml:"websocket,omitempty"`
	NATS      *NATSSourceConfig      `yaml:"nats,omitempty"`
	Kafka     *KafkaSourceConfig     `yaml:"kafka,omitempty"`
	Redis     *RedisSourceConfig     `yaml:"redis,omitempty"`
}

// WebSocketSourceConfig configures the host event stream client
type WebSocketSourceConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Types    []string `yaml:"types,omitempty"`
}

// NATSSourceConfig configures the NATS Streaming subscriber
type NATSSourceConfig struct {
	URL       string `yaml:"url"`
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id,omitempty"`
	Subject   string `yaml:"subject"`
	Queue     string `yaml:"queue,omitempty"`
	Durable   string `yaml:"durable,omitempty"`
}

// KafkaSourceConfig configures the Kafka consumer
type KafkaSourceConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Group   string   `yaml:"group,omitempty"`
}

// RedisSourceConfig configures the Redis list consumer
type RedisSourceConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Key      string `yaml:"key"`
}

// TracingConfig configures the OTLP exporter
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name,omitempty"`
	SampleRate  float64 `yaml:"sample_rate,omitempty"`
	Insecure    bool    `yaml:"insecure,omitempty"`
}

// LogConfig configures the log sink
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Load reads configuration from the specified YAML file.
// An empty path yields a configuration built from environment variables only.
//
// Environment variables override file values:
//   - ORDERHOOK_WEBHOOK_ENABLED, ORDERHOOK_WEBHOOK_URL1..3, ORDERHOOK_WEBHOOK_URLS,
//     ORDERHOOK_WEBHOOK_TIMEOUT, ORDERHOOK_WEBHOOK_SECRET
//   - ORDERHOOK_SETTINGS_BACKEND, ORDERHOOK_POSTGRES_DSN, ORDERHOOK_FIRESTORE_PROJECT
//   - ORDERHOOK_API_ADDR, ORDERHOOK_STRIPE_WEBHOOK_SECRET
//   - ORDERHOOK_LOG_LEVEL, OTEL_EXPORTER_OTLP_ENDPOINT
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("ORDERHOOK_WEBHOOK_ENABLED"); ok {
		enabled, err := ParseBool(v)
		if err != nil {
			return fmt.Errorf("ORDERHOOK_WEBHOOK_ENABLED: %w", err)
		}
		cfg.Webhook.Enabled = &enabled
	}
	setString(&cfg.Webhook.URL1, "ORDERHOOK_WEBHOOK_URL1")
	setString(&cfg.Webhook.URL2, "ORDERHOOK_WEBHOOK_URL2")
	setString(&cfg.Webhook.URL3, "ORDERHOOK_WEBHOOK_URL3")
	if v := os.Getenv("ORDERHOOK_WEBHOOK_URLS"); v != "" {
		cfg.Webhook.URLs = SplitList(v)
	}
	if v := os.Getenv("ORDERHOOK_WEBHOOK_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ORDERHOOK_WEBHOOK_TIMEOUT: %w", err)
		}
		cfg.Webhook.Timeout = n
	}
	setString(&cfg.Webhook.Secret, "ORDERHOOK_WEBHOOK_SECRET")
	setString(&cfg.Settings.Backend, "ORDERHOOK_SETTINGS_BACKEND")

	if v := os.Getenv("ORDERHOOK_POSTGRES_DSN"); v != "" {
		if cfg.Postgres == nil {
			cfg.Postgres = &PostgresConfig{}
		}
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("ORDERHOOK_FIRESTORE_PROJECT"); v != "" {
		if cfg.Store == nil {
			cfg.Store = &StoreConfig{}
		}
		cfg.Store.ProjectID = v
	}
	if v := os.Getenv("ORDERHOOK_API_ADDR"); v != "" {
		if cfg.API == nil {
			cfg.API = &APIConfig{}
		}
		cfg.API.Addr = v
	}
	if v := os.Getenv("ORDERHOOK_STRIPE_WEBHOOK_SECRET"); v != "" && cfg.API != nil {
		cfg.API.StripeWebhookSecret = v
	}
	setString(&cfg.Log.Level, "ORDERHOOK_LOG_LEVEL")
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		if cfg.Tracing == nil {
			cfg.Tracing = &TracingConfig{}
		}
		cfg.Tracing.Endpoint = v
	}
	return nil
}

func setString(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok {
		*dst = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Webhook.Timeout < 0 {
		return invalid("webhook.timeout must not be negative")
	}
	if c.Webhook.URLSlots < 0 {
		return invalid("webhook.url_slots must not be negative")
	}

	switch c.Backend() {
	case BackendStatic:
	case BackendFirestore:
		if c.Store == nil || c.Store.ProjectID == "" {
			return invalid("store.project_id is required for the firestore settings backend")
		}
	case BackendPostgres:
		if c.Postgres == nil || c.Postgres.DSN == "" {
			return invalid("postgres.dsn is required for the postgres settings backend")
		}
	default:
		return invalid(fmt.Sprintf("unsupported settings backend: %q (supported: static, firestore, postgres)", c.Settings.Backend))
	}

	if c.API != nil && c.API.Addr == "" {
		return invalid("api.addr is required when api is configured")
	}
	if c.Auth != nil && c.Auth.Enabled && c.Auth.ProjectID == "" {
		return invalid("auth.project_id is required when auth is enabled")
	}

	if ws := c.Sources.WebSocket; ws != nil && ws.Endpoint == "" {
		return invalid("sources.websocket.endpoint is required")
	}
	if n := c.Sources.NATS; n != nil {
		if n.URL == "" || n.ClusterID == "" || n.Subject == "" {
			return invalid("sources.nats requires url, cluster_id and subject")
		}
	}
	if k := c.Sources.Kafka; k != nil {
		if len(k.Brokers) == 0 || k.Topic == "" {
			return invalid("sources.kafka requires brokers and topic")
		}
	}
	if r := c.Sources.Redis; r != nil {
		if r.Addr == "" || r.Key == "" {
			return invalid("sources.redis requires addr and key")
		}
	}

	return nil
}

// Backend returns the configured settings backend, defaulting to static
func (c *Config) Backend() string {
	b := strings.ToLower(strings.TrimSpace(c.Settings.Backend))
	if b == "" {
		return BackendStatic
	}
	return b
}

func invalid(msg string) error {
	return goerrors.New(msg, goerrors.CategoryValidation).WithTextCode("INVALID_CONFIG")
}
