package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"

	"github.com/otiai10/orderhook/internal/api"
	"github.com/otiai10/orderhook/internal/app"
	"github.com/otiai10/orderhook/internal/auth"
	"github.com/otiai10/orderhook/internal/config"
	"github.com/otiai10/orderhook/internal/delivery/webhook"
	"github.com/otiai10/orderhook/internal/logging"
	"github.com/otiai10/orderhook/internal/security"
	"github.com/otiai10/orderhook/internal/source"
	"github.com/otiai10/orderhook/internal/source/kafka"
	"github.com/otiai10/orderhook/internal/source/natsstan"
	"github.com/otiai10/orderhook/internal/source/redisq"
	"github.com/otiai10/orderhook/internal/source/wsfeed"
	"github.com/otiai10/orderhook/internal/store"
	"github.com/otiai10/orderhook/internal/tracing"
	"github.com/otiai10/orderhook/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	flags := flag.NewFlagSet("orderhook", flag.ContinueOnError)
	configPath := flags.String("config", "", "Path to YAML config file (environment only when empty)")
	verify := flags.Bool("verify", false, "Run the URL verification challenge against every configured endpoint and exit")
	generateSecret := flags.Bool("generate-secret", false, "Print a new shared secret and exit")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if *generateSecret {
		secret, err := webhook.GenerateSecret()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate secret: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, secret)
		return 0
	}

	// Load .env.localdev file if it exists (for local development)
	_ = godotenv.Load(".env.localdev")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	provider := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger := provider.GetLogger("orderhook")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown error", "error", err)
		}
	}()

	settings, closeSettings, err := buildSettingsStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize settings backend", "backend", cfg.Backend(), "error", err)
		return 1
	}
	defer closeSettings()
	reader := config.NewReader(settings)

	if *verify {
		return verifyEndpoints(ctx, reader, cfg.Webhook.UserAgent, stdout)
	}

	sender := webhook.NewSender(senderOptions(cfg, provider, tp)...)
	coordinator := webhook.NewCoordinator(reader, sender,
		webhook.WithLogger(provider.GetLogger(webhook.Facility)),
		webhook.WithConcurrentDelivery(cfg.Webhook.Concurrent),
		webhook.WithTracerProvider(tp),
	)

	logSummary(ctx, logger, cfg, reader)

	// Start API server if configured
	var apiServer *api.Server
	if cfg.API != nil {
		var verifier auth.TokenVerifier
		if cfg.Auth != nil && cfg.Auth.Enabled {
			v, err := auth.NewFirebaseTokenVerifier(ctx, *cfg.Auth)
			if err != nil {
				logger.Error("Failed to create Firebase Auth verifier", "error", err)
				return 1
			}
			verifier = v
			logger.Info("Firebase Auth enabled", "project_id", cfg.Auth.ProjectID, "tenant_id", cfg.Auth.TenantID)
		}

		handler := api.NewRouter(api.RouterConfig{
			Dispatcher:          coordinator,
			TokenVerifier:       verifier,
			StripeWebhookSecret: cfg.API.StripeWebhookSecret,
			Logger:              provider.GetLogger("api"),
			TracerProvider:      tp,
		})
		apiServer = api.NewServer(cfg.API.Addr, handler)
		if err := apiServer.Listen(); err != nil {
			logger.Error("Failed to start API server", "error", err)
			return 1
		}
		logger.Info("Starting HTTP API", "addr", apiServer.Addr())
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("API server error", "error", err)
				cancel()
			}
		}()
	}

	application := app.NewApp(coordinator,
		app.WithSources(buildSources(cfg, provider)...),
		app.WithLogger(logger),
	)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	exitCode := 0
	if err := application.Run(ctx); err != nil {
		logger.Error("Application error", "error", err)
		exitCode = 1
	}

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("API server shutdown error", "error", err)
		}
		logger.Info("API server stopped")
	}

	logger.Info("Goodbye!")
	return exitCode
}

// buildSettingsStore selects where webhook.* keys are read from
func buildSettingsStore(ctx context.Context, cfg *config.Config, logger glog.Logger) (config.Store, func(), error) {
	switch cfg.Backend() {
	case config.BackendFirestore:
		client, err := store.NewFirestoreClient(ctx, *cfg.Store, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Reading settings from Firestore",
			"project_id", client.ProjectID(),
			"database", client.Database(),
		)
		settings := store.NewFirestoreSettings(client, cfg.Store.Collection, cfg.Store.Document)
		return settings, func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		settings, err := store.NewPostgresSettings(ctx, *cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if err := settings.EnsureSchema(ctx); err != nil {
			_ = settings.Close()
			return nil, nil, err
		}
		logger.Info("Reading settings from Postgres")
		return settings, func() { _ = settings.Close() }, nil

	default:
		logger.Info("Using static settings from config")
		return config.StaticStoreFromWebhook(cfg.Webhook), func() {}, nil
	}
}

func senderOptions(cfg *config.Config, provider glog.LoggerProvider, tp trace.TracerProvider) []webhook.SenderOption {
	opts := []webhook.SenderOption{
		webhook.WithSenderLogger(provider.GetLogger(webhook.Facility)),
		webhook.WithSenderTracerProvider(tp),
	}
	if cfg.Webhook.UserAgent != "" {
		opts = append(opts, webhook.WithUserAgent(cfg.Webhook.UserAgent))
	}
	if cfg.Webhook.ValidateURLs {
		opts = append(opts, webhook.WithURLValidator(security.NewURLGuard(
			security.AllowLocal(cfg.Webhook.AllowLocal),
			security.WithResolver(net.DefaultResolver),
		)))
	}
	return opts
}

// buildSources creates one source per configured stream
func buildSources(cfg *config.Config, provider glog.LoggerProvider) []source.Source {
	var sources []source.Source
	if ws := cfg.Sources.WebSocket; ws != nil {
		sources = append(sources, wsfeed.NewClient(ws.Endpoint,
			wsfeed.WithLogger(provider.GetLogger("source."+wsfeed.Origin)),
			wsfeed.WithTypes(ws.Types...),
		))
	}
	if n := cfg.Sources.NATS; n != nil {
		sources = append(sources, natsstan.NewSubscriber(*n,
			natsstan.WithLogger(provider.GetLogger("source."+natsstan.Origin)),
		))
	}
	if k := cfg.Sources.Kafka; k != nil {
		sources = append(sources, kafka.NewConsumer(*k,
			kafka.WithLogger(provider.GetLogger("source."+kafka.Origin)),
		))
	}
	if r := cfg.Sources.Redis; r != nil {
		sources = append(sources, redisq.NewQueue(*r,
			redisq.WithLogger(provider.GetLogger("source."+redisq.Origin)),
		))
	}
	return sources
}

// logSummary logs the effective settings with the secret masked
func logSummary(ctx context.Context, logger glog.Logger, cfg *config.Config, reader *config.Reader) {
	settings, err := reader.Load(ctx)
	if err != nil {
		logger.Warn("Could not read webhook settings at startup", "error", err)
		return
	}

	logger.Info("orderhook - order webhook notifier",
		"version", version.Short(),
		"settings_backend", cfg.Backend(),
		"enabled", settings.Enabled,
		"endpoints", len(settings.URLs),
		"timeout", settings.Timeout,
		"secret", webhook.MaskSecret(settings.Secret),
		"concurrent", cfg.Webhook.Concurrent,
		"validate_urls", cfg.Webhook.ValidateURLs,
	)
}

// verifyEndpoints runs the challenge handshake against each endpoint.
// It exits non-zero when any endpoint fails.
func verifyEndpoints(ctx context.Context, reader *config.Reader, userAgent string, out io.Writer) int {
	urls, err := reader.EndpointURLs(ctx)
	if err != nil {
		fmt.Fprintf(out, "failed to read endpoints: %v\n", err)
		return 1
	}
	if len(urls) == 0 {
		fmt.Fprintln(out, "no webhook endpoints configured")
		return 1
	}
	timeout, err := reader.Timeout(ctx)
	if err != nil {
		fmt.Fprintf(out, "failed to read timeout: %v\n", err)
		return 1
	}
	secret, err := reader.Secret(ctx)
	if err != nil {
		fmt.Fprintf(out, "failed to read secret: %v\n", err)
		return 1
	}

	challenger := webhook.NewChallenger(timeout, userAgent)
	code := 0
	for i, u := range urls {
		result := challenger.VerifyURL(ctx, u, secret)
		if result.Success {
			fmt.Fprintf(out, "[%d] OK   %s (%v)\n", i+1, u, result.ResponseTime.Round(time.Millisecond))
			continue
		}
		code = 1
		fmt.Fprintf(out, "[%d] FAIL %s: %s\n", i+1, u, result.ErrorMessage)
	}
	return code
}
