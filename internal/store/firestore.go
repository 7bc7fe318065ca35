package store

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/goliatone/go-logger/glog"
	"google.golang.org/api/option"

	"github.com/otiai10/orderhook/internal/config"
)

// FirestoreClient wraps the Firestore client for data persistence
type FirestoreClient struct {
	client    *firestore.Client
	projectID string
	database  string
}

// Ensure FirestoreClient implements Store interface
var _ Store = (*FirestoreClient)(nil)

// NewFirestoreClient creates a new Firestore client.
// If FIRESTORE_EMULATOR_HOST is set, the client will connect to the emulator.
func NewFirestoreClient(ctx context.Context, cfg config.StoreConfig, logger glog.Logger) (*FirestoreClient, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}

	emulatorHost := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if emulatorHost != "" {
		glog.Ensure(logger).Info("Using Firestore emulator", "host", emulatorHost)
	}

	var opts []option.ClientOption
	if cfg.Credentials != "" && emulatorHost == "" {
		// Only use credentials file when not using emulator
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}

	database := cfg.Database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, database, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &FirestoreClient{
		client:    client,
		projectID: cfg.ProjectID,
		database:  database,
	}, nil
}

// Close releases resources held by the Firestore client
func (f *FirestoreClient) Close() error {
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}

// Client returns the underlying Firestore client
func (f *FirestoreClient) Client() *firestore.Client {
	return f.client
}

// ProjectID returns the GCP project ID
func (f *FirestoreClient) ProjectID() string {
	return f.projectID
}

// Database returns the Firestore database name
func (f *FirestoreClient) Database() string {
	return f.database
}
