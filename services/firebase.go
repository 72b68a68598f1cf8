package services

import (
	"context"
	"fmt"
	"path"
	"time"

	"alertaraven/config"
	"alertaraven/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FirebaseKVStore keeps the persisted key-value state in Firebase Realtime Database.
// Values live under <root>/<key> as strings, matching the phone's key-value layout.
type FirebaseKVStore struct {
	client *db.Client
	root   string
	logger *zap.Logger
}

func NewFirebaseKVStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*FirebaseKVStore, error) {
	// Parse the service account JSON from environment variable
	serviceAccountJSON := []byte(cfg.FirebaseServiceAccountJSON)

	conf := &firebase.Config{
		DatabaseURL: cfg.FirebaseDbUrl,
	}

	opt := option.WithCredentialsJSON(serviceAccountJSON)
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	fs := &FirebaseKVStore{
		client: client,
		root:   cfg.FirebaseRoot,
		logger: logger,
	}

	if err := fs.testConnection(ctx); err != nil {
		logger.Error("Firebase connection test failed", zap.Error(err))
		return nil, fmt.Errorf("firebase connection test failed: %w", err)
	}

	return fs, nil
}

// testConnection tests Firebase connection with retry logic
func (fs *FirebaseKVStore) testConnection(ctx context.Context) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		fs.logger.Info("Testing Firebase connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		var data interface{}
		err := fs.client.NewRef(fs.root).Get(ctx, &data)
		if err == nil {
			fs.logger.Info("Firebase connection successful")
			return nil
		}

		fs.logger.Warn("Firebase connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Firebase after %d attempts", maxRetries)
}

func (fs *FirebaseKVStore) ref(key string) *db.Ref {
	return fs.client.NewRef(path.Join(fs.root, key))
}

func (fs *FirebaseKVStore) Get(ctx context.Context, key string) (string, error) {
	var value *string
	if err := fs.ref(key).Get(ctx, &value); err != nil {
		return "", fmt.Errorf("firebase get %s: %w", key, err)
	}
	if value == nil {
		return "", models.ErrKeyNotFound
	}
	return *value, nil
}

func (fs *FirebaseKVStore) Set(ctx context.Context, key string, value string) error {
	if err := fs.ref(key).Set(ctx, value); err != nil {
		return fmt.Errorf("firebase set %s: %w", key, err)
	}
	return nil
}

func (fs *FirebaseKVStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := fs.ref(key).Delete(ctx); err != nil {
			return fmt.Errorf("firebase delete %s: %w", key, err)
		}
	}
	return nil
}

// Close closes the Firebase connection
func (fs *FirebaseKVStore) Close() error {
	fs.logger.Info("Closing Firebase store")
	// Firebase client doesn't require explicit closing but we log it
	return nil
}
