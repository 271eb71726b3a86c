// Package store provides the MongoDB-backed user and session stores of the
// storefront, accessed via the official mongo-go driver, along with in-memory
// implementations used in tests.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("store: not found")

// Default collection names.
const (
	DefaultUsersCollectionName    = "users"
	DefaultSessionsCollectionName = "sessions"
)

// Connect connects to MongoDB and verifies the connection with a ping.
// A failed ping is returned as an error; callers are expected to treat it as
// fatal at startup rather than continue without storage.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}
	return client, nil
}
