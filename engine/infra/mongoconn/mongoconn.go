// Package mongoconn bootstraps the MongoDB client used by the metadata
// backends.
package mongoconn

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/ragplane/ragplane/pkg/logger"
)

const connectTimeout = 10 * time.Second

// Connect dials the metadata backend and verifies it with a ping, returning
// the database handle the stores share.
func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongoconn: connection string is required")
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongoconn: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		if derr := client.Disconnect(context.WithoutCancel(ctx)); derr != nil {
			logger.FromContext(ctx).Warn("failed to disconnect after ping failure", "error", derr)
		}
		return nil, fmt.Errorf("mongoconn: ping: %w", err)
	}
	logger.FromContext(ctx).Info("connected to metadata backend", "database", database)
	return client.Database(database), nil
}
