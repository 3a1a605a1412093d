package database

import (
	"context"
	"fmt"
	"time"

	"github.com/RigelNana/media-service/config"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ConnectMongo connects to MONGO_URI and returns the configured database.
func ConnectMongo(ctx context.Context, cfg config.DatabaseConfig, log *logrus.Logger) (*mongo.Database, error) {
	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.MongoURI).
		SetServerSelectionTimeout(10 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo unreachable: %w", err)
	}

	log.WithField("database", cfg.MongoDatabase).Info("connected to mongodb")
	return client.Database(cfg.MongoDatabase), nil
}
