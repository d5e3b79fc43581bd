package mongo

import (
	"context"
	"fmt"
	"time"

	"farm-health-service/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Client wraps the MongoDB connection holding the farm documents.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoClient connects to MongoDB and verifies the connection.
func NewMongoClient(cfg config.MongoConfig) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{client: client, db: client.Database(cfg.DB)}, nil
}

// Database returns the service database handle.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
