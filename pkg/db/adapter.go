package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/nemesis-gg/portal-relayer/config"
	"github.com/nemesis-gg/portal-relayer/pkg/db/models"
)

// DatabaseAdapter holds both storage backends: Postgres for the entity
// repositories (games, collections, assets, users, resources) and Mongo for
// the relay-owned ledgers (transactions, scan cursors, balances, locks).
type DatabaseAdapter struct {
	PostgresClient *gorm.DB
	MongoClient    *mongo.Client
	MongoDatabase  *mongo.Database
}

func NewDatabaseAdapter(cfg *config.Config) (*DatabaseAdapter, error) {
	postgresClient, err := NewPostgresClient(cfg.Database.PostgresURL)
	if err != nil {
		return nil, err
	}
	mongoClient, mongoDatabase, err := NewMongoClient(cfg.Database.MongoURI, cfg.Database.MongoDatabase)
	if err != nil {
		return nil, err
	}
	return &DatabaseAdapter{
		PostgresClient: postgresClient,
		MongoClient:    mongoClient,
		MongoDatabase:  mongoDatabase,
	}, nil
}

func NewPostgresClient(url string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	err = db.AutoMigrate(
		&models.Game{},
		&models.Collection{},
		&models.Asset{},
		&models.User{},
		&models.Resource{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

func NewMongoClient(uri, database string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info().Msg("Connected to MongoDB")

	return client, client.Database(database), nil
}

func (da *DatabaseAdapter) Close(ctx context.Context) error {
	return da.MongoClient.Disconnect(ctx)
}
