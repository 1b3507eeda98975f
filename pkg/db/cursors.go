package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

const scanCursorCollection = "contract_scan_cursors"

// ScanCursorStore persists the last scanned block per (contract, event kind).
type ScanCursorStore struct {
	collection *mongo.Collection
}

func NewScanCursorStore(database *mongo.Database) (*ScanCursorStore, error) {
	store := &ScanCursorStore{collection: database.Collection(scanCursorCollection)}
	if err := store.ensureIndexes(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *ScanCursorStore) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "chainId", Value: 1},
			{Key: "contractAddress", Value: 1},
			{Key: "scanType", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create scan cursor index: %w", err)
	}
	return nil
}

func (s *ScanCursorStore) Create(ctx context.Context, cursor *types.ScanCursor) (*types.ScanCursor, error) {
	cursor.UpdatedAt = time.Now()
	result, err := s.collection.InsertOne(ctx, bson.M{
		"chainId":         cursor.ChainID,
		"contractAddress": cursor.ContractAddress,
		"scanType":        cursor.Kind,
		"firstBlock":      cursor.FirstBlock,
		"lastBlock":       cursor.LastBlock,
		"updatedAt":       cursor.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scan cursor: %w", err)
	}
	created := *cursor
	created.ID = result.InsertedID.(primitive.ObjectID).Hex()
	return &created, nil
}

func (s *ScanCursorStore) FindByID(ctx context.Context, id string) (*types.ScanCursor, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid scan cursor id %s: %w", id, err)
	}

	var doc scanCursorDoc
	err = s.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find scan cursor: %w", err)
	}
	return doc.toCursor(), nil
}

func (s *ScanCursorStore) FindAll(ctx context.Context) ([]*types.ScanCursor, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query scan cursors: %w", err)
	}
	defer cursor.Close(ctx)

	var cursors []*types.ScanCursor
	for cursor.Next(ctx) {
		var doc scanCursorDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode scan cursor: %w", err)
		}
		cursors = append(cursors, doc.toCursor())
	}
	return cursors, cursor.Err()
}

// UpdateLastBlock advances the cursor. Callers must apply the scanned range
// downstream before calling this; advancing first would drop events on crash.
func (s *ScanCursorStore) UpdateLastBlock(ctx context.Context, id string, lastBlock int64) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid scan cursor id %s: %w", id, err)
	}
	_, err = s.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"lastBlock": lastBlock, "updatedAt": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update scan cursor last block: %w", err)
	}
	return nil
}

type scanCursorDoc struct {
	ID              primitive.ObjectID `bson:"_id"`
	ChainID         int64              `bson:"chainId"`
	ContractAddress string             `bson:"contractAddress"`
	Kind            types.ScanKind     `bson:"scanType"`
	FirstBlock      int64              `bson:"firstBlock"`
	LastBlock       int64              `bson:"lastBlock"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

func (d *scanCursorDoc) toCursor() *types.ScanCursor {
	return &types.ScanCursor{
		ID:              d.ID.Hex(),
		ChainID:         d.ChainID,
		ContractAddress: d.ContractAddress,
		Kind:            d.Kind,
		FirstBlock:      d.FirstBlock,
		LastBlock:       d.LastBlock,
		UpdatedAt:       d.UpdatedAt,
	}
}
