package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

const transactionCollection = "transactions"

// TransactionStore is the transaction ledger. Records are created by
// whichever service enqueues work and afterwards mutated only by the
// transaction worker; nothing is ever deleted.
type TransactionStore struct {
	collection *mongo.Collection
}

func NewTransactionStore(database *mongo.Database) *TransactionStore {
	return &TransactionStore{collection: database.Collection(transactionCollection)}
}

func (s *TransactionStore) Create(ctx context.Context, record *types.TransactionRecord) (*types.TransactionRecord, error) {
	if record.State == "" {
		record.State = types.StatePending
	}
	record.UpdatedAt = time.Now()

	doc := bson.M{
		"type":      record.Type,
		"state":     record.State,
		"groupId":   record.GroupID,
		"metadata":  record.Metadata,
		"updatedAt": record.UpdatedAt,
	}
	if record.TransactionHash != "" {
		doc["transactionHash"] = record.TransactionHash
	}

	result, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction record: %w", err)
	}

	created := *record
	created.ID = result.InsertedID.(primitive.ObjectID).Hex()
	return &created, nil
}

// FindAllExceptState returns every record not in the given state. The worker
// uses it to load the full in-flight set (pending + submitting) in one query.
func (s *TransactionStore) FindAllExceptState(ctx context.Context, state types.TransactionState) ([]*types.TransactionRecord, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"state": bson.M{"$ne": state}})
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*types.TransactionRecord
	for cursor.Next(ctx) {
		var doc transactionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode transaction record: %w", err)
		}
		records = append(records, doc.toRecord())
	}
	return records, cursor.Err()
}

// UpdateStateAndHash moves a group of records into a new state, stamping the
// chain transaction hash assigned to the whole batch.
func (s *TransactionStore) UpdateStateAndHash(ctx context.Context, ids []string, state types.TransactionState, transactionHash string) error {
	objectIDs, err := toObjectIDs(ids)
	if err != nil {
		return err
	}
	_, err = s.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": objectIDs}},
		bson.M{"$set": bson.M{"state": state, "transactionHash": transactionHash, "updatedAt": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction state and hash: %w", err)
	}
	return nil
}

func (s *TransactionStore) UpdateState(ctx context.Context, ids []string, state types.TransactionState) error {
	objectIDs, err := toObjectIDs(ids)
	if err != nil {
		return err
	}
	_, err = s.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": objectIDs}},
		bson.M{"$set": bson.M{"state": state, "updatedAt": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction state: %w", err)
	}
	return nil
}

func toObjectIDs(ids []string) ([]primitive.ObjectID, error) {
	objectIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		objectID, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("invalid transaction id %s: %w", id, err)
		}
		objectIDs = append(objectIDs, objectID)
	}
	return objectIDs, nil
}

type transactionDoc struct {
	ID              primitive.ObjectID     `bson:"_id"`
	Type            types.TransactionType  `bson:"type"`
	State           types.TransactionState `bson:"state"`
	GroupID         string                 `bson:"groupId"`
	TransactionHash string                 `bson:"transactionHash"`
	Metadata        types.TxMetadata       `bson:"metadata"`
	UpdatedAt       time.Time              `bson:"updatedAt"`
}

func (d *transactionDoc) toRecord() *types.TransactionRecord {
	return &types.TransactionRecord{
		ID:              d.ID.Hex(),
		Type:            d.Type,
		State:           d.State,
		GroupID:         d.GroupID,
		TransactionHash: d.TransactionHash,
		Metadata:        d.Metadata,
		UpdatedAt:       d.UpdatedAt,
	}
}
