package db

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

const userResourceCollection = "user_resources"

// UserResourceStore is the balance ledger. Every mutation is a single atomic
// conditional update on the storage side; the store never does
// read-modify-write, so concurrent increments and decrements on the same key
// cannot race past each other.
type UserResourceStore struct {
	collection *mongo.Collection
}

func NewUserResourceStore(database *mongo.Database) (*UserResourceStore, error) {
	store := &UserResourceStore{collection: database.Collection(userResourceCollection)}
	if err := store.ensureIndexes(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *UserResourceStore) ensureIndexes(ctx context.Context) error {
	// The unique key index makes the deposit dedup filter safe: a re-applied
	// deposit fails the filter, the resulting upsert insert hits this index,
	// and the whole call degrades to a no-op.
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "collectionId", Value: 1},
			{Key: "userId", Value: 1},
			{Key: "gameId", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create user resource index: %w", err)
	}
	return nil
}

func (s *UserResourceStore) FindOne(ctx context.Context, key types.BalanceKey) (*types.UserResource, error) {
	var resource types.UserResource
	err := s.collection.FindOne(ctx, keyFilter(key)).Decode(&resource)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &types.UserResource{
			CollectionID: key.CollectionID,
			UserID:       key.UserID,
			GameID:       key.GameID,
			Balances:     map[string]int64{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user resource: %w", err)
	}
	return &resource, nil
}

// IncrementBalance applies the deltas as atomic per-field adds, creating the
// entry if absent.
func (s *UserResourceStore) IncrementBalance(ctx context.Context, key types.BalanceKey, deltas map[string]int64) error {
	if err := validateDeltas(deltas); err != nil {
		return err
	}

	_, err := s.collection.UpdateOne(ctx,
		keyFilter(key),
		bson.M{"$inc": incrementFields(deltas, 1)},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to increment balance: %w", err)
	}
	return nil
}

// DecrementBalance subtracts the deltas if and only if every targeted balance
// covers its delta. Returns false when the guard fails; the stored balances
// are untouched in that case.
func (s *UserResourceStore) DecrementBalance(ctx context.Context, key types.BalanceKey, deltas map[string]int64) (bool, error) {
	if err := validateDeltas(deltas); err != nil {
		return false, err
	}

	filter := keyFilter(key)
	for resourceID, delta := range deltas {
		filter["balances."+resourceID] = bson.M{"$gte": delta}
	}

	result, err := s.collection.UpdateOne(ctx, filter, bson.M{"$inc": incrementFields(deltas, -1)})
	if err != nil {
		return false, fmt.Errorf("failed to decrement balance: %w", err)
	}
	return result.ModifiedCount > 0, nil
}

// IncrementBalanceWithDeposit is IncrementBalance conditioned on the deposit
// not having been applied before. Re-applying a deposit with a known txId is
// a no-op, which makes re-delivery of on-chain events safe.
func (s *UserResourceStore) IncrementBalanceWithDeposit(ctx context.Context, key types.BalanceKey, deltas map[string]int64, deposit types.ResourceDeposit) error {
	if err := validateDeltas(deltas); err != nil {
		return err
	}

	filter := keyFilter(key)
	filter["deposits.txId"] = bson.M{"$ne": deposit.TxID}

	_, err := s.collection.UpdateOne(ctx,
		filter,
		bson.M{
			"$inc":  incrementFields(deltas, 1),
			"$push": bson.M{"deposits": deposit},
		},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		// Deposit already applied: the filter skipped the existing entry and
		// the upsert collided with the unique key index.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply deposit: %w", err)
	}
	return nil
}

func keyFilter(key types.BalanceKey) bson.M {
	return bson.M{
		"collectionId": key.CollectionID,
		"userId":       key.UserID,
		"gameId":       key.GameID,
	}
}

func validateDeltas(deltas map[string]int64) error {
	for _, delta := range deltas {
		if delta < 0 {
			return ErrNegativeDelta
		}
	}
	return nil
}

func incrementFields(deltas map[string]int64, sign int64) bson.M {
	fields := bson.M{}
	for resourceID, delta := range deltas {
		fields["balances."+resourceID] = sign * delta
	}
	return fields
}
