// Package lock provides a time-bounded distributed mutual-exclusion lease on
// top of MongoDB. Acquisition is a single atomic upsert conditioned on lease
// expiry, so any number of competing processes resolve to exactly one holder.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const lockCollection = "worker_locks"

// Locker hands out leases. Every acquisition gets its own token, so a second
// TryAcquire on a held key fails even inside the process that holds it.
type Locker struct {
	collection *mongo.Collection

	mu   sync.Mutex
	held map[string]string
}

func NewLocker(database *mongo.Database) *Locker {
	return &Locker{
		collection: database.Collection(lockCollection),
		held:       map[string]string{},
	}
}

// TryAcquire takes the lease for key if it is free or expired. Returns false
// when another token holds it; that is a normal "skip this tick" signal, not
// an error.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	now := time.Now()

	_, err := l.collection.UpdateOne(ctx,
		bson.M{"_id": key, "expiresAt": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"owner": token, "expiresAt": now.Add(ttl)}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to take over lock %s: %w", key, err)
	}

	// Either we refreshed an expired lease above or the key does not exist
	// yet; the insert settles races through the _id index.
	_, err = l.collection.InsertOne(ctx, bson.M{
		"_id":       key,
		"owner":     token,
		"expiresAt": now.Add(ttl),
	})
	if mongo.IsDuplicateKeyError(err) {
		acquired, err := l.isHeldBy(ctx, key, token, now)
		if err != nil {
			return false, err
		}
		if acquired {
			l.remember(key, token)
		}
		return acquired, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	l.remember(key, token)
	return true, nil
}

func (l *Locker) isHeldBy(ctx context.Context, key, token string, now time.Time) (bool, error) {
	count, err := l.collection.CountDocuments(ctx, bson.M{
		"_id":       key,
		"owner":     token,
		"expiresAt": bson.M{"$gt": now},
	})
	if err != nil {
		return false, fmt.Errorf("failed to verify lock %s: %w", key, err)
	}
	return count > 0, nil
}

func (l *Locker) remember(key, token string) {
	l.mu.Lock()
	l.held[key] = token
	l.mu.Unlock()
}

// Release frees the lease early. Only the lease of this Locker's latest
// acquisition is deleted; releasing after expiry or takeover is harmless.
func (l *Locker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.held[key]
	delete(l.held, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	_, err := l.collection.DeleteOne(ctx, bson.M{"_id": key, "owner": token})
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}
