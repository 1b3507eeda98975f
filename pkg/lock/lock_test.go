package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func setupDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	return client.Database("relayer_test")
}

func TestTryAcquireExcludesOtherHolders(t *testing.T) {
	database := setupDatabase(t)
	ctx := context.Background()
	first := NewLocker(database)
	second := NewLocker(database)

	acquired, err := first.TryAcquire(ctx, "worker", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = second.TryAcquire(ctx, "worker", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)

	require.NoError(t, first.Release(ctx, "worker"))

	acquired, err = second.TryAcquire(ctx, "worker", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestTryAcquireIsNotReentrant(t *testing.T) {
	database := setupDatabase(t)
	ctx := context.Background()
	locker := NewLocker(database)

	acquired, err := locker.TryAcquire(ctx, "worker", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// The same process asking again must not slip past its own live lease.
	acquired, err = locker.TryAcquire(ctx, "worker", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)
}

func TestTryAcquireTakesOverExpiredLease(t *testing.T) {
	database := setupDatabase(t)
	ctx := context.Background()
	first := NewLocker(database)
	second := NewLocker(database)

	acquired, err := first.TryAcquire(ctx, "worker", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(100 * time.Millisecond)

	acquired, err = second.TryAcquire(ctx, "worker", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestReleaseWithoutLeaseIsHarmless(t *testing.T) {
	database := setupDatabase(t)
	ctx := context.Background()
	holder := NewLocker(database)
	bystander := NewLocker(database)

	acquired, err := holder.TryAcquire(ctx, "worker", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, bystander.Release(ctx, "worker"))

	// The holder's lease survived the foreign release.
	acquired, err = bystander.TryAcquire(ctx, "worker", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)
}
