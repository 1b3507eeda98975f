package db

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

func setupUserResourceStore(t *testing.T) *UserResourceStore {
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

	store, err := NewUserResourceStore(client.Database("relayer_test"))
	require.NoError(t, err)
	return store
}

func testBalanceKey() types.BalanceKey {
	return types.BalanceKey{CollectionID: "col-1", UserID: "user-1", GameID: "game-1"}
}

func TestDecrementBalanceGuardsFunds(t *testing.T) {
	store := setupUserResourceStore(t)
	ctx := context.Background()
	key := testBalanceKey()

	require.NoError(t, store.IncrementBalance(ctx, key, map[string]int64{"gold": 10}))

	applied, err := store.DecrementBalance(ctx, key, map[string]int64{"gold": 4})
	require.NoError(t, err)
	require.True(t, applied)

	// Overdraw must not apply and must not touch the stored balance.
	applied, err = store.DecrementBalance(ctx, key, map[string]int64{"gold": 7})
	require.NoError(t, err)
	require.False(t, applied)

	entry, err := store.FindOne(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(6), entry.Balances["gold"])
}

func TestDecrementBalanceIsAllOrNothing(t *testing.T) {
	store := setupUserResourceStore(t)
	ctx := context.Background()
	key := testBalanceKey()

	require.NoError(t, store.IncrementBalance(ctx, key, map[string]int64{"gold": 10, "silver": 1}))

	// One covered field and one uncovered field: neither may move.
	applied, err := store.DecrementBalance(ctx, key, map[string]int64{"gold": 1, "silver": 5})
	require.NoError(t, err)
	require.False(t, applied)

	entry, err := store.FindOne(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(10), entry.Balances["gold"])
	require.Equal(t, int64(1), entry.Balances["silver"])
}

func TestDecrementBalanceMissingEntry(t *testing.T) {
	store := setupUserResourceStore(t)

	applied, err := store.DecrementBalance(context.Background(), testBalanceKey(), map[string]int64{"gold": 1})
	require.NoError(t, err)
	require.False(t, applied)
}

func TestIncrementBalanceWithDepositAppliesOnce(t *testing.T) {
	store := setupUserResourceStore(t)
	ctx := context.Background()
	key := testBalanceKey()
	deposit := types.ResourceDeposit{TxID: "0xaa:0", TokenID: 11, Amount: 5, BlockNumber: 55}
	deltas := map[string]int64{"res-1": 5}

	require.NoError(t, store.IncrementBalanceWithDeposit(ctx, key, deltas, deposit))
	// Re-delivery of the same deposit degrades to a no-op.
	require.NoError(t, store.IncrementBalanceWithDeposit(ctx, key, deltas, deposit))

	entry, err := store.FindOne(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(5), entry.Balances["res-1"])
	require.Len(t, entry.Deposits, 1)

	// A different deposit in the same transaction still credits.
	second := types.ResourceDeposit{TxID: "0xaa:1", TokenID: 11, Amount: 3, BlockNumber: 55}
	require.NoError(t, store.IncrementBalanceWithDeposit(ctx, key, map[string]int64{"res-1": 3}, second))

	entry, err = store.FindOne(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(8), entry.Balances["res-1"])
	require.Len(t, entry.Deposits, 2)
}

func TestConcurrentIncrementsAndDecrements(t *testing.T) {
	store := setupUserResourceStore(t)
	ctx := context.Background()
	key := testBalanceKey()

	require.NoError(t, store.IncrementBalance(ctx, key, map[string]int64{"gold": 10}))

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var appliedDecrements int64

	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			require.NoError(t, store.IncrementBalance(ctx, key, map[string]int64{"gold": 1}))
		}()
		go func() {
			defer wg.Done()
			applied, err := store.DecrementBalance(ctx, key, map[string]int64{"gold": 1})
			require.NoError(t, err)
			if applied {
				mu.Lock()
				appliedDecrements++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	entry, err := store.FindOne(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 10+int64(workers)-appliedDecrements, entry.Balances["gold"])
	require.GreaterOrEqual(t, entry.Balances["gold"], int64(0))
}

func TestBalanceMutationsRejectNegativeDeltas(t *testing.T) {
	store := &UserResourceStore{}
	ctx := context.Background()
	key := testBalanceKey()
	deltas := map[string]int64{"gold": -1}

	require.ErrorIs(t, store.IncrementBalance(ctx, key, deltas), ErrNegativeDelta)
	_, err := store.DecrementBalance(ctx, key, deltas)
	require.ErrorIs(t, err, ErrNegativeDelta)
	deposit := types.ResourceDeposit{TxID: "0xaa:0"}
	require.ErrorIs(t, store.IncrementBalanceWithDeposit(ctx, key, deltas, deposit), ErrNegativeDelta)
}
