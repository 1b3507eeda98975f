package relayer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/nemesis-gg/portal-relayer/pkg/db"
	"github.com/nemesis-gg/portal-relayer/pkg/db/models"
	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

// In-memory fakes for the store, chain and queue seams.

type fakeTransactionStore struct {
	records map[string]*types.TransactionRecord
}

func newFakeTransactionStore(records ...*types.TransactionRecord) *fakeTransactionStore {
	store := &fakeTransactionStore{records: map[string]*types.TransactionRecord{}}
	for _, record := range records {
		clone := *record
		store.records[record.ID] = &clone
	}
	return store
}

func (s *fakeTransactionStore) FindAllExceptState(ctx context.Context, state types.TransactionState) ([]*types.TransactionRecord, error) {
	var out []*types.TransactionRecord
	for _, record := range s.records {
		if record.State != state {
			clone := *record
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *fakeTransactionStore) UpdateStateAndHash(ctx context.Context, ids []string, state types.TransactionState, transactionHash string) error {
	for _, id := range ids {
		s.records[id].State = state
		s.records[id].TransactionHash = transactionHash
	}
	return nil
}

func (s *fakeTransactionStore) UpdateState(ctx context.Context, ids []string, state types.TransactionState) error {
	for _, id := range ids {
		s.records[id].State = state
	}
	return nil
}

type fakeCursorStore struct {
	cursors map[string]*types.ScanCursor
	nextID  int
}

func newFakeCursorStore(cursors ...*types.ScanCursor) *fakeCursorStore {
	store := &fakeCursorStore{cursors: map[string]*types.ScanCursor{}}
	for _, cursor := range cursors {
		clone := *cursor
		store.cursors[cursor.ID] = &clone
	}
	return store
}

func (s *fakeCursorStore) Create(ctx context.Context, cursor *types.ScanCursor) (*types.ScanCursor, error) {
	s.nextID++
	created := *cursor
	created.ID = fmt.Sprintf("cursor-%d", s.nextID)
	s.cursors[created.ID] = &created
	clone := created
	return &clone, nil
}

func (s *fakeCursorStore) FindByID(ctx context.Context, id string) (*types.ScanCursor, error) {
	cursor, ok := s.cursors[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	clone := *cursor
	return &clone, nil
}

func (s *fakeCursorStore) FindAll(ctx context.Context) ([]*types.ScanCursor, error) {
	var out []*types.ScanCursor
	for _, cursor := range s.cursors {
		clone := *cursor
		out = append(out, &clone)
	}
	return out, nil
}

func (s *fakeCursorStore) UpdateLastBlock(ctx context.Context, id string, lastBlock int64) error {
	cursor, ok := s.cursors[id]
	if !ok {
		return db.ErrNotFound
	}
	cursor.LastBlock = lastBlock
	return nil
}

type fakeBalanceStore struct {
	applied  map[string]bool
	balances map[types.BalanceKey]map[string]int64
}

func newFakeBalanceStore() *fakeBalanceStore {
	return &fakeBalanceStore{
		applied:  map[string]bool{},
		balances: map[types.BalanceKey]map[string]int64{},
	}
}

func (s *fakeBalanceStore) IncrementBalanceWithDeposit(ctx context.Context, key types.BalanceKey, deltas map[string]int64, deposit types.ResourceDeposit) error {
	if s.applied[deposit.TxID] {
		return nil
	}
	s.applied[deposit.TxID] = true
	if s.balances[key] == nil {
		s.balances[key] = map[string]int64{}
	}
	for resourceID, delta := range deltas {
		s.balances[key][resourceID] += delta
	}
	return nil
}

type fakeLocker struct {
	held     map[string]bool
	acquired []string
	released []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (l *fakeLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l.held[key] {
		return false, nil
	}
	l.acquired = append(l.acquired, key)
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, key string) error {
	l.released = append(l.released, key)
	return nil
}

type queuedJob struct {
	name    string
	payload interface{}
}

type fakeQueue struct {
	jobs []queuedJob
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobName string, payload interface{}) error {
	q.jobs = append(q.jobs, queuedJob{name: jobName, payload: payload})
	return nil
}

type filterCall struct {
	address   string
	fromBlock int64
	toBlock   int64
}

type fakeChainReader struct {
	head        int64
	receipts    map[string]*ethtypes.Receipt
	logs        []ethtypes.Log
	filterCalls []filterCall
}

func (c *fakeChainReader) BlockNumber(ctx context.Context) (int64, error) {
	return c.head, nil
}

func (c *fakeChainReader) TransactionReceipt(ctx context.Context, txHash string) (*ethtypes.Receipt, error) {
	return c.receipts[txHash], nil
}

func (c *fakeChainReader) FilterLogs(ctx context.Context, contractAddress string, topic common.Hash, fromBlock, toBlock int64) ([]ethtypes.Log, error) {
	c.filterCalls = append(c.filterCalls, filterCall{address: contractAddress, fromBlock: fromBlock, toBlock: toBlock})
	var out []ethtypes.Log
	for _, logEntry := range c.logs {
		block := int64(logEntry.BlockNumber)
		if block >= fromBlock && block <= toBlock && logEntry.Topics[0] == topic {
			out = append(out, logEntry)
		}
	}
	return out, nil
}

type mintCall struct {
	collection common.Address
	to         common.Address
	amount     int64
}

type burnCall struct {
	collection common.Address
	tokenIDs   []int64
}

type resourceCall struct {
	collection common.Address
	to         common.Address
	tokenIDs   []int64
	amounts    []int64
}

type fakePortal struct {
	nextHash      int
	err           error
	mintCalls     []mintCall
	burnCalls     []burnCall
	resourceCalls []resourceCall
}

func (p *fakePortal) hash() string {
	p.nextHash++
	return fmt.Sprintf("0x%064x", p.nextHash)
}

func (p *fakePortal) MintBatchAsset(ctx context.Context, collection, to common.Address, amount int64) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.mintCalls = append(p.mintCalls, mintCall{collection: collection, to: to, amount: amount})
	return p.hash(), nil
}

func (p *fakePortal) BurnBatchAsset(ctx context.Context, collection common.Address, tokenIDs []int64) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.burnCalls = append(p.burnCalls, burnCall{collection: collection, tokenIDs: tokenIDs})
	return p.hash(), nil
}

func (p *fakePortal) MintBatchResource(ctx context.Context, collection, to common.Address, tokenIDs, amounts []int64) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.resourceCalls = append(p.resourceCalls, resourceCall{collection: collection, to: to, tokenIDs: tokenIDs, amounts: amounts})
	return p.hash(), nil
}

type fakeGames struct {
	games []*models.Game
}

func (f *fakeGames) FindAll(ctx context.Context) ([]*models.Game, error) {
	return f.games, nil
}

func (f *fakeGames) FindByID(ctx context.Context, id string) (*models.Game, error) {
	for _, game := range f.games {
		if game.ID == id {
			return game, nil
		}
	}
	return nil, db.ErrNotFound
}

type fakeCollections struct {
	collections []*models.Collection
}

func (f *fakeCollections) FindAll(ctx context.Context) ([]*models.Collection, error) {
	return f.collections, nil
}

func (f *fakeCollections) FindByID(ctx context.Context, id string) (*models.Collection, error) {
	for _, collection := range f.collections {
		if collection.ID == id {
			return collection, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeCollections) FindByContractAddress(ctx context.Context, contractAddress string) (*models.Collection, error) {
	for _, collection := range f.collections {
		if collection.ContractAddress == contractAddress {
			return collection, nil
		}
	}
	return nil, db.ErrNotFound
}

type fakeUsers struct {
	users []*models.User
}

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, user := range f.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeUsers) FindByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error) {
	for _, user := range f.users {
		if user.WalletAddress == walletAddress {
			return user, nil
		}
	}
	return nil, db.ErrNotFound
}

type fakeAssets struct {
	assets []*models.Asset
}

func (f *fakeAssets) FindByCollectionAndToken(ctx context.Context, collectionID string, tokenID int64) (*models.Asset, error) {
	for _, asset := range f.assets {
		if asset.CollectionID == collectionID && asset.TokenID != nil && *asset.TokenID == tokenID {
			return asset, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeAssets) AssignTokenID(ctx context.Context, collectionID, userID string, tokenID int64) error {
	for _, asset := range f.assets {
		if asset.CollectionID == collectionID && asset.TokenID == nil &&
			asset.UserID != nil && *asset.UserID == userID {
			id := tokenID
			asset.TokenID = &id
			asset.State = string(types.AssetMinted)
			return nil
		}
	}
	return db.ErrNotFound
}

func (f *fakeAssets) SetUserID(ctx context.Context, collectionID string, tokenID int64, userID *string) error {
	asset, err := f.FindByCollectionAndToken(ctx, collectionID, tokenID)
	if err != nil {
		return err
	}
	asset.UserID = userID
	return nil
}

func (f *fakeAssets) UpdateState(ctx context.Context, id string, state types.AssetState) error {
	for _, asset := range f.assets {
		if asset.ID == id {
			asset.State = string(state)
			return nil
		}
	}
	return db.ErrNotFound
}

type fakeResources struct {
	resources []*models.Resource
}

func (f *fakeResources) FindByCollectionAndToken(ctx context.Context, collectionID string, tokenID int64) (*models.Resource, error) {
	for _, resource := range f.resources {
		if resource.CollectionID == collectionID && resource.TokenID == tokenID {
			return resource, nil
		}
	}
	return nil, db.ErrNotFound
}
