// Package relayer implements the off-chain to on-chain relay: the transaction
// worker that drives the submission state machine, the cursor based event
// scanners, and the scheduler that keeps both running.
package relayer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/nemesis-gg/portal-relayer/pkg/db/models"
	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

const (
	TransactionJobName = "transaction-worker"
	ScanJobName        = "scan-worker"

	transactionLockKey = "transaction-worker"
	scanLockPrefix     = "scan-worker:"
)

// TransactionJob is the payload of a transaction worker tick. EnqueuedAt lets
// the consumer skip jobs that sat in the queue past their usefulness.
type TransactionJob struct {
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// ScanJob points the scan worker at one cursor.
type ScanJob struct {
	CursorID string `json:"cursorId"`
}

// ChainReader is the read side of one chain connection.
type ChainReader interface {
	BlockNumber(ctx context.Context) (int64, error)
	TransactionReceipt(ctx context.Context, txHash string) (*ethtypes.Receipt, error)
	FilterLogs(ctx context.Context, contractAddress string, topic common.Hash, fromBlock, toBlock int64) ([]ethtypes.Log, error)
}

// Portal is the write side: the bound GamePortal contract of one game.
type Portal interface {
	MintBatchAsset(ctx context.Context, collection, to common.Address, amount int64) (string, error)
	BurnBatchAsset(ctx context.Context, collection common.Address, tokenIDs []int64) (string, error)
	MintBatchResource(ctx context.Context, collection, to common.Address, tokenIDs, amounts []int64) (string, error)
}

// Chain bundles one network's read connection, portal binding and the
// per-network scan parameters.
type Chain struct {
	ID            int64
	Name          string
	Confirmations int64
	ScanBatchSize int64
	Reader        ChainReader
	PortalAt      func(contractAddress string) Portal
}

type transactionStore interface {
	FindAllExceptState(ctx context.Context, state types.TransactionState) ([]*types.TransactionRecord, error)
	UpdateStateAndHash(ctx context.Context, ids []string, state types.TransactionState, transactionHash string) error
	UpdateState(ctx context.Context, ids []string, state types.TransactionState) error
}

type cursorStore interface {
	Create(ctx context.Context, cursor *types.ScanCursor) (*types.ScanCursor, error)
	FindByID(ctx context.Context, id string) (*types.ScanCursor, error)
	FindAll(ctx context.Context) ([]*types.ScanCursor, error)
	UpdateLastBlock(ctx context.Context, id string, lastBlock int64) error
}

type balanceStore interface {
	IncrementBalanceWithDeposit(ctx context.Context, key types.BalanceKey, deltas map[string]int64, deposit types.ResourceDeposit) error
}

type leaser interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type jobQueue interface {
	Enqueue(ctx context.Context, jobName string, payload interface{}) error
}

type gameFinder interface {
	FindAll(ctx context.Context) ([]*models.Game, error)
	FindByID(ctx context.Context, id string) (*models.Game, error)
}

type collectionFinder interface {
	FindAll(ctx context.Context) ([]*models.Collection, error)
	FindByID(ctx context.Context, id string) (*models.Collection, error)
	FindByContractAddress(ctx context.Context, contractAddress string) (*models.Collection, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error)
}

type assetWriter interface {
	FindByCollectionAndToken(ctx context.Context, collectionID string, tokenID int64) (*models.Asset, error)
	AssignTokenID(ctx context.Context, collectionID, userID string, tokenID int64) error
	SetUserID(ctx context.Context, collectionID string, tokenID int64, userID *string) error
	UpdateState(ctx context.Context, id string, state types.AssetState) error
}

type resourceFinder interface {
	FindByCollectionAndToken(ctx context.Context, collectionID string, tokenID int64) (*models.Resource, error)
}
