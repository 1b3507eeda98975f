package types

import (
	"fmt"
	"time"
)

type TransactionState string

const (
	StatePending    TransactionState = "pending"
	StateSubmitting TransactionState = "submitting"
	StateSubmitted  TransactionState = "submitted"
)

type TransactionType string

const (
	TxMintAsset    TransactionType = "mint-asset"
	TxBurnAsset    TransactionType = "burn-asset"
	TxMintResource TransactionType = "mint-resource"
)

// TxMetadata carries the kind specific payload of a TransactionRecord.
// Asset transactions use CollectionID/UserID/TokenID/Amount, resource
// transactions use CollectionID/TokenID/Amount/ResourceID.
type TxMetadata struct {
	CollectionID string `bson:"collectionId"`
	UserID       string `bson:"userId,omitempty"`
	ResourceID   string `bson:"resourceId,omitempty"`
	TokenID      int64  `bson:"tokenId,omitempty"`
	Amount       int64  `bson:"amount,omitempty"`
}

// TransactionRecord is a row of the transaction ledger. Records move forward
// pending -> submitting -> submitted; a rejected on-chain submission returns
// the record to the pending batch for resubmission with a fresh hash.
type TransactionRecord struct {
	ID              string           `bson:"_id,omitempty"`
	Type            TransactionType  `bson:"type"`
	State           TransactionState `bson:"state"`
	GroupID         string           `bson:"groupId"`
	TransactionHash string           `bson:"transactionHash,omitempty"`
	Metadata        TxMetadata       `bson:"metadata"`
	UpdatedAt       time.Time        `bson:"updatedAt"`
}

// GroupKey is the batching key: all pending records sharing it are submitted
// on chain as one batched transaction.
type GroupKey struct {
	Type    TransactionType
	GroupID string
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s:%s", k.Type, k.GroupID)
}

type ScanKind string

const (
	ScanAssetDeposit    ScanKind = "deposit-asset"
	ScanAssetWithdraw   ScanKind = "withdraw-asset"
	ScanResourceDeposit ScanKind = "deposit-resource"
)

// ScanCursor persists the last scanned block per (contract, event kind).
// LastBlock only moves forward, and only after the events of the scanned
// range have been durably applied downstream.
type ScanCursor struct {
	ID              string    `bson:"_id,omitempty"`
	ChainID         int64     `bson:"chainId"`
	ContractAddress string    `bson:"contractAddress"`
	Kind            ScanKind  `bson:"scanType"`
	FirstBlock      int64     `bson:"firstBlock"`
	LastBlock       int64     `bson:"lastBlock"`
	UpdatedAt       time.Time `bson:"updatedAt"`
}

// BalanceKey identifies one balance ledger entry.
type BalanceKey struct {
	CollectionID string `bson:"collectionId"`
	UserID       string `bson:"userId"`
	GameID       string `bson:"gameId"`
}

// ResourceDeposit is the dedup token of an on-chain deposit; a deposit with a
// previously seen TxID is a no-op when applied again.
type ResourceDeposit struct {
	TxID        string `bson:"txId"`
	TokenID     int64  `bson:"tokenId"`
	Amount      int64  `bson:"amount"`
	BlockNumber int64  `bson:"blockNumber"`
}

// UserResource is one balance ledger entry: per resource balances plus the
// applied deposit history used for de-duplication.
type UserResource struct {
	CollectionID string            `bson:"collectionId"`
	UserID       string            `bson:"userId"`
	GameID       string            `bson:"gameId"`
	Balances     map[string]int64  `bson:"balances"`
	Deposits     []ResourceDeposit `bson:"deposits,omitempty"`
}

type AssetState string

const (
	AssetMinting AssetState = "minting"
	AssetMinted  AssetState = "minted"
	AssetBurning AssetState = "burning"
	AssetBurnt   AssetState = "burnt"
)

type CollectionType string

const (
	CollectionERC721  CollectionType = "ERC-721"
	CollectionERC1155 CollectionType = "ERC-1155"
)
