package models

import (
	"gorm.io/gorm"
)

// Game owns a GamePortal contract on chain; the scheduler discovers scan
// targets from it.
type Game struct {
	gorm.Model
	ID              string `gorm:"primaryKey;type:varchar(255)"`
	StudioID        string `gorm:"type:varchar(255);index"`
	Name            string `gorm:"type:varchar(255)"`
	ChainID         int64  `gorm:"type:bigint"`
	ContractAddress string `gorm:"type:varchar(42);index"`
}

type Collection struct {
	gorm.Model
	ID              string `gorm:"primaryKey;type:varchar(255)"`
	GameID          string `gorm:"type:varchar(255);index"`
	Name            string `gorm:"type:varchar(255)"`
	Type            string `gorm:"type:varchar(32)"`
	ContractAddress string `gorm:"type:varchar(42);uniqueIndex"`
}

// Asset is mutated by the relay only in response to confirmed on-chain
// activity: TokenID and State on mint/burn attribution, UserID on
// deposit/withdraw events.
type Asset struct {
	gorm.Model
	ID           string  `gorm:"primaryKey;type:varchar(255)"`
	CollectionID string  `gorm:"type:varchar(255);uniqueIndex:idx_collection_token"`
	TokenID      *int64  `gorm:"type:bigint;uniqueIndex:idx_collection_token"`
	UserID       *string `gorm:"type:varchar(255);index"`
	State        string  `gorm:"type:varchar(32)"`
	ExternalID   string  `gorm:"type:varchar(255)"`
}

type User struct {
	gorm.Model
	ID            string `gorm:"primaryKey;type:varchar(255)"`
	WalletAddress string `gorm:"type:varchar(42);uniqueIndex"`
}

// Resource maps an ERC-1155 token id within a collection to an off-chain
// resource id.
type Resource struct {
	gorm.Model
	ID           string `gorm:"primaryKey;type:varchar(255)"`
	CollectionID string `gorm:"type:varchar(255);uniqueIndex:idx_collection_resource_token"`
	TokenID      int64  `gorm:"type:bigint;uniqueIndex:idx_collection_resource_token"`
	Name         string `gorm:"type:varchar(255)"`
}
