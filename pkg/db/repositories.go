package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/nemesis-gg/portal-relayer/pkg/db/models"
	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

// Entity repositories for records the relay consumes but does not own. The
// relay only needs point lookups plus the narrow asset mutations driven by
// confirmed on-chain activity.

type GameRepository struct {
	db *gorm.DB
}

func NewGameRepository(db *gorm.DB) *GameRepository {
	return &GameRepository{db: db}
}

func (r *GameRepository) FindAll(ctx context.Context) ([]*models.Game, error) {
	var games []*models.Game
	if err := r.db.WithContext(ctx).Find(&games).Error; err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return games, nil
}

func (r *GameRepository) FindByID(ctx context.Context, id string) (*models.Game, error) {
	var game models.Game
	err := r.db.WithContext(ctx).First(&game, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find game: %w", err)
	}
	return &game, nil
}

func (r *GameRepository) FindByContractAddress(ctx context.Context, contractAddress string) (*models.Game, error) {
	var game models.Game
	err := r.db.WithContext(ctx).First(&game, "contract_address = ?", contractAddress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find game by contract: %w", err)
	}
	return &game, nil
}

type CollectionRepository struct {
	db *gorm.DB
}

func NewCollectionRepository(db *gorm.DB) *CollectionRepository {
	return &CollectionRepository{db: db}
}

func (r *CollectionRepository) FindAll(ctx context.Context) ([]*models.Collection, error) {
	var collections []*models.Collection
	if err := r.db.WithContext(ctx).Find(&collections).Error; err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return collections, nil
}

func (r *CollectionRepository) FindByID(ctx context.Context, id string) (*models.Collection, error) {
	var collection models.Collection
	err := r.db.WithContext(ctx).First(&collection, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find collection: %w", err)
	}
	return &collection, nil
}

func (r *CollectionRepository) FindByContractAddress(ctx context.Context, contractAddress string) (*models.Collection, error) {
	var collection models.Collection
	err := r.db.WithContext(ctx).First(&collection, "contract_address = ?", contractAddress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find collection by contract: %w", err)
	}
	return &collection, nil
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) FindByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "wallet_address = ?", walletAddress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by wallet: %w", err)
	}
	return &user, nil
}

type ResourceRepository struct {
	db *gorm.DB
}

func NewResourceRepository(db *gorm.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) FindByCollectionAndToken(ctx context.Context, collectionID string, tokenID int64) (*models.Resource, error) {
	var resource models.Resource
	err := r.db.WithContext(ctx).First(&resource, "collection_id = ? AND token_id = ?", collectionID, tokenID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find resource: %w", err)
	}
	return &resource, nil
}

type AssetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

func (r *AssetRepository) FindByCollectionAndToken(ctx context.Context, collectionID string, tokenID int64) (*models.Asset, error) {
	var asset models.Asset
	err := r.db.WithContext(ctx).First(&asset, "collection_id = ? AND token_id = ?", collectionID, tokenID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find asset: %w", err)
	}
	return &asset, nil
}

// AssignTokenID attributes a freshly minted token id to one of the user's
// assets that does not have one yet and marks it minted. The token_id IS NULL
// guard keeps re-application from stealing a second asset.
func (r *AssetRepository) AssignTokenID(ctx context.Context, collectionID, userID string, tokenID int64) error {
	unminted := r.db.Model(&models.Asset{}).Select("id").
		Where("collection_id = ? AND user_id = ? AND token_id IS NULL", collectionID, userID).
		Limit(1)
	result := r.db.WithContext(ctx).Model(&models.Asset{}).
		Where("id IN (?)", unminted).
		Updates(map[string]interface{}{"token_id": tokenID, "state": types.AssetMinted})
	if result.Error != nil {
		return fmt.Errorf("failed to assign token id: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AssetRepository) SetUserID(ctx context.Context, collectionID string, tokenID int64, userID *string) error {
	result := r.db.WithContext(ctx).Model(&models.Asset{}).
		Where("collection_id = ? AND token_id = ?", collectionID, tokenID).
		Update("user_id", userID)
	if result.Error != nil {
		return fmt.Errorf("failed to set asset user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AssetRepository) UpdateState(ctx context.Context, id string, state types.AssetState) error {
	result := r.db.WithContext(ctx).Model(&models.Asset{}).
		Where("id = ?", id).
		Update("state", state)
	if result.Error != nil {
		return fmt.Errorf("failed to update asset state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
