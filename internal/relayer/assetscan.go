package relayer

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/nemesis-gg/portal-relayer/pkg/clients/evm"
	"github.com/nemesis-gg/portal-relayer/pkg/db"
	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

// AssetDepositScanner follows LogERC721Deposited on game portals: a user
// handing an asset into game custody. The matching off-chain asset gets the
// depositor as its user.
type AssetDepositScanner struct {
	collections collectionFinder
	users       userFinder
	assets      assetWriter
}

func NewAssetDepositScanner(collections collectionFinder, users userFinder, assets assetWriter) *AssetDepositScanner {
	return &AssetDepositScanner{collections: collections, users: users, assets: assets}
}

func (s *AssetDepositScanner) Kind() types.ScanKind { return types.ScanAssetDeposit }

func (s *AssetDepositScanner) Topic() common.Hash {
	return evm.PortalEventTopic(evm.EventERC721Deposited)
}

func (s *AssetDepositScanner) Apply(ctx context.Context, cursor *types.ScanCursor, logEntry ethtypes.Log) error {
	event, err := evm.ParseERC721Deposited(logEntry)
	if err != nil {
		return err
	}

	collection, err := s.collections.FindByContractAddress(ctx, event.Collection.Hex())
	if errors.Is(err, db.ErrNotFound) {
		log.Warn().
			Str("collection", event.Collection.Hex()).
			Msg("[AssetDepositScanner] [Apply] deposit into unknown collection, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	user, err := s.users.FindByWalletAddress(ctx, event.Wallet.Hex())
	if errors.Is(err, db.ErrNotFound) {
		log.Warn().
			Str("wallet", event.Wallet.Hex()).
			Str("collection", collection.ID).
			Msg("[AssetDepositScanner] [Apply] deposit from unknown wallet, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	tokenID := event.TokenID.Int64()
	err = s.assets.SetUserID(ctx, collection.ID, tokenID, &user.ID)
	if errors.Is(err, db.ErrNotFound) {
		log.Warn().
			Str("collection", collection.ID).
			Int64("tokenId", tokenID).
			Msg("[AssetDepositScanner] [Apply] deposited token has no asset record, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().
		Str("collection", collection.ID).
		Int64("tokenId", tokenID).
		Str("user", user.ID).
		Msg("[AssetDepositScanner] [Apply] asset deposited")
	return nil
}

// AssetWithdrawScanner follows LogERC721Withdrawn: the asset leaves game
// custody, so its user attribution is cleared.
type AssetWithdrawScanner struct {
	collections collectionFinder
	assets      assetWriter
}

func NewAssetWithdrawScanner(collections collectionFinder, assets assetWriter) *AssetWithdrawScanner {
	return &AssetWithdrawScanner{collections: collections, assets: assets}
}

func (s *AssetWithdrawScanner) Kind() types.ScanKind { return types.ScanAssetWithdraw }

func (s *AssetWithdrawScanner) Topic() common.Hash {
	return evm.PortalEventTopic(evm.EventERC721Withdrawn)
}

func (s *AssetWithdrawScanner) Apply(ctx context.Context, cursor *types.ScanCursor, logEntry ethtypes.Log) error {
	event, err := evm.ParseERC721Withdrawn(logEntry)
	if err != nil {
		return err
	}

	collection, err := s.collections.FindByContractAddress(ctx, event.Collection.Hex())
	if errors.Is(err, db.ErrNotFound) {
		log.Warn().
			Str("collection", event.Collection.Hex()).
			Msg("[AssetWithdrawScanner] [Apply] withdrawal from unknown collection, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	tokenID := event.TokenID.Int64()
	err = s.assets.SetUserID(ctx, collection.ID, tokenID, nil)
	if errors.Is(err, db.ErrNotFound) {
		log.Warn().
			Str("collection", collection.ID).
			Int64("tokenId", tokenID).
			Msg("[AssetWithdrawScanner] [Apply] withdrawn token has no asset record, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().
		Str("collection", collection.ID).
		Int64("tokenId", tokenID).
		Msg("[AssetWithdrawScanner] [Apply] asset withdrawn")
	return nil
}
