package relayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/nemesis-gg/portal-relayer/pkg/clients/evm"
	"github.com/nemesis-gg/portal-relayer/pkg/db"
	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

// ResourceDepositScanner follows LogERC1155Deposited on ERC-1155 collection
// contracts and credits the balance ledger. The credit is keyed by the
// transaction hash plus log index, so replaying a scanned range never credits
// the same deposit twice.
type ResourceDepositScanner struct {
	collections collectionFinder
	resources   resourceFinder
	users       userFinder
	balances    balanceStore
}

func NewResourceDepositScanner(collections collectionFinder, resources resourceFinder, users userFinder, balances balanceStore) *ResourceDepositScanner {
	return &ResourceDepositScanner{
		collections: collections,
		resources:   resources,
		users:       users,
		balances:    balances,
	}
}

func (s *ResourceDepositScanner) Kind() types.ScanKind { return types.ScanResourceDeposit }

func (s *ResourceDepositScanner) Topic() common.Hash {
	return evm.PortalEventTopic(evm.EventERC1155Deposited)
}

func (s *ResourceDepositScanner) Apply(ctx context.Context, cursor *types.ScanCursor, logEntry ethtypes.Log) error {
	event, err := evm.ParseERC1155Deposited(logEntry)
	if err != nil {
		return err
	}

	// The cursor sits on the collection contract itself.
	collection, err := s.collections.FindByContractAddress(ctx, cursor.ContractAddress)
	if err != nil {
		return fmt.Errorf("failed to resolve collection %s: %w", cursor.ContractAddress, err)
	}

	tokenID := event.TokenID.Int64()
	resource, err := s.resources.FindByCollectionAndToken(ctx, collection.ID, tokenID)
	if errors.Is(err, db.ErrNotFound) {
		log.Warn().
			Str("collection", collection.ID).
			Int64("tokenId", tokenID).
			Msg("[ResourceDepositScanner] [Apply] deposit of unmapped token, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	user, err := s.users.FindByWalletAddress(ctx, event.Account.Hex())
	if errors.Is(err, db.ErrNotFound) {
		log.Warn().
			Str("wallet", event.Account.Hex()).
			Str("collection", collection.ID).
			Msg("[ResourceDepositScanner] [Apply] deposit from unknown wallet, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	key := types.BalanceKey{
		CollectionID: collection.ID,
		UserID:       user.ID,
		GameID:       collection.GameID,
	}
	deposit := types.ResourceDeposit{
		TxID:        fmt.Sprintf("%s:%d", event.TxHash, event.LogIndex),
		TokenID:     tokenID,
		Amount:      event.Amount.Int64(),
		BlockNumber: event.BlockNumber,
	}
	deltas := map[string]int64{resource.ID: event.Amount.Int64()}

	if err := s.balances.IncrementBalanceWithDeposit(ctx, key, deltas, deposit); err != nil {
		return err
	}

	log.Info().
		Str("collection", collection.ID).
		Str("user", user.ID).
		Str("resource", resource.ID).
		Int64("amount", event.Amount.Int64()).
		Str("txId", deposit.TxID).
		Msg("[ResourceDepositScanner] [Apply] resource deposit credited")
	return nil
}
