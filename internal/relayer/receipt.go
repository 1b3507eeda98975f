package relayer

import (
	"context"
	"errors"
	"fmt"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/nemesis-gg/portal-relayer/pkg/clients/evm"
	"github.com/nemesis-gg/portal-relayer/pkg/db"
	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

// ReceiptProcessor applies the off-chain side effects of one confirmed batch.
// Processing must be idempotent: the worker retries the whole batch on the
// next pass if anything here fails, and records only reach submitted after a
// clean run.
type ReceiptProcessor interface {
	Process(ctx context.Context, records []*types.TransactionRecord, receipt *ethtypes.Receipt) error
}

// ReceiptProcessorRegistry maps transaction types to their confirmation side
// effects. mint-resource has no entry on purpose: resource mints are
// fire-and-forget and confirmed batches go straight to submitted.
type ReceiptProcessorRegistry map[types.TransactionType]ReceiptProcessor

// AssetMintProcessor attributes contract-assigned token ids back to the
// off-chain assets. The contract emits one LogMinted per minted token in mint
// order, and records are processed in submission order, so position i of the
// receipt belongs to record i.
type AssetMintProcessor struct {
	assets assetWriter
}

func NewAssetMintProcessor(assets assetWriter) *AssetMintProcessor {
	return &AssetMintProcessor{assets: assets}
}

func (p *AssetMintProcessor) Process(ctx context.Context, records []*types.TransactionRecord, receipt *ethtypes.Receipt) error {
	tokenIDs, err := evm.ExtractTokenIDs(receipt.Logs, evm.EventMinted)
	if err != nil {
		return err
	}
	if len(tokenIDs) != len(records) {
		return fmt.Errorf("receipt %s minted %d tokens for %d records", receipt.TxHash.Hex(), len(tokenIDs), len(records))
	}

	for i, record := range records {
		meta := record.Metadata
		err := p.assets.AssignTokenID(ctx, meta.CollectionID, meta.UserID, tokenIDs[i])
		if errors.Is(err, db.ErrNotFound) {
			// Already attributed on an earlier attempt of this batch.
			log.Debug().
				Str("collection", meta.CollectionID).
				Int64("tokenId", tokenIDs[i]).
				Msg("[AssetMintProcessor] [Process] no unminted asset left, skipping")
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to attribute token %d: %w", tokenIDs[i], err)
		}
	}
	return nil
}

// AssetBurnProcessor marks the burnt assets. Re-running it settles on the same
// terminal state.
type AssetBurnProcessor struct {
	assets assetWriter
}

func NewAssetBurnProcessor(assets assetWriter) *AssetBurnProcessor {
	return &AssetBurnProcessor{assets: assets}
}

func (p *AssetBurnProcessor) Process(ctx context.Context, records []*types.TransactionRecord, receipt *ethtypes.Receipt) error {
	for _, record := range records {
		meta := record.Metadata
		asset, err := p.assets.FindByCollectionAndToken(ctx, meta.CollectionID, meta.TokenID)
		if errors.Is(err, db.ErrNotFound) {
			log.Warn().
				Str("collection", meta.CollectionID).
				Int64("tokenId", meta.TokenID).
				Msg("[AssetBurnProcessor] [Process] burnt token has no asset record")
			continue
		}
		if err != nil {
			return err
		}
		if err := p.assets.UpdateState(ctx, asset.ID, types.AssetBurnt); err != nil {
			return fmt.Errorf("failed to mark asset %s burnt: %w", asset.ID, err)
		}
	}
	return nil
}
