package relayer

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

// Transactor submits one batch of pending records as a single on-chain
// transaction and returns its hash. Records passed in share a group key, so
// they agree on collection (and, for mints, recipient).
type Transactor interface {
	Submit(ctx context.Context, records []*types.TransactionRecord) (string, error)
}

// TransactorRegistry maps transaction types to their submission strategy.
// Every known type must be registered; Validate runs at startup so a missing
// strategy fails the boot, not a pass.
type TransactorRegistry map[types.TransactionType]Transactor

func (r TransactorRegistry) Validate() error {
	for _, txType := range []types.TransactionType{types.TxMintAsset, types.TxBurnAsset, types.TxMintResource} {
		if _, ok := r[txType]; !ok {
			return fmt.Errorf("no transactor registered for type %s", txType)
		}
	}
	return nil
}

// portalResolver turns a record's collection id into the bound portal of the
// owning game plus the collection's on-chain address.
type portalResolver struct {
	collections collectionFinder
	games       gameFinder
	users       userFinder
	chains      map[int64]*Chain
}

func (pr *portalResolver) resolve(ctx context.Context, collectionID string) (Portal, common.Address, error) {
	collection, err := pr.collections.FindByID(ctx, collectionID)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to resolve collection %s: %w", collectionID, err)
	}
	game, err := pr.games.FindByID(ctx, collection.GameID)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to resolve game %s: %w", collection.GameID, err)
	}
	chain, ok := pr.chains[game.ChainID]
	if !ok {
		return nil, common.Address{}, fmt.Errorf("no chain configured for id %d", game.ChainID)
	}
	return chain.PortalAt(game.ContractAddress), common.HexToAddress(collection.ContractAddress), nil
}

func (pr *portalResolver) walletOf(ctx context.Context, userID string) (common.Address, error) {
	user, err := pr.users.FindByID(ctx, userID)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}
	return common.HexToAddress(user.WalletAddress), nil
}

// AssetMinter submits mint-asset batches. The batch size is the amount; token
// ids are assigned by the contract and attributed from the receipt later.
type AssetMinter struct {
	resolver *portalResolver
}

func NewAssetMinter(collections collectionFinder, games gameFinder, users userFinder, chains map[int64]*Chain) *AssetMinter {
	return &AssetMinter{resolver: &portalResolver{collections: collections, games: games, users: users, chains: chains}}
}

func (m *AssetMinter) Submit(ctx context.Context, records []*types.TransactionRecord) (string, error) {
	meta := records[0].Metadata
	portal, collection, err := m.resolver.resolve(ctx, meta.CollectionID)
	if err != nil {
		return "", err
	}
	to, err := m.resolver.walletOf(ctx, meta.UserID)
	if err != nil {
		return "", err
	}

	log.Info().
		Str("collection", meta.CollectionID).
		Str("user", meta.UserID).
		Int("count", len(records)).
		Msg("[AssetMinter] [Submit] submitting mint batch")
	return portal.MintBatchAsset(ctx, collection, to, int64(len(records)))
}

// AssetBurner submits burn-asset batches; each record names the token to burn.
type AssetBurner struct {
	resolver *portalResolver
}

func NewAssetBurner(collections collectionFinder, games gameFinder, users userFinder, chains map[int64]*Chain) *AssetBurner {
	return &AssetBurner{resolver: &portalResolver{collections: collections, games: games, users: users, chains: chains}}
}

func (b *AssetBurner) Submit(ctx context.Context, records []*types.TransactionRecord) (string, error) {
	meta := records[0].Metadata
	portal, collection, err := b.resolver.resolve(ctx, meta.CollectionID)
	if err != nil {
		return "", err
	}

	tokenIDs := make([]int64, 0, len(records))
	for _, record := range records {
		tokenIDs = append(tokenIDs, record.Metadata.TokenID)
	}

	log.Info().
		Str("collection", meta.CollectionID).
		Ints64("tokenIds", tokenIDs).
		Msg("[AssetBurner] [Submit] submitting burn batch")
	return portal.BurnBatchAsset(ctx, collection, tokenIDs)
}

// ResourceMinter submits mint-resource batches. Quantities for the same token
// id are merged so the contract sees one entry per id.
type ResourceMinter struct {
	resolver *portalResolver
}

func NewResourceMinter(collections collectionFinder, games gameFinder, users userFinder, chains map[int64]*Chain) *ResourceMinter {
	return &ResourceMinter{resolver: &portalResolver{collections: collections, games: games, users: users, chains: chains}}
}

func (m *ResourceMinter) Submit(ctx context.Context, records []*types.TransactionRecord) (string, error) {
	meta := records[0].Metadata
	portal, collection, err := m.resolver.resolve(ctx, meta.CollectionID)
	if err != nil {
		return "", err
	}
	to, err := m.resolver.walletOf(ctx, meta.UserID)
	if err != nil {
		return "", err
	}

	amounts := map[int64]int64{}
	for _, record := range records {
		amounts[record.Metadata.TokenID] += record.Metadata.Amount
	}
	tokenIDs := make([]int64, 0, len(amounts))
	for tokenID := range amounts {
		tokenIDs = append(tokenIDs, tokenID)
	}
	sort.Slice(tokenIDs, func(i, j int) bool { return tokenIDs[i] < tokenIDs[j] })
	quantities := make([]int64, 0, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		quantities = append(quantities, amounts[tokenID])
	}

	log.Info().
		Str("collection", meta.CollectionID).
		Str("user", meta.UserID).
		Ints64("tokenIds", tokenIDs).
		Msg("[ResourceMinter] [Submit] submitting resource mint batch")
	return portal.MintBatchResource(ctx, collection, to, tokenIDs, quantities)
}
