package relayer

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/nemesis-gg/portal-relayer/pkg/db/models"
	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

func newTransactorDeps() (*fakeCollections, *fakeGames, *fakeUsers, *fakePortal, map[int64]*Chain) {
	games := &fakeGames{games: []*models.Game{
		{ID: "game-1", ChainID: testChainID, ContractAddress: portalAddr},
	}}
	collections := &fakeCollections{collections: []*models.Collection{
		{ID: "col-2", GameID: "game-1", Type: string(types.CollectionERC1155), ContractAddress: resourceAddr},
	}}
	users := &fakeUsers{users: []*models.User{
		{ID: "user-1", WalletAddress: walletAddr},
	}}
	portal := &fakePortal{}
	chains := map[int64]*Chain{
		testChainID: {ID: testChainID, PortalAt: func(string) Portal { return portal }},
	}
	return collections, games, users, portal, chains
}

func TestResourceMinterMergesQuantities(t *testing.T) {
	collections, games, users, portal, chains := newTransactorDeps()
	minter := NewResourceMinter(collections, games, users, chains)

	records := []*types.TransactionRecord{
		{ID: "tx-01", Type: types.TxMintResource, Metadata: types.TxMetadata{CollectionID: "col-2", UserID: "user-1", TokenID: 11, Amount: 2}},
		{ID: "tx-02", Type: types.TxMintResource, Metadata: types.TxMetadata{CollectionID: "col-2", UserID: "user-1", TokenID: 12, Amount: 1}},
		{ID: "tx-03", Type: types.TxMintResource, Metadata: types.TxMetadata{CollectionID: "col-2", UserID: "user-1", TokenID: 11, Amount: 3}},
	}

	hash, err := minter.Submit(context.Background(), records)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	require.Len(t, portal.resourceCalls, 1)
	call := portal.resourceCalls[0]
	require.Equal(t, common.HexToAddress(resourceAddr), call.collection)
	require.Equal(t, common.HexToAddress(walletAddr), call.to)
	require.Equal(t, []int64{11, 12}, call.tokenIDs)
	require.Equal(t, []int64{5, 1}, call.amounts)
}

func TestTransactorRegistryValidate(t *testing.T) {
	collections, games, users, _, chains := newTransactorDeps()

	complete := TransactorRegistry{
		types.TxMintAsset:    NewAssetMinter(collections, games, users, chains),
		types.TxBurnAsset:    NewAssetBurner(collections, games, users, chains),
		types.TxMintResource: NewResourceMinter(collections, games, users, chains),
	}
	require.NoError(t, complete.Validate())

	delete(complete, types.TxBurnAsset)
	require.Error(t, complete.Validate())
}
