package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// GamePortal ABI, reduced to the calls and events the relayer touches.
const gamePortalABI = `[
	{"type":"function","name":"mintBatchAsset","stateMutability":"nonpayable","inputs":[{"name":"collection","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"burnBatchAsset","stateMutability":"nonpayable","inputs":[{"name":"collection","type":"address"},{"name":"tokenIds","type":"uint256[]"}],"outputs":[]},
	{"type":"function","name":"mintBatchResource","stateMutability":"nonpayable","inputs":[{"name":"collection","type":"address"},{"name":"to","type":"address"},{"name":"tokenIds","type":"uint256[]"},{"name":"amounts","type":"uint256[]"}],"outputs":[]},
	{"type":"event","name":"LogERC721Deposited","anonymous":false,"inputs":[{"name":"collection","type":"address","indexed":false},{"name":"tokenId","type":"uint256","indexed":false},{"name":"wallet","type":"address","indexed":false}]},
	{"type":"event","name":"LogERC721Withdrawn","anonymous":false,"inputs":[{"name":"collection","type":"address","indexed":false},{"name":"tokenId","type":"uint256","indexed":false},{"name":"wallet","type":"address","indexed":false}]},
	{"type":"event","name":"LogERC1155Deposited","anonymous":false,"inputs":[{"name":"account","type":"address","indexed":false},{"name":"tokenId","type":"uint256","indexed":false},{"name":"amount","type":"uint256","indexed":false}]}
]`

// Asset contract events emitted during portal mint/burn batches.
const assetABI = `[
	{"type":"event","name":"LogMinted","anonymous":false,"inputs":[{"name":"tokenId","type":"uint256","indexed":false}]},
	{"type":"event","name":"LogBurnt","anonymous":false,"inputs":[{"name":"tokenId","type":"uint256","indexed":false}]}
]`

var (
	PortalABI abi.ABI
	AssetABI  abi.ABI
)

func init() {
	var err error
	PortalABI, err = abi.JSON(strings.NewReader(gamePortalABI))
	if err != nil {
		panic(fmt.Sprintf("invalid GamePortal ABI: %v", err))
	}
	AssetABI, err = abi.JSON(strings.NewReader(assetABI))
	if err != nil {
		panic(fmt.Sprintf("invalid Asset ABI: %v", err))
	}
}

// GamePortal is the bound portal contract of one game. Every state changing
// call is preceded by a dry-run eth_call with the same calldata, so a call
// guaranteed to revert fails fast without consuming a nonce.
type GamePortal struct {
	Address  common.Address
	client   *ethclient.Client
	contract *bind.BoundContract
	auth     *bind.TransactOpts
}

func NewGamePortal(address common.Address, client *ethclient.Client, auth *bind.TransactOpts) *GamePortal {
	contract := bind.NewBoundContract(address, PortalABI, client, client, client)
	return &GamePortal{
		Address:  address,
		client:   client,
		contract: contract,
		auth:     auth,
	}
}

func (gp *GamePortal) MintBatchAsset(ctx context.Context, collection common.Address, to common.Address, amount int64) (string, error) {
	return gp.submit(ctx, "mintBatchAsset", collection, to, big.NewInt(amount))
}

func (gp *GamePortal) BurnBatchAsset(ctx context.Context, collection common.Address, tokenIDs []int64) (string, error) {
	return gp.submit(ctx, "burnBatchAsset", collection, toBigInts(tokenIDs))
}

func (gp *GamePortal) MintBatchResource(ctx context.Context, collection common.Address, to common.Address, tokenIDs, amounts []int64) (string, error) {
	return gp.submit(ctx, "mintBatchResource", collection, to, toBigInts(tokenIDs), toBigInts(amounts))
}

func (gp *GamePortal) submit(ctx context.Context, method string, args ...interface{}) (string, error) {
	if err := gp.dryRun(ctx, method, args...); err != nil {
		return "", fmt.Errorf("dry-run %s reverted: %w", method, err)
	}

	opts := *gp.auth
	opts.Context = ctx
	tx, err := gp.contract.Transact(&opts, method, args...)
	if err != nil {
		return "", fmt.Errorf("failed to submit %s: %w", method, err)
	}
	return tx.Hash().Hex(), nil
}

func (gp *GamePortal) dryRun(ctx context.Context, method string, args ...interface{}) error {
	input, err := PortalABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}
	_, err = gp.client.CallContract(ctx, ethereum.CallMsg{
		From: gp.auth.From,
		To:   &gp.Address,
		Data: input,
	}, nil)
	return err
}

func toBigInts(values []int64) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = big.NewInt(v)
	}
	return out
}
