package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"

	"github.com/nemesis-gg/portal-relayer/config"
)

// EvmClient wraps one chain connection plus the relayer's signing identity on
// that chain. All portal submissions for the chain go through the same key,
// which is why their nonces form a single sequence.
type EvmClient struct {
	EvmConfig *config.EvmNetworkConfig
	Client    *ethclient.Client
	auth      *bind.TransactOpts
}

func NewEvmClients(cfg *config.Config) ([]*EvmClient, error) {
	evmClients := make([]*EvmClient, 0, len(cfg.EvmNetworks))
	for i := range cfg.EvmNetworks {
		client, err := NewEvmClient(&cfg.EvmNetworks[i])
		if err != nil {
			return nil, fmt.Errorf("failed to create evm client for %s: %w", cfg.EvmNetworks[i].Name, err)
		}
		evmClients = append(evmClients, client)
	}
	return evmClients, nil
}

func NewEvmClient(evmConfig *config.EvmNetworkConfig) (*EvmClient, error) {
	ctx := context.Background()
	log.Info().Str("network", evmConfig.Name).Msgf("[EvmClient] [NewEvmClient] connecting to EVM network")

	rpcClient, err := rpc.DialContext(ctx, evmConfig.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM network %s: %w", evmConfig.Name, err)
	}
	client := ethclient.NewClient(rpcClient)

	if err := preparePrivateKey(evmConfig); err != nil {
		return nil, err
	}
	auth, err := CreateTransactOpts(evmConfig)
	if err != nil {
		return nil, err
	}

	return &EvmClient{
		EvmConfig: evmConfig,
		Client:    client,
		auth:      auth,
	}, nil
}

func CreateTransactOpts(evmConfig *config.EvmNetworkConfig) (*bind.TransactOpts, error) {
	if evmConfig.PrivateKey == "" {
		return nil, fmt.Errorf("private key is not set for network %s", evmConfig.Name)
	}
	privateKey, err := crypto.HexToECDSA(evmConfig.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key for network %s: %w", evmConfig.Name, err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, big.NewInt(evmConfig.ChainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create auth for network %s: %w", evmConfig.Name, err)
	}
	auth.GasLimit = evmConfig.GasLimit
	return auth, nil
}

func (ec *EvmClient) ChainID() int64 {
	return ec.EvmConfig.ChainID
}

func (ec *EvmClient) BlockNumber(ctx context.Context) (int64, error) {
	blockNumber, err := ec.Client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return int64(blockNumber), nil
}

// TransactionReceipt returns (nil, nil) while the transaction is not yet
// mined, so callers can tell "no receipt yet" from an RPC failure.
func (ec *EvmClient) TransactionReceipt(ctx context.Context, txHash string) (*ethtypes.Receipt, error) {
	receipt, err := ec.Client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err == ethereum.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt for %s: %w", txHash, err)
	}
	return receipt, nil
}

func (ec *EvmClient) FilterLogs(ctx context.Context, contractAddress string, topic common.Hash, fromBlock, toBlock int64) ([]ethtypes.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: []common.Address{common.HexToAddress(contractAddress)},
		Topics:    [][]common.Hash{{topic}},
	}
	logs, err := ec.Client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}
	return logs, nil
}

// PortalAt binds the GamePortal contract deployed at the given address to
// this chain's signing identity.
func (ec *EvmClient) PortalAt(contractAddress string) *GamePortal {
	return NewGamePortal(common.HexToAddress(contractAddress), ec.Client, ec.auth)
}
