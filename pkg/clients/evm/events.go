package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

const (
	EventERC721Deposited  = "LogERC721Deposited"
	EventERC721Withdrawn  = "LogERC721Withdrawn"
	EventERC1155Deposited = "LogERC1155Deposited"
	EventMinted           = "LogMinted"
	EventBurnt            = "LogBurnt"
)

func PortalEventTopic(name string) common.Hash {
	return PortalABI.Events[name].ID
}

// The abi tags bridge the contract's camelCase argument names to the Go
// field names; without them the unpacker matches by exact reflection name.
type ERC721DepositedEvent struct {
	Collection common.Address
	TokenID    *big.Int `abi:"tokenId"`
	Wallet     common.Address
}

type ERC721WithdrawnEvent struct {
	Collection common.Address
	TokenID    *big.Int `abi:"tokenId"`
	Wallet     common.Address
}

type ERC1155DepositedEvent struct {
	Account common.Address
	TokenID *big.Int `abi:"tokenId"`
	Amount  *big.Int

	TxHash      string
	LogIndex    uint
	BlockNumber int64
}

func ParseERC721Deposited(logEntry ethtypes.Log) (*ERC721DepositedEvent, error) {
	var event ERC721DepositedEvent
	if err := PortalABI.UnpackIntoInterface(&event, EventERC721Deposited, logEntry.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", EventERC721Deposited, err)
	}
	return &event, nil
}

func ParseERC721Withdrawn(logEntry ethtypes.Log) (*ERC721WithdrawnEvent, error) {
	var event ERC721WithdrawnEvent
	if err := PortalABI.UnpackIntoInterface(&event, EventERC721Withdrawn, logEntry.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", EventERC721Withdrawn, err)
	}
	return &event, nil
}

func ParseERC1155Deposited(logEntry ethtypes.Log) (*ERC1155DepositedEvent, error) {
	var event ERC1155DepositedEvent
	if err := PortalABI.UnpackIntoInterface(&event, EventERC1155Deposited, logEntry.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", EventERC1155Deposited, err)
	}
	event.TxHash = logEntry.TxHash.Hex()
	event.LogIndex = logEntry.Index
	event.BlockNumber = int64(logEntry.BlockNumber)
	return &event, nil
}

// ExtractTokenIDs pulls the token ids of every asset event with the given
// name out of a receipt's logs, in log order. The order matches submission
// order for batched mints, which is what receipt attribution relies on.
func ExtractTokenIDs(logs []*ethtypes.Log, eventName string) ([]int64, error) {
	topic := AssetABI.Events[eventName].ID

	var tokenIDs []int64
	for _, logEntry := range logs {
		if len(logEntry.Topics) == 0 || logEntry.Topics[0] != topic {
			continue
		}
		values, err := AssetABI.Unpack(eventName, logEntry.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack %s: %w", eventName, err)
		}
		tokenID, ok := values[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected token id type in %s", eventName)
		}
		tokenIDs = append(tokenIDs, tokenID.Int64())
	}
	return tokenIDs, nil
}
