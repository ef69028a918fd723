package rpcapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cloudwalk/stratus/storage"
	"github.com/cloudwalk/stratus/types"
)

// GetLogsArgs is eth_getLogs' single filter-object argument. Address and
// Topics each accept either a bare value or an array, matching the
// standard Ethereum filter object's leniency; UnmarshalJSON normalizes
// both into slices.
type GetLogsArgs struct {
	Address   []common.Address
	FromBlock string
	ToBlock   string
	Topics    [types.MaxTopics][]common.Hash
}

func (a *GetLogsArgs) UnmarshalJSON(data []byte) error {
	var raw struct {
		Address   json.RawMessage `json:"address"`
		FromBlock string          `json:"fromBlock"`
		ToBlock   string          `json:"toBlock"`
		Topics    []json.RawMessage `json:"topics"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.FromBlock = raw.FromBlock
	a.ToBlock = raw.ToBlock

	if len(raw.Address) > 0 {
		addrs, err := decodeOneOrMany[common.Address](raw.Address)
		if err != nil {
			return fmt.Errorf("rpcapi: decoding address: %w", err)
		}
		a.Address = addrs
	}

	if len(raw.Topics) > types.MaxTopics {
		return fmt.Errorf("rpcapi: at most %d topic positions allowed", types.MaxTopics)
	}
	for i, pos := range raw.Topics {
		if string(pos) == "null" || len(pos) == 0 {
			continue
		}
		hashes, err := decodeOneOrMany[common.Hash](pos)
		if err != nil {
			return fmt.Errorf("rpcapi: decoding topics[%d]: %w", i, err)
		}
		a.Topics[i] = hashes
	}
	return nil
}

// decodeOneOrMany unmarshals raw as either a bare T or a []T.
func decodeOneOrMany[T any](raw json.RawMessage) ([]T, error) {
	var many []T
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

func (a GetLogsArgs) toFilter(ctx context.Context, e *EthService) (storage.LogFilter, error) {
	from, err := e.resolveBlockNumber(ctx, a.FromBlock)
	if err != nil {
		return storage.LogFilter{}, err
	}
	to, err := e.resolveBlockNumber(ctx, a.ToBlock)
	if err != nil {
		return storage.LogFilter{}, err
	}
	return storage.LogFilter{
		Addresses: a.Address,
		FromBlock: from,
		ToBlock:   to,
		Topics:    a.Topics,
	}, nil
}
