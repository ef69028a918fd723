package storage

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cloudwalk/stratus/types"
)

// blockWithOneLog returns a minimal, otherwise-empty bundle for height
// number whose single log carries two topics, both stamped with the
// block-local LogIdx a real Miner/Importer would assign (always 0 here,
// mirroring the first and only log emitted in the block).
func blockWithOneLog(number uint64, logAddr common.Address) BlockBundle {
	hash := common.BigToHash(new(big.Int).SetUint64(number + 1000))
	var parent common.Hash
	if number > 0 {
		parent = common.BigToHash(new(big.Int).SetUint64(number + 999))
	}
	return BlockBundle{
		Header: types.Header{Number: number, Hash: hash, ParentHash: parent},
		Logs: []types.Log{
			{Address: logAddr, LogIdx: 0, BlockNumber: number, BlockHash: hash},
		},
		Topics: []types.Topic{
			{Value: common.HexToHash("0x01"), LogIdx: 0, BlockNumber: number, BlockHash: hash},
			{Value: common.HexToHash("0x02"), LogIdx: 0, BlockNumber: number, BlockHash: hash},
		},
	}
}

func TestCommitBlockAssignsGloballyUniqueLogIdx(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBackend()
	addr := common.HexToAddress("0xaaaa000000000000000000000000000000aaaa")

	require.NoError(t, store.CommitBlock(ctx, blockWithOneLog(0, addr)))
	require.NoError(t, store.CommitBlock(ctx, blockWithOneLog(1, addr)))

	logs, err := store.GetLogs(ctx, LogFilter{FromBlock: 0, ToBlock: 2})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.NotEqual(t, logs[0].LogIdx, logs[1].LogIdx, "log_idx must be globally unique across blocks")
	require.EqualValues(t, 0, logs[0].LogIdx)
	require.EqualValues(t, 1, logs[1].LogIdx)

	topics0, err := store.LogTopics(ctx, logs[0].LogIdx)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}, topics0)

	topics1, err := store.LogTopics(ctx, logs[1].LogIdx)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}, topics1)
}
