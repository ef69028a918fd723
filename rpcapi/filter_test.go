package rpcapi

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestGetLogsArgsUnmarshalBareAddress(t *testing.T) {
	var args GetLogsArgs
	raw := `{"address":"0x00000000000000000000000000000000000000f1","fromBlock":"0x1","toBlock":"latest"}`
	require.NoError(t, json.Unmarshal([]byte(raw), &args))

	require.Equal(t, []common.Address{common.HexToAddress("0xf1")}, args.Address)
	require.Equal(t, "0x1", args.FromBlock)
	require.Equal(t, "latest", args.ToBlock)
}

func TestGetLogsArgsUnmarshalAddressArray(t *testing.T) {
	var args GetLogsArgs
	raw := `{"address":["0x0000000000000000000000000000000000000001","0x0000000000000000000000000000000000000002"]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &args))
	require.Len(t, args.Address, 2)
}

func TestGetLogsArgsUnmarshalTopicsMixesBareAndArrayPositions(t *testing.T) {
	var args GetLogsArgs
	raw := `{"topics":["0x000000000000000000000000000000000000000000000000000000000000000a",null,["0x000000000000000000000000000000000000000000000000000000000000000b","0x000000000000000000000000000000000000000000000000000000000000000c"]]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &args))

	require.Len(t, args.Topics[0], 1)
	require.Empty(t, args.Topics[1])
	require.Len(t, args.Topics[2], 2)
	require.Empty(t, args.Topics[3])
}

func TestGetLogsArgsUnmarshalRejectsTooManyTopicPositions(t *testing.T) {
	var args GetLogsArgs
	raw := `{"topics":[null,null,null,null,null]}`
	require.Error(t, json.Unmarshal([]byte(raw), &args))
}

func TestDecodeOneOrMany(t *testing.T) {
	one, err := decodeOneOrMany[common.Address](json.RawMessage(`"0x0000000000000000000000000000000000000001"`))
	require.NoError(t, err)
	require.Equal(t, []common.Address{common.HexToAddress("0x1")}, one)

	many, err := decodeOneOrMany[common.Address](json.RawMessage(`["0x0000000000000000000000000000000000000001","0x0000000000000000000000000000000000000002"]`))
	require.NoError(t, err)
	require.Len(t, many, 2)
}
