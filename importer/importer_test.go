package importer

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/cloudwalk/stratus/chainspec"
	"github.com/cloudwalk/stratus/miner"
	"github.com/cloudwalk/stratus/storage"
)

var testSigner = ethtypes.NewEIP155Signer(big.NewInt(chainspec.ChainID))

// fakeLeaderServer serves a single canned eth_getBlockByNumber response so
// the Importer's dial-poll-verify-commit path can run against a real
// JSON-RPC wire client without a live Stratus leader. Every other call
// (the second poll, once the importer has caught up) returns a null
// result, matching what a real leader returns past its head.
func fakeLeaderServer(t *testing.T, block *remoteBlock) *httptest.Server {
	t.Helper()
	served := false
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      json.RawMessage `json:"id"`
			Result  interface{}     `json:"result"`
		}{JSONRPC: "2.0", ID: req.ID}

		if req.Method == "eth_getBlockByNumber" && !served {
			served = true
			resp.Result = block
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestImporterAppliesAndVerifiesABlock(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryBackend()
	require.NoError(t, miner.EmitGenesis(ctx, store, true))

	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff8")
	require.NoError(t, err)

	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	rawTx := ethtypes.NewTransaction(0, to, big.NewInt(0), 21_000, big.NewInt(0), nil)
	tx, err := ethtypes.SignTx(rawTx, testSigner, key)
	require.NoError(t, err)
	rawBytes, err := tx.MarshalBinary()
	require.NoError(t, err)

	txRoot := miner.TransactionsRoot([]*ethtypes.Transaction{tx})
	bloom := miner.LogsBloom(nil, nil)
	const timestamp = uint64(1_700_000_000)
	const gasUsed = uint64(21_000)
	hash := miner.BlockHash(common.Hash{}, txRoot, bloom, 1, gasUsed, timestamp)

	block := &remoteBlock{
		Number:           hexutil.Uint64(1),
		Hash:             hash,
		ParentHash:       common.Hash{},
		TransactionsRoot: txRoot,
		LogsBloom:        hexutil.Bytes(bloom[:]),
		GasUsed:          hexutil.Uint64(gasUsed),
		Timestamp:        hexutil.Uint64(timestamp),
		Transactions:     []remoteTx{{Raw: hexutil.Bytes(rawBytes)}},
	}

	server := fakeLeaderServer(t, block)
	defer server.Close()

	im := New(store)
	im.Start(ctx, server.URL, "", 2_000, 20)
	defer im.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if head, ok := store.Head(ctx); ok && head == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("importer never reached block 1; healthy=%v", im.Healthy())
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, im.Healthy())

	header, ok, err := store.Header(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash, header.Hash)
	require.Equal(t, txRoot, header.TransactionsRoot)
	require.Equal(t, gasUsed, header.Gas)
}

func TestImporterMarksUnhealthyOnVerificationMismatch(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryBackend()
	require.NoError(t, miner.EmitGenesis(ctx, store, true))

	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff8")
	require.NoError(t, err)

	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	rawTx := ethtypes.NewTransaction(0, to, big.NewInt(0), 21_000, big.NewInt(0), nil)
	tx, err := ethtypes.SignTx(rawTx, testSigner, key)
	require.NoError(t, err)
	rawBytes, err := tx.MarshalBinary()
	require.NoError(t, err)

	txRoot := miner.TransactionsRoot([]*ethtypes.Transaction{tx})
	bloom := miner.LogsBloom(nil, nil)

	block := &remoteBlock{
		Number:           hexutil.Uint64(1),
		Hash:             common.HexToHash("0xdeadbeef"), // wrong on purpose
		ParentHash:       common.Hash{},
		TransactionsRoot: txRoot,
		LogsBloom:        hexutil.Bytes(bloom[:]),
		GasUsed:          hexutil.Uint64(21_000),
		Timestamp:        hexutil.Uint64(1_700_000_000),
		Transactions:     []remoteTx{{Raw: hexutil.Bytes(rawBytes)}},
	}

	server := fakeLeaderServer(t, block)
	defer server.Close()

	im := New(store)
	im.Start(ctx, server.URL, "", 2_000, 20)
	defer im.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if !im.Healthy() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("importer never went unhealthy on hash mismatch")
		}
		time.Sleep(10 * time.Millisecond)
	}

	head, ok := store.Head(ctx)
	require.True(t, ok)
	require.EqualValues(t, 0, head, "mismatched block must never be committed")
}
