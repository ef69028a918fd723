package rpcapi

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/cloudwalk/stratus/chainspec"
	"github.com/cloudwalk/stratus/importer"
	"github.com/cloudwalk/stratus/miner"
	"github.com/cloudwalk/stratus/mode"
	"github.com/cloudwalk/stratus/storage"
)

// fundedTestKey is the private key behind miner's genesis test account
// testAccounts[0] (see miner/genesis.go), reused here so the test
// transaction comes from an account that exists at genesis with nonce 0.
const fundedTestKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff8"

var (
	testSigner    = ethtypes.NewEIP155Signer(big.NewInt(chainspec.ChainID))
	testRecipient = common.HexToAddress("0x000000000000000000000000000000000000f1")
)

func newTestEthService(t *testing.T) (*EthService, *storage.MemoryBackend, *miner.Miner) {
	t.Helper()
	store := storage.NewMemoryBackend()
	require.NoError(t, miner.EmitGenesis(context.Background(), store, true))

	m := miner.New(store, time.Hour, 0)
	im := importer.New(store)
	mm := mode.New(mode.Leader, m, im)

	return NewEthService(store, m, mm), store, m
}

func newSignedTestTx(t *testing.T) *ethtypes.Transaction {
	t.Helper()
	key, err := crypto.HexToECDSA(fundedTestKey)
	require.NoError(t, err)
	raw := ethtypes.NewTransaction(0, testRecipient, big.NewInt(0), 21_000, big.NewInt(0), nil)
	tx, err := ethtypes.SignTx(raw, testSigner, key)
	require.NoError(t, err)
	return tx
}

func TestGetBlockByNumberFullTxsCarriesRawBytes(t *testing.T) {
	ctx := context.Background()
	svc, store, m := newTestEthService(t)

	tx := newSignedTestTx(t)
	from, err := ethtypes.Sender(testSigner, tx)
	require.NoError(t, err)

	_, err = m.Pending().Submit(tx, from)
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx))

	head, ok := store.Head(ctx)
	require.True(t, ok)

	block, err := svc.GetBlockByNumber(ctx, "latest", true)
	require.NoError(t, err)
	require.EqualValues(t, head, block.Number)
	require.Len(t, block.Transactions, 1)

	got, ok := block.Transactions[0].(rpcTransaction)
	require.True(t, ok)
	require.Equal(t, tx.Hash(), got.Hash)
	require.NotEmpty(t, got.Raw)

	wantRaw, err := tx.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, hexutil.Bytes(wantRaw), got.Raw)
}

func TestGetBlockByNumberWithoutFullTxsReturnsHashesOnly(t *testing.T) {
	ctx := context.Background()
	svc, _, m := newTestEthService(t)

	tx := newSignedTestTx(t)
	from, err := ethtypes.Sender(testSigner, tx)
	require.NoError(t, err)
	_, err = m.Pending().Submit(tx, from)
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx))

	block, err := svc.GetBlockByNumber(ctx, "latest", false)
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)

	got, ok := block.Transactions[0].(common.Hash)
	require.True(t, ok)
	require.Equal(t, tx.Hash(), got)
}

func TestGetTransactionReceiptReturnsMinedReceipt(t *testing.T) {
	ctx := context.Background()
	svc, _, m := newTestEthService(t)

	tx := newSignedTestTx(t)
	from, err := ethtypes.Sender(testSigner, tx)
	require.NoError(t, err)
	_, err = m.Pending().Submit(tx, from)
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx))

	receipt, err := svc.GetTransactionReceipt(ctx, tx.Hash())
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.Equal(t, tx.Hash(), receipt.TransactionHash)
	require.EqualValues(t, 1, receipt.Status)
}

func TestGetTransactionReceiptUnknownHashReturnsNil(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestEthService(t)

	receipt, err := svc.GetTransactionReceipt(ctx, common.Hash{0x1})
	require.NoError(t, err)
	require.Nil(t, receipt)
}

func TestSendRawTransactionRejectedWhenTransactionsDisabled(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestEthService(t)
	svc.mode.DisableTransactions()

	tx := newSignedTestTx(t)
	rawBytes, err := tx.MarshalBinary()
	require.NoError(t, err)

	hash, err := svc.SendRawTransaction(ctx, rawBytes)
	require.Error(t, err)
	require.Equal(t, tx.Hash(), hash)
}

func TestResolveBlockNumberTags(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestEthService(t)

	n, err := svc.resolveBlockNumber(ctx, "earliest")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	n, err = svc.resolveBlockNumber(ctx, "latest")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	n, err = svc.resolveBlockNumber(ctx, "0x5")
	require.NoError(t, err)
	require.EqualValues(t, 5, n)
}
