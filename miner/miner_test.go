package miner

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/cloudwalk/stratus/chainspec"
	"github.com/cloudwalk/stratus/storage"
)

// fundedTestKey is the private key behind testAccounts[0], the standard
// first well-known local-development account, so tests can sign a
// transaction whose sender is already funded at genesis.
const fundedTestKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff8"

func TestEmitGenesisIsIdempotentAndFundsTestAccounts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryBackend()

	require.NoError(t, EmitGenesis(ctx, store, true))
	head, ok := store.Head(ctx)
	require.True(t, ok)
	require.EqualValues(t, 0, head)

	header, ok, err := store.Header(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, chainspec.EmptyTxRoot, header.TransactionsRoot)
	require.Equal(t, chainspec.EmptyUncleHash, header.UnclesHash)

	view, err := store.ReadAccount(ctx, testAccounts[0], 0)
	require.NoError(t, err)
	require.True(t, view.Found)
	require.Equal(t, 0, testAccountFunding.Cmp(view.Balance))

	// Calling again must be a no-op since the store already has a head.
	require.NoError(t, EmitGenesis(ctx, store, true))
	head2, _ := store.Head(ctx)
	require.EqualValues(t, 0, head2)
}

func TestTickAssemblesAndCommitsABlock(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryBackend()
	require.NoError(t, EmitGenesis(ctx, store, true))

	key, err := crypto.HexToECDSA(fundedTestKey)
	require.NoError(t, err)

	raw := types.NewTransaction(0, testAccounts[1], big.NewInt(0), 21_000, big.NewInt(0), nil)
	tx, err := types.SignTx(raw, signer, key)
	require.NoError(t, err)
	from, err := types.Sender(signer, tx)
	require.NoError(t, err)
	require.Equal(t, testAccounts[0], from)

	m := New(store, time.Hour, 0)
	known, err := m.Pending().Submit(tx, from)
	require.NoError(t, err)
	require.False(t, known)

	require.NoError(t, m.Tick(ctx))

	head, ok := store.Head(ctx)
	require.True(t, ok)
	require.EqualValues(t, 1, head)

	got, ok, err := store.Transaction(ctx, tx.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), got.BlockNumber)
	require.Equal(t, uint64(0), got.IdxInBlock)

	require.Equal(t, 0, m.Pending().Count())

	senderNonce, err := store.NonceAt(ctx, from, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, senderNonce)
}
