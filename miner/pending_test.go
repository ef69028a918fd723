package miner

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/cloudwalk/stratus/chainspec"
)

var signer = types.NewEIP155Signer(big.NewInt(chainspec.ChainID))

func signedTestTx(t *testing.T, nonce uint64) (*types.Transaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	raw := types.NewTransaction(nonce, common.HexToAddress("0xbeef"), big.NewInt(0), 21_000, big.NewInt(0), nil)
	signed, err := types.SignTx(raw, signer, key)
	require.NoError(t, err)
	from, err := types.Sender(signer, signed)
	require.NoError(t, err)
	return signed, from
}

func TestPendingSetSubmitDedupes(t *testing.T) {
	p := NewPendingSet(0)
	tx, from := signedTestTx(t, 0)

	known, err := p.Submit(tx, from)
	require.NoError(t, err)
	require.False(t, known)

	known, err = p.Submit(tx, from)
	require.NoError(t, err)
	require.True(t, known, "resubmitting the same hash must be reported as known")
	require.Equal(t, 1, p.Count())
}

func TestPendingSetDrainOrderAndMinedDedup(t *testing.T) {
	p := NewPendingSet(0)
	tx1, from1 := signedTestTx(t, 0)
	tx2, from2 := signedTestTx(t, 1)

	_, err := p.Submit(tx1, from1)
	require.NoError(t, err)
	_, err = p.Submit(tx2, from2)
	require.NoError(t, err)
	require.Equal(t, 2, p.Count())

	drained := p.Drain()
	require.Len(t, drained, 2)
	require.Equal(t, tx1.Hash(), drained[0].tx.Hash())
	require.Equal(t, tx2.Hash(), drained[1].tx.Hash())
	require.Equal(t, 0, p.Count())

	known, err := p.Submit(tx1, from1)
	require.NoError(t, err)
	require.True(t, known, "a mined hash must never be re-admitted")
	require.Equal(t, 0, p.Count())
}

func TestPendingSetWaitForEmptyUnblocksAfterDrain(t *testing.T) {
	p := NewPendingSet(0)
	tx, from := signedTestTx(t, 0)
	_, err := p.Submit(tx, from)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		p.WaitForEmpty()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitForEmpty returned before the pending set was drained")
	case <-time.After(20 * time.Millisecond):
	}

	p.Drain()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForEmpty did not unblock after Drain")
	}
}

func TestPendingSetSubmitRejectsWhenFull(t *testing.T) {
	p := NewPendingSet(1)
	tx1, from1 := signedTestTx(t, 0)
	tx2, from2 := signedTestTx(t, 1)

	known, err := p.Submit(tx1, from1)
	require.NoError(t, err)
	require.False(t, known)

	_, err = p.Submit(tx2, from2)
	require.ErrorIs(t, err, ErrFull)
	require.Equal(t, 1, p.Count())
}
