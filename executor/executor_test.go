package executor

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/cloudwalk/stratus/chainspec"
	"github.com/cloudwalk/stratus/storage"
	"github.com/cloudwalk/stratus/types"
)

var testSigner = ethtypes.NewEIP155Signer(big.NewInt(chainspec.ChainID))

const fundedTestKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff8"

// newFundedSnapshot commits a genesis block funding from with balance and
// returns a snapshot pinned at it, for tests that only need one address
// pre-seeded.
func newFundedSnapshot(t *testing.T, from common.Address, balance *big.Int) (storage.Backend, storage.Snapshot) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryBackend()
	err := store.CommitBlock(ctx, storage.BlockBundle{
		Header: types.Header{Number: 0, TransactionsRoot: chainspec.EmptyTxRoot, CreatedAt: time.Now().UnixNano()},
		Accounts: []types.Account{
			{Address: from, Nonce: 0, Balance: balance, BlockNumber: 0},
		},
	})
	require.NoError(t, err)
	snap, err := store.Snapshot(ctx, 0)
	require.NoError(t, err)
	return store, snap
}

func signedTx(t *testing.T, key string, nonce uint64, to *common.Address, value *big.Int, gas uint64, data []byte) (*ethtypes.Transaction, common.Address) {
	t.Helper()
	pk, err := crypto.HexToECDSA(key)
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(pk.PublicKey)
	var raw *ethtypes.Transaction
	if to == nil {
		raw = ethtypes.NewContractCreation(nonce, value, gas, big.NewInt(0), data)
	} else {
		raw = ethtypes.NewTransaction(nonce, *to, value, gas, big.NewInt(0), data)
	}
	tx, err := ethtypes.SignTx(raw, testSigner, pk)
	require.NoError(t, err)
	return tx, from
}

func TestExecuteSimpleTransferMovesBalanceAndBumpsNonce(t *testing.T) {
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	tx, from := signedTx(t, fundedTestKey, 0, &to, big.NewInt(1000), 21_000, nil)

	funding := new(big.Int).Mul(big.NewInt(1), big.NewInt(1e18))
	_, snap := newFundedSnapshot(t, from, funding)

	exec, err := Execute(tx, from, 0, 0, snap, BlockContext{Number: 1, Timestamp: 1})
	require.NoError(t, err)
	require.Equal(t, uint64(1), exec.Receipt.Status)
	require.Equal(t, OK, exec.Receipt.Kind)
	require.Nil(t, exec.Receipt.ContractAddress)

	var fromAcc, toAcc *types.Account
	for i := range exec.Accounts {
		a := &exec.Accounts[i]
		switch a.Address {
		case from:
			fromAcc = a
		case to:
			toAcc = a
		}
	}
	require.NotNil(t, fromAcc)
	require.NotNil(t, toAcc)
	require.Equal(t, uint64(1), fromAcc.Nonce)
	require.Equal(t, big.NewInt(1000), toAcc.Balance)
	require.Equal(t, new(big.Int).Sub(funding, big.NewInt(1000)), fromAcc.Balance)
}

func TestExecuteContractCreationSetsContractAddress(t *testing.T) {
	// STOP (0x00) is valid, minimal init code: it returns empty runtime
	// code, which is itself a valid (if useless) deployment.
	initCode := []byte{0x00}
	tx, from := signedTx(t, fundedTestKey, 0, nil, big.NewInt(0), 100_000, initCode)

	funding := new(big.Int).Mul(big.NewInt(1), big.NewInt(1e18))
	_, snap := newFundedSnapshot(t, from, funding)

	exec, err := Execute(tx, from, 0, 0, snap, BlockContext{Number: 1, Timestamp: 1})
	require.NoError(t, err)
	require.Equal(t, uint64(1), exec.Receipt.Status)
	require.NotNil(t, exec.Receipt.ContractAddress)
	require.Equal(t, crypto.CreateAddress(from, 0), *exec.Receipt.ContractAddress)
}

func TestExecuteInsufficientBalanceFailsButBumpsNonce(t *testing.T) {
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	hugeValue := new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18))
	tx, from := signedTx(t, fundedTestKey, 0, &to, hugeValue, 21_000, nil)

	_, snap := newFundedSnapshot(t, from, big.NewInt(1))

	exec, err := Execute(tx, from, 0, 0, snap, BlockContext{Number: 1, Timestamp: 1})
	require.NoError(t, err)
	require.Equal(t, uint64(0), exec.Receipt.Status)
	require.Equal(t, InsufficientBalance, exec.Receipt.Kind)

	var fromAcc *types.Account
	for i := range exec.Accounts {
		if exec.Accounts[i].Address == from {
			fromAcc = &exec.Accounts[i]
		}
	}
	require.NotNil(t, fromAcc)
	require.Equal(t, uint64(1), fromAcc.Nonce, "a pre-check failure still consumes the nonce")
}

func TestDecodeRawTransactionRejectsWrongChainID(t *testing.T) {
	wrongSigner := ethtypes.NewEIP155Signer(big.NewInt(999))
	pk, err := crypto.HexToECDSA(fundedTestKey)
	require.NoError(t, err)
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	raw := ethtypes.NewTransaction(0, to, big.NewInt(0), 21_000, big.NewInt(0), nil)
	tx, err := ethtypes.SignTx(raw, wrongSigner, pk)
	require.NoError(t, err)
	rawBytes, err := tx.MarshalBinary()
	require.NoError(t, err)

	_, _, err = DecodeRawTransaction(rawBytes)
	require.ErrorIs(t, err, ErrChainIDMismatch)
}

func TestAdmitTransactionRejectsNonceMismatchAndOversizedGas(t *testing.T) {
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	tx, from := signedTx(t, fundedTestKey, 5, &to, big.NewInt(0), 21_000, nil)

	err := AdmitTransaction(tx, from, 0)
	require.ErrorIs(t, err, ErrNonceMismatch)

	err = AdmitTransaction(tx, from, 5)
	require.NoError(t, err)

	oversized, from2 := signedTx(t, fundedTestKey, 0, &to, big.NewInt(0), chainspec.MaxGasLimit+1, nil)
	err = AdmitTransaction(oversized, from2, 0)
	require.ErrorIs(t, err, ErrGasLimitTooHigh)
}
