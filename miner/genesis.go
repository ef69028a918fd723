package miner

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cloudwalk/stratus/chainspec"
	"github.com/cloudwalk/stratus/storage"
	"github.com/cloudwalk/stratus/types"
)

// testAccountFunding is the balance (in wei) every seeded test account
// starts with when enable_test_accounts is set.
var testAccountFunding = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18))

// testAccounts are well-known addresses funded at genesis for local
// development and the seeded end-to-end scenarios, mirroring how the
// teacher's own local network config pre-funds a fixed address set.
var testAccounts = []common.Address{
	common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
	common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
	common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"),
}

// EmitGenesis commits block 0 with zero transactions and the canonical
// empty-tx/empty-uncles hashes, optionally funding testAccounts (§4.3).
// It is a no-op if the store already has a head.
func EmitGenesis(ctx context.Context, store storage.Backend, enableTestAccounts bool) error {
	if _, ok := store.Head(ctx); ok {
		return nil
	}

	bundle := storage.BlockBundle{}
	if enableTestAccounts {
		for _, addr := range testAccounts {
			bundle.Accounts = append(bundle.Accounts, types.Account{
				Address:     addr,
				Nonce:       0,
				Balance:     new(big.Int).Set(testAccountFunding),
				BlockNumber: 0,
			})
		}
	}

	bloom := LogsBloom(nil, nil)
	hash := BlockHash(common.Hash{}, chainspec.EmptyTxRoot, bloom, 0, 0, 0)
	bundle.Header = types.Header{
		Number:           0,
		Hash:             hash,
		ParentHash:       common.Hash{},
		TransactionsRoot: chainspec.EmptyTxRoot,
		UnclesHash:       chainspec.EmptyUncleHash,
		LogsBloom:        bloom,
		Gas:              0,
		Timestamp:        0,
		CreatedAt:        time.Now().UnixNano(),
	}
	return store.CommitBlock(ctx, bundle)
}
