package miner

import (
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/cloudwalk/stratus/chainspec"
)

// TransactionsRoot computes transactions_root the same way mainnet does:
// a Merkle-Patricia trie keyed by RLP-encoded transaction index, rooted
// via a StackTrie (§4.3 step 3). An empty block yields the canonical
// empty-tx-root constant rather than hashing an empty trie from scratch,
// matching genesis and any block that admits no transactions. The
// Importer calls this same function to verify a pulled block's
// transactions_root against what it re-derives (§4.5).
func TransactionsRoot(txs []*ethtypes.Transaction) common.Hash {
	if len(txs) == 0 {
		return chainspec.EmptyTxRoot
	}
	return ethtypes.DeriveSha(ethtypes.Transactions(txs), trie.NewStackTrie(nil))
}
