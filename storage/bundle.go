package storage

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/cloudwalk/stratus/types"
)

// BlockBundle is the atomic unit the Miner (leader) or Importer (follower)
// submits to CommitBlock: one header, its transactions in idx_in_block
// order, their logs/topics, and every account/slot version touched while
// producing the block. Children are referenced by value, never by
// pointer, so the bundle can be handed across goroutines freely and a
// failed commit leaves no aliasing behind for the caller to clean up.
type BlockBundle struct {
	Header       types.Header
	Transactions []types.Transaction
	Receipts     []types.Receipt
	Logs         []types.Log
	Topics       []types.Topic
	Accounts     []types.Account
	Slots        []types.AccountSlot
}

// TxHashes returns the hashes of every transaction in the bundle, in
// idx_in_block order.
func (b *BlockBundle) TxHashes() []common.Hash {
	hashes := make([]common.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = tx.Hash
	}
	return hashes
}
