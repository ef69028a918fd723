// Package storage implements the Versioned Store: append-only per-block
// snapshots of accounts, slots, blocks, transactions, logs and topics,
// with point-in-time reads. The contract is backend-agnostic — a
// relational backend and an in-memory backend both satisfy Backend, and
// the Executor/Miner never see SQL or any other backend-specific detail
// above this interface. This mirrors how the teacher keeps its
// `ethdb.KeyValueStore` contract (plugin/evm/database) separate from
// whatever concrete store backs it.
package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/cloudwalk/stratus/types"
)

// AccountView is the materialized view of an account at a given height:
// the account itself, or an empty, zero-valued account when no version
// exists yet at or before that height.
type AccountView struct {
	types.Account
	Found bool
}

// Snapshot is a logical handle pinning reads to a specific block height.
// Reads through a Snapshot are repeatable: a later commit of block H+1
// never becomes visible through a Snapshot pinned at H, even if that
// commit is already in flight when the read executes.
type Snapshot interface {
	// BlockNumber is the height this snapshot is pinned to.
	BlockNumber() uint64

	ReadAccount(ctx context.Context, addr common.Address) (AccountView, error)
	ReadSlot(ctx context.Context, addr common.Address, idx common.Hash) (common.Hash, error)
}

// LogFilter selects logs for get_logs. A nil Topics[i] slot matches any
// topic at that position; a non-nil slot matches if the log's topic at
// that position is present in it (OR within a position, AND across
// positions), per standard eth_getLogs semantics.
type LogFilter struct {
	Addresses []common.Address
	FromBlock uint64
	ToBlock   uint64 // 0 means "head" at query time
	Topics    [types.MaxTopics][]common.Hash
}

// Backend is the Versioned Store contract (§4.1).
type Backend interface {
	// Snapshot returns a handle pinned to atBlock. atBlock must be <= Head().
	Snapshot(ctx context.Context, atBlock uint64) (Snapshot, error)

	// ReadAccount and ReadSlot are point-in-time reads at atBlock,
	// equivalent to Snapshot(atBlock) followed by a read, offered
	// directly for callers (e.g. RPC) that don't need repeatable reads.
	ReadAccount(ctx context.Context, addr common.Address, atBlock uint64) (AccountView, error)
	ReadSlot(ctx context.Context, addr common.Address, idx common.Hash, atBlock uint64) (common.Hash, error)

	// CommitBlock atomically appends one block: its header, transactions,
	// logs, topics, and the account/slot versions touched while producing
	// it. Returns ErrConflict if header.Number != Head()+1 at commit time
	// (caller rebuilds and retries), or ErrInvalid if any other §4.1
	// invariant fails (fatal to this attempt).
	CommitBlock(ctx context.Context, bundle BlockBundle) error

	// Head returns the highest committed block number. Returns 0 with
	// ok=false if no block (not even genesis) has been committed yet.
	Head(ctx context.Context) (number uint64, ok bool)

	// GetLogs returns logs matching filter, ordered by
	// (block_number, transaction_idx, log_idx).
	GetLogs(ctx context.Context, filter LogFilter) ([]types.Log, error)

	// Header returns the committed header at number, if any.
	Header(ctx context.Context, number uint64) (types.Header, bool, error)

	// Transaction looks up a committed transaction by hash.
	Transaction(ctx context.Context, hash common.Hash) (types.Transaction, bool, error)

	// BlockTransactions returns every transaction committed in number,
	// ordered by idx_in_block, or nil if the block has no transactions
	// (including when number itself doesn't exist).
	BlockTransactions(ctx context.Context, number uint64) ([]types.Transaction, error)

	// Receipt looks up a committed transaction's receipt by the
	// transaction's hash.
	Receipt(ctx context.Context, hash common.Hash) (types.Receipt, bool, error)

	// NonceAt returns the current nonce for addr as of atBlock, i.e. the
	// nonce carried by the live account version — 0 if the address has
	// never appeared.
	NonceAt(ctx context.Context, addr common.Address, atBlock uint64) (uint64, error)

	// LogTopics returns the ordered topic values belonging to the log
	// identified by logIdx, for callers (rpcapi) that need to attach
	// topics to a log already fetched via GetLogs.
	LogTopics(ctx context.Context, logIdx uint64) ([]common.Hash, error)
}
