// Package types defines Stratus's versioned data model: the entities the
// Versioned Store persists (accounts, slots, blocks, transactions, logs,
// topics) per the node's block-indexed storage contract. None of these
// types hold back-pointers to each other in memory — every relationship
// is expressed through the shared block_number/block_hash/tx_hash keys,
// mirroring how the teacher keeps blocks, transactions, logs and topics
// as separate rows joined only by those keys.
package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Account is one version of an address's nonce/balance/bytecode tuple.
// The live value at height H is the version with the greatest
// BlockNumber <= H for that address.
type Account struct {
	Address     common.Address
	Nonce       uint64
	Balance     *big.Int
	Bytecode    []byte // nil if the account is not (yet) a contract
	BlockNumber uint64
}

// IsContract reports whether this version carries deployed code. Bytecode,
// once set non-nil, never reverts to nil except via an explicit
// self-destruct version that clears it (see Store.commit_block invariant 4
// in the Versioned Store contract).
func (a *Account) IsContract() bool { return len(a.Bytecode) > 0 }

// AccountSlot is one version of a single storage slot belonging to an
// account. Same snapshot-by-max-version rule as Account, keyed by
// (Index, Address).
type AccountSlot struct {
	Index       common.Hash
	Value       common.Hash
	Address     common.Address
	BlockNumber uint64
}

// Header is a committed block header. Number is a dense sequence from 0;
// Hash and TransactionsRoot/LogsBloom are computed by the Miner (or
// verified by the Importer) before commit.
type Header struct {
	Number           uint64
	Hash             common.Hash
	ParentHash       common.Hash
	TransactionsRoot common.Hash
	UnclesHash       common.Hash
	LogsBloom        [256]byte
	Gas              uint64
	Timestamp        uint64
	CreatedAt        int64 // unix nanos, set on commit — not part of the hash
}

// Transaction is a committed, signed transaction. AddressTo is nil for a
// contract creation. Raw carries the original RLP-encoded signed bytes
// (as submitted to eth_sendRawTransaction) verbatim, so
// eth_getBlockByNumber's full_txs=true response can hand importers and
// other followers the exact bytes needed to re-derive the same hash and
// signer, without re-encoding a transaction from its decoded fields.
type Transaction struct {
	Hash          common.Hash
	SignerAddress common.Address
	Nonce         uint64
	AddressFrom   common.Address
	AddressTo     *common.Address
	Input         []byte
	Gas           uint64
	Raw           []byte
	IdxInBlock    uint64
	BlockNumber   uint64
	BlockHash     common.Hash
}

// Log is one event emitted during execution of Transaction. LogIdx is a
// globally unique, monotonically assigned sequence ordered by
// (BlockNumber, TransactionIdx, emission order).
type Log struct {
	Address         common.Address
	Data            []byte
	TransactionHash common.Hash
	TransactionIdx  uint64
	LogIdx          uint64
	BlockNumber     uint64
	BlockHash       common.Hash
}

// Topic is one of a log's 0..4 indexed topics.
type Topic struct {
	Value           common.Hash
	TransactionHash common.Hash
	TransactionIdx  uint64
	LogIdx          uint64
	BlockNumber     uint64
	BlockHash       common.Hash
}

// MaxTopics is the maximum number of indexed topics a single log may carry.
const MaxTopics = 4

// Receipt is the persisted outcome of executing one transaction (§4.2,
// §6.1's eth_getTransactionReceipt). It is committed alongside its
// Transaction in the same BlockBundle, keyed by the same hash.
type Receipt struct {
	TransactionHash common.Hash
	Status          uint64 // 1 success, 0 failure
	GasUsed         uint64
	ContractAddress *common.Address
	Kind            int // executor.Kind, stored as a plain int to avoid an import cycle
	RevertReason    []byte
	TransactionIdx  uint64
	BlockNumber     uint64
	BlockHash       common.Hash
}
