// Package chainspec holds the constants that pin Stratus to a specific
// chain identity: the chain ID tests run against and the canonical
// hashes a block with zero transactions and zero uncles must carry.
package chainspec

import "github.com/ethereum/go-ethereum/common"

const (
	// ChainID is the EIP-155 chain id Stratus accepts transactions for.
	// Fixed per the spec's canonical test network; admission rejects
	// anything else before it ever reaches the pending set.
	ChainID = 2008

	// MaxGasLimit bounds gas_limit at admission time.
	MaxGasLimit = 500_000

	// MaxBytecodeSize and MaxInputSize are the data-model widths for
	// contract code and call data; no code in this module checks them.
	MaxBytecodeSize = 24_000
	MaxInputSize    = 24_000

	// DefaultPendingPoolSize is the bound on the pending set when the
	// operator hasn't configured one explicitly.
	DefaultPendingPoolSize = 10_000

	// DefaultRPCTimeout and DefaultSyncInterval are the Importer/RPC
	// defaults used when stratus_changeToFollower omits them.
	DefaultRPCTimeout   = 2_000 // milliseconds
	DefaultSyncInterval = 100  // milliseconds
)

var (
	// EmptyUncleHash is keccak256(rlp([])), the fixed sha3Uncles every
	// Stratus block carries since uncles are always empty.
	EmptyUncleHash = common.HexToHash("0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347")

	// EmptyTxRoot is the transactions_root sentinel for a block with no
	// transactions.
	EmptyTxRoot = common.HexToHash("0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")
)
