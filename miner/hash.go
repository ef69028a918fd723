package miner

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/cloudwalk/stratus/chainspec"
)

// rlpHeader is the RLP encoding of a Stratus block header (§4.3 step 5):
// just the fields the header actually carries, plus the fixed
// empty-uncles hash every block includes since Stratus never has uncles.
type rlpHeader struct {
	ParentHash       common.Hash
	UnclesHash       common.Hash
	TransactionsRoot common.Hash
	LogsBloom        [256]byte
	Number           uint64
	Gas              uint64
	Timestamp        uint64
}

// BlockHash computes the header hash the same way the Miner and Importer
// must agree on: keccak256 of the RLP-encoded header, sha3Uncles pinned
// to chainspec.EmptyUncleHash. The Importer calls this to verify a
// pulled block's hash against what it re-derives (§4.5).
func BlockHash(parentHash, txRoot common.Hash, logsBloom [256]byte, number, gas, timestamp uint64) common.Hash {
	h := rlpHeader{
		ParentHash:       parentHash,
		UnclesHash:       chainspec.EmptyUncleHash,
		TransactionsRoot: txRoot,
		LogsBloom:        logsBloom,
		Number:           number,
		Gas:              gas,
		Timestamp:        timestamp,
	}
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		panic("miner: header must always be rlp-encodable: " + err.Error())
	}
	return crypto.Keccak256Hash(enc)
}
