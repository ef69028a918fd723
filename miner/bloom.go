package miner

import (
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/cloudwalk/stratus/types"
)

// LogsBloom folds every log's address and topics into the block's
// 2048-bit Bloom filter (§4.3 step 4), using go-ethereum's own Bloom.Add
// — the same three-hash folding mainnet tooling expects, so an external
// client re-deriving logs_bloom from receipts agrees with what Stratus
// stored. The Importer calls this same function to verify a pulled
// block's logs_bloom against what it re-derives (§4.5).
func LogsBloom(logs []types.Log, topicsByLog map[uint64][]types.Topic) [256]byte {
	var bloom ethtypes.Bloom
	for _, l := range logs {
		bloom.Add(l.Address.Bytes())
		for _, t := range topicsByLog[l.LogIdx] {
			bloom.Add(t.Value.Bytes())
		}
	}
	return bloom
}
