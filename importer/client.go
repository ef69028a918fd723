// Package importer implements the follower role (§4.5): pulling blocks
// from the configured leader, re-executing their transactions locally,
// and verifying the recomputed header against what the leader produced
// before committing. The JSON-RPC client below rides on go-ethereum's
// own rpc.Client rather than a hand-rolled HTTP/JSON layer — the same
// wire client ethclient.Client wraps, and already a transitive
// dependency of this module through go-ethereum itself.
package importer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// remoteTx is one transaction as Stratus's own eth_getBlockByNumber
// serializes it when full_txs=true: the standard fields plus a "raw"
// hex field carrying the original signed, RLP-encoded bytes, since the
// Importer needs those bytes verbatim to re-derive the same hash and
// signer the leader did.
type remoteTx struct {
	Raw hexutil.Bytes `json:"raw"`
}

// remoteBlock is the subset of eth_getBlockByNumber's result this
// importer needs to re-derive and verify a block.
type remoteBlock struct {
	Number           hexutil.Uint64 `json:"number"`
	Hash             common.Hash    `json:"hash"`
	ParentHash       common.Hash    `json:"parentHash"`
	TransactionsRoot common.Hash    `json:"transactionsRoot"`
	LogsBloom        hexutil.Bytes  `json:"logsBloom"`
	GasUsed          hexutil.Uint64 `json:"gasUsed"`
	Timestamp        hexutil.Uint64 `json:"timestamp"`
	Transactions     []remoteTx     `json:"transactions"`
}

// leaderClient wraps an RPC connection to the configured leader.
type leaderClient struct {
	http *rpc.Client
}

func dialLeader(ctx context.Context, httpEndpoint string) (*leaderClient, error) {
	c, err := rpc.DialContext(ctx, httpEndpoint)
	if err != nil {
		return nil, fmt.Errorf("importer: dialing leader %s: %w", httpEndpoint, err)
	}
	return &leaderClient{http: c}, nil
}

func (c *leaderClient) close() {
	if c.http != nil {
		c.http.Close()
	}
}

// blockByNumber fetches block number from the leader with full raw
// transaction bytes, or ok=false if the leader hasn't produced it yet.
func (c *leaderClient) blockByNumber(ctx context.Context, number uint64) (*remoteBlock, bool, error) {
	var raw *remoteBlock
	err := c.http.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true)
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	return raw, true, nil
}
