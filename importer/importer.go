package importer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/luxfi/log"

	"github.com/cloudwalk/stratus/chainspec"
	"github.com/cloudwalk/stratus/executor"
	"github.com/cloudwalk/stratus/metrics"
	"github.com/cloudwalk/stratus/miner"
	"github.com/cloudwalk/stratus/storage"
	"github.com/cloudwalk/stratus/types"
)

// Importer pulls blocks from the configured leader and replays them
// locally (§4.5). Exactly one Importer runs at a time, started and
// stopped by the mode machine's Leader↔Follower transitions.
type Importer struct {
	store storage.Backend

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	stopDone chan struct{}

	lastAppliedAt atomic.Int64 // unix nanos of the last successful commit
	healthy       atomic.Bool
	syncInterval  atomic.Int64 // nanos, for the health staleness threshold
}

// New returns an Importer over store. It does nothing until Start is called.
func New(store storage.Backend) *Importer {
	return &Importer{store: store}
}

// Start begins polling leaderHTTP at the given interval. Calling Start
// while already running is a no-op — the mode machine's guard ensures
// this never happens during a well-formed transition, but Importer
// defends itself anyway since it outlives any single transition.
func (im *Importer) Start(ctx context.Context, leaderHTTP, _leaderWS string, rpcTimeoutMillis, syncIntervalMillis uint64) {
	im.mu.Lock()
	if im.running {
		im.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	im.running = true
	im.cancel = cancel
	im.stopDone = make(chan struct{})
	im.healthy.Store(true)
	if rpcTimeoutMillis == 0 {
		rpcTimeoutMillis = chainspec.DefaultRPCTimeout
	}
	if syncIntervalMillis == 0 {
		syncIntervalMillis = chainspec.DefaultSyncInterval
	}
	im.syncInterval.Store(int64(time.Duration(syncIntervalMillis) * time.Millisecond))
	im.mu.Unlock()

	go im.loop(runCtx, leaderHTTP, time.Duration(rpcTimeoutMillis)*time.Millisecond, time.Duration(syncIntervalMillis)*time.Millisecond)
}

// Stop halts polling and waits for the in-flight poll, if any, to finish.
func (im *Importer) Stop() {
	im.mu.Lock()
	if !im.running {
		im.mu.Unlock()
		return
	}
	cancel, done := im.cancel, im.stopDone
	im.running = false
	im.mu.Unlock()

	cancel()
	<-done
}

// Healthy reports stratus_health for a follower (§4.4): false once the
// importer has fatally stopped; otherwise true if a block has been
// applied within the last sync interval, and also true before any block
// has been applied.
func (im *Importer) Healthy() bool {
	if !im.healthy.Load() {
		return false
	}
	threshold := time.Duration(im.syncInterval.Load())
	if threshold == 0 {
		return true
	}
	last := im.lastAppliedAt.Load()
	if last == 0 {
		return true // hasn't had a chance to apply a block yet
	}
	return time.Since(time.Unix(0, last)) <= threshold
}

func (im *Importer) loop(ctx context.Context, leaderHTTP string, rpcTimeout, syncInterval time.Duration) {
	defer close(im.stopDone)

	client, err := dialLeader(ctx, leaderHTTP)
	if err != nil {
		log.Error("importer: failed to dial leader, marking unhealthy", "leader", leaderHTTP, "error", err)
		im.healthy.Store(false)
		return
	}
	defer client.close()

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
			err := im.pollOnce(callCtx, client)
			cancel()
			if err != nil {
				log.Error("importer: fatal sync error, marking unhealthy", "error", err)
				im.healthy.Store(false)
				return
			}
		}
	}
}

// pollOnce fetches and applies every block the leader has beyond the
// local head, one at a time, stopping as soon as the leader has nothing
// new (not an error — just means this tick has nothing to do).
func (im *Importer) pollOnce(ctx context.Context, client *leaderClient) error {
	for {
		head, hasHead := im.store.Head(ctx)
		next := uint64(0)
		if hasHead {
			next = head + 1
		}

		remote, ok, err := client.blockByNumber(ctx, next)
		if err != nil {
			return fmt.Errorf("fetching block %d from leader: %w", next, err)
		}
		if !ok {
			return nil
		}
		if err := im.applyBlock(ctx, remote); err != nil {
			return fmt.Errorf("applying block %d: %w", next, err)
		}
		im.lastAppliedAt.Store(time.Now().UnixNano())
	}
}

// applyBlock re-executes every transaction in remote against a
// snapshot of the current head, then verifies the recomputed
// transactions_root, logs_bloom and block hash equal what the leader
// reported (§4.5) before committing.
func (im *Importer) applyBlock(ctx context.Context, remote *remoteBlock) error {
	number := uint64(remote.Number)
	head, hasHead := im.store.Head(ctx)
	snapAt := uint64(0)
	if hasHead {
		snapAt = head
	}
	snap, err := im.store.Snapshot(ctx, snapAt)
	if err != nil {
		return err
	}

	bundle := storage.BlockBundle{}
	var totalGas uint64
	var logIdxBase uint64
	var signedTxs []*ethtypes.Transaction

	for idx, rtx := range remote.Transactions {
		tx, from, err := executor.DecodeRawTransaction(rtx.Raw)
		if err != nil {
			return fmt.Errorf("decoding tx %d: %w", idx, err)
		}
		exec, err := executor.Execute(tx, from, idx, logIdxBase, snap, executor.BlockContext{
			Number:    number,
			Timestamp: uint64(remote.Timestamp),
		})
		if err != nil {
			return fmt.Errorf("re-executing tx %d: %w", idx, err)
		}
		signedTxs = append(signedTxs, tx)

		var to *common.Address
		if tx.To() != nil {
			addrCopy := *tx.To()
			to = &addrCopy
		}
		bundle.Transactions = append(bundle.Transactions, types.Transaction{
			Hash:          tx.Hash(),
			SignerAddress: from,
			Nonce:         tx.Nonce(),
			AddressFrom:   from,
			AddressTo:     to,
			Input:         tx.Data(),
			Gas:           tx.Gas(),
			Raw:           []byte(rtx.Raw),
			IdxInBlock:    uint64(idx),
			BlockNumber:   number,
			BlockHash:     remote.Hash,
		})
		for i := range exec.Receipt.Logs {
			exec.Receipt.Logs[i].BlockHash = remote.Hash
		}
		for i := range exec.Receipt.Topics {
			exec.Receipt.Topics[i].BlockHash = remote.Hash
		}
		bundle.Logs = append(bundle.Logs, exec.Receipt.Logs...)
		bundle.Topics = append(bundle.Topics, exec.Receipt.Topics...)
		bundle.Accounts = append(bundle.Accounts, exec.Accounts...)
		bundle.Slots = append(bundle.Slots, exec.Slots...)
		bundle.Receipts = append(bundle.Receipts, types.Receipt{
			TransactionHash: tx.Hash(),
			Status:          exec.Receipt.Status,
			GasUsed:         exec.Receipt.GasUsed,
			ContractAddress: exec.Receipt.ContractAddress,
			Kind:            int(exec.Receipt.Kind),
			RevertReason:    exec.Receipt.RevertReason,
			TransactionIdx:  uint64(idx),
			BlockNumber:     number,
			BlockHash:       remote.Hash,
		})
		totalGas += exec.Receipt.GasUsed
		logIdxBase += uint64(len(exec.Receipt.Logs))
	}

	topicsByLog := make(map[uint64][]types.Topic, len(bundle.Topics))
	for _, t := range bundle.Topics {
		topicsByLog[t.LogIdx] = append(topicsByLog[t.LogIdx], t)
	}

	gotRoot := miner.TransactionsRoot(signedTxs)
	gotBloom := miner.LogsBloom(bundle.Logs, topicsByLog)
	if gotRoot != remote.TransactionsRoot {
		metrics.ImporterVerificationFailures.Inc()
		return fmt.Errorf("transactions_root mismatch: got %s want %s", gotRoot, remote.TransactionsRoot)
	}
	if !bloomEqual(gotBloom, remote.LogsBloom) {
		metrics.ImporterVerificationFailures.Inc()
		return fmt.Errorf("logs_bloom mismatch for block %d", number)
	}
	gotHash := miner.BlockHash(remote.ParentHash, gotRoot, gotBloom, number, totalGas, uint64(remote.Timestamp))
	if gotHash != remote.Hash {
		metrics.ImporterVerificationFailures.Inc()
		return fmt.Errorf("block hash mismatch for block %d: got %s want %s", number, gotHash, remote.Hash)
	}

	bundle.Header = types.Header{
		Number:           number,
		Hash:             remote.Hash,
		ParentHash:       remote.ParentHash,
		TransactionsRoot: remote.TransactionsRoot,
		LogsBloom:        gotBloom,
		Gas:              totalGas,
		Timestamp:        uint64(remote.Timestamp),
		CreatedAt:        time.Now().UnixNano(),
	}
	if err := im.store.CommitBlock(ctx, bundle); err != nil {
		return err
	}
	metrics.ImporterBlocksApplied.Inc()
	metrics.BlocksCommitted.WithLabelValues("follower").Inc()
	return nil
}

func bloomEqual(got [256]byte, want []byte) bool {
	if len(want) != 256 {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
