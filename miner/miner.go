package miner

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
	"github.com/cloudwalk/stratus/storage"
	"github.com/cloudwalk/stratus/types"
)

// Miner assembles committed blocks out of admitted transactions on an
// interval timer (§4.3). It owns the PendingSet and is the only writer
// of blocks while this node is Leader; the Importer is the analogous
// writer while Follower, and the two are never active simultaneously
// (enforced by the mode machine's single-flight guard, not by Miner
// itself).
type Miner struct {
	store   storage.Backend
	pending *PendingSet

	interval time.Duration

	mu      sync.Mutex
	running bool
	paused  atomic.Bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New returns a Miner over store, ticking every interval while running.
// pendingLimit bounds the PendingSet (0 means unbounded).
func New(store storage.Backend, interval time.Duration, pendingLimit int) *Miner {
	return &Miner{
		store:    store,
		pending:  NewPendingSet(pendingLimit),
		interval: interval,
	}
}

// Pending exposes the PendingSet so RPC handlers can submit admitted
// transactions and report stratus_pendingTransactionsCount.
func (m *Miner) Pending() *PendingSet { return m.pending }

// PendingCount reports the number of transactions currently queued,
// satisfying mode.Miner for the Leader→Follower drain precondition.
func (m *Miner) PendingCount() int { return m.pending.Count() }

// Paused reports whether block production is currently disabled
// (stratus_state.miner_paused).
func (m *Miner) Paused() bool { return m.paused.Load() }

// SetPaused flips miner_paused; idempotent, matching enableMiner/
// disableMiner semantics (§4.4).
func (m *Miner) SetPaused(p bool) { m.paused.Store(p) }

// Running reports whether the interval timer goroutine is active
// (stratus_state.is_interval_miner_running).
func (m *Miner) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start launches the interval timer goroutine. Calling Start while
// already running is a no-op.
func (m *Miner) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.loop(ctx)
}

// Stop halts the interval timer and waits for the in-flight tick, if
// any, to finish. Used by stratus_changeToFollower (§4.4 step 5).
func (m *Miner) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	stopCh, doneCh := m.stopCh, m.doneCh
	m.running = false
	m.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (m *Miner) loop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.Paused() {
				continue
			}
			if err := m.Tick(ctx); err != nil {
				log.Error("miner tick failed", "error", err)
			}
		}
	}
}

// Tick runs one block-assembly pass (§4.3 algorithm). A tick with no
// pending transactions still returns nil without submitting a block —
// the spec only requires genesis to be emitted unconditionally; every
// later block is produced on demand.
func (m *Miner) Tick(ctx context.Context) error {
	admitted := m.pending.Drain()
	metrics.PendingTransactions.Set(float64(m.pending.Count()))
	if len(admitted) == 0 {
		return nil
	}

	start := time.Now()
	bundle, err := m.assemble(ctx, admitted)
	if err != nil {
		// Conflict means another writer landed a block first; re-read head
		// and requeue so nothing admitted is lost. In practice this never
		// happens on a singleton leader, but the retry keeps the invariant
		// honest if it ever does.
		if err == storage.ErrConflict {
			metrics.CommitConflicts.Inc()
			for _, a := range admitted {
				_, _ = m.pending.Submit(a.tx, a.from)
			}
			return fmt.Errorf("miner: conflict building block, requeued %d txs: %w", len(admitted), err)
		}
		return err
	}
	if err := m.store.CommitBlock(ctx, *bundle); err != nil {
		return err
	}
	metrics.MinerTickDuration.Observe(time.Since(start).Seconds())
	metrics.BlocksCommitted.WithLabelValues("leader").Inc()
	return nil
}

// assemble drains pending transactions into a single BlockBundle: it
// assigns idx_in_block densely, executes each transaction against a
// snapshot of the current head, and derives transactions_root,
// logs_bloom and the block hash from the result (§4.3 steps 1-5).
func (m *Miner) assemble(ctx context.Context, admitted []admittedTx) (*storage.BlockBundle, error) {
	head, hasHead := m.store.Head(ctx)
	number := uint64(0)
	var parentHash common.Hash
	if hasHead {
		number = head + 1
		if parent, ok, err := m.store.Header(ctx, head); err == nil && ok {
			parentHash = parent.Hash
		}
	}

	snap, err := m.store.Snapshot(ctx, head)
	if err != nil {
		return nil, err
	}

	bundle := &storage.BlockBundle{}
	var rawTxs []*ethtypes.Transaction
	var totalGas uint64
	var logIdxBase uint64
	timestamp := uint64(time.Now().Unix())

	for idx, a := range admitted {
		exec, err := executor.Execute(a.tx, a.from, idx, logIdxBase, snap, executor.BlockContext{
			Number:    number,
			Timestamp: timestamp,
		})
		if err != nil {
			return nil, fmt.Errorf("miner: executing tx %s: %w", a.tx.Hash(), err)
		}

		var to *common.Address
		if a.tx.To() != nil {
			addrCopy := *a.tx.To()
			to = &addrCopy
		}
		raw, err := a.tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("miner: marshaling tx %s: %w", a.tx.Hash(), err)
		}
		bundle.Transactions = append(bundle.Transactions, types.Transaction{
			Hash:          a.tx.Hash(),
			SignerAddress: a.from,
			Nonce:         a.tx.Nonce(),
			AddressFrom:   a.from,
			AddressTo:     to,
			Input:         a.tx.Data(),
			Gas:           a.tx.Gas(),
			Raw:           raw,
			IdxInBlock:    uint64(idx),
			BlockNumber:   number,
		})
		bundle.Receipts = append(bundle.Receipts, types.Receipt{
			TransactionHash: a.tx.Hash(),
			Status:          exec.Receipt.Status,
			GasUsed:         exec.Receipt.GasUsed,
			ContractAddress: exec.Receipt.ContractAddress,
			Kind:            int(exec.Receipt.Kind),
			RevertReason:    exec.Receipt.RevertReason,
			TransactionIdx:  uint64(idx),
			BlockNumber:     number,
		})
		bundle.Logs = append(bundle.Logs, exec.Receipt.Logs...)
		bundle.Topics = append(bundle.Topics, exec.Receipt.Topics...)
		bundle.Accounts = append(bundle.Accounts, exec.Accounts...)
		bundle.Slots = append(bundle.Slots, exec.Slots...)

		rawTxs = append(rawTxs, a.tx)
		totalGas += exec.Receipt.GasUsed
		logIdxBase += uint64(len(exec.Receipt.Logs))
	}

	topicsByLog := make(map[uint64][]types.Topic, len(bundle.Logs))
	for _, t := range bundle.Topics {
		topicsByLog[t.LogIdx] = append(topicsByLog[t.LogIdx], t)
	}

	txRoot := TransactionsRoot(rawTxs)
	bloom := LogsBloom(bundle.Logs, topicsByLog)
	hash := BlockHash(parentHash, txRoot, bloom, number, totalGas, timestamp)

	header := types.Header{
		Number:           number,
		Hash:             hash,
		ParentHash:       parentHash,
		TransactionsRoot: txRoot,
		UnclesHash:       chainspec.EmptyUncleHash,
		LogsBloom:        bloom,
		Gas:              totalGas,
		Timestamp:        timestamp,
		CreatedAt:        time.Now().UnixNano(),
	}
	for i := range bundle.Transactions {
		bundle.Transactions[i].BlockHash = hash
	}
	for i := range bundle.Receipts {
		bundle.Receipts[i].BlockHash = hash
	}
	for i := range bundle.Logs {
		bundle.Logs[i].BlockHash = hash
	}
	for i := range bundle.Topics {
		bundle.Topics[i].BlockHash = hash
	}
	bundle.Header = header
	return bundle, nil
}
