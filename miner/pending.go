// Package miner assembles committed blocks out of admitted transactions.
// In leader mode it runs on an interval timer (§4.3); the pending set it
// manages also backs stratus_pendingTransactionsCount and the
// Leader→Follower drain precondition (§4.4). The Mutex/Cond pairing here
// is the same shape the teacher uses for its block builder's
// pendingSignal: a condition variable broadcasts whenever the drained
// state changes so waiters don't have to poll.
package miner

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// admittedTx is one transaction that cleared executor.AdmitTransaction
// and is waiting to be drained into a block.
type admittedTx struct {
	tx   *ethtypes.Transaction
	from common.Address
}

// PendingSet holds admitted transactions in admission order and
// guarantees at-most-once inclusion of any tx hash (§4.3): resubmitting
// a hash already pending or already mined returns the prior hash without
// re-executing it.
type PendingSet struct {
	mu   sync.Mutex
	cond *sync.Cond

	order  []common.Hash
	byHash map[common.Hash]admittedTx
	mined  map[common.Hash]bool

	limit int // 0 means unbounded
}

// NewPendingSet returns an empty PendingSet accepting at most limit
// concurrently-pending transactions (0 means unbounded), per spec.md's
// configurable pending-set bound (default 10 000).
func NewPendingSet(limit int) *PendingSet {
	p := &PendingSet{
		byHash: make(map[common.Hash]admittedTx),
		mined:  make(map[common.Hash]bool),
		limit:  limit,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// ErrFull is returned by Submit when the pending set is already at its
// configured limit and tx is neither already pending nor already mined.
var ErrFull = errFull{}

type errFull struct{}

func (errFull) Error() string { return "miner: pending set is full" }

// Submit enqueues tx, or reports that it was already seen. known is true
// when hash was already pending or already mined. Returns ErrFull if the
// set is at capacity and tx is genuinely new.
func (p *PendingSet) Submit(tx *ethtypes.Transaction, from common.Address) (known bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := tx.Hash()
	if _, ok := p.byHash[hash]; ok {
		return true, nil
	}
	if p.mined[hash] {
		return true, nil
	}
	if p.limit > 0 && len(p.order) >= p.limit {
		return false, ErrFull
	}
	p.byHash[hash] = admittedTx{tx: tx, from: from}
	p.order = append(p.order, hash)
	p.cond.Broadcast()
	return false, nil
}

// Drain removes and returns every pending transaction in admission
// order, marking each as mined so a late duplicate submission is still
// recognized.
func (p *PendingSet) Drain() []admittedTx {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]admittedTx, 0, len(p.order))
	for _, hash := range p.order {
		out = append(out, p.byHash[hash])
		p.mined[hash] = true
		delete(p.byHash, hash)
	}
	p.order = p.order[:0]
	p.cond.Broadcast()
	return out
}

// Count returns the number of transactions currently pending.
func (p *PendingSet) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// WaitForEmpty blocks until Count() == 0. Used by the Leader→Follower
// transition (§4.4 step 4), which must not hand off to the Importer
// while transactions are still queued for inclusion.
func (p *PendingSet) WaitForEmpty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.order) > 0 {
		p.cond.Wait()
	}
}
