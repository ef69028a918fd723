// Package mode implements Stratus's Leader/Follower/Changing state
// machine (§4.4): which role this node plays, the flags exposed through
// stratus_state, and the single-flight guard that serializes
// stratus_changeToLeader/stratus_changeToFollower against each other.
// The three-state enum here follows the same shape as the teacher's own
// VMState lifecycle enum (plugin/evm/vm_state.go) — a small uint8 with
// named constants rather than raw strings passed around.
package mode

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cloudwalk/stratus/metrics"
)

// State is the node's current role.
type State uint8

const (
	Leader State = iota
	Follower
	Changing
)

func (s State) String() string {
	switch s {
	case Leader:
		return "leader"
	case Follower:
		return "follower"
	case Changing:
		return "changing"
	default:
		return "unknown"
	}
}

// RPCError carries a JSON-RPC error code alongside its message, so
// rpcapi can surface -32009/-32603 verbatim (§4.4) without the mode
// package importing the RPC layer.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string { return e.Message }

// ErrorCode satisfies go-ethereum rpc.Error, so rpcapi's server reports
// e.Code as the JSON-RPC error code instead of the generic -32000.
func (e *RPCError) ErrorCode() int { return e.Code }

var (
	errAlreadyChanging = &RPCError{Code: -32009, Message: "Stratus node is already in the process of changing mode."}
	errTxEnabled       = &RPCError{Code: -32009, Message: "Transaction processing is enabled."}
	errMinerEnabled    = &RPCError{Code: -32603, Message: "Miner is enabled."}
)

// Miner is the subset of miner.Miner the mode machine needs, kept as an
// interface so this package never imports the miner package directly —
// node wires the concrete type in.
type Miner interface {
	Running() bool
	Paused() bool
	SetPaused(bool)
	Start(ctx context.Context)
	Stop()
	PendingCount() int
}

// Importer is the subset of importer.Importer the mode machine needs.
type Importer interface {
	Start(ctx context.Context, leaderHTTP, leaderWS string, rpcTimeoutMillis, syncIntervalMillis uint64)
	Stop()
	Healthy() bool
}

// Machine is the mode state machine. One Machine exists per node. guard
// is a binary semaphore (weight 1) rather than a mutex so a contending
// caller can fail fast with -32009 via TryAcquire instead of blocking
// until the in-flight transition finishes.
type Machine struct {
	guard *semaphore.Weighted

	state atomic.Uint32 // holds a State

	transactionsEnabled atomic.Bool

	miner    Miner
	importer Importer
}

// New returns a Machine starting in initial (Leader or Follower — never
// Changing), wired to the given Miner and Importer controllers.
func New(initial State, miner Miner, importer Importer) *Machine {
	m := &Machine{guard: semaphore.NewWeighted(1), miner: miner, importer: importer}
	m.state.Store(uint32(initial))
	m.transactionsEnabled.Store(true)
	return m
}

// State returns the current role.
func (m *Machine) State() State { return State(m.state.Load()) }

// IsLeader, IsFollower report the current role; IsLeader also backs
// stratus_state's is_leader and is_importer_shutdown (§4.4).
func (m *Machine) IsLeader() bool   { return m.State() == Leader }
func (m *Machine) IsFollower() bool { return m.State() == Follower }

// TransactionsEnabled exposes transactions_enabled.
func (m *Machine) TransactionsEnabled() bool { return m.transactionsEnabled.Load() }

// EnableTransactions / DisableTransactions flip transactions_enabled and
// return the new value; both are idempotent (§4.4).
func (m *Machine) EnableTransactions() bool {
	m.transactionsEnabled.Store(true)
	return true
}

func (m *Machine) DisableTransactions() bool {
	m.transactionsEnabled.Store(false)
	return false
}

// EnableMiner / DisableMiner flip miner_paused and return the new value
// of miner_paused (§4.4); both are idempotent.
func (m *Machine) EnableMiner() bool {
	m.miner.SetPaused(false)
	return m.miner.Paused()
}

func (m *Machine) DisableMiner() bool {
	m.miner.SetPaused(true)
	return m.miner.Paused()
}

// PendingTransactionsCount exposes stratus_pendingTransactionsCount.
func (m *Machine) PendingTransactionsCount() int { return m.miner.PendingCount() }

// Snapshot is the stratus_state reply shape (§6.1).
type Snapshot struct {
	IsLeader               bool `json:"is_leader"`
	IsImporterShutdown     bool `json:"is_importer_shutdown"`
	IsIntervalMinerRunning bool `json:"is_interval_miner_running"`
	MinerPaused            bool `json:"miner_paused"`
	TransactionsEnabled    bool `json:"transactions_enabled"`
}

// StateSnapshot returns the observable flags stratus_state exposes. Leader-only
// fields (is_importer_shutdown, is_interval_miner_running) read false
// while Follower, matching §4.4's "true iff leader" wording.
func (m *Machine) StateSnapshot() Snapshot {
	leader := m.IsLeader()
	return Snapshot{
		IsLeader:               leader,
		IsImporterShutdown:     leader,
		IsIntervalMinerRunning: leader && m.miner.Running(),
		MinerPaused:            m.miner.Paused(),
		TransactionsEnabled:    m.TransactionsEnabled(),
	}
}

// Healthy implements stratus_health (§4.4): a Leader is healthy so long
// as it isn't mid-transition; a Follower defers to the Importer's own
// staleness check.
func (m *Machine) Healthy() bool {
	switch m.State() {
	case Leader:
		return true
	case Follower:
		return m.importer.Healthy()
	default:
		return false
	}
}

// ChangeToFollower implements stratus_changeToFollower (§4.4). It
// returns (true, nil) on a successful transition, (false, nil) if the
// node was already a Follower, or a *RPCError otherwise.
func (m *Machine) ChangeToFollower(ctx context.Context, leaderHTTP, leaderWS string, rpcTimeoutMillis, syncIntervalMillis uint64) (bool, error) {
	if !m.guard.TryAcquire(1) {
		metrics.ModeContention.Inc()
		return false, errAlreadyChanging
	}
	defer m.guard.Release(1)
	return m.changeToFollowerLocked(ctx, leaderHTTP, leaderWS, rpcTimeoutMillis, syncIntervalMillis)
}

func (m *Machine) changeToFollowerLocked(ctx context.Context, leaderHTTP, leaderWS string, rpcTimeoutMillis, syncIntervalMillis uint64) (bool, error) {
	if m.State() == Follower {
		return false, nil
	}
	if m.transactionsEnabled.Load() {
		return false, errTxEnabled
	}
	if m.miner.Running() && !m.miner.Paused() {
		return false, errMinerEnabled
	}

	m.state.Store(uint32(Changing))
	defer func() {
		if m.State() == Changing {
			m.state.Store(uint32(Leader)) // transition failed partway: stay Leader
		}
	}()

	if err := m.waitForDrainedPending(ctx); err != nil {
		return false, err
	}

	m.miner.Stop()
	m.importer.Start(ctx, leaderHTTP, leaderWS, rpcTimeoutMillis, syncIntervalMillis)
	m.state.Store(uint32(Follower))
	metrics.ModeTransitions.WithLabelValues("follower").Inc()
	return true, nil
}

// waitForDrainedPending blocks until the pending set is empty (§4.4 step
// 4) or ctx is cancelled.
func (m *Machine) waitForDrainedPending(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for m.miner.PendingCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// ChangeToLeader implements stratus_changeToLeader (§4.4).
func (m *Machine) ChangeToLeader(ctx context.Context) (bool, error) {
	if !m.guard.TryAcquire(1) {
		metrics.ModeContention.Inc()
		return false, errAlreadyChanging
	}
	defer m.guard.Release(1)
	return m.changeToLeaderLocked(ctx)
}

func (m *Machine) changeToLeaderLocked(ctx context.Context) (bool, error) {
	if m.State() == Leader {
		return false, nil
	}
	if m.transactionsEnabled.Load() {
		return false, errTxEnabled
	}

	m.state.Store(uint32(Changing))
	defer func() {
		if m.State() == Changing {
			m.state.Store(uint32(Follower))
		}
	}()

	m.importer.Stop()
	m.miner.Start(ctx)
	m.state.Store(uint32(Leader))
	metrics.ModeTransitions.WithLabelValues("leader").Inc()
	return true, nil
}
