package rpcapi

import (
	"context"

	"github.com/cloudwalk/stratus/mode"
)

// StratusService implements the stratus_* admin namespace (§6.1, §4.4).
// Every method here is a thin delegation to mode.Machine; the state
// machine itself owns every precondition and error code.
type StratusService struct {
	mode *mode.Machine
}

// NewStratusService returns the stratus_* namespace bound to mm.
func NewStratusService(mm *mode.Machine) *StratusService {
	return &StratusService{mode: mm}
}

// Health implements stratus_health.
func (s *StratusService) Health() bool { return s.mode.Healthy() }

// State implements stratus_state.
func (s *StratusService) State() mode.Snapshot { return s.mode.StateSnapshot() }

// EnableTransactions implements stratus_enableTransactions.
func (s *StratusService) EnableTransactions() bool { return s.mode.EnableTransactions() }

// DisableTransactions implements stratus_disableTransactions.
func (s *StratusService) DisableTransactions() bool { return s.mode.DisableTransactions() }

// EnableMiner implements stratus_enableMiner.
func (s *StratusService) EnableMiner() bool { return s.mode.EnableMiner() }

// DisableMiner implements stratus_disableMiner.
func (s *StratusService) DisableMiner() bool { return s.mode.DisableMiner() }

// PendingTransactionsCount implements stratus_pendingTransactionsCount.
func (s *StratusService) PendingTransactionsCount() int { return s.mode.PendingTransactionsCount() }

// ChangeToLeader implements stratus_changeToLeader.
func (s *StratusService) ChangeToLeader(ctx context.Context) (bool, error) {
	return s.mode.ChangeToLeader(ctx)
}

// ChangeToFollower implements stratus_changeToFollower(httpUrl, wsUrl, rpcTimeout, syncInterval).
func (s *StratusService) ChangeToFollower(ctx context.Context, httpUrl, wsUrl string, rpcTimeoutMillis, syncIntervalMillis uint64) (bool, error) {
	return s.mode.ChangeToFollower(ctx, httpUrl, wsUrl, rpcTimeoutMillis, syncIntervalMillis)
}
