package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloudwalk/stratus/config"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTPAddr:           "127.0.0.1:0",
		WSAddr:             "127.0.0.1:0",
		MetricsAddr:        "127.0.0.1:0",
		StorageDriver:      "memory",
		MinerInterval:      time.Hour,
		EnableGenesis:      true,
		EnableTestAccounts: true,
		InitialRole:        "leader",
		RPCTimeout:         2 * time.Second,
		SyncInterval:       100 * time.Millisecond,
	}
}

func TestNewBuildsEveryComponent(t *testing.T) {
	n, err := New(testConfig())
	require.NoError(t, err)
	require.NotNil(t, n.store)
	require.NotNil(t, n.miner)
	require.NotNil(t, n.importer)
	require.NotNil(t, n.mode)
	require.NotNil(t, n.rpc)
}

func TestStartEmitsGenesisAndShutdownIsClean(t *testing.T) {
	n, err := New(testConfig())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, n.Start(ctx))

	head, ok := n.store.Head(ctx)
	require.True(t, ok)
	require.EqualValues(t, 0, head)

	health, err := n.HealthCheck(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"healthy": true}, health)

	require.NoError(t, n.Shutdown(ctx))
}

func TestStartAsFollowerRunsImporterInsteadOfMiner(t *testing.T) {
	cfg := testConfig()
	cfg.InitialRole = "follower"
	cfg.LeaderHTTP = "http://127.0.0.1:1"
	cfg.LeaderWS = "ws://127.0.0.1:1"

	n, err := New(cfg)
	require.NoError(t, err)
	require.True(t, n.mode.IsFollower())

	ctx := context.Background()
	require.NoError(t, n.Start(ctx))
	require.NoError(t, n.Shutdown(ctx))
}
