// Package node wires every Stratus component into one running process:
// the Versioned Store, the Miner, the Importer, the Mode Machine, the
// RPC servers and the metrics endpoint. Node's lifecycle methods
// (Start/Shutdown) and its single coarse lock mirror the teacher's own
// VM type (plugin/evm/vm.go's vmLock sync.RWMutex guarding Initialize/
// Shutdown/CreateHandlers) generalized from a consensus-engine plugin
// lifecycle to a standalone node's HTTP lifecycle.
package node

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/luxfi/log"

	"github.com/cloudwalk/stratus/config"
	"github.com/cloudwalk/stratus/importer"
	"github.com/cloudwalk/stratus/metrics"
	"github.com/cloudwalk/stratus/miner"
	"github.com/cloudwalk/stratus/mode"
	"github.com/cloudwalk/stratus/rpcapi"
	"github.com/cloudwalk/stratus/storage"
)

// Node owns every long-lived component and the three HTTP listeners
// (JSON-RPC HTTP, JSON-RPC WebSocket, Prometheus metrics).
type Node struct {
	mu sync.RWMutex

	store    storage.Backend
	miner    *miner.Miner
	importer *importer.Importer
	mode     *mode.Machine
	rpc      *rpc.Server

	httpServer    *http.Server
	wsServer      *http.Server
	metricsServer *http.Server

	cfg *config.Config
}

// New builds every component from cfg but does not start anything.
func New(cfg *config.Config) (*Node, error) {
	store, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("node: opening storage: %w", err)
	}

	m := miner.New(store, cfg.MinerInterval, cfg.PendingSetLimit)
	im := importer.New(store)

	initial := mode.Leader
	if cfg.InitialRole == "follower" {
		initial = mode.Follower
	}
	mm := mode.New(initial, m, im)

	srv, err := rpcapi.NewServer(store, m, mm)
	if err != nil {
		return nil, fmt.Errorf("node: building rpc server: %w", err)
	}

	return &Node{
		store:    store,
		miner:    m,
		importer: im,
		mode:     mm,
		rpc:      srv,
		cfg:      cfg,
	}, nil
}

func openStorage(cfg *config.Config) (storage.Backend, error) {
	if cfg.StorageDriver == "memory" {
		return storage.NewMemoryBackend(), nil
	}
	return storage.OpenSQLBackend(cfg.StorageDriver, cfg.StorageDSN)
}

// Start emits genesis if configured, launches the Leader's miner or the
// Follower's importer, and brings up all three HTTP listeners.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cfg.EnableGenesis {
		if err := miner.EmitGenesis(ctx, n.store, n.cfg.EnableTestAccounts); err != nil {
			return fmt.Errorf("node: emitting genesis: %w", err)
		}
	}

	switch n.mode.State() {
	case mode.Leader:
		n.miner.Start(ctx)
	case mode.Follower:
		n.importer.Start(ctx, n.cfg.LeaderHTTP, n.cfg.LeaderWS,
			uint64(n.cfg.RPCTimeout.Milliseconds()), uint64(n.cfg.SyncInterval.Milliseconds()))
	}

	n.httpServer = &http.Server{Addr: n.cfg.HTTPAddr, Handler: rpcapi.HTTPHandler(n.rpc)}
	n.wsServer = &http.Server{Addr: n.cfg.WSAddr, Handler: rpcapi.WSHandler(n.rpc, nil)}
	n.metricsServer = &http.Server{Addr: n.cfg.MetricsAddr, Handler: metrics.Handler()}

	for _, pair := range []struct {
		name string
		srv  *http.Server
	}{
		{"http", n.httpServer},
		{"ws", n.wsServer},
		{"metrics", n.metricsServer},
	} {
		srv := pair.srv
		name := pair.name
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("node: listener stopped", "server", name, "error", err)
			}
		}()
	}
	return nil
}

// Shutdown stops the miner/importer and every HTTP listener, waiting up
// to 5 seconds for in-flight requests to finish.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.miner.Stop()
	n.importer.Stop()
	n.rpc.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var firstErr error
	for _, srv := range []*http.Server{n.httpServer, n.wsServer, n.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HealthCheck reports whether the node is healthy in its current role,
// the same contract as stratus_health (§4.4).
func (n *Node) HealthCheck(context.Context) (interface{}, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return map[string]bool{"healthy": n.mode.Healthy()}, nil
}
