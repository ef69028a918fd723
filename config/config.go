// Package config builds Stratus's runtime configuration the same way
// the teacher's simulator command does: a pflag.FlagSet defines every
// flag and its default, viper binds it to an optional config file and
// the STRATUS_-prefixed environment, and BuildConfig turns the bound
// viper instance into a typed Config the rest of the node consumes.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	httpAddrKey        = "http-addr"
	wsAddrKey          = "ws-addr"
	storageDriverKey   = "storage-driver"
	storageDSNKey      = "storage-dsn"
	minerIntervalKey   = "miner-interval"
	pendingSetLimitKey = "pending-set-limit"
	enableGenesisKey   = "enable-genesis"
	enableTestAccsKey  = "enable-test-accounts"
	initialRoleKey     = "initial-role"
	leaderHTTPKey      = "leader-http"
	leaderWSKey        = "leader-ws"
	rpcTimeoutKey      = "rpc-timeout"
	syncIntervalKey    = "sync-interval"
	logLevelKey        = "log-level"
	logFileKey         = "log-file"
	metricsAddrKey     = "metrics-addr"
	configFileKey      = "config-file"
)

// Config is Stratus's fully-resolved runtime configuration, the
// typed counterpart of the flags BuildFlagSet declares.
type Config struct {
	HTTPAddr   string
	WSAddr     string
	MetricsAddr string

	StorageDriver string // "memory" or a database/sql driver name (e.g. "sqlite")
	StorageDSN    string

	MinerInterval   time.Duration
	PendingSetLimit int

	EnableGenesis      bool
	EnableTestAccounts bool

	InitialRole string // "leader" or "follower"
	LeaderHTTP  string
	LeaderWS    string
	RPCTimeout  time.Duration
	SyncInterval time.Duration

	LogLevel string
	LogFile  string // empty means stderr; otherwise rotated via lumberjack
}

// BuildFlagSet declares every Stratus flag and its default, mirroring
// the teacher's cmd/simulator flag layout (one pflag.FlagSet, parsed
// once in main before anything else runs).
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("stratus", pflag.ContinueOnError)

	fs.String(httpAddrKey, "127.0.0.1:3000", "address the JSON-RPC HTTP server listens on")
	fs.String(wsAddrKey, "127.0.0.1:3001", "address the JSON-RPC WebSocket server listens on")
	fs.String(metricsAddrKey, "127.0.0.1:9000", "address the Prometheus /metrics endpoint listens on")

	fs.String(storageDriverKey, "memory", `versioned store backend: "memory" or a database/sql driver name`)
	fs.String(storageDSNKey, "", "data source name for storage-driver, ignored for \"memory\"")

	fs.Duration(minerIntervalKey, 1*time.Second, "interval between miner block-assembly ticks")
	fs.Int(pendingSetLimitKey, 10_000, "maximum admitted, unmined transactions held at once")

	fs.Bool(enableGenesisKey, true, "emit block 0 at startup if the store has no head yet")
	fs.Bool(enableTestAccsKey, false, "fund the well-known development accounts at genesis")

	fs.String(initialRoleKey, "leader", `node's starting role: "leader" or "follower"`)
	fs.String(leaderHTTPKey, "", "leader JSON-RPC HTTP endpoint, required when initial-role is follower")
	fs.String(leaderWSKey, "", "leader JSON-RPC WebSocket endpoint")
	fs.Duration(rpcTimeoutKey, 2*time.Second, "timeout for each importer RPC call to the leader")
	fs.Duration(syncIntervalKey, 100*time.Millisecond, "interval between importer poll attempts")

	fs.String(logLevelKey, "info", "log level (trace, debug, info, warn, error, crit); stored in Config.LogLevel, not applied to the logger")
	fs.String(logFileKey, "", "path to write rotated logs to; empty means stderr")
	fs.String(configFileKey, "", "optional path to a YAML/TOML/JSON config file")

	return fs
}

// BuildViper parses args against fs, binds the result (and the
// STRATUS_-prefixed environment) into a fresh viper.Viper, and merges
// in an optional config file named by --config-file.
func BuildViper(fs *pflag.FlagSet, args []string) (*viper.Viper, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("stratus")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: binding flags: %w", err)
	}

	if path := v.GetString(configFileKey); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}
	return v, nil
}

// BuildConfig materializes a Config from a viper instance already bound
// by BuildViper, validating the leader/follower combination spec.md
// requires.
func BuildConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPAddr:    v.GetString(httpAddrKey),
		WSAddr:      v.GetString(wsAddrKey),
		MetricsAddr: v.GetString(metricsAddrKey),

		StorageDriver: v.GetString(storageDriverKey),
		StorageDSN:    v.GetString(storageDSNKey),

		MinerInterval:   v.GetDuration(minerIntervalKey),
		PendingSetLimit: v.GetInt(pendingSetLimitKey),

		EnableGenesis:      v.GetBool(enableGenesisKey),
		EnableTestAccounts: v.GetBool(enableTestAccsKey),

		InitialRole:  strings.ToLower(v.GetString(initialRoleKey)),
		LeaderHTTP:   v.GetString(leaderHTTPKey),
		LeaderWS:     v.GetString(leaderWSKey),
		RPCTimeout:   v.GetDuration(rpcTimeoutKey),
		SyncInterval: v.GetDuration(syncIntervalKey),

		LogLevel: v.GetString(logLevelKey),
		LogFile:  v.GetString(logFileKey),
	}

	switch cfg.InitialRole {
	case "leader":
	case "follower":
		if cfg.LeaderHTTP == "" {
			return nil, fmt.Errorf("config: initial-role=follower requires leader-http")
		}
	default:
		return nil, fmt.Errorf("config: initial-role must be \"leader\" or \"follower\", got %q", cfg.InitialRole)
	}

	if cfg.StorageDriver != "memory" && cfg.StorageDSN == "" {
		return nil, fmt.Errorf("config: storage-driver=%q requires storage-dsn", cfg.StorageDriver)
	}

	return cfg, nil
}
