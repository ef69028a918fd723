// Command stratus runs a Stratus execution node: the Versioned Store,
// Executor, Miner/Importer pair, Mode Machine and JSON-RPC surface,
// started from a single binary per the operator-facing CLI shape the
// teacher's own standalone node command (cmd/evm-node) uses — an
// urfave/cli.App with an App.Before log hook and a single default
// Action, wrapping the pflag/viper config pipeline the teacher's
// simulator command builds its own Config from.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxfi/log"
	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cloudwalk/stratus/config"
	"github.com/cloudwalk/stratus/node"
)

const clientIdentifier = "stratus"

// SkipFlagParsing hands every argument straight through as cliCtx.Args()
// untouched: stratus's own flags are declared and parsed by
// config.BuildFlagSet's pflag.FlagSet, not by urfave/cli's flag parser,
// so the two never fight over the same argv.
var app = &cli.App{
	Name:            clientIdentifier,
	Usage:           "Stratus EVM-compatible execution node",
	Version:         "0.1.0",
	SkipFlagParsing: true,
}

func init() {
	app.Action = run
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// logWriter returns os.Stderr when path is empty, or a lumberjack.Logger
// rotating path on fixed, ops-friendly thresholds otherwise: 100MB per
// file, 5 old files kept, pruned after 28 days, and gzipped once rotated.
func logWriter(path string) io.Writer {
	if path == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
}

func run(cliCtx *cli.Context) error {
	fs := config.BuildFlagSet()
	v, err := config.BuildViper(fs, cliCtx.Args().Slice())
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stratus: building config: %w", err)
	}

	cfg, err := config.BuildConfig(v)
	if err != nil {
		return fmt.Errorf("stratus: invalid config: %w", err)
	}

	// Color escapes only belong on an actual terminal; once log-file
	// redirects to a rotated file, write plain text instead.
	log.SetDefault(log.NewLogger(log.NewTerminalHandler(logWriter(cfg.LogFile), cfg.LogFile == "")))

	n, err := node.New(cfg)
	if err != nil {
		return fmt.Errorf("stratus: building node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("stratus: starting node: %w", err)
	}
	log.Info("stratus: node started",
		"role", cfg.InitialRole, "http", cfg.HTTPAddr, "ws", cfg.WSAddr, "metrics", cfg.MetricsAddr)

	<-ctx.Done()
	log.Info("stratus: shutting down")

	shutdownCtx := context.Background()
	return n.Shutdown(shutdownCtx)
}
