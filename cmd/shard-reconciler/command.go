package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/bisdn-oss/upsf-shard-reconciler/internal/config"
	"github.com/bisdn-oss/upsf-shard-reconciler/internal/controlloop"
	"github.com/bisdn-oss/upsf-shard-reconciler/internal/mapper"
	"github.com/bisdn-oss/upsf-shard-reconciler/internal/materializer"
	"github.com/bisdn-oss/upsf-shard-reconciler/internal/metrics"
	"github.com/bisdn-oss/upsf-shard-reconciler/internal/policy"
	"github.com/bisdn-oss/upsf-shard-reconciler/internal/upsf"
)

// RunCommand implements cli.Command for the reconciler's only verb: run
// the control loop in the foreground until a stop signal arrives
// (spec.md §6 "Exit codes": 0 on clean shutdown, non-zero on
// unrecoverable startup failure).
type RunCommand struct {
	UI cli.Ui
}

func (c *RunCommand) Synopsis() string {
	return "Run the UPSF shard reconciler control loop"
}

func (c *RunCommand) Help() string {
	var b strings.Builder
	b.WriteString("Usage: shard-reconciler run [options]\n\n")
	b.WriteString("  Runs the reconciliation control loop in the foreground until\n")
	b.WriteString("  interrupted. Each option may also be set via the environment variable\n")
	b.WriteString("  of the same name in upper case with dashes as underscores (UPSF_HOST).\n\n")
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	registerFlags(fs, &config.RuntimeConfig{})
	b.WriteString("Options:\n\n")
	fs.VisitAll(func(f *flag.Flag) {
		fmt.Fprintf(&b, "  -%-24s %s\n", f.Name, f.Usage)
	})
	return b.String()
}

// registerFlags exists only so Help() can enumerate the flag set Parse
// builds internally; it is not used to actually parse values.
func registerFlags(fs *flag.FlagSet, cfg *config.RuntimeConfig) {
	fs.String("upsf-host", cfg.UPSFHost, "UPSF gRPC host")
	fs.Int("upsf-port", cfg.UPSFPort, "UPSF gRPC port")
	fs.String("config-file", cfg.ConfigFile, "policy file path")
	fs.String("virtual-mac", cfg.VirtualMAC, "virtual MAC stamped on newly created shards")
	fs.Int("registration-interval", 60, "registration interval, seconds")
	fs.Bool("upsf-auto-register", true, "enable periodic default-shard materialization")
	fs.String("loglevel", cfg.LogLevel, "log level: debug, info, warning, error, critical")
	fs.String("metrics-addr", cfg.MetricsAddr, "listen address for /metrics and /healthz")
}

func (c *RunCommand) Run(args []string) int {
	cfg, err := config.Parse(args)
	if err != nil {
		c.UI.Error(fmt.Sprintf("invalid configuration: %v", err))
		return 1
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "shard-reconciler",
		Level: hclogLevel(cfg.LogLevel),
	})

	client, err := upsf.Dial(cfg.StoreAddress(), logger)
	if err != nil {
		logger.Error("failed to dial upsf store", "address", cfg.StoreAddress(), "error", err)
		return 1
	}
	defer client.Close()

	sink, err := metrics.New("shard_reconciler", logger)
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err)
		return 1
	}

	pol := policy.NewLoader(cfg.ConfigFile, logger)
	mat := materializer.New(client, pol, cfg.VirtualMAC, logger)
	m := mapper.New(client, pol, logger)
	m.Metrics = sink

	sup := controlloop.New(client, m, mat, logger, cfg.RegistrationInterval, cfg.UPSFAutoRegister)
	sup.Metrics = sink

	metricsSrv := metrics.Server(cfg.MetricsAddr, logger)
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped unexpectedly", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.Run(ctx)
	logger.Info("shard reconciler running", "store", cfg.StoreAddress())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping")
	sup.Stop()
	_ = metricsSrv.Shutdown(context.Background())
	return 0
}

// hclogLevel translates the five levels spec.md §6 recognizes into an
// hclog.Level; anything unrecognized falls back to Info (config.Parse
// already rejects invalid values before this is reached).
func hclogLevel(level string) hclog.Level {
	switch level {
	case "debug":
		return hclog.Debug
	case "info":
		return hclog.Info
	case "warning":
		return hclog.Warn
	case "error":
		return hclog.Error
	case "critical":
		return hclog.Error
	default:
		return hclog.Info
	}
}
