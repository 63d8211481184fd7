// Package config builds the immutable RuntimeConfig this reconciler runs
// with, from flags with environment-variable fallback, the way
// agent/config.RuntimeConfig does for the teacher's agent (spec.md §6).
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RuntimeConfig is the configuration the reconciler actually uses. It is
// built once at startup and never mutated afterward (DESIGN NOTES,
// "Global configuration... no process-wide mutable singletons").
type RuntimeConfig struct {
	UPSFHost             string
	UPSFPort             int
	ConfigFile           string
	VirtualMAC           string
	RegistrationInterval time.Duration
	UPSFAutoRegister     bool
	LogLevel             string
	MetricsAddr          string
}

// StoreAddress returns the "host:port" dial target for the UPSF gRPC
// store.
func (c RuntimeConfig) StoreAddress() string {
	return fmt.Sprintf("%s:%d", c.UPSFHost, c.UPSFPort)
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envOrInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid integer for %s: %w", key, err)
	}
	return n, nil
}

func envOrBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	return str2bool(v), nil
}

// str2bool mirrors the original Python implementation's permissive
// boolean parse ("true"/"1"/"t"/"y"/"yes", case-insensitively) rather
// than strconv.ParseBool, since upsf_auto_register historically accepts
// "yes"/"no".
func str2bool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "t", "y", "yes":
		return true
	default:
		return false
	}
}

// Defaults returns the built-in defaults, overridden by environment
// variables, before flag parsing is applied on top (spec.md §6).
func Defaults() (RuntimeConfig, error) {
	port, err := envOrInt("UPSF_PORT", 50051)
	if err != nil {
		return RuntimeConfig{}, err
	}
	interval, err := envOrInt("REGISTRATION_INTERVAL", 60)
	if err != nil {
		return RuntimeConfig{}, err
	}
	autoRegister, err := envOrBool("UPSF_AUTO_REGISTER", true)
	if err != nil {
		return RuntimeConfig{}, err
	}

	return RuntimeConfig{
		UPSFHost:             envOr("UPSF_HOST", "127.0.0.1"),
		UPSFPort:             port,
		ConfigFile:           envOr("CONFIG_FILE", "/etc/upsf/policy.yaml"),
		VirtualMAC:           envOr("VIRTUAL_MAC", "00:00:01:00:00:00"),
		RegistrationInterval: time.Duration(interval) * time.Second,
		UPSFAutoRegister:     autoRegister,
		LogLevel:             envOr("LOGLEVEL", "info"),
		MetricsAddr:          envOr("METRICS_ADDR", ":9090"),
	}, nil
}

// validLogLevels mirrors the five levels the original shard manager
// accepted.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warning": true, "error": true, "critical": true,
}

// Parse builds a RuntimeConfig from defaults/environment, then applies
// any flags present in args (as command/base.Command does: a flag.FlagSet
// layered on top of environment-derived defaults).
func Parse(args []string) (RuntimeConfig, error) {
	cfg, err := Defaults()
	if err != nil {
		return RuntimeConfig{}, err
	}

	fs := flag.NewFlagSet("shard-reconciler", flag.ContinueOnError)
	fs.StringVar(&cfg.UPSFHost, "upsf-host", cfg.UPSFHost, "UPSF gRPC host")
	fs.IntVar(&cfg.UPSFPort, "upsf-port", cfg.UPSFPort, "UPSF gRPC port")
	fs.StringVar(&cfg.ConfigFile, "config-file", cfg.ConfigFile, "policy file path")
	fs.StringVar(&cfg.VirtualMAC, "virtual-mac", cfg.VirtualMAC, "virtual MAC stamped on newly created shards")
	var intervalSeconds int
	fs.IntVar(&intervalSeconds, "registration-interval", int(cfg.RegistrationInterval/time.Second), "registration interval, seconds")
	fs.BoolVar(&cfg.UPSFAutoRegister, "upsf-auto-register", cfg.UPSFAutoRegister, "enable periodic default-shard materialization")
	fs.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "log level: debug, info, warning, error, critical")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "listen address for /metrics and /healthz")

	if err := fs.Parse(args); err != nil {
		return RuntimeConfig{}, err
	}
	cfg.RegistrationInterval = time.Duration(intervalSeconds) * time.Second

	if !validLogLevels[cfg.LogLevel] {
		return RuntimeConfig{}, fmt.Errorf("config: invalid loglevel %q", cfg.LogLevel)
	}
	if cfg.UPSFPort <= 0 || cfg.UPSFPort > 65535 {
		return RuntimeConfig{}, fmt.Errorf("config: invalid upsf-port %d", cfg.UPSFPort)
	}
	if cfg.RegistrationInterval <= 0 {
		return RuntimeConfig{}, fmt.Errorf("config: registration-interval must be positive")
	}
	return cfg, nil
}
