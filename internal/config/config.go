// Package config assembles a single immutable Config from two
// already-parsed inputs: the CLI flag set and the process environment.
// It performs the env+CLI union of monitored path prefixes but does not
// itself touch the trie; that is internal/pathmon's job.
package config

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ExitMissingConfig is the process exit code for missing required
// configuration; preflight-specific codes live in internal/preflight.
const ExitMissingConfig = 6

// Defaults for knobs the CLI leaves unset.
const (
	DefaultBPFDir             = "/opt/fact-agent"
	DefaultRingBufferMinBytes = 8 * 1024 * 1024
	DefaultHostPathCacheSize  = 4096
	DefaultDeliveryQueueSize  = 4096
)

// CLIFlags is the subset of parsed flag values config.Load needs. It is
// a plain struct, not a *pflag.FlagSet, so this package has no direct
// dependency on cobra/pflag: cmd/fact-agent/command is the only place
// that touches the flag set itself.
type CLIFlags struct {
	Paths         []string
	SkipPreFlight bool
	GRPCTarget    string
	BPFDir        string
	DeliveryQueue int
	HostPathCache int
}

// Config is the fully resolved, immutable configuration the rest of the
// agent is built from.
type Config struct {
	// PathPrefixes is the de-duplicated, order-preserving union of
	// FACT_PATHS (env) and --paths/-p (CLI).
	PathPrefixes []string
	// SkipPreFlight disables the startup feature checks.
	SkipPreFlight bool
	// GRPCTarget is the external consumer's dial address for the
	// streaming delivery sink. Required: empty is a startup
	// configuration error.
	GRPCTarget string
	// BPFDir is the directory internal/loader reads the compiled BPF
	// object from (internal/loader.ObjectFileName).
	BPFDir string
	// DeliveryQueueSize bounds the delivery sink's queue.
	DeliveryQueueSize int
	// HostPathCacheSize bounds the pump's inode-key -> host-path LRU.
	HostPathCacheSize int
	// LogLevel is the zap level FACT_LOGLEVEL selects.
	LogLevel zapcore.Level
}

// Load merges cli with the process environment (via getenv, injected so
// this package stays easily testable without mutating the real
// environment) into a validated Config.
func Load(cli CLIFlags, getenv func(string) string) (*Config, error) {
	cfg := &Config{
		PathPrefixes:      unionPaths(cli.Paths, getenv("FACT_PATHS")),
		SkipPreFlight:     cli.SkipPreFlight,
		GRPCTarget:        cli.GRPCTarget,
		BPFDir:            cli.BPFDir,
		DeliveryQueueSize: cli.DeliveryQueue,
		HostPathCacheSize: cli.HostPathCache,
	}

	if cfg.BPFDir == "" {
		cfg.BPFDir = DefaultBPFDir
	}
	if cfg.DeliveryQueueSize <= 0 {
		cfg.DeliveryQueueSize = DefaultDeliveryQueueSize
	}
	if cfg.HostPathCacheSize <= 0 {
		cfg.HostPathCacheSize = DefaultHostPathCacheSize
	}

	level, err := parseLogLevel(getenv("FACT_LOGLEVEL"))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.LogLevel = level

	if cfg.GRPCTarget == "" {
		return nil, fmt.Errorf("config: no gRPC delivery target configured (exit %d)", ExitMissingConfig)
	}

	return cfg, nil
}

// unionPaths computes the ordered, de-duplicated union of the CLI's
// repeatable --paths flag and FACT_PATHS, which may be newline- or
// comma-separated. CLI values are listed first so an
// operator reading --paths on a command line sees their own order
// preserved before the env-sourced tail.
func unionPaths(cliPaths []string, envVal string) []string {
	seen := make(map[string]struct{}, len(cliPaths))
	var out []string

	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, p := range cliPaths {
		add(p)
	}
	for _, p := range splitEnvList(envVal) {
		add(p)
	}
	return out
}

// splitEnvList splits on commas and newlines.
func splitEnvList(val string) []string {
	if val == "" {
		return nil
	}
	fields := strings.FieldsFunc(val, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	return fields
}

func parseLogLevel(val string) (zapcore.Level, error) {
	if val == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(val))); err != nil {
		return 0, fmt.Errorf("FACT_LOGLEVEL: %w", err)
	}
	return lvl, nil
}
