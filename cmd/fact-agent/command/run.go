package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/stackrox/fact-agent/internal/config"
	"github.com/stackrox/fact-agent/internal/delivery"
	"github.com/stackrox/fact-agent/internal/loader"
	"github.com/stackrox/fact-agent/internal/metrics"
	"github.com/stackrox/fact-agent/internal/pathmon"
	"github.com/stackrox/fact-agent/internal/preflight"
	"github.com/stackrox/fact-agent/internal/pump"
)

// shutdownGrace bounds how long workers are given to drain before the
// agent detaches hooks and exits.
const shutdownGrace = 5 * time.Second

// metricsSnapshotInterval is the metrics snapshotter's periodic-timer
// period.
const metricsSnapshotInterval = 30 * time.Second

// exitCodeError pairs a process exit code with the error that produced
// it, so Execute can recover the right code without a type switch per
// failure class.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }
func (e *exitCodeError) ExitCode() int { return e.code }

func newRunCommand(params *GlobalParams) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Load the BPF hooks and stream file-activity events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), params)
		},
	}
}

func runAgent(ctx context.Context, params *GlobalParams) error {
	cfg, err := config.Load(config.CLIFlags{
		Paths:         params.Paths,
		SkipPreFlight: params.SkipPreFlight,
		GRPCTarget:    params.GRPCTarget,
		BPFDir:        params.BPFDir,
		DeliveryQueue: params.DeliveryQueue,
		HostPathCache: params.HostPathCache,
	}, os.Getenv)
	if err != nil {
		return &exitCodeError{code: config.ExitMissingConfig, err: err}
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return &exitCodeError{code: ExitError, err: fmt.Errorf("command: build logger: %w", err)}
	}
	defer log.Sync() //nolint:errcheck

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer stop()

	features, err := preflight.Run(sigCtx, log, cfg.SkipPreFlight)
	if err != nil {
		code := ExitError
		var fc *preflight.FailedCheckError
		if errors.As(err, &fc) {
			code = fc.Code
		}
		return &exitCodeError{code: code, err: fmt.Errorf("command: %w", err)}
	}

	objFile, err := loader.GetReader(cfg.BPFDir)
	if err != nil {
		return &exitCodeError{code: ExitError, err: fmt.Errorf("command: %w", err)}
	}
	defer objFile.Close()

	hostMountNS, err := readHostMountNS()
	if err != nil {
		log.Warn("could not read host mount namespace, InRootMountNS will be unreliable", zap.Error(err))
	}

	monitor := pathmon.NewMonitor(pathmon.DefaultCapacity)
	prefixes := pathBytes(cfg.PathPrefixes)
	if err := monitor.Configure(prefixes); err != nil {
		return &exitCodeError{code: ExitError, err: fmt.Errorf("command: configure path monitor: %w", err)}
	}

	ld := loader.New(log)
	if err := ld.Load(loader.Options{
		ObjectReader: objFile,
		Features:     features,
		HostMountNS:  hostMountNS,
		FilterPrefix: monitor.FilterByPrefix(),
	}); err != nil {
		return &exitCodeError{code: ExitError, err: fmt.Errorf("command: %w", err)}
	}

	if len(prefixes) > 0 {
		if err := ld.ConfigurePaths(prefixes); err != nil {
			return &exitCodeError{code: ExitError, err: fmt.Errorf("command: %w", err)}
		}
	}

	if err := ld.Attach(); err != nil {
		return &exitCodeError{code: ExitError, err: fmt.Errorf("command: %w", err)}
	}
	defer func() {
		if err := ld.Detach(); err != nil {
			log.Error("detach failed", zap.Error(err))
		}
	}()

	ringMap, err := ld.RingBufferMap()
	if err != nil {
		return &exitCodeError{code: ExitError, err: fmt.Errorf("command: %w", err)}
	}
	rd, err := ringbuf.NewReader(ringMap)
	if err != nil {
		return &exitCodeError{code: ExitError, err: fmt.Errorf("command: open ring buffer reader: %w", err)}
	}

	metricsMap, err := ld.MetricsMap()
	if err != nil {
		return &exitCodeError{code: ExitError, err: fmt.Errorf("command: %w", err)}
	}
	metricsReader := metrics.NewReader(metricsMap)

	sink := delivery.New(delivery.Options{
		Target:    cfg.GRPCTarget,
		QueueSize: cfg.DeliveryQueueSize,
		Log:       log.Named("delivery"),
	})

	pmp, err := pump.New(pump.Options{
		Reader:            rd,
		Sink:              sink,
		HostPathCacheSize: cfg.HostPathCacheSize,
		Log:               log.Named("pump"),
	})
	if err != nil {
		return &exitCodeError{code: ExitError, err: fmt.Errorf("command: %w", err)}
	}

	// workerCtx outlives sigCtx by shutdownGrace: on signal, workers keep
	// draining for the grace period before being hard-cancelled.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go func() {
		<-sigCtx.Done()
		t := time.NewTimer(shutdownGrace)
		defer t.Stop()
		select {
		case <-t.C:
		case <-workerCtx.Done():
		}
		cancelWorkers()
	}()

	return runWorkers(workerCtx, log, pmp, sink, metricsReader)
}

// runWorkers drives the pump, delivery, and metrics-snapshotter workers
// to completion, each stopping on ctx cancellation. It returns the first
// non-nil error any worker reports.
func runWorkers(ctx context.Context, log *zap.Logger, pmp *pump.Pump, sink *delivery.Sink, metricsReader *metrics.Reader) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := pmp.Run(gctx)
		closeErr := pmp.Close()
		if err != nil {
			return fmt.Errorf("pump: %w", err)
		}
		if closeErr != nil {
			return fmt.Errorf("pump: close reader: %w", closeErr)
		}
		return nil
	})

	g.Go(func() error {
		if err := sink.Run(gctx); err != nil {
			return fmt.Errorf("delivery: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		runMetricsSnapshotter(gctx, log, metricsReader, pmp, sink)
		return nil
	})

	err := g.Wait()
	if err != nil {
		return &exitCodeError{code: ExitError, err: err}
	}
	return nil
}

func runMetricsSnapshotter(ctx context.Context, log *zap.Logger, reader *metrics.Reader, pmp *pump.Pump, sink *delivery.Sink) {
	ticker := time.NewTicker(metricsSnapshotInterval)
	defer ticker.Stop()

	snapshot := func() {
		snap, err := reader.Snapshot()
		if err != nil {
			log.Warn("metrics snapshot failed", zap.Error(err))
		} else {
			for hook, m := range snap {
				log.Info("hook metrics",
					zap.String("hook", string(hook)),
					zap.Uint64("total", m.Total),
					zap.Uint64("added", m.Added),
					zap.Uint64("error", m.Error),
					zap.Uint64("ignored", m.Ignored),
					zap.Uint64("ringbuffer_full", m.RingBufferFull))
			}
		}

		ds := pmp.Stats()
		ss := sink.Stats()
		log.Info("pipeline metrics",
			zap.Uint64("decode_errors", ds.Total()),
			zap.Uint64("sent", ss.Sent),
			zap.Uint64("dropped", ss.Dropped),
			zap.Uint64("ack_watermark", ss.Watermark))
	}

	for {
		select {
		case <-ctx.Done():
			// Final snapshot so a shutdown leaves the closing counter
			// values in the log.
			snapshot()
			return
		case <-ticker.C:
			snapshot()
		}
	}
}

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg.Build()
}

// readHostMountNS reads this process's mount-namespace identifier from
// /proc/self/ns/mnt, which has the form "mnt:[4026531840]".
func readHostMountNS() (uint64, error) {
	link, err := os.Readlink("/proc/self/ns/mnt")
	if err != nil {
		return 0, fmt.Errorf("read /proc/self/ns/mnt: %w", err)
	}
	start := strings.Index(link, "[")
	end := strings.Index(link, "]")
	if start < 0 || end < 0 || end <= start {
		return 0, fmt.Errorf("unexpected mount namespace link format %q", link)
	}
	ns, err := strconv.ParseUint(link[start+1:end], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse mount namespace id from %q: %w", link, err)
	}
	return ns, nil
}

// pathBytes converts operator-supplied path prefixes to the byte-string
// form internal/pathmon and internal/loader both key on.
func pathBytes(paths []string) [][]byte {
	out := make([][]byte, 0, len(paths))
	for _, p := range paths {
		out = append(out, []byte(p))
	}
	return out
}
