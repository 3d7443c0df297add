// Package preflight runs the ordered startup checks that decide whether
// the agent should even attempt to load its BPF programs: kernel BTF
// availability and required map and program type support. Each failure
// class (kernel BTF, program type, map type) maps to a distinct exit code;
// the ring-buffer and LPM-trie checks share the map-type code. An
// operator (or an orchestrator
// restarting the container) can tell a "this kernel can never run
// fact-agent" failure from a transient one.
package preflight

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stackrox/fact-agent/internal/loader"
)

// Exit codes returned by cmd/fact-agent on preflight failure. 0 and 1
// are reserved for success and generic runtime errors respectively.
const (
	ExitNoKernelBTF        = 10
	ExitMissingProgramType = 11
	ExitMissingMapType     = 12
)

// Check is one named, ordered startup verification step.
type Check struct {
	Name string
	Run  func(context.Context) error
	Code int
}

// FailedCheckError wraps a Check's failure with the exit code the
// caller should use to terminate the process.
type FailedCheckError struct {
	Check string
	Code  int
	Err   error
}

func (e *FailedCheckError) Error() string {
	return fmt.Sprintf("preflight: %s: %v", e.Check, e.Err)
}

func (e *FailedCheckError) Unwrap() error { return e.Err }

// table returns the ordered checks this agent runs before attempting to
// load any BPF program. Later checks assume earlier ones passed (the
// BTF check runs before the program/map type checks because probing
// program types on a kernel that cannot CO-RE relocate at all is
// meaningless).
func table(report *loader.FeatureReport) []Check {
	return []Check{
		{
			Name: "kernel-btf",
			Code: ExitNoKernelBTF,
			Run: func(_ context.Context) error {
				r, err := loader.Probe()
				*report = r
				return err
			},
		},
		{
			Name: "lsm-program-type",
			Code: ExitMissingProgramType,
			Run: func(_ context.Context) error {
				if !report.LSMProgramType {
					return fmt.Errorf("kernel does not support BPF_PROG_TYPE_LSM")
				}
				return nil
			},
		},
		{
			Name: "ringbuf-map-type",
			Code: ExitMissingMapType,
			Run: func(_ context.Context) error {
				if !report.RingBuffer {
					return fmt.Errorf("kernel does not support BPF_MAP_TYPE_RINGBUF")
				}
				return nil
			},
		},
		{
			Name: "lpm-trie-map-type",
			Code: ExitMissingMapType,
			Run: func(_ context.Context) error {
				if !report.LPMTrie {
					return fmt.Errorf("kernel does not support BPF_MAP_TYPE_LPM_TRIE")
				}
				return nil
			},
		},
	}
}

// Run executes every check in order, stopping at the first failure
// unless skip is true, in which case failures are logged and treated as
// non-fatal (the operator has explicitly accepted degraded behavior,
// e.g. for local development against an unsupported kernel). The
// returned FeatureReport carries the probe results forward to the
// loader, which uses them to pick per-hook path resolvers; it is valid
// even when an error is returned.
func Run(ctx context.Context, log *zap.Logger, skip bool) (loader.FeatureReport, error) {
	var report loader.FeatureReport
	for _, c := range table(&report) {
		if err := c.Run(ctx); err != nil {
			if skip {
				log.Warn("preflight check failed, continuing because checks were skipped",
					zap.String("check", c.Name), zap.Error(err))
				continue
			}
			return report, &FailedCheckError{Check: c.Name, Code: c.Code, Err: err}
		}
		log.Debug("preflight check passed", zap.String("check", c.Name))
	}
	if !report.DPathHelper {
		log.Info("bpf_d_path helper unavailable, hooks will use the manual path walker")
	}
	return report, nil
}
