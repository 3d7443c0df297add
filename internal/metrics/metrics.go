// Package metrics reads the per-hook, per-CPU metrics map the kernel
// programs maintain and aggregates it into a Snapshot: five monotonic
// counters per hook, summed across CPUs.
package metrics

import (
	"encoding/binary"
	"fmt"

	"github.com/cilium/ebpf"

	"github.com/stackrox/fact-agent/internal/factevent"
)

// hookIndex mirrors the key layout maps.bpf.c's `metrics` PERCPU_ARRAY
// uses: one entry per hook, in the fixed order 0=file_open, 1=path_unlink,
// 2=path_chmod, 3=path_chown.
var hookIndex = map[uint32]factevent.HookName{
	0: factevent.HookFileOpen,
	1: factevent.HookPathUnlink,
	2: factevent.HookPathChmod,
	3: factevent.HookPathChown,
}

// recordSize is sizeof(struct hook_metrics): five u64 counters.
const recordSize = 5 * 8

// Reader aggregates the kernel's per-CPU hook_metrics array into a
// Snapshot on demand.
type Reader struct {
	m *ebpf.Map
}

// NewReader wraps the metrics map internal/loader.Loader.MetricsMap
// returns.
func NewReader(m *ebpf.Map) *Reader {
	return &Reader{m: m}
}

// Snapshot reads every hook's counters, summing the per-CPU values the
// kernel maintains independently to avoid cross-CPU contention.
func (r *Reader) Snapshot() (factevent.Snapshot, error) {
	snap := make(factevent.Snapshot, len(hookIndex))

	for key, hook := range hookIndex {
		var perCPU [][]byte
		if err := r.m.Lookup(key, &perCPU); err != nil {
			return nil, fmt.Errorf("metrics: lookup hook %s: %w", hook, err)
		}

		var agg factevent.HookMetrics
		for _, cpuBuf := range perCPU {
			m, err := decodeRecord(cpuBuf)
			if err != nil {
				return nil, fmt.Errorf("metrics: decode hook %s: %w", hook, err)
			}
			agg.Total += m.Total
			agg.Added += m.Added
			agg.Error += m.Error
			agg.Ignored += m.Ignored
			agg.RingBufferFull += m.RingBufferFull
		}
		snap[hook] = agg
	}

	return snap, nil
}

func decodeRecord(buf []byte) (factevent.HookMetrics, error) {
	if len(buf) < recordSize {
		return factevent.HookMetrics{}, fmt.Errorf("record too short: %d < %d", len(buf), recordSize)
	}
	return factevent.HookMetrics{
		Total:          binary.LittleEndian.Uint64(buf[0:8]),
		Added:          binary.LittleEndian.Uint64(buf[8:16]),
		Error:          binary.LittleEndian.Uint64(buf[16:24]),
		Ignored:        binary.LittleEndian.Uint64(buf[24:32]),
		RingBufferFull: binary.LittleEndian.Uint64(buf[32:40]),
	}, nil
}
