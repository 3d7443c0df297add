package loader

import (
	"fmt"
	"io"
	"sync"

	manager "github.com/DataDog/ebpf-manager"
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
	"go.uber.org/zap"

	"github.com/stackrox/fact-agent/internal/factevent"
)

// Map names, mirroring the declarations in internal/kernelsrc/bpf/maps.bpf.c.
// A mismatch here is caught at Load time as a missing-map error, not
// silently ignored.
const (
	mapPathPrefixes    = "path_prefixes"
	mapMonitoredInodes = "monitored_inodes"
	mapMetrics         = "metrics"
	mapEvents          = "events"
)

// Loader owns the lifecycle of the attached BPF collection: load,
// configure, attach, and idempotent detach.
type Loader struct {
	log *zap.Logger
	mgr *manager.Manager

	mu       sync.Mutex
	attached bool
}

// New returns a Loader that has not yet loaded anything.
func New(log *zap.Logger) *Loader {
	return &Loader{
		log: log,
		mgr: &manager.Manager{},
	}
}

// Options configures the collection before it is loaded: the compiled
// object to read, the feature-probe results that select per-hook path
// resolvers, whether prefix filtering starts enabled, and the host
// mount-namespace cookie used to populate InRootMountNS on emitted
// events.
type Options struct {
	ObjectReader io.ReaderAt
	Features     FeatureReport
	HostMountNS  uint64
	FilterPrefix bool
}

// Load removes the memlock limit that would otherwise block map
// creation on older kernels, then initializes the manager against the
// compiled object: program and map parsing, CO-RE relocation against
// the running kernel's BTF, and rewriting of the runtime-constant
// scalars the hook programs read (filter_by_prefix, host_mount_ns,
// supports_native_d_path). Nothing is attached yet.
func (l *Loader) Load(opts Options) error {
	if err := rlimit.RemoveMemlock(); err != nil {
		return fmt.Errorf("loader: remove memlock rlimit: %w", err)
	}

	var filterByPrefix uint8
	if opts.FilterPrefix {
		filterByPrefix = 1
	}
	dpathFlags := opts.Features.DPathFlags()

	var mandatory, recoverable []manager.ProbesSelector
	for _, hook := range Hooks {
		pid := manager.ProbeIdentificationPair{EBPFFuncName: hook.Program}
		l.mgr.Probes = append(l.mgr.Probes, &manager.Probe{ProbeIdentificationPair: pid})
		sel := &manager.ProbeSelector{ProbeIdentificationPair: pid}
		if hook.Requirement == HookMandatory {
			mandatory = append(mandatory, sel)
		} else {
			recoverable = append(recoverable, sel)
		}
	}

	mgrOpts := manager.Options{
		ConstantEditors: []manager.ConstantEditor{
			{Name: "filter_by_prefix", Value: filterByPrefix},
			{Name: "host_mount_ns", Value: opts.HostMountNS},
			{Name: "supports_native_d_path", Value: dpathFlags},
		},
		ActivatedProbes: []manager.ProbesSelector{
			&manager.AllOf{Selectors: mandatory},
			&manager.BestEffort{Selectors: recoverable},
		},
	}

	if err := l.mgr.InitWithOptions(opts.ObjectReader, mgrOpts); err != nil {
		return fmt.Errorf("loader: init manager: %w", err)
	}
	return nil
}

// Attach starts every configured probe. Mandatory hooks that fail to
// attach abort the whole operation and detach anything already started;
// recoverable hooks that fail are logged and skipped, and their absence
// is reflected by the caller simply never receiving events of the type
// they would have produced.
func (l *Loader) Attach() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.mgr.Start(); err != nil {
		_ = l.mgr.Stop(manager.CleanAll)
		return fmt.Errorf("loader: start manager: %w", err)
	}
	l.attached = true

	for _, hook := range Hooks {
		probe, ok := l.mgr.GetProbe(manager.ProbeIdentificationPair{EBPFFuncName: hook.Program})
		if ok && probe.IsRunning() {
			l.log.Info("hook attached", zap.String("hook", hook.Name))
			continue
		}
		if hook.Requirement == HookMandatory {
			err := l.mgr.Stop(manager.CleanAll)
			l.attached = false
			if err != nil {
				l.log.Error("cleanup after failed attach", zap.Error(err))
			}
			return fmt.Errorf("loader: mandatory hook %s failed to attach", hook.Name)
		}
		l.log.Warn("optional hook did not attach, continuing without it", zap.String("hook", hook.Name))
	}
	return nil
}

// ConfigurePaths installs the operator's monitored-path prefixes into
// the BPF_MAP_TYPE_LPM_TRIE map, using the same bit_length encoding
// internal/pathmon.Trie uses for its in-process mirror.
func (l *Loader) ConfigurePaths(prefixes [][]byte) error {
	m, err := l.getMap(mapPathPrefixes)
	if err != nil {
		return err
	}
	for _, p := range prefixes {
		if len(p) > factevent.LPMSizeMax {
			p = p[:factevent.LPMSizeMax]
		}
		key := make([]byte, 4+factevent.LPMSizeMax)
		bitLen := uint32(len(p)) * 8
		key[0] = byte(bitLen)
		key[1] = byte(bitLen >> 8)
		key[2] = byte(bitLen >> 16)
		key[3] = byte(bitLen >> 24)
		copy(key[4:], p)
		if err := m.Put(key, uint8(1)); err != nil {
			return fmt.Errorf("loader: insert path prefix: %w", err)
		}
	}
	return nil
}

// RingBufferMap returns the events ring buffer map for internal/pump to
// wrap in a ringbuf.Reader.
func (l *Loader) RingBufferMap() (*ebpf.Map, error) {
	return l.getMap(mapEvents)
}

// MetricsMap returns the per-hook metrics map for the periodic metrics
// snapshotter.
func (l *Loader) MetricsMap() (*ebpf.Map, error) {
	return l.getMap(mapMetrics)
}

// MonitoredInodesMap returns the monitored-inode set map, exposed so
// operational tooling can seed or inspect the watched set.
func (l *Loader) MonitoredInodesMap() (*ebpf.Map, error) {
	return l.getMap(mapMonitoredInodes)
}

func (l *Loader) getMap(name string) (*ebpf.Map, error) {
	m, ok, err := l.mgr.GetMap(name)
	if err != nil {
		return nil, fmt.Errorf("loader: get map %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("loader: map %s not found in collection", name)
	}
	return m, nil
}

// Detach stops every attached probe and releases the collection. It is
// safe to call more than once and safe to call on a Loader that never
// attached.
func (l *Loader) Detach() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.attached {
		return nil
	}
	err := l.mgr.Stop(manager.CleanAll)
	l.attached = false
	if err != nil {
		return fmt.Errorf("loader: stop manager: %w", err)
	}
	return nil
}
