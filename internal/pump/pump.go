// Package pump implements the event pump: a single-threaded
// poll-and-consume loop over the kernel ring buffer that decodes each
// frame and enqueues it to the delivery sink, suspending on ring-buffer
// readiness.
package pump

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cilium/ebpf/ringbuf"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/stackrox/fact-agent/internal/factevent"
)

// Record is an alias for ringbuf.Record, named locally so the rest of
// this package (and its tests) don't need to spell out the cilium/ebpf
// import just to construct one.
type Record = ringbuf.Record

// RawReader abstracts *ringbuf.Reader so this package is unit-testable
// without a running kernel; *ringbuf.Reader satisfies it without
// adaptation.
type RawReader interface {
	Read() (Record, error)
	Close() error
}

// Sink is the delivery sink's inbound contract. Enqueue blocks while
// the downstream queue is full; the pump suspends in that call instead
// of consuming the ring buffer, so a slow consumer shows up as
// kernel-side ringbuffer_full rather than as unbounded buffering here.
// A non-nil error means shutdown.
type Sink interface {
	Enqueue(ctx context.Context, ev *factevent.Event) error
}

// HostPathResolverFunc resolves an inode key to a best-effort path as
// seen from the host's initial mount namespace. Resolution may cross
// mount namespaces and is expensive, which is why Pump memoizes results
// in a bounded LRU cache. A nil resolver leaves Event.Filename as
// produced by the kernel (the canonical, task-relative path).
type HostPathResolverFunc func(factevent.InodeKey) (string, error)

// DecodeStats are the pump-side decode error counts, broken down by
// kind for operator diagnostics only: the external behavior (drop and
// count) is identical for every kind.
type DecodeStats struct {
	ShortHeader  uint64
	FieldBounds  uint64
	InvalidType  uint64
	Unterminated uint64
	Other        uint64
}

// Total sums every decode-error kind, the figure the periodic metrics
// snapshot reports.
func (s DecodeStats) Total() uint64 {
	return s.ShortHeader + s.FieldBounds + s.InvalidType + s.Unterminated + s.Other
}

// Pump owns the ring-buffer read loop.
type Pump struct {
	reader   RawReader
	sink     Sink
	resolver HostPathResolverFunc
	cache    *lru.Cache[factevent.InodeKey, string]
	log      *zap.Logger

	stats struct {
		shortHeader  atomic.Uint64
		fieldBounds  atomic.Uint64
		invalidType  atomic.Uint64
		unterminated atomic.Uint64
		other        atomic.Uint64
	}

	closeOnce sync.Once
	closeErr  error
}

// Options configures a new Pump.
type Options struct {
	Reader            RawReader
	Sink              Sink
	HostPathResolver  HostPathResolverFunc
	HostPathCacheSize int
	Log               *zap.Logger
}

// New constructs a Pump. HostPathCacheSize is clamped to at least 1 if a
// resolver is configured with a non-positive size.
func New(opts Options) (*Pump, error) {
	p := &Pump{
		reader:   opts.Reader,
		sink:     opts.Sink,
		resolver: opts.HostPathResolver,
		log:      opts.Log,
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.resolver != nil {
		size := opts.HostPathCacheSize
		if size <= 0 {
			size = 1
		}
		cache, err := lru.New[factevent.InodeKey, string](size)
		if err != nil {
			return nil, fmt.Errorf("pump: create host-path cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// Run drives the poll-and-consume loop until ctx is cancelled or the
// reader is closed. It returns nil on an ordinary shutdown (ctx
// cancellation or a closed reader) and a non-nil error for any other
// read failure.
func (p *Pump) Run(ctx context.Context) error {
	// Read blocks until the next submission; closing the reader is the
	// only way to interrupt it, so cancellation closes it.
	stop := context.AfterFunc(ctx, func() { _ = p.Close() })
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		rec, err := p.reader.Read()
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ringbuf.ErrClosed) {
				return nil
			}
			return fmt.Errorf("pump: read ring buffer: %w", err)
		}

		ev, err := factevent.Decode(rec.RawSample)
		if err != nil {
			p.countDecodeError(err)
			continue
		}

		if p.resolver != nil && !ev.Inode.IsZero() {
			if hostPath, err := p.hostPath(ev.Inode); err == nil {
				ev.Filename = hostPath
			} else {
				p.log.Debug("host path resolution failed, keeping canonical path",
					zap.String("inode", ev.Inode.String()), zap.Error(err))
			}
		}

		if err := p.sink.Enqueue(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pump: enqueue event: %w", err)
		}
	}
}

// hostPath resolves and memoizes the host-side path for key.
func (p *Pump) hostPath(key factevent.InodeKey) (string, error) {
	if v, ok := p.cache.Get(key); ok {
		return v, nil
	}
	v, err := p.resolver(key)
	if err != nil {
		return "", err
	}
	p.cache.Add(key, v)
	return v, nil
}

func (p *Pump) countDecodeError(err error) {
	var de *factevent.DecodeError
	kind := factevent.DecodeErrorKind("unknown")
	if errors.As(err, &de) {
		kind = de.Kind
	}

	switch kind {
	case factevent.DecodeErrShortHeader:
		p.stats.shortHeader.Add(1)
	case factevent.DecodeErrFieldBounds:
		p.stats.fieldBounds.Add(1)
	case factevent.DecodeErrInvalidType:
		p.stats.invalidType.Add(1)
	case factevent.DecodeErrUnterminated:
		p.stats.unterminated.Add(1)
	default:
		p.stats.other.Add(1)
	}
	p.log.Warn("dropping malformed ring buffer frame",
		zap.String("decode_error", string(kind)), zap.Error(err))
}

// Stats returns a point-in-time snapshot of pump-side decode errors.
func (p *Pump) Stats() DecodeStats {
	return DecodeStats{
		ShortHeader:  p.stats.shortHeader.Load(),
		FieldBounds:  p.stats.fieldBounds.Load(),
		InvalidType:  p.stats.invalidType.Load(),
		Unterminated: p.stats.unterminated.Load(),
		Other:        p.stats.other.Load(),
	}
}

// Close releases the underlying ring-buffer reader. Safe to call more
// than once.
func (p *Pump) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.reader.Close()
	})
	return p.closeErr
}
