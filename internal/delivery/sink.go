// Package delivery implements the delivery sink: a bounded queue of
// decoded events, a single streaming gRPC session to the external
// consumer, and capped exponential backoff on reconnect. A full queue
// blocks Enqueue, which suspends the pump's ring-buffer consume loop;
// the ring buffer then fills and the kernel's ringbuffer_full counter
// records the loss at the boundary where it is accounted. This package
// never buffers beyond its bounded queue and never signals the kernel
// to slow down.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/stackrox/fact-agent/internal/factevent"
	"github.com/stackrox/fact-agent/internal/factpb"
)

// Stats is a point-in-time read of the sink's own delivery counters,
// distinct from the kernel-side per-hook metrics in internal/metrics.
// Dropped counts only events abandoned in the queue at shutdown; while
// the sink is running, a slow consumer backs the pump up into the
// kernel ring buffer instead of dropping here.
type Stats struct {
	Sent      uint64
	Dropped   uint64
	Watermark uint64
}

// Options configures a new Sink.
type Options struct {
	// Target is the external consumer's dial address.
	Target string
	// QueueSize bounds the pending-event queue.
	QueueSize int
	// MaxBackoff caps the reconnect backoff interval.
	MaxBackoff time.Duration
	Log        *zap.Logger

	// dialer and newClient are overridden in tests to avoid a real
	// network dial; production callers leave them nil.
	dialer    func(ctx context.Context, target string) (grpcConn, error)
	newClient func(grpc.ClientConnInterface) factpb.FileActivityClient
}

// grpcConn is the subset of *grpc.ClientConn this package needs: enough
// to open a stream and to close the connection on transport failure.
// *grpc.ClientConn satisfies it without adaptation; tests substitute a
// fake that never touches the network.
type grpcConn interface {
	grpc.ClientConnInterface
	Close() error
}

// Sink owns the bounded queue and the single streaming transport
// session. Exactly one goroutine should call Run; Enqueue is safe to
// call concurrently with Run from the pump's goroutine.
type Sink struct {
	target     string
	queue      chan *factevent.Event
	maxBackoff time.Duration
	log        *zap.Logger
	dialer     func(ctx context.Context, target string) (grpcConn, error)
	newClient  func(grpc.ClientConnInterface) factpb.FileActivityClient

	sent      atomic.Uint64
	dropped   atomic.Uint64
	watermark atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
}

const defaultMaxBackoff = 30 * time.Second

// New constructs a Sink. It does not dial; Run establishes the first
// connection.
func New(opts Options) *Sink {
	size := opts.QueueSize
	if size <= 0 {
		size = 4096
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	s := &Sink{
		target:     opts.Target,
		queue:      make(chan *factevent.Event, size),
		maxBackoff: maxBackoff,
		log:        log,
		dialer:     opts.dialer,
		newClient:  opts.newClient,
		closed:     make(chan struct{}),
	}
	if s.dialer == nil {
		s.dialer = dialGRPC
	}
	if s.newClient == nil {
		s.newClient = factpb.NewFileActivityClient
	}
	return s
}

func dialGRPC(ctx context.Context, target string) (grpcConn, error) {
	return grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("factpb")),
	)
}

// Enqueue adds ev to the queue, blocking while the queue is full until
// there is room, ctx is cancelled, or the sink shuts down. Blocking is
// the back-pressure mechanism: the pump sits in this call instead of
// consuming the ring buffer, the buffer fills, and the kernel counts
// the overflow as ringbuffer_full. A non-nil return means shutdown.
func (s *Sink) Enqueue(ctx context.Context, ev *factevent.Event) error {
	select {
	case s.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return fmt.Errorf("delivery: sink closed")
	}
}

// Run drains the queue to the external consumer until ctx is cancelled.
// On any transport failure it closes the session and retries with
// capped exponential backoff; events queued during the outage stay
// queued, and once the queue is full Enqueue blocks, pushing the
// pressure back to the kernel ring buffer. Events still queued when Run
// returns are counted as dropped.
func (s *Sink) Run(ctx context.Context) error {
	defer func() {
		close(s.closed)
		for {
			select {
			case <-s.queue:
				s.dropped.Add(1)
			default:
				return
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		stream, conn, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("delivery: connect: %w", err)
		}

		err = s.drain(ctx, stream)
		_ = conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.Warn("delivery transport failed, reconnecting", zap.Error(err))
			continue
		}
	}
}

// connect dials the consumer and opens the streaming RPC, retrying with
// capped exponential backoff until it succeeds or ctx is done.
func (s *Sink) connect(ctx context.Context) (factpb.FileActivity_StreamEventsClient, grpcConn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = s.maxBackoff
	bo.MaxElapsedTime = 0 // retry indefinitely; only ctx cancellation stops us

	var stream factpb.FileActivity_StreamEventsClient
	var conn grpcConn

	op := func() error {
		c, err := s.dialer(ctx, s.target)
		if err != nil {
			return fmt.Errorf("dial %s: %w", s.target, err)
		}
		st, err := s.newClient(c).StreamEvents(ctx)
		if err != nil {
			_ = c.Close()
			return fmt.Errorf("open stream: %w", err)
		}
		conn, stream = c, st
		return nil
	}

	notify := func(err error, wait time.Duration) {
		s.log.Warn("delivery reconnect attempt failed", zap.Error(err), zap.Duration("backoff", wait))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, nil, err
	}
	return stream, conn, nil
}

// drain ships queued events over stream until it errors or ctx is done.
// A background goroutine reads Acks only to advance the watermark; the
// sink never blocks waiting for one.
func (s *Sink) drain(ctx context.Context, stream factpb.FileActivity_StreamEventsClient) error {
	ackErrCh := make(chan error, 1)
	go func() {
		for {
			ack, err := stream.Recv()
			if err != nil {
				ackErrCh <- err
				return
			}
			s.watermark.Store(ack.Watermark)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-ackErrCh:
			return err
		case ev := <-s.queue:
			if err := stream.Send(eventToPB(ev)); err != nil {
				return fmt.Errorf("send event: %w", err)
			}
			s.sent.Add(1)
		}
	}
}

// Stats returns a snapshot of this sink's own delivery counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Sent:      s.sent.Load(),
		Dropped:   s.dropped.Load(),
		Watermark: s.watermark.Load(),
	}
}

func eventToPB(ev *factevent.Event) *factpb.FileEvent {
	pb := &factpb.FileEvent{
		Timestamp: ev.Timestamp,
		Type:      int32(ev.Type),
		Process: &factpb.ProcessDescriptor{
			Comm:          ev.Process.Comm,
			Args:          ev.Process.Args,
			ExePath:       ev.Process.ExePath,
			MemoryCgroup:  ev.Process.MemoryCgroup,
			UID:           ev.Process.UID,
			GID:           ev.Process.GID,
			LoginUID:      ev.Process.LoginUID,
			PID:           ev.Process.PID,
			InRootMountNS: ev.Process.InRootMountNS,
		},
		InodeKey: &factpb.InodeKey{Inode: ev.Inode.Inode, Dev: ev.Inode.Dev},
		Filename: ev.Filename,
	}
	for _, anc := range ev.Process.Lineage {
		pb.Process.Lineage = append(pb.Process.Lineage, &factpb.LineageEntry{UID: anc.UID, ExePath: anc.ExePath})
	}
	if ev.Chmod != nil {
		pb.Chmod = &factpb.ChmodPayload{OldMode: uint32(ev.Chmod.OldMode), NewMode: uint32(ev.Chmod.NewMode)}
	}
	if ev.Chown != nil {
		pb.Chown = &factpb.ChownPayload{
			OldUID: ev.Chown.OldUID, OldGID: ev.Chown.OldGID,
			NewUID: ev.Chown.NewUID, NewGID: ev.Chown.NewGID,
		}
	}
	return pb
}
