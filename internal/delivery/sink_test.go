package delivery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/stackrox/fact-agent/internal/factevent"
	"github.com/stackrox/fact-agent/internal/factpb"
)

// fakeStream is a minimal grpc.ClientStream fake that records every
// FileEvent sent to it and never sends an Ack, exercising the "sink
// never blocks on acks" property without a real transport.
type fakeStream struct {
	mu   sync.Mutex
	sent []*factpb.FileEvent
	done chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{done: make(chan struct{})}
}

func (s *fakeStream) Header() (metadata.MD, error) { return nil, nil }
func (s *fakeStream) Trailer() metadata.MD         { return nil }
func (s *fakeStream) CloseSend() error             { return nil }
func (s *fakeStream) Context() context.Context     { return context.Background() }

func (s *fakeStream) SendMsg(m interface{}) error {
	ev, ok := m.(*factpb.FileEvent)
	if !ok {
		return fmt.Errorf("unexpected message type %T", m)
	}
	s.mu.Lock()
	s.sent = append(s.sent, ev)
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) RecvMsg(m interface{}) error {
	<-s.done // never produces an Ack; blocks until the test closes it
	return context.Canceled
}

func (s *fakeStream) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// fakeConn hands out one fakeStream per NewStream call and records
// whether it was closed.
type fakeConn struct {
	mu      sync.Mutex
	streams []*fakeStream
	closed  bool
	failN   int // number of dial/open attempts to fail before succeeding
}

func (c *fakeConn) Invoke(context.Context, string, interface{}, interface{}, ...grpc.CallOption) error {
	return fmt.Errorf("Invoke not used by this service")
}

func (c *fakeConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := newFakeStream()
	c.streams = append(c.streams, st)
	return st, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) lastStream() *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.streams) == 0 {
		return nil
	}
	return c.streams[len(c.streams)-1]
}

func newSinkWithFakeConn(t *testing.T, conn *fakeConn) *Sink {
	t.Helper()
	var calls int
	return New(Options{
		Target:    "test:0",
		QueueSize: 8,
		dialer: func(ctx context.Context, target string) (grpcConn, error) {
			calls++
			if calls <= conn.failN {
				return nil, fmt.Errorf("simulated dial failure %d", calls)
			}
			return conn, nil
		},
		newClient: func(cc grpc.ClientConnInterface) factpb.FileActivityClient {
			return factpb.NewFileActivityClient(cc)
		},
	})
}

func TestSinkDeliversQueuedEvents(t *testing.T) {
	conn := &fakeConn{}
	s := newSinkWithFakeConn(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, s.Enqueue(ctx, &factevent.Event{Process: factevent.Process{Comm: "cat"}, Filename: "/etc/hosts"}))

	require.Eventually(t, func() bool {
		return conn.lastStream() != nil && conn.lastStream().count() == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

// TestSinkEnqueueBlocksWhenFull covers the back-pressure contract: a
// full queue parks the caller rather than dropping, so the pump stops
// consuming the ring buffer and the kernel absorbs the overflow.
func TestSinkEnqueueBlocksWhenFull(t *testing.T) {
	s := New(Options{Target: "test:0", QueueSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Enqueue(ctx, &factevent.Event{Filename: "/a"}))

	done := make(chan error, 1)
	go func() { done <- s.Enqueue(ctx, &factevent.Event{Filename: "/b"}) }()

	select {
	case err := <-done:
		t.Fatalf("Enqueue returned %v while the queue was full", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, uint64(0), s.Stats().Dropped)
}

// TestSinkCountsUndeliveredOnShutdown verifies that events still queued
// when Run returns are accounted as dropped, the only drop path the
// sink itself owns.
func TestSinkCountsUndeliveredOnShutdown(t *testing.T) {
	s := New(Options{
		Target:    "test:0",
		QueueSize: 4,
		dialer: func(ctx context.Context, target string) (grpcConn, error) {
			// Never actually connect, so nothing drains the queue.
			<-ctx.Done()
			return nil, ctx.Err()
		},
		newClient: func(cc grpc.ClientConnInterface) factpb.FileActivityClient {
			return factpb.NewFileActivityClient(cc)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Enqueue(ctx, &factevent.Event{Filename: "/a"}))
	require.NoError(t, s.Enqueue(ctx, &factevent.Event{Filename: "/b"}))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, uint64(2), s.Stats().Dropped)
}

func TestSinkReconnectsAfterDialFailure(t *testing.T) {
	conn := &fakeConn{failN: 2}
	s := newSinkWithFakeConn(t, conn)
	s.maxBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, s.Enqueue(ctx, &factevent.Event{Filename: "/etc/hosts"}))

	require.Eventually(t, func() bool {
		return conn.lastStream() != nil && conn.lastStream().count() == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestEventToPBCarriesLineageAndPayloads(t *testing.T) {
	ev := &factevent.Event{
		Timestamp: 1,
		Type:      factevent.TypeChown,
		Process: factevent.Process{
			Comm: "chown",
			Lineage: []factevent.LineageEntry{
				{UID: 0, ExePath: "/sbin/init"},
			},
		},
		Inode:    factevent.InodeKey{Inode: 1, Dev: 1},
		Filename: "/tmp/f",
		Chown:    &factevent.ChownPayload{OldUID: 0, OldGID: 0, NewUID: 1000, NewGID: 1000},
	}

	pb := eventToPB(ev)
	require.Len(t, pb.Process.Lineage, 1)
	assert.Equal(t, "/sbin/init", pb.Process.Lineage[0].ExePath)
	require.NotNil(t, pb.Chown)
	assert.Equal(t, uint32(1000), pb.Chown.NewUID)
}
