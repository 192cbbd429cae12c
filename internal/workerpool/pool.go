// Package workerpool fans decode work for one packet type out across a
// fixed number of workers, strict round-robin, each worker bound to its
// own FIFO job queue and its own decoder.Decoder instance so workers never
// share state. The teacher decodes CAN frames on a single goroutine per
// connection with no worker pool of its own; this package's per-worker
// goroutine plus FIFO channel is the same one-goroutine-per-sink shape the
// teacher's internal/hub uses for its per-client Out channel, applied here
// to a pool of decode workers instead of a set of broadcast subscribers,
// with golang.org/x/sync/errgroup coordinating shutdown across all of them.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-ampio-server/internal/decoder"
	"github.com/kstaniek/go-ampio-server/internal/metrics"
	"github.com/kstaniek/go-ampio-server/internal/packet"
)

// Result is emitted on a WorkerPool's output channel; exactly one of
// Record or Err is meaningful, discriminated by Err == nil.
type Result[T decoder.Record] struct {
	Record T
	Err    error
	Type   packet.Type
}

// WorkerPool dispatches decode jobs for one packet type across N workers.
// Per spec.md 4.5, dispatch is strict round-robin (the (i+1) mod N cursor
// advances once per Enqueue call) and the output channel preserves
// per-worker order but not global enqueue order.
type WorkerPool[T decoder.Record] struct {
	typeName string
	jobs     []chan []byte
	out      chan Result[T]
	next     int
	group    *errgroup.Group
	cancel   context.CancelFunc
}

// New builds a WorkerPool of n workers for packet type t. newDecoder is
// called once per worker so each gets its own Decoder[T] instance with no
// shared mutable state. queueDepth bounds each worker's FIFO job queue.
func New[T decoder.Record](ctx context.Context, n, queueDepth int, t packet.Type, newDecoder func() *decoder.Decoder[T]) *WorkerPool[T] {
	if n < 1 {
		n = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)
	p := &WorkerPool[T]{
		typeName: t.String(),
		jobs:     make([]chan []byte, n),
		out:      make(chan Result[T], queueDepth*n),
		group:    group,
		cancel:   cancel,
	}
	for i := 0; i < n; i++ {
		jobs := make(chan []byte, queueDepth)
		p.jobs[i] = jobs
		dec := newDecoder()
		group.Go(func() error {
			p.runWorker(gctx, dec, jobs)
			return nil
		})
	}
	return p
}

func (p *WorkerPool[T]) runWorker(ctx context.Context, dec *decoder.Decoder[T], jobs <-chan []byte) {
	for {
		select {
		case view, ok := <-jobs:
			if !ok {
				return
			}
			rec, err := dec.Decode(view)
			if err != nil {
				metrics.IncDecodeError(p.typeName, classify(err))
				p.out <- Result[T]{Err: err, Type: dec.ExpectedType()}
				continue
			}
			metrics.IncDecoded(p.typeName)
			p.out <- Result[T]{Record: rec, Type: dec.ExpectedType()}
		case <-ctx.Done():
			return
		}
	}
}

// Enqueue dispatches view to the next worker in strict round-robin order.
// It blocks if that worker's queue is full, which is the pool's only
// suspension point and the mechanism by which decode back-pressure
// propagates to the framer.
func (p *WorkerPool[T]) Enqueue(view []byte) {
	w := p.jobs[p.next]
	p.next = (p.next + 1) % len(p.jobs)
	w <- view
	metrics.SetWorkerQueueDepth(p.typeName, len(w))
}

// Output returns the pool's single output channel.
func (p *WorkerPool[T]) Output() <-chan Result[T] { return p.out }

// Close stops accepting new work, drains every worker's pending queue, and
// waits for all workers to exit before closing the output channel. This is
// the "wait for drain" cancellation path of spec.md 5.
func (p *WorkerPool[T]) Close() {
	for _, j := range p.jobs {
		close(j)
	}
	_ = p.group.Wait()
	close(p.out)
}

// Cancel hard-stops all workers without draining pending jobs: the
// "cancel in-flight and discard" alternative cancellation path of spec.md
// 5, used when a device disconnects abruptly.
func (p *WorkerPool[T]) Cancel() {
	p.cancel()
	_ = p.group.Wait()
	close(p.out)
}
