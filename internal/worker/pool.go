// Package worker provides the shared pool that capability invocations run
// on. Capability functions are the only CPU-bound work in a traversal, so
// they are offloaded here to keep concurrent runs and event delivery from
// stalling each other.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/vk/flowgridgo/internal/capability"
	"github.com/vk/flowgridgo/internal/ctxlog"
)

// DefaultSize is the worker count used when the configuration does not set one.
const DefaultSize = 10

type invocation struct {
	ctx   context.Context
	fn    capability.Func
	state map[string]any
	reply chan outcome
}

type outcome struct {
	state    map[string]any
	duration time.Duration
	err      error
}

// Pool is a fixed-size pool of invocation workers fed from a single channel.
type Pool struct {
	size      int
	tasks     chan *invocation
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a pool with the given worker count and starts its workers.
// A non-positive size falls back to DefaultSize.
func New(ctx context.Context, size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	p := &Pool{
		size:  size,
		tasks: make(chan *invocation),
	}
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting worker pool.", "workers", p.size)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return p
}

// worker is the processing loop for a single concurrent worker.
func (p *Pool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for inv := range p.tasks {
		if inv.ctx.Err() != nil {
			inv.reply <- outcome{err: inv.ctx.Err()}
			continue
		}
		started := time.Now()
		state, err := inv.fn(inv.ctx, inv.state)
		inv.reply <- outcome{state: state, duration: time.Since(started), err: err}
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// Invoke runs fn on the pool with the given state and blocks until it
// finishes, returning the replacement state and the wall-clock duration of
// the call. If ctx is cancelled before a worker picks the task up, Invoke
// returns the context error.
func (p *Pool) Invoke(ctx context.Context, fn capability.Func, state map[string]any) (map[string]any, time.Duration, error) {
	inv := &invocation{
		ctx:   ctx,
		fn:    fn,
		state: state,
		reply: make(chan outcome, 1),
	}

	select {
	case p.tasks <- inv:
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}

	out := <-inv.reply
	return out.state, out.duration, out.err
}

// Close shuts the pool down and waits for in-flight invocations to finish.
// Invoke must not be called after Close.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}
