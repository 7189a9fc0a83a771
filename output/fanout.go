// Copyright 2015 trivago GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package output

import (
	"context"
	"sync"

	"github.com/eventum-io/eventum/logging"
)

// Fanout dispatches every event batch to every configured sink (spec.md
// §4.6 "For each event batch, every sink attempts to format and
// write."), grounded on gollum's DistributorBase
// (core/distributor.go) fan-out-to-every-registered-producer shape,
// adapted from message-at-a-time distribution to per-batch sink
// dispatch, plus the ordering/concurrency policy from spec.md §5: each
// sink runs its own single-worker queue, so it always observes batches
// in the order they leave the renderer even when keep_order is false
// and Dispatch does not wait for it.
type Fanout struct {
	keepOrder bool
	sem       chan struct{}
	log       *logging.Entry

	workers []*sinkWorker
}

// sinkWorker's queue is an unbounded slice behind a mutex rather than a
// fixed-capacity channel: spec.md §5 requires that with keep_order=false
// "a sink may fall behind without blocking the others," so enqueueing a
// batch for one sink must never be able to block on that sink's backlog
// — only on memory. A single goroutine drains the queue in FIFO order,
// so the sink still observes every batch in submission order.
type sinkWorker struct {
	sink Sink
	sem  chan struct{}
	log  *logging.Entry

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []fanoutJob
	closed bool
}

type fanoutJob struct {
	ctx       context.Context
	events    []string
	batchSize int
	done      chan struct{} // non-nil only when the caller awaits completion (keep_order)
}

// NewFanout builds a fan-out controller over the given sinks.
// maxConcurrency <= 0 means unbounded in-flight writes across all sinks.
func NewFanout(sinks []Sink, keepOrder bool, maxConcurrency int) *Fanout {
	f := &Fanout{keepOrder: keepOrder}
	if maxConcurrency > 0 {
		f.sem = make(chan struct{}, maxConcurrency)
	}

	f.workers = make([]*sinkWorker, len(sinks))
	for i, sink := range sinks {
		w := &sinkWorker{sink: sink, sem: f.sem}
		w.cond = sync.NewCond(&w.mu)
		f.workers[i] = w
		go w.run()
	}
	return f
}

// SetLogger attaches a scoped logger used to report sink failures, and
// propagates it to every already-running sink worker.
func (f *Fanout) SetLogger(log *logging.Entry) {
	f.log = log
	for _, w := range f.workers {
		w.log = log
	}
}

// enqueue appends job to the worker's queue and wakes its drain
// goroutine. Never blocks on the sink's own backlog.
func (w *sinkWorker) enqueue(job fanoutJob) {
	w.mu.Lock()
	w.queue = append(w.queue, job)
	w.mu.Unlock()
	w.cond.Signal()
}

func (w *sinkWorker) run() {
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 && w.closed {
			w.mu.Unlock()
			return
		}
		job := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.process(job)
	}
}

func (w *sinkWorker) process(job fanoutJob) {
	if w.sem != nil {
		select {
		case w.sem <- struct{}{}:
		case <-job.ctx.Done():
			if job.done != nil {
				close(job.done)
			}
			return
		}
	}

	err := w.sink.Write(job.ctx, job.events, job.batchSize)

	if w.sem != nil {
		<-w.sem
	}
	if err != nil && w.log != nil {
		logging.WithContext(w.log, map[string]interface{}{
			"sink": w.sink.ID(),
		}).WithError(err).Warn("output sink failed to write batch")
	}
	if job.done != nil {
		close(job.done)
	}
}

// Dispatch hands one batch to every sink's queue (spec.md §5 ordering
// policy). Enqueueing never blocks on a sink's own backlog, so a sink
// that fell behind can never gate delivery to any other sink. With
// keep_order, Dispatch blocks until every sink has finished this batch
// before returning, linearizing batch k before batch k+1 end-to-end;
// otherwise it returns immediately once every sink has the batch queued,
// each sink's own worker still draining its queue in submission order.
func (f *Fanout) Dispatch(ctx context.Context, events []string, batchSize int) {
	if !f.keepOrder {
		for _, w := range f.workers {
			w.enqueue(fanoutJob{ctx: ctx, events: events, batchSize: batchSize})
		}
		return
	}

	dones := make([]chan struct{}, len(f.workers))
	for i, w := range f.workers {
		done := make(chan struct{})
		dones[i] = done
		w.enqueue(fanoutJob{ctx: ctx, events: events, batchSize: batchSize, done: done})
	}

	for _, done := range dones {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
}

// Close stops every sink worker once its queue has drained. Callers
// must not call Dispatch after Close.
func (f *Fanout) Close() {
	for _, w := range f.workers {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		w.cond.Signal()
	}
}
