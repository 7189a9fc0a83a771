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

package main

import (
	"context"
	"os/signal"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/eventum-io/eventum/core"
	"github.com/eventum-io/eventum/event"
	"github.com/eventum-io/eventum/input"
	"github.com/eventum-io/eventum/logging"
	"github.com/eventum-io/eventum/output"
	"github.com/eventum-io/eventum/state"
)

type coordinatorState byte

const (
	coordinatorStateConfigure coordinatorState = iota
	coordinatorStateRunning
	coordinatorStateShutdown
	coordinatorStateStopped
)

// producerSnapshot is the static (configuration-time) half of one
// InputPluginSnapshot; the dynamic half (none, currently, for inputs)
// would be merged in here too.
type producerSnapshot struct {
	Name          string
	ID            string
	Configuration map[string]interface{}
	Created       time.Time
}

// Coordinator owns one generator run end-to-end (spec.md §5 "Scheduling
// model"): a producer-pull thread, a renderer thread and an output
// event-loop task, joined cleanly on shutdown. Grounded on gollum's
// root-level Coordinator — the state machine and ordered start/stop
// shape survive, reworked from gollum's n:m consumer/producer pool onto
// this package's three-stage pipeline.
type Coordinator struct {
	id     string
	log    *logging.Entry
	state  coordinatorState
	stateMu sync.Mutex

	source      input.BatchSource
	renderer    event.Plugin
	fanout      *output.Fanout
	globalStore *state.GlobalStore

	tags            map[core.ProducerID][]string
	producerInfo    []producerSnapshot
	eventInfo       producerSnapshot
	outputInfo      []producerSnapshot

	metrics         *core.Metrics
	metricsInterval time.Duration
	params          core.GeneratorParams

	queueSize int
	readSize  int

	wg sync.WaitGroup
}

// NewCoordinator assembles a Coordinator from already-constructed
// pipeline stages; main.go is responsible for plugin-registry wiring
// and hands the finished pieces in here.
func NewCoordinator(params core.GeneratorParams, source input.BatchSource, tags map[core.ProducerID][]string,
	renderer event.Plugin, fanout *output.Fanout, globalStore *state.GlobalStore, metrics *core.Metrics) *Coordinator {

	readSize := params.Batch.Size
	if readSize <= 0 {
		readSize = 256
	}

	return &Coordinator{
		id:              params.ID,
		log:             logging.ForGenerator(params.ID),
		state:           coordinatorStateConfigure,
		source:          source,
		renderer:        renderer,
		fanout:          fanout,
		globalStore:     globalStore,
		tags:            tags,
		metrics:         metrics,
		metricsInterval: params.MetricsInterval,
		params:          params,
		queueSize:       maxInt(params.Queue.MaxBatches, 1),
		readSize:        readSize,
	}
}

// SetProducerInfo records the static per-producer snapshot metadata
// gathered at configuration time (spec.md §6 metrics shape, `input[]`).
func (co *Coordinator) SetProducerInfo(info []producerSnapshot) { co.producerInfo = info }

// SetEventInfo records the static event-plugin snapshot metadata.
func (co *Coordinator) SetEventInfo(info producerSnapshot) { co.eventInfo = info }

// SetOutputInfo records the static per-sink snapshot metadata.
func (co *Coordinator) SetOutputInfo(info []producerSnapshot) { co.outputInfo = info }

// Run drives the generator to completion: it starts the three pipeline
// stages and returns either when the input stream is exhausted or when
// SIGINT/SIGTERM arrives.
func (co *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigc := newSignalHandler()
	defer signal.Stop(sigc)

	co.log.Info("starting generator")
	co.setState(coordinatorStateRunning)

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil && co.log != nil {
		co.log.WithError(err).Debug("systemd readiness notification failed")
	} else if ok {
		co.log.Debug("notified systemd readiness")
	}

	pipelineErr := make(chan error, 1)
	go func() {
		pipelineErr <- co.runPipeline(ctx)
	}()

	var runErr error
	select {
	case <-sigc:
		co.log.Info("stop signal received, draining pipeline")
		cancel()
		runErr = <-pipelineErr
	case runErr = <-pipelineErr:
	}

	co.Shutdown()
	return runErr
}

// runPipeline wires the three stages together: a producer-pull thread
// feeding a bounded producer-to-renderer queue, a renderer thread
// feeding a bounded renderer-to-output queue, and an output event loop
// fed directly from that second queue (spec.md §5).
func (co *Coordinator) runPipeline(ctx context.Context) error {
	batches, sourceErr := co.source.Generate(ctx, co.readSize, co.params.SkipPast)

	queued := make(chan core.TimestampBatch, co.queueSize)
	go func() {
		defer close(queued)
		for batch := range batches {
			select {
			case queued <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	rendered := make(chan core.EventBatch, co.queueSize)
	var renderWG sync.WaitGroup
	renderWG.Add(1)
	go func() {
		defer renderWG.Done()
		defer close(rendered)
		co.renderStage(ctx, queued, rendered)
	}()

	co.wg.Add(1)
	defer co.wg.Done()
	co.outputStage(ctx, rendered)

	renderWG.Wait()

	select {
	case err, ok := <-sourceErr:
		if ok && err != nil {
			return err
		}
	default:
	}
	return nil
}

// renderStage is the dedicated renderer thread (spec.md §5): for each
// incoming batch, render every timestamp in order and forward the
// concatenated event batch downstream. A render failure drops every
// event of the failing timestamp (Render returns none for it); events
// rendered for the batch's other timestamps, including those of the
// failing template, are still forwarded, and subsequent batches
// continue.
func (co *Coordinator) renderStage(ctx context.Context, in <-chan core.TimestampBatch, out chan<- core.EventBatch) {
	for {
		select {
		case batch, ok := <-in:
			if !ok {
				return
			}
			events := make(core.EventBatch, 0, len(batch))
			for _, it := range batch {
				rendered, err := co.renderer.Render(it.Timestamp, co.tags[it.ProducerID])
				if err != nil {
					if co.metrics != nil {
						co.metrics.EventProduceFailed(co.eventInfo.ID)
					}
					if co.log != nil {
						logging.WithContext(co.log, map[string]interface{}{
							"producer_id": it.ProducerID,
						}).WithError(err).Warn("render failed for timestamp")
					}
					continue
				}
				if co.metrics != nil {
					for range rendered {
						co.metrics.EventProduced(co.eventInfo.ID)
					}
				}
				events = append(events, rendered...)
			}
			if len(events) == 0 {
				continue
			}
			select {
			case out <- events:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// outputStage is the output event-loop task (spec.md §5): it drains the
// renderer-to-output queue and dispatches each batch to every sink
// through the fan-out controller.
func (co *Coordinator) outputStage(ctx context.Context, in <-chan core.EventBatch) {
	for {
		select {
		case events, ok := <-in:
			if !ok {
				return
			}
			co.fanout.Dispatch(ctx, events, len(events))
		case <-ctx.Done():
			// Drain whatever the renderer already queued before giving up,
			// honoring the renderer-to-output queue's bounded capacity
			// rather than discarding work that already left the renderer.
			for {
				select {
				case events, ok := <-in:
					if !ok {
						return
					}
					co.fanout.Dispatch(context.Background(), events, len(events))
				default:
					return
				}
			}
		}
	}
}

// Snapshot builds the §6 metrics JSON shape from live counter values and
// the state scopes' current sizes.
func (co *Coordinator) Snapshot() core.Snapshot {
	var snap core.Snapshot
	snap.Common.Started = co.metrics.Started()
	snap.Common.Parameters = co.params.Params

	for _, p := range co.producerInfo {
		snap.Plugins.Input = append(snap.Plugins.Input, core.InputPluginSnapshot{
			Name: p.Name, ID: p.ID, Configuration: p.Configuration, Created: p.Created,
		})
	}

	locals := co.renderer.LocalStates()
	localCount := 0
	for _, m := range locals {
		localCount += len(m)
	}
	snap.Plugins.Event = core.EventPluginSnapshot{
		Name:          co.eventInfo.Name,
		ID:            co.eventInfo.ID,
		Configuration: co.eventInfo.Configuration,
		Produced:      co.metrics.ProducedValue(co.eventInfo.ID),
		ProduceFailed: co.metrics.ProduceFailedValue(co.eventInfo.ID),
		State: core.EventPluginState{
			Locals:  localCount,
			Shared:  len(co.renderer.SharedState()),
			Globals: co.globalStoreSize(),
		},
	}

	for _, p := range co.outputInfo {
		snap.Plugins.Output = append(snap.Plugins.Output, core.OutputPluginSnapshot{
			Name:          p.Name,
			ID:            p.ID,
			Configuration: p.Configuration,
			Written:       co.metrics.WrittenValue(p.ID),
			WriteFailed:   co.metrics.WriteFailedValue(p.ID),
			FormatFailed:  co.metrics.FormatFailedValue(p.ID),
		})
	}

	return snap
}

func (co *Coordinator) globalStoreSize() int {
	if co.globalStore == nil {
		return 0
	}
	return len(co.globalStore.AsMap())
}

func (co *Coordinator) setState(s coordinatorState) {
	co.stateMu.Lock()
	defer co.stateMu.Unlock()
	co.state = s
}

// Shutdown waits for the pipeline goroutines this Coordinator launched
// to finish, bounded by a fixed grace period, then closes the global
// state handle. Producers and the renderer already observed ctx
// cancellation in Run; this just joins what's left (spec.md §5
// "the controller joins all threads before exiting").
func (co *Coordinator) Shutdown() {
	co.setState(coordinatorStateShutdown)

	joined := make(chan struct{})
	go func() {
		co.wg.Wait()
		close(joined)
	}()

	select {
	case <-joined:
	case <-time.After(30 * time.Second):
		co.log.Warn("output stage did not finish within the shutdown grace period")
	}

	co.fanout.Close()
	if co.globalStore != nil {
		if err := co.globalStore.Close(); err != nil {
			co.log.WithError(err).Warn("failed to close global state region")
		}
	}

	daemon.SdNotify(false, daemon.SdNotifyStopping)
	co.setState(coordinatorStateStopped)
	co.log.Info("generator stopped")
}
