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

// Command eventum runs one generator: it reads a YAML configuration
// file, wires up the configured input producers, event plugin and
// output sinks through the shared plugin registry, and drives them
// through the Coordinator until the input stream ends or the process
// receives SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/eventum-io/eventum/core"
	"github.com/eventum-io/eventum/event"
	"github.com/eventum-io/eventum/input"
	"github.com/eventum-io/eventum/logging"
	"github.com/eventum-io/eventum/output"
	"github.com/eventum-io/eventum/plugin"
	"github.com/eventum-io/eventum/state"
)

func main() {
	flag.Parse()

	if level, err := logrus.ParseLevel(*flagLoglevel); err == nil {
		logging.SetLevel(level)
	}

	if *flagConfigFile == "" {
		flag.Usage()
		os.Exit(core.KindConfiguration.ExitCode())
	}

	cfg, err := loadGeneratorConfig(*flagConfigFile, flagParams)
	if err != nil {
		os.Exit(fail(logging.ForGenerator("startup"), "failed to load configuration", err))
	}

	log := logging.ForGenerator(cfg.Params.ID)

	globalStore, err := state.NewGlobalStore("")
	if err != nil {
		os.Exit(fail(log, "failed to open global state region", err))
	}

	metrics := core.NewMetrics()

	producers, tags, producerInfo, err := buildProducers(cfg.Input, cfg.Params)
	if err != nil {
		os.Exit(fail(log, "failed to build input producers", err))
	}

	var source input.Source
	if len(producers) == 1 {
		source = &input.SingleProducerAdapter{ID: 0, Prod: producers[0]}
	} else {
		merger := input.NewMerger(producers)
		merger.SetLogger(log)
		source = merger
	}

	batcher := input.NewBatcher(source, cfg.Params.Batch.Size, cfg.Params.Batch.Delay)
	var batchSource input.BatchSource = batcher
	if cfg.Params.TimeMode == core.TimeModeLive {
		batchSource = input.NewScheduler(batcher, cfg.Params.Timezone)
	}

	renderer, eventInfo, err := buildRenderer(cfg.Event, cfg.Params, globalStore)
	if err != nil {
		os.Exit(fail(log, "failed to build event plugin", err))
	}

	sinks, outputInfo, err := buildSinks(cfg.Output, metrics)
	if err != nil {
		os.Exit(fail(log, "failed to build output sinks", err))
	}

	fanout := output.NewFanout(sinks, cfg.Params.KeepOrder, cfg.Params.MaxConcurrency)
	fanout.SetLogger(log)

	co := NewCoordinator(cfg.Params, batchSource, tags, renderer, fanout, globalStore, metrics)
	co.SetProducerInfo(producerInfo)
	co.SetEventInfo(eventInfo)
	co.SetOutputInfo(outputInfo)

	var ms *metricsServer
	if *flagMetricsPort > 0 {
		ms = startMetricsServer(*flagMetricsPort, co)
	}

	runErr := co.Run(context.Background())

	if ms != nil {
		ms.Stop()
	}

	if runErr != nil {
		os.Exit(fail(log, "generator exited with an error", runErr))
	}
}

// fail logs err with its taxonomy context and returns the exit code
// spec.md §6 maps that taxonomy branch onto.
func fail(log *logging.Entry, msg string, err error) int {
	kind := core.KindUnexpected
	if tagged, ok := err.(*core.Error); ok {
		kind = tagged.Kind()
		log = logging.WithContext(log, tagged.Context())
	}
	log.WithError(err).Error(msg)
	return kind.ExitCode()
}

// buildProducers constructs one input.Producer per configured entry
// through the plugin registry, assigning each the dense [0,N) id
// spec.md §3 requires and collecting its declared tags.
func buildProducers(configs []core.ProducerConfig, gen core.GeneratorParams) ([]input.Producer, map[core.ProducerID][]string, []producerSnapshot, error) {
	producers := make([]input.Producer, 0, len(configs))
	tags := make(map[core.ProducerID][]string, len(configs))
	info := make([]producerSnapshot, 0, len(configs))

	for i, cfg := range configs {
		kind := cfg.Kind()
		settings := cfg.Settings()
		r := core.NewConfigReader(settings)
		id := r.GetString("id", fmt.Sprintf("%s-%d", kind, i))

		instance, err := plugin.New("input", kind, id, settings, input.Params{
			ID:       core.ProducerID(i),
			Timezone: gen.Timezone,
		})
		if err != nil {
			return nil, nil, nil, core.Wrap(core.KindConfiguration, err, core.Context{"plugin": kind, "id": id})
		}
		producer, ok := instance.(input.Producer)
		if !ok {
			return nil, nil, nil, core.NewError(core.KindConfiguration, core.Context{
				"plugin": kind, "id": id, "reason": "registered input plugin does not implement input.Producer",
			})
		}

		producers = append(producers, producer)
		tags[core.ProducerID(i)] = r.GetStringArray("tags", nil)
		info = append(info, producerSnapshot{Name: kind, ID: id, Configuration: settings, Created: time.Now()})
	}
	return producers, tags, info, nil
}

// buildRenderer constructs the generator's single event plugin — either
// the "jinja" template renderer or the "script" subprocess plugin, both
// satisfying event.Plugin.
func buildRenderer(cfg core.EventConfig, gen core.GeneratorParams, globalStore *state.GlobalStore) (event.Plugin, producerSnapshot, error) {
	kind := cfg.Kind()
	settings := cfg.Settings()

	instance, err := plugin.New("event", kind, gen.ID, settings, event.Params{
		GeneratorID: gen.ID,
		GlobalState: globalStore,
	})
	if err != nil {
		return nil, producerSnapshot{}, core.Wrap(core.KindConfiguration, err, core.Context{"plugin": kind})
	}
	renderer, ok := instance.(event.Plugin)
	if !ok {
		return nil, producerSnapshot{}, core.NewError(core.KindConfiguration, core.Context{
			"plugin": kind, "reason": "registered event plugin does not implement event.Plugin",
		})
	}

	info := producerSnapshot{Name: kind, ID: gen.ID, Configuration: settings, Created: time.Now()}
	return renderer, info, nil
}

// buildSinks constructs one output.Sink per configured entry.
func buildSinks(configs []core.OutputConfig, metrics *core.Metrics) ([]output.Sink, []producerSnapshot, error) {
	sinks := make([]output.Sink, 0, len(configs))
	info := make([]producerSnapshot, 0, len(configs))

	for i, cfg := range configs {
		kind := cfg.Kind()
		settings := cfg.Settings()
		r := core.NewConfigReader(settings)
		id := r.GetString("id", fmt.Sprintf("%s-%d", kind, i))

		instance, err := plugin.New("output", kind, id, settings, output.Params{ID: id, Metrics: metrics})
		if err != nil {
			return nil, nil, core.Wrap(core.KindConfiguration, err, core.Context{"plugin": kind, "id": id})
		}
		sink, ok := instance.(output.Sink)
		if !ok {
			return nil, nil, core.NewError(core.KindConfiguration, core.Context{
				"plugin": kind, "id": id, "reason": "registered output plugin does not implement output.Sink",
			})
		}

		sinks = append(sinks, sink)
		info = append(info, producerSnapshot{Name: kind, ID: id, Configuration: settings, Created: time.Now()})
	}
	return sinks, info, nil
}
