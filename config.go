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
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/eventum-io/eventum/core"
)

// tokenPattern matches the two substitution forms spec.md §6 describes:
// ${params.NAME} and ${secrets.NAME}. Substitution runs on the raw file
// text before it is handed to the YAML parser, so params/secrets can
// never reference each other or the document being built.
var tokenPattern = regexp.MustCompile(`\$\{(params|secrets)\.([A-Za-z0-9_]+)\}`)

// generatorDocument is the on-disk shape of one generator's YAML config
// (spec.md §6 "Generator configuration").
type generatorDocument struct {
	ID              string                   `yaml:"id"`
	Path            string                   `yaml:"path"`
	TimeMode        string                   `yaml:"time_mode"`
	Timezone        string                   `yaml:"timezone"`
	Params          map[string]interface{}   `yaml:"params"`
	Batch           batchDocument            `yaml:"batch"`
	Queue           queueDocument            `yaml:"queue"`
	KeepOrder       bool                     `yaml:"keep_order"`
	MaxConcurrency  int                      `yaml:"max_concurrency"`
	SkipPast        bool                     `yaml:"skip_past"`
	MetricsInterval float64                  `yaml:"metrics_interval"`
	Input           []map[string]interface{} `yaml:"input"`
	Event           map[string]interface{}   `yaml:"event"`
	Output          []map[string]interface{} `yaml:"output"`
}

type batchDocument struct {
	Size  int     `yaml:"size"`
	Delay float64 `yaml:"delay"`
}

type queueDocument struct {
	MaxBatches int `yaml:"max_batches"`
}

// loadedConfig is the validated, typed result of reading one generator's
// configuration file.
type loadedConfig struct {
	Params core.GeneratorParams
	Input  []core.ProducerConfig
	Event  core.EventConfig
	Output []core.OutputConfig
}

// loadGeneratorConfig reads path, substitutes ${params.*}/${secrets.*}
// tokens (params from paramOverrides, secrets from the environment,
// prefixed EVENTUM_SECRET_), parses the result as YAML, and validates
// the top-level structure: a non-empty id, at least one input, an event
// plugin, at least one output, a known timezone and time_mode, and at
// least one of batch size or delay. Plugin settings (picking mode and
// the like) are not checked here.
func loadGeneratorConfig(path string, paramOverrides map[string]string) (*loadedConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, core.Wrap(core.KindConfiguration, err, core.Context{"path": path})
	}

	substituted := tokenPattern.ReplaceAllStringFunc(string(raw), func(token string) string {
		m := tokenPattern.FindStringSubmatch(token)
		kind, name := m[1], m[2]
		if kind == "params" {
			if v, ok := paramOverrides[name]; ok {
				return v
			}
			return token
		}
		if v, ok := os.LookupEnv("EVENTUM_SECRET_" + name); ok {
			return v
		}
		return token
	})

	var doc generatorDocument
	if err := yaml.Unmarshal([]byte(substituted), &doc); err != nil {
		return nil, core.Wrap(core.KindConfiguration, err, core.Context{"path": path})
	}
	eventDeclared := len(doc.Event) > 0
	doc.Params = normalizeYAMLMap(doc.Params)
	doc.Event = normalizeYAMLMap(doc.Event)
	for i, m := range doc.Input {
		doc.Input[i] = normalizeYAMLMap(m)
	}
	for i, m := range doc.Output {
		doc.Output[i] = normalizeYAMLMap(m)
	}

	if doc.ID == "" {
		return nil, core.NewError(core.KindConfiguration, core.Context{"path": path, "reason": "id is required"})
	}
	if len(doc.Input) == 0 {
		return nil, core.NewError(core.KindConfiguration, core.Context{"path": path, "reason": "input must declare at least one producer"})
	}
	if !eventDeclared {
		return nil, core.NewError(core.KindConfiguration, core.Context{"path": path, "reason": "event is required"})
	}
	if len(doc.Output) == 0 {
		return nil, core.NewError(core.KindConfiguration, core.Context{"path": path, "reason": "output must declare at least one sink"})
	}

	tz := time.UTC
	if doc.Timezone != "" {
		loc, err := time.LoadLocation(doc.Timezone)
		if err != nil {
			return nil, core.Wrap(core.KindConfiguration, err, core.Context{"path": path, "timezone": doc.Timezone})
		}
		tz = loc
	}

	timeMode := core.TimeModeSample
	switch core.TimeMode(doc.TimeMode) {
	case core.TimeModeLive:
		timeMode = core.TimeModeLive
	case core.TimeModeSample, "":
		timeMode = core.TimeModeSample
	default:
		return nil, core.NewError(core.KindConfiguration, core.Context{
			"path": path, "reason": fmt.Sprintf("unknown time_mode %q", doc.TimeMode),
		})
	}

	metricsInterval := time.Duration(doc.MetricsInterval * float64(time.Second))
	if metricsInterval <= 0 {
		metricsInterval = 10 * time.Second
	}

	params := core.GeneratorParams{
		ID:       doc.ID,
		Path:     doc.Path,
		TimeMode: timeMode,
		Timezone: tz,
		Params:   doc.Params,
		Batch: core.BatchParams{
			Size:  doc.Batch.Size,
			Delay: time.Duration(doc.Batch.Delay * float64(time.Second)),
		},
		Queue:           core.QueueParams{MaxBatches: maxInt(doc.Queue.MaxBatches, 1)},
		KeepOrder:       doc.KeepOrder,
		MaxConcurrency:  doc.MaxConcurrency,
		SkipPast:        doc.SkipPast,
		MetricsInterval: metricsInterval,
	}
	if params.Batch.Size <= 0 && params.Batch.Delay <= 0 {
		return nil, core.NewError(core.KindConfiguration, core.Context{
			"path": path, "reason": "batch requires at least one of size or delay",
		})
	}

	inputs := make([]core.ProducerConfig, len(doc.Input))
	for i, m := range doc.Input {
		inputs[i] = core.RawConfig(m)
	}
	outputs := make([]core.OutputConfig, len(doc.Output))
	for i, m := range doc.Output {
		outputs[i] = core.RawConfig(m)
	}

	return &loadedConfig{
		Params: params,
		Input:  inputs,
		Event:  core.RawConfig(doc.Event),
		Output: outputs,
	}, nil
}

// normalizeYAMLValue converts the map[interface{}]interface{} nodes
// yaml.v2 produces below the first decoded level into
// map[string]interface{}, the shape core.RawConfig and
// core.ConfigReader expect throughout the rest of the module.
func normalizeYAMLValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		return normalizeYAMLMap(val)
	case map[string]interface{}:
		return normalizeYAMLMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeYAMLValue(item)
		}
		return out
	default:
		return v
	}
}

// normalizeYAMLMap accepts either map shape yaml.v2 might hand back and
// returns a normalized map[string]interface{}.
func normalizeYAMLMap(m interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	switch typed := m.(type) {
	case map[string]interface{}:
		for k, v := range typed {
			out[k] = normalizeYAMLValue(v)
		}
	case map[interface{}]interface{}:
		for k, v := range typed {
			out[fmt.Sprint(k)] = normalizeYAMLValue(v)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
