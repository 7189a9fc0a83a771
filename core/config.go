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

package core

import (
	"fmt"
	"time"
)

// RawConfig is a single-key map decoded from YAML, the key being the
// plugin kind ("cron", "http", "opensearch", ...). Token substitution and
// on-disk loading happen upstream of the core and are out of scope here;
// by the time a RawConfig reaches this package it is already decoded.
type RawConfig map[string]interface{}

// Kind returns the single key of the map, i.e. the plugin kind.
func (c RawConfig) Kind() string {
	for k := range c {
		return k
	}
	return ""
}

// Settings returns the settings sub-map nested under Kind(), or an empty
// map if the value under that key is not itself a map.
func (c RawConfig) Settings() map[string]interface{} {
	raw, ok := c[c.Kind()]
	if !ok {
		return map[string]interface{}{}
	}
	settings, ok := raw.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return settings
}

// ProducerConfig is one entry of the generator's `input` list.
type ProducerConfig = RawConfig

// EventConfig is the generator's single `event` entry.
type EventConfig = RawConfig

// OutputConfig is one entry of the generator's `output` list.
type OutputConfig = RawConfig

// ConfigReader is a typed-accessor wrapper over a RawConfig's settings,
// modeled on gollum's PluginConfigReader: every accessor takes a default
// and returns it, plus the error, when the key is absent or the wrong
// type, rather than panicking.
type ConfigReader struct {
	settings map[string]interface{}
	Errors   []error
}

// NewConfigReader builds a reader over a plugin's settings map.
func NewConfigReader(settings map[string]interface{}) *ConfigReader {
	return &ConfigReader{settings: settings}
}

// HasValue returns true if key is present in the settings map.
func (r *ConfigReader) HasValue(key string) bool {
	_, ok := r.settings[key]
	return ok
}

func (r *ConfigReader) pushError(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
}

// GetString reads a string value, falling back to defaultValue.
func (r *ConfigReader) GetString(key, defaultValue string) string {
	v, ok := r.settings[key]
	if !ok {
		return defaultValue
	}
	s, ok := v.(string)
	if !ok {
		r.pushError(fmt.Errorf("config key %q: expected string, got %T", key, v))
		return defaultValue
	}
	return s
}

// GetInt reads an integer value, falling back to defaultValue.
func (r *ConfigReader) GetInt(key string, defaultValue int64) int64 {
	v, ok := r.settings[key]
	if !ok {
		return defaultValue
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		r.pushError(fmt.Errorf("config key %q: expected int, got %T", key, v))
		return defaultValue
	}
}

// GetBool reads a boolean value, falling back to defaultValue.
func (r *ConfigReader) GetBool(key string, defaultValue bool) bool {
	v, ok := r.settings[key]
	if !ok {
		return defaultValue
	}
	b, ok := v.(bool)
	if !ok {
		r.pushError(fmt.Errorf("config key %q: expected bool, got %T", key, v))
		return defaultValue
	}
	return b
}

// GetFloat reads a float value, falling back to defaultValue.
func (r *ConfigReader) GetFloat(key string, defaultValue float64) float64 {
	v, ok := r.settings[key]
	if !ok {
		return defaultValue
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		r.pushError(fmt.Errorf("config key %q: expected float, got %T", key, v))
		return defaultValue
	}
}

// GetDuration reads a value expressed in seconds (as the spec's *_interval
// and batch_delay fields are) and returns it as a time.Duration.
func (r *ConfigReader) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if !r.HasValue(key) {
		return defaultValue
	}
	seconds := r.GetFloat(key, defaultValue.Seconds())
	return time.Duration(seconds * float64(time.Second))
}

// GetStringArray reads a string slice, falling back to defaultValue.
func (r *ConfigReader) GetStringArray(key string, defaultValue []string) []string {
	v, ok := r.settings[key]
	if !ok {
		return defaultValue
	}
	raw, ok := v.([]interface{})
	if !ok {
		r.pushError(fmt.Errorf("config key %q: expected array, got %T", key, v))
		return defaultValue
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			r.pushError(fmt.Errorf("config key %q: expected array of strings", key))
			continue
		}
		out = append(out, s)
	}
	return out
}

// GetValue reads an untyped value, falling back to defaultValue.
func (r *ConfigReader) GetValue(key string, defaultValue interface{}) interface{} {
	if v, ok := r.settings[key]; ok {
		return v
	}
	return defaultValue
}

// GetMap reads a nested map value, falling back to defaultValue.
func (r *ConfigReader) GetMap(key string, defaultValue map[string]interface{}) map[string]interface{} {
	v, ok := r.settings[key]
	if !ok {
		return defaultValue
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		r.pushError(fmt.Errorf("config key %q: expected map, got %T", key, v))
		return defaultValue
	}
	return m
}

// TimeMode is the generator's time_mode parameter.
type TimeMode string

const (
	// TimeModeLive gates emission by wall clock (input/scheduler.go).
	TimeModeLive TimeMode = "live"
	// TimeModeSample emits as fast as possible.
	TimeModeSample TimeMode = "sample"
)

// BatchParams configures the batcher's two ceilings (spec.md §4.3).
type BatchParams struct {
	Size  int           // 0 means "unset"
	Delay time.Duration // 0 means "unset"
}

// QueueParams bounds the inter-stage queues (spec.md §5).
type QueueParams struct {
	MaxBatches int
}

// GeneratorParams is the generator-level configuration (spec.md §6).
type GeneratorParams struct {
	ID              string
	Path            string
	TimeMode        TimeMode
	Timezone        *time.Location
	Params          map[string]interface{}
	Batch           BatchParams
	Queue           QueueParams
	KeepOrder       bool
	MaxConcurrency  int
	SkipPast        bool
	MetricsInterval time.Duration
}
