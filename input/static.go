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

package input

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"time"

	"github.com/eventum-io/eventum/core"
	"github.com/eventum-io/eventum/plugin"
)

// StaticConfig configures the static producer (spec.md §4.1 table).
type StaticConfig struct {
	Count int
}

// StaticProducer emits Count copies of "now at start" — a single instant
// captured once, at the moment Generate is called.
type StaticProducer struct {
	config StaticConfig
}

func init() {
	plugin.Register("input", "static", func(settings map[string]interface{}, params interface{}) (interface{}, error) {
		r := core.NewConfigReader(settings)
		cfg := StaticConfig{Count: int(r.GetInt("count", 1))}
		return NewStaticProducer(cfg), nil
	})
}

// NewStaticProducer builds a static producer.
func NewStaticProducer(cfg StaticConfig) *StaticProducer {
	return &StaticProducer{config: cfg}
}

// Generate implements Producer. skip_past never applies: "now" is always
// the present, so nothing can be in the past.
func (p *StaticProducer) Generate(ctx context.Context, size int, skipPast bool) (<-chan []core.Timestamp, <-chan error) {
	out := make(chan []core.Timestamp)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		now := core.FromTime(time.Now())
		remaining := p.config.Count

		for remaining > 0 {
			n := size
			if n > remaining || n <= 0 {
				n = remaining
			}
			buf := make([]core.Timestamp, n)
			for i := range buf {
				buf[i] = now
			}
			select {
			case out <- buf:
				remaining -= n
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errc
}

// TimestampsConfig configures the timestamps producer (spec.md §4.1 table).
type TimestampsConfig struct {
	// Timestamps is used when the list is given inline in configuration.
	Timestamps []time.Time
	// File, if set, is read as a newline-separated list of RFC3339
	// timestamps instead of using Timestamps.
	File string
}

// TimestampsProducer emits timestamps read verbatim from a list or a
// newline-separated file.
type TimestampsProducer struct {
	config TimestampsConfig
}

func init() {
	plugin.Register("input", "timestamps", func(settings map[string]interface{}, params interface{}) (interface{}, error) {
		r := core.NewConfigReader(settings)
		cfg := TimestampsConfig{File: r.GetString("source", "")}
		return NewTimestampsProducer(cfg), nil
	})
}

// NewTimestampsProducer builds a timestamps producer.
func NewTimestampsProducer(cfg TimestampsConfig) *TimestampsProducer {
	return &TimestampsProducer{config: cfg}
}

// Generate implements Producer.
func (p *TimestampsProducer) Generate(ctx context.Context, size int, skipPast bool) (<-chan []core.Timestamp, <-chan error) {
	out := make(chan []core.Timestamp)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		all, err := p.load()
		if err != nil {
			trySend(ctx, errc, core.Wrap(core.KindProducerRuntime, err, core.Context{
				"plugin": "timestamps",
				"file":   p.config.File,
			}))
			return
		}

		if skipPast {
			all = SkipPastInPlace(all, core.FromTime(time.Now()))
		}

		for len(all) > 0 {
			n := size
			if n > len(all) || n <= 0 {
				n = len(all)
			}
			select {
			case out <- all[:n]:
				all = all[n:]
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errc
}

func (p *TimestampsProducer) load() ([]core.Timestamp, error) {
	if p.config.File == "" {
		out := make([]core.Timestamp, len(p.config.Timestamps))
		for i, t := range p.config.Timestamps {
			out[i] = core.FromTime(t)
		}
		return out, nil
	}

	f, err := os.Open(p.config.File)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []core.Timestamp
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, line)
		if err != nil {
			if unixMicro, convErr := strconv.ParseInt(line, 10, 64); convErr == nil {
				out = append(out, core.Timestamp(unixMicro))
				continue
			}
			return nil, err
		}
		out = append(out, core.FromTime(t))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
