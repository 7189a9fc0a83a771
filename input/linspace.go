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
	"context"
	"time"

	"github.com/eventum-io/eventum/core"
	"github.com/eventum-io/eventum/plugin"
)

// LinspaceConfig configures the linspace producer (spec.md §4.1 table).
type LinspaceConfig struct {
	Start    time.Time
	End      time.Time
	Count    int
	Endpoint bool
}

// LinspaceProducer emits exactly Count timestamps linearly spaced in
// [Start, End], inclusive or exclusive of End per Endpoint.
type LinspaceProducer struct {
	config LinspaceConfig
}

func init() {
	plugin.Register("input", "linspace", func(settings map[string]interface{}, params interface{}) (interface{}, error) {
		r := core.NewConfigReader(settings)
		cfg := LinspaceConfig{
			Count:    int(r.GetInt("count", 2)),
			Endpoint: r.GetBool("endpoint", true),
		}
		return NewLinspaceProducer(cfg), nil
	})
}

// NewLinspaceProducer builds a linspace producer.
func NewLinspaceProducer(cfg LinspaceConfig) *LinspaceProducer {
	return &LinspaceProducer{config: cfg}
}

// Generate implements Producer. The full sequence is computed up front
// (linspace is always finite and small relative to memory) and chunked
// into caller-suggested array sizes.
func (p *LinspaceProducer) Generate(ctx context.Context, size int, skipPast bool) (<-chan []core.Timestamp, <-chan error) {
	out := make(chan []core.Timestamp)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		all := linspace(core.FromTime(p.config.Start), core.FromTime(p.config.End), p.config.Count, p.config.Endpoint)

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

// linspace mirrors numpy.linspace for integer microsecond timestamps:
// Count points evenly spaced between start and end, either including or
// excluding the end point.
func linspace(start, end core.Timestamp, count int, endpoint bool) []core.Timestamp {
	if count <= 0 {
		return nil
	}
	if count == 1 {
		return []core.Timestamp{start}
	}

	divisor := count
	if endpoint {
		divisor = count - 1
	}

	span := float64(end - start)
	out := make([]core.Timestamp, count)
	for i := 0; i < count; i++ {
		out[i] = start + core.Timestamp(span*float64(i)/float64(divisor))
	}
	return out
}
