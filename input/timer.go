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

// TimerConfig configures the timer producer (spec.md §4.1 table).
type TimerConfig struct {
	Start   time.Time
	Seconds float64
	Count   int
	// Repeat is the number of repetitions; 0 means forever.
	Repeat int
}

// TimerProducer emits Count timestamps every Seconds, starting at Start,
// repeating Repeat times (or forever if Repeat == 0).
type TimerProducer struct {
	config TimerConfig
	params Params
}

func init() {
	plugin.Register("input", "timer", func(settings map[string]interface{}, params interface{}) (interface{}, error) {
		r := core.NewConfigReader(settings)
		cfg := TimerConfig{
			Seconds: r.GetFloat("seconds", 1),
			Count:   int(r.GetInt("count", 1)),
			Repeat:  int(r.GetInt("repeat", 0)),
		}
		p, _ := params.(Params)
		return NewTimerProducer(cfg, p), nil
	})
}

// NewTimerProducer builds a timer producer.
func NewTimerProducer(cfg TimerConfig, params Params) *TimerProducer {
	return &TimerProducer{config: cfg, params: params}
}

// Generate implements Producer. Timestamps advance by arithmetic on
// cursor only; wall-clock pacing is input/scheduler.go's job alone
// (spec.md §4.4), so sample mode runs as fast as possible and live mode
// is not double-paced.
func (p *TimerProducer) Generate(ctx context.Context, size int, skipPast bool) (<-chan []core.Timestamp, <-chan error) {
	out := make(chan []core.Timestamp)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		loc := p.params.Timezone
		if loc == nil {
			loc = time.UTC
		}
		period := time.Duration(p.config.Seconds * float64(time.Second))

		cursor := p.config.Start.In(loc)
		iteration := 0

		if skipPast && period > 0 {
			now := time.Now().In(loc)
			for cursor.Before(now) && (p.config.Repeat == 0 || iteration < p.config.Repeat) {
				cursor = cursor.Add(period)
				iteration++
			}
		}

		var buf []core.Timestamp
		for p.config.Repeat == 0 || iteration < p.config.Repeat {
			select {
			case <-ctx.Done():
				return
			default:
			}

			ts := core.FromTime(cursor)
			for i := 0; i < p.config.Count; i++ {
				buf = append(buf, ts)
			}

			if len(buf) >= size {
				select {
				case out <- buf:
					buf = nil
				case <-ctx.Done():
					return
				}
			}

			iteration++
			if p.config.Repeat != 0 && iteration >= p.config.Repeat {
				break
			}

			if period <= 0 {
				continue
			}
			cursor = cursor.Add(period)
		}

		if len(buf) > 0 {
			select {
			case out <- buf:
			case <-ctx.Done():
			}
		}
	}()

	return out, errc
}
