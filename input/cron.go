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

	"github.com/robfig/cron/v3"

	"github.com/eventum-io/eventum/core"
	"github.com/eventum-io/eventum/plugin"
)

// CronConfig configures the cron producer (spec.md §4.1 table).
type CronConfig struct {
	Expression string
	Count      int
	Start      time.Time
	End        time.Time
}

// CronProducer emits Count identical timestamps at every moment matching
// a cron expression within [Start, End].
type CronProducer struct {
	schedule cron.Schedule
	config   CronConfig
	params   Params
}

func init() {
	plugin.Register("input", "cron", func(settings map[string]interface{}, params interface{}) (interface{}, error) {
		r := core.NewConfigReader(settings)
		cfg := CronConfig{
			Expression: r.GetString("expression", "* * * * *"),
			Count:      int(r.GetInt("count", 1)),
		}
		p, _ := params.(Params)
		prod, err := NewCronProducer(cfg, p)
		if err != nil {
			return nil, core.Wrap(core.KindConfiguration, err, core.Context{"plugin": "cron"})
		}
		return prod, nil
	})
}

// NewCronProducer parses cfg.Expression with the standard 5-field cron
// syntax (minute hour dom month dow), as robfig/cron/v3 does.
func NewCronProducer(cfg CronConfig, params Params) (*CronProducer, error) {
	schedule, err := cron.ParseStandard(cfg.Expression)
	if err != nil {
		return nil, err
	}
	return &CronProducer{schedule: schedule, config: cfg, params: params}, nil
}

// Generate implements Producer. It is inherently finite: emission stops
// once the schedule's next match exceeds End.
func (p *CronProducer) Generate(ctx context.Context, size int, skipPast bool) (<-chan []core.Timestamp, <-chan error) {
	out := make(chan []core.Timestamp)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		loc := p.params.Timezone
		if loc == nil {
			loc = time.UTC
		}

		start := p.config.Start.In(loc)
		end := p.config.End.In(loc)

		cursor := p.schedule.Next(start.Add(-time.Second))
		if skipPast {
			now := time.Now().In(loc)
			for !cursor.After(now) && !cursor.After(end) {
				cursor = p.schedule.Next(cursor)
			}
		}

		var buf []core.Timestamp
		for !cursor.After(end) {
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

			cursor = p.schedule.Next(cursor)
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
