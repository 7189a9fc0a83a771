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
)

// Scheduler wraps the batcher in live mode (spec.md §4.4): for each
// batch, it blocks until the wall clock reaches the batch's last
// timestamp before yielding it. In sample mode the scheduler is simply
// not constructed and the batcher drives the renderer as fast as
// possible.
type Scheduler struct {
	batcher  BatchSource
	timezone *time.Location
	sleep    func(time.Duration)
	now      func(*time.Location) core.Timestamp
}

// NewScheduler builds a live-mode scheduler over a batcher. It takes the
// BatchSource interface rather than the concrete *Batcher so tests can
// substitute a fake source and drive the pacing logic directly.
func NewScheduler(batcher BatchSource, timezone *time.Location) *Scheduler {
	return &Scheduler{
		batcher:  batcher,
		timezone: timezone,
		sleep:    time.Sleep,
		now:      func(loc *time.Location) core.Timestamp { return core.FromTime(time.Now().In(loc)) },
	}
}

// Generate yields each batch from the wrapped batcher only once real time
// has caught up to that batch's last timestamp.
func (s *Scheduler) Generate(ctx context.Context, readSize int, skipPast bool) (<-chan core.TimestampBatch, <-chan error) {
	in, errc := s.batcher.Generate(ctx, readSize, skipPast)
	out := make(chan core.TimestampBatch)

	go func() {
		defer close(out)
		for batch := range in {
			delay := batch.Last().Sub(s.now(s.timezone))
			if delay > 0 {
				slept := make(chan struct{})
				go func() {
					s.sleep(delay)
					close(slept)
				}()
				select {
				case <-slept:
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errc
}
