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
	"sort"
	"time"

	"github.com/eventum-io/eventum/core"
)

// MinBatchSize is the smallest batch_size that can be configured.
const MinBatchSize = 1

// MinBatchDelay is the smallest batch_delay that can be configured.
const MinBatchDelay = 100 * time.Millisecond

// Source is anything that yields arrays of IdentifiedTimestamp, satisfied
// by both *Merger and *SingleProducerAdapter.
type Source interface {
	Generate(ctx context.Context, size int, skipPast bool) (<-chan []core.IdentifiedTimestamp, <-chan error)
}

// BatchSource is anything that yields TimestampBatch, satisfied by both
// *Batcher (sample mode) and *Scheduler (live mode) — the pipeline stage
// the coordinator's producer-pull thread pulls from.
type BatchSource interface {
	Generate(ctx context.Context, readSize int, skipPast bool) (<-chan core.TimestampBatch, <-chan error)
}

// Batcher wraps a Source and enforces the batch_size / batch_delay
// ceilings from spec.md §4.3. At least one of the two must be set.
type Batcher struct {
	source Source
	size   int           // 0 = unset
	delay  time.Duration // 0 = unset
}

// NewBatcher builds a batcher. size <= 0 means unset; delay <= 0 means
// unset. Panics if both are unset, mirroring the original's ValueError —
// callers validate configuration before construction (spec.md's core
// receives already-validated configuration).
func NewBatcher(source Source, size int, delay time.Duration) *Batcher {
	if size <= 0 && delay <= 0 {
		panic("input: batcher requires at least one of batch_size or batch_delay")
	}
	return &Batcher{source: source, size: size, delay: delay}
}

// Generate runs the batcher algorithm from spec.md §4.3: for each
// incoming array, find the smaller of the size cutoff and the delay
// cutoff, emit up to that point, and carry any remainder into the next
// incoming array.
func (b *Batcher) Generate(ctx context.Context, readSize int, skipPast bool) (<-chan core.TimestampBatch, <-chan error) {
	out := make(chan core.TimestampBatch)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		pull := readSize
		if b.size > 0 {
			pull = b.size
		}
		in, sourceErr := b.source.Generate(ctx, pull, skipPast)

		var accumulated core.TimestampBatch
		var cutoffTimestamp core.Timestamp
		haveCutoff := false

		emit := func() bool {
			if len(accumulated) == 0 {
				return true
			}
			select {
			case out <- accumulated:
			case <-ctx.Done():
				return false
			}
			accumulated = nil
			haveCutoff = false
			return true
		}

		for arr := range in {
			remaining := arr
			for len(remaining) > 0 {
				if !haveCutoff {
					if b.delay > 0 {
						cutoffTimestamp = remaining[0].Timestamp.Add(b.delay)
					}
					haveCutoff = true
				}

				delayIndex := len(remaining)
				if b.delay > 0 {
					delayIndex = sort.Search(len(remaining), func(i int) bool {
						return remaining[i].Timestamp > cutoffTimestamp
					})
				}

				sizeIndex := len(remaining)
				if b.size > 0 {
					sizeIndex = b.size - len(accumulated)
					if sizeIndex < 0 {
						sizeIndex = 0
					}
				}

				cut := delayIndex
				if sizeIndex < cut {
					cut = sizeIndex
				}

				if cut >= len(remaining) {
					accumulated = append(accumulated, remaining...)
					remaining = nil
					continue
				}

				accumulated = append(accumulated, remaining[:cut]...)
				remaining = remaining[cut:]
				if !emit() {
					return
				}
			}
		}

		if err, ok := <-sourceErr; ok && err != nil {
			select {
			case errc <- err:
			case <-ctx.Done():
			}
		}

		// Flush any accumulated partial batch on termination.
		emit()
	}()

	return out, errc
}
