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

// Package input implements the timestamp production subsystem: producers,
// the merger, the batcher and the live-mode scheduler (spec.md §4.1-4.4).
package input

import (
	"context"
	"sort"
	"time"

	"github.com/eventum-io/eventum/core"
)

// Producer exposes a single operation (spec.md §4.1): produce a lazy,
// finite-or-infinite sequence of arrays of timestamps, given a
// caller-suggested array size and a skip_past flag.
//
// Generate returns a channel of timestamp arrays and a channel that
// carries at most one error. Both channels are closed when the producer's
// sequence ends, whether cleanly or due to an error. A producer that
// detects an expected runtime failure sends a *core.Error of kind
// core.KindProducerRuntime on the error channel before closing.
type Producer interface {
	// Generate starts production. ctx cancellation stops the producer
	// and closes both channels.
	Generate(ctx context.Context, size int, skipPast bool) (<-chan []core.Timestamp, <-chan error)
}

// Params is the small params record passed to every producer constructor
// (spec.md §4.7): its internal id and the pipeline's configured timezone.
type Params struct {
	ID       core.ProducerID
	Timezone *time.Location
}

// SkipPastInPlace drops every timestamp strictly before now from a
// non-decreasing array, returning the (possibly shorter, possibly empty)
// remainder. It implements the skip_past contract from spec.md §4.1: if
// all timestamps precede now, the result is empty; if some precede and
// some follow, the result starts at the first future timestamp.
func SkipPastInPlace(timestamps []core.Timestamp, now core.Timestamp) []core.Timestamp {
	idx := sort.Search(len(timestamps), func(i int) bool {
		return timestamps[i] >= now
	})
	return timestamps[idx:]
}

// trySend writes to an error channel without blocking forever if the
// consumer already stopped reading (ctx cancelled).
func trySend(ctx context.Context, errCh chan<- error, err error) {
	select {
	case errCh <- err:
	case <-ctx.Done():
	}
}
