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
	"container/heap"
	"context"
	"sort"

	"github.com/eventum-io/eventum/core"
	"github.com/eventum-io/eventum/logging"
)

// namedProducer pairs a Producer with the id it should tag its output
// with (spec.md §3: producer_id, small integer unique within a generator).
type namedProducer struct {
	id   core.ProducerID
	prod Producer
}

// Merger merges the output of one or more producers into a single
// non-decreasing stream of IdentifiedTimestamp (spec.md §4.2). When only
// one producer is configured, callers should use SingleProducerAdapter
// instead — the merger is bypassed per spec.md's edge case.
type Merger struct {
	producers []namedProducer
	log       *logging.Entry
}

// NewMerger builds a merger over the given producers, keyed by their
// dense [0,N) ids.
func NewMerger(producers []Producer) *Merger {
	named := make([]namedProducer, len(producers))
	for i, p := range producers {
		named[i] = namedProducer{id: core.ProducerID(i), prod: p}
	}
	return &Merger{producers: named}
}

// SetLogger attaches a scoped logger used to report dropped producers.
func (m *Merger) SetLogger(log *logging.Entry) {
	m.log = log
}

type peekBuffer struct {
	id   core.ProducerID
	data []core.Timestamp
	ch   <-chan []core.Timestamp
	errc <-chan error
	done bool
}

// Generate runs the merge algorithm described in spec.md §4.2: maintain
// one peek buffer per active producer, compute the cutoff as the minimum
// of each buffer's last timestamp, emit everything that cannot be
// invalidated by a still-active producer, and split buffers that straddle
// the cutoff.
func (m *Merger) Generate(ctx context.Context, size int, skipPast bool) (<-chan []core.IdentifiedTimestamp, <-chan error) {
	out := make(chan []core.IdentifiedTimestamp)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		buffers := make([]*peekBuffer, 0, len(m.producers))
		for _, np := range m.producers {
			ch, ec := np.prod.Generate(ctx, size, skipPast)
			buffers = append(buffers, &peekBuffer{id: np.id, ch: ch, errc: ec})
		}

		for {
			// Refill empty buffers.
			active := buffers[:0]
			for _, b := range buffers {
				if len(b.data) > 0 {
					active = append(active, b)
					continue
				}
				if b.done {
					continue
				}
				arr, ok := <-b.ch
				// Empty arrays are silently skipped (spec.md §4.2).
				for ok && len(arr) == 0 {
					arr, ok = <-b.ch
				}
				if !ok {
					if err, hasErr := <-b.errc; hasErr && err != nil {
						if m.log != nil {
							logging.WithContext(m.log, map[string]interface{}{
								"producer_id": b.id,
							}).WithError(err).Warn("input producer terminated")
						}
					}
					b.done = true
					continue
				}
				b.data = arr
				active = append(active, b)
			}
			buffers = active

			if len(buffers) == 0 {
				return // no peek buffers remain: terminate
			}

			cutoff := buffers[0].data[len(buffers[0].data)-1]
			for _, b := range buffers[1:] {
				if len(b.data) == 0 {
					continue
				}
				last := b.data[len(b.data)-1]
				if last < cutoff {
					cutoff = last
				}
			}

			var taken [][]core.IdentifiedTimestamp
			remaining := buffers[:0]
			for _, b := range buffers {
				if len(b.data) == 0 {
					remaining = append(remaining, b)
					continue
				}
				last := b.data[len(b.data)-1]
				first := b.data[0]

				switch {
				case last <= cutoff:
					taken = append(taken, tagWithID(b.data, b.id))
					b.data = nil
					remaining = append(remaining, b)
				case first < cutoff && cutoff < last:
					idx := sort.Search(len(b.data), func(i int) bool {
						return b.data[i] > cutoff
					})
					taken = append(taken, tagWithID(b.data[:idx], b.id))
					b.data = b.data[idx:]
					remaining = append(remaining, b)
				default:
					remaining = append(remaining, b)
				}
			}
			buffers = remaining

			if len(taken) == 0 {
				continue
			}

			merged := mergeSortedArrays(taken)
			select {
			case out <- merged:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errc
}

func tagWithID(ts []core.Timestamp, id core.ProducerID) []core.IdentifiedTimestamp {
	out := make([]core.IdentifiedTimestamp, len(ts))
	for i, t := range ts {
		out[i] = core.IdentifiedTimestamp{Timestamp: t, ProducerID: id}
	}
	return out
}

// mergeSortedArrays k-way merges already-sorted arrays into one sorted
// slice using a min-heap, matching the merger's "merge-sort the taken
// arrays into one sorted slice" step.
func mergeSortedArrays(arrays [][]core.IdentifiedTimestamp) []core.IdentifiedTimestamp {
	if len(arrays) == 1 {
		return arrays[0]
	}

	total := 0
	for _, a := range arrays {
		total += len(a)
	}
	result := make([]core.IdentifiedTimestamp, 0, total)

	h := &mergeHeap{}
	for i, a := range arrays {
		if len(a) > 0 {
			heap.Push(h, mergeCursor{arr: a, idx: 0, src: i})
		}
	}
	heap.Init(h)

	for h.Len() > 0 {
		cur := heap.Pop(h).(mergeCursor)
		result = append(result, cur.arr[cur.idx])
		if cur.idx+1 < len(cur.arr) {
			cur.idx++
			heap.Push(h, cur)
		}
	}
	return result
}

type mergeCursor struct {
	arr []core.IdentifiedTimestamp
	idx int
	src int
}

type mergeHeap []mergeCursor

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if h[i].arr[h[i].idx].Timestamp == h[j].arr[h[j].idx].Timestamp {
		return h[i].src < h[j].src
	}
	return h[i].arr[h[i].idx].Timestamp < h[j].arr[h[j].idx].Timestamp
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) {
	*h = append(*h, x.(mergeCursor))
}
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SingleProducerAdapter tags every timestamp from a single producer with
// its id, bypassing the merger entirely (spec.md §4.2 edge case).
type SingleProducerAdapter struct {
	ID   core.ProducerID
	Prod Producer
}

// Generate adapts Producer.Generate to the IdentifiedTimestamp stream
// shape the batcher consumes.
func (a *SingleProducerAdapter) Generate(ctx context.Context, size int, skipPast bool) (<-chan []core.IdentifiedTimestamp, <-chan error) {
	in, errc := a.Prod.Generate(ctx, size, skipPast)
	out := make(chan []core.IdentifiedTimestamp)

	go func() {
		defer close(out)
		for arr := range in {
			if len(arr) == 0 {
				continue
			}
			select {
			case out <- tagWithID(arr, a.ID):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errc
}
