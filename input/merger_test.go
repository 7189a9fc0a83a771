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
	"testing"

	"github.com/eventum-io/eventum/core"
)

// fixedProducer replays a fixed sequence of arrays, one per Generate call,
// ignoring size/skipPast.
type fixedProducer struct {
	batches [][]core.Timestamp
}

func (p *fixedProducer) Generate(ctx context.Context, size int, skipPast bool) (<-chan []core.Timestamp, <-chan error) {
	out := make(chan []core.Timestamp)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for _, b := range p.batches {
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errc
}

func collectIdentified(ch <-chan []core.IdentifiedTimestamp) []core.IdentifiedTimestamp {
	var all []core.IdentifiedTimestamp
	for arr := range ch {
		all = append(all, arr...)
	}
	return all
}

func TestMergerProducesNonDecreasingOrder(t *testing.T) {
	a := &fixedProducer{batches: [][]core.Timestamp{{1, 3, 5}, {7, 9}}}
	b := &fixedProducer{batches: [][]core.Timestamp{{2, 4}, {6, 8, 10}}}

	m := NewMerger([]Producer{a, b})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, _ := m.Generate(ctx, 10, false)
	all := collectIdentified(out)

	if len(all) != 10 {
		t.Fatalf("expected 10 merged timestamps, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp < all[i-1].Timestamp {
			t.Fatalf("merged stream not non-decreasing at index %d: %v then %v", i, all[i-1].Timestamp, all[i].Timestamp)
		}
	}
}

func TestMergerDropsEmptyArrays(t *testing.T) {
	a := &fixedProducer{batches: [][]core.Timestamp{{}, {1, 2}, {}}}
	m := NewMerger([]Producer{a})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, _ := m.Generate(ctx, 10, false)
	all := collectIdentified(out)
	if len(all) != 2 {
		t.Fatalf("expected empty arrays to be skipped, got %d timestamps", len(all))
	}
}

func TestMergerTerminatesWhenAllProducersDone(t *testing.T) {
	a := &fixedProducer{batches: [][]core.Timestamp{{1}}}
	b := &fixedProducer{batches: [][]core.Timestamp{{2}}}
	m := NewMerger([]Producer{a, b})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, errc := m.Generate(ctx, 10, false)
	collectIdentified(out)

	if _, ok := <-errc; ok {
		t.Fatalf("error channel should have closed with no error")
	}
}

func TestSingleProducerAdapterTagsID(t *testing.T) {
	a := &fixedProducer{batches: [][]core.Timestamp{{1, 2, 3}}}
	adapter := &SingleProducerAdapter{ID: core.ProducerID(7), Prod: a}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, _ := adapter.Generate(ctx, 10, false)
	all := collectIdentified(out)

	if len(all) != 3 {
		t.Fatalf("expected 3 timestamps, got %d", len(all))
	}
	for _, it := range all {
		if it.ProducerID != core.ProducerID(7) {
			t.Fatalf("expected producer id 7, got %v", it.ProducerID)
		}
	}
}
