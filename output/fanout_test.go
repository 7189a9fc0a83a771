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

package output

import (
	"context"
	"sync"
	"testing"
	"time"
)

// recordingSink records every batch it receives, in arrival order, with an
// optional per-write delay to force interleaving in concurrency tests.
type recordingSink struct {
	id    string
	delay time.Duration

	mu      sync.Mutex
	batches [][]string
}

func (s *recordingSink) ID() string { return s.id }

func (s *recordingSink) Write(ctx context.Context, events []string, batchSize int) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]string(nil), events...))
	return nil
}

func (s *recordingSink) snapshot() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.batches))
	copy(out, s.batches)
	return out
}

func TestFanoutDispatchesToEverySink(t *testing.T) {
	a := &recordingSink{id: "a"}
	b := &recordingSink{id: "b"}
	f := NewFanout([]Sink{a, b}, false, 0)
	defer f.Close()

	ctx := context.Background()
	f.Dispatch(ctx, []string{"e1", "e2"}, 2)

	deadline := time.After(time.Second)
	for len(a.snapshot()) == 0 || len(b.snapshot()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for both sinks to receive the batch")
		default:
		}
	}

	if got := a.snapshot(); len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("sink a: expected one batch of 2 events, got %v", got)
	}
	if got := b.snapshot(); len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("sink b: expected one batch of 2 events, got %v", got)
	}
}

func TestFanoutKeepOrderLinearizesAcrossBatches(t *testing.T) {
	sink := &recordingSink{id: "slow", delay: 5 * time.Millisecond}
	f := NewFanout([]Sink{sink}, true, 0)
	defer f.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.Dispatch(ctx, []string{string(rune('a' + i))}, 1)
	}

	got := sink.snapshot()
	if len(got) != 5 {
		t.Fatalf("expected 5 batches observed in submission order, got %d", len(got))
	}
	for i, batch := range got {
		want := string(rune('a' + i))
		if len(batch) != 1 || batch[0] != want {
			t.Fatalf("batch %d out of order: got %v, want [%s]", i, batch, want)
		}
	}
}

func TestFanoutEachSinkSeesBatchesInSubmissionOrderEvenWithoutKeepOrder(t *testing.T) {
	sink := &recordingSink{id: "fast"}
	f := NewFanout([]Sink{sink}, false, 0)
	defer f.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		f.Dispatch(ctx, []string{string(rune('a' + i))}, 1)
	}

	deadline := time.After(time.Second)
	for len(sink.snapshot()) < 10 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for sink to drain all batches")
		default:
		}
	}

	got := sink.snapshot()
	for i, batch := range got {
		want := string(rune('a' + i))
		if len(batch) != 1 || batch[0] != want {
			t.Fatalf("sink observed batch %d out of submission order: got %v, want [%s]", i, batch, want)
		}
	}
}

// TestFanoutSlowSinkDoesNotBlockOthers is the spec.md §5 keep_order=false
// guarantee: "a sink may fall behind without blocking the others."
// Dispatch must return promptly and the fast sink must see every batch
// even while the slow sink is still working through its backlog.
func TestFanoutSlowSinkDoesNotBlockOthers(t *testing.T) {
	slow := &recordingSink{id: "slow", delay: 200 * time.Millisecond}
	fast := &recordingSink{id: "fast"}
	f := NewFanout([]Sink{slow, fast}, false, 0)
	defer f.Close()

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		f.Dispatch(ctx, []string{string(rune('a' + i))}, 1)
	}
	dispatchElapsed := time.Since(start)

	if dispatchElapsed > 50*time.Millisecond {
		t.Fatalf("Dispatch calls took %v; a slow sink must not gate enqueue to other sinks", dispatchElapsed)
	}

	deadline := time.After(time.Second)
	for len(fast.snapshot()) < 5 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the fast sink to drain while the slow sink was still behind")
		default:
		}
	}

	if got := len(slow.snapshot()); got >= 5 {
		t.Fatalf("expected the slow sink to still be working through its backlog, but it already has all %d batches", got)
	}
}
