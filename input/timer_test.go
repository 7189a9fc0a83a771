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
	"time"

	"github.com/eventum-io/eventum/core"
)

func TestTimerProducerEmitsCountPerRepeat(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := TimerConfig{Start: start, Seconds: 0, Count: 2, Repeat: 3}
	p := NewTimerProducer(cfg, Params{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, _ := p.Generate(ctx, 100, false)

	var all []core.Timestamp
	for batch := range out {
		all = append(all, batch...)
	}

	if len(all) != 6 {
		t.Fatalf("expected 3 repeats * 2 count = 6 timestamps, got %d", len(all))
	}
	want := core.FromTime(start)
	for _, ts := range all {
		if ts != want {
			t.Fatalf("expected every timestamp to equal start (period=0 means no advance), got %v want %v", ts, want)
		}
	}
}

func TestTimerProducerRespectsSizeFlush(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := TimerConfig{Start: start, Seconds: 0, Count: 1, Repeat: 5}
	p := NewTimerProducer(cfg, Params{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, _ := p.Generate(ctx, 2, false)

	var batches [][]core.Timestamp
	for batch := range out {
		batches = append(batches, batch)
	}

	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total != 5 {
		t.Fatalf("expected 5 total timestamps across batches, got %d", total)
	}
	if len(batches) < 2 {
		t.Fatalf("expected size=2 to force multiple batches for 5 timestamps, got %d batch(es)", len(batches))
	}
}

// TestTimerProducerDoesNotSleepOnLargePeriod exercises an hourly timer in
// sample mode: it must produce all timestamps immediately by arithmetic
// advance alone, not by sleeping in real wall-clock time (spec.md §4.4 —
// wall-clock pacing belongs to input/scheduler.go exclusively).
func TestTimerProducerDoesNotSleepOnLargePeriod(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := TimerConfig{Start: start, Seconds: 3600, Count: 1, Repeat: 24}
	p := NewTimerProducer(cfg, Params{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, _ := p.Generate(ctx, 100, false)

	done := make(chan []core.Timestamp, 1)
	go func() {
		var all []core.Timestamp
		for batch := range out {
			all = append(all, batch...)
		}
		done <- all
	}()

	select {
	case all := <-done:
		if len(all) != 24 {
			t.Fatalf("expected 24 hourly timestamps, got %d", len(all))
		}
		for i, ts := range all {
			want := core.FromTime(start.Add(time.Duration(i) * time.Hour))
			if ts != want {
				t.Fatalf("timestamp %d: got %v want %v", i, ts, want)
			}
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timer producer blocked for real time on an hourly period in sample mode")
	}
}
