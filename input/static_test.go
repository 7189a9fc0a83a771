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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eventum-io/eventum/core"
)

func TestStaticProducerEmitsCountCopiesOfNow(t *testing.T) {
	p := NewStaticProducer(StaticConfig{Count: 4})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	before := time.Now()
	out, _ := p.Generate(ctx, 100, false)

	var all []core.Timestamp
	for batch := range out {
		all = append(all, batch...)
	}
	after := time.Now()

	if len(all) != 4 {
		t.Fatalf("expected 4 timestamps, got %d", len(all))
	}
	for _, ts := range all {
		if ts != all[0] {
			t.Fatal("expected every timestamp to be identical (a single captured instant)")
		}
	}
	got := all[0].Time()
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected captured instant within [%v, %v], got %v", before, after, got)
	}
}

func TestTimestampsProducerFromInlineList(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	p := NewTimestampsProducer(TimestampsConfig{Timestamps: []time.Time{t1, t2}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, errc := p.Generate(ctx, 100, false)

	var all []core.Timestamp
	for batch := range out {
		all = append(all, batch...)
	}
	if err := <-errc; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(all) != 2 || all[0] != core.FromTime(t1) || all[1] != core.FromTime(t2) {
		t.Fatalf("expected [%v %v], got %v", t1, t2, all)
	}
}

func TestTimestampsProducerFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timestamps.txt")
	contents := "2024-01-01T00:00:00Z\n2024-01-01T00:01:00Z\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	p := NewTimestampsProducer(TimestampsConfig{File: path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, errc := p.Generate(ctx, 100, false)

	var all []core.Timestamp
	for batch := range out {
		all = append(all, batch...)
	}
	if err := <-errc; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(all) != 2 {
		t.Fatalf("expected 2 timestamps read from file, got %d", len(all))
	}
}

func TestTimestampsProducerSurfacesMissingFileAsProducerRuntimeError(t *testing.T) {
	p := NewTimestampsProducer(TimestampsConfig{File: filepath.Join(t.TempDir(), "missing.txt")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, errc := p.Generate(ctx, 100, false)

	for range out {
	}
	err := <-errc
	if err == nil {
		t.Fatal("expected an error for a missing timestamps file")
	}
	tagged, ok := err.(*core.Error)
	if !ok || tagged.Kind() != core.KindProducerRuntime {
		t.Fatalf("expected a ProducerRuntime error, got %T: %v", err, err)
	}
}
