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
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/eventum-io/eventum/core"
)

// waitForServer polls address until it accepts connections or the
// deadline passes, since HTTPProducer's ListenAndServe starts in its own
// goroutine with no synchronous readiness signal.
func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Post("http://"+addr+"/generate", "application/json", bytes.NewReader([]byte(`{"count":0}`)))
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("http producer never started listening on %s", addr)
}

func TestHTTPProducerEmitsOnGenerateRequest(t *testing.T) {
	addr := "127.0.0.1:18180"
	p := NewHTTPProducer(HTTPConfig{Address: addr, ReadTimeoutSec: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, _ := p.Generate(ctx, 100, false)
	waitForServer(t, addr)

	done := make(chan struct{})
	var batches [][]core.Timestamp
	go func() {
		for batch := range out {
			batches = append(batches, batch)
		}
		close(done)
	}()

	resp, err := http.Post("http://"+addr+"/generate", "application/json", bytes.NewReader([]byte(`{"count":3}`)))
	if err != nil {
		t.Fatalf("POST /generate failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	stopResp, err := http.Post("http://"+addr+"/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /stop failed: %v", err)
	}
	stopResp.Body.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not shut down after /stop")
	}

	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total != 3 {
		t.Fatalf("expected 3 timestamps from a single count=3 request, got %d", total)
	}
}

func TestHTTPProducerRejectsBadRequest(t *testing.T) {
	addr := "127.0.0.1:18181"
	p := NewHTTPProducer(HTTPConfig{Address: addr, ReadTimeoutSec: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, _ := p.Generate(ctx, 100, false)
	waitForServer(t, addr)
	defer func() {
		http.Post(fmt.Sprintf("http://%s/stop", addr), "application/json", nil)
		for range out {
		}
	}()

	resp, err := http.Post("http://"+addr+"/generate", "application/json", bytes.NewReader([]byte(`{"count":0}`)))
	if err != nil {
		t.Fatalf("POST /generate failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for count<=0, got %d", resp.StatusCode)
	}
}

func TestHTTPProducerStopsOnContextCancellation(t *testing.T) {
	addr := "127.0.0.1:18182"
	p := NewHTTPProducer(HTTPConfig{Address: addr, ReadTimeoutSec: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	out, _ := p.Generate(ctx, 100, false)
	waitForServer(t, addr)

	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected no more timestamps after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not shut down after context cancellation")
	}
}
