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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/eventum-io/eventum/core"
	"github.com/eventum-io/eventum/plugin"
)

func TestHTTPSinkPostsOneRequestPerBatch(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	var methods []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(raw))
		methods = append(methods, r.Method)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	metrics := core.NewMetrics()
	inst, err := plugin.New("output", "http", "http-sink-1", map[string]interface{}{
		"url":    server.URL,
		"format": "json-batch",
	}, Params{ID: "http-sink-1", Metrics: metrics})
	if err != nil {
		t.Fatalf("unexpected error constructing sink: %v", err)
	}
	sink := inst.(*HTTPSink)

	if err := sink.Write(context.Background(), []string{`{"a":1}`, `{"a":2}`}, 2); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 {
		t.Fatalf("expected one request for the whole batch under json-batch, got %d", len(bodies))
	}
	if methods[0] != http.MethodPost {
		t.Fatalf("expected POST, got %s", methods[0])
	}
	var decoded []map[string]interface{}
	if err := json.Unmarshal([]byte(bodies[0]), &decoded); err != nil {
		t.Fatalf("expected a combined JSON array body, got %q: %v", bodies[0], err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 combined events, got %d", len(decoded))
	}
	if got := metrics.WrittenValue("http-sink-1"); got != 1 {
		t.Fatalf("expected 1 written, got %v", got)
	}
}

func TestHTTPSinkReportsFailureOnUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	metrics := core.NewMetrics()
	inst, err := plugin.New("output", "http", "http-sink-2", map[string]interface{}{
		"url":    server.URL,
		"format": "json-batch",
	}, Params{ID: "http-sink-2", Metrics: metrics})
	if err != nil {
		t.Fatalf("unexpected error constructing sink: %v", err)
	}
	sink := inst.(*HTTPSink)

	if err := sink.Write(context.Background(), []string{`{"a":1}`}, 1); err == nil {
		t.Fatal("expected an error for an unexpected status code")
	}
	if got := metrics.WriteFailedValue("http-sink-2"); got != 1 {
		t.Fatalf("expected 1 write-failed, got %v", got)
	}
}

func TestHTTPSinkRequiresURL(t *testing.T) {
	_, err := plugin.New("output", "http", "http-sink-missing-url", map[string]interface{}{}, Params{ID: "http-sink-missing-url"})
	if err == nil {
		t.Fatal("expected an error when url is not configured")
	}
}
