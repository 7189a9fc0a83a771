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
	"encoding/json"
	"net/http"
	"time"

	"github.com/eventum-io/eventum/core"
	"github.com/eventum-io/eventum/plugin"
)

// HTTPConfig configures the http producer (spec.md §4.1 table).
type HTTPConfig struct {
	Address        string
	ReadTimeoutSec time.Duration
}

// generateRequest is the POST /generate body: {"count": n}.
type generateRequest struct {
	Count int `json:"count"`
}

// HTTPProducer runs an HTTP server; each POST /generate carrying
// {"count": n} injects n timestamps valued at request time. POST /stop
// terminates the sequence. It is inherently live: skip_past and
// time_mode never apply to it (spec.md §9 Open Question (c)).
type HTTPProducer struct {
	config HTTPConfig
}

func init() {
	plugin.Register("input", "http", func(settings map[string]interface{}, params interface{}) (interface{}, error) {
		r := core.NewConfigReader(settings)
		cfg := HTTPConfig{
			Address:        r.GetString("address", ":8080"),
			ReadTimeoutSec: r.GetDuration("read_timeout", 3*time.Second),
		}
		return NewHTTPProducer(cfg), nil
	})
}

// NewHTTPProducer builds an http producer.
func NewHTTPProducer(cfg HTTPConfig) *HTTPProducer {
	return &HTTPProducer{config: cfg}
}

// Generate implements Producer. size and skipPast are ignored: each
// accepted /generate request is emitted as one array of `count`
// identical timestamps as soon as it arrives; arrays from different
// requests are never combined.
func (p *HTTPProducer) Generate(ctx context.Context, size int, skipPast bool) (<-chan []core.Timestamp, <-chan error) {
	out := make(chan []core.Timestamp)
	errc := make(chan error, 1)

	mux := http.NewServeMux()
	srv := &http.Server{
		Addr:        p.config.Address,
		Handler:     mux,
		ReadTimeout: p.config.ReadTimeoutSec,
	}
	stopped := make(chan struct{})

	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Count <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		now := core.FromTime(time.Now())
		buf := make([]core.Timestamp, req.Count)
		for i := range buf {
			buf[i] = now
		}

		select {
		case out <- buf:
			w.WriteHeader(http.StatusCreated)
		case <-ctx.Done():
			w.WriteHeader(http.StatusServiceUnavailable)
		case <-stopped:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	mux.HandleFunc("/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		select {
		case <-stopped:
		default:
			close(stopped)
		}
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		defer close(out)
		defer close(errc)

		listenFailed := make(chan struct{})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				trySend(ctx, errc, core.Wrap(core.KindProducerRuntime, err, core.Context{
					"plugin":  "http",
					"address": p.config.Address,
				}))
				close(listenFailed)
			}
		}()

		select {
		case <-ctx.Done():
		case <-stopped:
		case <-listenFailed:
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return out, errc
}
