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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// metricsServer exposes the coordinator's §6 metrics snapshot over
// GET /metrics as JSON, "keyed for the host to read" the way gollum's
// metricServer.go exposes its own metric dump on a TCP port — reworked
// onto net/http since the consumer here is an HTTP scraper, not a raw
// socket client.
type metricsServer struct {
	srv *http.Server
}

func startMetricsServer(port int, co *Coordinator) *metricsServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(co.Snapshot())
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			co.log.WithError(err).Warn("metrics server stopped unexpectedly")
		}
	}()

	return &metricsServer{srv: srv}
}

func (m *metricsServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	m.srv.Shutdown(ctx)
}
