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

	"github.com/eventum-io/eventum/core"
)

// Sink writes one formatted batch (spec.md §4.6's "Write" step). A sink
// owns its own formatter, since each sink may be configured with a
// different format mode over the same rendered events.
type Sink interface {
	ID() string
	Write(ctx context.Context, events []string, batchSize int) error
}

// sinkBase bundles the pieces every sink kind needs: its id, its
// formatter, and the metrics sink used to report written/write-failed/
// format-failed counts (spec.md §6 metrics shape, `output[].written`
// etc).
type sinkBase struct {
	id        string
	formatter Formatter
	metrics   *core.Metrics
}

func newSinkBase(id string, formatter Formatter, metrics *core.Metrics) sinkBase {
	return sinkBase{id: id, formatter: formatter, metrics: metrics}
}

func (b sinkBase) ID() string { return b.id }

// formatBatch runs the sink's formatter and reports per-event format
// failures, returning only the events that formatted cleanly.
func (b sinkBase) formatBatch(events []string, batchSize int) [][]byte {
	formatted := b.formatter.Format(events, batchSize)
	ok := make([][]byte, 0, len(formatted))
	for _, f := range formatted {
		if f.Err != nil {
			if b.metrics != nil {
				b.metrics.FormatFailed(b.id)
			}
			continue
		}
		ok = append(ok, f.Bytes)
	}
	return ok
}

func (b sinkBase) reportWritten(n int) {
	if b.metrics == nil {
		return
	}
	for i := 0; i < n; i++ {
		b.metrics.EventWritten(b.id)
	}
}

func (b sinkBase) reportWriteFailed() {
	if b.metrics != nil {
		b.metrics.WriteFailed(b.id)
	}
}
