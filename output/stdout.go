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
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/eventum-io/eventum/core"
	"github.com/eventum-io/eventum/plugin"
)

// ConsoleSink writes line-delimited formatted events to stdout or
// stderr, grounded on gollum's Console producer (spec.md §4.6 "stdout /
// stderr: line-delimited").
type ConsoleSink struct {
	sinkBase
	mu  sync.Mutex
	out *bufio.Writer
}

func init() {
	plugin.Register("output", "stdout", newConsoleSink(os.Stdout))
	plugin.Register("output", "stderr", newConsoleSink(os.Stderr))
}

func newConsoleSink(stream *os.File) plugin.Constructor {
	return func(settings map[string]interface{}, params interface{}) (interface{}, error) {
		r := core.NewConfigReader(settings)
		p, _ := params.(Params)
		formatter, err := NewFormatter(r.GetString("format", "plain"), r.GetString("template", ""), int(r.GetInt("indent", 2)))
		if err != nil {
			return nil, core.Wrap(core.KindConfiguration, err, core.Context{"plugin": "stdout"})
		}
		return &ConsoleSink{
			sinkBase: newSinkBase(p.ID, formatter, p.Metrics),
			out:      bufio.NewWriter(stream),
		}, nil
	}
}

// Write formats the batch and writes each event on its own line.
func (s *ConsoleSink) Write(ctx context.Context, events []string, batchSize int) error {
	lines := s.formatBatch(events, batchSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for _, line := range lines {
		if _, err := s.out.Write(line); err != nil {
			s.reportWriteFailed()
			return core.Wrap(core.KindWriterRuntime, err, core.Context{"sink": s.id})
		}
		if _, err := fmt.Fprintln(s.out); err != nil {
			s.reportWriteFailed()
			return core.Wrap(core.KindWriterRuntime, err, core.Context{"sink": s.id})
		}
		written++
	}
	if err := s.out.Flush(); err != nil {
		s.reportWriteFailed()
		return core.Wrap(core.KindWriterRuntime, err, core.Context{"sink": s.id})
	}
	s.reportWritten(written)
	return nil
}
