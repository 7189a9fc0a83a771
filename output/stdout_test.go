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
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestConsoleSinkWritesOneLinePerEvent(t *testing.T) {
	formatter, err := NewFormatter("plain", "", 0)
	if err != nil {
		t.Fatalf("unexpected error building formatter: %v", err)
	}

	var buf bytes.Buffer
	sink := &ConsoleSink{
		sinkBase: newSinkBase("console-1", formatter, nil),
		out:      bufio.NewWriter(&buf),
	}

	if err := sink.Write(context.Background(), []string{"a", "b", "c"}, 3); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	for i, want := range []string{"a", "b", "c"} {
		if lines[i] != want {
			t.Fatalf("line %d: expected %q, got %q", i, want, lines[i])
		}
	}
}

func TestConsoleSinkID(t *testing.T) {
	sink := &ConsoleSink{sinkBase: newSinkBase("console-2", PlainFormatter{}, nil), out: bufio.NewWriter(&bytes.Buffer{})}
	if sink.ID() != "console-2" {
		t.Fatalf("expected id %q, got %q", "console-2", sink.ID())
	}
}
