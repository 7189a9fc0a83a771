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

// Package output implements the write subsystem: formatters that turn an
// event batch into bytes-ready events, sinks that write them, and the
// fan-out controller that dispatches a batch to every configured sink.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
)

// FormattedEvent is one formatted, write-ready event. Err is set when
// formatting this particular event failed; the formatter still emits a
// placeholder entry so the caller can count and log the failure against
// the original event (spec.md §4.6 "Formatting errors are collected
// per-event").
type FormattedEvent struct {
	Bytes    []byte
	Err      error
	Original string
}

// Formatter turns a batch of rendered events into a batch of
// FormattedEvent, one of the five named modes plus eventum-http-input
// (spec.md §4.6).
type Formatter interface {
	Format(events []string, batchSize int) []FormattedEvent
}

// NewFormatter builds a Formatter for the given mode. tmplPath is only
// consulted by the template/template-batch modes. indent is only
// consulted by json/json-batch.
func NewFormatter(mode, tmplPath string, indent int) (Formatter, error) {
	switch mode {
	case "plain", "":
		return PlainFormatter{}, nil
	case "json":
		return JSONFormatter{Indent: indent}, nil
	case "json-batch":
		return JSONBatchFormatter{Indent: indent}, nil
	case "template":
		tpl, err := template.ParseFiles(tmplPath)
		if err != nil {
			return nil, fmt.Errorf("parsing output template %q: %w", tmplPath, err)
		}
		return TemplateFormatter{tpl: tpl}, nil
	case "template-batch":
		tpl, err := template.ParseFiles(tmplPath)
		if err != nil {
			return nil, fmt.Errorf("parsing output template %q: %w", tmplPath, err)
		}
		return TemplateBatchFormatter{tpl: tpl}, nil
	case "eventum-http-input":
		return HTTPInputFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", mode)
	}
}

// PlainFormatter passes each event through unchanged.
type PlainFormatter struct{}

func (PlainFormatter) Format(events []string, batchSize int) []FormattedEvent {
	out := make([]FormattedEvent, len(events))
	for i, e := range events {
		out[i] = FormattedEvent{Bytes: []byte(e), Original: e}
	}
	return out
}

// JSONFormatter validates each event as JSON and re-emits it
// pretty-printed with the configured indent.
type JSONFormatter struct {
	Indent int
}

func (f JSONFormatter) Format(events []string, batchSize int) []FormattedEvent {
	out := make([]FormattedEvent, len(events))
	indent := indentString(f.Indent)
	for i, e := range events {
		var v interface{}
		if err := json.Unmarshal([]byte(e), &v); err != nil {
			out[i] = FormattedEvent{Err: fmt.Errorf("event is not valid JSON: %w", err), Original: e}
			continue
		}
		pretty, err := json.MarshalIndent(v, "", indent)
		if err != nil {
			out[i] = FormattedEvent{Err: err, Original: e}
			continue
		}
		out[i] = FormattedEvent{Bytes: pretty, Original: e}
	}
	return out
}

// JSONBatchFormatter combines every event in the batch into a single
// JSON array. A single malformed event fails the whole batch, since
// there is no way to emit "the rest" of a JSON array independently.
type JSONBatchFormatter struct {
	Indent int
}

func (f JSONBatchFormatter) Format(events []string, batchSize int) []FormattedEvent {
	values := make([]interface{}, len(events))
	for i, e := range events {
		var v interface{}
		if err := json.Unmarshal([]byte(e), &v); err != nil {
			return []FormattedEvent{{Err: fmt.Errorf("event %d is not valid JSON: %w", i, err)}}
		}
		values[i] = v
	}
	pretty, err := json.MarshalIndent(values, "", indentString(f.Indent))
	if err != nil {
		return []FormattedEvent{{Err: err}}
	}
	return []FormattedEvent{{Bytes: pretty}}
}

// TemplateFormatter renders a user-supplied text/template once per
// event. A distinct engine from the event-rendering subsystem's pongo2
// set — this template frames *output*, not event content, matching the
// original's separate formatter-template concern.
type TemplateFormatter struct {
	tpl *template.Template
}

func (f TemplateFormatter) Format(events []string, batchSize int) []FormattedEvent {
	out := make([]FormattedEvent, len(events))
	for i, e := range events {
		var buf bytes.Buffer
		if err := f.tpl.Execute(&buf, map[string]interface{}{"event": e}); err != nil {
			out[i] = FormattedEvent{Err: err, Original: e}
			continue
		}
		out[i] = FormattedEvent{Bytes: buf.Bytes(), Original: e}
	}
	return out
}

// TemplateBatchFormatter renders the user-supplied template once over
// the whole batch.
type TemplateBatchFormatter struct {
	tpl *template.Template
}

func (f TemplateBatchFormatter) Format(events []string, batchSize int) []FormattedEvent {
	var buf bytes.Buffer
	if err := f.tpl.Execute(&buf, map[string]interface{}{"events": events}); err != nil {
		return []FormattedEvent{{Err: err}}
	}
	return []FormattedEvent{{Bytes: buf.Bytes()}}
}

// HTTPInputFormatter aggregates the batch into a single
// `{"count": N}` event, matching the wire shape the `http` input
// producer's `/generate` endpoint expects (spec.md §4.6).
type HTTPInputFormatter struct{}

func (HTTPInputFormatter) Format(events []string, batchSize int) []FormattedEvent {
	payload, err := json.Marshal(map[string]int{"count": batchSize})
	if err != nil {
		return []FormattedEvent{{Err: err}}
	}
	return []FormattedEvent{{Bytes: payload}}
}

func indentString(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
