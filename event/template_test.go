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

package event

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eventum-io/eventum/core"
)

func writeTemplate(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}
	return path
}

func TestNewRendererAllModeRendersEveryAlias(t *testing.T) {
	greeting := writeTemplate(t, "greeting.tpl", "hello {{ params.name }}")
	farewell := writeTemplate(t, "farewell.tpl", "bye {{ tags.0 }}")

	cfg := core.RawConfig{"jinja": map[string]interface{}{
		"mode": "all",
		"params": map[string]interface{}{
			"name": "world",
		},
		"templates": []interface{}{
			map[string]interface{}{"greeting": map[string]interface{}{"template": greeting}},
			map[string]interface{}{"farewell": map[string]interface{}{"template": farewell}},
		},
	}}

	r, err := NewRenderer(cfg, Params{GeneratorID: "gen-1"})
	if err != nil {
		t.Fatalf("unexpected error building renderer: %v", err)
	}

	events, err := r.Render(core.FromTime(time.Now()), []string{"t1"})
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected one event per declared alias in all mode, got %d: %v", len(events), events)
	}
	if events[0] != "hello world" {
		t.Fatalf("unexpected first event: %q", events[0])
	}
	if events[1] != "bye t1" {
		t.Fatalf("unexpected second event: %q", events[1])
	}
}

func TestNewRendererRejectsMissingTemplates(t *testing.T) {
	cfg := core.RawConfig{"jinja": map[string]interface{}{
		"mode":      "all",
		"templates": []interface{}{},
	}}

	if _, err := NewRenderer(cfg, Params{}); err == nil {
		t.Fatal("expected an error when no template aliases are declared")
	}
}

func TestNewRendererRejectsUnknownMode(t *testing.T) {
	tpl := writeTemplate(t, "only.tpl", "x")
	cfg := core.RawConfig{"jinja": map[string]interface{}{
		"mode": "round-robin",
		"templates": []interface{}{
			map[string]interface{}{"only": map[string]interface{}{"template": tpl}},
		},
	}}

	if _, err := NewRenderer(cfg, Params{}); err == nil {
		t.Fatal("expected an error for an unrecognized picking mode")
	}
}

func TestRendererSpinModePicksOneAliasPerCallInOrder(t *testing.T) {
	first := writeTemplate(t, "first.tpl", "first")
	second := writeTemplate(t, "second.tpl", "second")

	cfg := core.RawConfig{"jinja": map[string]interface{}{
		"mode": "spin",
		"templates": []interface{}{
			map[string]interface{}{"first": map[string]interface{}{"template": first}},
			map[string]interface{}{"second": map[string]interface{}{"template": second}},
		},
	}}

	r, err := NewRenderer(cfg, Params{})
	if err != nil {
		t.Fatalf("unexpected error building renderer: %v", err)
	}

	var got []string
	for i := 0; i < 4; i++ {
		events, err := r.Render(core.FromTime(time.Now()), nil)
		if err != nil {
			t.Fatalf("unexpected render error on call %d: %v", i, err)
		}
		if len(events) != 1 {
			t.Fatalf("spin mode should pick exactly one alias per call, got %d", len(events))
		}
		got = append(got, events[0])
	}

	want := []string{"first", "second", "first", "second"}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("call %d: expected %q, got %q (full sequence %v)", i, w, got[i], got)
		}
	}
}

func TestRendererLocalStatePerAlias(t *testing.T) {
	tpl := writeTemplate(t, "counter.tpl", "{{ locals.Get(\"count\", 0) }}")

	cfg := core.RawConfig{"jinja": map[string]interface{}{
		"mode": "all",
		"templates": []interface{}{
			map[string]interface{}{"counter": map[string]interface{}{"template": tpl}},
		},
	}}

	r, err := NewRenderer(cfg, Params{})
	if err != nil {
		t.Fatalf("unexpected error building renderer: %v", err)
	}

	events, err := r.Render(core.FromTime(time.Now()), nil)
	if err != nil {
		t.Fatalf("unexpected render error: %v", err)
	}
	if len(events) != 1 || events[0] != "0" {
		t.Fatalf("expected local state default of 0 on first render, got %v", events)
	}

	locals := r.LocalStates()
	if _, ok := locals["counter"]; !ok {
		t.Fatalf("expected a local state entry for alias %q, got %v", "counter", locals)
	}
}

func TestNewRendererRejectsInvalidTemplateSyntax(t *testing.T) {
	tpl := writeTemplate(t, "bad.tpl", "{% bogus_tag %}")

	cfg := core.RawConfig{"jinja": map[string]interface{}{
		"mode": "all",
		"templates": []interface{}{
			map[string]interface{}{"bad": map[string]interface{}{"template": tpl}},
		},
	}}

	if _, err := NewRenderer(cfg, Params{}); err == nil {
		t.Fatal("expected template compilation to fail for an unknown pongo2 tag")
	}
}
