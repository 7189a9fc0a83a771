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
	"os"
	"path/filepath"
	"testing"

	"github.com/eventum-io/eventum/core"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "generator.yml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadGeneratorConfigSubstitutesParamsAndSecrets(t *testing.T) {
	t.Setenv("EVENTUM_SECRET_API_KEY", "s3cr3t")

	path := writeConfig(t, `
id: ${params.gen_id}
batch:
  size: 10
input:
  - timer:
      interval: 1
event:
  jinja:
    templates:
      - alias: main
        template: "hello"
output:
  - http:
      url: "https://example.com"
      api_key: "${secrets.API_KEY}"
`)

	cfg, err := loadGeneratorConfig(path, map[string]string{"gen_id": "gen-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Params.ID != "gen-1" {
		t.Fatalf("expected id substituted from params, got %q", cfg.Params.ID)
	}

	outputSettings := cfg.Output[0].Settings()
	if outputSettings["api_key"] != "s3cr3t" {
		t.Fatalf("expected secret substituted, got %v", outputSettings["api_key"])
	}
}

func TestLoadGeneratorConfigRejectsMissingID(t *testing.T) {
	path := writeConfig(t, `
input:
  - timer:
      interval: 1
event:
  jinja:
    templates: []
output:
  - stdout: {}
`)

	_, err := loadGeneratorConfig(path, nil)
	if err == nil {
		t.Fatal("expected an error for a missing id")
	}
	if tagged, ok := err.(*core.Error); !ok || tagged.Kind() != core.KindConfiguration {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestLoadGeneratorConfigRejectsEmptyInput(t *testing.T) {
	path := writeConfig(t, `
id: gen
input: []
event:
  jinja:
    templates: []
output:
  - stdout: {}
`)

	_, err := loadGeneratorConfig(path, nil)
	if err == nil {
		t.Fatal("expected an error for empty input")
	}
}

func TestLoadGeneratorConfigRejectsMissingEvent(t *testing.T) {
	path := writeConfig(t, `
id: gen
input:
  - timer:
      interval: 1
output:
  - stdout: {}
`)

	_, err := loadGeneratorConfig(path, nil)
	if err == nil {
		t.Fatal("expected an error for a missing event plugin")
	}
}

func TestLoadGeneratorConfigNormalizesNestedMaps(t *testing.T) {
	path := writeConfig(t, `
id: gen
batch:
  size: 10
input:
  - http:
      endpoints:
        generate: /generate
        stop: /stop
event:
  jinja:
    templates:
      - alias: main
        template: "hi"
output:
  - stdout: {}
`)

	cfg, err := loadGeneratorConfig(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	settings := cfg.Input[0].Settings()
	nested, ok := settings["endpoints"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected nested map to normalize to map[string]interface{}, got %T", settings["endpoints"])
	}
	if nested["generate"] != "/generate" {
		t.Fatalf("unexpected nested value: %v", nested)
	}
}

func TestLoadGeneratorConfigRejectsUnknownTimeMode(t *testing.T) {
	path := writeConfig(t, `
id: gen
time_mode: eventually
input:
  - timer:
      interval: 1
event:
  jinja:
    templates: []
output:
  - stdout: {}
`)

	_, err := loadGeneratorConfig(path, nil)
	if err == nil {
		t.Fatal("expected an error for an unknown time_mode")
	}
}

func TestLoadGeneratorConfigRequiresBatchSizeOrDelay(t *testing.T) {
	path := writeConfig(t, `
id: gen
input:
  - timer:
      interval: 1
event:
  jinja:
    templates: []
output:
  - stdout: {}
`)

	_, err := loadGeneratorConfig(path, nil)
	if err == nil {
		t.Fatal("expected an error when neither batch.size nor batch.delay is set")
	}
}
