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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
)

// SampleConfig describes one named sample (spec.md §4.5): inline
// items, a CSV file, or a JSON file, loaded once on startup.
type SampleConfig struct {
	Type      string // "items", "csv", "json"
	Items     []interface{}
	Source    string
	CSVHeader bool
	Delimiter rune
}

// LoadSamples loads every configured sample eagerly, keyed by name.
func LoadSamples(configs map[string]SampleConfig) (map[string][]interface{}, error) {
	samples := make(map[string][]interface{}, len(configs))
	for name, cfg := range configs {
		rows, err := loadSample(cfg)
		if err != nil {
			return nil, fmt.Errorf("loading sample %q: %w", name, err)
		}
		samples[name] = rows
	}
	return samples, nil
}

func loadSample(cfg SampleConfig) ([]interface{}, error) {
	switch cfg.Type {
	case "items":
		return cfg.Items, nil
	case "csv":
		return loadCSVSample(cfg)
	case "json":
		return loadJSONSample(cfg)
	default:
		return nil, fmt.Errorf("unknown sample type %q", cfg.Type)
	}
}

func loadCSVSample(cfg SampleConfig) ([]interface{}, error) {
	f, err := os.Open(cfg.Source)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if cfg.Delimiter != 0 {
		reader.Comma = cfg.Delimiter
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var header []string
	if cfg.CSVHeader && len(records) > 0 {
		header = records[0]
		records = records[1:]
	}

	rows := make([]interface{}, len(records))
	for i, rec := range records {
		if header != nil {
			row := make(map[string]interface{}, len(header))
			for j, col := range header {
				if j < len(rec) {
					row[col] = rec[j]
				}
			}
			rows[i] = row
		} else {
			row := make([]interface{}, len(rec))
			for j, v := range rec {
				row[j] = v
			}
			rows[i] = row
		}
	}
	return rows, nil
}

func loadJSONSample(cfg SampleConfig) ([]interface{}, error) {
	data, err := os.ReadFile(cfg.Source)
	if err != nil {
		return nil, err
	}
	var rows []interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
