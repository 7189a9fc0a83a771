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
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/eventum-io/eventum/core"
	"github.com/eventum-io/eventum/plugin"
)

// OpensearchSink bulk-indexes formatted events (spec.md §4.6
// "opensearch: `_bulk` indexing against a pool of hosts used in
// round-robin; per-item errors parsed from the bulk response; fallback
// to `_doc` when batch size is 1"), grounded on
// `original_source/eventum/plugins/output/plugins/opensearch/plugin.py`.
// The client is handed every configured host and round-robins across
// them itself (opensearch-go's default connection selector), the Go
// equivalent of the original's itertools.cycle host chooser.
type OpensearchSink struct {
	sinkBase
	client *opensearch.Client
	index  string
}

func init() {
	plugin.Register("output", "opensearch", func(settings map[string]interface{}, params interface{}) (interface{}, error) {
		r := core.NewConfigReader(settings)
		p, _ := params.(Params)

		hosts := r.GetStringArray("hosts", nil)
		if len(hosts) == 0 {
			return nil, core.NewError(core.KindConfiguration, core.Context{"plugin": "opensearch", "reason": "hosts is required"})
		}
		index := r.GetString("index", "")
		if index == "" {
			return nil, core.NewError(core.KindConfiguration, core.Context{"plugin": "opensearch", "reason": "index is required"})
		}

		cfg := opensearch.Config{
			Addresses: hosts,
			Username:  r.GetString("username", ""),
			Password:  r.GetString("password", ""),
		}
		if !r.GetBool("verify", true) {
			cfg.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
		}

		client, err := opensearch.NewClient(cfg)
		if err != nil {
			return nil, core.Wrap(core.KindInitialization, err, core.Context{"plugin": "opensearch"})
		}

		formatter, err := NewFormatter(r.GetString("format", "json"), r.GetString("template", ""), int(r.GetInt("indent", 0)))
		if err != nil {
			return nil, core.Wrap(core.KindConfiguration, err, core.Context{"plugin": "opensearch"})
		}

		return &OpensearchSink{
			sinkBase: newSinkBase(p.ID, formatter, p.Metrics),
			client:   client,
			index:    index,
		}, nil
	})
}

// Write indexes the batch: `_bulk` when more than one event formatted
// cleanly, a single `_doc` request otherwise.
func (s *OpensearchSink) Write(ctx context.Context, events []string, batchSize int) error {
	docs := s.formatBatch(events, batchSize)
	if len(docs) == 0 {
		return nil
	}

	var written int
	var err error
	if len(docs) == 1 {
		written, err = s.postDoc(ctx, docs[0])
	} else {
		written, err = s.postBulk(ctx, docs)
	}
	if err != nil {
		s.reportWriteFailed()
		return core.Wrap(core.KindWriterRuntime, err, core.Context{"sink": s.id})
	}
	s.reportWritten(written)
	return nil
}

func (s *OpensearchSink) postBulk(ctx context.Context, docs [][]byte) (int, error) {
	var body strings.Builder
	operation, _ := json.Marshal(map[string]interface{}{"index": map[string]string{"_index": s.index}})
	for _, d := range docs {
		body.Write(operation)
		body.WriteByte('\n')
		body.Write(d)
		body.WriteByte('\n')
	}

	req := opensearchapi.BulkRequest{Body: strings.NewReader(body.String())}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return 0, fmt.Errorf("bulk indexing: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, fmt.Errorf("reading bulk response: %w", err)
	}
	if res.IsError() {
		return 0, fmt.Errorf("bulk indexing failed with status %s: %s", res.Status(), string(raw))
	}

	var parsed bulkResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, fmt.Errorf("decoding bulk response: %w", err)
	}

	errs := parsed.itemErrors()
	if len(errs) > 0 {
		if len(errs) > 3 {
			errs = errs[:3]
		}
		return len(docs) - len(parsed.itemErrors()), fmt.Errorf("some events were not indexed: %v", errs)
	}
	return len(docs), nil
}

func (s *OpensearchSink) postDoc(ctx context.Context, doc []byte) (int, error) {
	req := opensearchapi.IndexRequest{Index: s.index, Body: strings.NewReader(string(doc))}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return 0, fmt.Errorf("posting document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("posting document failed with status %s: %s", res.Status(), string(raw))
	}
	return 1, nil
}

// bulkResponse mirrors the `_bulk` API's response shape just enough to
// extract per-item errors (plugin.py's `_get_bulk_response_errors`).
type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			Status int `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

func (b bulkResponse) itemErrors() []string {
	if !b.Errors {
		return nil
	}
	var out []string
	for _, item := range b.Items {
		if item.Index.Error.Type != "" {
			out = append(out, fmt.Sprintf("%s - %s", item.Index.Error.Type, item.Index.Error.Reason))
		}
	}
	return out
}
