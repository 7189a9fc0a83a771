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

import "github.com/eventum-io/eventum/core"

// Plugin is the event plugin contract the coordinator drives (spec.md
// §4.5): given one timestamp and the tags of the producer that emitted
// it, produce zero or more rendered events. Two kinds implement it —
// *Renderer ("jinja", template.go), the picker-driven pongo2 template
// engine, and *ScriptPlugin ("script", script.go), which instead hands
// the timestamp to an external subprocess and parses its stdout as a
// JSON array of strings, a JSON string or a single line. Both expose the same state-snapshot shape for the §6
// metrics document even though ScriptPlugin keeps no state of its own
// (original_source's script plugin has no locals/shared/globals access,
// only `timestamp`/`tags` — see script.go's doc comment).
type Plugin interface {
	Render(ts core.Timestamp, tags []string) ([]string, error)
	LocalStates() map[string]map[string]interface{}
	SharedState() map[string]interface{}
}
