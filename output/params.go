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

import "github.com/eventum-io/eventum/core"

// Params is the small params record passed to every sink constructor
// (spec.md §4.7): its id, within-generator unique, and the metrics
// registry it reports written/write_failed/format_failed counts to.
type Params struct {
	ID      string
	Metrics *core.Metrics
}
