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

// Package plugin is the plugin registry (spec.md §4.7): producer, event
// and output kinds register a constructor under their kind string from an
// init() function, the same way gollum's shared.TypeRegistry registers
// plugins under their Go type name. Loader calls are memoized.
package plugin

import (
	"fmt"
	"sync"
)

// Constructor builds a plugin instance from its already-validated settings
// and the small params record described in spec.md §4.7 (id, timezone for
// producers, global-state handle for event plugins). The concrete params
// type differs per kind category (input/event/output), so it travels as
// interface{} here and is type-asserted by the category-specific loader
// in input/, event/ and output/.
type Constructor func(settings map[string]interface{}, params interface{}) (interface{}, error)

type registry struct {
	mu    sync.Mutex
	ctors map[string]map[string]Constructor
	cache map[string]interface{}
}

var global = &registry{
	ctors: make(map[string]map[string]Constructor),
	cache: make(map[string]interface{}),
}

// Register records a constructor for (category, kind), e.g.
// ("input", "cron"). Called from plugin files' init().
func Register(category, kind string, ctor Constructor) {
	global.mu.Lock()
	defer global.mu.Unlock()

	kinds, ok := global.ctors[category]
	if !ok {
		kinds = make(map[string]Constructor)
		global.ctors[category] = kinds
	}
	kinds[kind] = ctor
}

// New constructs a plugin of the given category/kind. Results are
// memoized per (category, kind, id) triple, matching spec.md's "loader
// calls are memoized" requirement.
func New(category, kind, id string, settings map[string]interface{}, params interface{}) (interface{}, error) {
	global.mu.Lock()
	ctor, ok := global.ctors[category][kind]
	if !ok {
		global.mu.Unlock()
		return nil, fmt.Errorf("plugin registry: no %s plugin registered for kind %q", category, kind)
	}
	cacheKey := category + "/" + kind + "/" + id
	if cached, ok := global.cache[cacheKey]; ok {
		global.mu.Unlock()
		return cached, nil
	}
	global.mu.Unlock()

	instance, err := ctor(settings, params)
	if err != nil {
		return nil, err
	}

	global.mu.Lock()
	global.cache[cacheKey] = instance
	global.mu.Unlock()

	return instance, nil
}

// Kinds returns the registered kind names for a category, for error
// messages and config validation.
func Kinds(category string) []string {
	global.mu.Lock()
	defer global.mu.Unlock()

	out := make([]string, 0, len(global.ctors[category]))
	for k := range global.ctors[category] {
		out = append(out, k)
	}
	return out
}
