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

// Package state implements the three render-time state scopes: local
// (per-template-alias), shared (per-generator) and global (per-host,
// cross-process).
package state

import "sync"

// Scope is the common key-value contract shared by all three state
// scopes (spec.md §3).
type Scope interface {
	Get(key string, def interface{}) interface{}
	Set(key string, value interface{})
	Update(m map[string]interface{})
	Clear()
	AsMap() map[string]interface{}
}

// InProcess is the in-process implementation backing both local and
// shared state. The spec promises single-writer use (the renderer
// thread), but a RWMutex is kept anyway as the belt-and-suspenders
// style the teacher's own shared.MessageBuffer and metric packages use.
type InProcess struct {
	mu    sync.RWMutex
	state map[string]interface{}
}

// NewInProcess builds an in-process scope, optionally seeded.
func NewInProcess(initial map[string]interface{}) *InProcess {
	if initial == nil {
		initial = map[string]interface{}{}
	}
	return &InProcess{state: initial}
}

// NewLocal builds a local scope: one per template alias.
func NewLocal() *InProcess {
	return NewInProcess(nil)
}

// NewShared builds a shared scope: one per generator.
func NewShared() *InProcess {
	return NewInProcess(nil)
}

func (s *InProcess) Get(key string, def interface{}) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.state[key]; ok {
		return v
	}
	return def
}

func (s *InProcess) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = value
}

func (s *InProcess) Update(m map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range m {
		s.state[k] = v
	}
}

func (s *InProcess) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = map[string]interface{}{}
}

func (s *InProcess) AsMap() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}
