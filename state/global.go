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

package state

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/gofrs/flock"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/eventum-io/eventum/core"
)

const (
	globalHeaderSize = 8
	globalBufferSize = 1 * 1024 * 1024
	globalRegionName = "eventum-jinja-globals"
)

// GlobalStore is the per-host, cross-process state scope (spec.md §3,
// §9): a fixed-size shared-memory region addressed by a well-known
// name, guarded by a file-based advisory lock. The region layout is an
// 8-byte big-endian length prefix followed by a MessagePack-serialized
// map (spec.md §6 "Shared-memory layout").
type GlobalStore struct {
	mu      sync.Mutex
	region  mmap.MMap
	file    *os.File
	lock    *flock.Flock
	locked  bool
	pending map[string]interface{}
	creator bool
}

// NewGlobalStore opens or creates the shared-memory region and its
// companion lock file. Every generator on the host that names the same
// region shares the same store.
func NewGlobalStore(regionDir string) (*GlobalStore, error) {
	if regionDir == "" {
		regionDir = os.TempDir()
	}
	regionPath := filepath.Join(regionDir, globalRegionName)
	lockPath := filepath.Join(regionDir, globalRegionName+".lock")

	_, statErr := os.Stat(regionPath)
	creator := os.IsNotExist(statErr)

	f, err := os.OpenFile(regionPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, core.Wrap(core.KindInitialization, err, core.Context{
			"component": "global_state",
			"path":      regionPath,
		})
	}
	if creator {
		if err := f.Truncate(globalBufferSize); err != nil {
			f.Close()
			return nil, core.Wrap(core.KindInitialization, err, core.Context{
				"component": "global_state",
				"path":      regionPath,
			})
		}
	}

	region, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, core.Wrap(core.KindInitialization, err, core.Context{
			"component": "global_state",
			"path":      regionPath,
		})
	}

	store := &GlobalStore{
		region: region,
		file:   f,
		lock:   flock.New(lockPath),
		creator: creator,
	}

	if creator {
		if err := store.withLock(func() error { return store.writeState(map[string]interface{}{}) }); err != nil {
			return nil, err
		}
	}

	return store, nil
}

func (s *GlobalStore) withLock(fn func() error) error {
	if err := s.lock.Lock(); err != nil {
		return core.Wrap(core.KindUnexpected, err, core.Context{"component": "global_state"})
	}
	defer s.lock.Unlock()
	return fn()
}

// writeState encodes and writes state under the caller-held lock.
func (s *GlobalStore) writeState(state map[string]interface{}) error {
	encoded, err := msgpack.Marshal(state)
	if err != nil {
		return core.Wrap(core.KindUnexpected, err, core.Context{"component": "global_state"})
	}
	total := globalHeaderSize + len(encoded)
	if total > len(s.region) {
		return core.ErrRegionTooSmall
	}

	binary.BigEndian.PutUint64(s.region[:globalHeaderSize], uint64(len(encoded)))
	copy(s.region[globalHeaderSize:total], encoded)
	return nil
}

// loadState decodes state under the caller-held lock.
func (s *GlobalStore) loadState() (map[string]interface{}, error) {
	size := binary.BigEndian.Uint64(s.region[:globalHeaderSize])
	if globalHeaderSize+int(size) > len(s.region) {
		return nil, core.ErrCorruptRegion
	}

	var state map[string]interface{}
	dec := msgpack.NewDecoder(bytes.NewReader(s.region[globalHeaderSize : globalHeaderSize+int(size)]))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&state); err != nil {
		return nil, core.Wrap(core.KindUnexpected, core.ErrCorruptRegion, core.Context{"reason": err.Error()})
	}
	if state == nil {
		state = map[string]interface{}{}
	}
	return state, nil
}

// Get reads key without holding the lock across the call, unless a
// get-for-update transaction is already in progress, in which case it
// reads the pending (locked) state instead.
func (s *GlobalStore) Get(key string, def interface{}) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		if v, ok := s.pending[key]; ok {
			return v
		}
		return def
	}

	var result interface{} = def
	s.withLock(func() error {
		state, err := s.loadState()
		if err != nil {
			return err
		}
		if v, ok := state[key]; ok {
			result = v
		}
		return nil
	})
	return result
}

// Set writes key=value, closing out any in-progress get-for-update
// transaction.
func (s *GlobalStore) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		s.pending[key] = value
		s.writeState(s.pending)
		s.lock.Unlock()
		s.locked = false
		return
	}

	s.withLock(func() error {
		state, err := s.loadState()
		if err != nil {
			return err
		}
		state[key] = value
		return s.writeState(state)
	})
}

// Update merges m into the state, closing out any in-progress
// get-for-update transaction.
func (s *GlobalStore) Update(m map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		for k, v := range m {
			s.pending[k] = v
		}
		s.writeState(s.pending)
		s.lock.Unlock()
		s.locked = false
		return
	}

	s.withLock(func() error {
		state, err := s.loadState()
		if err != nil {
			return err
		}
		for k, v := range m {
			state[k] = v
		}
		return s.writeState(state)
	})
}

// Clear empties the state, closing out any in-progress get-for-update
// transaction.
func (s *GlobalStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		s.writeState(map[string]interface{}{})
		s.lock.Unlock()
		s.locked = false
		return
	}

	s.withLock(func() error { return s.writeState(map[string]interface{}{}) })
}

// AsMap returns a snapshot of the whole state.
func (s *GlobalStore) AsMap() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		out := make(map[string]interface{}, len(s.pending))
		for k, v := range s.pending {
			out[k] = v
		}
		return out
	}

	var result map[string]interface{}
	s.withLock(func() error {
		state, err := s.loadState()
		if err != nil {
			return err
		}
		result = state
		return nil
	})
	return result
}

// GetForUpdate acquires the exclusive lock, loads the current value for
// key and leaves the lock held until Set/Update/Clear/CancelUpdate is
// next called — a transactional read-modify-write primitive (spec.md
// §5 "get-for-update").
func (s *GlobalStore) GetForUpdate(key string, def interface{}) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		if v, ok := s.pending[key]; ok {
			return v
		}
		return def
	}

	if err := s.lock.Lock(); err != nil {
		return def
	}
	s.locked = true

	state, err := s.loadState()
	if err != nil {
		s.lock.Unlock()
		s.locked = false
		return def
	}
	s.pending = state

	if v, ok := s.pending[key]; ok {
		return v
	}
	return def
}

// CancelUpdate releases a lock acquired by GetForUpdate without
// writing anything.
func (s *GlobalStore) CancelUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		s.lock.Unlock()
		s.locked = false
		s.pending = nil
	}
}

// Close releases the mapped region and closes its backing file. The
// file itself is left in place so other processes can keep attaching
// to it; explicit removal is a separate, opt-in cleanup operation the
// spec intentionally leaves out of the generator's normal lifecycle.
func (s *GlobalStore) Close() error {
	if err := s.region.Unmap(); err != nil {
		return err
	}
	return s.file.Close()
}
