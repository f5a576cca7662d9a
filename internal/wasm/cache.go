// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: 2026
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

package wasm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// version is one compiled, immutable module tagged with load metadata.
// Modules are never mutated after load — "update" always installs a new
// version and atomically swaps which one is current.
type version struct {
	name       string
	compiled   CompiledModule
	loadedAt   time.Time
	generation uint64
}

// CompiledModule is the subset of wazero.CompiledModule the cache needs, kept
// as an interface so cache.go and its tests do not require a live wazero
// runtime.
type CompiledModule interface {
	Close(ctx context.Context) error
}

// entry holds the current version plus a bounded ring of previous versions
// retained for rollback (default depth 2, per the data model).
type entry struct {
	mu            sync.Mutex
	current       atomic.Pointer[version]
	previous      []*version // most recent first, capped at rollbackDepth
	rollbackDepth int
}

func newEntry(rollbackDepth int) *entry {
	if rollbackDepth < 0 {
		rollbackDepth = 0
	}
	return &entry{rollbackDepth: rollbackDepth}
}

// Cache is the module-name → current-version mapping the engine serves
// requests from. Readers (request tasks) take an atomic snapshot of the
// current version;
// the single hot-reload writer publishes a new snapshot atomically. No lock
// is held across a request's execution.
type Cache struct {
	mu            sync.RWMutex
	entries       map[string]*entry
	rollbackDepth int
	generation    atomic.Uint64
}

// NewCache builds an empty cache. rollbackDepth bounds how many superseded
// versions are kept per module name; a depth of 0 or less keeps none.
// NewEngine passes 2 unless configured otherwise.
func NewCache(rollbackDepth int) *Cache {
	return &Cache{
		entries:       make(map[string]*entry),
		rollbackDepth: rollbackDepth,
	}
}

// Current returns the live version for name, or false if no module by that
// name has ever been loaded.
func (c *Cache) Current(name string) (CompiledModule, bool) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	v := e.current.Load()
	if v == nil {
		return nil, false
	}
	return v.compiled, true
}

// Load installs compiled as the current version for name. Loading a name
// that already has an entry behaves exactly like Swap: the later load wins
// as current, and the previous current version is retained for rollback
// rather than rejected.
func (c *Cache) Load(name string, compiled CompiledModule) error {
	return c.Swap(name, compiled)
}

// Unload removes an entry entirely, closing its current and retained
// versions. Returns an error if name is not present.
func (c *Cache) Unload(ctx context.Context, name string) error {
	c.mu.Lock()
	e, ok := c.entries[name]
	if ok {
		delete(c.entries, name)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("wasm: module %q not loaded", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur := e.current.Load(); cur != nil {
		_ = cur.compiled.Close(ctx)
	}
	for _, v := range e.previous {
		_ = v.compiled.Close(ctx)
	}
	return nil
}

// Swap atomically replaces the current version of name with compiled,
// pushing the previous current version onto the rollback ring (evicting the
// oldest beyond rollbackDepth). The swap is a single pointer store — readers
// mid-request keep their already-acquired snapshot of the old version, per
// the hot-reload contract.
func (c *Cache) Swap(name string, compiled CompiledModule) error {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		e, ok = c.entries[name]
		if !ok {
			e = newEntry(c.rollbackDepth)
			c.entries[name] = e
		}
		c.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.current.Load()
	next := &version{name: name, compiled: compiled, loadedAt: time.Now(), generation: c.generation.Add(1)}
	e.current.Store(next)
	if old != nil {
		e.previous = append([]*version{old}, e.previous...)
		if len(e.previous) > e.rollbackDepth {
			evicted := e.previous[e.rollbackDepth:]
			e.previous = e.previous[:e.rollbackDepth]
			for _, v := range evicted {
				_ = v.compiled.Close(context.Background())
			}
		}
	}
	return nil
}

// Rollback makes the most recently retained previous version current again,
// demoting the version it replaces into the rollback ring in its place (so a
// second Rollback undoes the first). Returns an error if no previous version
// is retained.
func (c *Cache) Rollback(name string) error {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("wasm: module %q not loaded", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.previous) == 0 {
		return fmt.Errorf("wasm: module %q has no previous version to roll back to", name)
	}
	restored := e.previous[0]
	demoted := e.current.Load()
	e.current.Store(restored)
	e.previous = e.previous[1:]
	if demoted != nil {
		e.previous = append([]*version{demoted}, e.previous...)
	}
	return nil
}

// Names returns every currently loaded module name.
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	return names
}

// ModuleInfo summarizes one entry's current and retained versions for
// reporting, independent of any wazero type.
type ModuleInfo struct {
	Name               string
	CurrentGeneration  uint64
	CurrentLoadedAt    time.Time
	RetainedGenerations []uint64
}

// Info reports the current and retained generations for name.
func (c *Cache) Info(name string) (ModuleInfo, bool) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return ModuleInfo{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.current.Load()
	if cur == nil {
		return ModuleInfo{}, false
	}
	info := ModuleInfo{Name: name, CurrentGeneration: cur.generation, CurrentLoadedAt: cur.loadedAt}
	for _, v := range e.previous {
		info.RetainedGenerations = append(info.RetainedGenerations, v.generation)
	}
	return info, true
}
