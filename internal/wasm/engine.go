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
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// EntryPoint is the export name every rule module must provide:
// func(ptr, len uint32) (action int32).
const EntryPoint = "inspect"

// AllocExport is the guest-provided allocator a module must export so the
// host can place the serialized request context in guest linear memory
// without guessing at an address. FreeExport names the matching free
// function; the engine neither requires nor calls it.
const (
	AllocExport = "alloc"
	FreeExport  = "dealloc"
)

// Engine evaluates compiled rule modules against request contexts under a
// strict fuel and memory budget. The runtime and compiled modules are shared
// and reused across requests; stores and instances never are — that is the
// memory-safety argument, not a missed optimization.
type Engine struct {
	runtime     wazero.Runtime
	cache       *Cache
	fuelBudget  int64
	memoryPages uint32
	timeout     time.Duration
}

// EngineOptions configures resource defaults for every instantiation.
type EngineOptions struct {
	FuelBudget    int64         // default 100,000 step-equivalents
	MemoryPages   uint32        // default 16 pages = 1 MiB
	Timeout       time.Duration // default 100ms
	RollbackDepth int           // default 2
}

// DefaultEngineOptions returns the engine's stated resource defaults.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		FuelBudget:    100_000,
		MemoryPages:   16,
		Timeout:       100 * time.Millisecond,
		RollbackDepth: 2,
	}
}

// NewEngine builds a wazero runtime configured with the memory ceiling from
// opts and a fresh, empty module cache.
func NewEngine(ctx context.Context, opts EngineOptions) *Engine {
	if opts.FuelBudget <= 0 {
		opts.FuelBudget = 100_000
	}
	if opts.MemoryPages <= 0 {
		opts.MemoryPages = 16
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 100 * time.Millisecond
	}
	if opts.RollbackDepth <= 0 {
		opts.RollbackDepth = 2
	}
	cfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(opts.MemoryPages).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	return &Engine{
		runtime:     rt,
		cache:       NewCache(opts.RollbackDepth),
		fuelBudget:  opts.FuelBudget,
		memoryPages: opts.MemoryPages,
		timeout:     opts.Timeout,
	}
}

// Close releases the runtime and every cached module.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Cache exposes the module cache for load/swap/rollback control operations.
func (e *Engine) Cache() *Cache { return e.cache }

// compile parses and validates a byte image against the entry point and
// allocator exports the engine requires. It does not instantiate — a
// compiled module has no linear memory or execution state of its own until
// Instantiate is called per request.
func (e *Engine) compile(ctx context.Context, image []byte) (wazero.CompiledModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("wasm: compile: %w", err)
	}
	if err := requireExports(compiled); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}
	return compiled, nil
}

func requireExports(compiled wazero.CompiledModule) error {
	exports := compiled.ExportedFunctions()
	for _, name := range []string{EntryPoint, AllocExport} {
		if _, ok := exports[name]; !ok {
			return fmt.Errorf("wasm: module missing required export %q", name)
		}
	}
	return nil
}

// LoadModule compiles image, runs the smoke test, and installs it as the
// current version under name. If name is already loaded, this behaves like
// SwapModule: the previous version is retained for rollback.
func (e *Engine) LoadModule(ctx context.Context, name string, image []byte) error {
	compiled, err := e.compile(ctx, image)
	if err != nil {
		return err
	}
	if err := e.smokeTest(ctx, compiled); err != nil {
		_ = compiled.Close(ctx)
		return fmt.Errorf("wasm: smoke test failed for %q: %w", name, err)
	}
	return e.cache.Load(name, compiledModuleAdapter{compiled})
}

// SwapModule atomically replaces the current version of name, running the
// same smoke test first. On failure the current module is left untouched.
func (e *Engine) SwapModule(ctx context.Context, name string, image []byte) error {
	compiled, err := e.compile(ctx, image)
	if err != nil {
		return err
	}
	if err := e.smokeTest(ctx, compiled); err != nil {
		_ = compiled.Close(ctx)
		return fmt.Errorf("wasm: smoke test failed for %q: %w", name, err)
	}
	return e.cache.Swap(name, compiledModuleAdapter{compiled})
}

// compiledModuleAdapter satisfies the cache's minimal CompiledModule
// interface while retaining the concrete wazero type for instantiation.
type compiledModuleAdapter struct {
	wazero.CompiledModule
}

// Inspect runs exactly one request through the current module named name.
// It acquires a snapshot of the current version, builds a fresh store and
// instance bound to the engine's fuel and memory budget, copies the
// serialized request context into guest memory, invokes the entry point,
// and unconditionally tears the instance down before returning — per
// invariant, stores and instances are never reused across requests.
func (e *Engine) Inspect(ctx context.Context, moduleName string, rc RequestContext) (Action, error) {
	current, ok := e.cache.Current(moduleName)
	if !ok {
		return 0, fmt.Errorf("wasm: no module loaded named %q", moduleName)
	}
	adapter, ok := current.(compiledModuleAdapter)
	if !ok {
		return 0, fmt.Errorf("wasm: cache entry for %q is not a wazero module", moduleName)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	return e.run(ctx, adapter.CompiledModule, rc.Encode())
}

func (e *Engine) run(ctx context.Context, compiled wazero.CompiledModule, payload []byte) (Action, error) {
	meter := newFuelMeter(e.fuelBudget)
	ctx = withFuelListener(ctx, meter)

	modCfg := wazero.NewModuleConfig().WithName("")
	mod, err := e.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return 0, fmt.Errorf("wasm: instantiate: %w", err)
	}
	defer mod.Close(ctx)

	raw, err := e.invoke(ctx, mod, payload)
	if err != nil {
		return 0, err
	}
	return ParseAction(raw)
}

func (e *Engine) invoke(ctx context.Context, mod api.Module, payload []byte) (result int32, err error) {
	defer func() {
		if r := recover(); r != nil {
			if r == error(ErrFuelExhausted) {
				err = ErrFuelExhausted
				return
			}
			err = fmt.Errorf("wasm: panic during execution: %v", r)
		}
	}()

	alloc := mod.ExportedFunction(AllocExport)
	entry := mod.ExportedFunction(EntryPoint)
	if alloc == nil || entry == nil {
		return 0, fmt.Errorf("wasm: module missing required exports at instantiation time")
	}

	allocRes, err := alloc.Call(ctx, uint64(len(payload)))
	if err != nil {
		return 0, fmt.Errorf("wasm: alloc: %w", err)
	}
	ptr := uint32(allocRes[0])

	if !mod.Memory().Write(ptr, payload) {
		return 0, fmt.Errorf("wasm: failed to write request context into guest memory")
	}

	res, err := entry.Call(ctx, uint64(ptr), uint64(len(payload)))
	if err != nil {
		return 0, fmt.Errorf("wasm: inspect: %w", err)
	}
	if len(res) != 1 {
		return 0, fmt.Errorf("wasm: inspect returned %d values, want 1", len(res))
	}
	return int32(res[0]), nil
}
