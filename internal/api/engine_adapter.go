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

package api

import (
	"context"

	"secbeat/internal/wasm"
)

// EngineManager adapts a live *wasm.Engine to the ModuleManager interface,
// supplying the background context the management API's control operations
// run under (none of them are on a request path, so no deadline is needed
// beyond what the caller's HTTP handler timeout already enforces).
type EngineManager struct {
	Engine *wasm.Engine
}

func (m EngineManager) Load(name string, image []byte) error {
	return m.Engine.LoadModule(context.Background(), name, image)
}

func (m EngineManager) Swap(name string, image []byte) error {
	return m.Engine.SwapModule(context.Background(), name, image)
}

func (m EngineManager) Rollback(name string) error {
	return m.Engine.Cache().Rollback(name)
}

func (m EngineManager) Names() []string {
	return m.Engine.Cache().Names()
}

func (m EngineManager) Info(name string) (wasm.ModuleInfo, bool) {
	return m.Engine.Cache().Info(name)
}
