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

	"github.com/tetratelabs/wazero"
)

// smokeTest executes a module once against the fixed synthetic request
// context before it is accepted into the cache. run() already rejects any
// return value outside the four defined actions, so a clean error here means
// the module is fit to become current. This is the only place an
// about-to-be-rejected module is ever instantiated.
func (e *Engine) smokeTest(ctx context.Context, compiled wazero.CompiledModule) error {
	_, err := e.run(ctx, compiled, synthetic())
	return err
}
