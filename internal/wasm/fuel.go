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
	"errors"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
)

// ErrFuelExhausted is returned when a module burns through its per-request
// step budget. The per-request execution contract treats this identically to
// a trap or an invalid return code: engine-level failure, request never
// reaches the origin.
var ErrFuelExhausted = errors.New("wasm: fuel exhausted")

// fuelMeter counts one unit per guest function call (wazero has no built-in
// instruction-level fuel counter; counting calls via a FunctionListener is
// the coarse but dependency-free approximation this engine uses as its
// step-equivalent budget). It aborts the module by panicking with
// ErrFuelExhausted once the budget is spent, which wazero recovers into a
// *wasm.FuelExhaustedError-flavored sys.ExitError for Call to return.
type fuelMeter struct {
	budget    int64
	remaining atomic.Int64
}

func newFuelMeter(budget int64) *fuelMeter {
	m := &fuelMeter{budget: budget}
	m.remaining.Store(budget)
	return m
}

func (m *fuelMeter) reset() {
	m.remaining.Store(m.budget)
}

// consume deducts n units and panics if the budget is exhausted. wazero
// catches panics thrown from within a FunctionListener's Before/After hooks
// and surfaces them as the function call's error, which is exactly the
// "engine-level failure" the per-request execution contract calls for.
func (m *fuelMeter) consume(n int64) {
	if m.remaining.Add(-n) < 0 {
		panic(ErrFuelExhausted)
	}
}

// fuelListenerFactory implements experimental.FunctionListenerFactory,
// attaching one listener per exported and imported function so every guest
// call (and, conservatively, every host call back into the module) costs
// fuel.
type fuelListenerFactory struct {
	meter *fuelMeter
}

func (f fuelListenerFactory) NewListener(def api.FunctionDefinition) experimental.FunctionListener {
	return fuelListener{meter: f.meter}
}

type fuelListener struct {
	meter *fuelMeter
}

func (l fuelListener) Before(ctx context.Context, mod api.Module, def api.FunctionDefinition, params []uint64, stack experimental.StackIterator) context.Context {
	l.meter.consume(1)
	return ctx
}

func (l fuelListener) After(ctx context.Context, mod api.Module, def api.FunctionDefinition, results []uint64) {
}

// withFuelListener installs a fuel-metering FunctionListenerFactory into ctx
// for the duration of one Call.
func withFuelListener(ctx context.Context, meter *fuelMeter) context.Context {
	return experimental.WithFunctionListenerFactory(ctx, fuelListenerFactory{meter: meter})
}
