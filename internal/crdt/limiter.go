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

package crdt

// Limiter implements the rate-limit decision: increment the local slot,
// read the (eventually-consistent) global value, and decide whether the
// source should be throttled.
type Limiter struct {
	store *Store
	limit uint64
}

// NewLimiter wraps a Store with a fixed global limit. The limit is compared
// against Store.Value, which sums every node's last-known slot for the key —
// so the limiter only ever sees as much of "global truth" as has propagated
// over the bus, by design.
func NewLimiter(store *Store, limit int64) *Limiter {
	if limit < 0 {
		limit = 0
	}
	return &Limiter{store: store, limit: uint64(limit)}
}

// Admit records one request from sourceIP and reports whether it should be
// throttled. true means the caller should produce a RateLimit verdict.
func (l *Limiter) Admit(sourceIP string) (throttle bool, global uint64) {
	l.store.Increment(sourceIP, 1)
	global = l.store.Value(sourceIP)
	return global > l.limit, global
}
