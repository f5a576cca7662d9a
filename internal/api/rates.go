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
	"sync"
	"time"
)

// rateTracker derives a per-second rate from two successive cumulative
// counter samples. The first sample of a process's lifetime has no prior
// point to derive a rate from, so it reports zero.
type rateTracker struct {
	mu          sync.Mutex
	lastPassed  uint64
	lastDropped uint64
	lastAt      time.Time
	hasSample   bool
}

func newRateTracker() *rateTracker {
	return &rateTracker{}
}

func (t *rateTracker) sample(passed, dropped uint64, now time.Time) (passedPerSec, droppedPerSec float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasSample {
		t.lastPassed, t.lastDropped, t.lastAt, t.hasSample = passed, dropped, now, true
		return 0, 0
	}

	elapsed := now.Sub(t.lastAt).Seconds()
	if elapsed <= 0 {
		return 0, 0
	}
	passedPerSec = float64(passed-t.lastPassed) / elapsed
	droppedPerSec = float64(dropped-t.lastDropped) / elapsed

	t.lastPassed, t.lastDropped, t.lastAt = passed, dropped, now
	return passedPerSec, droppedPerSec
}
