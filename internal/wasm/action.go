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

import "fmt"

// Action is the verdict a compiled rule module returns for one request,
// encoded as the i32 return value of its exported entry point.
type Action int32

const (
	ActionAllow Action = iota
	ActionBlock
	ActionLog
	ActionRateLimit
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionBlock:
		return "block"
	case ActionLog:
		return "log"
	case ActionRateLimit:
		return "rate_limit"
	default:
		return fmt.Sprintf("action(%d)", a)
	}
}

// ParseAction validates a raw i32 return value against the four defined
// actions. Anything outside {0,1,2,3} is an engine-level failure — per the
// module cache's smoke test and the per-request execution contract, an
// out-of-range return is treated identically to a trap or fuel exhaustion.
func ParseAction(raw int32) (Action, error) {
	if raw < int32(ActionAllow) || raw > int32(ActionRateLimit) {
		return 0, fmt.Errorf("wasm: invalid action code %d, want 0-3", raw)
	}
	return Action(raw), nil
}
