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

// Package obslog wraps zerolog with the fields this domain's components log
// against most often: verdict, source IP, node id, module name.
package obslog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	base     zerolog.Logger
	initOnce sync.Once
)

// Init configures the process-wide base logger. Safe to call once at startup;
// subsequent calls are ignored so tests can call it defensively.
func Init(nodeID string, w io.Writer) {
	initOnce.Do(func() {
		if w == nil {
			w = os.Stderr
		}
		zerolog.TimeFieldFormat = time.RFC3339Nano
		base = zerolog.New(w).With().
			Timestamp().
			Str("node_id", nodeID).
			Logger()
	})
}

// L returns the process-wide base logger. Call Init first; the zero value
// writes to io.Discard so an un-initialized logger is silent, not a panic.
func L() zerolog.Logger {
	return base
}

// Verdict returns a logger pre-tagged with a packet/request verdict and the
// source IP that produced it — the pair nearly every fast-path log line needs.
func Verdict(verdict, sourceIP string) zerolog.Logger {
	return base.With().Str("verdict", verdict).Str("source_ip", sourceIP).Logger()
}

// Module returns a logger pre-tagged with a WASM module name, for hot-reload
// and engine-failure logging.
func Module(name string) zerolog.Logger {
	return base.With().Str("module_name", name).Logger()
}
