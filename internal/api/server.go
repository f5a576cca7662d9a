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

// Package api implements the loopback management HTTP server: blocklist
// control, WASM module load/reload/rollback, and state inspection. Every
// handler is authenticated by a constant-time comparison against a bearer
// token; none of it sits on a packet or request hot path.
package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"secbeat/internal/crdt"
	"secbeat/internal/wasm"
	"secbeat/internal/xdp"
)

// ModuleManager is the full surface the server drives for WASM control
// operations: load, swap, rollback, and listing. EngineManager
// (engine_adapter.go) adapts a *wasm.Engine to it.
type ModuleManager interface {
	Load(name string, image []byte) error
	Swap(name string, image []byte) error
	Rollback(name string) error
	Names() []string
	Info(name string) (wasm.ModuleInfo, bool)
}

// CounterSource is the subset of *crdt.Store the counters endpoint needs.
type CounterSource interface {
	ForEach(f func(crdt.Snapshot))
}

// Server is the management API. A single Server is shared across the
// process's lifetime; every handler is safe for concurrent use.
type Server struct {
	token     string
	blocklist xdp.Blocklist
	stats     *xdp.Stats
	modules   ModuleManager
	counters  CounterSource

	rates *rateTracker
}

// NewServer wires a Server against the node's live blocklist, packet stats,
// module manager, and counter store. token is the opaque bearer token every
// request must present.
func NewServer(token string, blocklist xdp.Blocklist, stats *xdp.Stats, modules ModuleManager, counters CounterSource) *Server {
	return &Server{
		token:     token,
		blocklist: blocklist,
		stats:     stats,
		modules:   modules,
		counters:  counters,
		rates:     newRateTracker(),
	}
}

// Mux builds the routed handler for every endpoint, wrapped in the bearer
// auth check.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/blocklist", s.handleBlocklist)
	mux.HandleFunc("/api/v1/blocklist/", s.handleBlocklistDelete)
	mux.HandleFunc("/api/v1/wasm/load", s.handleWASMLoad)
	mux.HandleFunc("/api/v1/wasm/reload", s.handleWASMReload)
	mux.HandleFunc("/api/v1/wasm/rollback", s.handleWASMRollback)
	mux.HandleFunc("/api/v1/wasm/modules", s.handleWASMModules)
	mux.HandleFunc("/api/v1/state/counters", s.handleStateCounters)
	return s.authenticate(mux)
}

// ListenAndServe starts the management API bound to addr. Intended for a
// loopback address only; the server applies no TLS of its own.
func (s *Server) ListenAndServe(addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Mux(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return httpServer.ListenAndServe()
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		h := r.Header.Get("Authorization")
		if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		presented := h[len(prefix):]
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) != 1 {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
