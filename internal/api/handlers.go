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
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"secbeat/internal/crdt"
	"secbeat/internal/telemetry"
	"secbeat/internal/xdp"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statsResponse is the GET /api/v1/stats payload: aggregated packet counters
// plus a derived per-second rate computed against the server's last sample.
type statsResponse struct {
	Passed       uint64  `json:"passed"`
	Dropped      uint64  `json:"dropped"`
	PassedPerSec float64 `json:"passed_per_sec"`
	DroppedPerSec float64 `json:"dropped_per_sec"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	passed, dropped := s.stats.Totals()
	passedRate, droppedRate := s.rates.sample(passed, dropped, time.Now())
	writeJSON(w, http.StatusOK, statsResponse{
		Passed: passed, Dropped: dropped,
		PassedPerSec: passedRate, DroppedPerSec: droppedRate,
	})
}

type blocklistRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}

var reasonByName = map[string]xdp.ReasonCode{
	"manual":     xdp.ReasonManual,
	"syn_flood":  xdp.ReasonSYNFlood,
	"waf_block":  xdp.ReasonWAFBlock,
	"rate_limit": xdp.ReasonRateLimit,
}

func (s *Server) handleBlocklist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req blocklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	ip := net.ParseIP(req.IP)
	if ip == nil {
		writeError(w, http.StatusBadRequest, "invalid ip")
		return
	}
	reason, ok := reasonByName[req.Reason]
	if !ok {
		reason = xdp.ReasonManual
	}
	addr := xdp.IPv4ToUint32(ip)
	if err := s.blocklist.Block(addr, reason, 0); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	telemetry.ObserveBlock(req.Reason)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBlocklistDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ipStr := strings.TrimPrefix(r.URL.Path, "/api/v1/blocklist/")
	ip := net.ParseIP(ipStr)
	if ip == nil {
		writeError(w, http.StatusBadRequest, "invalid ip")
		return
	}
	if err := s.blocklist.Unblock(xdp.IPv4ToUint32(ip)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const maxWASMUpload = 4 << 20 // 4 MiB, generous above the 1 MiB guest memory ceiling

func (s *Server) readModuleUpload(r *http.Request) (name string, image []byte, err error) {
	if err = r.ParseMultipartForm(maxWASMUpload); err != nil {
		return "", nil, err
	}
	name = r.FormValue("name")
	file, _, err := r.FormFile("image")
	if err != nil {
		return "", nil, err
	}
	defer file.Close()
	image, err = io.ReadAll(io.LimitReader(file, maxWASMUpload))
	if err != nil {
		return "", nil, err
	}
	return name, image, nil
}

func (s *Server) handleWASMLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name, image, err := s.readModuleUpload(r)
	if err != nil || name == "" {
		telemetry.ObserveWASMReloadFailure()
		writeError(w, http.StatusBadRequest, "malformed upload")
		return
	}
	if err := s.modules.Load(name, image); err != nil {
		telemetry.ObserveWASMReloadFailure()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	telemetry.ObserveWASMReload()
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleWASMReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name, image, err := s.readModuleUpload(r)
	if err != nil || name == "" {
		telemetry.ObserveWASMReloadFailure()
		writeError(w, http.StatusBadRequest, "malformed upload")
		return
	}
	if err := s.modules.Swap(name, image); err != nil {
		telemetry.ObserveWASMReloadFailure()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	telemetry.ObserveWASMReload()
	w.WriteHeader(http.StatusOK)
}

type rollbackRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleWASMRollback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.modules.Rollback(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

type moduleVersionView struct {
	Name               string    `json:"name"`
	CurrentGeneration  uint64    `json:"current_generation"`
	CurrentLoadedAt    time.Time `json:"current_loaded_at"`
	RetainedGenerations []uint64 `json:"retained_generations"`
}

func (s *Server) handleWASMModules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	names := s.modules.Names()
	views := make([]moduleVersionView, 0, len(names))
	for _, name := range names {
		info, ok := s.modules.Info(name)
		if !ok {
			continue
		}
		views = append(views, moduleVersionView{
			Name:                info.Name,
			CurrentGeneration:   info.CurrentGeneration,
			CurrentLoadedAt:     info.CurrentLoadedAt,
			RetainedGenerations: info.RetainedGenerations,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

type counterView struct {
	IP     string            `json:"ip"`
	Global uint64            `json:"global"`
	Nodes  map[string]uint64 `json:"nodes"`
}

func (s *Server) handleStateCounters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	views := make([]counterView, 0)
	s.counters.ForEach(func(snap crdt.Snapshot) {
		views = append(views, counterView{IP: snap.Key, Global: snap.Global, Nodes: snap.Nodes})
	})
	writeJSON(w, http.StatusOK, views)
}
