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
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"secbeat/internal/crdt"
	"secbeat/internal/wasm"
	"secbeat/internal/xdp"
)

type fakeModuleManager struct {
	loaded   map[string][]byte
	loadErr  error
	swapErr  error
	rollback error
}

func newFakeModuleManager() *fakeModuleManager {
	return &fakeModuleManager{loaded: make(map[string][]byte)}
}

func (f *fakeModuleManager) Load(name string, image []byte) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loaded[name] = image
	return nil
}

func (f *fakeModuleManager) Swap(name string, image []byte) error {
	if f.swapErr != nil {
		return f.swapErr
	}
	f.loaded[name] = image
	return nil
}

func (f *fakeModuleManager) Rollback(name string) error { return f.rollback }

func (f *fakeModuleManager) Names() []string {
	names := make([]string, 0, len(f.loaded))
	for n := range f.loaded {
		names = append(names, n)
	}
	return names
}

func (f *fakeModuleManager) Info(name string) (wasm.ModuleInfo, bool) {
	if _, ok := f.loaded[name]; !ok {
		return wasm.ModuleInfo{}, false
	}
	return wasm.ModuleInfo{Name: name, CurrentGeneration: 1, CurrentLoadedAt: time.Unix(0, 0)}, true
}

func newTestServer() (*Server, *fakeModuleManager) {
	bl := xdp.NewSoftBlocklist(100)
	stats := xdp.NewStats()
	modules := newFakeModuleManager()
	store := crdt.NewStore("node-a", 2)
	s := NewServer("secret-token", bl, stats, modules, store)
	return s, modules
}

func authedRequest(method, path string, body *bytes.Buffer) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, path, body)
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	r.Header.Set("Authorization", "Bearer secret-token")
	return r
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	s, _ := newTestServer()
	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestStatsReturnsZeroRateOnFirstSample(t *testing.T) {
	s, _ := newTestServer()
	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/stats", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp statsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.PassedPerSec != 0 || resp.DroppedPerSec != 0 {
		t.Fatalf("first sample rates = (%v, %v), want (0, 0)", resp.PassedPerSec, resp.DroppedPerSec)
	}
}

func TestBlocklistInsertAndDelete(t *testing.T) {
	s, _ := newTestServer()

	body := bytes.NewBufferString(`{"ip":"198.51.100.7","reason":"manual"}`)
	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, authedRequest(http.MethodPost, "/api/v1/blocklist", body))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("insert status = %d, want 204", rr.Code)
	}

	_, blocked := s.blocklist.Lookup(xdp.IPv4ToUint32([]byte{198, 51, 100, 7}))
	if !blocked {
		t.Fatal("expected address to be blocked after insert")
	}

	rr = httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, authedRequest(http.MethodDelete, "/api/v1/blocklist/198.51.100.7", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rr.Code)
	}
	if _, blocked := s.blocklist.Lookup(xdp.IPv4ToUint32([]byte{198, 51, 100, 7})); blocked {
		t.Fatal("expected address to be unblocked after delete")
	}
}

func TestBlocklistRejectsInvalidIP(t *testing.T) {
	s, _ := newTestServer()
	body := bytes.NewBufferString(`{"ip":"not-an-ip","reason":"manual"}`)
	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, authedRequest(http.MethodPost, "/api/v1/blocklist", body))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func multipartUpload(t *testing.T, name string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("name", name); err != nil {
		t.Fatalf("write name field: %v", err)
	}
	part, err := w.CreateFormFile("image", "module.wasm")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(image); err != nil {
		t.Fatalf("write image: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestWASMLoadInstallsModule(t *testing.T) {
	s, modules := newTestServer()
	body, contentType := multipartUpload(t, "rules", []byte{0x00, 0x61, 0x73, 0x6d})

	r := authedRequest(http.MethodPost, "/api/v1/wasm/load", body)
	r.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, r)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", rr.Code, rr.Body.String())
	}
	if _, ok := modules.loaded["rules"]; !ok {
		t.Fatal("expected module to be recorded as loaded")
	}
}

func TestWASMLoadFailurePropagatesError(t *testing.T) {
	s, modules := newTestServer()
	modules.loadErr = fmt.Errorf("bad module")
	body, contentType := multipartUpload(t, "rules", []byte{0x00})

	r := authedRequest(http.MethodPost, "/api/v1/wasm/load", body)
	r.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, r)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestWASMModulesListsLoaded(t *testing.T) {
	s, modules := newTestServer()
	modules.loaded["rules"] = []byte{0x00}

	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/wasm/modules", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var views []moduleVersionView
	if err := json.NewDecoder(rr.Body).Decode(&views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || views[0].Name != "rules" {
		t.Fatalf("views = %+v, want one entry named rules", views)
	}
}

func TestStateCountersReflectsStoreContents(t *testing.T) {
	s, _ := newTestServer()
	store := s.counters.(*crdt.Store)
	store.Increment("203.0.113.5", 3)

	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, authedRequest(http.MethodGet, "/api/v1/state/counters", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var views []counterView
	if err := json.NewDecoder(rr.Body).Decode(&views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || views[0].IP != "203.0.113.5" || views[0].Global != 3 {
		t.Fatalf("views = %+v, want one entry for 203.0.113.5 with global 3", views)
	}
}
