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

package l7proxy

import (
	"bytes"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBuildRequestContextCapturesBasicFields(t *testing.T) {
	r := httptest.NewRequest("POST", "/login?x=1", strings.NewReader("payload"))
	r.Header.Set("User-Agent", "curl/8")

	rc := BuildRequestContext(r, "198.51.100.2")
	if rc.Method != "POST" || rc.URI != "/login?x=1" || rc.SourceIP != "198.51.100.2" {
		t.Fatalf("unexpected context: %+v", rc)
	}
	if string(rc.BodyPrefix) != "payload" {
		t.Fatalf("BodyPrefix = %q, want %q", rc.BodyPrefix, "payload")
	}
}

func TestBuildRequestContextPreservesBodyForForwarding(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader("payload"))
	_ = BuildRequestContext(r, "198.51.100.2")

	remaining, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("reading restored body: %v", err)
	}
	if string(remaining) != "payload" {
		t.Fatalf("restored body = %q, want %q", remaining, "payload")
	}
}

func TestBuildRequestContextTruncatesOversizedBody(t *testing.T) {
	big := bytes.Repeat([]byte("a"), 4096)
	r := httptest.NewRequest("POST", "/", bytes.NewReader(big))

	rc := BuildRequestContext(r, "198.51.100.2")
	if len(rc.BodyPrefix) != 512 {
		t.Fatalf("BodyPrefix length = %d, want 512", len(rc.BodyPrefix))
	}

	remaining, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("reading restored body: %v", err)
	}
	if len(remaining) != len(big) {
		t.Fatalf("restored body length = %d, want %d", len(remaining), len(big))
	}
}

func TestBuildRequestContextCapsHeaderCount(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	for i := 0; i < 100; i++ {
		r.Header.Add("X-Test", "v")
	}
	rc := BuildRequestContext(r, "198.51.100.2")
	if len(rc.Headers) > 64 {
		t.Fatalf("len(Headers) = %d, want <= 64", len(rc.Headers))
	}
}
