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
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestEncodeRoundTripsFieldLengths(t *testing.T) {
	rc := RequestContext{
		Method:   "POST",
		URI:      "/login",
		Proto:    "HTTP/1.1",
		SourceIP: "198.51.100.7",
		Headers: []HeaderField{
			{Name: "host", Value: "example.com"},
			{Name: "user-agent", Value: "curl/8.0"},
		},
		BodyPrefix: []byte("user=admin"),
	}
	buf := rc.Encode()

	off := 0
	readField := func() []byte {
		n := binary.LittleEndian.Uint32(buf[off:])
		off += 4
		field := buf[off : off+int(n)]
		off += int(n)
		return field
	}

	if string(readField()) != "POST" {
		t.Fatal("method mismatch")
	}
	if string(readField()) != "/login" {
		t.Fatal("uri mismatch")
	}
	if string(readField()) != "HTTP/1.1" {
		t.Fatal("proto mismatch")
	}
	if string(readField()) != "198.51.100.7" {
		t.Fatal("source ip mismatch")
	}
	count := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if count != 2 {
		t.Fatalf("header count = %d, want 2", count)
	}
	if string(readField()) != "host" || string(readField()) != "example.com" {
		t.Fatal("first header mismatch")
	}
	if string(readField()) != "user-agent" || string(readField()) != "curl/8.0" {
		t.Fatal("second header mismatch")
	}
	if string(readField()) != "user=admin" {
		t.Fatal("body prefix mismatch")
	}
	if off != len(buf) {
		t.Fatalf("trailing bytes after decode: consumed %d of %d", off, len(buf))
	}
}

func TestEncodeTruncatesOversizedHeadersAndBody(t *testing.T) {
	headers := make([]HeaderField, MaxHeaders+10)
	for i := range headers {
		headers[i] = HeaderField{Name: "x", Value: "y"}
	}
	rc := RequestContext{
		Method:     "GET",
		URI:        "/",
		Proto:      "HTTP/1.1",
		SourceIP:   "127.0.0.1",
		Headers:    headers,
		BodyPrefix: bytes.Repeat([]byte{'a'}, MaxBodyPrefix+100),
	}
	buf := rc.Encode()

	// Skip method, uri, proto, source ip.
	off := 0
	for i := 0; i < 4; i++ {
		n := binary.LittleEndian.Uint32(buf[off:])
		off += 4 + int(n)
	}
	count := binary.LittleEndian.Uint32(buf[off:])
	if count != MaxHeaders {
		t.Fatalf("header count = %d, want %d", count, MaxHeaders)
	}
	off += 4
	for i := 0; i < 2*MaxHeaders; i++ {
		n := binary.LittleEndian.Uint32(buf[off:])
		off += 4 + int(n)
	}
	if bodyLen := binary.LittleEndian.Uint32(buf[off:]); bodyLen != MaxBodyPrefix {
		t.Fatalf("body length = %d, want %d", bodyLen, MaxBodyPrefix)
	}
}

func TestSyntheticIsStable(t *testing.T) {
	a := synthetic()
	b := synthetic()
	if !bytes.Equal(a, b) {
		t.Fatal("synthetic() is not deterministic across calls")
	}
}

func TestRequestContextString(t *testing.T) {
	rc := RequestContext{Method: "GET", URI: "/health", Proto: "HTTP/1.1", SourceIP: "10.0.0.1"}
	if !strings.Contains(rc.String(), "GET /health") {
		t.Fatalf("String() = %q, missing method/uri", rc.String())
	}
}
