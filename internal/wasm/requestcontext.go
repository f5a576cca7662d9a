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
	"encoding/binary"
	"fmt"
)

// RequestContext is the immutable snapshot handed to a rule module: method,
// URI, protocol version, source IP, a bounded header list, and an optional
// body prefix. It is serialized into the instance's linear memory on every
// call and never escapes the call — the engine copies it in, never keeps a
// live reference out.
type RequestContext struct {
	Method     string
	URI        string
	Proto      string
	SourceIP   string
	Headers    []HeaderField
	BodyPrefix []byte
}

// HeaderField is one name/value pair. MaxHeaders bounds how many are
// serialized; the rest are silently dropped, matching the "bounded list"
// language in the data model rather than failing the request.
type HeaderField struct {
	Name  string
	Value string
}

// MaxHeaders caps the header list copied into guest memory.
const MaxHeaders = 64

// MaxBodyPrefix caps the body bytes copied into guest memory.
const MaxBodyPrefix = 512

// Encode serializes the context into a flat, length-prefixed byte layout a
// guest module can walk without a parser: a sequence of
// (uint32 length, bytes) fields for method, URI, proto, source IP, then a
// uint32 header count followed by that many (namelen, name, valuelen, value)
// quads, then a uint32 body length followed by the body bytes.
func (r RequestContext) Encode() []byte {
	headers := r.Headers
	if len(headers) > MaxHeaders {
		headers = headers[:MaxHeaders]
	}
	body := r.BodyPrefix
	if len(body) > MaxBodyPrefix {
		body = body[:MaxBodyPrefix]
	}

	buf := make([]byte, 0, 256)
	buf = appendField(buf, []byte(r.Method))
	buf = appendField(buf, []byte(r.URI))
	buf = appendField(buf, []byte(r.Proto))
	buf = appendField(buf, []byte(r.SourceIP))

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(headers)))
	buf = append(buf, countBuf[:]...)
	for _, h := range headers {
		buf = appendField(buf, []byte(h.Name))
		buf = appendField(buf, []byte(h.Value))
	}

	buf = appendField(buf, body)
	return buf
}

func appendField(buf, field []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

// synthetic builds a small, fixed request context used by the module cache's
// smoke test before a new module is accepted. It must never mutate and must
// always encode to the same bytes.
func synthetic() []byte {
	rc := RequestContext{
		Method:   "GET",
		URI:      "/",
		Proto:    "HTTP/1.1",
		SourceIP: "127.0.0.1",
		Headers: []HeaderField{
			{Name: "host", Value: "smoketest.local"},
		},
	}
	return rc.Encode()
}

func (r RequestContext) String() string {
	return fmt.Sprintf("%s %s %s from %s (%d headers, %d body bytes)",
		r.Method, r.URI, r.Proto, r.SourceIP, len(r.Headers), len(r.BodyPrefix))
}
