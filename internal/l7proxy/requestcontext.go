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

// Package l7proxy terminates TLS, parses HTTP requests, and dispatches each
// one through the WASM inspection engine before forwarding to the origin or
// answering locally.
package l7proxy

import (
	"bytes"
	"io"
	"net/http"

	"secbeat/internal/wasm"
)

// BuildRequestContext snapshots the parts of an inbound request the
// inspection engine is allowed to see, bounding the body read so a
// malicious client can't force an unbounded buffer. It reads at most
// MaxBodyPrefix bytes of the body to build the snapshot, then restores
// r.Body (prefix + the untouched remainder) so a later forward to the
// origin still sees the complete request.
func BuildRequestContext(r *http.Request, sourceIP string) wasm.RequestContext {
	headers := make([]wasm.HeaderField, 0, len(r.Header))
	for name, values := range r.Header {
		for _, v := range values {
			headers = append(headers, wasm.HeaderField{Name: name, Value: v})
			if len(headers) >= wasm.MaxHeaders {
				break
			}
		}
		if len(headers) >= wasm.MaxHeaders {
			break
		}
	}

	var bodyPrefix []byte
	if r.Body != nil {
		limited := io.LimitReader(r.Body, int64(wasm.MaxBodyPrefix))
		bodyPrefix, _ = io.ReadAll(limited)
		r.Body = struct {
			io.Reader
			io.Closer
		}{
			Reader: io.MultiReader(bytes.NewReader(bodyPrefix), r.Body),
			Closer: r.Body,
		}
	}

	return wasm.RequestContext{
		Method:     r.Method,
		URI:        r.URL.RequestURI(),
		Proto:      r.Proto,
		SourceIP:   sourceIP,
		Headers:    headers,
		BodyPrefix: bodyPrefix,
	}
}
