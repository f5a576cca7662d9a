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
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	ListenAddr string
	OriginAddr string
	TLSConfig  *tls.Config // nil disables TLS termination
}

// Server terminates client connections, dispatches each request through a
// Dispatcher, and forwards admitted requests to a single origin.
type Server struct {
	opts       ServerOptions
	dispatcher *Dispatcher
	proxy      *httputil.ReverseProxy
	http       *http.Server
}

// NewServer builds a Server forwarding admitted requests to opts.OriginAddr.
func NewServer(opts ServerOptions, dispatcher *Dispatcher) (*Server, error) {
	target := &url.URL{Scheme: "http", Host: opts.OriginAddr}
	proxy := httputil.NewSingleHostReverseProxy(target)

	s := &Server{opts: opts, dispatcher: dispatcher, proxy: proxy}
	s.http = &http.Server{
		Addr:         opts.ListenAddr,
		Handler:      http.HandlerFunc(s.handle),
		TLSConfig:    opts.TLSConfig,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// ListenAndServe blocks serving connections until the listener is closed.
// TLS termination is used automatically when ServerOptions.TLSConfig is set.
func (s *Server) ListenAndServe() error {
	if s.opts.TLSConfig != nil {
		ln, err := net.Listen("tcp", s.opts.ListenAddr)
		if err != nil {
			return err
		}
		tlsLn := tls.NewListener(ln, s.opts.TLSConfig)
		return s.http.Serve(tlsLn)
	}
	return s.http.ListenAndServe()
}

// Close shuts the underlying HTTP server down immediately.
func (s *Server) Close() error {
	return s.http.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	sourceIP := clientIP(r)

	switch s.dispatcher.Dispatch(r.Context(), r, sourceIP) {
	case OutcomeForward:
		s.proxy.ServeHTTP(w, r)
	case OutcomeBlock:
		http.Error(w, "request refused", http.StatusForbidden)
	case OutcomeThrottle:
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	default:
		http.Error(w, "inspection failed", http.StatusInternalServerError)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
