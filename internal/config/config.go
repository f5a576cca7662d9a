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

// Package config holds the settings a mitigation node is wired up with.
//
// Parsing itself — TOML loading, flag binding, environment overrides — is an
// external collaborator's job; this package only defines the shape and the
// defaults the rest of the node relies on.
package config

import "time"

// Config is the full set of knobs a secbeat-node process is constructed from.
type Config struct {
	NodeID string

	XDP       XDPConfig
	SynProxy  SynProxyConfig
	L7Proxy   L7ProxyConfig
	WASM      WASMConfig
	RateLimit RateLimitConfig
	Bus       BusConfig
	API       APIConfig
}

// XDPConfig configures the packet fast path.
type XDPConfig struct {
	Interface          string
	Mode               string // "xdp" or "software"
	BlocklistCapacity   int
	BlocklistTTL        time.Duration
}

// SynProxyConfig configures SYN-cookie generation and handshake splicing.
type SynProxyConfig struct {
	CookieSecret      [16]byte
	HandshakeCapacity int
	HandshakeTTL      time.Duration
	ReceiveWindow     uint16
}

// L7ProxyConfig configures the TLS-terminating request proxy.
type L7ProxyConfig struct {
	ListenAddr     string
	OriginAddr     string
	TLS            bool
	EngineTimeout  time.Duration
}

// WASMConfig configures the inspection engine's resource limits.
type WASMConfig struct {
	FuelBudget       uint64
	MemoryLimitPages uint32 // 64 KiB pages; 16 == 1 MiB
	RollbackDepth    int
	ExecutionTimeout time.Duration
}

// RateLimitConfig configures the distributed rate limiter.
type RateLimitConfig struct {
	Limit              int64
	Window             time.Duration
	PublishInterval    time.Duration
	MaxCounterAge      time.Duration
	GCInterval         time.Duration
}

// BusConfig selects and configures the pub/sub transport for CRDT deltas and
// fleet-wide WASM reload commands.
type BusConfig struct {
	Kind         string // "redis" or "kafka"
	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string
}

// APIConfig configures the loopback management API.
type APIConfig struct {
	ListenAddr  string
	AuthToken   string
}

// Default returns a Config populated with the node's stated defaults.
func Default() Config {
	return Config{
		XDP: XDPConfig{
			Mode:              "software",
			BlocklistCapacity: 10000,
			BlocklistTTL:      0,
		},
		SynProxy: SynProxyConfig{
			HandshakeCapacity: 4096,
			HandshakeTTL:      30 * time.Second,
			ReceiveWindow:     65535,
		},
		L7Proxy: L7ProxyConfig{
			EngineTimeout: 100 * time.Millisecond,
		},
		WASM: WASMConfig{
			FuelBudget:       100000,
			MemoryLimitPages: 16,
			RollbackDepth:    2,
			ExecutionTimeout: 100 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Limit:           100,
			Window:          time.Second,
			PublishInterval: 100 * time.Millisecond,
			MaxCounterAge:   300 * time.Second,
			GCInterval:      30 * time.Second,
		},
		Bus: BusConfig{
			Kind:       "redis",
			KafkaTopic: "secbeat",
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1:7070",
		},
	}
}
