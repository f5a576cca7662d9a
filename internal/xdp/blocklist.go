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

package xdp

import "time"

// ReasonCode is the 1-byte value stored alongside a blocked address.
type ReasonCode uint8

const (
	ReasonManual ReasonCode = iota
	ReasonSYNFlood
	ReasonWAFBlock
	ReasonRateLimit
)

// DefaultBlocklistCapacity bounds the kernel-resident mapping per the data
// model's stated default.
const DefaultBlocklistCapacity = 10_000

// Blocklist is the kernel-resident IPv4 → reason mapping: mutated only by
// the userspace control path, read by the XDP program on every packet.
// Two implementations satisfy it: SoftBlocklist (software fast path,
// portable, used in tests and non-Linux builds) and the ebpf.Map-backed
// EBPFBlocklist, built only under linux with cilium/ebpf available.
type Blocklist interface {
	// Block adds or refreshes addr with reason and a TTL (0 means no expiry).
	Block(addr uint32, reason ReasonCode, ttl time.Duration) error
	// Unblock removes addr. No error if addr was not present.
	Unblock(addr uint32) error
	// Lookup reports whether addr is currently blocked and, if so, why.
	Lookup(addr uint32) (reason ReasonCode, blocked bool)
	// Len reports the current number of entries.
	Len() int
	// Sweep removes entries whose TTL has elapsed, returning the count removed.
	Sweep(now time.Time) int
	// Close releases any backing resources (kernel maps, etc).
	Close() error
}
