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

// Package synproxy completes TCP handshakes statelessly via SYN cookies, so
// the kernel never allocates memory for half-open connections a spoofed
// source originated, then splices the accepted connection through to the
// origin.
package synproxy

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// secretSize is arbitrary but generous; the secret is process-lifetime and
// read-only after initialization, so its size only matters once at startup.
const secretSize = 32

// CookieGenerator computes and validates SYN cookies under a process-
// lifetime secret. xxhash is a fast, well-distributed non-cryptographic
// hash — adequate here because the cookie's job is to resist casual forgery
// and collisions across the tiny (4-tuple, ISN, minute-bucket) input space,
// not to resist a motivated cryptographic attacker with oracle access.
type CookieGenerator struct {
	secret [secretSize]byte
}

// NewCookieGenerator seeds a fresh random secret from crypto/rand.
func NewCookieGenerator() (*CookieGenerator, error) {
	g := &CookieGenerator{}
	if _, err := rand.Read(g.secret[:]); err != nil {
		return nil, err
	}
	return g, nil
}

// MinuteBucket returns unixSeconds integer-divided by 60, the coarse replay
// window unit cookie validation is scoped to.
func MinuteBucket(unixSeconds int64) int64 {
	return unixSeconds / 60
}

// Generate computes the 32-bit cookie for a 4-tuple, client ISN, and minute
// bucket.
func (g *CookieGenerator) Generate(saddr, daddr uint32, sport, dport uint16, clientISN uint32, minuteBucket int64) uint32 {
	var buf [32 + 4 + 4 + 2 + 2 + 4 + 8]byte
	off := copy(buf[:], g.secret[:])
	binary.BigEndian.PutUint32(buf[off:], saddr)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], daddr)
	off += 4
	binary.BigEndian.PutUint16(buf[off:], sport)
	off += 2
	binary.BigEndian.PutUint16(buf[off:], dport)
	off += 2
	binary.BigEndian.PutUint32(buf[off:], clientISN)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], uint64(minuteBucket))
	off += 8

	sum := xxhash.Sum64(buf[:off])
	return uint32(sum)
}

// Validate checks cookie against the current and previous minute buckets
// (a ≤2 minute window), returning true if either matches. No state from the
// original SYN is consulted — the whole point of a stateless cookie.
func (g *CookieGenerator) Validate(cookie, saddr, daddr uint32, sport, dport uint16, clientISN uint32, nowUnixSeconds int64) bool {
	current := MinuteBucket(nowUnixSeconds)
	if g.Generate(saddr, daddr, sport, dport, clientISN, current) == cookie {
		return true
	}
	return g.Generate(saddr, daddr, sport, dport, clientISN, current-1) == cookie
}
