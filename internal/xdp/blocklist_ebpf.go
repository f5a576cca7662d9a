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

//go:build linux

package xdp

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
)

// blocklistValue is the fixed-size record stored per key in the kernel map:
// the reason code plus an absolute Unix-nanosecond expiry (0 = no expiry).
// The XDP program only reads the reason byte; expiry is userspace-only
// bookkeeping used by Sweep.
type blocklistValue struct {
	Reason  uint8
	_       [7]byte // pad to 8-byte align the following int64
	Expires int64
}

// EBPFBlocklist backs the Blocklist interface with a real BPF hash map the
// XDP program reads on every packet, following the same
// rlimit.RemoveMemlock + ebpf.NewMapWithOptions construction sequence the
// system-probe ebpf subcommand uses to stand up maps outside of a full
// collection load.
type EBPFBlocklist struct {
	mu  sync.Mutex
	m   *ebpf.Map
	cap int
}

// NewEBPFBlocklist creates (or, if pinPath is non-empty and already exists,
// opens) a BPF hash map keyed by big-endian IPv4 address.
func NewEBPFBlocklist(capacity int, pinPath string) (*EBPFBlocklist, error) {
	if capacity <= 0 {
		capacity = DefaultBlocklistCapacity
	}
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("xdp: remove memlock rlimit: %w", err)
	}

	spec := &ebpf.MapSpec{
		Name:       "secbeat_blocklist",
		Type:       ebpf.Hash,
		KeySize:    4,
		ValueSize:  16,
		MaxEntries: uint32(capacity),
	}
	if pinPath != "" {
		spec.Pinning = ebpf.PinByName
	}

	m, err := ebpf.NewMapWithOptions(spec, ebpf.MapOptions{PinPath: pinPath})
	if err != nil {
		return nil, fmt.Errorf("xdp: create blocklist map: %w", err)
	}
	return &EBPFBlocklist{m: m, cap: capacity}, nil
}

func keyBytes(addr uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], addr)
	return b[:]
}

func (b *EBPFBlocklist) Block(addr uint32, reason ReasonCode, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var expires int64
	if ttl > 0 {
		expires = time.Now().Add(ttl).UnixNano()
	}
	val := blocklistValue{Reason: uint8(reason), Expires: expires}
	valBytes := make([]byte, 16)
	valBytes[0] = val.Reason
	binary.LittleEndian.PutUint64(valBytes[8:], uint64(val.Expires))

	if err := b.m.Put(keyBytes(addr), valBytes); err != nil {
		return fmt.Errorf("xdp: blocklist put: %w", err)
	}
	return nil
}

func (b *EBPFBlocklist) Unblock(addr uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.m.Delete(keyBytes(addr)); err != nil && err != ebpf.ErrKeyNotExist {
		return fmt.Errorf("xdp: blocklist delete: %w", err)
	}
	return nil
}

func (b *EBPFBlocklist) Lookup(addr uint32) (ReasonCode, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var valBytes [16]byte
	if err := b.m.Lookup(keyBytes(addr), &valBytes); err != nil {
		return 0, false
	}
	expires := int64(binary.LittleEndian.Uint64(valBytes[8:]))
	if expires != 0 && time.Now().UnixNano() > expires {
		return 0, false
	}
	return ReasonCode(valBytes[0]), true
}

func (b *EBPFBlocklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	var key [4]byte
	var val [16]byte
	it := b.m.Iterate()
	for it.Next(&key, &val) {
		n++
	}
	return n
}

func (b *EBPFBlocklist) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var key [4]byte
	var val [16]byte
	var expired [][4]byte
	it := b.m.Iterate()
	for it.Next(&key, &val) {
		expires := int64(binary.LittleEndian.Uint64(val[8:]))
		if expires != 0 && now.UnixNano() > expires {
			k := key
			expired = append(expired, k)
		}
	}
	for _, k := range expired {
		_ = b.m.Delete(k)
	}
	return len(expired)
}

func (b *EBPFBlocklist) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.m.Close()
}
