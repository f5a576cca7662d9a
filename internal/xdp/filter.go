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

import "github.com/google/gopacket/layers"

// SYNHandler is invoked by Evaluate when a frame carries a lone SYN; it is
// expected to forge the SYN-ACK in place (implemented by internal/synproxy)
// and report whether the rewrite succeeded. A failed rewrite falls back to
// PASS rather than dropping — a best-effort cookie issuance never discards a
// client's only SYN.
type SYNHandler func(frame []byte, p Parsed) bool

// Evaluate is the pure verdict function for one frame: parse, blocklist
// lookup, SYN detection, pass/drop counting. It is deterministic for a given
// frame and blocklist state — no timers, no randomness beyond whatever the
// SYNHandler's cookie secret uses internally, which this function never
// touches directly.
//
// Any parse error fails open to PASS: a malformed header never makes the
// filter panic, and is the kernel's or a higher layer's problem, not this
// function's. Decoding goes through gopacket, which allocates per frame.
func Evaluate(frame []byte, bl Blocklist, stats *Stats, onSYN SYNHandler) Verdict {
	p, isIPv4, isTCP, ok := Parse(frame)
	if !ok {
		return VerdictPass
	}
	if !isIPv4 {
		return VerdictPass
	}
	if !isTCP {
		stats.IncPassed()
		return VerdictPass
	}

	srcAddr := IPv4ToUint32(p.IP4.SrcIP)
	if _, blocked := bl.Lookup(srcAddr); blocked {
		stats.IncDropped()
		return VerdictDrop
	}

	if IsSYNOnly(p.TCP) {
		if onSYN != nil && onSYN(frame, p) {
			return VerdictTX
		}
		stats.IncPassed()
		return VerdictPass
	}

	stats.IncPassed()
	return VerdictPass
}

// tcpFlagsOnly is a small helper used by tests to build a TCP layer with an
// exact flag combination without going through a full packet serialization.
func tcpFlagsOnly(syn, ack, fin, rst bool) *layers.TCP {
	return &layers.TCP{SYN: syn, ACK: ack, FIN: fin, RST: rst}
}
