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

// Package xdp evaluates each frame arriving on a bound interface before the
// kernel TCP stack processes it, and owns the kernel-resident blocklist and
// per-CPU counter mappings those verdicts are read from and write to.
package xdp

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Verdict is the XDP program's decision for one frame.
type Verdict int

const (
	VerdictPass Verdict = iota
	VerdictDrop
	VerdictTX
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictDrop:
		return "drop"
	case VerdictTX:
		return "tx"
	default:
		return "unknown"
	}
}

// Parsed holds the decoded layers of one frame, reused across the per-packet
// algorithm's steps. A parse failure at any layer is reported via ok=false so
// the caller can fail open ("any parse error yields PASS").
type Parsed struct {
	Eth *layers.Ethernet
	IP4 *layers.IPv4
	TCP *layers.TCP
}

// Parse decodes an Ethernet frame down through TCP, stopping early (with a
// partial Parsed and isTCP=false) at the first layer that isn't what the
// filter needs — non-IPv4 and non-TCP traffic is common and not an error.
// NoCopy is safe here: the XDP filter never retains frame below the return
// of the calling function.
func Parse(frame []byte) (p Parsed, isIPv4, isTCP bool, ok bool) {
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})
	if err := packet.ErrorLayer(); err != nil {
		return Parsed{}, false, false, false
	}

	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return Parsed{}, false, false, false
	}
	eth, ok := ethLayer.(*layers.Ethernet)
	if !ok {
		return Parsed{}, false, false, false
	}
	p.Eth = eth

	ip4Layer := packet.Layer(layers.LayerTypeIPv4)
	if ip4Layer == nil {
		return p, false, false, true
	}
	ip4, ok := ip4Layer.(*layers.IPv4)
	if !ok {
		return p, false, false, false
	}
	p.IP4 = ip4

	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return p, true, false, true
	}
	tcp, ok := tcpLayer.(*layers.TCP)
	if !ok {
		return p, true, false, false
	}
	p.TCP = tcp

	return p, true, true, true
}

// IsSYNOnly reports whether tcp carries exactly the SYN flag: SYN set, and
// ACK, FIN, RST all clear.
func IsSYNOnly(tcp *layers.TCP) bool {
	return tcp.SYN && !tcp.ACK && !tcp.FIN && !tcp.RST
}

// IPv4ToUint32 encodes a net.IP (or the 4-byte form gopacket already hands
// back) as a big-endian uint32 for use as a blocklist key.
func IPv4ToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}

// Uint32ToIPv4 is the inverse of IPv4ToUint32, for rendering a blocklist key
// back to dotted-quad form in API responses.
func Uint32ToIPv4(addr uint32) net.IP {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, addr)
	return b
}
