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

package synproxy

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ReceiveWindow is the fixed window the forged SYN-ACK advertises.
const ReceiveWindow = 65535

// ForgeSYNACK rewrites a parsed SYN frame in place into a SYN-ACK bearing
// cookie: swap MACs, swap IPs, swap ports, seq = cookie, ack = client ISN +
// 1, flags = SYN|ACK, fixed window, both checksums recomputed. gopacket's
// SerializeOptions{ComputeChecksums:true} does the one's-complement IPv4
// header checksum and the TCP pseudo-header+segment checksum bit-exactly —
// the same mechanism client and
// origin TCP stacks use to validate an inbound segment, so there is no room
// for a hand-rolled checksum to drift from what they expect.
//
// Returns the re-serialized frame bytes (same logical frame, rewritten), or
// an error if eth/ip4/tcp don't form a valid lone SYN.
func ForgeSYNACK(eth *layers.Ethernet, ip4 *layers.IPv4, tcp *layers.TCP, cookie uint32) ([]byte, error) {
	if !tcp.SYN || tcp.ACK {
		return nil, fmt.Errorf("synproxy: ForgeSYNACK requires a lone SYN")
	}

	eth.SrcMAC, eth.DstMAC = eth.DstMAC, eth.SrcMAC
	ip4.SrcIP, ip4.DstIP = ip4.DstIP, ip4.SrcIP

	clientISN := tcp.Seq
	tcp.SrcPort, tcp.DstPort = tcp.DstPort, tcp.SrcPort
	tcp.Seq = cookie
	tcp.Ack = clientISN + 1
	tcp.SYN = true
	tcp.ACK = true
	tcp.FIN = false
	tcp.RST = false
	tcp.PSH = false
	tcp.URG = false
	tcp.Window = ReceiveWindow

	if err := tcp.SetNetworkLayerForChecksum(ip4); err != nil {
		return nil, fmt.Errorf("synproxy: set network layer for checksum: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip4, tcp); err != nil {
		return nil, fmt.Errorf("synproxy: serialize forged SYN-ACK: %w", err)
	}
	return buf.Bytes(), nil
}
