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

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func buildTCPFrame(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, syn, ack bool) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip4 := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		SYN:     syn,
		ACK:     ack,
		Window:  65535,
		Seq:     1000,
	}
	_ = tcp.SetNetworkLayerForChecksum(ip4)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip4, tcp); err != nil {
		t.Fatalf("serialize frame: %v", err)
	}
	return buf.Bytes()
}

func TestParseTCPFrame(t *testing.T) {
	frame := buildTCPFrame(t, "203.0.113.9", "198.51.100.1", 55555, 443, true, false)
	p, isIPv4, isTCP, ok := Parse(frame)
	if !ok {
		t.Fatal("Parse failed on a well-formed frame")
	}
	if !isIPv4 || !isTCP {
		t.Fatalf("isIPv4=%v isTCP=%v, want both true", isIPv4, isTCP)
	}
	if !p.IP4.SrcIP.Equal(net.ParseIP("203.0.113.9")) {
		t.Fatalf("SrcIP = %v, want 203.0.113.9", p.IP4.SrcIP)
	}
	if !IsSYNOnly(p.TCP) {
		t.Fatal("expected IsSYNOnly to report true for a lone SYN")
	}
}

func TestParseNonIPv4(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0x02, 0, 0, 0, 0, 1},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
		t.Fatalf("serialize arp frame: %v", err)
	}

	_, isIPv4, _, ok := Parse(buf.Bytes())
	if !ok {
		t.Fatal("Parse should succeed (parse error only on malformed headers)")
	}
	if isIPv4 {
		t.Fatal("ARP frame misclassified as IPv4")
	}
}

func TestParseTruncatedFrameFailsOpen(t *testing.T) {
	_, _, _, ok := Parse([]byte{0x01, 0x02})
	if ok {
		t.Fatal("expected Parse to report !ok on a truncated frame")
	}
}

func TestIPv4ToUint32(t *testing.T) {
	got := IPv4ToUint32(net.ParseIP("10.0.0.1"))
	want := uint32(10)<<24 | 1
	if got != want {
		t.Fatalf("IPv4ToUint32 = %#x, want %#x", got, want)
	}
}
