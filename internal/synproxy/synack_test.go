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
	"bytes"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func buildSYN(t *testing.T) (*layers.Ethernet, *layers.IPv4, *layers.TCP) {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip4 := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP("203.0.113.9").To4(),
		DstIP:    net.ParseIP("198.51.100.1").To4(),
	}
	tcp := &layers.TCP{
		SrcPort: 55555,
		DstPort: 443,
		SYN:     true,
		Seq:     123456,
		Window:  65535,
	}
	return eth, ip4, tcp
}

func TestForgeSYNACKSwapsAddressesAndPorts(t *testing.T) {
	eth, ip4, tcp := buildSYN(t)
	origSrcMAC, origDstMAC := eth.SrcMAC, eth.DstMAC
	origSrcIP, origDstIP := ip4.SrcIP, ip4.DstIP
	origSrcPort, origDstPort := tcp.SrcPort, tcp.DstPort
	clientISN := tcp.Seq

	frame, err := ForgeSYNACK(eth, ip4, tcp, 0xCAFEBABE)
	if err != nil {
		t.Fatalf("ForgeSYNACK: %v", err)
	}
	if len(frame) == 0 {
		t.Fatal("ForgeSYNACK returned empty frame")
	}

	if eth.SrcMAC.String() != origDstMAC.String() || eth.DstMAC.String() != origSrcMAC.String() {
		t.Fatal("MAC addresses not swapped")
	}
	if !ip4.SrcIP.Equal(origDstIP) || !ip4.DstIP.Equal(origSrcIP) {
		t.Fatal("IP addresses not swapped")
	}
	if tcp.SrcPort != origDstPort || tcp.DstPort != origSrcPort {
		t.Fatal("ports not swapped")
	}
	if uint32(tcp.Seq) != 0xCAFEBABE {
		t.Fatalf("Seq = %d, want cookie 0xCAFEBABE", tcp.Seq)
	}
	if tcp.Ack != clientISN+1 {
		t.Fatalf("Ack = %d, want clientISN+1 = %d", tcp.Ack, clientISN+1)
	}
	if !tcp.SYN || !tcp.ACK {
		t.Fatal("expected SYN|ACK flags set")
	}
	if tcp.Window != ReceiveWindow {
		t.Fatalf("Window = %d, want %d", tcp.Window, ReceiveWindow)
	}
}

func TestForgeSYNACKProducesValidChecksums(t *testing.T) {
	eth, ip4, tcp := buildSYN(t)
	frame, err := ForgeSYNACK(eth, ip4, tcp, 42)
	if err != nil {
		t.Fatalf("ForgeSYNACK: %v", err)
	}

	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true})
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		t.Fatal("forged frame has no TCP layer")
	}
	checked, ok := tcpLayer.(*layers.TCP)
	if !ok {
		t.Fatal("TCP layer type assertion failed")
	}
	if err := checked.SetNetworkLayerForChecksum(packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)); err != nil {
		t.Fatalf("SetNetworkLayerForChecksum: %v", err)
	}
	// Re-serializing with ComputeChecksums must reproduce the exact same
	// wire bytes if the checksum already present was correct.
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: false, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts,
		packet.Layer(layers.LayerTypeEthernet).(*layers.Ethernet),
		packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4),
		checked); err != nil {
		t.Fatalf("re-serialize: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), frame) {
		t.Fatalf("re-serialized frame differs from forged frame:\n got %x\nwant %x", buf.Bytes(), frame)
	}
}

func TestForgeSYNACKRejectsNonSYN(t *testing.T) {
	eth, ip4, tcp := buildSYN(t)
	tcp.ACK = true
	if _, err := ForgeSYNACK(eth, ip4, tcp, 1); err == nil {
		t.Fatal("expected error forging a SYN-ACK from a non-lone-SYN packet")
	}
}
