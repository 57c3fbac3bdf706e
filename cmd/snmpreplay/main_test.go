// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosnmp/snmpengine"
)

func udpFrame(t *testing.T, dstPort uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 0, 2, 1),
		DstIP:    net.IPv4(192, 0, 2, 2),
	}
	udp := &layers.UDP{SrcPort: 50000, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func writeCapture(t *testing.T, frames ...[]byte) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000+int64(i), 0),
			CaptureLength: len(f),
			Length:        len(f),
		}
		require.NoError(t, w.WritePacket(ci, f))
	}
	return &out
}

func TestReplay(t *testing.T) {
	engine, err := snmpengine.NewEngine(snmpengine.Config{
		Communities: []snmpengine.CommunityConfig{{Name: "public"}},
	})
	require.NoError(t, err)
	defer engine.Close()

	ctx := context.Background()
	inform, err := engine.Notify(ctx, snmpengine.Version2c, &snmpengine.Notification{
		Type:         snmpengine.InformRequest,
		TrapOID:      snmpengine.ColdStartTrapOID,
		SecurityName: "public",
	})
	require.NoError(t, err)
	trap, err := engine.Notify(ctx, snmpengine.Version2c, &snmpengine.Notification{
		TrapOID:      snmpengine.ColdStartTrapOID,
		SecurityName: "public",
	})
	require.NoError(t, err)

	capture := writeCapture(t,
		udpFrame(t, 161, inform),
		udpFrame(t, 161, trap),
		udpFrame(t, 161, []byte{0x30, 0x03, 0x02, 0x01}),
		udpFrame(t, 53, inform),
	)

	var log strings.Builder
	res, err := replay(ctx, engine, capture, 161, &log)
	require.NoError(t, err)
	assert.Equal(t, result{Packets: 4, Requests: 3, Answered: 1, Dropped: 1}, res)

	lines := strings.Split(strings.TrimSpace(log.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "192.0.2.1:50000: answered")
	assert.Contains(t, lines[1], "no response")
	assert.Contains(t, lines[2], "dropped")
}

func TestReplayBadCapture(t *testing.T) {
	engine, err := snmpengine.NewEngine(snmpengine.Config{})
	require.NoError(t, err)
	defer engine.Close()

	_, err = replay(context.Background(), engine, strings.NewReader("not a pcap file"), 161, &strings.Builder{})
	assert.Error(t, err)
}
