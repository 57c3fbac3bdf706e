// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// snmpreplay feeds the SNMP requests of a pcap capture through an engine
// and reports what the engine answered. It is used to check decoder and
// security behaviour against traffic captured from real managers.
//
//	snmpreplay -config agent.yaml -port 161 capture.pcap
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/gosnmp/snmpengine"
)

func main() {
	cfgFile := flag.String("config", "", "engine configuration file")
	port := flag.Uint("port", 161, "destination UDP port of requests")
	verbose := flag.Bool("v", false, "log engine decisions")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: snmpreplay [-config file] [-port n] [-v] capture.pcap")
		os.Exit(2)
	}

	cfg, err := snmpengine.LoadConfig(*cfgFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	var opts []snmpengine.Option
	if *verbose {
		opts = append(opts, snmpengine.WithLogger(log.New(os.Stderr, "engine: ", 0)))
	}
	engine, err := snmpengine.NewEngine(cfg, opts...)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	res, err := replay(context.Background(), engine, f, uint16(*port), os.Stdout)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}
	fmt.Printf("\n%d packets, %d requests, %d answered, %d dropped\n",
		res.Packets, res.Requests, res.Answered, res.Dropped)
	for c := snmpengine.SnmpInPkts; c <= snmpengine.TsmInadequateSecurityLevels; c++ {
		if v := engine.Stats().Get(c); v != 0 {
			fmt.Printf("  %-32s %d\n", c, v)
		}
	}
}

type result struct {
	Packets  int
	Requests int
	Answered int
	Dropped  int
}

// replay reads a pcap stream and hands every UDP payload addressed to port
// to the engine.
func replay(ctx context.Context, engine *snmpengine.Engine, r io.Reader, port uint16, w io.Writer) (result, error) {
	var res result
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return res, err
	}
	for {
		data, _, err := pr.ReadPacketData()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		res.Packets++

		packet := gopacket.NewPacket(data, pr.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || uint16(udp.DstPort) != port {
			continue
		}
		msg := &snmpengine.Message{Data: udp.Payload}
		switch ip := packet.NetworkLayer().(type) {
		case *layers.IPv4:
			msg.Addr = &net.UDPAddr{IP: ip.SrcIP, Port: int(udp.SrcPort)}
			msg.Domain = snmpengine.DomainUDPIPv4
		case *layers.IPv6:
			msg.Addr = &net.UDPAddr{IP: ip.SrcIP, Port: int(udp.SrcPort)}
			msg.Domain = snmpengine.DomainUDPIPv6
		default:
			continue
		}
		res.Requests++

		out, err := engine.HandleMessage(ctx, msg)
		switch {
		case out != nil:
			res.Answered++
			fmt.Fprintf(w, "%v: answered, %d octets\n", msg.Addr, len(out))
		case err != nil:
			res.Dropped++
			fmt.Fprintf(w, "%v: dropped: %v\n", msg.Addr, err)
		default:
			fmt.Fprintf(w, "%v: no response\n", msg.Addr)
		}
	}
}
