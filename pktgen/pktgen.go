// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

// Package pktgen produces synthetic Ethernet/IPv4/UDP packets for the
// pipeline and maps their headers into PHV containers.
package pktgen

import (
	"context"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/omec-project/mausim/logger"
	"github.com/omec-project/mausim/mau"
)

const (
	srcMACDefault  = "02:00:00:00:00:01"
	dstMACDefault  = "02:00:00:00:00:02"
	srcIPDefault   = "10.0.0.1"
	dstIPDefault   = "10.0.0.2"
	srcPortDefault = 10000
	dstPortDefault = 2152
	ipTTL          = 64
)

// Packet is one generated frame.
type Packet struct {
	Seq  int
	Data []byte
}

// Generator builds packets from a template. Flows differ in their UDP
// source port.
type Generator struct {
	conf mau.PktGenConfig

	srcMAC, dstMAC net.HardwareAddr
	srcIP, dstIP   net.IP

	opts gopacket.SerializeOptions
}

func parseIPv4(what, s string) (net.IP, error) {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return nil, mau.ErrInvalidArgument(what, s)
	}

	return ip, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}

	return s
}

// NewGenerator validates the template addresses of conf.
func NewGenerator(conf mau.PktGenConfig) (*Generator, error) {
	g := &Generator{
		conf: conf,
		opts: gopacket.SerializeOptions{
			ComputeChecksums: true,
			FixLengths:       true,
		},
	}

	var err error

	if g.srcMAC, err = net.ParseMAC(orDefault(conf.SrcMAC, srcMACDefault)); err != nil {
		return nil, mau.ErrInvalidArgument("pktgen src_mac", conf.SrcMAC)
	}

	if g.dstMAC, err = net.ParseMAC(orDefault(conf.DstMAC, dstMACDefault)); err != nil {
		return nil, mau.ErrInvalidArgument("pktgen dst_mac", conf.DstMAC)
	}

	if g.srcIP, err = parseIPv4("pktgen src_ip", orDefault(conf.SrcIP, srcIPDefault)); err != nil {
		return nil, err
	}

	if g.dstIP, err = parseIPv4("pktgen dst_ip", orDefault(conf.DstIP, dstIPDefault)); err != nil {
		return nil, err
	}

	if g.conf.SrcPort == 0 {
		g.conf.SrcPort = srcPortDefault
	}

	if g.conf.DstPort == 0 {
		g.conf.DstPort = dstPortDefault
	}

	if g.conf.FlowCount < 1 {
		g.conf.FlowCount = 1
	}

	if g.conf.QueueDepth < 1 {
		g.conf.QueueDepth = 1
	}

	if g.conf.PayloadLen < 0 {
		return nil, mau.ErrInvalidArgumentWithReason("pktgen payload_len", conf.PayloadLen, "must not be negative")
	}

	return g, nil
}

// Build serializes packet seq.
func (g *Generator) Build(seq int) ([]byte, error) {
	buffer := gopacket.NewSerializeBuffer()

	ethernetLayer := &layers.Ethernet{
		SrcMAC:       g.srcMAC,
		DstMAC:       g.dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ipLayer := &layers.IPv4{
		Version:  4,
		TTL:      ipTTL,
		SrcIP:    g.srcIP,
		DstIP:    g.dstIP,
		Protocol: layers.IPProtocolUDP,
	}
	udpLayer := &layers.UDP{
		SrcPort: layers.UDPPort(g.conf.SrcPort + uint16(seq%g.conf.FlowCount)),
		DstPort: layers.UDPPort(g.conf.DstPort),
	}

	if err := udpLayer.SetNetworkLayerForChecksum(ipLayer); err != nil {
		return nil, err
	}

	payload := make([]byte, g.conf.PayloadLen)
	for i := range payload {
		payload[i] = byte(seq + i)
	}

	err := gopacket.SerializeLayers(buffer, g.opts,
		ethernetLayer,
		ipLayer,
		udpLayer,
		gopacket.Payload(payload),
	)
	if err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}

// Start runs the generator until Count packets were sent or ctx is done. A
// zero Count runs until ctx is done. The channel is closed on exit and is
// bounded by QueueDepth, so a slow consumer stalls the generator.
func (g *Generator) Start(ctx context.Context) <-chan *Packet {
	out := make(chan *Packet, g.conf.QueueDepth)

	go func() {
		defer close(out)

		for seq := 0; g.conf.Count == 0 || seq < g.conf.Count; seq++ {
			data, err := g.Build(seq)
			if err != nil {
				logger.PktGenLog.With("seq", seq).Errorln("packet build failed:", err)
				return
			}

			select {
			case out <- &Packet{Seq: seq, Data: data}:
			case <-ctx.Done():
				logger.PktGenLog.With("sent", seq).Infoln("generator stopped")
				return
			}
		}

		logger.PktGenLog.With("sent", g.conf.Count).Infoln("generator done")
	}()

	return out
}
