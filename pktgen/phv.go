// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package pktgen

import (
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/omec-project/mausim/logger"
	"github.com/omec-project/mausim/mau"
	"github.com/omec-project/mausim/pkg/utils"
)

// PHV containers the parser fills.
const (
	PhvIPv4Dst  = 0
	PhvIPv4Src  = 1
	PhvL4Ports  = 2 // src<<16 | dst
	PhvEthDstLo = 3
	PhvEthSrcLo = 4

	PhvIPv4Proto = mau.PhvWords32
	PhvIPv4TTL   = mau.PhvWords32 + 1
	PhvIPv4Tos   = mau.PhvWords32 + 2

	PhvEthType  = mau.PhvWords32 + mau.PhvWords8
	PhvUDPSrc   = PhvEthType + 1
	PhvUDPDst   = PhvEthType + 2
	PhvEthDstHi = PhvEthType + 3
	PhvEthSrcHi = PhvEthType + 4
)

type parser struct {
	eth     layers.Ethernet
	ip4     layers.IPv4
	udp     layers.UDP
	payload gopacket.Payload

	decoded []gopacket.LayerType
	dlp     *gopacket.DecodingLayerParser
}

func newParser() *parser {
	p := &parser{}
	p.dlp = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &p.eth, &p.ip4, &p.udp, &p.payload)
	p.dlp.IgnoreUnsupported = true

	return p
}

func setMAC(phv *mau.Phv, hi, lo int, mac []byte) {
	if len(mac) != 6 {
		return
	}

	phv.Set(hi, uint32(binary.BigEndian.Uint16(mac[:2])))
	phv.Set(lo, binary.BigEndian.Uint32(mac[2:]))
}

// ParsePhv maps the Ethernet, IPv4 and UDP headers of data into an ingress
// PHV. Missing headers leave their containers invalid. Hash is the symmetric
// flow hash of the network and transport endpoints.
func ParsePhv(data []byte) (*mau.Phv, error) {
	p := newParser()
	if err := p.dlp.DecodeLayers(data, &p.decoded); err != nil {
		return nil, mau.ErrInvalidArgumentWithReason("packet", len(data), err.Error())
	}

	phv := mau.NewPhv()
	phv.PacketLen = uint32(len(data))

	var hash uint64

	for _, lt := range p.decoded {
		switch lt {
		case layers.LayerTypeEthernet:
			setMAC(phv, PhvEthDstHi, PhvEthDstLo, p.eth.DstMAC)
			setMAC(phv, PhvEthSrcHi, PhvEthSrcLo, p.eth.SrcMAC)
			phv.Set(PhvEthType, uint32(p.eth.EthernetType))
		case layers.LayerTypeIPv4:
			phv.Set(PhvIPv4Dst, utils.Ip4ToUint32(p.ip4.DstIP))
			phv.Set(PhvIPv4Src, utils.Ip4ToUint32(p.ip4.SrcIP))
			phv.Set(PhvIPv4Proto, uint32(p.ip4.Protocol))
			phv.Set(PhvIPv4TTL, uint32(p.ip4.TTL))
			phv.Set(PhvIPv4Tos, uint32(p.ip4.TOS))

			hash ^= p.ip4.NetworkFlow().FastHash()
		case layers.LayerTypeUDP:
			phv.Set(PhvUDPSrc, uint32(p.udp.SrcPort))
			phv.Set(PhvUDPDst, uint32(p.udp.DstPort))
			phv.Set(PhvL4Ports, uint32(p.udp.SrcPort)<<16|uint32(p.udp.DstPort))

			hash ^= p.udp.TransportFlow().FastHash()
		}
	}

	phv.Hash = uint32(hash ^ hash>>32)

	logger.PktGenLog.With("len", len(data), "layers", len(p.decoded)).Debugln("packet parsed")

	return phv, nil
}
