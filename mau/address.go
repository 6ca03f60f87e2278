// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import "fmt"

type AddrType uint8

const (
	AddrMatch AddrType = iota
	AddrAction
	AddrStats
	AddrMeter
	AddrIdle
	AddrSelector
)

var addrTypeNames = []string{"match", "action", "stats", "meter", "idletime", "selector"}

func (t AddrType) String() string {
	if int(t) < len(addrTypeNames) {
		return addrTypeNames[t]
	}

	return fmt.Sprintf("addrtype(%d)", uint8(t))
}

// MeterOp is the 3-bit type field carried in the top of a meter address.
type MeterOp uint8

const (
	MeterOpNone       MeterOp = 0
	MeterOpStateful   MeterOp = 1
	MeterOpSelector   MeterOp = 2
	MeterOpColorBlind MeterOp = 4
	MeterOpColorAware MeterOp = 5
	MeterOpLpf        MeterOp = 6
)

const (
	vpnBits   = 6
	indexBits = 10
	vpnMask   = 1<<vpnBits - 1
	indexMask = 1<<indexBits - 1

	matchSubwordBits  = 2
	actionSubwordBits = 6
	statsSubwordBits  = 3
	meterSubwordBits  = 7
	idleSubwordBits   = 4

	actionPfeBit = 22
	statsPfeBit  = 19
	meterPfeBit  = 23
	meterOpShift = 24
	idlePfeBit   = 20

	// MatchEntriesPerVpn is how many entries of one SRAM word share a VPN.
	MatchEntriesPerVpn = 1 << matchSubwordBits
)

// Address is the decoded form of every virtual address the match engine
// produces. Which fields are meaningful depends on Type.
type Address struct {
	Type    AddrType
	Vpn     int
	Index   int
	Subword int
	Pfe     bool
	Op      MeterOp
}

func (t AddrType) subwordBits() uint {
	switch t {
	case AddrMatch:
		return matchSubwordBits
	case AddrAction:
		return actionSubwordBits
	case AddrStats:
		return statsSubwordBits
	case AddrMeter, AddrSelector:
		return meterSubwordBits
	case AddrIdle:
		return idleSubwordBits
	}

	return 0
}

func (t AddrType) pfeBit() int {
	switch t {
	case AddrAction:
		return actionPfeBit
	case AddrStats:
		return statsPfeBit
	case AddrMeter, AddrSelector:
		return meterPfeBit
	case AddrIdle:
		return idlePfeBit
	}

	return -1
}

// Pack encodes the address in its hardware bit layout.
func (a Address) Pack() uint32 {
	sb := a.Type.subwordBits()
	v := uint32(a.Vpn&vpnMask)<<(indexBits+sb) |
		uint32(a.Index&indexMask)<<sb |
		uint32(a.Subword)&(uint32(1)<<sb-1)

	if bit := a.Type.pfeBit(); bit >= 0 && a.Pfe {
		v |= 1 << uint(bit)
	}

	if a.Type == AddrMeter || a.Type == AddrSelector {
		v |= uint32(a.Op&0x7) << meterOpShift
	}

	return v
}

// UnpackAddress decodes v as an address of type t.
func UnpackAddress(t AddrType, v uint32) Address {
	sb := t.subwordBits()
	a := Address{
		Type:    t,
		Subword: int(v & (uint32(1)<<sb - 1)),
		Index:   int(v>>sb) & indexMask,
		Vpn:     int(v>>(sb+indexBits)) & vpnMask,
	}

	if bit := t.pfeBit(); bit >= 0 {
		a.Pfe = v&(1<<uint(bit)) != 0
	}

	if t == AddrMeter || t == AddrSelector {
		a.Op = MeterOp(v>>meterOpShift) & 0x7
	}

	return a
}

func (a Address) String() string {
	return fmt.Sprintf("%s{vpn=%d idx=%d sub=%d pfe=%t op=%d}", a.Type, a.Vpn, a.Index, a.Subword, a.Pfe, a.Op)
}

// EntryAddress maps a logical entry number onto a memory laid out with
// entriesPerWord entries per word and VPNs starting at vpnBase.
func EntryAddress(t AddrType, entry, entriesPerWord, vpnBase int) Address {
	if entriesPerWord < 1 {
		entriesPerWord = 1
	}

	word := entry / entriesPerWord

	return Address{
		Type:    t,
		Vpn:     vpnBase + word/SramDepth,
		Index:   word % SramDepth,
		Subword: entry % entriesPerWord,
		Pfe:     true,
	}
}

// EntryNumber is the inverse of EntryAddress.
func (a Address) EntryNumber(entriesPerWord, vpnBase int) int {
	if entriesPerWord < 1 {
		entriesPerWord = 1
	}

	word := (a.Vpn-vpnBase)*SramDepth + a.Index

	return word*entriesPerWord + a.Subword
}
