// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"fmt"
	"strings"

	"github.com/omec-project/mausim/pkg/bitvector"
)

type AluKind uint8

const (
	AluNone AluKind = iota
	AluMeter
	AluLpf
	AluSelector
	AluStateful
	AluStats
)

var aluKindNames = []string{"none", "meter", "lpf", "selector", "stateful", "stats"}

func (k AluKind) String() string {
	if int(k) < len(aluKindNames) {
		return aluKindNames[k]
	}

	return fmt.Sprintf("alu(%d)", uint8(k))
}

func (k *AluKind) UnmarshalText(b []byte) error {
	for i, n := range aluKindNames {
		if strings.EqualFold(string(b), n) {
			*k = AluKind(i)
			return nil
		}
	}

	if strings.EqualFold(string(b), "red") {
		*k = AluLpf
		return nil
	}

	return ErrInvalidArgument("alu kind", string(b))
}

// AluInput is everything an ALU may consume for one access besides its
// memory word.
type AluInput struct {
	// Now is the pipeline time in clock ticks.
	Now uint64
	// Cycle numbers packets; forwarding hazards compare consecutive cycles.
	Cycle uint64
	// PacketLen is the byte count charged to meters and counters.
	PacketLen uint32
	// Operand is the PHV value selected by the ALU configuration.
	Operand  uint32
	Hash     uint32
	PreColor Color
}

// AluOutput is what an ALU returns onto the action bus.
type AluOutput struct {
	Valid bool
	Color Color
	Data  uint32
	Drop  bool
}

// AluUnit is a read-modify-write arithmetic unit attached to a logical row.
type AluUnit interface {
	Kind() AluKind
	Reset()
	Run(mem Addressable, addr Address, in *AluInput) AluOutput
}

// Lfsr is a 32-bit Galois LFSR used for RED and selector randomness.
type Lfsr struct {
	state uint32
}

const lfsrTaps = 0x80200003

func NewLfsr(seed uint32) *Lfsr {
	if seed == 0 {
		seed = lfsrSeedDefault
	}

	return &Lfsr{state: seed}
}

func (l *Lfsr) Next() uint32 {
	lsb := l.state & 1
	l.state >>= 1

	if lsb != 0 {
		l.state ^= lfsrTaps
	}

	return l.state
}

// hazard is the one-entry cache of the word a configuration write replaced.
// A packet access in the following cycle sees the old word because the
// hardware cannot forward configuration data into the ALU pipeline.
type hazard struct {
	valid bool
	mem   Addressable
	index int
	cycle uint64
	prev  *bitvector.BitVector
}

func (h *hazard) record(mem Addressable, index int, cycle uint64, prev *bitvector.BitVector) {
	*h = hazard{valid: true, mem: mem, index: index, cycle: cycle, prev: prev}
}

// applies reports whether an access at cycle hits the cached word.
func (h *hazard) applies(mem Addressable, index int, cycle uint64) bool {
	if !h.valid {
		return false
	}

	if cycle > h.cycle+1 {
		h.valid = false
		return false
	}

	return cycle == h.cycle+1 && h.mem == mem && h.index == index
}
