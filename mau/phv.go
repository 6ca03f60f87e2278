// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"fmt"
	"strings"
)

const (
	PhvWords32 = 64
	PhvWords8  = 64
	PhvWords16 = 96
	PhvWords   = PhvWords32 + PhvWords8 + PhvWords16

	phvBase8  = PhvWords32
	phvBase16 = PhvWords32 + PhvWords8
)

// PhvWordWidth returns the container width in bits, or 0 for a bad index.
func PhvWordWidth(i int) int {
	switch {
	case i < 0 || i >= PhvWords:
		return 0
	case i < phvBase8:
		return 32
	case i < phvBase16:
		return 8
	default:
		return 16
	}
}

// Phv is the packet header vector: parsed fields plus metadata in fixed
// width containers. A PHV is owned by the stage processing it.
type Phv struct {
	words [PhvWords]uint32
	valid [PhvWords]bool
	gress [PhvWords]Gress

	// PacketLen is the byte length used by meters and byte counters.
	PacketLen uint32
	Hash      uint32
	Drop      bool
	// Next holds the next-table pointer handed from stage to stage, per gress.
	Next [2]NextTable
	// Thread marks which gresses are live for this PHV.
	Thread [2]bool
	// Snapshot is set once any stage has triggered a capture.
	Snapshot bool
}

// NewPhv returns an empty ingress PHV entering stage 0.
func NewPhv() *Phv {
	return &Phv{
		Next:   [2]NextTable{MakeNextTable(0, 0), MakeNextTable(0, 0)},
		Thread: [2]bool{true, false},
	}
}

func (p *Phv) Get(i int) uint32 {
	if PhvWordWidth(i) == 0 {
		return 0
	}

	return p.words[i]
}

// Set stores v truncated to the container width and marks it valid.
func (p *Phv) Set(i int, v uint32) {
	w := PhvWordWidth(i)
	if w == 0 {
		return
	}

	if w < 32 {
		v &= (uint32(1) << uint(w)) - 1
	}

	p.words[i] = v
	p.valid[i] = true
}

func (p *Phv) SetGress(i int, g Gress) {
	if PhvWordWidth(i) != 0 {
		p.gress[i] = g
	}
}

func (p *Phv) GressOf(i int) Gress {
	if PhvWordWidth(i) == 0 {
		return GressBoth
	}

	return p.gress[i]
}

func (p *Phv) IsValid(i int) bool {
	return PhvWordWidth(i) != 0 && p.valid[i]
}

func (p *Phv) Invalidate(i int) {
	if PhvWordWidth(i) != 0 {
		p.valid[i] = false
		p.words[i] = 0
	}
}

func (p *Phv) Clone() *Phv {
	c := *p
	return &c
}

func (p *Phv) Equal(o *Phv) bool {
	return p.words == o.words && p.valid == o.valid
}

func (p *Phv) String() string {
	sb := strings.Builder{}
	for i := 0; i < PhvWords; i++ {
		if p.valid[i] {
			fmt.Fprintf(&sb, "[%d]=%#x ", i, p.words[i])
		}
	}

	return strings.TrimSpace(sb.String())
}
