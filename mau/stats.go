// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"strings"

	"github.com/omec-project/mausim/pkg/bitvector"
)

type StatsFormat uint8

const (
	StatsPackets StatsFormat = iota
	StatsBytes
	StatsPacketsBytes
)

func (f *StatsFormat) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "packets", "":
		*f = StatsPackets
	case "bytes":
		*f = StatsBytes
	case "packets_bytes", "packets_and_bytes":
		*f = StatsPacketsBytes
	default:
		return ErrInvalidArgument("stats format", string(b))
	}

	return nil
}

// EntriesPerWord returns how many counters of the format share a word.
func (f StatsFormat) EntriesPerWord() int {
	switch f {
	case StatsBytes:
		return 2
	case StatsPacketsBytes:
		return 1
	}

	return 4
}

// Stats is the counter ALU. It runs at end of packet with the final length.
type Stats struct {
	Format StatsFormat
}

func NewStats(f StatsFormat) *Stats {
	return &Stats{Format: f}
}

func (s *Stats) Kind() AluKind { return AluStats }
func (s *Stats) Reset()        {}

// Counters decodes entry sub of word w.
func (s *Stats) Counters(w *bitvector.BitVector, sub int) (packets, bytes uint64) {
	switch s.Format {
	case StatsBytes:
		return 0, w.GetWord((sub%2)*64, 64)
	case StatsPacketsBytes:
		return w.GetWord(0, 64), w.GetWord(64, 64)
	}

	return w.GetWord((sub%4)*32, 32), 0
}

// Run increments the counters addressed by addr. Counters wrap at their
// field width.
func (s *Stats) Run(mem Addressable, addr Address, in *AluInput) AluOutput {
	w, ok := mem.Get(addr.Index)
	if !ok {
		return AluOutput{}
	}

	switch s.Format {
	case StatsBytes:
		off := (addr.Subword % 2) * 64
		w.SetWord(off, 64, w.GetWord(off, 64)+uint64(in.PacketLen))
	case StatsPacketsBytes:
		w.SetWord(0, 64, w.GetWord(0, 64)+1)
		w.SetWord(64, 64, w.GetWord(64, 64)+uint64(in.PacketLen))
	default:
		off := (addr.Subword % 4) * 32
		w.SetWord(off, 32, w.GetWord(off, 32)+1)
	}

	mem.Set(addr.Index, w)

	return AluOutput{Valid: true}
}
