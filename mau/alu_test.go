// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omec-project/mausim/pkg/bitvector"
)

func newAluSram(t *testing.T, role SramRole) *Sram {
	t.Helper()

	s := NewSram(DefaultConfig(), 0, 0, 0)
	s.Configure(role, 0, 0, Ingress)

	return s
}

func TestAluKindText(t *testing.T) {
	var spec struct {
		Kind AluKind `json:"kind"`
	}

	for in, want := range map[string]AluKind{"meter": AluMeter, "LPF": AluLpf, "red": AluLpf, "stats": AluStats} {
		require.NoError(t, json.Unmarshal([]byte(`{"kind":"`+in+`"}`), &spec))
		assert.Equal(t, want, spec.Kind, in)
	}

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"wred"}`), &spec))
}

func TestStats(t *testing.T) {
	for _, scenario := range []struct {
		description string
		format      StatsFormat
		subword     int
		packets     uint64
		bytes       uint64
	}{
		{"packets", StatsPackets, 3, 3, 0},
		{"bytes", StatsBytes, 1, 0, 300},
		{"packets and bytes", StatsPacketsBytes, 0, 3, 300},
	} {
		t.Run(scenario.description, func(t *testing.T) {
			s := newAluSram(t, RoleStats)
			st := NewStats(scenario.format)
			a := Address{Type: AddrStats, Index: 9, Subword: scenario.subword, Pfe: true}

			for i := 0; i < 3; i++ {
				require.True(t, st.Run(s, a, &AluInput{PacketLen: 100}).Valid)
			}

			w, _ := s.Get(9)
			packets, bytes := st.Counters(w, scenario.subword)
			assert.Equal(t, scenario.packets, packets)
			assert.Equal(t, scenario.bytes, bytes)

			// Neighbouring counters of the same word are untouched.
			if n := scenario.format.EntriesPerWord(); n > 1 {
				packets, bytes = st.Counters(w, (scenario.subword+1)%n)
				assert.Zero(t, packets+bytes)
			}
		})
	}

	t.Run("packet counter wraps", func(t *testing.T) {
		s := newAluSram(t, RoleStats)
		require.True(t, s.Set(0, bitvector.FromUint64s(SramWidth, 0xffffffff)))

		st := NewStats(StatsPackets)
		st.Run(s, Address{Type: AddrStats}, &AluInput{})

		w, _ := s.Get(0)
		packets, _ := st.Counters(w, 0)
		assert.Zero(t, packets)
		assert.Zero(t, w.GetWord(32, 32), "carry does not leak into the next counter")
	})
}

func TestSelector(t *testing.T) {
	t.Run("fair pick spreads over live members", func(t *testing.T) {
		sel := NewSelector(SelectorFair)
		w := SelectorWord(3, 17, 64, 119)

		picked := make(map[int]int)
		for h := uint32(0); h < 400; h++ {
			picked[sel.Pick(w, h)]++
		}

		assert.Equal(t, map[int]int{3: 100, 17: 100, 64: 100, 119: 100}, picked)
	})

	t.Run("resilient pick only moves flows of a removed member", func(t *testing.T) {
		sel := NewSelector(SelectorResilient)
		before := SelectorWord(3, 17, 64, 119)
		after := SelectorWord(3, 64, 119)

		for h := uint32(0); h < SelectorMembers; h++ {
			b, a := sel.Pick(before, h), sel.Pick(after, h)
			if b != 17 {
				assert.Equal(t, b, a, "hash %d", h)
			} else {
				assert.Equal(t, 64, a, "hash %d", h)
			}
		}
	})

	t.Run("resilient pick wraps", func(t *testing.T) {
		sel := NewSelector(SelectorResilient)
		assert.Equal(t, 3, sel.Pick(SelectorWord(3, 17), 100))
	})

	t.Run("members beyond the word are ignored", func(t *testing.T) {
		assert.Equal(t, 0, SelectorWord(-1, SelectorMembers, 200).PopCount())
	})

	t.Run("run", func(t *testing.T) {
		s := newAluSram(t, RoleSelector)
		require.True(t, s.Set(2, SelectorWord(10, 20)))

		sel := NewSelector(SelectorFair)
		out := sel.Run(s, Address{Type: AddrSelector, Index: 2}, &AluInput{Hash: 5})
		require.True(t, out.Valid)
		assert.Equal(t, uint32(20), out.Data)

		out = sel.Run(s, Address{Type: AddrSelector, Index: 3}, &AluInput{Hash: 5})
		assert.False(t, out.Valid, "empty group")
	})
}

func TestStateful(t *testing.T) {
	for _, scenario := range []struct {
		description string
		spec        StatefulSpec
		operands    []uint32
		outputs     []uint32
		lo, hi      uint32
	}{
		{
			description: "counter",
			spec:        StatefulSpec{LoOp: "add", Output: "lo"},
			operands:    []uint32{1, 1, 1},
			outputs:     []uint32{1, 2, 3},
			lo:          3,
		},
		{
			description: "high water mark",
			spec:        StatefulSpec{Cond: "ge", LoOp: "set", HiOp: "add", HiConst: 1, Output: "predicate"},
			operands:    []uint32{5, 3, 9, 9},
			outputs:     []uint32{1, 0, 1, 1},
			lo:          9,
			hi:          3,
		},
		{
			description: "old value readout",
			spec:        StatefulSpec{LoOp: "max", Output: "old_lo"},
			operands:    []uint32{4, 2, 8},
			outputs:     []uint32{0, 4, 4},
			lo:          8,
		},
		{
			description: "hi output",
			spec:        StatefulSpec{Cond: "ne", HiOp: "or", HiConst: 0x10, Output: "hi"},
			operands:    []uint32{0, 7},
			outputs:     []uint32{0, 0x10},
			hi:          0x10,
		},
	} {
		t.Run(scenario.description, func(t *testing.T) {
			require.NoError(t, scenario.spec.validate())

			s := newAluSram(t, RoleStateful)
			alu := NewStateful(scenario.spec)
			a := Address{Type: AddrMeter, Index: 4, Subword: 1, Pfe: true}

			for i, op := range scenario.operands {
				out := alu.Run(s, a, &AluInput{Operand: op})
				require.True(t, out.Valid)
				assert.Equal(t, scenario.outputs[i], out.Data, "access %d", i)
			}

			w, _ := s.Get(4)
			assert.Equal(t, uint64(scenario.lo), w.GetWord(64, 32))
			assert.Equal(t, uint64(scenario.hi), w.GetWord(96, 32))
			assert.Zero(t, w.GetWord(0, 64), "other half untouched")
		})
	}

	t.Run("invalid spec", func(t *testing.T) {
		assert.Error(t, (&StatefulSpec{LoOp: "mul"}).validate())
		assert.Error(t, (&StatefulSpec{Cond: "gt"}).validate())
		assert.Error(t, (&StatefulSpec{Output: "both"}).validate())
	})
}
