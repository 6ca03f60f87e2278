// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecayShifts(t *testing.T) {
	for _, scenario := range []struct {
		description    string
		dt, tc         uint64
		sl, fine, frac uint
	}{
		{"no time passed", 0, 100, 0, 0, 0},
		{"one time constant", 100, 100, 0, 1, 0},
		{"quarter steps", 9, 4, 0, 2, 1},
		{"byte shift", 34, 4, 1, 0, 2},
		{"fully decayed", 32 * 4, 4, lpfSnapShiftBytes, 0, 0},
		{"zero time constant", 1, 0, lpfSnapShiftBytes, 0, 0},
	} {
		t.Run(scenario.description, func(t *testing.T) {
			sl, fine, frac := decayShifts(scenario.dt, scenario.tc)
			assert.Equal(t, scenario.sl, sl)
			assert.Equal(t, scenario.fine, fine)
			assert.Equal(t, scenario.frac, frac)
		})
	}
}

func TestDecay(t *testing.T) {
	assert.Equal(t, uint64(1024), Decay(1024, 0, 0, 0))
	assert.Equal(t, uint64(512), Decay(1024, 0, 1, 0))
	assert.Equal(t, uint64(1<<12), Decay(1<<20, 1, 0, 0))
	assert.Equal(t, uint64(0), Decay(1<<20, lpfSnapShiftBytes, 0, 0))

	// 2^-0.25, 2^-0.5, 2^-0.75 within the shift approximation.
	for frac, want := range []float64{1024, 861, 724, 609} {
		assert.InDelta(t, want, float64(Decay(1024, 0, 0, uint(frac))), 32, "frac %d", frac)
	}
}

func TestLpfWordPack(t *testing.T) {
	lw := LpfWord{
		Vold: 0xffffffff, Timestamp: lpfTsMask, TcMant: 511, RiseExp: 31, DecayExp: 30,
		OutScaleExp: 3, RedLevel100: 200, RedLevel0: 10, RedLevelExp: 4, RedProbExp: 7, RateEnable: true,
	}

	assert.Equal(t, lw, UnpackLpfWord(lw.Pack()))
}

func TestLpfFilter(t *testing.T) {
	m := NewLpfMeter(DefaultConfig(), false)

	t.Run("sample mode decays toward input", func(t *testing.T) {
		lw := LpfWord{Vold: 1000, TcMant: 100}
		vnew, ts, snapped := m.Filter(lw, 0, 100)
		assert.False(t, snapped)
		assert.Equal(t, uint32(100), ts)
		assert.Equal(t, uint32(500), vnew)
	})

	t.Run("rising input uses the rise exponent", func(t *testing.T) {
		lw := LpfWord{Vold: 0, TcMant: 100, RiseExp: 1}
		vnew, _, _ := m.Filter(lw, 1000, 200)
		assert.Equal(t, uint32(500), vnew)

		lw.RiseExp = 0
		vnew, _, _ = m.Filter(lw, 1000, 200)
		assert.Equal(t, uint32(750), vnew)
	})

	t.Run("rate mode accumulates", func(t *testing.T) {
		lw := LpfWord{Vold: 1000, TcMant: 100, RateEnable: true}
		vnew, _, _ := m.Filter(lw, 64, 100)
		assert.Equal(t, uint32(564), vnew)
	})

	t.Run("rate mode saturates", func(t *testing.T) {
		lw := LpfWord{Vold: 0xffffffff, TcMant: 100, RateEnable: true}
		vnew, _, _ := m.Filter(lw, 0xffff, 0)
		assert.Equal(t, uint32(0xffffffff), vnew)
	})

	t.Run("long idle snaps to input", func(t *testing.T) {
		lw := LpfWord{Vold: 1000, TcMant: 1}
		vnew, _, snapped := m.Filter(lw, 42, 1000)
		assert.True(t, snapped)
		assert.Equal(t, uint32(42), vnew)
	})

	t.Run("timestamp wraps", func(t *testing.T) {
		lw := LpfWord{Vold: 1000, TcMant: 100, Timestamp: lpfTsMask - 49}
		vnew, ts, _ := m.Filter(lw, 0, lpfTsMask+51)
		assert.Equal(t, uint32(50), ts)
		assert.Equal(t, uint32(500), vnew)
	})
}

func TestLpfSnapForwarding(t *testing.T) {
	conf := DefaultConfig()

	const (
		index = 3
		cycle = 40
	)

	stale := LpfWord{Vold: 9999, TcMant: 1, Timestamp: 1000}
	addr := meterAddr(index, MeterOpLpf)

	s := newMeterSram(t, conf, index, LpfWord{Vold: 1000, TcMant: 1}.Pack())
	m := NewLpfMeter(conf, false)

	out := m.Run(s, addr, &AluInput{Cycle: cycle, Now: 1000, Operand: 50})
	require.True(t, out.Valid)
	require.Equal(t, uint32(50), out.Data, "old value fully decayed")

	// The snapped word is forwarded to the next cycle even if memory says
	// otherwise.
	require.True(t, s.Set(index, stale.Pack()))

	out = m.Run(s, addr, &AluInput{Cycle: cycle + 1, Now: 1000, Operand: 50})
	assert.Equal(t, uint32(50), out.Data)

	require.True(t, s.Set(index, stale.Pack()))

	out = m.Run(s, addr, &AluInput{Cycle: cycle + 2, Now: 1000, Operand: 50})
	assert.Equal(t, uint32(9999), out.Data, "forwarding lasts one cycle")
}

func TestLpfOutputScale(t *testing.T) {
	conf := DefaultConfig()
	s := newMeterSram(t, conf, 0, LpfWord{TcMant: 1, OutScaleExp: 4, RateEnable: true}.Pack())
	m := NewLpfMeter(conf, false)

	out := m.Run(s, meterAddr(0, MeterOpLpf), &AluInput{Cycle: 1, Now: 1 << 20, PacketLen: 1600})
	assert.Equal(t, uint32(100), out.Data)

	stored, _ := s.Get(0)
	assert.Equal(t, uint32(1600), UnpackLpfWord(stored).Vold)
}

func TestRedMonotonic(t *testing.T) {
	conf := DefaultConfig()

	for _, levelExp := range []uint32{0, 2, 7} {
		for _, probExp := range []uint32{0, 3, 7} {
			t.Run(fmt.Sprintf("level exp %d prob exp %d", levelExp, probExp), func(t *testing.T) {
				m := NewLpfMeter(conf, true)
				m.DropValue, m.NoDropValue = 0xd, 0x1

				lw := LpfWord{RedLevel0: 10, RedLevel100: 200, RedLevelExp: levelExp, RedProbExp: probExp}
				l0, l100 := lw.RedLevels()

				for v := uint64(0); v < l100*2; v += 1 + l100/512 {
					var drop bool
					var data uint32

					require.NotPanics(t, func() { drop, data = m.RedActionData(uint32(v), lw) })

					switch {
					case v < l0:
						assert.False(t, drop, "v=%d below level0 dropped", v)
					case v >= l100:
						assert.True(t, drop, "v=%d above level100 kept", v)
					}

					if drop {
						assert.Equal(t, uint32(0xd), data)
					} else {
						assert.Equal(t, uint32(0x1), data)
					}
				}
			})
		}
	}
}

func TestRedLevelMax(t *testing.T) {
	conf := DefaultConfig()
	m := NewLpfMeter(conf, true)

	for _, levelExp := range []uint32{0, 5, 16} {
		lw := LpfWord{RedLevel0: 0xfe, RedLevel100: 0xff, RedLevelExp: levelExp}
		lmax := lw.RedLevelMax()

		_, l100 := lw.RedLevels()
		require.Equal(t, l100, lmax, "level100 at its widest reaches the maximum")

		for _, v := range []uint64{lmax, lmax + 1, lmax << 1} {
			var drop bool

			require.NotPanics(t, func() { drop, _ = m.RedActionData(uint32(v), lw) })
			assert.True(t, drop, "v=%d at exp %d kept", v, levelExp)
		}
	}
}

func TestRedRun(t *testing.T) {
	conf := DefaultConfig()
	lw := LpfWord{TcMant: 1, RedLevel0: 10, RedLevel100: 20, RedLevelExp: 4}
	l0, l100 := lw.RedLevels()

	for _, scenario := range []struct {
		description string
		operand     uint32
		drop        bool
	}{
		{"below level0", uint32(l0) - 1, false},
		{"above level100", uint32(l100) + 1, true},
	} {
		t.Run(scenario.description, func(t *testing.T) {
			s := newMeterSram(t, conf, 0, lw.Pack())
			m := NewLpfMeter(conf, true)
			m.DropValue = 7

			// A long idle period makes Vnew equal the operand.
			out := m.Run(s, meterAddr(0, MeterOpLpf), &AluInput{Cycle: 1, Now: 1 << 20, Operand: scenario.operand})
			require.True(t, out.Valid)
			assert.Equal(t, scenario.drop, out.Drop)

			if scenario.drop {
				assert.Equal(t, uint32(7), out.Data)
			}
		})
	}
}

func TestLfsr(t *testing.T) {
	a, b := NewLfsr(1), NewLfsr(1)
	seen := make(map[uint32]bool)

	for i := 0; i < 1000; i++ {
		v := a.Next()
		require.Equal(t, v, b.Next())
		require.NotZero(t, v)

		seen[v] = true
	}

	assert.Len(t, seen, 1000)
	assert.Equal(t, NewLfsr(lfsrSeedDefault).Next(), NewLfsr(0).Next())
}
