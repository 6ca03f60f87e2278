// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omec-project/mausim/pkg/bitvector"
)

func newMeterSram(t *testing.T, conf *SimulatorConfig, index int, w *bitvector.BitVector) *Sram {
	t.Helper()

	s := NewSram(conf, 0, 0, 0)
	s.Configure(RoleMeter, 0, 0, Ingress)
	require.True(t, s.Set(index, w))

	return s
}

func meterAddr(index int, op MeterOp) Address {
	return Address{Type: AddrMeter, Index: index, Pfe: true, Op: op}
}

func TestEncodeRate(t *testing.T) {
	const clockHz = 1_250_000_000

	for _, scenario := range []struct {
		description string
		rate        uint64
		shift       uint
	}{
		{"line rate bytes", 1_000_000_000, 0},
		{"slow policer", 125_000, 0},
		{"scaled time", 10_000_000, 8},
		{"packets", 1000, 4},
	} {
		t.Run(scenario.description, func(t *testing.T) {
			mant, exp := EncodeRate(scenario.rate, clockHz, scenario.shift)
			require.LessOrEqual(t, mant, uint32(1<<meterRateMantBits-1))
			require.Less(t, exp, uint32(1<<meterRateExpBits))

			assert.InEpsilon(t, float64(scenario.rate), float64(DecodeRate(mant, exp, clockHz, scenario.shift)), 0.01)
		})
	}

	mant, exp := EncodeRate(0, clockHz, 0)
	assert.Zero(t, mant)
	assert.Zero(t, exp)
}

func TestEncodeBurst(t *testing.T) {
	for _, size := range []uint64{0, 1, 255, 256, 1000, 10000, 1 << 20} {
		mant, exp := EncodeBurst(size)
		assert.LessOrEqual(t, mant, uint32(1<<meterBurstMantBits-1))
		assert.GreaterOrEqual(t, burstSize(mant, exp), size, "size %d", size)
	}

	mant, exp := EncodeBurst(1000)
	assert.Equal(t, uint32(250), mant)
	assert.Equal(t, uint32(2), exp)

	mant, exp = EncodeBurst(256)
	assert.Equal(t, uint32(128), mant)
	assert.Equal(t, uint32(1), exp)

	t.Run("oversized bursts saturate at the bucket width", func(t *testing.T) {
		mant, exp := EncodeBurst(1 << 40)
		assert.Equal(t, uint32(1<<meterBurstMantBits-1), mant)
		assert.Equal(t, uint32(1<<meterBurstExpBits-1), exp)
		assert.Equal(t, uint64(meterLevelMax), burstSize(mant, exp))
	})
}

func TestMeterWordPack(t *testing.T) {
	mw := MeterWord{
		CommittedLevel: 1000, PeakLevel: meterLevelMax, Timestamp: meterTsMask,
		CBurstMant: 250, CBurstExp: 2, PBurstMant: 255, PBurstExp: 31,
		CRateMant: 511, CRateExp: 9, PRateMant: 1, PRateExp: 31,
	}

	assert.Equal(t, mw, UnpackMeterWord(mw.Pack()))
}

func TestMeterColors(t *testing.T) {
	conf := DefaultConfig()
	cfg := MeterConfig{CBurst: 1000, PBurst: 2000}

	for _, scenario := range []struct {
		description string
		op          MeterOp
		preColor    Color
		expected    []Color
	}{
		{
			description: "color blind drains committed then peak",
			op:          MeterOpColorBlind,
			expected:    []Color{Green, Yellow, Yellow, Red, Red},
		},
		{
			description: "color aware keeps red",
			op:          MeterOpColorAware,
			preColor:    Red,
			expected:    []Color{Red, Red, Red},
		},
		{
			description: "color aware yellow only uses peak",
			op:          MeterOpColorAware,
			preColor:    Yellow,
			expected:    []Color{Yellow, Yellow, Yellow, Red},
		},
	} {
		t.Run(scenario.description, func(t *testing.T) {
			s := newMeterSram(t, conf, 5, EncodeMeterWord(cfg, conf.ClockHz, 0).Pack())
			m := NewMeter(conf, true)

			for i, want := range scenario.expected {
				out := m.Run(s, meterAddr(5, scenario.op), &AluInput{
					Cycle:     uint64(i + 1),
					PacketLen: 600,
					PreColor:  scenario.preColor,
				})
				require.True(t, out.Valid)
				assert.Equal(t, want, out.Color, "packet %d", i)
				assert.Equal(t, uint32(want), out.Data)
			}
		})
	}

	t.Run("packet mode charges one token", func(t *testing.T) {
		s := newMeterSram(t, conf, 0, EncodeMeterWord(MeterConfig{CBurst: 2, PBurst: 3}, conf.ClockHz, 0).Pack())
		m := NewMeter(conf, false)

		var got []Color
		for i := 0; i < 4; i++ {
			got = append(got, m.Run(s, meterAddr(0, MeterOpColorBlind), &AluInput{Cycle: uint64(i + 1), PacketLen: 1500}).Color)
		}

		assert.Equal(t, []Color{Green, Green, Yellow, Red}, got)
	})

	t.Run("refill over time", func(t *testing.T) {
		cfg := MeterConfig{CIR: 1_250_000_000, CBurst: 1000, PIR: 1_250_000_000, PBurst: 1000}
		s := newMeterSram(t, conf, 0, EncodeMeterWord(cfg, conf.ClockHz, 0).Pack())
		m := NewMeter(conf, true)

		in := &AluInput{Cycle: 1, PacketLen: 1000}
		assert.Equal(t, Green, m.Run(s, meterAddr(0, MeterOpColorBlind), in).Color)

		in = &AluInput{Cycle: 2, PacketLen: 1000}
		assert.Equal(t, Red, m.Run(s, meterAddr(0, MeterOpColorBlind), in).Color)

		// One byte per tick refills the bucket after a thousand ticks.
		in = &AluInput{Cycle: 3, Now: 1000, PacketLen: 1000}
		assert.Equal(t, Green, m.Run(s, meterAddr(0, MeterOpColorBlind), in).Color)
	})

	t.Run("color mapram receives the color", func(t *testing.T) {
		s := newMeterSram(t, conf, 9, bitvector.New(SramWidth))
		cm := NewMapram(conf, 0, 0, 0)
		cm.ConfigureColor(0, 0)

		m := NewMeter(conf, true)
		m.ColorMapram = cm

		a := meterAddr(9, MeterOpColorBlind)
		out := m.Run(s, a, &AluInput{Cycle: 1, PacketLen: 64})
		require.Equal(t, Red, out.Color)
		assert.Equal(t, Red, cm.ReadColor(a))
	})
}

func TestMeterConfigWriteHazard(t *testing.T) {
	conf := DefaultConfig()

	// V is an empty bucket, W a full one: they color the same packet
	// differently.
	v := EncodeMeterWord(MeterConfig{}, conf.ClockHz, 0).Pack()
	w := EncodeMeterWord(MeterConfig{CBurst: 10000, PBurst: 20000}, conf.ClockHz, 0).Pack()

	const (
		index = 17
		cycle = 100
	)

	addr := meterAddr(index, MeterOpColorBlind)
	input := func(c uint64) *AluInput { return &AluInput{Cycle: c, Now: 50, PacketLen: 100} }

	s := newMeterSram(t, conf, index, v)
	m := NewMeter(conf, true)
	require.True(t, m.ConfigWrite(s, index, w, cycle))

	t.Run("next cycle computes from the pre-write word", func(t *testing.T) {
		fresh := NewMeter(conf, true)
		expected := fresh.Run(newMeterSram(t, conf, index, v), addr, input(cycle+1))

		got := m.Run(s, addr, input(cycle+1))
		assert.Equal(t, expected, got)
		assert.Equal(t, Red, got.Color)

		stored, ok := s.Get(index)
		require.True(t, ok)
		assert.True(t, w.Equal(stored), "configuration write is not lost")
	})

	t.Run("following cycle uses the written word", func(t *testing.T) {
		fresh := NewMeter(conf, true)
		expected := fresh.Run(newMeterSram(t, conf, index, w), addr, input(cycle+2))

		got := m.Run(s, addr, input(cycle+2))
		assert.Equal(t, expected, got)
		assert.Equal(t, Green, got.Color)
	})

	t.Run("other index is unaffected", func(t *testing.T) {
		s := newMeterSram(t, conf, index, v)
		require.True(t, s.Set(index+1, w))

		m := NewMeter(conf, true)
		require.True(t, m.ConfigWrite(s, index, w, cycle))

		assert.Equal(t, Green, m.Run(s, meterAddr(index+1, MeterOpColorBlind), input(cycle+1)).Color)
	})

	t.Run("same cycle access sees the written word", func(t *testing.T) {
		s := newMeterSram(t, conf, index, v)
		m := NewMeter(conf, true)
		require.True(t, m.ConfigWrite(s, index, w, cycle))

		assert.Equal(t, Green, m.Run(s, addr, input(cycle)).Color)
	})

	t.Run("reset drops the cached word", func(t *testing.T) {
		s := newMeterSram(t, conf, index, v)
		m := NewMeter(conf, true)
		require.True(t, m.ConfigWrite(s, index, w, cycle))
		m.Reset()

		assert.Equal(t, Green, m.Run(s, addr, input(cycle+1)).Color)
	})
}
