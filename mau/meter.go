// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"math"

	"github.com/omec-project/mausim/logger"
	"github.com/omec-project/mausim/pkg/bitvector"
	"github.com/omec-project/mausim/pkg/utils"
)

// Meter word layout, low bit first.
const (
	meterCLevelOff     = 0
	meterPLevelOff     = 23
	meterTsOff         = 46
	meterCBurstMantOff = 74
	meterCBurstExpOff  = 82
	meterPBurstMantOff = 87
	meterPBurstExpOff  = 95
	meterCRateMantOff  = 100
	meterCRateExpOff   = 109
	meterPRateMantOff  = 114
	meterPRateExpOff   = 123

	meterLevelBits     = 23
	meterTsBits        = 28
	meterBurstMantBits = 8
	meterBurstExpBits  = 5
	meterRateMantBits  = 9
	meterRateExpBits   = 5

	meterLevelMax = 1<<meterLevelBits - 1
	meterTsMask   = 1<<meterTsBits - 1
)

// MeterWord is the unpacked form of a token bucket meter entry.
type MeterWord struct {
	CommittedLevel uint32
	PeakLevel      uint32
	Timestamp      uint32

	CBurstMant, CBurstExp uint32
	PBurstMant, PBurstExp uint32
	CRateMant, CRateExp   uint32
	PRateMant, PRateExp   uint32
}

func UnpackMeterWord(w *bitvector.BitVector) MeterWord {
	get := func(off, width int) uint32 { return uint32(w.GetWord(off, width)) }

	return MeterWord{
		CommittedLevel: get(meterCLevelOff, meterLevelBits),
		PeakLevel:      get(meterPLevelOff, meterLevelBits),
		Timestamp:      get(meterTsOff, meterTsBits),
		CBurstMant:     get(meterCBurstMantOff, meterBurstMantBits),
		CBurstExp:      get(meterCBurstExpOff, meterBurstExpBits),
		PBurstMant:     get(meterPBurstMantOff, meterBurstMantBits),
		PBurstExp:      get(meterPBurstExpOff, meterBurstExpBits),
		CRateMant:      get(meterCRateMantOff, meterRateMantBits),
		CRateExp:       get(meterCRateExpOff, meterRateExpBits),
		PRateMant:      get(meterPRateMantOff, meterRateMantBits),
		PRateExp:       get(meterPRateExpOff, meterRateExpBits),
	}
}

func (mw MeterWord) Pack() *bitvector.BitVector {
	w := bitvector.New(SramWidth)
	set := func(off, width int, v uint32) { w.SetWord(off, width, uint64(v)) }

	set(meterCLevelOff, meterLevelBits, mw.CommittedLevel)
	set(meterPLevelOff, meterLevelBits, mw.PeakLevel)
	set(meterTsOff, meterTsBits, mw.Timestamp)
	set(meterCBurstMantOff, meterBurstMantBits, mw.CBurstMant)
	set(meterCBurstExpOff, meterBurstExpBits, mw.CBurstExp)
	set(meterPBurstMantOff, meterBurstMantBits, mw.PBurstMant)
	set(meterPBurstExpOff, meterBurstExpBits, mw.PBurstExp)
	set(meterCRateMantOff, meterRateMantBits, mw.CRateMant)
	set(meterCRateExpOff, meterRateExpBits, mw.CRateExp)
	set(meterPRateMantOff, meterRateMantBits, mw.PRateMant)
	set(meterPRateExpOff, meterRateExpBits, mw.PRateExp)

	return w
}

func burstSize(mant, exp uint32) uint64 {
	return utils.SaturateWidth(uint64(mant)<<exp, meterLevelBits)
}

// refill adds dt ticks worth of tokens and saturates at the burst size.
func refill(level uint32, dt, mant, relexp uint32, burst uint64) uint64 {
	l := uint64(level) + (uint64(dt)*uint64(mant))>>relexp
	if l > burst {
		l = burst
	}

	return l
}

// MeterConfig is the control-plane view of a two-rate three-color meter.
type MeterConfig struct {
	CIR    uint64 `json:"cir"`
	CBurst uint64 `json:"cburst"`
	PIR    uint64 `json:"pir"`
	PBurst uint64 `json:"pburst"`
}

// EncodeRate converts units per second into the mantissa and relative
// exponent added per scaled clock tick.
func EncodeRate(perSecond, clockHz uint64, timeShift uint) (mant, relexp uint32) {
	if perSecond == 0 || clockHz == 0 {
		return 0, 0
	}

	perTick := float64(perSecond) * float64(uint64(1)<<timeShift) / float64(clockHz)
	maxMant := float64(uint32(1)<<meterRateMantBits - 1)

	for e := 1<<meterRateExpBits - 1; e >= 0; e-- {
		m := math.Round(math.Ldexp(perTick, e))
		if m <= maxMant {
			if m == 0 {
				m = 1
			}

			return uint32(m), uint32(e)
		}
	}

	return uint32(maxMant), 0
}

// DecodeRate is the inverse of EncodeRate.
func DecodeRate(mant, relexp uint32, clockHz uint64, timeShift uint) uint64 {
	perTick := math.Ldexp(float64(mant), -int(relexp))
	return uint64(math.Round(perTick * float64(clockHz) / float64(uint64(1)<<timeShift)))
}

// EncodeBurst returns the smallest exponent whose rounded-up mantissa fits.
func EncodeBurst(size uint64) (mant, exp uint32) {
	maxMant := uint64(1)<<meterBurstMantBits - 1

	// Any exponent below this leaves a mantissa of at least 2^mantBits.
	start := utils.Log2Floor(size) - meterBurstMantBits + 1
	if start < 0 {
		start = 0
	}

	for e := uint32(start); e < 1<<meterBurstExpBits; e++ {
		m := (size + (uint64(1) << e) - 1) >> e
		if m <= maxMant {
			return uint32(m), e
		}
	}

	return uint32(maxMant), 1<<meterBurstExpBits - 1
}

// EncodeMeterWord builds a full bucket entry for cfg.
func EncodeMeterWord(cfg MeterConfig, clockHz uint64, timeShift uint) MeterWord {
	var mw MeterWord

	mw.CRateMant, mw.CRateExp = EncodeRate(cfg.CIR, clockHz, timeShift)
	mw.PRateMant, mw.PRateExp = EncodeRate(cfg.PIR, clockHz, timeShift)
	mw.CBurstMant, mw.CBurstExp = EncodeBurst(cfg.CBurst)
	mw.PBurstMant, mw.PBurstExp = EncodeBurst(cfg.PBurst)
	mw.CommittedLevel = uint32(burstSize(mw.CBurstMant, mw.CBurstExp))
	mw.PeakLevel = uint32(burstSize(mw.PBurstMant, mw.PBurstExp))

	return mw
}

// hazardWriter implements the configuration write path shared by the
// meter-class ALUs.
type hazardWriter struct {
	hz hazard
}

// ConfigWrite stores word at index as a control-plane write issued in cycle
// and remembers the word it replaced.
func (h *hazardWriter) ConfigWrite(mem Addressable, index int, word *bitvector.BitVector, cycle uint64) bool {
	prev, ok := mem.Get(index)
	if !ok {
		return false
	}

	h.hz.record(mem, index, cycle, prev)

	return mem.Set(index, word)
}

// fetch returns the word an access at cycle computes from and whether its
// write-back must be dropped.
func (h *hazardWriter) fetch(mem Addressable, index int, cycle uint64) (*bitvector.BitVector, bool, bool) {
	if h.hz.applies(mem, index, cycle) {
		return h.hz.prev.Clone(), true, true
	}

	w, ok := mem.Get(index)

	return w, false, ok
}

func (h *hazardWriter) Reset() {
	h.hz = hazard{}
}

// Meter is a two-rate three-color token bucket ALU.
type Meter struct {
	hazardWriter

	// ByteMode charges PacketLen+ByteAdjust; otherwise one token per packet.
	ByteMode   bool
	ByteAdjust int
	TimeShift  uint
	// ColorMapram receives the resulting color when set.
	ColorMapram *Mapram
}

func NewMeter(conf *SimulatorConfig, byteMode bool) *Meter {
	return &Meter{ByteMode: byteMode, TimeShift: conf.MeterTimeShift}
}

func (m *Meter) Kind() AluKind { return AluMeter }

func (m *Meter) charge(in *AluInput) uint64 {
	if !m.ByteMode {
		return 1
	}

	n := int64(in.PacketLen) + int64(m.ByteAdjust)
	if n < 0 {
		n = 0
	}

	return uint64(n)
}

func (m *Meter) Run(mem Addressable, addr Address, in *AluInput) AluOutput {
	w, replay, ok := m.fetch(mem, addr.Index, in.Cycle)
	if !ok {
		return AluOutput{}
	}

	mw := UnpackMeterWord(w)
	now := uint32(in.Now>>m.TimeShift) & meterTsMask
	dt := (now - mw.Timestamp) & meterTsMask

	cburst := burstSize(mw.CBurstMant, mw.CBurstExp)
	pburst := burstSize(mw.PBurstMant, mw.PBurstExp)
	tc := refill(mw.CommittedLevel, dt, mw.CRateMant, mw.CRateExp, cburst)
	tp := refill(mw.PeakLevel, dt, mw.PRateMant, mw.PRateExp, pburst)
	b := m.charge(in)

	pre := Green
	if addr.Op == MeterOpColorAware {
		pre = in.PreColor
	}

	var color Color

	switch {
	case pre == Red || tp < b:
		color = Red
	case pre == Yellow || tc < b:
		color = Yellow
		tp -= b
	default:
		color = Green
		tp -= b
		tc -= b
	}

	mw.CommittedLevel = uint32(tc)
	mw.PeakLevel = uint32(tp)
	mw.Timestamp = now

	if replay {
		logger.MeterLog.With("index", addr.Index, "cycle", in.Cycle).Debugln("config write not forwarded, replaying")
	} else {
		mem.Set(addr.Index, mw.Pack())
	}

	if m.ColorMapram != nil && m.ColorMapram.HoldsVpn(addr.Vpn) {
		m.ColorMapram.WriteColor(addr, color)
	}

	return AluOutput{Valid: true, Color: color, Data: uint32(color)}
}
