// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"github.com/omec-project/mausim/logger"
	"github.com/omec-project/mausim/pkg/bitvector"
	"github.com/omec-project/mausim/pkg/utils"
)

// LPF word layout, low bit first.
const (
	lpfVoldOff        = 0
	lpfTsOff          = 32
	lpfTcMantOff      = 60
	lpfRiseExpOff     = 69
	lpfDecayExpOff    = 74
	lpfOutScaleOff    = 79
	lpfRedLevel100Off = 84
	lpfRedLevel0Off   = 92
	lpfRedLevelExpOff = 100
	lpfRedProbOff     = 105
	lpfRateEnableOff  = 108

	lpfTsBits = 28
	lpfTsMask = 1<<lpfTsBits - 1

	// Decay below 2^-32 leaves nothing of the old value.
	lpfSnapShiftBytes = 4
)

// LpfWord is the unpacked form of a low-pass filter / RED entry.
type LpfWord struct {
	Vold        uint32
	Timestamp   uint32
	TcMant      uint32
	RiseExp     uint32
	DecayExp    uint32
	OutScaleExp uint32
	RedLevel100 uint32
	RedLevel0   uint32
	RedLevelExp uint32
	RedProbExp  uint32
	RateEnable  bool
}

func UnpackLpfWord(w *bitvector.BitVector) LpfWord {
	get := func(off, width int) uint32 { return uint32(w.GetWord(off, width)) }

	return LpfWord{
		Vold:        get(lpfVoldOff, 32),
		Timestamp:   get(lpfTsOff, lpfTsBits),
		TcMant:      get(lpfTcMantOff, 9),
		RiseExp:     get(lpfRiseExpOff, 5),
		DecayExp:    get(lpfDecayExpOff, 5),
		OutScaleExp: get(lpfOutScaleOff, 5),
		RedLevel100: get(lpfRedLevel100Off, 8),
		RedLevel0:   get(lpfRedLevel0Off, 8),
		RedLevelExp: get(lpfRedLevelExpOff, 5),
		RedProbExp:  get(lpfRedProbOff, 3),
		RateEnable:  get(lpfRateEnableOff, 1) == 1,
	}
}

func (lw LpfWord) Pack() *bitvector.BitVector {
	w := bitvector.New(SramWidth)
	set := func(off, width int, v uint32) { w.SetWord(off, width, uint64(v)) }

	set(lpfVoldOff, 32, lw.Vold)
	set(lpfTsOff, lpfTsBits, lw.Timestamp)
	set(lpfTcMantOff, 9, lw.TcMant)
	set(lpfRiseExpOff, 5, lw.RiseExp)
	set(lpfDecayExpOff, 5, lw.DecayExp)
	set(lpfOutScaleOff, 5, lw.OutScaleExp)
	set(lpfRedLevel100Off, 8, lw.RedLevel100)
	set(lpfRedLevel0Off, 8, lw.RedLevel0)
	set(lpfRedLevelExpOff, 5, lw.RedLevelExp)
	set(lpfRedProbOff, 3, lw.RedProbExp)

	if lw.RateEnable {
		set(lpfRateEnableOff, 1, 1)
	}

	return w
}

// RedLevels returns the scaled RED thresholds.
func (lw LpfWord) RedLevels() (level0, level100 uint64) {
	return uint64(lw.RedLevel0) << lw.RedLevelExp, uint64(lw.RedLevel100) << lw.RedLevelExp
}

// RedLevelMax returns the largest threshold the level fields can express at
// the word's scale.
func (lw LpfWord) RedLevelMax() uint64 {
	return uint64(0xff) << lw.RedLevelExp
}

// fracShift holds the two right shifts approximating 2^-0.25, 2^-0.5 and
// 2^-0.75 as 1 - 2^-SR1 - 2^-SR2.
var fracShift = [4][2]uint{{0, 0}, {3, 5}, {2, 5}, {2, 3}}

// decayShifts splits x = dt/tc, in quarters, into the coarse byte shift SL,
// the fine bit shift and the quarter fraction.
func decayShifts(dt, tc uint64) (sl, fine, frac uint) {
	if tc == 0 {
		return lpfSnapShiftBytes, 0, 0
	}

	q := dt * 4 / tc
	n := q >> 2

	if n >= lpfSnapShiftBytes*8 {
		return lpfSnapShiftBytes, 0, 0
	}

	return uint(n >> 3), uint(n & 7), uint(q & 3)
}

// Decay multiplies v by 2^-x using only shifts.
func Decay(v uint64, sl, fine, frac uint) uint64 {
	if sl >= lpfSnapShiftBytes {
		return 0
	}

	v >>= sl*8 + fine

	if frac != 0 {
		sr := fracShift[frac]
		v = v - v>>sr[0] - v>>sr[1]
	}

	return v
}

// LpfMeter is the low-pass filter ALU, optionally followed by RED.
type LpfMeter struct {
	hazardWriter

	TimeShift uint
	// Red selects drop/no-drop outputs instead of the filtered value.
	Red         bool
	DropValue   uint32
	NoDropValue uint32

	relaxRed bool
	lfsr     *Lfsr

	snap struct {
		valid bool
		mem   Addressable
		index int
		cycle uint64
		word  *bitvector.BitVector
	}
}

func NewLpfMeter(conf *SimulatorConfig, red bool) *LpfMeter {
	return &LpfMeter{
		TimeShift: conf.MeterTimeShift,
		Red:       red,
		relaxRed:  conf.RelaxRedCheck,
		lfsr:      NewLfsr(conf.LfsrSeed),
	}
}

func (m *LpfMeter) Kind() AluKind { return AluLpf }

func (m *LpfMeter) Reset() {
	m.hazardWriter.Reset()
	m.snap.valid = false
}

// Filter computes the new filtered value and timestamp for an input sample.
// snapped reports that the old value had fully decayed.
func (m *LpfMeter) Filter(lw LpfWord, vin uint32, now uint64) (vnew uint32, ts uint32, snapped bool) {
	ts = uint32(now>>m.TimeShift) & lpfTsMask
	dt := uint64((ts - lw.Timestamp) & lpfTsMask)

	exp := lw.DecayExp
	if !lw.RateEnable && vin > lw.Vold {
		exp = lw.RiseExp
	}

	sl, fine, frac := decayShifts(dt, uint64(lw.TcMant)<<exp)
	if sl >= lpfSnapShiftBytes {
		return vin, ts, true
	}

	// 33-bit signed intermediate.
	var v int64

	if lw.RateEnable {
		v = int64(vin) + int64(Decay(uint64(lw.Vold), sl, fine, frac))
	} else {
		diff := int64(lw.Vold) - int64(vin)
		if diff >= 0 {
			v = int64(vin) + int64(Decay(uint64(diff), sl, fine, frac))
		} else {
			v = int64(vin) - int64(Decay(uint64(-diff), sl, fine, frac))
		}
	}

	return utils.SaturateUint32(v), ts, false
}

// RedActionData makes the RED decision for vnew against the thresholds of
// lw and returns the drop flag and the matching action data.
func (m *LpfMeter) RedActionData(vnew uint32, lw LpfWord) (bool, uint32) {
	l0, l100 := lw.RedLevels()
	v := uint64(vnew)

	var drop bool

	switch {
	case v >= l100:
		drop = true
	case v < l0:
		drop = false
	default:
		prob := ((v - l0) << 8) / (l100 - l0)
		prob >>= lw.RedProbExp
		drop = uint64(m.lfsr.Next()&0xff) < prob
	}

	if drop && v < l0 {
		m.redViolation("drop below level0", vnew, l0, l100)
	}

	if !drop && v > l100 {
		m.redViolation("no drop above level100", vnew, l0, l100)
	}

	if !drop && v > lw.RedLevelMax() {
		m.redViolation("no drop above the maximum level", vnew, l0, l100)
	}

	if drop {
		return true, m.DropValue
	}

	return false, m.NoDropValue
}

func (m *LpfMeter) redViolation(what string, vnew uint32, l0, l100 uint64) {
	if !m.relaxRed {
		configPanic(-1, "red %s: vnew=%d level0=%d level100=%d", what, vnew, l0, l100)
	}

	logger.MeterLog.With("vnew", vnew, "level0", l0, "level100", l100).Warnln("red", what)
}

func (m *LpfMeter) fetch(mem Addressable, index int, cycle uint64) (*bitvector.BitVector, bool, bool) {
	w, replay, ok := m.hazardWriter.fetch(mem, index, cycle)
	if replay || !ok {
		return w, replay, ok
	}

	s := &m.snap
	if s.valid && cycle > s.cycle+1 {
		s.valid = false
	}

	if s.valid && cycle == s.cycle+1 && s.mem == mem && s.index == index {
		logger.MeterLog.With("index", index, "cycle", cycle).Debugln("forwarding snapped lpf word")
		return s.word.Clone(), false, true
	}

	return w, false, true
}

func (m *LpfMeter) Run(mem Addressable, addr Address, in *AluInput) AluOutput {
	w, replay, ok := m.fetch(mem, addr.Index, in.Cycle)
	if !ok {
		return AluOutput{}
	}

	lw := UnpackLpfWord(w)

	vin := in.Operand
	if lw.RateEnable {
		vin = in.PacketLen
	}

	vnew, ts, snapped := m.Filter(lw, vin, in.Now)
	lw.Vold = vnew
	lw.Timestamp = ts
	nw := lw.Pack()

	if snapped {
		m.snap.valid = true
		m.snap.mem = mem
		m.snap.index = addr.Index
		m.snap.cycle = in.Cycle
		m.snap.word = nw.Clone()
	}

	if !replay {
		mem.Set(addr.Index, nw)
	}

	out := AluOutput{Valid: true, Data: vnew >> lw.OutScaleExp}

	if m.Red {
		out.Drop, out.Data = m.RedActionData(vnew, lw)
	}

	return out
}
