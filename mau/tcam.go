// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"github.com/omec-project/mausim/pkg/bitvector"
	"github.com/omec-project/mausim/pkg/utils"
)

// TcamCompare returns the per-bit mismatch vector of a ternary cell. word1
// set admits a 1 in the search key, word0 set admits a 0; a cell with both
// clear never matches. The entry matches when the result is zero.
func TcamCompare(w0, w1, s0, s1 uint64) uint64 {
	return (^w0 & s0) | (^w1 & s1)
}

// TcamCompareVector is TcamCompare over arbitrary width vectors.
func TcamCompareVector(w0, w1, s0, s1 *bitvector.BitVector) *bitvector.BitVector {
	return w0.Not().And(s0).Or(w1.Not().And(s1))
}

// TcamEncode converts value/mask form into word0/word1 form. Bits outside the
// mask admit both 0 and 1.
func TcamEncode(value, mask uint64) (w0, w1 uint64) {
	return ^value | ^mask, value | ^mask
}

// Tcam is one ternary memory unit of up to 64 bits per entry.
type Tcam struct {
	width      int
	word0      []uint64
	word1      []uint64
	lowestWins bool
}

func NewTcam(depth, width int, priority string) *Tcam {
	if width <= 0 || width > 64 {
		configPanic(-1, "tcam width %d not supported", width)
	}

	return &Tcam{
		width:      width,
		word0:      make([]uint64, depth),
		word1:      make([]uint64, depth),
		lowestWins: priority == TcamPriorityLowest,
	}
}

func (t *Tcam) Depth() int { return len(t.word0) }
func (t *Tcam) Width() int { return t.width }

func (t *Tcam) mask() uint64 { return utils.Mask64(uint(t.width)) }

// SetPriorityMode switches between highest-index-wins (the default) and
// lowest-index-wins.
func (t *Tcam) SetPriorityMode(priority string) {
	t.lowestWins = priority == TcamPriorityLowest
}

func (t *Tcam) SetWords(index int, w0, w1 uint64) bool {
	if index < 0 || index >= len(t.word0) {
		return false
	}

	t.word0[index] = w0 & t.mask()
	t.word1[index] = w1 & t.mask()

	return true
}

func (t *Tcam) SetValueMask(index int, value, mask uint64) bool {
	w0, w1 := TcamEncode(value&t.mask(), mask&t.mask())
	return t.SetWords(index, w0, w1)
}

// Clear invalidates an entry: both words zero never match.
func (t *Tcam) Clear(index int) bool {
	return t.SetWords(index, 0, 0)
}

func (t *Tcam) Words(index int) (w0, w1 uint64, ok bool) {
	if index < 0 || index >= len(t.word0) {
		return 0, 0, false
	}

	return t.word0[index], t.word1[index], true
}

func (t *Tcam) matches(index int, s0, s1 uint64) bool {
	return TcamCompare(t.word0[index], t.word1[index], s0, s1)&t.mask() == 0
}

// Lookup returns the winning matching index, or -1.
func (t *Tcam) Lookup(key uint64) int {
	s1 := key & t.mask()
	s0 := ^key & t.mask()

	if t.lowestWins {
		for i := 0; i < len(t.word0); i++ {
			if t.matches(i, s0, s1) {
				return i
			}
		}

		return -1
	}

	for i := len(t.word0) - 1; i >= 0; i-- {
		if t.matches(i, s0, s1) {
			return i
		}
	}

	return -1
}

func (t *Tcam) Reset() {
	for i := range t.word0 {
		t.word0[i], t.word1[i] = 0, 0
	}
}

// LogicalTcam chains TCAM units into one ternary table. In highest-wins mode
// a later unit beats an earlier one; lowest-wins reverses both orders.
type LogicalTcam struct {
	units      []*Tcam
	lowestWins bool
}

func NewLogicalTcam(units []*Tcam, priority string) *LogicalTcam {
	return &LogicalTcam{units: units, lowestWins: priority == TcamPriorityLowest}
}

// Lookup returns the entry number (unit ordinal * depth + index) of the
// winning entry, or -1.
func (lt *LogicalTcam) Lookup(key uint64) int {
	n := len(lt.units)
	for k := 0; k < n; k++ {
		u := n - 1 - k
		if lt.lowestWins {
			u = k
		}

		if idx := lt.units[u].Lookup(key); idx >= 0 {
			return u*TcamDepth + idx
		}
	}

	return -1
}

func (lt *LogicalTcam) unit(entry int) (*Tcam, int, bool) {
	u := entry / TcamDepth
	if entry < 0 || u >= len(lt.units) {
		return nil, 0, false
	}

	return lt.units[u], entry % TcamDepth, true
}

func (lt *LogicalTcam) SetValueMask(entry int, value, mask uint64) bool {
	t, idx, ok := lt.unit(entry)
	if !ok {
		return false
	}

	return t.SetValueMask(idx, value, mask)
}

func (lt *LogicalTcam) Clear(entry int) bool {
	t, idx, ok := lt.unit(entry)
	if !ok {
		return false
	}

	return t.Clear(idx)
}

func (lt *LogicalTcam) Capacity() int { return len(lt.units) * TcamDepth }

func (lt *LogicalTcam) SetPriorityMode(priority string) {
	lt.lowestWins = priority == TcamPriorityLowest
	for _, u := range lt.units {
		u.SetPriorityMode(priority)
	}
}
