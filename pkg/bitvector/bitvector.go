// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

// Package bitvector provides fixed-width bit storage used by every simulated
// memory unit. Bit 0 is the least significant bit of word 0.
package bitvector

import (
	"fmt"
	"math/bits"
	"strings"
)

type BitVector struct {
	width int
	words []uint64
}

// New returns a zeroed vector of the given width in bits.
func New(width int) *BitVector {
	if width <= 0 {
		panic(fmt.Errorf("bitvector: invalid width %d", width))
	}

	return &BitVector{
		width: width,
		words: make([]uint64, (width+63)/64),
	}
}

// FromUint64s builds a vector from little-endian 64-bit words. Bits above
// width are dropped.
func FromUint64s(width int, words ...uint64) *BitVector {
	bv := New(width)
	copy(bv.words, words)
	bv.trim()

	return bv
}

func (bv *BitVector) Width() int { return bv.width }

func (bv *BitVector) trim() {
	if r := bv.width % 64; r != 0 {
		bv.words[len(bv.words)-1] &= (uint64(1) << uint(r)) - 1
	}
}

func (bv *BitVector) GetBit(i int) bool {
	if i < 0 || i >= bv.width {
		return false
	}

	return bv.words[i/64]&(uint64(1)<<uint(i%64)) != 0
}

func (bv *BitVector) SetBit(i int, v bool) {
	if i < 0 || i >= bv.width {
		return
	}

	m := uint64(1) << uint(i%64)
	if v {
		bv.words[i/64] |= m
	} else {
		bv.words[i/64] &^= m
	}
}

// GetWord returns width bits starting at offset. The field may span two
// underlying words; bits past the end of the vector read as zero.
func (bv *BitVector) GetWord(offset, width int) uint64 {
	if width <= 0 || offset < 0 || offset >= bv.width {
		return 0
	}

	if width > 64 {
		panic(fmt.Errorf("bitvector: field width %d more than 64 bits", width))
	}

	w0, b0 := offset/64, uint(offset%64)
	r := bv.words[w0] >> b0

	if b0 != 0 && w0+1 < len(bv.words) {
		r |= bv.words[w0+1] << (64 - b0)
	}

	if width < 64 {
		r &= (uint64(1) << uint(width)) - 1
	}

	return r
}

// SetWord stores the low width bits of v at offset.
func (bv *BitVector) SetWord(offset, width int, v uint64) {
	if width <= 0 || offset < 0 || offset >= bv.width {
		return
	}

	if width > 64 {
		panic(fmt.Errorf("bitvector: field width %d more than 64 bits", width))
	}

	var m uint64 = ^uint64(0)
	if width < 64 {
		m = (uint64(1) << uint(width)) - 1
	}

	v &= m
	w0, b0 := offset/64, uint(offset%64)
	bv.words[w0] = bv.words[w0]&^(m<<b0) | v<<b0

	if b0 != 0 && w0+1 < len(bv.words) && int(b0)+width > 64 {
		sh := 64 - b0
		bv.words[w0+1] = bv.words[w0+1]&^(m>>sh) | v>>sh
	}

	bv.trim()
}

// SetMasked copies the bits of src selected by mask.
func (bv *BitVector) SetMasked(src, mask *BitVector) {
	for i := range bv.words {
		var s, m uint64
		if i < len(src.words) {
			s = src.words[i]
		}

		if i < len(mask.words) {
			m = mask.words[i]
		}

		bv.words[i] = bv.words[i]&^m | s&m
	}

	bv.trim()
}

func (bv *BitVector) CopyFrom(src *BitVector) {
	for i := range bv.words {
		if i < len(src.words) {
			bv.words[i] = src.words[i]
		} else {
			bv.words[i] = 0
		}
	}

	bv.trim()
}

func (bv *BitVector) Clone() *BitVector {
	c := New(bv.width)
	copy(c.words, bv.words)

	return c
}

func (bv *BitVector) Fill(v bool) {
	var w uint64
	if v {
		w = ^uint64(0)
	}

	for i := range bv.words {
		bv.words[i] = w
	}

	bv.trim()
}

func (bv *BitVector) And(o *BitVector) *BitVector {
	r := bv.Clone()
	for i := range r.words {
		if i < len(o.words) {
			r.words[i] &= o.words[i]
		} else {
			r.words[i] = 0
		}
	}

	return r
}

func (bv *BitVector) Or(o *BitVector) *BitVector {
	r := bv.Clone()
	for i := range r.words {
		if i < len(o.words) {
			r.words[i] |= o.words[i]
		}
	}

	r.trim()

	return r
}

func (bv *BitVector) Xor(o *BitVector) *BitVector {
	r := bv.Clone()
	for i := range r.words {
		if i < len(o.words) {
			r.words[i] ^= o.words[i]
		}
	}

	r.trim()

	return r
}

func (bv *BitVector) Not() *BitVector {
	r := bv.Clone()
	for i := range r.words {
		r.words[i] = ^r.words[i]
	}

	r.trim()

	return r
}

func (bv *BitVector) Equal(o *BitVector) bool {
	if o == nil || bv.width != o.width {
		return false
	}

	for i := range bv.words {
		if bv.words[i] != o.words[i] {
			return false
		}
	}

	return true
}

func (bv *BitVector) IsZero() bool {
	for _, w := range bv.words {
		if w != 0 {
			return false
		}
	}

	return true
}

func (bv *BitVector) PopCount() int {
	n := 0
	for _, w := range bv.words {
		n += bits.OnesCount64(w)
	}

	return n
}

// FindFirstSet returns the index of the first set bit at or above from, or -1.
func (bv *BitVector) FindFirstSet(from int) int {
	if from < 0 {
		from = 0
	}

	for i := from / 64; i < len(bv.words); i++ {
		w := bv.words[i]
		if i == from/64 {
			w &^= (uint64(1) << uint(from%64)) - 1
		}

		if w != 0 {
			return i*64 + bits.TrailingZeros64(w)
		}
	}

	return -1
}

// Uint64s returns a copy of the underlying words.
func (bv *BitVector) Uint64s() []uint64 {
	r := make([]uint64, len(bv.words))
	copy(r, bv.words)

	return r
}

// String formats the vector as most-significant-word-first hex.
func (bv *BitVector) String() string {
	sb := strings.Builder{}
	for i := len(bv.words) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%016x", bv.words[i])
		if i > 0 {
			sb.WriteString(".")
		}
	}

	return sb.String()
}
