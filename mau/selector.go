// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"github.com/omec-project/mausim/pkg/bitvector"
)

// SelectorMembers is the number of member bits in one selector word.
const SelectorMembers = 120

type SelectorMode uint8

const (
	SelectorFair SelectorMode = iota
	SelectorResilient
)

// Selector picks one live member of an action profile group from the hash.
type Selector struct {
	Mode SelectorMode
}

func NewSelector(mode SelectorMode) *Selector {
	return &Selector{Mode: mode}
}

func (s *Selector) Kind() AluKind { return AluSelector }
func (s *Selector) Reset()        {}

// SelectorWord builds a word with the given members live.
func SelectorWord(members ...int) *bitvector.BitVector {
	w := bitvector.New(SramWidth)
	for _, m := range members {
		if m >= 0 && m < SelectorMembers {
			w.SetBit(m, true)
		}
	}

	return w
}

// Pick returns the member chosen for hash, or -1 for an empty group.
// Fair mode takes the k-th live member with k = hash mod live count.
// Resilient mode starts at hash mod 120 and takes the next live member so
// that removing one member only moves the flows that used it.
func (s *Selector) Pick(w *bitvector.BitVector, hash uint32) int {
	live := bitvector.New(SelectorMembers)
	for i := 0; i < SelectorMembers; i++ {
		live.SetBit(i, w.GetBit(i))
	}

	n := live.PopCount()
	if n == 0 {
		return -1
	}

	if s.Mode == SelectorResilient {
		start := int(hash % SelectorMembers)
		if m := live.FindFirstSet(start); m >= 0 {
			return m
		}

		return live.FindFirstSet(0)
	}

	k := int(hash % uint32(n))
	m := live.FindFirstSet(0)

	for ; k > 0; k-- {
		m = live.FindFirstSet(m + 1)
	}

	return m
}

func (s *Selector) Run(mem Addressable, addr Address, in *AluInput) AluOutput {
	w, ok := mem.Get(addr.Index)
	if !ok {
		return AluOutput{}
	}

	m := s.Pick(w, in.Hash)
	if m < 0 {
		return AluOutput{}
	}

	return AluOutput{Valid: true, Data: uint32(m)}
}
