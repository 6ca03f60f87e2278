// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package bitvector

// Memory is an array of equally wide entries. Accesses outside the array are
// dropped: reads report false and writes change nothing.
type Memory struct {
	width   int
	entries []*BitVector
}

func NewMemory(depth, width int) *Memory {
	m := &Memory{
		width:   width,
		entries: make([]*BitVector, depth),
	}

	for i := range m.entries {
		m.entries[i] = New(width)
	}

	return m
}

func (m *Memory) Depth() int { return len(m.entries) }
func (m *Memory) Width() int { return m.width }

func (m *Memory) inRange(i int) bool {
	return i >= 0 && i < len(m.entries)
}

// Get returns a copy of entry i.
func (m *Memory) Get(i int) (*BitVector, bool) {
	if !m.inRange(i) {
		return nil, false
	}

	return m.entries[i].Clone(), true
}

// GetInto copies entry i into dst without allocating.
func (m *Memory) GetInto(i int, dst *BitVector) bool {
	if !m.inRange(i) {
		return false
	}

	dst.CopyFrom(m.entries[i])

	return true
}

func (m *Memory) Set(i int, v *BitVector) bool {
	if !m.inRange(i) {
		return false
	}

	m.entries[i].CopyFrom(v)

	return true
}

func (m *Memory) SetMasked(i int, v, mask *BitVector) bool {
	if !m.inRange(i) {
		return false
	}

	m.entries[i].SetMasked(v, mask)

	return true
}

// GetField reads a sub-field of entry i.
func (m *Memory) GetField(i, offset, width int) (uint64, bool) {
	if !m.inRange(i) {
		return 0, false
	}

	return m.entries[i].GetWord(offset, width), true
}

// SetField writes a sub-field of entry i.
func (m *Memory) SetField(i, offset, width int, v uint64) bool {
	if !m.inRange(i) {
		return false
	}

	m.entries[i].SetWord(offset, width, v)

	return true
}

func (m *Memory) Reset() {
	for _, e := range m.entries {
		e.Fill(false)
	}
}
