// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"fmt"
	"sync"

	"github.com/omec-project/mausim/pkg/bitvector"
)

type MapramRole uint8

const (
	MapramUnused MapramRole = iota
	MapramColor
	MapramIdle
)

const colorBits = 2

// idleEntriesPerWord maps idletime counter width to entries per 11-bit word.
var idleEntriesPerWord = map[int]int{1: 8, 2: 4, 3: 3, 6: 1}

// Mapram is the 1024x11 memory beside each SRAM. Color maprams hold meter
// colors, idletime maprams hold per-entry activity counters.
type Mapram struct {
	// mu is always taken: the sweep goroutine ages idletime words while
	// the packet path clears them.
	mu    sync.Mutex
	stage int

	Row  int
	Col  int
	Role MapramRole

	VpnMin int
	VpnMax int

	// IdleWidth is the counter width in bits for idletime maprams.
	IdleWidth int

	mem *bitvector.Memory
}

func NewMapram(conf *SimulatorConfig, stage, row, col int) *Mapram {
	return &Mapram{
		stage: stage,
		Row:   row,
		Col:   col,
		mem:   bitvector.NewMemory(SramDepth, MapramWidth),
	}
}

func (m *Mapram) String() string {
	return fmt.Sprintf("mapram(%d,%d,%d)", m.stage, m.Row, m.Col)
}

func (m *Mapram) ConfigureColor(vpnMin, vpnMax int) {
	m.Lock()
	defer m.Unlock()

	m.Role = MapramColor
	m.VpnMin, m.VpnMax = vpnMin, vpnMax
	m.mem.Reset()
}

func (m *Mapram) ConfigureIdle(width, vpnMin, vpnMax int) {
	if _, ok := idleEntriesPerWord[width]; !ok {
		configPanic(m.stage, "%s idletime width %d not supported", m, width)
	}

	m.Lock()
	defer m.Unlock()

	m.Role = MapramIdle
	m.IdleWidth = width
	m.VpnMin, m.VpnMax = vpnMin, vpnMax
	m.mem.Reset()
}

// Lock takes the unit mutex. The sweeper holds it across a whole word scan.
func (m *Mapram) Lock() { m.mu.Lock() }

func (m *Mapram) Unlock() { m.mu.Unlock() }

func (m *Mapram) Depth() int { return m.mem.Depth() }

func (m *Mapram) Get(index int) (*bitvector.BitVector, bool) {
	m.Lock()
	defer m.Unlock()

	return m.mem.Get(index)
}

func (m *Mapram) Set(index int, w *bitvector.BitVector) bool {
	m.Lock()
	defer m.Unlock()

	return m.mem.Set(index, w)
}

func (m *Mapram) Reset() {
	m.Lock()
	defer m.Unlock()

	m.mem.Reset()
}

func (m *Mapram) HoldsVpn(vpn int) bool {
	return vpn >= m.VpnMin && vpn <= m.VpnMax
}

func (m *Mapram) requireRole(r MapramRole) {
	if m.Role != r {
		configPanic(m.stage, "%s has role %d, want %d", m, m.Role, r)
	}
}

// ReadColor returns the color stored for a meter address. Four colors share
// one word.
func (m *Mapram) ReadColor(a Address) Color {
	m.requireRole(MapramColor)
	m.Lock()
	defer m.Unlock()

	v, _ := m.mem.GetField(a.Index, (a.Subword%4)*colorBits, colorBits)

	return Color(v)
}

func (m *Mapram) WriteColor(a Address, c Color) bool {
	m.requireRole(MapramColor)
	m.Lock()
	defer m.Unlock()

	return m.mem.SetField(a.Index, (a.Subword%4)*colorBits, colorBits, uint64(c))
}

// IdleEntriesPerWord returns the packing of idletime counters.
func (m *Mapram) IdleEntriesPerWord() int {
	m.requireRole(MapramIdle)
	return idleEntriesPerWord[m.IdleWidth]
}

func (m *Mapram) idleMax() uint64 {
	return uint64(1)<<uint(m.IdleWidth) - 1
}

// IdleHit marks an entry active by clearing its counter.
func (m *Mapram) IdleHit(a Address) bool {
	m.requireRole(MapramIdle)

	per := m.IdleEntriesPerWord()
	m.Lock()
	defer m.Unlock()

	return m.mem.SetField(a.Index, (a.Subword%per)*m.IdleWidth, m.IdleWidth, 0)
}

// IdleValue returns the counter of one entry.
func (m *Mapram) IdleValue(a Address) uint64 {
	m.requireRole(MapramIdle)

	per := m.IdleEntriesPerWord()
	m.Lock()
	defer m.Unlock()

	v, _ := m.mem.GetField(a.Index, (a.Subword%per)*m.IdleWidth, m.IdleWidth)

	return v
}

// AgeWord increments every counter of word index, saturating at the counter
// maximum, and returns the subwords that reached it on this pass.
func (m *Mapram) AgeWord(index int) []int {
	m.requireRole(MapramIdle)

	per := m.IdleEntriesPerWord()
	limit := m.idleMax()

	m.Lock()
	defer m.Unlock()

	var expired []int

	for sub := 0; sub < per; sub++ {
		off := sub * m.IdleWidth

		v, ok := m.mem.GetField(index, off, m.IdleWidth)
		if !ok || v == limit {
			continue
		}

		v++
		m.mem.SetField(index, off, m.IdleWidth, v)

		if v == limit {
			expired = append(expired, sub)
		}
	}

	return expired
}
