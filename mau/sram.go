// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"fmt"
	"sync"

	"github.com/omec-project/mausim/logger"
	"github.com/omec-project/mausim/pkg/bitvector"
	"github.com/omec-project/mausim/pkg/utils"
)

type SramRole uint8

const (
	RoleUnused SramRole = iota
	RoleMatch
	RoleAction
	RoleStats
	RoleMeter
	RoleSelector
	RoleStateful
	RoleTind
)

var sramRoleNames = []string{"unused", "match", "action", "stats", "meter", "selector", "stateful", "tind"}

func (r SramRole) String() string {
	if int(r) < len(sramRoleNames) {
		return sramRoleNames[r]
	}

	return fmt.Sprintf("role(%d)", uint8(r))
}

const (
	// Exact match entry: key, valid, next table, pointer.
	matchOverheadBits = 1 + 8 + 16
	// MaxExactKeyWidth leaves room for the valid bit in a 64-bit compare.
	MaxExactKeyWidth = 56
	maxEntriesPerWord = 4
)

// MatchEntriesPerWord returns how many exact-match entries of the given key
// width pack into one SRAM word.
func MatchEntriesPerWord(keyWidth int) int {
	n := SramWidth / (keyWidth + matchOverheadBits)
	if n > maxEntriesPerWord {
		n = maxEntriesPerWord
	}

	return n
}

// MatchEntry is the decoded payload of one exact-match slot.
type MatchEntry struct {
	Key   uint64
	Valid bool
	Next  NextTable
	Ptr   int
}

// Sram is one physical 1024x128 memory unit.
type Sram struct {
	mu       sync.Mutex
	useMutex bool
	relaxVpn bool
	stage    int

	Row  int
	Col  int
	Role SramRole

	VpnMin int
	VpnMax int
	Gress  Gress

	keyWidth int
	mem      *bitvector.Memory
}

func NewSram(conf *SimulatorConfig, stage, row, col int) *Sram {
	return &Sram{
		useMutex: conf.UseMutex,
		relaxVpn: conf.RelaxVpnCheck,
		stage:    stage,
		Row:      row,
		Col:      col,
		mem:      bitvector.NewMemory(SramDepth, SramWidth),
	}
}

// LogicalRow returns the logical row that owns this unit: two per physical
// row, split between the left and right column halves.
func (s *Sram) LogicalRow() int {
	return SramLogicalRow(s.Row, s.Col)
}

func SramLogicalRow(row, col int) int {
	lr := row * 2
	if col >= SramCols/2 {
		lr++
	}

	return lr
}

func (s *Sram) String() string {
	return fmt.Sprintf("sram(%d,%d,%d)", s.stage, s.Row, s.Col)
}

// Configure assigns the role and VPN range. It is a configuration-time
// operation; reconfiguring clears the contents.
func (s *Sram) Configure(role SramRole, vpnMin, vpnMax int, g Gress) {
	if vpnMin > vpnMax || vpnMin < 0 || vpnMax > vpnMask {
		configPanic(s.stage, "%s bad vpn range [%d,%d]", s, vpnMin, vpnMax)
	}

	s.lock()
	defer s.unlock()

	s.Role = role
	s.VpnMin = vpnMin
	s.VpnMax = vpnMax
	s.Gress = g
	s.mem.Reset()
}

// ConfigureMatch sets up the unit as an exact-match way of keyWidth bits.
func (s *Sram) ConfigureMatch(keyWidth, vpn int, g Gress) {
	if keyWidth <= 0 || keyWidth > MaxExactKeyWidth {
		configPanic(s.stage, "%s key width %d not supported", s, keyWidth)
	}

	s.Configure(RoleMatch, vpn, vpn+(MatchEntriesPerWord(keyWidth)-1)/MatchEntriesPerVpn, g)
	s.keyWidth = keyWidth
}

func (s *Sram) lock() {
	if s.useMutex {
		s.mu.Lock()
	}
}

func (s *Sram) unlock() {
	if s.useMutex {
		s.mu.Unlock()
	}
}

func (s *Sram) Depth() int { return s.mem.Depth() }

func (s *Sram) Get(index int) (*bitvector.BitVector, bool) {
	s.lock()
	defer s.unlock()

	return s.mem.Get(index)
}

func (s *Sram) Set(index int, w *bitvector.BitVector) bool {
	s.lock()
	defer s.unlock()

	return s.mem.Set(index, w)
}

func (s *Sram) SetMasked(index int, w, mask *bitvector.BitVector) bool {
	s.lock()
	defer s.unlock()

	return s.mem.SetMasked(index, w, mask)
}

func (s *Sram) Reset() {
	s.lock()
	defer s.unlock()

	s.mem.Reset()
}

// HoldsVpn reports whether vpn is within the configured range.
func (s *Sram) HoldsVpn(vpn int) bool {
	return vpn >= s.VpnMin && vpn <= s.VpnMax
}

// CheckVpn validates a packet-time address against the unit. A mismatch is a
// configuration error unless relaxed, in which case the access misses.
func (s *Sram) CheckVpn(a Address) bool {
	if s.HoldsVpn(a.Vpn) {
		return true
	}

	if !s.relaxVpn {
		configPanic(s.stage, "%s %s vpn outside [%d,%d]", s, a, s.VpnMin, s.VpnMax)
	}

	logger.MauLog.With("sram", s.String(), "addr", a.String()).Warnln("vpn check relaxed, treating as miss")

	return false
}

func (s *Sram) requireRole(r SramRole) {
	if s.Role != r {
		configPanic(s.stage, "%s has role %s, want %s", s, s.Role, r)
	}
}

// EntriesPerWord returns the packing of the configured match format.
func (s *Sram) EntriesPerWord() int {
	s.requireRole(RoleMatch)
	return MatchEntriesPerWord(s.keyWidth)
}

func (s *Sram) slotOffset(slot int) int {
	return slot * (s.keyWidth + matchOverheadBits)
}

// WriteMatchEntry stores an exact-match entry in slot of word index.
func (s *Sram) WriteMatchEntry(index, slot int, e MatchEntry) bool {
	s.requireRole(RoleMatch)

	if slot < 0 || slot >= s.EntriesPerWord() {
		return false
	}

	s.lock()
	defer s.unlock()

	off := s.slotOffset(slot)
	valid := uint64(0)

	if e.Valid {
		valid = 1
	}

	return s.mem.SetField(index, off, s.keyWidth, e.Key) &&
		s.mem.SetField(index, off+s.keyWidth, 1, valid) &&
		s.mem.SetField(index, off+s.keyWidth+1, 8, uint64(e.Next)) &&
		s.mem.SetField(index, off+s.keyWidth+9, 16, uint64(e.Ptr))
}

// ReadMatchEntry decodes slot of word index.
func (s *Sram) ReadMatchEntry(index, slot int) (MatchEntry, bool) {
	s.requireRole(RoleMatch)

	w, ok := s.Get(index)
	if !ok || slot < 0 || slot >= s.EntriesPerWord() {
		return MatchEntry{}, false
	}

	return s.decodeSlot(w, slot), true
}

func (s *Sram) decodeSlot(w *bitvector.BitVector, slot int) MatchEntry {
	off := s.slotOffset(slot)

	return MatchEntry{
		Key:   w.GetWord(off, s.keyWidth),
		Valid: w.GetWord(off+s.keyWidth, 1) == 1,
		Next:  NextTable(w.GetWord(off+s.keyWidth+1, 8)),
		Ptr:   int(w.GetWord(off+s.keyWidth+9, 16)),
	}
}

// Lookup compares key against every slot of word index and returns the
// matching slot, or -1. The stored key and valid bit form word0/word1 under
// the key mask; the search side always asserts valid.
func (s *Sram) Lookup(index int, key, mask uint64) int {
	s.requireRole(RoleMatch)

	w, ok := s.Get(index)
	if !ok {
		return -1
	}

	validBit := uint64(1) << uint(s.keyWidth)
	keyMask := utils.Mask64(uint(s.keyWidth))
	full := keyMask | validBit
	s1 := (key & keyMask) | validBit
	s0 := ^s1 & full

	for slot := 0; slot < s.EntriesPerWord(); slot++ {
		off := s.slotOffset(slot)
		stored := w.GetWord(off, s.keyWidth+1)
		w0, w1 := TcamEncode(stored, (mask&keyMask)|validBit)

		if TcamCompare(w0, w1, s0, s1)&full == 0 {
			return slot
		}
	}

	return -1
}

// MakeMatchAddress builds the match address of entry slot in word index.
func (s *Sram) MakeMatchAddress(index, entry int) Address {
	return Address{
		Type:    AddrMatch,
		Vpn:     s.VpnMin + entry/MatchEntriesPerVpn,
		Index:   index,
		Subword: entry % MatchEntriesPerVpn,
	}
}

// ResolveMatchAddress maps a match address back onto (index, entry).
func (s *Sram) ResolveMatchAddress(a Address) (index, entry int, ok bool) {
	if !s.CheckVpn(a) {
		return 0, 0, false
	}

	return a.Index, (a.Vpn-s.VpnMin)*MatchEntriesPerVpn + a.Subword, true
}
