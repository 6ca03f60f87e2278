// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

// Ternary payload in the tind SRAM: valid, next table, pointer.
const (
	tindEntryBits   = 32
	tindPerWord     = SramWidth / tindEntryBits
	tindMaxTcams    = SramDepth * tindPerWord / TcamDepth
	tindValidOff    = 0
	tindNextOff     = 1
	tindPtrOff      = 9
	tindPtrBits     = 16
	exactHashMixer1 = 0xbf58476d1ce4e5b9
	exactHashMixer2 = 0x94d049bb133111eb
	exactHashSeed   = 0x9e3779b97f4a7c15
)

// MatchResult is the outcome of one logical table lookup.
type MatchResult struct {
	Hit   bool
	Entry int
	Next  NextTable
	Ptr   int
}

// LogicalTable is one match table of a stage, wired onto the stage's memory
// by index.
type LogicalTable struct {
	Spec TableSpec

	stage    int
	keyWidth int
	keyMask  uint64
	ways     []int
	tcam     *LogicalTcam
	tind     int
	homeRow  int
	missNext NextTable
}

// wayHash spreads a key over the rows of one hash way.
func wayHash(key uint64, way int) int {
	x := key ^ uint64(way+1)*exactHashSeed
	x ^= x >> 30
	x *= exactHashMixer1
	x ^= x >> 27
	x *= exactHashMixer2
	x ^= x >> 31

	return int(x % SramDepth)
}

// Key builds the lookup key from the match PHV.
func (t *LogicalTable) Key(phv *Phv) uint64 {
	var key uint64

	for _, k := range t.Spec.Key {
		key = key<<uint(k.width()) | uint64(phv.Get(k.Container)&k.mask())
	}

	return key
}

func (t *LogicalTable) keyFieldMask() uint64 {
	var m uint64

	for _, k := range t.Spec.Key {
		m = m<<uint(k.width()) | uint64(k.mask())
	}

	return m
}

func (t *LogicalTable) ID() int             { return t.Spec.ID }
func (t *LogicalTable) Name() string        { return t.Spec.Name }
func (t *LogicalTable) Gress() Gress        { return t.Spec.Gress }
func (t *LogicalTable) HomeRow() int        { return t.homeRow }
func (t *LogicalTable) MissNext() NextTable { return t.missNext }

func (t *LogicalTable) wayEntries(srams []*Sram) int {
	return SramDepth * srams[t.ways[0]].EntriesPerWord()
}

// Capacity returns the number of entries the table can hold.
func (t *LogicalTable) Capacity(srams []*Sram) int {
	if t.Spec.Kind == MatchTernary {
		return t.tcam.Capacity()
	}

	return len(t.ways) * t.wayEntries(srams)
}

// exactLocation splits an exact entry number into way, word and slot.
func (t *LogicalTable) exactLocation(srams []*Sram, entry int) (sram *Sram, index, slot int, ok bool) {
	if entry < 0 || entry >= t.Capacity(srams) {
		return nil, 0, 0, false
	}

	per := t.wayEntries(srams)
	epw := srams[t.ways[0]].EntriesPerWord()
	rem := entry % per

	return srams[t.ways[entry/per]], rem / epw, rem % epw, true
}

// Lookup matches key against the table.
func (t *LogicalTable) Lookup(srams []*Sram, key uint64) MatchResult {
	if t.Spec.Kind == MatchTernary {
		return t.lookupTernary(srams, key)
	}

	per := t.wayEntries(srams)

	for w, si := range t.ways {
		s := srams[si]
		idx := wayHash(key, w)

		slot := s.Lookup(idx, key, t.keyMask)
		if slot < 0 {
			continue
		}

		// The match address round-trips through the unit's VPN check.
		index, entry, ok := s.ResolveMatchAddress(s.MakeMatchAddress(idx, slot))
		if !ok {
			return MatchResult{}
		}

		e, _ := s.ReadMatchEntry(index, entry)

		return MatchResult{
			Hit:   true,
			Entry: w*per + index*s.EntriesPerWord() + entry,
			Next:  e.Next,
			Ptr:   e.Ptr,
		}
	}

	return MatchResult{}
}

func (t *LogicalTable) lookupTernary(srams []*Sram, key uint64) MatchResult {
	e := t.tcam.Lookup(key)
	if e < 0 {
		return MatchResult{}
	}

	w, ok := srams[t.tind].Get(e / tindPerWord)
	if !ok {
		return MatchResult{}
	}

	off := (e % tindPerWord) * tindEntryBits
	if w.GetWord(off+tindValidOff, 1) == 0 {
		return MatchResult{}
	}

	return MatchResult{
		Hit:   true,
		Entry: e,
		Next:  NextTable(w.GetWord(off+tindNextOff, 8)),
		Ptr:   int(w.GetWord(off+tindPtrOff, tindPtrBits)),
	}
}

// AddExact inserts key, or modifies it when already present, and returns
// the entry number.
func (t *LogicalTable) AddExact(srams []*Sram, key uint64, next NextTable, ptr int) (int, error) {
	if t.Spec.Kind != MatchExact {
		return -1, ErrUnsupported("exact entry on table", t.Spec.Name)
	}

	if ptr < 0 || ptr >= 1<<tindPtrBits {
		return -1, ErrInvalidArgument("pointer", ptr)
	}

	key &= t.keyMask
	per := t.wayEntries(srams)
	me := MatchEntry{Key: key, Valid: true, Next: next, Ptr: ptr}

	if r := t.Lookup(srams, key); r.Hit {
		s, idx, slot, _ := t.exactLocation(srams, r.Entry)
		s.WriteMatchEntry(idx, slot, me)

		return r.Entry, nil
	}

	for w, si := range t.ways {
		s := srams[si]
		idx := wayHash(key, w)

		for slot := 0; slot < s.EntriesPerWord(); slot++ {
			e, ok := s.ReadMatchEntry(idx, slot)
			if !ok || e.Valid {
				continue
			}

			s.WriteMatchEntry(idx, slot, me)

			return w*per + idx*s.EntriesPerWord() + slot, nil
		}
	}

	return -1, ErrTableFull(t.Spec.Name)
}

// AddTernary writes entry; the entry number is also its priority.
func (t *LogicalTable) AddTernary(srams []*Sram, entry int, value, mask uint64, next NextTable, ptr int) error {
	if t.Spec.Kind != MatchTernary {
		return ErrUnsupported("ternary entry on table", t.Spec.Name)
	}

	if ptr < 0 || ptr >= 1<<tindPtrBits {
		return ErrInvalidArgument("pointer", ptr)
	}

	mask &= t.keyMask
	if !t.tcam.SetValueMask(entry, value&mask, mask) {
		return ErrInvalidArgumentWithReason("entry", entry, "outside table")
	}

	s := srams[t.tind]
	w, _ := s.Get(entry / tindPerWord)
	off := (entry % tindPerWord) * tindEntryBits
	w.SetWord(off+tindValidOff, 1, 1)
	w.SetWord(off+tindNextOff, 8, uint64(next))
	w.SetWord(off+tindPtrOff, tindPtrBits, uint64(ptr))
	s.Set(entry/tindPerWord, w)

	return nil
}

// Delete invalidates entry.
func (t *LogicalTable) Delete(srams []*Sram, entry int) error {
	if t.Spec.Kind == MatchTernary {
		if !t.tcam.Clear(entry) {
			return ErrNotFoundWithParam("entry", "index", entry)
		}

		s := srams[t.tind]
		w, _ := s.Get(entry / tindPerWord)
		w.SetWord((entry%tindPerWord)*tindEntryBits, tindEntryBits, 0)
		s.Set(entry/tindPerWord, w)

		return nil
	}

	s, idx, slot, ok := t.exactLocation(srams, entry)
	if !ok {
		return ErrNotFoundWithParam("entry", "index", entry)
	}

	e, _ := s.ReadMatchEntry(idx, slot)
	if !e.Valid {
		return ErrNotFoundWithParam("entry", "index", entry)
	}

	s.WriteMatchEntry(idx, slot, MatchEntry{})

	return nil
}

// aluAddress computes the address driven to a stats or meter-class ALU.
func (t *LogicalTable) aluAddress(spec *AluSpec, r MatchResult) Address {
	n := r.Ptr
	if spec.Direct {
		n = r.Entry
	}

	typ := AddrMeter

	switch spec.Kind {
	case AluStats:
		typ = AddrStats
	case AluSelector:
		typ = AddrSelector
	}

	a := EntryAddress(typ, n, spec.entriesPerWord(), spec.Srams[0].Vpn)
	a.Op = spec.meterOp()

	return a
}

// actionAddress computes the action data address of entry ptr.
func (t *LogicalTable) actionAddress(ptr int) Address {
	a := t.Spec.Action
	return EntryAddress(AddrAction, ptr, a.entriesPerWord(), a.Srams[0].Vpn)
}

func (t *LogicalTable) isCountable() bool { return t.Spec.Stats != nil }

func tableBit(lt int) uint16 { return uint16(1) << uint(lt) }
