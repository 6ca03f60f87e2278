// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"github.com/omec-project/mausim/logger"
	"github.com/omec-project/mausim/pkg/bitvector"
)

// Stage is one match-action unit. It owns its memories, rows, tables and
// ALUs in flat arrays; everything refers to everything else by index.
type Stage struct {
	conf *SimulatorConfig
	id   int
	obs  Observer

	Srams   []*Sram
	Maprams []*Mapram
	Tcams   []*Tcam
	Rows    []*LogicalRow
	Tables  []*LogicalTable

	Deps     *Dependencies
	Pred     *Predication
	Snapshot *Snapshot

	// executed holds the active tables of the current packet and their
	// results, in lookup order.
	executed []executedTable
}

type executedTable struct {
	lt     int
	result MatchResult
}

func NewStage(conf *SimulatorConfig, id int, obs Observer) *Stage {
	s := &Stage{
		conf:    conf,
		id:      id,
		obs:     obs,
		Srams:   make([]*Sram, SramsPerStage),
		Maprams: make([]*Mapram, SramsPerStage),
		Tcams:   make([]*Tcam, TcamsPerStage),
		Rows:    make([]*LogicalRow, LogicalRows),
		Tables:  make([]*LogicalTable, LogicalTables),
	}

	for r := 0; r < SramRows; r++ {
		for c := 0; c < SramCols; c++ {
			s.Srams[r*SramCols+c] = NewSram(conf, id, r, c)
			s.Maprams[r*SramCols+c] = NewMapram(conf, id, r, c)
		}
	}

	for i := range s.Tcams {
		s.Tcams[i] = NewTcam(TcamDepth, TcamWidthDefault, conf.TcamPriority)
	}

	for i := range s.Rows {
		s.Rows[i] = NewLogicalRow(conf, id, i, obs)
	}

	s.Deps = NewDependencies(id)
	s.Pred = NewPredication(id, s.Deps, conf.PredicationMode)
	s.Snapshot = NewSnapshot(id)

	return s
}

func (s *Stage) ID() int { return s.id }

func (s *Stage) sram(m MemRef) *Sram { return s.Srams[m.index()] }

// AddTable wires ts onto the stage memories. Configuration conflicts panic.
func (s *Stage) AddTable(ts TableSpec) *LogicalTable {
	if s.Tables[ts.ID] != nil {
		configPanic(s.id, "logical table %d used by %s and %s", ts.ID, s.Tables[ts.ID].Spec.Name, ts.Name)
	}

	t := &LogicalTable{
		Spec:     ts,
		stage:    s.id,
		keyWidth: ts.KeyWidth(),
		tind:     -1,
		missNext: MakeNextTable(s.id+1, 0),
	}
	t.keyMask = t.keyFieldMask()

	if ts.MissNext != nil {
		t.missNext = *ts.MissNext
	}

	switch ts.Kind {
	case MatchExact:
		for _, w := range ts.Ways {
			s.claimSram(w, ts.Name)
			s.sram(w).ConfigureMatch(t.keyWidth, w.Vpn, ts.Gress)
			t.ways = append(t.ways, w.index())
		}

		t.homeRow = SramLogicalRow(ts.Ways[0].Row, ts.Ways[0].Col)
	case MatchTernary:
		if len(ts.Tcams) > tindMaxTcams {
			configPanic(s.id, "%s uses %d tcams, tind holds %d", ts.Name, len(ts.Tcams), tindMaxTcams)
		}

		units := make([]*Tcam, 0, len(ts.Tcams))
		for _, i := range ts.Tcams {
			s.Tcams[i] = NewTcam(TcamDepth, t.keyWidth, s.conf.TcamPriority)
			units = append(units, s.Tcams[i])
		}

		t.tcam = NewLogicalTcam(units, s.conf.TcamPriority)

		s.claimSram(*ts.Tind, ts.Name)
		s.sram(*ts.Tind).Configure(RoleTind, ts.Tind.Vpn, ts.Tind.Vpn, ts.Gress)
		t.tind = ts.Tind.index()
		t.homeRow = SramLogicalRow(ts.Tind.Row, ts.Tind.Col)
	}

	if a := ts.Action; a != nil {
		for _, m := range a.Srams {
			s.claimSram(m, ts.Name)
			s.sram(m).Configure(RoleAction, m.Vpn, m.Vpn, ts.Gress)
		}
	}

	if ts.Stats != nil {
		s.attachAlu(t, ts.Stats)
	}

	if ts.Meter != nil {
		s.attachAlu(t, ts.Meter)
	}

	if ts.Idle != nil {
		s.Maprams[ts.Idle.Mapram.index()].ConfigureIdle(ts.Idle.Width, ts.Idle.Mapram.Vpn, ts.Idle.Mapram.Vpn)
	}

	s.Tables[ts.ID] = t

	// Thread the table into its gress.
	mask := s.Deps.LogicalTables(ts.Gress) | tableBit(ts.ID)
	s.Deps.SetThread(ts.Gress, mask)
	s.refreshPower()

	logger.MauLog.With("stage", s.id, "table", ts.Name, "id", ts.ID, "kind", ts.Kind.String(), "gress", ts.Gress.String()).
		Infoln("table added")

	return t
}

func (s *Stage) claimSram(m MemRef, owner string) {
	if sr := s.sram(m); sr.Role != RoleUnused {
		configPanic(s.id, "%s claimed by %s already in use as %s", sr, owner, sr.Role)
	}
}

func (s *Stage) attachAlu(t *LogicalTable, spec *AluSpec) {
	row := s.Rows[spec.Row]
	if row.Alu != nil {
		configPanic(s.id, "row %d already hosts a %s alu", spec.Row, row.Alu.Kind())
	}

	// Fails on a downward route.
	RouteBus(s.id, t.homeRow, spec.Row, BusMeter)

	role := RoleMeter

	switch spec.Kind {
	case AluStats:
		role = RoleStats
		row.Alu = NewStats(spec.Format)
	case AluMeter:
		m := NewMeter(s.conf, spec.Mode != "packets")
		m.ByteAdjust = spec.ByteAdjust

		if cm := spec.ColorMapram; cm != nil {
			s.Maprams[cm.index()].ConfigureColor(cm.Vpn, cm.Vpn)
			m.ColorMapram = s.Maprams[cm.index()]
		}

		row.Alu = m
	case AluLpf:
		m := NewLpfMeter(s.conf, spec.Mode == "red")
		m.DropValue = spec.DropValue
		m.NoDropValue = spec.NoDropValue
		row.Alu = m
	case AluSelector:
		role = RoleSelector
		mode := SelectorFair

		if spec.Mode == "resilient" {
			mode = SelectorResilient
		}

		row.Alu = NewSelector(mode)
	case AluStateful:
		role = RoleStateful
		row.Alu = NewStateful(*spec.Stateful)
	}

	for _, m := range spec.Srams {
		s.claimSram(m, t.Spec.Name)
		s.sram(m).Configure(role, m.Vpn, m.Vpn, t.Spec.Gress)
		row.AluSrams = append(row.AluSrams, m.index())
	}

	if spec.Operand != nil {
		row.Operand = *spec.Operand
	}
}

// refreshPower recomputes the lookupable and countable masks.
func (s *Stage) refreshPower() {
	var lookupable, countable uint16

	for i, t := range s.Tables {
		if t == nil {
			continue
		}

		if !t.Spec.PowerGated {
			lookupable |= tableBit(i)
		}

		if t.isCountable() {
			countable |= tableBit(i)
		}
	}

	s.Pred.SetLookupable(lookupable)
	s.Pred.SetCountable(countable)
}

// SetTablePower powers a table on or off.
func (s *Stage) SetTablePower(lt int, on bool) {
	if t := s.Tables[lt]; t != nil {
		t.Spec.PowerGated = !on
		s.refreshPower()
	}
}

func (s *Stage) beginCycle() {
	for _, r := range s.Rows {
		r.BeginCycle()
	}

	s.executed = s.executed[:0]
}

// RunRead processes one PHV through the stage. in is the PHV the previous
// stage matched on and prev its output. It returns the PHV this stage
// matched on and its output.
func (s *Stage) RunRead(in, prev *Phv, clk AluInput) (*Phv, *Phv) {
	s.beginCycle()

	out := prev.Clone()
	if s.Snapshot.MaybeSnapshot(prev, clk.Cycle) {
		out.Snapshot = true
	}

	matchBus := func(g Gress) *Phv {
		if s.Deps.MatchUsesInputPhv(g) {
			return in
		}

		return prev
	}

	actionBus := func(g Gress) *Phv {
		if s.Deps.ActionUsesInputPhv(g) {
			return in
		}

		return prev
	}

	var hits uint16

	s.Pred.Start(prev.Next, prev.Thread)

	for g := Ingress; g <= Egress; g++ {
		for lt := s.Pred.GetNextTable(g, -1); lt >= 0; lt = s.Pred.GetNextTable(g, lt) {
			t := s.Tables[lt]

			var r MatchResult
			if t != nil && s.Pred.IsLookupable(lt) {
				r = t.Lookup(s.Srams, t.Key(matchBus(g)))
			}

			s.obs.TableLookup(s.id, lt, r.Hit)

			nt := MakeNextTable(s.id+1, 0)
			if t != nil {
				nt = t.missNext
			}

			if r.Hit {
				nt = r.Next
				hits |= tableBit(lt)
			}

			s.Pred.SetNextTable(g, lt, nt)

			if s.Pred.IsActive(lt) && t != nil {
				s.executed = append(s.executed, executedTable{lt: lt, result: r})
			}
		}
	}

	s.driveAddresses()

	for _, row := range s.Rows {
		row.FetchAddresses()
	}

	for _, row := range s.Rows {
		if row.Alu == nil {
			continue
		}

		g := Ingress
		if _, ok := row.Latched(); ok {
			g = s.rowGress(row.Index())
		}

		aluIn := clk
		aluIn.PacketLen = prev.PacketLen
		aluIn.Hash = prev.Hash
		row.RunAlusWithPhv(s.Srams, aluIn, actionBus(g))
	}

	for _, e := range s.executed {
		s.runAction(e, actionBus(s.Tables[e.lt].Gress()), out)
	}

	out.Next = s.Pred.HandOff()
	s.Snapshot.FinalizeSnapshot(out, hits, s.Pred.Active(), out.Next)

	return matchBus(Ingress), out
}

// rowGress returns the gress of the table feeding a row's ALU.
func (s *Stage) rowGress(row int) Gress {
	for _, e := range s.executed {
		t := s.Tables[e.lt]
		for _, spec := range []*AluSpec{t.Spec.Stats, t.Spec.Meter} {
			if spec != nil && spec.Row == row {
				return t.Gress()
			}
		}
	}

	return Ingress
}

// driveAddresses puts the ALU addresses of every hitting active table on the
// row buses.
func (s *Stage) driveAddresses() {
	for _, e := range s.executed {
		if !e.result.Hit {
			continue
		}

		t := s.Tables[e.lt]

		if idle := t.Spec.Idle; idle != nil {
			m := s.Maprams[idle.Mapram.index()]
			m.IdleHit(EntryAddress(AddrIdle, e.result.Entry, m.IdleEntriesPerWord(), idle.Mapram.Vpn))
		}

		for _, spec := range []*AluSpec{t.Spec.Stats, t.Spec.Meter} {
			if spec == nil {
				continue
			}

			row := s.Rows[spec.Row]
			b := RouteBus(s.id, t.homeRow, spec.Row, row.homeBus())
			row.Drive(b, e.lt, t.aluAddress(spec, e.result).Pack())
		}
	}
}

func (s *Stage) aluOutput(spec *AluSpec) AluOutput {
	if spec == nil {
		return AluOutput{}
	}

	return s.Rows[spec.Row].Output()
}

// runAction applies the action of a hitting table to out.
func (s *Stage) runAction(e executedTable, src, out *Phv) {
	t := s.Tables[e.lt]
	if !e.result.Hit || t.Spec.Action == nil {
		return
	}

	meter := s.aluOutput(t.Spec.Meter)
	if t.Spec.Meter != nil && meter.Valid {
		switch t.Spec.Meter.Kind {
		case AluMeter:
			s.obs.MeterColor(s.id, meter.Color)
		case AluLpf:
			if t.Spec.Meter.Mode == "red" {
				s.obs.RedDecision(s.id, meter.Drop)
			}
		}

		if meter.Drop {
			out.Drop = true
		}
	}

	ptr := e.result.Ptr
	if t.Spec.Meter != nil && t.Spec.Meter.Kind == AluSelector {
		if !meter.Valid {
			return
		}

		ptr += int(meter.Data)
	}

	var data *bitvector.BitVector

	sub := 0

	if len(t.Spec.Action.Srams) > 0 {
		a := t.actionAddress(ptr)
		mem := s.actionMem(t, a)

		if mem != nil {
			data, _ = mem.Get(a.Index)
			sub = a.Subword
		}
	}

	for _, op := range t.Spec.Action.Ops {
		var v uint32

		switch op.Src {
		case "data":
			if data == nil {
				continue
			}

			v = uint32(data.GetWord(sub*t.Spec.Action.EntryWidth+op.Offset, op.Width))
		case "const":
			v = op.Value
		case "phv":
			v = src.Get(int(op.Value))
		case "meter_color":
			v = uint32(meter.Color)
		case "alu", "selector":
			if !meter.Valid {
				continue
			}

			v = meter.Data
		}

		if op.Op == "add" {
			v += src.Get(op.Dst)
		}

		out.Set(op.Dst, v)
	}
}

func (s *Stage) actionMem(t *LogicalTable, a Address) *Sram {
	for _, m := range t.Spec.Action.Srams {
		if sr := s.sram(m); sr.HoldsVpn(a.Vpn) {
			return sr
		}
	}

	if s.sram(t.Spec.Action.Srams[0]).CheckVpn(a) {
		return s.sram(t.Spec.Action.Srams[0])
	}

	return nil
}

// RunWrite runs end-of-packet work: stats ALUs with the final length.
func (s *Stage) RunWrite(eop *Phv, clk AluInput) {
	in := clk
	in.PacketLen = eop.PacketLen

	for _, row := range s.Rows {
		if row.Alu != nil {
			row.RunAlusWithState(s.Srams, in)
		}
	}
}

// IdleMaprams returns the maprams configured for idletime.
func (s *Stage) IdleMaprams() []*Mapram {
	var out []*Mapram

	for _, m := range s.Maprams {
		if m.Role == MapramIdle {
			out = append(out, m)
		}
	}

	return out
}
