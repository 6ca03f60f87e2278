// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"github.com/omec-project/mausim/logger"
)

type BusKind uint8

const (
	BusAction BusKind = iota
	BusStats
	BusMeter
	BusOverflow
	BusOverflow2
	BusSelector
	numBuses
)

var busNames = [numBuses]string{"action", "stats", "meter", "overflow", "overflow2", "selector"}

func (b BusKind) String() string {
	if b < numBuses {
		return busNames[b]
	}

	return "bus?"
}

type bus struct {
	driven bool
	src    int
	value  uint32
}

// LogicalRow multiplexes the address buses of one half physical row and
// hosts at most one ALU.
type LogicalRow struct {
	stage int
	index int
	relax bool
	obs   Observer

	buses [numBuses]bus

	// Alu is the home ALU; AluSrams index the stage SRAMs holding its words.
	Alu      AluUnit
	AluSrams []int
	// Operand is the PHV container fed to the ALU, or -1.
	Operand int

	latched   bool
	addr      Address
	src       int
	out       AluOutput
	conflicts int
}

func NewLogicalRow(conf *SimulatorConfig, stage, index int, obs Observer) *LogicalRow {
	return &LogicalRow{
		stage:   stage,
		index:   index,
		relax:   conf.RelaxMultiWriteCheck,
		obs:     obs,
		Operand: -1,
	}
}

func (r *LogicalRow) Index() int { return r.index }

// BeginCycle releases every bus and latch.
func (r *LogicalRow) BeginCycle() {
	r.buses = [numBuses]bus{}
	r.latched = false
	r.out = AluOutput{}
}

// Drive puts value on bus b on behalf of src. A second source driving the
// same value is harmless; a different value is an electrical conflict and
// the first value wins when relaxed.
func (r *LogicalRow) Drive(b BusKind, src int, value uint32) bool {
	cur := &r.buses[b]
	if !cur.driven {
		*cur = bus{driven: true, src: src, value: value}
		return true
	}

	if cur.value == value || cur.src == src {
		return cur.value == value
	}

	r.conflicts++
	r.obs.BusConflict(r.stage, r.index, b.String())

	if !r.relax {
		configPanic(r.stage, "row %d %s bus driven by %d (%#x) and %d (%#x)", r.index, b, cur.src, cur.value, src, value)
	}

	logger.MauLog.With("stage", r.stage, "row", r.index, "bus", b.String(), "first", cur.src, "second", src).
		Warnln("multi-write relaxed, keeping first value")

	return false
}

// Read returns the value currently on bus b.
func (r *LogicalRow) Read(b BusKind) (uint32, bool) {
	return r.buses[b].value, r.buses[b].driven
}

// Conflicts counts relaxed multi-writes since creation.
func (r *LogicalRow) Conflicts() int { return r.conflicts }

// homeBus is the bus the ALU of this row listens to without overflow.
func (r *LogicalRow) homeBus() BusKind {
	if r.Alu == nil {
		return BusAction
	}

	switch r.Alu.Kind() {
	case AluStats:
		return BusStats
	case AluSelector:
		return BusSelector
	}

	return BusMeter
}

func (r *LogicalRow) addrType() AddrType {
	switch r.Alu.Kind() {
	case AluStats:
		return AddrStats
	case AluSelector:
		return AddrSelector
	}

	return AddrMeter
}

// RouteBus returns the bus a table homed on row from uses to reach the ALU
// on row to. Addresses only travel upward: overflow stays on the same side,
// overflow2 crosses sides.
func RouteBus(stage, from, to int, home BusKind) BusKind {
	switch {
	case from == to:
		return home
	case to < from:
		configPanic(stage, "address routed down from row %d to row %d", from, to)
	case from%2 == to%2:
		return BusOverflow
	}

	return BusOverflow2
}

// FetchAddresses latches the ALU address from the home bus or, failing that,
// from the overflow buses.
func (r *LogicalRow) FetchAddresses() {
	if r.Alu == nil {
		return
	}

	for _, b := range []BusKind{r.homeBus(), BusOverflow, BusOverflow2} {
		if v, ok := r.Read(b); ok {
			a := UnpackAddress(r.addrType(), v)
			if !a.Pfe {
				continue
			}

			r.latched = true
			r.addr = a
			r.src = r.buses[b].src

			return
		}
	}
}

// Latched returns the address fetched this cycle.
func (r *LogicalRow) Latched() (Address, bool) { return r.addr, r.latched }

func (r *LogicalRow) memFor(srams []*Sram, a Address) Addressable {
	for _, i := range r.AluSrams {
		if srams[i].HoldsVpn(a.Vpn) {
			return srams[i]
		}
	}

	if len(r.AluSrams) > 0 {
		srams[r.AluSrams[0]].CheckVpn(a)
	} else {
		configPanic(r.stage, "row %d alu has no memory", r.index)
	}

	return nil
}

func (r *LogicalRow) run(srams []*Sram, in *AluInput) {
	mem := r.memFor(srams, r.addr)
	if mem == nil {
		return
	}

	r.out = r.Alu.Run(mem, r.addr, in)
}

// RunAlusWithPhv runs a latched meter, LPF, selector or stateful ALU.
func (r *LogicalRow) RunAlusWithPhv(srams []*Sram, in AluInput, phv *Phv) {
	if !r.latched || r.Alu.Kind() == AluStats {
		return
	}

	if r.Operand >= 0 {
		in.Operand = phv.Get(r.Operand)
		in.PreColor = Color(in.Operand & 3)
	}

	r.run(srams, &in)
}

// RunAlusWithState runs a latched stats ALU at end of packet.
func (r *LogicalRow) RunAlusWithState(srams []*Sram, in AluInput) {
	if !r.latched || r.Alu.Kind() != AluStats {
		return
	}

	r.run(srams, &in)
}

// Output returns this cycle's ALU result.
func (r *LogicalRow) Output() AluOutput { return r.out }
