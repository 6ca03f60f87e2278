// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"github.com/omec-project/mausim/logger"
	"github.com/omec-project/mausim/pkg/utils"
)

// Predication decides, per packet, which logical tables of a stage run.
//
// lookupable tables are powered and may match; countable tables carry
// counters and always execute; active tables were reached by next-table
// chaining; runnable tables are the ones the stage actually evaluates.
type Predication struct {
	stage int
	deps  *Dependencies

	shortCircuit [2]bool

	lookupable uint16
	countable  uint16
	active     uint16
	runnable   uint16
	warn       uint16

	// next is the next-table handed to the following stage, per gress.
	next   [2]NextTable
	thread [2]bool
}

func NewPredication(stage int, deps *Dependencies, mode string) *Predication {
	p := &Predication{stage: stage, deps: deps}
	p.SetMode(Ingress, mode)
	p.SetMode(Egress, mode)

	return p
}

func (p *Predication) SetMode(g Gress, mode string) {
	p.shortCircuit[g] = mode == PredicationShortCircuit
}

func (p *Predication) ShortCircuit(g Gress) bool { return p.shortCircuit[g] }

// SetLookupable sets the power state of the stage's tables.
func (p *Predication) SetLookupable(mask uint16) {
	p.lookupable = mask
	p.warn &= ^mask
}

func (p *Predication) SetCountable(mask uint16) { p.countable = mask }

func (p *Predication) gressMask(g Gress) uint16 { return p.deps.LogicalTables(g) }

// Start begins a packet with the next-table pointers from the previous
// stage and the live threads.
func (p *Predication) Start(next [2]NextTable, thread [2]bool) {
	p.active = 0
	p.runnable = 0
	p.next = next
	p.thread = thread

	for g := Ingress; g <= Egress; g++ {
		if !thread[g] {
			continue
		}

		mask := p.gressMask(g)

		if !next[g].IsEnd() && next[g].Stage() == p.stage {
			// Entering a stage at a table outside the gress starts at the
			// first threaded table at or above it.
			lt := utils.FirstSetAbove(mask, next[g].Table()-1)
			if lt >= 0 {
				p.active |= 1 << uint(lt)
				p.next[g] = MakeNextTable(p.stage, lt)
			} else {
				logger.PredLog.With("stage", p.stage, "gress", g.String(), "next", next[g].String()).
					Debugln("no table to run, passing through")

				p.next[g] = MakeNextTable(p.stage+1, 0)
			}
		}

		if p.shortCircuit[g] {
			p.runnable |= (p.active | p.countable) & mask
		} else {
			p.runnable |= (p.lookupable | p.countable | p.active) & mask
		}
	}
}

// GetNextTable returns the first runnable table of g above curr, or -1.
func (p *Predication) GetNextTable(g Gress, curr int) int {
	if !p.thread[g] {
		return -1
	}

	lt := utils.FirstSetAbove(p.gressMask(g)&p.runnable, curr)
	if lt < 0 {
		return -1
	}

	bit := uint16(1) << uint(lt)
	if p.lookupable&bit == 0 && p.warn&bit == 0 {
		p.warn |= bit
		logger.PredLog.With("stage", p.stage, "gress", g.String(), "table", lt).
			Warnln("table not powered, lookups miss")
	}

	return lt
}

func (p *Predication) IsLookupable(lt int) bool { return utils.Uint16HasBit(p.lookupable, lt) }
func (p *Predication) IsActive(lt int) bool     { return utils.Uint16HasBit(p.active, lt) }

// SetNextTable consumes the next-table result of table lt. Only an active
// table steers the chain.
func (p *Predication) SetNextTable(g Gress, lt int, nt NextTable) {
	if !p.IsActive(lt) {
		return
	}

	if nt.IsEnd() || nt.Stage() != p.stage {
		p.next[g] = nt
		return
	}

	mask := p.gressMask(g)
	above := mask &^ (uint16(1)<<uint(lt+1) - 1)
	target := nt.Table()

	if !utils.Uint16HasBit(above, target) {
		fallback := utils.FirstSetAbove(mask, lt)
		logger.PredLog.With("stage", p.stage, "gress", g.String(), "table", lt, "next", nt.String(), "fallback", fallback).
			Warnln("inconsistent next table")

		if fallback < 0 {
			p.next[g] = MakeNextTable(p.stage+1, 0)
			return
		}

		target = fallback
	}

	p.active |= 1 << uint(target)
	p.runnable |= 1 << uint(target)

	p.next[g] = MakeNextTable(p.stage, target)
}

// HandOff returns the next-table pointers for the following stage. A chain
// that stopped inside this stage continues at the next stage's first table.
func (p *Predication) HandOff() [2]NextTable {
	out := p.next

	for g := Ingress; g <= Egress; g++ {
		if !out[g].IsEnd() && out[g].Stage() == p.stage {
			out[g] = MakeNextTable(p.stage+1, 0)
		}
	}

	return out
}

func (p *Predication) Lookupable() uint16 { return p.lookupable }
func (p *Predication) Countable() uint16  { return p.countable }
func (p *Predication) Active() uint16     { return p.active }
func (p *Predication) Runnable() uint16   { return p.runnable }
func (p *Predication) Warned() uint16     { return p.warn }
