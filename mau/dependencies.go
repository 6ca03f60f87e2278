// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"math/bits"

	"github.com/omec-project/mausim/logger"
)

// DependencyMode classifies a stage against its predecessor, per gress.
type DependencyMode uint8

const (
	DepConcurrent DependencyMode = 1
	DepAction     DependencyMode = 2
	DepMatch      DependencyMode = 4
)

func (m DependencyMode) String() string {
	switch m {
	case DepConcurrent:
		return "concurrent"
	case DepAction:
		return "action"
	case DepMatch:
		return "match"
	}

	return "invalid"
}

// IsValidDependencyMode reports whether exactly one mode bit is set.
func IsValidDependencyMode(m DependencyMode) bool {
	return m&^(DepConcurrent|DepAction|DepMatch) == 0 && bits.OnesCount8(uint8(m)) == 1
}

// Pipeline delays in clock cycles.
const (
	exactMatchDelayBase = 14
	tcamMatchExtra      = 2
	hashDistDelay       = 4
	actionOutputExtra   = 6
	deferredEopExtra    = 3
	actionDepStart      = 2
	concurrentStart     = 1
)

// Delays are the derived timing values of one stage and gress.
type Delays struct {
	ExactMatch   uint32
	TcamMatch    uint32
	HashDist     uint32
	ActionOutput uint32
	DeferredEop  uint32
	StageStart   uint32
}

// Dependencies holds the dependency registers of one stage and the state
// derived from them. Derived state is recomputed on every register write.
type Dependencies struct {
	stage int

	mode       [2]DependencyMode
	thread     [2]uint16
	extraDelay [2]uint32

	delays      [2]Delays
	matchInput  [2]bool
	actionInput [2]bool
}

func NewDependencies(stage int) *Dependencies {
	d := &Dependencies{stage: stage, mode: [2]DependencyMode{DepMatch, DepMatch}}
	d.Recompute(nil)

	return d
}

// SetMode writes the dependency_mode register of g.
func (d *Dependencies) SetMode(g Gress, m DependencyMode) {
	if !IsValidDependencyMode(m) {
		configPanic(d.stage, "invalid dependency mode %#x for %s", uint8(m), g)
	}

	if d.stage == 0 && m != DepMatch {
		logger.DepLog.With("stage", d.stage, "gress", g.String(), "mode", m.String()).
			Debugln("first stage is always match dependent")

		m = DepMatch
	}

	d.mode[g] = m
}

// SetThread writes the logical_table_thread register of g. A table threaded
// into both gresses is a configuration error.
func (d *Dependencies) SetThread(g Gress, mask uint16) {
	if mask&d.thread[1-g] != 0 {
		configPanic(d.stage, "logical tables %#04x claimed by both gresses", mask&d.thread[1-g])
	}

	d.thread[g] = mask
}

func (d *Dependencies) SetExtraDelay(g Gress, v uint32) {
	d.extraDelay[g] = v
}

// Recompute derives bus selection and delays. prev is the previous stage,
// nil for stage 0.
func (d *Dependencies) Recompute(prev *Dependencies) {
	for g := Ingress; g <= Egress; g++ {
		switch d.mode[g] {
		case DepConcurrent:
			d.matchInput[g], d.actionInput[g] = true, true
		case DepAction:
			d.matchInput[g], d.actionInput[g] = true, false
		default:
			d.matchInput[g], d.actionInput[g] = false, false
		}

		dl := Delays{ExactMatch: exactMatchDelayBase + d.extraDelay[g], HashDist: hashDistDelay}
		dl.TcamMatch = dl.ExactMatch + tcamMatchExtra
		dl.ActionOutput = dl.TcamMatch + actionOutputExtra
		dl.DeferredEop = dl.ActionOutput + deferredEopExtra

		if prev != nil {
			p := prev.delays[g]

			switch d.mode[g] {
			case DepConcurrent:
				dl.StageStart = p.StageStart + concurrentStart
			case DepAction:
				dl.StageStart = p.StageStart + actionDepStart
			default:
				dl.StageStart = p.StageStart + p.ActionOutput
			}
		}

		d.delays[g] = dl
	}

	logger.DepLog.With("stage", d.stage, "ingress", d.mode[Ingress].String(), "egress", d.mode[Egress].String()).
		Debugln("recomputed dependencies")
}

func (d *Dependencies) Mode(g Gress) DependencyMode { return d.mode[g] }

// LogicalTables returns the tables threaded into g.
func (d *Dependencies) LogicalTables(g Gress) uint16 { return d.thread[g] }

// MatchUsesInputPhv reports whether lookups read the stage input PHV rather
// than the previous stage's output.
func (d *Dependencies) MatchUsesInputPhv(g Gress) bool { return d.matchInput[g] }

func (d *Dependencies) ActionUsesInputPhv(g Gress) bool { return d.actionInput[g] }

func (d *Dependencies) Delays(g Gress) Delays { return d.delays[g] }

// PipeLength is the cycle at which g's end-of-packet work in this stage
// completes, counted from pipeline entry.
func (d *Dependencies) PipeLength(g Gress) uint32 {
	return d.delays[g].StageStart + d.delays[g].DeferredEop
}
