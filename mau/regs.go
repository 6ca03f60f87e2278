// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"sort"

	"github.com/ettle/strcase"

	"github.com/omec-project/mausim/logger"
)

// register is one named per-stage configuration register array.
type register struct {
	size  int
	write func(p *Pipeline, s *Stage, index int, v uint32)
	read  func(s *Stage, index int) uint32
	// deps marks registers whose writes change derived dependency state.
	deps bool
}

func boolReg(b bool) uint32 {
	if b {
		return 1
	}

	return 0
}

func predicationModeName(v uint32) string {
	if v == 1 {
		return PredicationShortCircuit
	}

	return PredicationEvaluateAll
}

var registers = map[string]register{
	"dependency_mode": {
		size:  2,
		write: func(_ *Pipeline, s *Stage, i int, v uint32) { s.Deps.SetMode(Gress(i), DependencyMode(v)) },
		read:  func(s *Stage, i int) uint32 { return uint32(s.Deps.Mode(Gress(i))) },
		deps:  true,
	},
	"logical_table_thread": {
		size:  2,
		write: func(_ *Pipeline, s *Stage, i int, v uint32) { s.Deps.SetThread(Gress(i), uint16(v)) },
		read:  func(s *Stage, i int) uint32 { return uint32(s.Deps.LogicalTables(Gress(i))) },
		deps:  true,
	},
	"stage_extra_delay": {
		size:  2,
		write: func(_ *Pipeline, s *Stage, i int, v uint32) { s.Deps.SetExtraDelay(Gress(i), v) },
		read:  func(s *Stage, i int) uint32 { return s.Deps.Delays(Gress(i)).ExactMatch - exactMatchDelayBase },
		deps:  true,
	},
	"predication_mode": {
		size:  2,
		write: func(_ *Pipeline, s *Stage, i int, v uint32) { s.Pred.SetMode(Gress(i), predicationModeName(v)) },
		read:  func(s *Stage, i int) uint32 { return boolReg(s.Pred.ShortCircuit(Gress(i))) },
	},
	"table_power": {
		size:  LogicalTables,
		write: func(_ *Pipeline, s *Stage, i int, v uint32) { s.SetTablePower(i, v != 0) },
		read:  func(s *Stage, i int) uint32 { return boolReg(s.Pred.IsLookupable(i)) },
	},
	"tcam_priority": {
		size: 1,
		write: func(_ *Pipeline, s *Stage, _ int, v uint32) {
			mode := TcamPriorityHighest
			if v != 0 {
				mode = TcamPriorityLowest
			}

			for _, t := range s.Tcams {
				t.SetPriorityMode(mode)
			}

			for _, t := range s.Tables {
				if t != nil && t.tcam != nil {
					t.tcam.SetPriorityMode(mode)
				}
			}
		},
		read: func(s *Stage, _ int) uint32 { return boolReg(s.Tcams[0].lowestWins) },
	},
	"snapshot_ctl": {
		size: 1,
		write: func(p *Pipeline, s *Stage, _ int, v uint32) {
			if v == 0 {
				s.Snapshot.Disable()
			} else {
				s.Snapshot.Arm(p.cycle)
			}
		},
		read: func(s *Stage, _ int) uint32 { return uint32(s.Snapshot.State()) },
	},
	"snapshot_field_select": {
		size: SnapshotFields,
		write: func(_ *Pipeline, s *Stage, i int, v uint32) {
			c := int(v)
			if v == 0xffffffff {
				c = -1
			}

			s.Snapshot.SetField(i, c, s.Snapshot.value[i], s.Snapshot.mask[i])
		},
		read: func(s *Stage, i int) uint32 { return uint32(s.Snapshot.fieldSelect[i]) },
	},
	"snapshot_value": {
		size:  SnapshotFields,
		write: func(_ *Pipeline, s *Stage, i int, v uint32) { s.Snapshot.SetField(i, s.Snapshot.fieldSelect[i], v, s.Snapshot.mask[i]) },
		read:  func(s *Stage, i int) uint32 { return s.Snapshot.value[i] },
	},
	"snapshot_mask": {
		size:  SnapshotFields,
		write: func(_ *Pipeline, s *Stage, i int, v uint32) { s.Snapshot.SetField(i, s.Snapshot.fieldSelect[i], s.Snapshot.value[i], v) },
		read:  func(s *Stage, i int) uint32 { return s.Snapshot.mask[i] },
	},
	"snapshot_propagate": {
		size:  1,
		write: func(_ *Pipeline, s *Stage, _ int, v uint32) { s.Snapshot.SetPropagate(v != 0) },
		read:  func(s *Stage, _ int) uint32 { return boolReg(s.Snapshot.propagate) },
	},
	"snapshot_timer": {
		size:  1,
		write: func(_ *Pipeline, s *Stage, _ int, v uint32) { s.Snapshot.SetTimer(v != 0, uint64(v)) },
		read:  func(s *Stage, _ int) uint32 { return uint32(s.Snapshot.timerCycles) },
	},
}

// RegisterName normalizes a register name: DependencyMode,
// dependencyMode and dependency-mode all name dependency_mode.
func RegisterName(name string) string {
	return strcase.ToSnake(name)
}

// Registers lists the register names.
func Registers() []string {
	names := make([]string, 0, len(registers))
	for n := range registers {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

func (p *Pipeline) register(stage int, name string, index int) (register, *Stage, error) {
	r, ok := registers[RegisterName(name)]
	if !ok {
		return register{}, nil, ErrNotFoundWithParam("register", "name", name)
	}

	if stage < 0 || stage >= len(p.Stages) {
		return register{}, nil, ErrInvalidArgument("stage", stage)
	}

	if index < 0 || index >= r.size {
		return register{}, nil, ErrInvalidArgumentWithReason(name+" index", index, "out of range")
	}

	return r, p.Stages[stage], nil
}

// WriteReg writes one configuration register and synchronously recomputes
// any state derived from it. Writes that violate a configuration invariant
// are returned as *ConfigError.
func (p *Pipeline) WriteReg(stage int, name string, index int, value uint32) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer Recover(&err)

	r, s, err := p.register(stage, name, index)
	if err != nil {
		return err
	}

	r.write(p, s, index, value)

	if r.deps {
		p.recomputeDependencies()
	}

	logger.CfgLog.With("stage", stage, "reg", RegisterName(name), "index", index, "value", value).Debugln("register write")

	return nil
}

func (p *Pipeline) ReadReg(stage int, name string, index int) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, s, err := p.register(stage, name, index)
	if err != nil {
		return 0, err
	}

	return r.read(s, index), nil
}
