// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"fmt"

	"go.uber.org/multierr"
)

// Program is the table layout loaded into the pipeline, as produced by a
// compiler backend.
type Program struct {
	Tables []TableSpec `json:"tables"`
}

// MemRef names one SRAM (or its mapram) of a stage and the VPN it serves.
type MemRef struct {
	Row int `json:"row"`
	Col int `json:"col"`
	Vpn int `json:"vpn"`
}

func (m MemRef) index() int { return m.Row*SramCols + m.Col }

func (m MemRef) validate(what string) error {
	if m.Row < 0 || m.Row >= SramRows || m.Col < 0 || m.Col >= SramCols {
		return ErrInvalidArgumentWithReason(what, fmt.Sprintf("(%d,%d)", m.Row, m.Col), "no such sram")
	}

	if m.Vpn < 0 || m.Vpn > vpnMask {
		return ErrInvalidArgumentWithReason(what+" vpn", m.Vpn, "out of range")
	}

	return nil
}

// KeyField is one PHV container of a match key. A zero Mask matches the
// whole container.
type KeyField struct {
	Container int    `json:"container"`
	Mask      uint32 `json:"mask"`
}

func (k KeyField) width() int { return PhvWordWidth(k.Container) }

func (k KeyField) mask() uint32 {
	full := uint32(uint64(1)<<uint(k.width()) - 1)
	if k.Mask == 0 {
		return full
	}

	return k.Mask & full
}

// ActionOp writes one PHV container from action data, a constant, or an
// ALU result.
type ActionOp struct {
	Dst int `json:"dst"`
	// Src is data, const, phv, meter_color, alu or selector.
	Src    string `json:"src"`
	Offset int    `json:"offset"`
	Width  int    `json:"width"`
	// Value is the constant, or the source container for phv.
	Value uint32 `json:"value"`
	// Op is set or add.
	Op string `json:"op"`
}

var (
	actionSrcs = []string{"data", "const", "phv", "meter_color", "alu", "selector"}
	actionOps  = []string{"", "set", "add"}
)

type ActionSpec struct {
	Srams []MemRef `json:"srams"`
	// EntryWidth is 32, 64 or 128 bits.
	EntryWidth int        `json:"entry_width"`
	Ops        []ActionOp `json:"ops"`
}

func (a *ActionSpec) entriesPerWord() int { return SramWidth / a.EntryWidth }

// AluSpec attaches a stats or meter-class ALU to a table.
type AluSpec struct {
	Kind AluKind `json:"kind"`
	// Row is the logical row hosting the ALU.
	Row   int      `json:"row"`
	Srams []MemRef `json:"srams"`
	// Direct addresses by match entry; otherwise by the entry pointer.
	Direct      bool        `json:"direct"`
	ColorMapram *MemRef     `json:"color_mapram,omitempty"`
	Format      StatsFormat `json:"format"`
	// Mode is bytes/packets for meters, color_aware for color-aware meters,
	// red for LPF with RED, fair/resilient for selectors.
	Mode        string        `json:"mode"`
	ByteAdjust  int           `json:"byte_adjust"`
	Operand     *int          `json:"operand,omitempty"`
	Stateful    *StatefulSpec `json:"stateful,omitempty"`
	DropValue   uint32        `json:"drop_value"`
	NoDropValue uint32        `json:"nodrop_value"`
}

func (a *AluSpec) entriesPerWord() int {
	switch a.Kind {
	case AluStats:
		return a.Format.EntriesPerWord()
	case AluStateful:
		return 2
	}

	return 1
}

func (a *AluSpec) meterOp() MeterOp {
	switch a.Kind {
	case AluMeter:
		if a.Mode == "color_aware" {
			return MeterOpColorAware
		}

		return MeterOpColorBlind
	case AluLpf:
		return MeterOpLpf
	case AluSelector:
		return MeterOpSelector
	case AluStateful:
		return MeterOpStateful
	}

	return MeterOpNone
}

func (a *AluSpec) validate(what string, stats bool) error {
	var errs []error

	if stats != (a.Kind == AluStats) || a.Kind == AluNone {
		errs = append(errs, ErrInvalidArgumentWithReason(what+" kind", a.Kind, "wrong alu kind"))
	}

	if a.Row < 0 || a.Row >= LogicalRows {
		errs = append(errs, ErrInvalidArgumentWithReason(what+" row", a.Row, "no such logical row"))
	}

	if len(a.Srams) == 0 {
		errs = append(errs, ErrInvalidArgumentWithReason(what+" srams", 0, "alu needs memory"))
	}

	for _, m := range a.Srams {
		errs = append(errs, m.validate(what+" sram"))
	}

	if a.ColorMapram != nil {
		errs = append(errs, a.ColorMapram.validate(what+" color mapram"))
	}

	if a.Operand != nil && PhvWordWidth(*a.Operand) == 0 {
		errs = append(errs, ErrInvalidArgument(what+" operand", *a.Operand))
	}

	if a.Kind == AluStateful {
		if a.Stateful == nil {
			errs = append(errs, ErrInvalidArgumentWithReason(what+" stateful", nil, "missing"))
		} else {
			errs = append(errs, a.Stateful.validate())
		}
	}

	return multierr.Combine(errs...)
}

// IdleSpec attaches idletime tracking to a direct table.
type IdleSpec struct {
	Mapram MemRef `json:"mapram"`
	Width  int    `json:"width"`
}

// TableSpec describes one logical table.
type TableSpec struct {
	Name  string     `json:"name"`
	Stage int        `json:"stage"`
	ID    int        `json:"id"`
	Gress Gress      `json:"gress"`
	Kind  MatchKind  `json:"kind"`
	Key   []KeyField `json:"key"`

	// Ways are the exact match SRAMs, one hash way each.
	Ways []MemRef `json:"ways,omitempty"`
	// Tcams index the stage TCAM units, Tind holds the ternary payloads.
	Tcams []int   `json:"tcams,omitempty"`
	Tind  *MemRef `json:"tind,omitempty"`

	PowerGated bool `json:"power_gated"`
	// MissNext is the next table on a miss; nil continues at the next stage.
	MissNext *NextTable `json:"miss_next,omitempty"`

	Action *ActionSpec `json:"action,omitempty"`
	Stats  *AluSpec    `json:"stats,omitempty"`
	Meter  *AluSpec    `json:"meter,omitempty"`
	Idle   *IdleSpec   `json:"idle,omitempty"`
}

// KeyWidth is the concatenated width of the key fields.
func (ts *TableSpec) KeyWidth() int {
	w := 0
	for _, k := range ts.Key {
		w += k.width()
	}

	return w
}

func (ts *TableSpec) validate() error {
	var errs []error

	name := "table " + ts.Name

	if ts.Name == "" {
		errs = append(errs, ErrInvalidArgument("table name", ts.Name))
	}

	if ts.ID < 0 || ts.ID >= LogicalTables {
		errs = append(errs, ErrInvalidArgumentWithReason(name+" id", ts.ID, "no such logical table"))
	}

	if ts.Gress == GressBoth {
		errs = append(errs, ErrInvalidArgumentWithReason(name+" gress", ts.Gress, "a table belongs to one gress"))
	}

	if len(ts.Key) == 0 {
		errs = append(errs, ErrInvalidArgumentWithReason(name+" key", 0, "empty key"))
	}

	for _, k := range ts.Key {
		if k.width() == 0 {
			errs = append(errs, ErrInvalidArgument(name+" key container", k.Container))
		}
	}

	switch ts.Kind {
	case MatchExact:
		if ts.KeyWidth() > MaxExactKeyWidth {
			errs = append(errs, ErrInvalidArgumentWithReason(name+" key width", ts.KeyWidth(), "too wide for exact match"))
		}

		if len(ts.Ways) == 0 {
			errs = append(errs, ErrInvalidArgumentWithReason(name+" ways", 0, "exact table needs ways"))
		}

		for _, w := range ts.Ways {
			errs = append(errs, w.validate(name+" way"))
		}
	case MatchTernary:
		if ts.KeyWidth() > 64 {
			errs = append(errs, ErrInvalidArgumentWithReason(name+" key width", ts.KeyWidth(), "too wide for tcam"))
		}

		if len(ts.Tcams) == 0 || ts.Tind == nil {
			errs = append(errs, ErrInvalidArgumentWithReason(name+" tcams", len(ts.Tcams), "ternary table needs tcams and tind"))
		}

		for _, t := range ts.Tcams {
			if t < 0 || t >= TcamsPerStage {
				errs = append(errs, ErrInvalidArgument(name+" tcam", t))
			}
		}

		if ts.Tind != nil {
			errs = append(errs, ts.Tind.validate(name+" tind"))
		}
	}

	if ts.Action != nil {
		switch ts.Action.EntryWidth {
		case 32, 64, 128:
		default:
			errs = append(errs, ErrInvalidArgumentWithReason(name+" action entry width", ts.Action.EntryWidth, "must be 32, 64 or 128"))
		}

		for _, m := range ts.Action.Srams {
			errs = append(errs, m.validate(name+" action sram"))
		}

		for _, op := range ts.Action.Ops {
			if PhvWordWidth(op.Dst) == 0 || !oneOf(op.Src, actionSrcs) || !oneOf(op.Op, actionOps) {
				errs = append(errs, ErrInvalidArgument(name+" action op", fmt.Sprintf("%+v", op)))
			}

			if op.Src == "data" && (len(ts.Action.Srams) == 0 || op.Width <= 0 || op.Width > 32 || op.Offset+op.Width > ts.Action.EntryWidth) {
				errs = append(errs, ErrInvalidArgumentWithReason(name+" action op", fmt.Sprintf("%+v", op), "bad data field"))
			}
		}
	}

	if ts.Stats != nil {
		errs = append(errs, ts.Stats.validate(name+" stats", true))
	}

	if ts.Meter != nil {
		errs = append(errs, ts.Meter.validate(name+" meter", false))
	}

	if ts.Idle != nil {
		errs = append(errs, ts.Idle.Mapram.validate(name+" idle mapram"))
		if _, ok := idleEntriesPerWord[ts.Idle.Width]; !ok {
			errs = append(errs, ErrInvalidArgument(name+" idle width", ts.Idle.Width))
		}
	}

	return multierr.Combine(errs...)
}
