// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

// Package p4rt applies P4Runtime writes to a pipeline.
//
// A P4Info table maps to the pipeline table named by its alias (or its name
// when there is no alias). Match fields are concatenated in P4Info order,
// first field in the high bits, into the pipeline key. Two action
// parameters are reserved: next_table sets the entry's next table and ptr
// its action pointer. The remaining parameters are packed low bit first
// into the action data word.
package p4rt

import (
	"fmt"
	"sync"

	"github.com/antoninbas/p4runtime-go-client/pkg/util/conversion"
	mapset "github.com/deckarep/golang-set"
	p4ConfigV1 "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4 "github.com/p4lang/p4runtime/go/p4/v1"
	"go.uber.org/multierr"

	"github.com/omec-project/mausim/logger"
	"github.com/omec-project/mausim/mau"
	"github.com/omec-project/mausim/pkg/bitvector"
	"github.com/omec-project/mausim/pkg/utils"
)

const (
	invalidID = 0

	ParamNextTable = "next_table"
	ParamPtr       = "ptr"
)

// Target is the pipeline surface the translator drives. *mau.Pipeline
// implements it.
type Target interface {
	Table(name string) (*mau.LogicalTable, error)
	AddExactEntry(table string, key uint64, next mau.NextTable, ptr int) (int, error)
	AddTernaryEntry(table string, index int, value, mask uint64, next mau.NextTable, ptr int) error
	DeleteEntry(table string, entry int) error
	WriteActionData(table string, ptr int, data *bitvector.BitVector) error
	ConfigureMeter(table string, entry int, cfg mau.MeterConfig) error
	ReadStats(table string, entry int) (packets, bytes uint64, err error)
}

type installed struct {
	entry     int
	ptr       int
	allocated bool
}

type Translator struct {
	p4Info *p4ConfigV1.P4Info
	target Target

	mu      sync.Mutex
	entries map[string]installed
	// ptrs holds the pointers in use per table.
	ptrs map[string]mapset.Set
}

func NewTranslator(p4info *p4ConfigV1.P4Info, target Target) *Translator {
	return &Translator{
		p4Info:  p4info,
		target:  target,
		entries: make(map[string]installed),
		ptrs:    make(map[string]mapset.Set),
	}
}

// Write applies every update in order. A failed update does not stop the
// ones after it; all failures are returned together.
func (t *Translator) Write(req *p4.WriteRequest) error {
	var errs error

	for i, u := range req.GetUpdates() {
		if err := t.Apply(u); err != nil {
			logger.P4Log.With("update", i).Warnln("update failed:", err)
			errs = multierr.Append(errs, fmt.Errorf("update %d: %w", i, err))
		}
	}

	return errs
}

// Apply applies one update.
func (t *Translator) Apply(u *p4.Update) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := u.GetEntity()

	switch {
	case e.GetTableEntry() != nil:
		return t.applyTableEntry(u.GetType(), e.GetTableEntry())
	case e.GetMeterEntry() != nil:
		if u.GetType() != p4.Update_MODIFY {
			return mau.ErrUnsupported("meter update type", u.GetType())
		}

		return t.applyMeterEntry(e.GetMeterEntry())
	case e.GetDirectMeterEntry() != nil:
		if u.GetType() != p4.Update_MODIFY {
			return mau.ErrUnsupported("direct meter update type", u.GetType())
		}

		return t.applyDirectMeterEntry(e.GetDirectMeterEntry())
	default:
		return mau.ErrUnsupported("entity", e)
	}
}

func (t *Translator) pipelineTable(entry *p4.TableEntry) (*p4ConfigV1.Table, *mau.LogicalTable, error) {
	p4Table, err := t.getTableByID(entry.GetTableId())
	if err != nil {
		return nil, nil, err
	}

	lt, err := t.target.Table(engineName(p4Table.GetPreamble()))
	if err != nil {
		return nil, nil, err
	}

	width := 0
	for _, mf := range p4Table.GetMatchFields() {
		width += int(mf.GetBitwidth())
	}

	if width != lt.Spec.KeyWidth() {
		return nil, nil, mau.ErrInvalidArgumentWithReason("p4 table key width", width,
			fmt.Sprintf("pipeline table %s keys %d bits", lt.Name(), lt.Spec.KeyWidth()))
	}

	return p4Table, lt, nil
}

// toUint64 converts a P4Runtime bytestring that must fit in width bits.
func toUint64(b []byte, width int) (uint64, error) {
	b = conversion.ToCanonicalBytestring(b)
	if len(b) > 8 {
		return 0, mau.ErrInvalidArgumentWithReason("bytestring", b, "wider than 64 bits")
	}

	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}

	if v > utils.Mask64(uint(width)) {
		return 0, mau.ErrInvalidArgumentWithReason("bytestring", v, fmt.Sprintf("wider than %d bits", width))
	}

	return v, nil
}

func prefixMask(prefixLen, width int) uint64 {
	return utils.Mask64(uint(width)) &^ utils.Mask64(uint(width-prefixLen))
}

// matchKey builds the pipeline value and mask of an entry. Omitted ternary
// and LPM fields are wildcards; omitted exact fields are an error.
func matchKey(p4Table *p4ConfigV1.Table, fields []*p4.FieldMatch) (value, mask uint64, err error) {
	width := 0

	for _, fm := range fields {
		if getMatchFieldByID(p4Table, fm.GetFieldId()) == nil {
			return 0, 0, mau.ErrNotFoundWithParam("match field", "id", fm.GetFieldId())
		}
	}

	for _, mf := range p4Table.GetMatchFields() {
		w := int(mf.GetBitwidth())
		if width += w; width > 64 {
			return 0, 0, mau.ErrUnsupported("key width", width)
		}

		var fm *p4.FieldMatch

		for _, f := range fields {
			if f.GetFieldId() == mf.GetId() {
				fm = f
				break
			}
		}

		var v, m uint64

		switch {
		case fm == nil:
			if mf.GetMatchType() == p4ConfigV1.MatchField_EXACT {
				return 0, 0, mau.ErrInvalidArgumentWithReason("match field", mf.GetName(), "exact field missing")
			}
		case fm.GetExact() != nil:
			if v, err = toUint64(fm.GetExact().GetValue(), w); err != nil {
				return 0, 0, err
			}

			m = utils.Mask64(uint(w))
		case fm.GetTernary() != nil:
			if v, err = toUint64(fm.GetTernary().GetValue(), w); err != nil {
				return 0, 0, err
			}

			if m, err = toUint64(fm.GetTernary().GetMask(), w); err != nil {
				return 0, 0, err
			}
		case fm.GetLpm() != nil:
			plen := int(fm.GetLpm().GetPrefixLen())
			if plen < 0 || plen > w {
				return 0, 0, mau.ErrInvalidArgumentWithReason("prefix length", plen, mf.GetName())
			}

			if v, err = toUint64(fm.GetLpm().GetValue(), w); err != nil {
				return 0, 0, err
			}

			m = prefixMask(plen, w)
		default:
			return 0, 0, mau.ErrUnsupported("match type of field", mf.GetName())
		}

		value = value<<uint(w) | v&m
		mask = mask<<uint(w) | m
	}

	return value, mask, nil
}

func entryKey(table string, value, mask uint64, priority int32) string {
	return fmt.Sprintf("%s/%#x/%#x/%d", table, value, mask, priority)
}

type actionParams struct {
	next    mau.NextTable
	ptr     int
	hasPtr  bool
	data    *bitvector.BitVector
	hasData bool
}

func (t *Translator) buildAction(lt *mau.LogicalTable, ta *p4.TableAction) (*actionParams, error) {
	ap := &actionParams{next: lt.MissNext()}

	action := ta.GetAction()
	if action == nil {
		return nil, mau.ErrUnsupported("table action", ta)
	}

	p4Action, err := t.getActionByID(action.GetActionId())
	if err != nil {
		return nil, err
	}

	dataWidth := 0
	if spec := lt.Spec.Action; spec != nil {
		dataWidth = spec.EntryWidth
		ap.data = bitvector.New(dataWidth)
	}

	off := 0

	for _, param := range p4Action.GetParams() {
		var (
			value []byte
			found bool
		)

		for _, p := range action.GetParams() {
			if p.GetParamId() == param.GetId() {
				value, found = p.GetValue(), true
			}
		}

		special := param.GetName() == ParamNextTable || param.GetName() == ParamPtr
		if special && !found {
			continue
		}

		w := int(param.GetBitwidth())

		v, err := toUint64(value, w)
		if err != nil {
			return nil, err
		}

		switch param.GetName() {
		case ParamNextTable:
			ap.next = mau.NextTable(v)
		case ParamPtr:
			ap.ptr, ap.hasPtr = int(v), true
		default:
			if off+w > dataWidth {
				return nil, mau.ErrInvalidArgumentWithReason("action param", param.GetName(), "does not fit the action data word")
			}

			ap.data.SetWord(off, w, v)
			ap.hasData = true
			off += w
		}
	}

	for _, p := range action.GetParams() {
		if getActionParamByID(p4Action, p.GetParamId()) == nil {
			return nil, mau.ErrNotFoundWithParam("action param", "id", p.GetParamId())
		}
	}

	return ap, nil
}

func (t *Translator) usedPtrs(table string) mapset.Set {
	s, ok := t.ptrs[table]
	if !ok {
		s = mapset.NewSet()
		t.ptrs[table] = s
	}

	return s
}

// allocPtr returns the lowest pointer not in use by table.
func (t *Translator) allocPtr(table string) int {
	used := t.usedPtrs(table)

	ptr := 0
	for used.Contains(ptr) {
		ptr++
	}

	used.Add(ptr)

	return ptr
}

func (t *Translator) releasePtr(table string, rec installed) {
	if rec.allocated {
		t.usedPtrs(table).Remove(rec.ptr)
	}
}

func (t *Translator) applyTableEntry(typ p4.Update_Type, entry *p4.TableEntry) error {
	if entry.GetIsDefaultAction() {
		return mau.ErrUnsupported("default action", entry.GetTableId())
	}

	p4Table, lt, err := t.pipelineTable(entry)
	if err != nil {
		return err
	}

	name := lt.Name()

	value, mask, err := matchKey(p4Table, entry.GetMatch())
	if err != nil {
		return err
	}

	ternary := lt.Spec.Kind == mau.MatchTernary
	if !ternary && mask != utils.Mask64(uint(lt.Spec.KeyWidth())) {
		return mau.ErrInvalidArgumentWithReason("table entry", name, "exact table takes full masks only")
	}

	key := entryKey(name, value, mask, entry.GetPriority())
	rec, exists := t.entries[key]

	entryLog := logger.P4Log.With("table", name, "key", key, "type", typ.String())

	switch typ {
	case p4.Update_INSERT:
		if exists {
			return mau.ErrAlreadyExists("table entry", key)
		}
	case p4.Update_MODIFY:
		if !exists {
			return mau.ErrNotFoundWithParam("table entry", "key", key)
		}
	case p4.Update_DELETE:
		if !exists {
			return mau.ErrNotFoundWithParam("table entry", "key", key)
		}

		if err := t.target.DeleteEntry(name, rec.entry); err != nil {
			return err
		}

		t.releasePtr(name, rec)
		delete(t.entries, key)
		entryLog.Debugln("entry deleted")

		return nil
	default:
		return mau.ErrUnsupported("update type", typ)
	}

	ap, err := t.buildAction(lt, entry.GetAction())
	if err != nil {
		return err
	}

	next := rec
	fresh := false

	switch {
	case ap.hasPtr:
		// Naming the pointer the entry already owns keeps it allocated.
		next.ptr = ap.ptr
		next.allocated = exists && rec.allocated && rec.ptr == ap.ptr
	case !exists || !rec.allocated:
		next.ptr, next.allocated = t.allocPtr(name), true
		fresh = true
	}

	undo := func() {
		if fresh {
			t.releasePtr(name, next)
		}
	}

	if ap.hasData {
		if err := t.target.WriteActionData(name, next.ptr, ap.data); err != nil {
			undo()
			return err
		}
	}

	if ternary {
		next.entry = int(entry.GetPriority())
		err = t.target.AddTernaryEntry(name, next.entry, value, mask, ap.next, next.ptr)
	} else {
		next.entry, err = t.target.AddExactEntry(name, value, ap.next, next.ptr)
	}

	if err != nil {
		undo()
		return err
	}

	if exists && rec.allocated && (!next.allocated || rec.ptr != next.ptr) {
		t.releasePtr(name, rec)
	}

	t.entries[key] = next
	entryLog.With("entry", next.entry, "ptr", next.ptr).Debugln("entry written")

	return nil
}

// lookupEntry returns the pipeline entry behind a table entry key.
func (t *Translator) lookupEntry(entry *p4.TableEntry) (*mau.LogicalTable, installed, error) {
	p4Table, lt, err := t.pipelineTable(entry)
	if err != nil {
		return nil, installed{}, err
	}

	value, mask, err := matchKey(p4Table, entry.GetMatch())
	if err != nil {
		return nil, installed{}, err
	}

	key := entryKey(lt.Name(), value, mask, entry.GetPriority())

	rec, ok := t.entries[key]
	if !ok {
		return nil, installed{}, mau.ErrNotFoundWithParam("table entry", "key", key)
	}

	return lt, rec, nil
}

// aluIndex picks the entry number for direct attachments and the pointer
// otherwise.
func aluIndex(spec *mau.AluSpec, rec installed) int {
	if spec != nil && spec.Direct {
		return rec.entry
	}

	return rec.ptr
}

func meterConfig(c *p4.MeterConfig) (mau.MeterConfig, error) {
	if c == nil {
		return mau.MeterConfig{}, nil
	}

	if c.GetCir() < 0 || c.GetCburst() < 0 || c.GetPir() < 0 || c.GetPburst() < 0 {
		return mau.MeterConfig{}, mau.ErrInvalidArgument("meter config", c)
	}

	return mau.MeterConfig{
		CIR:    uint64(c.GetCir()),
		CBurst: uint64(c.GetCburst()),
		PIR:    uint64(c.GetPir()),
		PBurst: uint64(c.GetPburst()),
	}, nil
}

func (t *Translator) applyMeterEntry(me *p4.MeterEntry) error {
	meter, err := t.getMeterByID(me.GetMeterId())
	if err != nil {
		return err
	}

	cfg, err := meterConfig(me.GetConfig())
	if err != nil {
		return err
	}

	idx := me.GetIndex().GetIndex()
	if me.GetIndex() == nil || idx < 0 || (meter.GetSize() > 0 && idx >= meter.GetSize()) {
		return mau.ErrInvalidArgumentWithReason("meter index", idx, engineName(meter.GetPreamble()))
	}

	return t.target.ConfigureMeter(engineName(meter.GetPreamble()), int(idx), cfg)
}

func (t *Translator) applyDirectMeterEntry(dme *p4.DirectMeterEntry) error {
	lt, rec, err := t.lookupEntry(dme.GetTableEntry())
	if err != nil {
		return err
	}

	cfg, err := meterConfig(dme.GetConfig())
	if err != nil {
		return err
	}

	return t.target.ConfigureMeter(lt.Name(), aluIndex(lt.Spec.Meter, rec), cfg)
}

// ReadCounter fills the data of an indirect counter entry.
func (t *Translator) ReadCounter(ce *p4.CounterEntry) (*p4.CounterEntry, error) {
	counter, err := t.getCounterByID(ce.GetCounterId())
	if err != nil {
		return nil, err
	}

	idx := ce.GetIndex().GetIndex()
	if ce.GetIndex() == nil || idx < 0 || (counter.GetSize() > 0 && idx >= counter.GetSize()) {
		return nil, mau.ErrInvalidArgumentWithReason("counter index", idx, engineName(counter.GetPreamble()))
	}

	packets, bytes, err := t.target.ReadStats(engineName(counter.GetPreamble()), int(idx))
	if err != nil {
		return nil, err
	}

	return &p4.CounterEntry{
		CounterId: ce.GetCounterId(),
		Index:     &p4.Index{Index: idx},
		Data:      &p4.CounterData{ByteCount: int64(bytes), PacketCount: int64(packets)},
	}, nil
}

// ReadDirectCounter fills the data of the counter attached to a table entry.
func (t *Translator) ReadDirectCounter(dce *p4.DirectCounterEntry) (*p4.DirectCounterEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lt, rec, err := t.lookupEntry(dce.GetTableEntry())
	if err != nil {
		return nil, err
	}

	packets, bytes, err := t.target.ReadStats(lt.Name(), aluIndex(lt.Spec.Stats, rec))
	if err != nil {
		return nil, err
	}

	return &p4.DirectCounterEntry{
		TableEntry: dce.GetTableEntry(),
		Data:       &p4.CounterData{ByteCount: int64(bytes), PacketCount: int64(packets)},
	}, nil
}

// Entries returns the number of installed table entries.
func (t *Translator) Entries() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}
