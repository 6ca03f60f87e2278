// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"sync"

	"github.com/omec-project/mausim/logger"
	"github.com/omec-project/mausim/pkg/bitvector"
)

// Pipeline is the arena owning every stage. Packets pass through Process one
// at a time; table operations and register writes come from the control
// plane between packets.
type Pipeline struct {
	mu sync.Mutex

	conf   *SimulatorConfig
	obs    Observer
	Stages []*Stage

	tables map[string]*LogicalTable

	cycle uint64
	now   uint64
}

type PipelineOption func(*Pipeline)

// WithObserver routes engine events to obs.
func WithObserver(obs Observer) PipelineOption {
	return func(p *Pipeline) { p.obs = obs }
}

// NewPipeline builds the stages and loads conf.Program. Configuration
// violations in the program are returned as *ConfigError.
func NewPipeline(conf *SimulatorConfig, opts ...PipelineOption) (p *Pipeline, err error) {
	if err := validateConf(conf); err != nil {
		return nil, err
	}

	p = &Pipeline{
		conf:   conf,
		obs:    nopObserver{},
		tables: make(map[string]*LogicalTable),
	}

	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < conf.Stages; i++ {
		p.Stages = append(p.Stages, NewStage(conf, i, p.obs))
	}

	defer func() {
		if err != nil {
			p = nil
		}
	}()
	defer Recover(&err)

	for _, ts := range conf.Program.Tables {
		if _, ok := p.tables[ts.Name]; ok {
			return nil, ErrInvalidArgumentWithReason("table", ts.Name, "duplicate name")
		}

		p.tables[ts.Name] = p.Stages[ts.Stage].AddTable(ts)
	}

	p.recomputeDependencies()

	logger.MauLog.With("stages", conf.Stages, "tables", len(p.tables)).Infoln("pipeline ready")

	return p, nil
}

func (p *Pipeline) Config() *SimulatorConfig { return p.conf }

func (p *Pipeline) recomputeDependencies() {
	var prev *Dependencies

	for _, s := range p.Stages {
		s.Deps.Recompute(prev)
		prev = s.Deps
	}
}

// Latency returns the cycles from pipeline entry to the end-of-packet point
// of the last stage for g.
func (p *Pipeline) Latency(g Gress) uint32 {
	return p.Stages[len(p.Stages)-1].Deps.PipeLength(g)
}

// Cycle returns the number of the last processed packet cycle.
func (p *Pipeline) Cycle() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cycle
}

// Now returns the pipeline time in clock ticks.
func (p *Pipeline) Now() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.now
}

// AdvanceTime moves the clock forward by ticks.
func (p *Pipeline) AdvanceTime(ticks uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.now += ticks
}

// Process runs phv through every stage and returns the final PHV. Each call
// is one cycle and one clock tick.
func (p *Pipeline) Process(phv *Phv) *Phv {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cycle++
	p.now++

	clk := AluInput{Now: p.now, Cycle: p.cycle}
	in, out := phv, phv

	for _, s := range p.Stages {
		in, out = s.RunRead(in, out, clk)
	}

	for _, s := range p.Stages {
		s.RunWrite(out, clk)
	}

	g := Ingress
	if !out.Thread[Ingress] && out.Thread[Egress] {
		g = Egress
	}

	p.obs.PacketProcessed(p.Latency(g), out.Drop)

	return out
}

// Table returns a table by name.
func (p *Pipeline) Table(name string) (*LogicalTable, error) {
	t, ok := p.tables[name]
	if !ok {
		return nil, ErrNotFoundWithParam("table", "name", name)
	}

	return t, nil
}

// TableNames lists the loaded tables.
func (p *Pipeline) TableNames() []string {
	names := make([]string, 0, len(p.tables))
	for n := range p.tables {
		names = append(names, n)
	}

	return names
}

func (p *Pipeline) lookupTable(name string) (*LogicalTable, *Stage, error) {
	t, err := p.Table(name)
	if err != nil {
		return nil, nil, err
	}

	return t, p.Stages[t.stage], nil
}

// AddExactEntry inserts or modifies an exact match entry and returns its
// entry number.
func (p *Pipeline) AddExactEntry(table string, key uint64, next NextTable, ptr int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, s, err := p.lookupTable(table)
	if err != nil {
		return -1, err
	}

	return t.AddExact(s.Srams, key, next, ptr)
}

// AddTernaryEntry writes a ternary entry at index, which is its priority.
func (p *Pipeline) AddTernaryEntry(table string, index int, value, mask uint64, next NextTable, ptr int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, s, err := p.lookupTable(table)
	if err != nil {
		return err
	}

	return t.AddTernary(s.Srams, index, value, mask, next, ptr)
}

func (p *Pipeline) DeleteEntry(table string, entry int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, s, err := p.lookupTable(table)
	if err != nil {
		return err
	}

	return t.Delete(s.Srams, entry)
}

// WriteActionData stores the low EntryWidth bits of data as action entry ptr.
func (p *Pipeline) WriteActionData(table string, ptr int, data *bitvector.BitVector) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer Recover(&err)

	t, s, err := p.lookupTable(table)
	if err != nil {
		return err
	}

	a := t.Spec.Action
	if a == nil || len(a.Srams) == 0 {
		return ErrUnsupported("action data on table", table)
	}

	addr := t.actionAddress(ptr)

	mem := s.actionMem(t, addr)
	if mem == nil {
		return ErrInvalidArgumentWithReason("action pointer", ptr, "no memory")
	}

	off := addr.Subword * a.EntryWidth
	word := bitvector.New(SramWidth)
	mask := bitvector.New(SramWidth)

	for i := 0; i < a.EntryWidth; i += 64 {
		n := min(64, a.EntryWidth-i)
		word.SetWord(off+i, n, data.GetWord(i, n))
		mask.SetWord(off+i, n, ^uint64(0))
	}

	mem.SetMasked(addr.Index, word, mask)

	return nil
}

// aluTarget resolves the ALU and memory word behind entry of a table's stats
// or meter attachment.
func (p *Pipeline) aluTarget(table string, meter bool, entry int) (AluUnit, *Sram, Address, error) {
	t, s, err := p.lookupTable(table)
	if err != nil {
		return nil, nil, Address{}, err
	}

	spec := t.Spec.Stats
	if meter {
		spec = t.Spec.Meter
	}

	if spec == nil {
		return nil, nil, Address{}, ErrNotFoundWithParam("alu", "table", table)
	}

	a := t.aluAddress(spec, MatchResult{Entry: entry, Ptr: entry})
	row := s.Rows[spec.Row]

	mem, ok := row.memFor(s.Srams, a).(*Sram)
	if !ok || mem == nil {
		return nil, nil, Address{}, ErrInvalidArgumentWithReason("entry", entry, "no memory")
	}

	return row.Alu, mem, a, nil
}

// ConfigureMeter programs a token bucket meter entry. The write is a
// configuration write in the current cycle.
func (p *Pipeline) ConfigureMeter(table string, entry int, cfg MeterConfig) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer Recover(&err)

	alu, mem, a, err := p.aluTarget(table, true, entry)
	if err != nil {
		return err
	}

	m, ok := alu.(*Meter)
	if !ok {
		return ErrUnsupported("meter config on alu", alu.Kind())
	}

	m.ConfigWrite(mem, a.Index, EncodeMeterWord(cfg, p.conf.ClockHz, p.conf.MeterTimeShift).Pack(), p.cycle)

	return nil
}

// ConfigureLpf programs an LPF/RED entry.
func (p *Pipeline) ConfigureLpf(table string, entry int, lw LpfWord) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer Recover(&err)

	alu, mem, a, err := p.aluTarget(table, true, entry)
	if err != nil {
		return err
	}

	m, ok := alu.(*LpfMeter)
	if !ok {
		return ErrUnsupported("lpf config on alu", alu.Kind())
	}

	m.ConfigWrite(mem, a.Index, lw.Pack(), p.cycle)

	return nil
}

// ConfigureSelector sets the live members of a selector group.
func (p *Pipeline) ConfigureSelector(table string, group int, members []int) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer Recover(&err)

	alu, mem, a, err := p.aluTarget(table, true, group)
	if err != nil {
		return err
	}

	if alu.Kind() != AluSelector {
		return ErrUnsupported("selector config on alu", alu.Kind())
	}

	mem.Set(a.Index, SelectorWord(members...))

	return nil
}

// ReadStateful returns the lo and hi registers of a stateful entry.
func (p *Pipeline) ReadStateful(table string, entry int) (lo, hi uint32, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer Recover(&err)

	alu, mem, a, err := p.aluTarget(table, true, entry)
	if err != nil {
		return 0, 0, err
	}

	if alu.Kind() != AluStateful {
		return 0, 0, ErrUnsupported("stateful read on alu", alu.Kind())
	}

	w, _ := mem.Get(a.Index)
	off := (a.Subword & 1) * 64

	return uint32(w.GetWord(off, 32)), uint32(w.GetWord(off+32, 32)), nil
}

// ReadStats returns the counters of a stats entry.
func (p *Pipeline) ReadStats(table string, entry int) (packets, bytes uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer Recover(&err)

	alu, mem, a, err := p.aluTarget(table, false, entry)
	if err != nil {
		return 0, 0, err
	}

	st, ok := alu.(*Stats)
	if !ok {
		return 0, 0, ErrUnsupported("stats read on alu", alu.Kind())
	}

	w, _ := mem.Get(a.Index)
	packets, bytes = st.Counters(w, a.Subword)

	return packets, bytes, nil
}

// IdleMaprams returns every idletime mapram of the pipeline.
func (p *Pipeline) IdleMaprams() []*Mapram {
	var out []*Mapram
	for _, s := range p.Stages {
		out = append(out, s.IdleMaprams()...)
	}

	return out
}
