// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testObserver records engine events.
type testObserver struct {
	packets   int
	drops     int
	latency   uint32
	lookups   map[int]int
	hits      map[int]int
	colors    []Color
	red       []bool
	conflicts []string
}

func newTestObserver() *testObserver {
	return &testObserver{lookups: make(map[int]int), hits: make(map[int]int)}
}

func (o *testObserver) PacketProcessed(latency uint32, dropped bool) {
	o.packets++
	o.latency = latency

	if dropped {
		o.drops++
	}
}

func (o *testObserver) TableLookup(stage, table int, hit bool) {
	o.lookups[stage*LogicalTables+table]++
	if hit {
		o.hits[stage*LogicalTables+table]++
	}
}

func (o *testObserver) MeterColor(_ int, c Color)        { o.colors = append(o.colors, c) }
func (o *testObserver) RedDecision(_ int, drop bool)     { o.red = append(o.red, drop) }
func (o *testObserver) BusConflict(_, _ int, bus string) { o.conflicts = append(o.conflicts, bus) }

func TestRouteBus(t *testing.T) {
	for _, scenario := range []struct {
		description string
		from, to    int
		expected    BusKind
	}{
		{"same row uses the home bus", 4, 4, BusStats},
		{"upward on the same side", 2, 6, BusOverflow},
		{"upward crossing sides", 2, 7, BusOverflow2},
	} {
		t.Run(scenario.description, func(t *testing.T) {
			assert.Equal(t, scenario.expected, RouteBus(0, scenario.from, scenario.to, BusStats))
		})
	}

	t.Run("downward route panics", func(t *testing.T) {
		ce := requireConfigPanic(t, func() { RouteBus(5, 6, 2, BusMeter) })
		assert.Equal(t, 5, ce.Stage)
	})
}

func TestLogicalRowDrive(t *testing.T) {
	t.Run("first driver owns the bus", func(t *testing.T) {
		r := NewLogicalRow(DefaultConfig(), 0, 3, nopObserver{})
		require.True(t, r.Drive(BusMeter, 1, 0xabc))

		v, ok := r.Read(BusMeter)
		require.True(t, ok)
		assert.Equal(t, uint32(0xabc), v)

		_, ok = r.Read(BusStats)
		assert.False(t, ok)
	})

	t.Run("same value from a second table is no conflict", func(t *testing.T) {
		r := NewLogicalRow(DefaultConfig(), 0, 3, nopObserver{})
		require.True(t, r.Drive(BusMeter, 1, 0xabc))
		assert.True(t, r.Drive(BusMeter, 2, 0xabc))
		assert.Zero(t, r.Conflicts())
	})

	t.Run("conflicting values panic", func(t *testing.T) {
		obs := newTestObserver()
		r := NewLogicalRow(DefaultConfig(), 2, 3, obs)
		require.True(t, r.Drive(BusOverflow, 1, 0xabc))

		requireConfigPanic(t, func() { r.Drive(BusOverflow, 2, 0xdef) })
		assert.Equal(t, []string{"overflow"}, obs.conflicts)
	})

	t.Run("relaxed conflict keeps the first value", func(t *testing.T) {
		conf := DefaultConfig()
		conf.RelaxMultiWriteCheck = true

		obs := newTestObserver()
		r := NewLogicalRow(conf, 0, 3, obs)
		require.True(t, r.Drive(BusAction, 1, 0xabc))
		assert.False(t, r.Drive(BusAction, 2, 0xdef))

		v, _ := r.Read(BusAction)
		assert.Equal(t, uint32(0xabc), v)
		assert.Equal(t, 1, r.Conflicts())
		assert.Len(t, obs.conflicts, 1)
	})

	t.Run("new cycle releases the buses", func(t *testing.T) {
		r := NewLogicalRow(DefaultConfig(), 0, 3, nopObserver{})
		require.True(t, r.Drive(BusMeter, 1, 0xabc))
		r.BeginCycle()
		assert.True(t, r.Drive(BusMeter, 2, 0xdef))
	})
}

func TestLogicalRowFetchAddresses(t *testing.T) {
	conf := DefaultConfig()
	srams := []*Sram{NewSram(conf, 0, 0, 0), NewSram(conf, 0, 0, 1)}
	srams[0].Configure(RoleStateful, 0, 0, Ingress)
	srams[1].Configure(RoleStateful, 1, 1, Ingress)

	newRow := func() *LogicalRow {
		r := NewLogicalRow(conf, 0, 0, nopObserver{})
		r.Alu = NewStateful(StatefulSpec{LoOp: "add", Output: "lo"})
		r.AluSrams = []int{0, 1}
		r.Operand = 5

		return r
	}

	phv := NewPhv()
	phv.Set(5, 10)

	t.Run("home bus", func(t *testing.T) {
		r := newRow()
		a := EntryAddress(AddrMeter, 2*SramDepth+7, 2, 0)
		r.Drive(BusMeter, 0, a.Pack())
		r.FetchAddresses()

		got, ok := r.Latched()
		require.True(t, ok)
		assert.Equal(t, 1, got.Vpn)

		r.RunAlusWithPhv(srams, AluInput{}, phv)
		r.RunAlusWithPhv(srams, AluInput{}, phv)
		assert.Equal(t, uint32(20), r.Output().Data)

		w, _ := srams[1].Get(got.Index)
		assert.Equal(t, uint64(20), w.GetWord(64, 32))
	})

	t.Run("overflow bus", func(t *testing.T) {
		r := newRow()
		r.Drive(BusOverflow2, 4, EntryAddress(AddrMeter, 3, 2, 0).Pack())
		r.FetchAddresses()

		_, ok := r.Latched()
		assert.True(t, ok)
	})

	t.Run("address without enable is ignored", func(t *testing.T) {
		r := newRow()
		a := EntryAddress(AddrMeter, 3, 2, 0)
		a.Pfe = false
		r.Drive(BusMeter, 0, a.Pack())
		r.FetchAddresses()

		_, ok := r.Latched()
		assert.False(t, ok)

		r.RunAlusWithPhv(srams, AluInput{}, phv)
		assert.False(t, r.Output().Valid)
	})

	t.Run("stats alu waits for end of packet", func(t *testing.T) {
		r := NewLogicalRow(conf, 0, 0, nopObserver{})
		r.Alu = NewStats(StatsPackets)
		r.AluSrams = []int{0}

		r.Drive(BusStats, 0, EntryAddress(AddrStats, 1, 4, 0).Pack())
		r.FetchAddresses()
		r.RunAlusWithPhv(srams, AluInput{}, phv)
		assert.False(t, r.Output().Valid)

		r.RunAlusWithState(srams, AluInput{PacketLen: 64})
		assert.True(t, r.Output().Valid)
	})

	t.Run("vpn outside every memory", func(t *testing.T) {
		r := newRow()
		r.Drive(BusMeter, 0, EntryAddress(AddrMeter, 5*SramDepth*2, 2, 0).Pack())
		r.FetchAddresses()

		requireConfigPanic(t, func() { r.RunAlusWithPhv(srams, AluInput{}, phv) })
	})
}
