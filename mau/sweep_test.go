// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapramColor(t *testing.T) {
	m := NewMapram(DefaultConfig(), 0, 1, 2)
	m.ConfigureColor(4, 4)

	for sub, c := range []Color{Green, Yellow, Red, Yellow} {
		require.True(t, m.WriteColor(Address{Vpn: 4, Index: 10, Subword: sub}, c))
	}

	assert.Equal(t, Red, m.ReadColor(Address{Vpn: 4, Index: 10, Subword: 2}))
	assert.Equal(t, Yellow, m.ReadColor(Address{Vpn: 4, Index: 10, Subword: 3}))
	assert.True(t, m.HoldsVpn(4))
	assert.False(t, m.HoldsVpn(5))

	requireConfigPanic(t, func() { m.IdleEntriesPerWord() })
}

func TestMapramIdle(t *testing.T) {
	t.Run("unsupported width panics", func(t *testing.T) {
		m := NewMapram(DefaultConfig(), 0, 0, 0)
		requireConfigPanic(t, func() { m.ConfigureIdle(4, 0, 0) })
	})

	for width, per := range idleEntriesPerWord {
		m := NewMapram(DefaultConfig(), 0, 0, 0)
		m.ConfigureIdle(width, 0, 0)
		assert.Equal(t, per, m.IdleEntriesPerWord(), "width %d", width)
		assert.LessOrEqual(t, width*per, MapramWidth)
	}

	t.Run("counters age and reset on hit", func(t *testing.T) {
		m := NewMapram(DefaultConfig(), 0, 0, 0)
		m.ConfigureIdle(2, 0, 0)

		a := EntryAddress(AddrIdle, 5, m.IdleEntriesPerWord(), 0)
		require.Equal(t, 1, a.Index)
		require.Equal(t, 1, a.Subword)

		assert.Empty(t, m.AgeWord(1))
		assert.Empty(t, m.AgeWord(1))
		assert.Equal(t, []int{0, 1, 2, 3}, m.AgeWord(1))
		assert.Empty(t, m.AgeWord(1), "saturated counters expire once")
		assert.Equal(t, uint64(3), m.IdleValue(a))

		require.True(t, m.IdleHit(a))
		assert.Zero(t, m.IdleValue(a))
		assert.Equal(t, uint64(3), m.IdleValue(EntryAddress(AddrIdle, 4, 4, 0)))
	})
}

func TestSweepTimeInfo(t *testing.T) {
	t.Run("one bucket per interval", func(t *testing.T) {
		s := NewSweepTimeInfo(4, 3)
		assert.Equal(t, uint64(16), s.NextSweep())

		assert.Empty(t, s.Due(15))
		assert.Equal(t, []int{0}, s.Due(16))
		assert.Empty(t, s.Due(20))
		assert.Equal(t, []int{1, 2}, s.Due(48))
		assert.Equal(t, []int{0}, s.Due(64))
		assert.Equal(t, uint64(80), s.NextSweep())
	})

	t.Run("falling behind sweeps each bucket once", func(t *testing.T) {
		s := NewSweepTimeInfo(4, 3)

		assert.Equal(t, []int{0, 1, 2}, s.Due(1000))
		assert.Equal(t, uint64(1008), s.NextSweep())
		assert.Equal(t, []int{0}, s.Due(1008))
	})

	t.Run("no buckets", func(t *testing.T) {
		assert.Nil(t, NewSweepTimeInfo(4, 0).Due(1<<20))
	})
}

func newIdleMaprams(n int) []*Mapram {
	var out []*Mapram

	for i := 0; i < n; i++ {
		m := NewMapram(DefaultConfig(), 0, i, 0)
		m.ConfigureIdle(1, 0, 0)
		out = append(out, m)
	}

	return out
}

func TestSweeper(t *testing.T) {
	conf := DefaultConfig()
	conf.SweepIntervalExp = 2

	t.Run("width one counters expire on first sweep", func(t *testing.T) {
		maprams := newIdleMaprams(2)
		sw := NewSweeper(conf, maprams)

		var expired []IdleExpiry
		sw.OnExpire = func(e IdleExpiry) { expired = append(expired, e) }

		n := sw.SweepAt(4)
		assert.Equal(t, SramDepth*8, n)
		assert.Len(t, expired, n)
		assert.Equal(t, IdleExpiry{Row: 0, Index: 0, Subword: 0}, expired[0])

		// Buckets are swept round robin; saturated counters stay quiet.
		assert.Equal(t, SramDepth*8, sw.SweepAt(8))
		assert.Zero(t, sw.SweepAt(12))

		require.True(t, maprams[1].IdleHit(Address{Index: 3, Subword: 2}))
		assert.Zero(t, sw.SweepAt(15), "not due yet")
		assert.Equal(t, 1, sw.SweepAt(16))
		assert.Equal(t, IdleExpiry{Row: 1, Index: 3, Subword: 2}, expired[len(expired)-1])
	})

	t.Run("run stops on cancel", func(t *testing.T) {
		sw := NewSweeper(conf, newIdleMaprams(1))

		var got []IdleExpiry
		sw.OnExpire = func(e IdleExpiry) { got = append(got, e) }

		ctx, cancel := context.WithCancel(context.Background())
		clock := make(chan uint64)
		done := make(chan error)

		go func() { done <- sw.Run(ctx, clock) }()

		clock <- 4
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("sweeper did not stop")
		}

		assert.Len(t, got, SramDepth*8)
	})

	t.Run("run stops when the clock closes", func(t *testing.T) {
		sw := NewSweeper(conf, newIdleMaprams(1))
		clock := make(chan uint64)
		close(clock)

		assert.NoError(t, sw.Run(context.Background(), clock))
	})
}
