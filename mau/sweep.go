// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"context"

	"github.com/omec-project/mausim/logger"
)

// SweepTimeInfo schedules a round-robin sweep over a number of buckets. A
// bucket falls due every 2^IntervalExp ticks.
type SweepTimeInfo struct {
	IntervalExp uint
	Buckets     int

	next   uint64
	bucket int
}

func NewSweepTimeInfo(intervalExp uint, buckets int) *SweepTimeInfo {
	return &SweepTimeInfo{IntervalExp: intervalExp, Buckets: buckets, next: uint64(1) << intervalExp}
}

func (s *SweepTimeInfo) period() uint64 { return uint64(1) << s.IntervalExp }

// Due returns the buckets whose sweep time passed since the last call, in
// sweep order. A caller that falls behind by more than one revolution sweeps
// each bucket once and resumes on the current period.
func (s *SweepTimeInfo) Due(now uint64) []int {
	if s.Buckets <= 0 {
		return nil
	}

	var due []int

	for now >= s.next && len(due) < s.Buckets {
		due = append(due, s.bucket)
		s.bucket = (s.bucket + 1) % s.Buckets
		s.next += s.period()
	}

	if now >= s.next {
		s.next = (now>>s.IntervalExp + 1) << s.IntervalExp
	}

	return due
}

// NextSweep returns the time the next bucket falls due.
func (s *SweepTimeInfo) NextSweep() uint64 { return s.next }

// IdleExpiry identifies an entry whose idletime counter saturated.
type IdleExpiry struct {
	Stage   int
	Row     int
	Col     int
	Index   int
	Subword int
}

// Sweeper ages idletime maprams in the background. Each mapram is one bucket.
type Sweeper struct {
	info    *SweepTimeInfo
	maprams []*Mapram

	OnExpire func(IdleExpiry)
}

func NewSweeper(conf *SimulatorConfig, maprams []*Mapram) *Sweeper {
	return &Sweeper{
		info:    NewSweepTimeInfo(conf.SweepIntervalExp, len(maprams)),
		maprams: maprams,
	}
}

func (s *Sweeper) Info() *SweepTimeInfo { return s.info }

// SweepAt ages every bucket due at now and returns the number of entries
// that expired.
func (s *Sweeper) SweepAt(now uint64) int {
	n := 0

	for _, b := range s.info.Due(now) {
		m := s.maprams[b]

		for idx := 0; idx < m.Depth(); idx++ {
			for _, sub := range m.AgeWord(idx) {
				n++

				if s.OnExpire != nil {
					s.OnExpire(IdleExpiry{Stage: m.stage, Row: m.Row, Col: m.Col, Index: idx, Subword: sub})
				}
			}
		}
	}

	return n
}

// Run sweeps on every tick read from clock until ctx is done or clock is
// closed.
func (s *Sweeper) Run(ctx context.Context, clock <-chan uint64) error {
	logger.MauLog.With("maprams", len(s.maprams), "interval_exp", s.info.IntervalExp).Infoln("sweeper started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now, ok := <-clock:
			if !ok {
				return nil
			}

			if n := s.SweepAt(now); n > 0 {
				logger.MauLog.With("now", now, "expired", n).Debugln("idletime sweep")
			}
		}
	}
}
