// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

// Observer receives engine events. Implementations must be cheap; they run
// inline with packet processing.
type Observer interface {
	PacketProcessed(latencyCycles uint32, dropped bool)
	TableLookup(stage, table int, hit bool)
	MeterColor(stage int, c Color)
	RedDecision(stage int, drop bool)
	BusConflict(stage, row int, bus string)
}

type nopObserver struct{}

func (nopObserver) PacketProcessed(uint32, bool) {}
func (nopObserver) TableLookup(int, int, bool)   {}
func (nopObserver) MeterColor(int, Color)        {}
func (nopObserver) RedDecision(int, bool)        {}
func (nopObserver) BusConflict(int, int, string) {}
