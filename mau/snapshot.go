// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"github.com/omec-project/mausim/logger"
)

type SnapshotState uint8

const (
	SnapshotDisabled SnapshotState = iota
	SnapshotArmed
	SnapshotTriggered
	SnapshotFull
)

var snapshotStateNames = []string{"disabled", "armed", "triggered", "full"}

func (s SnapshotState) String() string {
	if int(s) < len(snapshotStateNames) {
		return snapshotStateNames[s]
	}

	return "unknown"
}

// SnapshotFields is the number of PHV containers a trigger can compare.
const SnapshotFields = 4

// SnapshotCapture is the readout of a completed snapshot.
type SnapshotCapture struct {
	Trigger string
	Cycle   uint64
	Input   *Phv
	Output  *Phv
	// Hits has one bit per logical table that matched.
	Hits   uint16
	Active uint16
	Next   [2]NextTable
}

// Snapshot is the per-stage debug capture state machine.
type Snapshot struct {
	stage int
	state SnapshotState

	fieldSelect [SnapshotFields]int
	value       [SnapshotFields]uint32
	mask        [SnapshotFields]uint32
	// word0/word1 are compiled from value and mask on every write.
	word0 [SnapshotFields]uint64
	word1 [SnapshotFields]uint64

	propagate   bool
	timerEnable bool
	timerCycles uint64
	armedAt     uint64

	capture SnapshotCapture
}

func NewSnapshot(stage int) *Snapshot {
	s := &Snapshot{stage: stage}
	for i := range s.fieldSelect {
		s.fieldSelect[i] = -1
	}

	s.compile()

	return s
}

func (s *Snapshot) State() SnapshotState { return s.state }

// SetField programs trigger field i: PHV container, value and mask. A
// negative container disables the field.
func (s *Snapshot) SetField(i, container int, value, mask uint32) {
	if i < 0 || i >= SnapshotFields {
		return
	}

	s.fieldSelect[i] = container
	s.value[i] = value
	s.mask[i] = mask
	s.compile()
}

func (s *Snapshot) compile() {
	for i := range s.fieldSelect {
		s.word0[i], s.word1[i] = TcamEncode(uint64(s.value[i]), uint64(s.mask[i]))
	}
}

func (s *Snapshot) SetPropagate(on bool) { s.propagate = on }

// SetTimer enables a trigger that fires cycles after arming.
func (s *Snapshot) SetTimer(on bool, cycles uint64) {
	s.timerEnable = on
	s.timerCycles = cycles
}

// Arm enables the trigger at cycle now.
func (s *Snapshot) Arm(now uint64) {
	s.state = SnapshotArmed
	s.armedAt = now
	s.capture = SnapshotCapture{}
}

// Rearm discards a capture and waits for the next trigger.
func (s *Snapshot) Rearm(now uint64) {
	s.Arm(now)
}

func (s *Snapshot) Disable() {
	s.state = SnapshotDisabled
	s.capture = SnapshotCapture{}
}

// phvMatches runs the ternary compare on every enabled field. At least one
// field must be enabled.
func (s *Snapshot) phvMatches(phv *Phv) bool {
	enabled := 0

	for i, c := range s.fieldSelect {
		if c < 0 {
			continue
		}

		enabled++

		key := uint64(phv.Get(c))
		if TcamCompare(s.word0[i], s.word1[i], ^key&0xffffffff, key)&0xffffffff != 0 {
			return false
		}
	}

	return enabled > 0
}

// MaybeSnapshot checks the triggers against the stage input and captures it
// on a trigger. phv is not modified; the stage marks its output.
func (s *Snapshot) MaybeSnapshot(phv *Phv, cycle uint64) bool {
	if s.state != SnapshotArmed {
		return false
	}

	var trigger string

	switch {
	case s.propagate && phv.Snapshot:
		trigger = "propagated"
	case s.phvMatches(phv):
		trigger = "phv"
	case s.timerEnable && cycle-s.armedAt >= s.timerCycles:
		trigger = "timer"
	default:
		return false
	}

	s.state = SnapshotTriggered
	s.capture = SnapshotCapture{Trigger: trigger, Cycle: cycle, Input: phv.Clone()}

	logger.SnapLog.With("stage", s.stage, "trigger", trigger, "cycle", cycle).Infoln("snapshot triggered")

	return true
}

// FinalizeSnapshot records the stage output of a triggered capture.
func (s *Snapshot) FinalizeSnapshot(out *Phv, hits, active uint16, next [2]NextTable) {
	if s.state != SnapshotTriggered {
		return
	}

	s.capture.Output = out.Clone()
	s.capture.Hits = hits
	s.capture.Active = active
	s.capture.Next = next
	s.state = SnapshotFull
}

// Capture returns the captured data once the snapshot is full.
func (s *Snapshot) Capture() (SnapshotCapture, bool) {
	if s.state != SnapshotFull {
		return SnapshotCapture{}, false
	}

	return s.capture, true
}
