// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

// StatefulSpec programs a stateful ALU. Each 64-bit half of a word holds a
// lo and a hi register; the address subword selects the half.
type StatefulSpec struct {
	// Cond compares the PHV operand against lo: always, eq, ne, lt, ge.
	Cond string `json:"cond"`
	// LoOp is applied to lo with the operand when Cond holds.
	LoOp string `json:"lo_op"`
	// HiOp is applied to hi with HiConst when Cond holds.
	HiOp    string `json:"hi_op"`
	HiConst uint32 `json:"hi_const"`
	// Output is lo, hi, old_lo or predicate.
	Output string `json:"output"`
}

var (
	statefulConds   = []string{"", "always", "eq", "ne", "lt", "ge"}
	statefulOps     = []string{"", "nop", "add", "sub", "set", "or", "and", "max", "min"}
	statefulOutputs = []string{"", "lo", "hi", "old_lo", "predicate"}
)

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}

	return false
}

func (ss *StatefulSpec) validate() error {
	switch {
	case !oneOf(ss.Cond, statefulConds):
		return ErrInvalidArgument("stateful cond", ss.Cond)
	case !oneOf(ss.LoOp, statefulOps):
		return ErrInvalidArgument("stateful lo_op", ss.LoOp)
	case !oneOf(ss.HiOp, statefulOps):
		return ErrInvalidArgument("stateful hi_op", ss.HiOp)
	case !oneOf(ss.Output, statefulOutputs):
		return ErrInvalidArgument("stateful output", ss.Output)
	}

	return nil
}

func statefulOp(op string, reg, v uint32) uint32 {
	switch op {
	case "add":
		return reg + v
	case "sub":
		return reg - v
	case "set":
		return v
	case "or":
		return reg | v
	case "and":
		return reg & v
	case "max":
		if v > reg {
			return v
		}
	case "min":
		if v < reg {
			return v
		}
	}

	return reg
}

// Stateful is a register ALU doing one conditional read-modify-write per
// access.
type Stateful struct {
	Spec StatefulSpec
}

func NewStateful(spec StatefulSpec) *Stateful {
	return &Stateful{Spec: spec}
}

func (s *Stateful) Kind() AluKind { return AluStateful }
func (s *Stateful) Reset()        {}

func (s *Stateful) predicate(operand, lo uint32) bool {
	switch s.Spec.Cond {
	case "eq":
		return operand == lo
	case "ne":
		return operand != lo
	case "lt":
		return operand < lo
	case "ge":
		return operand >= lo
	}

	return true
}

func (s *Stateful) Run(mem Addressable, addr Address, in *AluInput) AluOutput {
	w, ok := mem.Get(addr.Index)
	if !ok {
		return AluOutput{}
	}

	off := (addr.Subword & 1) * 64
	lo := uint32(w.GetWord(off, 32))
	hi := uint32(w.GetWord(off+32, 32))
	oldLo := lo

	pred := s.predicate(in.Operand, lo)
	if pred {
		lo = statefulOp(s.Spec.LoOp, lo, in.Operand)
		hi = statefulOp(s.Spec.HiOp, hi, s.Spec.HiConst)
		w.SetWord(off, 32, uint64(lo))
		w.SetWord(off+32, 32, uint64(hi))
		mem.Set(addr.Index, w)
	}

	out := AluOutput{Valid: true, Data: lo}

	switch s.Spec.Output {
	case "hi":
		out.Data = hi
	case "old_lo":
		out.Data = oldLo
	case "predicate":
		out.Data = 0
		if pred {
			out.Data = 1
		}
	}

	return out
}
