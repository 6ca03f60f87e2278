// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"fmt"
	"strings"

	"github.com/omec-project/mausim/pkg/bitvector"
)

const (
	// Per-stage geometry.
	SramRows         = 8
	SramCols         = 12
	SramsPerStage    = SramRows * SramCols
	LogicalRows      = SramRows * 2
	LogicalTables    = 16
	TcamsPerStage    = 24
	SramDepth        = 1024
	SramWidth        = 128
	MapramWidth      = 11
	TcamDepth        = 512
	TcamWidthDefault = 44
)

type Gress uint8

const (
	Ingress Gress = iota
	Egress
	// GressBoth only tags PHV containers; tables and threads are one or the other.
	GressBoth
)

var gressNames = []string{"ingress", "egress", "both"}

func (g Gress) String() string {
	if int(g) < len(gressNames) {
		return gressNames[g]
	}

	return fmt.Sprintf("gress(%d)", uint8(g))
}

func (g Gress) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *Gress) UnmarshalText(b []byte) error {
	for i, n := range gressNames {
		if strings.EqualFold(string(b), n) {
			*g = Gress(i)
			return nil
		}
	}

	return ErrInvalidArgument("gress", string(b))
}

// Color is the 2-bit meter color as carried in color maprams.
type Color uint8

const (
	Green  Color = 0
	Yellow Color = 1
	Red    Color = 3
)

func (c Color) String() string {
	switch c {
	case Green:
		return "green"
	case Yellow:
		return "yellow"
	case Red:
		return "red"
	default:
		return fmt.Sprintf("color(%d)", uint8(c))
	}
}

// NextTable is the 8-bit next-table form: stage in the high nibble, logical
// table in the low nibble.
type NextTable uint8

const NextTableEnd NextTable = 0xff

func MakeNextTable(stage, lt int) NextTable {
	return NextTable(uint8(stage&0xf)<<4 | uint8(lt&0xf))
}

func (n NextTable) Stage() int { return int(n >> 4) }
func (n NextTable) Table() int { return int(n & 0xf) }
func (n NextTable) IsEnd() bool {
	return n == NextTableEnd
}

func (n NextTable) String() string {
	if n.IsEnd() {
		return "end"
	}

	return fmt.Sprintf("%d.%d", n.Stage(), n.Table())
}

type MatchKind uint8

const (
	MatchExact MatchKind = iota
	MatchTernary
)

func (k MatchKind) String() string {
	if k == MatchTernary {
		return "ternary"
	}

	return "exact"
}

func (k *MatchKind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "exact", "":
		*k = MatchExact
	case "ternary", "tcam":
		*k = MatchTernary
	default:
		return ErrInvalidArgument("match kind", string(b))
	}

	return nil
}

// Addressable is a memory that can be read and written by word index.
type Addressable interface {
	Depth() int
	Get(index int) (*bitvector.BitVector, bool)
	Set(index int, w *bitvector.BitVector) bool
}

// Resettable state returns to its power-on value.
type Resettable interface {
	Reset()
}
