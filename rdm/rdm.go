// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

// Package rdm models the replication data memory: multicast replication
// lists stored as L1 (RID) and L2 (port) nodes in 128-bit lines.
package rdm

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/omec-project/mausim/logger"
	"github.com/omec-project/mausim/mau"
	"github.com/omec-project/mausim/pkg/bitvector"
)

const (
	LineWidth = 128
	HalfWidth = LineWidth / 2

	// AddrBits is the width of a node address: line<<1 | half.
	AddrBits = 20
	MaxLines = 1 << (AddrBits - 1)

	// NoNext terminates an L1 chain.
	NoNext = 1<<AddrBits - 1

	typeBits = 4
)

type NodeType uint8

const (
	NodeInvalid NodeType = iota
	NodeL1Rid
	NodeL1RidEnd
	NodeL1Ecmp
	NodeL2Port16
	NodeL2Port64
	NodeL2Lag
)

var nodeTypeNames = []string{"invalid", "l1_rid", "l1_rid_end", "l1_ecmp", "l2_port16", "l2_port64", "l2_lag"}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}

	return fmt.Sprintf("nodetype(%d)", uint8(t))
}

// Full reports whether the node takes a whole line.
func (t NodeType) Full() bool {
	return t == NodeL1Ecmp || t == NodeL2Port64
}

func (t NodeType) isL2() bool {
	return t == NodeL2Port16 || t == NodeL2Port64 || t == NodeL2Lag
}

// Node is the decoded form of every node type. Which fields are meaningful
// depends on Type.
type Node struct {
	Type NodeType

	// L1 fields.
	Next  int
	L2    int
	Rid   uint16
	Base  int
	Count int

	// L2 fields.
	Last  bool
	Chunk int
	Ports uint64
	Lag   int
}

type field struct{ off, width int }

// Node layouts, low bit first. The type is always in the low nibble.
var layouts = map[NodeType]map[string]field{
	NodeL1Rid:    {"next": {4, 20}, "l2": {24, 20}, "rid": {44, 16}},
	NodeL1RidEnd: {"l2": {4, 20}, "rid": {24, 16}},
	NodeL1Ecmp:   {"next": {4, 20}, "base": {24, 20}, "count": {44, 6}},
	NodeL2Port16: {"last": {4, 1}, "chunk": {5, 2}, "ports": {7, 16}},
	NodeL2Port64: {"last": {4, 1}, "ports": {64, 64}},
	NodeL2Lag:    {"last": {4, 1}, "lag": {5, 8}},
}

func (n *Node) values() map[string]uint64 {
	return map[string]uint64{
		"next":  uint64(n.Next),
		"l2":    uint64(n.L2),
		"rid":   uint64(n.Rid),
		"base":  uint64(n.Base),
		"count": uint64(n.Count),
		"last":  boolBit(n.Last),
		"chunk": uint64(n.Chunk),
		"ports": n.Ports,
		"lag":   uint64(n.Lag),
	}
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}

// ToBits returns the node image: 64 bits for half nodes, 128 for full ones.
func ToBits(n Node) *bitvector.BitVector {
	width := HalfWidth
	if n.Type.Full() {
		width = LineWidth
	}

	bv := bitvector.New(width)
	bv.SetWord(0, typeBits, uint64(n.Type))

	vals := n.values()
	for name, f := range layouts[n.Type] {
		bv.SetWord(f.off, f.width, vals[name])
	}

	return bv
}

// FromBits decodes a node image.
func FromBits(bv *bitvector.BitVector) Node {
	n := Node{Type: NodeType(bv.GetWord(0, typeBits))}

	l, ok := layouts[n.Type]
	if !ok {
		return Node{}
	}

	get := func(name string) uint64 {
		f, ok := l[name]
		if !ok {
			return 0
		}

		return bv.GetWord(f.off, f.width)
	}

	n.Next = int(get("next"))
	n.L2 = int(get("l2"))
	n.Rid = uint16(get("rid"))
	n.Base = int(get("base"))
	n.Count = int(get("count"))
	n.Last = get("last") != 0
	n.Chunk = int(get("chunk"))
	n.Ports = get("ports")
	n.Lag = int(get("lag"))

	return n
}

type lineKind uint8

const (
	lineEmpty lineKind = iota
	lineHalf
	lineFull
)

// Rdm is the replication memory. Encode and Walk may run concurrently with
// the packet path; each line update is an atomic read-modify-write.
type Rdm struct {
	mu    sync.Mutex
	mem   *bitvector.Memory
	kinds []lineKind
}

func New(lines int) *Rdm {
	if lines <= 0 || lines > MaxLines {
		panic(&mau.ConfigError{Stage: -1, Msg: fmt.Sprintf("rdm size %d outside [1, %d]", lines, MaxLines)})
	}

	return &Rdm{
		mem:   bitvector.NewMemory(lines, LineWidth),
		kinds: make([]lineKind, lines),
	}
}

func (r *Rdm) Lines() int { return r.mem.Depth() }

func split(addr int) (line, half int) { return addr >> 1, addr & 1 }

// Encode writes n at addr. A full-width node must start on an even address
// and cannot share its line with a half-width node; both are configuration
// panics. Out of range addresses return false.
func (r *Rdm) Encode(addr int, n Node) bool {
	line, half := split(addr)
	if addr < 0 || line >= r.mem.Depth() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w, _ := r.mem.Get(line)
	img := ToBits(n)

	if n.Type.Full() {
		if half != 0 {
			panic(&mau.ConfigError{Stage: -1, Msg: fmt.Sprintf("rdm %s node at odd address %#x", n.Type, addr)})
		}

		if r.kinds[line] == lineHalf {
			panic(&mau.ConfigError{Stage: -1, Msg: fmt.Sprintf("rdm %s node at %#x pairs with a half node", n.Type, addr)})
		}

		r.mem.Set(line, img)
		r.kinds[line] = lineFull
	} else {
		if r.kinds[line] == lineFull {
			panic(&mau.ConfigError{Stage: -1, Msg: fmt.Sprintf("rdm %s node at %#x pairs with a full node", n.Type, addr)})
		}

		w.SetWord(half*HalfWidth, HalfWidth, img.GetWord(0, HalfWidth))
		r.mem.Set(line, w)
		r.kinds[line] = lineHalf
	}

	logger.RdmLog.With("addr", addr, "type", n.Type.String()).Debugln("node written")

	return true
}

// Clear frees the node at addr. A half-width node leaves its partner on the
// same line intact; the line is free once both halves are clear.
func (r *Rdm) Clear(addr int) bool {
	line, half := split(addr)
	if addr < 0 || line >= r.mem.Depth() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.kinds[line] != lineHalf {
		r.mem.Set(line, bitvector.New(LineWidth))
		r.kinds[line] = lineEmpty

		return true
	}

	w, _ := r.mem.Get(line)
	w.SetWord(half*HalfWidth, HalfWidth, 0)
	r.mem.Set(line, w)

	if w.IsZero() {
		r.kinds[line] = lineEmpty
	}

	return true
}

// Decode reads the node at addr.
func (r *Rdm) Decode(addr int) (Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.decode(addr)
}

func (r *Rdm) decode(addr int) (Node, bool) {
	line, half := split(addr)
	if addr < 0 || line >= r.mem.Depth() {
		return Node{}, false
	}

	w, _ := r.mem.Get(line)

	if r.kinds[line] == lineFull {
		if half != 0 {
			return Node{}, false
		}

		return FromBits(w), true
	}

	h := bitvector.FromUint64s(HalfWidth, w.GetWord(half*HalfWidth, HalfWidth))

	return FromBits(h), true
}

// Replica is one copy produced by a replication list. Port is -1 for LAG
// copies, Lag is -1 for port copies.
type Replica struct {
	Rid  uint16
	Port int
	Lag  int
}

func (r *Rdm) walkL2(head int, rid uint16, out []Replica) ([]Replica, error) {
	for addr, n := head, 0; ; n++ {
		if n > 2*r.mem.Depth() {
			return nil, mau.ErrOperationFailedWithReason("rdm walk", "l2 chain does not end")
		}

		node, ok := r.decode(addr)
		if !ok || !node.Type.isL2() {
			return nil, mau.ErrInvalidArgumentWithReason("rdm l2 node", addr, node.Type.String())
		}

		switch node.Type {
		case NodeL2Port16:
			out = appendPorts(out, rid, node.Chunk*16, node.Ports)
		case NodeL2Port64:
			out = appendPorts(out, rid, 0, node.Ports)
		case NodeL2Lag:
			out = append(out, Replica{Rid: rid, Port: -1, Lag: node.Lag})
		}

		if node.Last {
			return out, nil
		}

		addr++
		if node.Type.Full() {
			addr++
		}
	}
}

func appendPorts(out []Replica, rid uint16, base int, ports uint64) []Replica {
	for ports != 0 {
		b := bits.TrailingZeros64(ports)
		out = append(out, Replica{Rid: rid, Port: base + b, Lag: -1})
		ports &^= 1 << uint(b)
	}

	return out
}

// Walk expands the L1 list starting at head into replicas. hash picks the
// member of ECMP nodes.
func (r *Rdm) Walk(head int, hash uint32) ([]Replica, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		out []Replica
		err error
	)

	for addr, n := head, 0; addr != NoNext; n++ {
		if n > 2*r.mem.Depth() {
			return nil, mau.ErrOperationFailedWithReason("rdm walk", "l1 chain does not end")
		}

		node, ok := r.decode(addr)
		if !ok {
			return nil, mau.ErrInvalidArgument("rdm l1 address", addr)
		}

		switch node.Type {
		case NodeL1Rid:
			if out, err = r.walkL2(node.L2, node.Rid, out); err != nil {
				return nil, err
			}

			addr = node.Next
		case NodeL1RidEnd:
			return r.walkL2(node.L2, node.Rid, out)
		case NodeL1Ecmp:
			if node.Count > 0 {
				member, ok := r.decode(node.Base + int(hash%uint32(node.Count)))
				if !ok || (member.Type != NodeL1Rid && member.Type != NodeL1RidEnd) {
					return nil, mau.ErrInvalidArgumentWithReason("rdm ecmp member", node.Base, member.Type.String())
				}

				if out, err = r.walkL2(member.L2, member.Rid, out); err != nil {
					return nil, err
				}
			}

			addr = node.Next
		default:
			return nil, mau.ErrInvalidArgumentWithReason("rdm l1 node", addr, node.Type.String())
		}
	}

	return out, nil
}
