// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package rdm

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omec-project/mausim/mau"
)

func requireConfigPanic(t *testing.T, f func()) {
	t.Helper()

	err := func() (err error) {
		defer mau.Recover(&err)
		f()

		return nil
	}()

	var ce *mau.ConfigError
	require.True(t, errors.As(err, &ce), "expected a configuration panic, got %v", err)
}

func TestToBits(t *testing.T) {
	for _, scenario := range []struct {
		node  Node
		width int
	}{
		{Node{Type: NodeL1Rid, Next: 0x12345, L2: 0xabcde, Rid: 0xbeef}, HalfWidth},
		{Node{Type: NodeL1RidEnd, L2: 7, Rid: 3}, HalfWidth},
		{Node{Type: NodeL1Ecmp, Next: NoNext, Base: 100, Count: 32}, LineWidth},
		{Node{Type: NodeL2Port16, Last: true, Chunk: 3, Ports: 0x8001}, HalfWidth},
		{Node{Type: NodeL2Port64, Ports: 0x8000_0000_0000_0001}, LineWidth},
		{Node{Type: NodeL2Lag, Last: true, Lag: 255}, HalfWidth},
	} {
		t.Run(scenario.node.Type.String(), func(t *testing.T) {
			bv := ToBits(scenario.node)
			assert.Equal(t, scenario.width, bv.Width())
			assert.Equal(t, uint64(scenario.node.Type), bv.GetWord(0, typeBits))
			assert.Equal(t, scenario.node, FromBits(bv))
		})
	}

	t.Run("fields are truncated to their width", func(t *testing.T) {
		n := FromBits(ToBits(Node{Type: NodeL1RidEnd, L2: 1<<AddrBits | 5}))
		assert.Equal(t, 5, n.L2)
	})

	t.Run("unknown type decodes as invalid", func(t *testing.T) {
		assert.Equal(t, Node{}, FromBits(ToBits(Node{Type: NodeType(15), Rid: 1})))
	})
}

func TestEncodeDecode(t *testing.T) {
	r := New(16)

	require.True(t, r.Encode(2, Node{Type: NodeL1RidEnd, L2: 9, Rid: 1}))
	require.True(t, r.Encode(3, Node{Type: NodeL2Lag, Last: true, Lag: 4}))
	require.True(t, r.Encode(4, Node{Type: NodeL2Port64, Last: true, Ports: 1 << 63}))

	n, ok := r.Decode(2)
	require.True(t, ok)
	assert.Equal(t, Node{Type: NodeL1RidEnd, L2: 9, Rid: 1}, n)

	n, _ = r.Decode(3)
	assert.Equal(t, 4, n.Lag, "halves of one line are independent")

	n, _ = r.Decode(4)
	assert.Equal(t, uint64(1<<63), n.Ports)

	_, ok = r.Decode(5)
	assert.False(t, ok, "second half of a full line is not a node")

	assert.False(t, r.Encode(32, Node{Type: NodeL2Lag}))
	assert.False(t, r.Encode(-1, Node{Type: NodeL2Lag}))
	_, ok = r.Decode(32)
	assert.False(t, ok)

	require.True(t, r.Clear(4))
	require.True(t, r.Encode(5, Node{Type: NodeL2Lag, Lag: 1}), "cleared line takes half nodes")
}

func TestClear(t *testing.T) {
	r := New(8)

	require.True(t, r.Encode(4, Node{Type: NodeL2Port16, Chunk: 2, Ports: 0x00ff}))
	require.True(t, r.Encode(5, Node{Type: NodeL2Lag, Last: true, Lag: 7}))
	require.True(t, r.Clear(5))

	n, ok := r.Decode(4)
	require.True(t, ok)
	assert.Equal(t, Node{Type: NodeL2Port16, Chunk: 2, Ports: 0x00ff}, n, "partner half survives")

	n, _ = r.Decode(5)
	assert.Equal(t, NodeInvalid, n.Type)

	requireConfigPanic(t, func() { r.Encode(4, Node{Type: NodeL2Port64}) })

	require.True(t, r.Clear(4))
	assert.True(t, r.Encode(4, Node{Type: NodeL2Port64, Ports: 1}), "line is free once both halves clear")

	require.True(t, r.Clear(4))
	n, _ = r.Decode(4)
	assert.Equal(t, NodeInvalid, n.Type)

	assert.False(t, r.Clear(16))
}

func TestEncodePairing(t *testing.T) {
	t.Run("full node on an odd address", func(t *testing.T) {
		r := New(4)
		requireConfigPanic(t, func() { r.Encode(1, Node{Type: NodeL1Ecmp}) })
	})

	t.Run("full node over a half node", func(t *testing.T) {
		r := New(4)
		require.True(t, r.Encode(3, Node{Type: NodeL2Lag}))
		requireConfigPanic(t, func() { r.Encode(2, Node{Type: NodeL2Port64}) })

		n, _ := r.Decode(3)
		assert.Equal(t, NodeL2Lag, n.Type, "rejected write leaves the line")
	})

	t.Run("half node next to a full node", func(t *testing.T) {
		r := New(4)
		require.True(t, r.Encode(2, Node{Type: NodeL1Ecmp}))
		requireConfigPanic(t, func() { r.Encode(3, Node{Type: NodeL1RidEnd}) })
	})

	t.Run("full node replaces a full node", func(t *testing.T) {
		r := New(4)
		require.True(t, r.Encode(2, Node{Type: NodeL1Ecmp, Count: 1}))
		assert.True(t, r.Encode(2, Node{Type: NodeL2Port64, Ports: 1}))
	})

	t.Run("bad size", func(t *testing.T) {
		requireConfigPanic(t, func() { New(MaxLines + 1) })
	})
}

func TestWalk(t *testing.T) {
	r := New(64)

	for addr, n := range map[int]Node{
		0:  {Type: NodeL1Rid, Next: 1, L2: 10, Rid: 1},
		1:  {Type: NodeL1RidEnd, L2: 12, Rid: 2},
		10: {Type: NodeL2Port16, Chunk: 1, Ports: 0b101},
		11: {Type: NodeL2Lag, Last: true, Lag: 7},
		12: {Type: NodeL2Port64, Last: true, Ports: 1<<3 | 1<<40},

		20: {Type: NodeL1Ecmp, Next: 24, Base: 30, Count: 2},
		24: {Type: NodeL1RidEnd, L2: 43, Rid: 9},
		30: {Type: NodeL1RidEnd, L2: 40, Rid: 5},
		31: {Type: NodeL1RidEnd, L2: 41, Rid: 6},
		40: {Type: NodeL2Port16, Last: true, Ports: 1 << 1},
		41: {Type: NodeL2Lag, Last: true, Lag: 9},
		43: {Type: NodeL2Port16, Last: true, Chunk: 2, Ports: 1},
	} {
		require.True(t, r.Encode(addr, n), "addr %d", addr)
	}

	t.Run("rid list", func(t *testing.T) {
		got, err := r.Walk(0, 0)
		require.NoError(t, err)
		assert.Equal(t, []Replica{
			{Rid: 1, Port: 16, Lag: -1},
			{Rid: 1, Port: 18, Lag: -1},
			{Rid: 1, Port: -1, Lag: 7},
			{Rid: 2, Port: 3, Lag: -1},
			{Rid: 2, Port: 40, Lag: -1},
		}, got)
	})

	t.Run("ecmp picks one member by hash", func(t *testing.T) {
		for hash, first := range map[uint32]Replica{
			0: {Rid: 5, Port: 1, Lag: -1},
			1: {Rid: 6, Port: -1, Lag: 9},
			6: {Rid: 5, Port: 1, Lag: -1},
		} {
			got, err := r.Walk(20, hash)
			require.NoError(t, err)
			assert.Equal(t, []Replica{first, {Rid: 9, Port: 32, Lag: -1}}, got, "hash %d", hash)
		}
	})

	t.Run("l1 loop", func(t *testing.T) {
		require.True(t, r.Encode(50, Node{Type: NodeL1Rid, Next: 50, L2: 11, Rid: 1}))

		_, err := r.Walk(50, 0)
		assert.Error(t, err)
	})

	t.Run("l1 chain into an l2 node", func(t *testing.T) {
		_, err := r.Walk(10, 0)
		assert.True(t, mau.IsInvalidArgument(err))
	})

	t.Run("l2 chain into an empty node", func(t *testing.T) {
		require.True(t, r.Encode(52, Node{Type: NodeL1RidEnd, L2: 60, Rid: 1}))
		require.True(t, r.Encode(60, Node{Type: NodeL2Lag, Lag: 1}))

		_, err := r.Walk(52, 0)
		assert.True(t, mau.IsInvalidArgument(err))
	})
}

func TestConcurrentEncode(t *testing.T) {
	r := New(8)

	var wg sync.WaitGroup

	for half := 0; half < 2; half++ {
		wg.Add(1)

		go func(half int) {
			defer wg.Done()

			for i := 0; i < 1000; i++ {
				r.Encode(half, Node{Type: NodeL2Lag, Lag: i % 256})
			}
		}(half)
	}

	wg.Wait()

	for half := 0; half < 2; half++ {
		n, ok := r.Decode(half)
		require.True(t, ok)
		assert.Equal(t, 999%256, n.Lag, "no lost update on half %d", half)
	}
}
