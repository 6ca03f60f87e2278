// SPDX-License-Identifier: Apache-2.0
// Copyright 2020 Intel Corporation
// Copyright 2022 Open Networking Foundation

package utils

import (
	"encoding/binary"
	"math"
	"math/bits"
	"net"
)

func Ip4ToUint32(ip net.IP) uint32 {
	return binary.BigEndian.Uint32(ip.To4())
}

// Mask64 returns a mask with the low width bits set. Widths of 64 or more
// return an all-ones mask.
func Mask64(width uint) uint64 {
	if width >= 64 {
		return math.MaxUint64
	}

	return (uint64(1) << width) - 1
}

// SaturateUint32 clamps v into [0, MaxUint32].
func SaturateUint32(v int64) uint32 {
	if v < 0 {
		return 0
	}

	if v > math.MaxUint32 {
		return math.MaxUint32
	}

	return uint32(v)
}

// SaturateWidth clamps v to the largest value representable in width bits.
func SaturateWidth(v uint64, width uint) uint64 {
	if m := Mask64(width); v > m {
		return m
	}

	return v
}

// Log2Floor returns floor(log2(v)), or -1 for zero.
func Log2Floor(v uint64) int {
	return bits.Len64(v) - 1
}

func Uint16HasBit(v uint16, n int) bool {
	return n >= 0 && n < 16 && (v>>uint(n))&1 == 1
}

// FirstSetAbove returns the lowest set bit of mask strictly above bit curr, or -1.
func FirstSetAbove(mask uint16, curr int) int {
	if curr >= 15 {
		return -1
	}

	if curr >= 0 {
		mask &^= uint16(1)<<uint(curr+1) - 1
	}

	if mask == 0 {
		return -1
	}

	return bits.TrailingZeros16(mask)
}
