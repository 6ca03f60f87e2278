// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package mau

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireConfigPanic fails unless f panics with a *ConfigError.
func requireConfigPanic(t *testing.T, f func()) *ConfigError {
	t.Helper()

	var err error

	func() {
		defer Recover(&err)
		f()
	}()

	require.Error(t, err, "expected a configuration panic")

	var ce *ConfigError
	require.True(t, errors.As(err, &ce))

	return ce
}

func TestRecover(t *testing.T) {
	t.Run("config panic becomes error", func(t *testing.T) {
		ce := requireConfigPanic(t, func() { configPanic(3, "row %d busy", 7) })
		assert.Equal(t, 3, ce.Stage)
		assert.Equal(t, "mau config: stage 3: row 7 busy", ce.Error())
	})

	t.Run("stage-less message", func(t *testing.T) {
		ce := requireConfigPanic(t, func() { configPanic(-1, "bad") })
		assert.Equal(t, "mau config: bad", ce.Error())
	})

	t.Run("other panics propagate", func(t *testing.T) {
		assert.PanicsWithValue(t, "boom", func() {
			var err error
			defer Recover(&err)
			panic("boom")
		})
	})
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFoundWithParam("table", "name", "x")))
	assert.True(t, IsInvalidArgument(ErrInvalidArgumentWithReason("stage", 99, "outside pipeline")))
	assert.True(t, IsTableFull(ErrTableFull("fwd")))
	assert.True(t, IsAlreadyExists(ErrAlreadyExists("entry", "fwd/0x1")))
	assert.False(t, IsNotFound(ErrUnsupported("op", "x")))
}
