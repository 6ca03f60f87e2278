// SPDX-License-Identifier: Apache-2.0
// Copyright 2021 Open Networking Foundation
package mau

import (
	"errors"
	"fmt"
)

var (
	errNotFound        = errors.New("not found")
	errInvalidArgument = errors.New("invalid argument")
	errFailed          = errors.New("failed")
	errUnsupported     = errors.New("unsupported")
	errTableFull       = errors.New("table full")
	errAlreadyExists   = errors.New("already exists")
)

func ErrUnsupported(what string, value interface{}) error {
	return fmt.Errorf("%s=%v %w", what, value, errUnsupported)
}

func ErrNotFound(what string) error {
	return fmt.Errorf("%s %w", what, errNotFound)
}

func ErrNotFoundWithParam(what string, paramName string, paramValue interface{}) error {
	return fmt.Errorf("%s %w with %s=%v", what, errNotFound, paramName, paramValue)
}

func ErrInvalidArgument(name string, value interface{}) error {
	return fmt.Errorf("%w '%s': %v", errInvalidArgument, name, value)
}

func ErrInvalidArgumentWithReason(name string, value interface{}, reason string) error {
	return fmt.Errorf("%w '%s'=%v (%s)", errInvalidArgument, name, value, reason)
}

func ErrOperationFailedWithReason(operation interface{}, reason string) error {
	return fmt.Errorf("%v %w due to: %s", operation, errFailed, reason)
}

func ErrTableFull(table string) error {
	return fmt.Errorf("%s: %w", table, errTableFull)
}

func ErrAlreadyExists(what string, value interface{}) error {
	return fmt.Errorf("%s=%v %w", what, value, errAlreadyExists)
}

func IsNotFound(err error) bool        { return errors.Is(err, errNotFound) }
func IsInvalidArgument(err error) bool { return errors.Is(err, errInvalidArgument) }
func IsTableFull(err error) bool       { return errors.Is(err, errTableFull) }
func IsAlreadyExists(err error) bool   { return errors.Is(err, errAlreadyExists) }

// ConfigError reports a violated configuration invariant of the simulated
// chip: a table claimed by both gresses, a VPN outside a unit's range, a bus
// driven downward. These are never expected from a correct program and are
// raised with panic.
type ConfigError struct {
	Stage int
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Stage < 0 {
		return "mau config: " + e.Msg
	}

	return fmt.Sprintf("mau config: stage %d: %s", e.Stage, e.Msg)
}

func configPanic(stage int, format string, args ...interface{}) {
	panic(&ConfigError{Stage: stage, Msg: fmt.Sprintf(format, args...)})
}

// Recover converts a ConfigError panic into *err. Other panics propagate.
// Use as: defer mau.Recover(&err).
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}

	if ce, ok := r.(*ConfigError); ok {
		*err = ce
		return
	}

	panic(r)
}
