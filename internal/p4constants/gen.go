// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

// Package p4constants holds the P4Runtime ids of the sample program in
// conf/p4info.txt.
package p4constants

//go:generate go run ../../cmd/p4info_code_gen --p4info ../../conf/p4info.txt --output p4constants.go
