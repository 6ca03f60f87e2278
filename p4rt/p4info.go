// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

package p4rt

import (
	"os"

	p4ConfigV1 "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4 "github.com/p4lang/p4runtime/go/p4/v1"
	"google.golang.org/protobuf/encoding/prototext"

	"github.com/omec-project/mausim/mau"
)

// LoadP4Info reads a P4Info text file.
func LoadP4Info(path string) (*p4ConfigV1.P4Info, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseP4Info(b)
}

func ParseP4Info(b []byte) (*p4ConfigV1.P4Info, error) {
	info := &p4ConfigV1.P4Info{}
	if err := prototext.Unmarshal(b, info); err != nil {
		return nil, mau.ErrOperationFailedWithReason("p4info parse", err.Error())
	}

	return info, nil
}

// LoadWriteRequest reads a text-format WriteRequest, the form used to
// preload table entries.
func LoadWriteRequest(path string) (*p4.WriteRequest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	req := &p4.WriteRequest{}
	if err := prototext.Unmarshal(b, req); err != nil {
		return nil, mau.ErrOperationFailedWithReason("write request parse", err.Error())
	}

	return req, nil
}

// engineName is the pipeline table an entity maps to: its alias, or its full
// name when the alias is empty.
func engineName(p *p4ConfigV1.Preamble) string {
	if p.GetAlias() != "" {
		return p.GetAlias()
	}

	return p.GetName()
}

func (t *Translator) getTableByID(tableID uint32) (*p4ConfigV1.Table, error) {
	for _, table := range t.p4Info.GetTables() {
		if table.GetPreamble().GetId() == tableID {
			return table, nil
		}
	}

	return nil, mau.ErrNotFoundWithParam("p4 table", "id", tableID)
}

func (t *Translator) getActionByID(actionID uint32) (*p4ConfigV1.Action, error) {
	for _, action := range t.p4Info.GetActions() {
		if action.GetPreamble().GetId() == actionID {
			return action, nil
		}
	}

	return nil, mau.ErrNotFoundWithParam("p4 action", "id", actionID)
}

func (t *Translator) getMeterByID(meterID uint32) (*p4ConfigV1.Meter, error) {
	for _, meter := range t.p4Info.GetMeters() {
		if meter.GetPreamble().GetId() == meterID {
			return meter, nil
		}
	}

	return nil, mau.ErrNotFoundWithParam("p4 meter", "id", meterID)
}

func (t *Translator) getCounterByID(counterID uint32) (*p4ConfigV1.Counter, error) {
	for _, ctr := range t.p4Info.GetCounters() {
		if ctr.GetPreamble().GetId() == counterID {
			return ctr, nil
		}
	}

	return nil, mau.ErrNotFoundWithParam("p4 counter", "id", counterID)
}

// TableID returns the P4Info ID of the table with the given name or alias.
func (t *Translator) TableID(name string) uint32 {
	for _, table := range t.p4Info.GetTables() {
		if table.GetPreamble().GetName() == name || table.GetPreamble().GetAlias() == name {
			return table.GetPreamble().GetId()
		}
	}

	return invalidID
}

// ActionID returns the P4Info ID of the action with the given name or alias.
func (t *Translator) ActionID(name string) uint32 {
	for _, action := range t.p4Info.GetActions() {
		if action.GetPreamble().GetName() == name || action.GetPreamble().GetAlias() == name {
			return action.GetPreamble().GetId()
		}
	}

	return invalidID
}

func getMatchFieldByID(table *p4ConfigV1.Table, id uint32) *p4ConfigV1.MatchField {
	for _, field := range table.GetMatchFields() {
		if field.GetId() == id {
			return field
		}
	}

	return nil
}

func getActionParamByID(action *p4ConfigV1.Action, id uint32) *p4ConfigV1.Action_Param {
	for _, param := range action.GetParams() {
		if param.GetId() == id {
			return param
		}
	}

	return nil
}
