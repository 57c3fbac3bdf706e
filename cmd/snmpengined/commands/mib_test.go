// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package commands

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosnmp/snmpengine"
)

func newTestMIB(t *testing.T) *systemMIB {
	t.Helper()
	e, err := snmpengine.NewEngine(snmpengine.Config{TrapEnterprise: ".1.3.6.1.4.1.8072.3.2.10"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return &systemMIB{engine: e, descr: "test agent", name: "agent01"}
}

func TestMIBEntriesSorted(t *testing.T) {
	entries := newTestMIB(t).entries()
	require.NotEmpty(t, entries)
	assert.True(t, slices.IsSortedFunc(entries, func(a, b mibEntry) int { return slices.Compare(a.oid, b.oid) }))
	assert.Equal(t, sysDescrOID, entries[0].value.Name)
}

func TestMIBLookupAndNext(t *testing.T) {
	entries := newTestMIB(t).entries()

	v, ok := lookup(entries, sysNameOID)
	require.True(t, ok)
	assert.Equal(t, "agent01", v.Value)

	v, ok = lookup(entries, ".1.3.6.1.2.1.1.9.0")
	assert.False(t, ok)
	assert.Equal(t, snmpengine.NoSuchObject, v.Type)

	tests := []struct {
		from     string
		expected string
	}{
		{".1.3.6.1.2.1.1", sysDescrOID},
		{sysDescrOID, sysObjectIDOID},
		{sysObjectIDOID, sysUpTimeOID},
		{".1.3.6.1.2.1.1.3.5", sysNameOID},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, next(entries, test.from).Name, test.from)
	}

	last := entries[len(entries)-1].value.Name
	assert.Equal(t, snmpengine.EndOfMibView, next(entries, last).Type)
}

func TestMIBProcessPDU(t *testing.T) {
	m := newTestMIB(t)
	ctx := context.Background()

	s := &snmpengine.Session{PDU: snmpengine.PDU{
		Type:      snmpengine.GetRequest,
		Variables: []snmpengine.SnmpPDU{{Name: sysDescrOID}, {Name: ".1.3.6.1.2.1.1.99.0"}},
	}}
	require.NoError(t, m.ProcessPDU(ctx, s))
	assert.Equal(t, "test agent", s.PDU.Variables[0].Value)
	assert.Equal(t, snmpengine.NoSuchObject, s.PDU.Variables[1].Type)

	s = &snmpengine.Session{PDU: snmpengine.PDU{
		Type:      snmpengine.GetNextRequest,
		Variables: []snmpengine.SnmpPDU{{Name: sysUpTimeOID}},
	}}
	require.NoError(t, m.ProcessPDU(ctx, s))
	assert.Equal(t, sysNameOID, s.PDU.Variables[0].Name)

	s = &snmpengine.Session{PDU: snmpengine.PDU{
		Type:      snmpengine.SetRequest,
		Variables: []snmpengine.SnmpPDU{{Name: sysNameOID, Type: snmpengine.OctetString, Value: "x"}},
	}}
	require.NoError(t, m.ProcessPDU(ctx, s))
	assert.Equal(t, snmpengine.NotWritable, s.PDU.Error)
	assert.Equal(t, 1, s.PDU.ErrorIndex)
}

func TestMIBBulk(t *testing.T) {
	m := newTestMIB(t)
	s := &snmpengine.Session{PDU: snmpengine.PDU{
		Type:           snmpengine.GetBulkRequest,
		NonRepeaters:   1,
		MaxRepetitions: 2,
		Variables:      []snmpengine.SnmpPDU{{Name: sysDescrOID}, {Name: sysDescrOID}},
	}}
	require.NoError(t, m.ProcessPDU(context.Background(), s))

	var names []string
	for _, v := range s.PDU.Variables {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{sysObjectIDOID, sysObjectIDOID, sysUpTimeOID}, names)
	assert.Equal(t, snmpengine.NoError, s.PDU.Error)

	entries := m.entries()
	last := entries[len(entries)-1].value.Name
	out := bulk(entries, []snmpengine.SnmpPDU{{Name: last}}, 0, 10)
	require.Len(t, out, 1)
	assert.Equal(t, snmpengine.EndOfMibView, out[0].Type)

	assert.Len(t, bulk(entries, []snmpengine.SnmpPDU{{Name: sysDescrOID}}, 5, 0), 1)
}
