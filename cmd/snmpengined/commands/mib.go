// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package commands

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/gosnmp/snmpengine"
)

const (
	sysDescrOID    = ".1.3.6.1.2.1.1.1.0"
	sysObjectIDOID = ".1.3.6.1.2.1.1.2.0"
	sysUpTimeOID   = ".1.3.6.1.2.1.1.3.0"
	sysNameOID     = ".1.3.6.1.2.1.1.5.0"
	snmpEngineOID  = ".1.3.6.1.6.3.10.2.1"
)

// systemMIB is a read-only command processor for the system group, the
// snmp group counters and snmpEngine. Anything else is reported as
// missing.
type systemMIB struct {
	engine *snmpengine.Engine
	descr  string
	name   string
}

type mibEntry struct {
	oid   []int
	value snmpengine.SnmpPDU
}

func parseOID(s string) []int {
	parts := strings.Split(strings.TrimPrefix(s, "."), ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil
		}
		out = append(out, n)
	}
	return out
}

// entries returns a snapshot of the MIB in lexicographic OID order.
func (m *systemMIB) entries() []mibEntry {
	boots, engineTime := m.engine.Clock().Now()
	vars := []snmpengine.SnmpPDU{
		{Name: sysDescrOID, Type: snmpengine.OctetString, Value: m.descr},
		{Name: sysObjectIDOID, Type: snmpengine.ObjectIdentifier, Value: m.engine.Config().TrapEnterprise},
		{Name: sysUpTimeOID, Type: snmpengine.TimeTicks, Value: m.engine.Clock().Uptime()},
		{Name: sysNameOID, Type: snmpengine.OctetString, Value: m.name},
		{Name: snmpEngineOID + ".1.0", Type: snmpengine.OctetString, Value: m.engine.EngineID()},
		{Name: snmpEngineOID + ".2.0", Type: snmpengine.Integer, Value: int(boots)},
		{Name: snmpEngineOID + ".3.0", Type: snmpengine.Integer, Value: int(engineTime)},
		{Name: snmpEngineOID + ".4.0", Type: snmpengine.Integer, Value: m.engine.Config().MaxMessageSize},
	}
	stats := m.engine.Stats()
	for c := snmpengine.SnmpInPkts; c <= snmpengine.TsmInadequateSecurityLevels; c++ {
		vars = append(vars, snmpengine.SnmpPDU{Name: c.OID(), Type: snmpengine.Counter32, Value: stats.Get(c)})
	}

	out := make([]mibEntry, 0, len(vars))
	for _, v := range vars {
		out = append(out, mibEntry{oid: parseOID(v.Name), value: v})
	}
	slices.SortFunc(out, func(a, b mibEntry) int { return slices.Compare(a.oid, b.oid) })
	return out
}

func lookup(entries []mibEntry, name string) (snmpengine.SnmpPDU, bool) {
	oid := parseOID(name)
	i, found := slices.BinarySearchFunc(entries, oid, func(e mibEntry, t []int) int { return slices.Compare(e.oid, t) })
	if !found {
		return snmpengine.SnmpPDU{Name: name, Type: snmpengine.NoSuchObject}, false
	}
	return entries[i].value, true
}

func next(entries []mibEntry, name string) snmpengine.SnmpPDU {
	oid := parseOID(name)
	for _, e := range entries {
		if slices.Compare(e.oid, oid) > 0 {
			return e.value
		}
	}
	return snmpengine.SnmpPDU{Name: name, Type: snmpengine.EndOfMibView}
}

func (m *systemMIB) ProcessPDU(_ context.Context, s *snmpengine.Session) error {
	entries := m.entries()
	pdu := &s.PDU
	switch pdu.Type {
	case snmpengine.GetRequest:
		for i, v := range pdu.Variables {
			pdu.Variables[i], _ = lookup(entries, v.Name)
		}
	case snmpengine.GetNextRequest:
		for i, v := range pdu.Variables {
			pdu.Variables[i] = next(entries, v.Name)
		}
	case snmpengine.GetBulkRequest:
		pdu.Variables = bulk(entries, pdu.Variables, pdu.NonRepeaters, pdu.MaxRepetitions)
		pdu.Error, pdu.ErrorIndex = snmpengine.NoError, 0
	case snmpengine.SetRequest:
		pdu.Error = snmpengine.NotWritable
		pdu.ErrorIndex = 1
	}
	return nil
}

// bulk implements the RFC 3416 §4.2.3 repetition over next.
func bulk(entries []mibEntry, vars []snmpengine.SnmpPDU, nonRepeaters, maxRepetitions int) []snmpengine.SnmpPDU {
	nonRepeaters = min(max(nonRepeaters, 0), len(vars))
	maxRepetitions = max(maxRepetitions, 0)
	out := make([]snmpengine.SnmpPDU, 0, nonRepeaters+maxRepetitions*(len(vars)-nonRepeaters))
	for _, v := range vars[:nonRepeaters] {
		out = append(out, next(entries, v.Name))
	}
	cursor := make([]string, 0, len(vars)-nonRepeaters)
	for _, v := range vars[nonRepeaters:] {
		cursor = append(cursor, v.Name)
	}
	for range maxRepetitions {
		done := true
		for i, name := range cursor {
			v := next(entries, name)
			out = append(out, v)
			if v.Type != snmpengine.EndOfMibView {
				cursor[i] = v.Name
				done = false
			}
		}
		if done {
			break
		}
	}
	return out
}
