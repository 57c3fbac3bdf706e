// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"fmt"
	"sync/atomic"
)

// Counter names one of the engine's statistics counters.
type Counter int

// SNMPv2-MIB snmp group (RFC 3418), SNMP-MPD-MIB (RFC 3412),
// SNMP-USER-BASED-SM-MIB (RFC 3414) and SNMP-TSM-MIB (RFC 5591) counters.
const (
	SnmpInPkts Counter = iota
	SnmpOutPkts
	SnmpInBadVersions
	SnmpInBadCommunityNames
	SnmpInBadCommunityUses
	SnmpInASNParseErrs
	SnmpSilentDrops
	SnmpProxyDrops
	SnmpUnknownSecurityModels
	SnmpInvalidMsgs
	SnmpUnknownPDUHandlers
	UsmStatsUnsupportedSecLevels
	UsmStatsNotInTimeWindows
	UsmStatsUnknownUserNames
	UsmStatsUnknownEngineIDs
	UsmStatsWrongDigests
	UsmStatsDecryptionErrors
	TsmInvalidCaches
	TsmInadequateSecurityLevels
	numCounters
)

// SNMPv3: User-based Security Model Report PDUs and
// error types as per https://tools.ietf.org/html/rfc3414
const (
	usmStatsUnsupportedSecLevels = ".1.3.6.1.6.3.15.1.1.1.0"
	usmStatsNotInTimeWindows     = ".1.3.6.1.6.3.15.1.1.2.0"
	usmStatsUnknownUserNames     = ".1.3.6.1.6.3.15.1.1.3.0"
	usmStatsUnknownEngineIDs     = ".1.3.6.1.6.3.15.1.1.4.0"
	usmStatsWrongDigests         = ".1.3.6.1.6.3.15.1.1.5.0"
	usmStatsDecryptionErrors     = ".1.3.6.1.6.3.15.1.1.6.0"
	snmpUnknownSecurityModels    = ".1.3.6.1.6.3.11.2.1.1.0"
	snmpInvalidMsgs              = ".1.3.6.1.6.3.11.2.1.2.0"
	snmpUnknownPDUHandlers       = ".1.3.6.1.6.3.11.2.1.3.0"
)

var counterInfo = [numCounters]struct {
	name string
	oid  string
}{
	SnmpInPkts:                   {"snmpInPkts", ".1.3.6.1.2.1.11.1.0"},
	SnmpOutPkts:                  {"snmpOutPkts", ".1.3.6.1.2.1.11.2.0"},
	SnmpInBadVersions:            {"snmpInBadVersions", ".1.3.6.1.2.1.11.3.0"},
	SnmpInBadCommunityNames:      {"snmpInBadCommunityNames", ".1.3.6.1.2.1.11.4.0"},
	SnmpInBadCommunityUses:       {"snmpInBadCommunityUses", ".1.3.6.1.2.1.11.5.0"},
	SnmpInASNParseErrs:           {"snmpInASNParseErrs", ".1.3.6.1.2.1.11.6.0"},
	SnmpSilentDrops:              {"snmpSilentDrops", ".1.3.6.1.2.1.11.31.0"},
	SnmpProxyDrops:               {"snmpProxyDrops", ".1.3.6.1.2.1.11.32.0"},
	SnmpUnknownSecurityModels:    {"snmpUnknownSecurityModels", snmpUnknownSecurityModels},
	SnmpInvalidMsgs:              {"snmpInvalidMsgs", snmpInvalidMsgs},
	SnmpUnknownPDUHandlers:       {"snmpUnknownPDUHandlers", snmpUnknownPDUHandlers},
	UsmStatsUnsupportedSecLevels: {"usmStatsUnsupportedSecLevels", usmStatsUnsupportedSecLevels},
	UsmStatsNotInTimeWindows:     {"usmStatsNotInTimeWindows", usmStatsNotInTimeWindows},
	UsmStatsUnknownUserNames:     {"usmStatsUnknownUserNames", usmStatsUnknownUserNames},
	UsmStatsUnknownEngineIDs:     {"usmStatsUnknownEngineIDs", usmStatsUnknownEngineIDs},
	UsmStatsWrongDigests:         {"usmStatsWrongDigests", usmStatsWrongDigests},
	UsmStatsDecryptionErrors:     {"usmStatsDecryptionErrors", usmStatsDecryptionErrors},
	TsmInvalidCaches:             {"snmpTsmInvalidCaches", ".1.3.6.1.2.1.190.1.1.1.0"},
	TsmInadequateSecurityLevels:  {"snmpTsmInadequateSecurityLevels", ".1.3.6.1.2.1.190.1.1.2.0"},
}

func (c Counter) String() string {
	if c >= 0 && c < numCounters {
		return counterInfo[c].name
	}
	return fmt.Sprintf("Counter(%d)", int(c))
}

// OID returns the instance OID of the counter.
func (c Counter) OID() string {
	if c >= 0 && c < numCounters {
		return counterInfo[c].oid
	}
	return ""
}

// Statistics holds the engine counters. Counters are Counter32 and wrap.
type Statistics struct {
	counters [numCounters]atomic.Uint32
}

// Inc increments c and returns the new value.
func (s *Statistics) Inc(c Counter) uint32 {
	return s.counters[c].Add(1)
}

// Get returns the current value of c.
func (s *Statistics) Get(c Counter) uint32 {
	return s.counters[c].Load()
}

// indicate increments c and returns the error indication naming it.
func (s *Statistics) indicate(c Counter) ErrorIndication {
	return ErrorIndication{OID: c.OID(), Value: s.Inc(c)}
}

// Snapshot returns all counters keyed by name.
func (s *Statistics) Snapshot() map[string]uint32 {
	out := make(map[string]uint32, numCounters)
	for c := Counter(0); c < numCounters; c++ {
		out[c.String()] = s.Get(c)
	}
	return out
}
