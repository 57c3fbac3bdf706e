// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testSession() *Session {
	return &Session{
		Version:         Version3,
		SecurityModel:   SecurityModelUSM,
		SecurityLevel:   AuthPriv,
		SecurityName:    "alice",
		Community:       "secret-community",
		ContextEngineID: testEngineID,
		MsgID:           1001,
		MsgMaxSize:      DefaultMaxMessageSize,
		PDU:             *testGetPDU(),
		securityState:   usmStateRef{},
	}
}

func TestSessionSafeString(t *testing.T) {
	s := testSession()
	out := s.SafeString()
	assert.Contains(t, out, "Version:3")
	assert.Contains(t, out, "SecurityLevel:authPriv")
	assert.Contains(t, out, "SecurityName:alice")
	assert.Contains(t, out, "PDUType:GetRequest")
	assert.Contains(t, out, "RequestID:4242")
	assert.NotContains(t, out, "secret-community")
	assert.NotContains(t, out, "Report:")

	s.Report = ErrorIndication{OID: usmStatsUnknownUserNames, Value: 1}
	assert.Contains(t, s.SafeString(), ", Report:"+usmStatsUnknownUserNames+", Variables:")
}

func TestVersionAndDomainStrings(t *testing.T) {
	assert.Equal(t, "2c", Version2c.String())
	assert.Equal(t, "unknown(2)", SnmpVersion(2).String())
	assert.Equal(t, "dtls", DomainDTLS.String())
	assert.Equal(t, "TransportDomain(9)", TransportDomain(9).String())
	assert.Equal(t, "SecurityLevel(0)", SecurityLevel(0).String())
}

func BenchmarkSessionSafeString(b *testing.B) {
	s := testSession()
	b.ReportAllocs()
	for b.Loop() {
		_ = s.SafeString()
	}
}
