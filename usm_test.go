// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEngineID = []byte{0x80, 0x00, 0x1f, 0x88, 0x80, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

// fakeTime drives an EngineClock in tests.
type fakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeTime) get() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) set(d time.Duration, base time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = base.Add(d)
}

func newTestClock(boots uint32) (*EngineClock, *fakeTime, time.Time) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ft := &fakeTime{now: base}
	c := NewEngineClock(boots)
	c.start = base
	c.now = ft.get
	return c, ft, base
}

func newTestUSM(t *testing.T, clock *EngineClock) *UserSecurityModel {
	t.Helper()
	u := NewUserSecurityModel(testEngineID, clock, nil, nil, 4)
	require.NoError(t, u.AddUser("alice", SHA, "authpassword", AES, "privpassword"))
	require.NoError(t, u.AddUser("bob", MD5, "authpassword", NoPriv, ""))
	require.NoError(t, u.AddUser("carol", NoAuth, "", NoPriv, ""))
	return u
}

func testGetPDU() *PDU {
	return &PDU{
		Type:      GetRequest,
		RequestID: 4242,
		Variables: []SnmpPDU{{Name: ".1.3.6.1.2.1.1.3.0", Type: Null}},
	}
}

// secureRequest encodes a request as a manager would: it is protected by a
// USM holding the same localized keys as the agent.
func secureRequest(t *testing.T, u *UserSecurityModel, name string, level SecurityLevel, flags SnmpV3MsgFlags, pdu *PDU) []byte {
	t.Helper()
	prefix, err := contextPrefix(u.engineID, "")
	require.NoError(t, err)
	scoped, err := marshalScopedPDU(prefix, pdu)
	require.NoError(t, err)
	global, err := marshalGlobalData(1001, DefaultMaxMessageSize, flags, SecurityModelUSM)
	require.NoError(t, err)
	msg, err := u.Secure(&SecureParams{
		Version:       Version3,
		MsgGlobalData: global,
		SecurityName:  name,
		SecurityLevel: level,
		ScopedPDU:     scoped,
	})
	require.NoError(t, err)
	return msg
}

func verifyParamsFor(t *testing.T, msg []byte) *VerifyParams {
	t.Helper()
	h, err := parseV3Header(msg)
	require.NoError(t, err)
	level, ok := h.flags.level()
	require.True(t, ok)
	return &VerifyParams{
		Version:              Version3,
		MaxMessageSize:       DefaultMaxMessageSize,
		SecurityLevel:        level,
		SecurityParams:       h.secParams,
		SecurityParamsOffset: h.secOffset,
		WholeMsg:             msg,
		MsgData:              h.msgData,
		Addr:                 &net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 50000},
	}
}

func TestUSMVerifyLevels(t *testing.T) {
	tests := []struct {
		user  string
		level SecurityLevel
	}{
		{"alice", AuthPriv},
		{"alice", AuthNoPriv},
		{"bob", AuthNoPriv},
		{"carol", NoAuthNoPriv},
	}
	for _, tt := range tests {
		t.Run(tt.user+"/"+tt.level.String(), func(t *testing.T) {
			clock, _, _ := newTestClock(3)
			u := newTestUSM(t, clock)
			msg := secureRequest(t, u, tt.user, tt.level, msgFlagsFor(tt.level, true), testGetPDU())

			res, err := u.Verify(verifyParamsFor(t, msg))
			require.NoError(t, err)
			assert.Equal(t, tt.user, res.SecurityName)
			assert.Equal(t, testEngineID, res.SecurityEngineID)
			assert.False(t, res.ErrorIndication.pending())
			assert.Positive(t, res.MaxSizeResponseScopedPDU)

			engineID, contextName, pdu, err := parseScopedPDU(res.ScopedPDU)
			require.NoError(t, err)
			assert.Equal(t, testEngineID, engineID)
			assert.Empty(t, contextName)
			assert.Equal(t, int32(4242), pdu.RequestID)

			assert.Equal(t, 1, u.cache.inUse())
			u.ReleaseState(res.StateRef)
			assert.Equal(t, 0, u.cache.inUse())
		})
	}
}

func TestUSMWrongDigest(t *testing.T) {
	clock, _, _ := newTestClock(1)
	u := newTestUSM(t, clock)
	var failures []SecurityModelID
	u.onAuthFailure = func(_ net.Addr, m SecurityModelID) { failures = append(failures, m) }

	msg := secureRequest(t, u, "bob", AuthNoPriv, msgFlagsFor(AuthNoPriv, true), testGetPDU())
	msg[len(msg)-1] ^= 0xff

	res, err := u.Verify(verifyParamsFor(t, msg))
	require.ErrorIs(t, err, ErrAuthenticationError)
	require.NotNil(t, res)
	assert.Equal(t, usmStatsWrongDigests, res.ErrorIndication.OID)
	assert.Equal(t, uint32(1), res.ErrorIndication.Value)
	assert.Equal(t, NoAuthNoPriv, res.SecurityLevel)
	assert.Equal(t, uint32(1), u.stats.Get(UsmStatsWrongDigests))
	assert.Equal(t, []SecurityModelID{SecurityModelUSM}, failures)
	assert.Equal(t, 0, u.cache.inUse())
}

func TestUSMTimeWindow(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"same_second", 0, true},
		{"150_later", 150 * time.Second, true},
		{"151_later", 151 * time.Second, false},
		{"150_earlier", -150 * time.Second, true},
		{"151_earlier", -151 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock, ft, base := newTestClock(5)
			u := newTestUSM(t, clock)

			ft.set(1000*time.Second, base)
			msg := secureRequest(t, u, "bob", AuthNoPriv, msgFlagsFor(AuthNoPriv, true), testGetPDU())

			ft.set(1000*time.Second+tt.offset, base)
			res, err := u.Verify(verifyParamsFor(t, msg))
			if tt.ok {
				require.NoError(t, err)
				u.ReleaseState(res.StateRef)
				return
			}
			require.ErrorIs(t, err, ErrNotInTimeWindow)
			assert.Equal(t, usmStatsNotInTimeWindows, res.ErrorIndication.OID)
			// the report for notInTimeWindow is authenticated
			assert.Equal(t, AuthNoPriv, res.SecurityLevel)
		})
	}
}

func TestUSMBootsMismatchAndLatch(t *testing.T) {
	clock, _, _ := newTestClock(5)
	u := newTestUSM(t, clock)
	msg := secureRequest(t, u, "bob", AuthNoPriv, msgFlagsFor(AuthNoPriv, true), testGetPDU())

	clock.Reboot()
	_, err := u.Verify(verifyParamsFor(t, msg))
	assert.ErrorIs(t, err, ErrNotInTimeWindow)

	for _, boots := range []uint32{EngineBootsLatched, math.MaxUint32} {
		latched, _, _ := newTestClock(boots)
		u = newTestUSM(t, latched)
		msg = secureRequest(t, u, "bob", AuthNoPriv, msgFlagsFor(AuthNoPriv, true), testGetPDU())

		// the latched value must still be a valid msgAuthoritativeEngineBoots
		h, err := parseV3Header(msg)
		require.NoError(t, err)
		sp, err := unmarshalUsmParams(h.secParams)
		require.NoError(t, err)
		assert.Equal(t, uint32(math.MaxInt32), sp.AuthoritativeEngineBoots)

		_, err = u.Verify(verifyParamsFor(t, msg))
		assert.ErrorIs(t, err, ErrNotInTimeWindow)
		assert.Equal(t, uint32(EngineBootsLatched), latched.Reboot())
	}
}

func TestUSMUnknownUser(t *testing.T) {
	clock, _, _ := newTestClock(1)
	u := newTestUSM(t, clock)
	msg := secureRequest(t, u, "mallory", NoAuthNoPriv, msgFlagsFor(NoAuthNoPriv, true), testGetPDU())

	res, err := u.Verify(verifyParamsFor(t, msg))
	require.ErrorIs(t, err, ErrUnknownUserName)
	assert.Equal(t, usmStatsUnknownUserNames, res.ErrorIndication.OID)
	assert.Equal(t, "mallory", res.UserName)
	assert.Equal(t, NoAuthNoPriv, res.SecurityLevel)
	assert.Equal(t, uint32(1), u.stats.Get(UsmStatsUnknownUserNames))
}

func TestUSMUnknownEngineID(t *testing.T) {
	clock, _, _ := newTestClock(1)
	u := newTestUSM(t, clock)

	other := NewUserSecurityModel([]byte{0x80, 0, 0, 0, 1, 9, 9, 9, 9}, clock, nil, nil, 1)
	require.NoError(t, other.AddUser("bob", MD5, "authpassword", NoPriv, ""))
	msg := secureRequest(t, other, "bob", AuthNoPriv, msgFlagsFor(AuthNoPriv, true), testGetPDU())

	res, err := u.Verify(verifyParamsFor(t, msg))
	require.ErrorIs(t, err, ErrUnknownEngineID)
	assert.Equal(t, usmStatsUnknownEngineIDs, res.ErrorIndication.OID)
	assert.Equal(t, uint32(1), u.stats.Get(UsmStatsUnknownEngineIDs))
}

func TestUSMUnsupportedSecurityLevel(t *testing.T) {
	clock, _, _ := newTestClock(1)
	u := newTestUSM(t, clock)

	// the manager believes bob has a privacy key
	manager := NewUserSecurityModel(testEngineID, clock, nil, nil, 1)
	require.NoError(t, manager.AddUser("bob", MD5, "authpassword", DES, "privpassword"))
	msg := secureRequest(t, manager, "bob", AuthPriv, msgFlagsFor(AuthPriv, true), testGetPDU())

	res, err := u.Verify(verifyParamsFor(t, msg))
	require.ErrorIs(t, err, ErrUnsupportedSecurityLevel)
	assert.Equal(t, usmStatsUnsupportedSecLevels, res.ErrorIndication.OID)
}

func TestUSMDecryptionError(t *testing.T) {
	clock, _, _ := newTestClock(1)
	u := newTestUSM(t, clock)

	require.NoError(t, u.AddUser("erin", SHA, "authpassword", DES, "privpassword"))

	// The manager encrypts with AES, so the agent's DES decrypt sees a
	// ciphertext that is not a whole number of blocks.
	manager := NewUserSecurityModel(testEngineID, clock, nil, nil, 1)
	require.NoError(t, manager.AddUser("erin", SHA, "authpassword", AES, "privpassword"))
	pdu := testGetPDU()
	prefix, err := contextPrefix(testEngineID, "")
	require.NoError(t, err)
	for {
		scoped, err := marshalScopedPDU(prefix, pdu)
		require.NoError(t, err)
		if len(scoped)%8 != 0 {
			break
		}
		pdu.Variables = append(pdu.Variables, SnmpPDU{Name: ".1.3.6.1.2.1.1.3.0", Type: Null})
	}
	msg := secureRequest(t, manager, "erin", AuthPriv, msgFlagsFor(AuthPriv, true), pdu)

	res, err := u.Verify(verifyParamsFor(t, msg))
	require.ErrorIs(t, err, ErrDecryptionError)
	assert.Equal(t, usmStatsDecryptionErrors, res.ErrorIndication.OID)
	assert.Equal(t, uint32(1), u.stats.Get(UsmStatsDecryptionErrors))
	assert.Equal(t, 0, u.cache.inUse())
}

func TestUSMPrivacyFlagWithPlaintextIsParseError(t *testing.T) {
	clock, _, _ := newTestClock(1)
	u := newTestUSM(t, clock)

	// flagged authPriv but msgData is a plaintext scoped PDU
	msg := secureRequest(t, u, "alice", AuthNoPriv, msgFlagsFor(AuthPriv, true), testGetPDU())
	res, err := u.Verify(verifyParamsFor(t, msg))
	require.ErrorIs(t, err, ErrParse)
	assert.NotErrorIs(t, err, ErrDecryptionError)
	assert.False(t, res.ErrorIndication.pending())
	assert.Equal(t, uint32(0), u.stats.Get(UsmStatsDecryptionErrors))
	assert.Equal(t, 0, u.cache.inUse())
}

func TestUSMCacheFull(t *testing.T) {
	clock, _, _ := newTestClock(1)
	u := NewUserSecurityModel(testEngineID, clock, nil, nil, 1)
	require.NoError(t, u.AddUser("bob", MD5, "authpassword", NoPriv, ""))
	msg := secureRequest(t, u, "bob", AuthNoPriv, msgFlagsFor(AuthNoPriv, true), testGetPDU())

	res, err := u.Verify(verifyParamsFor(t, msg))
	require.NoError(t, err)
	_, err = u.Verify(verifyParamsFor(t, msg))
	assert.ErrorIs(t, err, ErrCacheFull)

	u.ReleaseState(res.StateRef)
	// a released ref cannot be released or taken twice
	u.ReleaseState(res.StateRef)
	res, err = u.Verify(verifyParamsFor(t, msg))
	require.NoError(t, err)
	u.ReleaseState(res.StateRef)
}

func TestUSMSecureConsumesState(t *testing.T) {
	clock, _, _ := newTestClock(1)
	u := newTestUSM(t, clock)
	msg := secureRequest(t, u, "alice", AuthPriv, msgFlagsFor(AuthPriv, true), testGetPDU())
	res, err := u.Verify(verifyParamsFor(t, msg))
	require.NoError(t, err)

	global, err := marshalGlobalData(1001, DefaultMaxMessageSize, msgFlagsFor(AuthPriv, false), SecurityModelUSM)
	require.NoError(t, err)
	out, err := u.Secure(&SecureParams{
		Version:       Version3,
		MsgGlobalData: global,
		SecurityName:  "alice",
		SecurityLevel: AuthPriv,
		ScopedPDU:     res.ScopedPDU,
		StateRef:      res.StateRef,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, u.cache.inUse())

	// the response verifies with the same keys
	res, err = u.Verify(verifyParamsFor(t, out))
	require.NoError(t, err)
	u.ReleaseState(res.StateRef)
}

func TestUSMAddUserValidation(t *testing.T) {
	clock, _, _ := newTestClock(1)
	u := NewUserSecurityModel(testEngineID, clock, nil, nil, 1)

	err := u.AddUser("eve", NoAuth, "", AES, "privpassword")
	assert.ErrorIs(t, err, ErrUnsupportedSecurityLevel)
	err = u.AddUser("eve", SHA, "short", NoPriv, "")
	assert.ErrorIs(t, err, errShortPassword)

	require.NoError(t, u.AddUser("eve", SHA, "authpassword", NoPriv, ""))
	assert.ErrorIs(t, u.AddUser("eve", SHA, "authpassword", NoPriv, ""), ErrUserExists)

	user, ok := u.Users().Lookup(testEngineID, "eve")
	require.True(t, ok)
	assert.Equal(t, AuthNoPriv, user.SecurityLevel())
	assert.Equal(t, StorageNonVolatile, user.StorageType)
}

func TestUSMMalformedSecurityParameters(t *testing.T) {
	clock, _, _ := newTestClock(1)
	u := newTestUSM(t, clock)
	p := verifyParamsFor(t, secureRequest(t, u, "carol", NoAuthNoPriv, msgFlagsFor(NoAuthNoPriv, true), testGetPDU()))

	// an OCTET STRING where the USM SEQUENCE belongs
	p.SecurityParams = []byte{0x04, 0x01, 0x00}
	res, err := u.Verify(p)
	require.ErrorIs(t, err, ErrParse)
	assert.Nil(t, res)
	assert.Equal(t, 0, u.cache.inUse())
	for c := UsmStatsUnsupportedSecLevels; c <= UsmStatsDecryptionErrors; c++ {
		assert.Equal(t, uint32(0), u.stats.Get(c), c.String())
	}
}
