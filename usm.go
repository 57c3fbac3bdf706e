// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net"
)

// DefaultUSMCacheSize is the number of concurrently verified requests the
// USM can hold credentials for.
const DefaultUSMCacheSize = 32

// UserSecurityModel is the RFC 3414 User-based Security Model acting as the
// authoritative engine.
type UserSecurityModel struct {
	engineID []byte
	clock    *EngineClock
	users    *UserTable
	cache    *usmCache
	stats    *Statistics
	store    UserStore
	Logger   Logger

	// onAuthFailure is called after a wrong digest was counted.
	onAuthFailure func(addr net.Addr, model SecurityModelID)
}

// Compile-time interface check
var _ SecurityModel = (*UserSecurityModel)(nil)

// NewUserSecurityModel creates a USM for the local engine.
func NewUserSecurityModel(engineID []byte, clock *EngineClock, users *UserTable, stats *Statistics, cacheSize int) *UserSecurityModel {
	if cacheSize <= 0 {
		cacheSize = DefaultUSMCacheSize
	}
	if users == nil {
		users = NewUserTable()
	}
	if stats == nil {
		stats = &Statistics{}
	}
	return &UserSecurityModel{
		engineID: bytes.Clone(engineID),
		clock:    clock,
		users:    users,
		cache:    newUSMCache(cacheSize),
		stats:    stats,
	}
}

func (u *UserSecurityModel) ID() SecurityModelID { return SecurityModelUSM }

// Users returns the user table.
func (u *UserSecurityModel) Users() *UserTable { return u.users }

// LocalizeUser builds a user row for the local engine with keys derived
// from the passwords (RFC 3414 §A.2).
func (u *UserSecurityModel) LocalizeUser(name string, auth SnmpV3AuthProtocol, authPassword string, priv SnmpV3PrivProtocol, privPassword string) (*UsmUser, error) {
	user := &UsmUser{
		EngineID:     bytes.Clone(u.engineID),
		UserName:     name,
		SecurityName: name,
		AuthProtocol: auth,
		PrivProtocol: priv,
		StorageType:  StorageNonVolatile,
		RowStatus:    RowActive,
	}
	if auth <= NoAuth {
		if priv > NoPriv {
			return nil, fmt.Errorf("user %q: privacy without authentication: %w", name, ErrUnsupportedSecurityLevel)
		}
		user.AuthProtocol, user.PrivProtocol = NoAuth, NoPriv
		return user, nil
	}
	ap := LookupAuthProtocol(auth)
	if ap == nil {
		return nil, fmt.Errorf("user %q: unsupported auth protocol %v", name, auth)
	}
	key, err := ap.PasswordToKey(authPassword, u.engineID)
	if err != nil {
		return nil, fmt.Errorf("user %q: auth key: %w", name, err)
	}
	user.AuthKey = key
	if priv <= NoPriv {
		user.PrivProtocol = NoPriv
		return user, nil
	}
	pp := LookupPrivProtocol(priv)
	if pp == nil {
		return nil, fmt.Errorf("user %q: unsupported priv protocol %v", name, priv)
	}
	if user.PrivKey, err = LocalizePrivKey(ap, pp, privPassword, u.engineID); err != nil {
		return nil, fmt.Errorf("user %q: priv key: %w", name, err)
	}
	return user, nil
}

// AddUser localizes the passwords of a user and adds it to the table,
// persisting it when a store is attached.
func (u *UserSecurityModel) AddUser(name string, auth SnmpV3AuthProtocol, authPassword string, priv SnmpV3PrivProtocol, privPassword string) error {
	user, err := u.LocalizeUser(name, auth, authPassword, priv, privPassword)
	if err != nil {
		return err
	}
	if err = u.users.Add(user); err != nil {
		return err
	}
	return u.persist(user)
}

// ChangeKey applies a usmUser*KeyChange value and persists the new key.
func (u *UserSecurityModel) ChangeKey(userName string, kind KeyKind, own bool, requester string, keyChange []byte) error {
	if err := u.users.ChangeKey(u.engineID, userName, kind, own, requester, keyChange); err != nil {
		return err
	}
	user, ok := u.users.Lookup(u.engineID, userName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUserNotFound, userName)
	}
	return u.persist(user)
}

func (u *UserSecurityModel) persist(user *UsmUser) error {
	if u.store == nil || user.StorageType != StorageNonVolatile {
		return nil
	}
	if err := u.store.SaveUser(user); err != nil {
		return fmt.Errorf("user %q: persist: %w", user.UserName, err)
	}
	return nil
}

func (u *UserSecurityModel) fail(res *VerifyResult, ref usmStateRef, c Counter, level SecurityLevel, err error) (*VerifyResult, error) {
	u.cache.release(ref)
	res.ErrorIndication = u.stats.indicate(c)
	res.SecurityLevel = level
	return res, err
}

// Verify implements RFC 3414 §3.2 processIncomingMsg.
func (u *UserSecurityModel) Verify(p *VerifyParams) (*VerifyResult, error) {
	sp, err := unmarshalUsmParams(p.SecurityParams)
	if err != nil {
		return nil, err
	}
	ref, err := u.cache.claim()
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{
		SecurityEngineID: sp.AuthoritativeEngineID,
		UserName:         sp.UserName,
		SecurityName:     sp.UserName,
		SecurityLevel:    p.SecurityLevel,
	}

	if !bytes.Equal(sp.AuthoritativeEngineID, u.engineID) {
		u.Logger.Printf("unknown engine id %s", hex.EncodeToString(sp.AuthoritativeEngineID))
		return u.fail(res, ref, UsmStatsUnknownEngineIDs, NoAuthNoPriv, ErrUnknownEngineID)
	}

	user, ok := u.users.Lookup(sp.AuthoritativeEngineID, sp.UserName)
	if !ok || !user.active() {
		u.Logger.Printf("unknown user %q", sp.UserName)
		return u.fail(res, ref, UsmStatsUnknownUserNames, NoAuthNoPriv, ErrUnknownUserName)
	}
	res.SecurityName = user.SecurityName

	auth := LookupAuthProtocol(user.AuthProtocol)
	priv := LookupPrivProtocol(user.PrivProtocol)
	switch p.SecurityLevel {
	case AuthPriv:
		if auth == nil || priv == nil {
			return u.fail(res, ref, UsmStatsUnsupportedSecLevels, NoAuthNoPriv, ErrUnsupportedSecurityLevel)
		}
	case AuthNoPriv:
		if auth == nil {
			return u.fail(res, ref, UsmStatsUnsupportedSecLevels, NoAuthNoPriv, ErrUnsupportedSecurityLevel)
		}
		priv = nil
	default:
		auth, priv = nil, nil
	}

	if auth != nil {
		if !u.authentic(auth, user.AuthKey, p, sp) {
			res, err = u.fail(res, ref, UsmStatsWrongDigests, NoAuthNoPriv, ErrAuthenticationError)
			if u.onAuthFailure != nil {
				u.onAuthFailure(p.Addr, SecurityModelUSM)
			}
			return res, err
		}
		if !u.clock.inWindow(sp.AuthoritativeEngineBoots, sp.AuthoritativeEngineTime) {
			return u.fail(res, ref, UsmStatsNotInTimeWindows, AuthNoPriv, ErrNotInTimeWindow)
		}
	}

	if priv != nil {
		ciphertext, err := newBerReader(p.MsgData).readOctetString()
		if err != nil {
			u.cache.release(ref)
			return res, fmt.Errorf("%w: encryptedPDU is not an octet string: %v", ErrParse, err)
		}
		plain, err := priv.Decrypt(user.PrivKey, sp.AuthoritativeEngineBoots, sp.AuthoritativeEngineTime,
			sp.PrivacyParameters, ciphertext)
		if err != nil {
			return u.fail(res, ref, UsmStatsDecryptionErrors, NoAuthNoPriv, ErrDecryptionError)
		}
		res.ScopedPDU = plain
	} else {
		res.ScopedPDU = p.MsgData
	}
	if len(res.ScopedPDU) == 0 || res.ScopedPDU[0] != byte(Sequence) {
		u.cache.release(ref)
		return res, fmt.Errorf("%w: scoped pdu is not a sequence", ErrParse)
	}

	macLen := 0
	if auth != nil {
		macLen = auth.MACLength()
	}
	res.MaxSizeResponseScopedPDU = p.MaxMessageSize - usmResponseOverhead(len(u.engineID), len(user.UserName), macLen, priv != nil)

	u.cache.fill(ref, usmCacheSlot{
		auth:         auth,
		priv:         priv,
		userName:     user.UserName,
		securityName: user.SecurityName,
		authKey:      user.AuthKey,
		privKey:      user.PrivKey,
	})
	res.StateRef = ref
	return res, nil
}

// authentic checks msgAuthenticationParameters against an HMAC computed
// over the whole message with that field zeroed.
func (u *UserSecurityModel) authentic(auth AuthProtocol, key []byte, p *VerifyParams, sp *usmSecurityParameters) bool {
	mac := sp.AuthenticationParameters
	if len(mac) != auth.MACLength() {
		return false
	}
	off := p.SecurityParamsOffset + sp.authOffset
	if off < 0 || off+len(mac) > len(p.WholeMsg) {
		return false
	}
	msg := bytes.Clone(p.WholeMsg)
	clear(msg[off : off+len(mac)])
	return auth.Verify(key, msg, mac)
}

// ReleaseState frees the cache slot behind ref.
func (u *UserSecurityModel) ReleaseState(ref SecurityStateRef) {
	if r, ok := ref.(usmStateRef); ok {
		u.cache.release(r)
	}
}

// Secure implements RFC 3414 §3.1 generateResponseMsg / generateRequestMsg
// for the local authoritative engine.
func (u *UserSecurityModel) Secure(p *SecureParams) ([]byte, error) {
	slot, err := u.credentials(p)
	if err != nil {
		return nil, err
	}

	var auth AuthProtocol
	var priv PrivProtocol
	switch p.SecurityLevel {
	case AuthPriv:
		if slot.auth == nil || slot.priv == nil {
			return nil, ErrUnsupportedSecurityLevel
		}
		auth, priv = slot.auth, slot.priv
	case AuthNoPriv:
		if slot.auth == nil {
			return nil, ErrUnsupportedSecurityLevel
		}
		auth = slot.auth
	}

	boots, engineTime := u.clock.Now()
	boots = min(boots, EngineBootsLatched)
	sp := &usmSecurityParameters{
		AuthoritativeEngineID:    u.engineID,
		AuthoritativeEngineBoots: boots,
		AuthoritativeEngineTime:  engineTime,
		UserName:                 slot.userName,
	}

	msgData := p.ScopedPDU
	if priv != nil {
		ciphertext, salt, err := priv.Encrypt(slot.privKey, boots, engineTime, p.ScopedPDU)
		if err != nil {
			return nil, err
		}
		sp.PrivacyParameters = salt
		enc := newBerBuilder()
		if err = enc.writeOctetString(ciphertext); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncryptionError, err)
		}
		msgData = enc.bytes()
	}

	macLen := 0
	if auth != nil {
		macLen = auth.MACLength()
	}
	secParams, err := marshalUsmParams(sp, macLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	body := newBerBuilder()
	if err = body.writeInt(int(Version3)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	body.writeRaw(p.MsgGlobalData)
	body.append(secParams)
	body.writeRaw(msgData)
	msg, err := body.wrap(byte(Sequence))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if auth != nil {
		if err = msg.patch(authPlaceholder, auth.Sign(slot.authKey, msg.bytes())); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuthenticationError, err)
		}
	}
	return msg.bytes(), nil
}

// credentials resolves the keys for an outbound message: from the cache
// slot of the request being answered, or by a fresh lookup of the security
// name under the local engine id.
func (u *UserSecurityModel) credentials(p *SecureParams) (usmCacheSlot, error) {
	if ref, ok := p.StateRef.(usmStateRef); ok {
		if slot, ok := u.cache.take(ref); ok {
			return slot, nil
		}
	}
	user, ok := u.users.LookupBySecurityName(u.engineID, p.SecurityName)
	if !ok {
		if p.SecurityLevel == NoAuthNoPriv {
			return usmCacheSlot{userName: p.SecurityName, securityName: p.SecurityName}, nil
		}
		return usmCacheSlot{}, fmt.Errorf("%w: %q", ErrUnknownUserName, p.SecurityName)
	}
	return usmCacheSlot{
		auth:         LookupAuthProtocol(user.AuthProtocol),
		priv:         LookupPrivProtocol(user.PrivProtocol),
		userName:     user.UserName,
		securityName: user.SecurityName,
		authKey:      user.AuthKey,
		privKey:      user.PrivKey,
	}, nil
}
