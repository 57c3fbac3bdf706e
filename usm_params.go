// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import "fmt"

// Engine IDs are 5 to 32 octets (RFC 3411 SnmpEngineID); the empty value is
// used for discovery.
const (
	minEngineIDLength = 5
	maxEngineIDLength = 32
	maxUserNameLength = 32
	authPlaceholder   = "msgAuthenticationParameters"
)

// usmSecurityParameters is UsmSecurityParameters from RFC 3414 §2.4.
type usmSecurityParameters struct {
	AuthoritativeEngineID    []byte
	AuthoritativeEngineBoots uint32
	AuthoritativeEngineTime  uint32
	UserName                 string
	AuthenticationParameters []byte
	PrivacyParameters        []byte

	// authOffset is the offset of the authentication parameter content
	// within the encoded security parameters.
	authOffset int
}

// unmarshalUsmParams decodes the content of msgSecurityParameters.
func unmarshalUsmParams(data []byte) (*usmSecurityParameters, error) {
	_, hdr, err := parseLength(data)
	if err != nil {
		return nil, err
	}
	r := newBerReader(data)
	seq, err := r.sequence(byte(Sequence))
	if err != nil {
		return nil, fmt.Errorf("usm security parameters: %w", err)
	}
	if !r.empty() {
		return nil, fmt.Errorf("%w: trailing octets after usm security parameters", ErrParse)
	}

	sp := &usmSecurityParameters{}
	if sp.AuthoritativeEngineID, err = seq.readOctetString(); err != nil {
		return nil, fmt.Errorf("msgAuthoritativeEngineID: %w", err)
	}
	if len(sp.AuthoritativeEngineID) > maxEngineIDLength {
		return nil, fmt.Errorf("%w: engine id of %d octets", ErrParse, len(sp.AuthoritativeEngineID))
	}
	if sp.AuthoritativeEngineBoots, err = seq.readUint32(byte(Integer)); err != nil {
		return nil, fmt.Errorf("msgAuthoritativeEngineBoots: %w", err)
	}
	if sp.AuthoritativeEngineTime, err = seq.readUint32(byte(Integer)); err != nil {
		return nil, fmt.Errorf("msgAuthoritativeEngineTime: %w", err)
	}
	name, err := seq.readOctetString()
	if err != nil {
		return nil, fmt.Errorf("msgUserName: %w", err)
	}
	if len(name) > maxUserNameLength {
		return nil, fmt.Errorf("%w: user name of %d octets", ErrParse, len(name))
	}
	sp.UserName = string(name)

	start := seq.offset()
	if sp.AuthenticationParameters, err = seq.readOctetString(); err != nil {
		return nil, fmt.Errorf("msgAuthenticationParameters: %w", err)
	}
	_, cursor, _ := parseLength(seq.data[start:])
	sp.authOffset = hdr + start + cursor

	if sp.PrivacyParameters, err = seq.readOctetString(); err != nil {
		return nil, fmt.Errorf("msgPrivacyParameters: %w", err)
	}
	if !seq.empty() {
		return nil, fmt.Errorf("%w: trailing octets in usm security parameters", ErrParse)
	}
	return sp, nil
}

// marshalUsmParams encodes the msgSecurityParameters OCTET STRING. The
// authentication parameters are written as a zero-filled placeholder of
// macLen octets, recorded under authPlaceholder.
func marshalUsmParams(sp *usmSecurityParameters, macLen int) (*berBuilder, error) {
	b := newBerBuilder()
	if err := b.writeOctetString(sp.AuthoritativeEngineID); err != nil {
		return nil, err
	}
	if err := b.writeUnsigned(Integer, sp.AuthoritativeEngineBoots); err != nil {
		return nil, err
	}
	if err := b.writeUnsigned(Integer, sp.AuthoritativeEngineTime); err != nil {
		return nil, err
	}
	if err := b.writeOctetString([]byte(sp.UserName)); err != nil {
		return nil, err
	}
	if err := b.writePlaceholder(authPlaceholder, byte(OctetString), macLen); err != nil {
		return nil, err
	}
	if err := b.writeOctetString(sp.PrivacyParameters); err != nil {
		return nil, err
	}
	seq, err := b.wrap(byte(Sequence))
	if err != nil {
		return nil, err
	}
	return seq.wrap(byte(OctetString))
}

// usmResponseOverhead estimates the octets a response message spends
// outside its scoped PDU: outer header, global data, security parameters
// and, with privacy, the encrypted OCTET STRING header plus block padding.
func usmResponseOverhead(engineIDLen, userNameLen, macLen int, priv bool) int {
	const (
		outer      = 4 + 3       // SEQUENCE header, msgVersion
		globalData = 2 + 6*3 + 3 // HeaderData with msgID, msgMaxSize, msgSecurityModel and msgFlags
		fixedUSM   = 4 + 4 + 6 + 6
	)
	n := outer + globalData + fixedUSM + 2 + engineIDLen + 2 + userNameLen + 2 + macLen + 2
	if priv {
		n += 8 + 4 + 8
	}
	return n
}
