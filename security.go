// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import "net"

// SecurityModel is a pluggable security model (RFC 3411 §4.4).
type SecurityModel interface {
	ID() SecurityModelID

	// Verify authenticates and, where applicable, decrypts an inbound
	// message. On failure the result is still returned when the model
	// could identify enough of the message to build a report.
	Verify(p *VerifyParams) (*VerifyResult, error)

	// Secure assembles and protects an outbound message.
	Secure(p *SecureParams) ([]byte, error)

	// ReleaseState frees a state reference that will never reach Secure.
	ReleaseState(ref SecurityStateRef)
}

// VerifyParams mirrors processIncomingMsg (RFC 3412 §4.4 / RFC 3414 §3.2).
type VerifyParams struct {
	Version        SnmpVersion
	MaxMessageSize int
	SecurityLevel  SecurityLevel

	// SecurityParams is the content of msgSecurityParameters for v3, or the
	// community string for v1/v2c.
	SecurityParams []byte
	// SecurityParamsOffset locates SecurityParams inside WholeMsg.
	SecurityParamsOffset int

	WholeMsg []byte
	// MsgData is the msgData element: a plaintext scoped PDU SEQUENCE or
	// an encrypted OCTET STRING.
	MsgData []byte

	Addr                  net.Addr
	Domain                TransportDomain
	TransportSecurityName string
}

// VerifyResult is the output of a Verify call.
type VerifyResult struct {
	SecurityEngineID []byte
	SecurityName     string
	UserName         string
	SecurityLevel    SecurityLevel

	// ScopedPDU is the plaintext scoped PDU element. Block ciphers may
	// leave padding after it.
	ScopedPDU []byte

	MaxSizeResponseScopedPDU int
	StateRef                 SecurityStateRef
	ErrorIndication          ErrorIndication

	// Set by the community model from its mapping table.
	ContextEngineID []byte
	ContextName     string
}

// SecureParams mirrors generateResponseMsg / generateRequestMsg.
type SecureParams struct {
	Version SnmpVersion

	// MsgGlobalData is the encoded v3 HeaderData SEQUENCE.
	MsgGlobalData []byte

	MaxMessageSize   int
	SecurityEngineID []byte
	SecurityName     string
	SecurityLevel    SecurityLevel

	// ScopedPDU is the encoded scoped PDU (v3) or PDU (v1/v2c).
	ScopedPDU []byte

	// StateRef, when set, carries the credentials of the request being
	// answered and is consumed by Secure.
	StateRef SecurityStateRef
}
