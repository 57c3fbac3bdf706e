// Copyright 2025 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"fmt"
	"net"
)

// TransportSecurityModel implements the Transport Security Model (RFC 5591)
// for messages received over DTLS. Authentication and privacy are provided
// by the transport; the security name is the tmSecurityName derived from the
// peer certificate (see CertMapping).
type TransportSecurityModel struct {
	engineID []byte
	stats    *Statistics
	Logger   Logger

	// Prefix prepends the transport prefix ("dtls:") to security names
	// (snmpTsmConfigurationUsePrefix).
	Prefix bool
}

// Compile-time interface check
var _ SecurityModel = (*TransportSecurityModel)(nil)

func NewTransportSecurityModel(engineID []byte, stats *Statistics) *TransportSecurityModel {
	if stats == nil {
		stats = &Statistics{}
	}
	return &TransportSecurityModel{engineID: bytes.Clone(engineID), stats: stats}
}

func (t *TransportSecurityModel) ID() SecurityModelID { return SecurityModelTSM }

// tsmStateRef remembers the security name the request arrived with.
type tsmStateRef struct {
	securityName string
	addr         net.Addr
}

// Verify accepts a message if the transport supplied a security name.
// RFC 5591 §5.2: the securityParameters field is an empty OCTET STRING.
func (t *TransportSecurityModel) Verify(p *VerifyParams) (*VerifyResult, error) {
	if len(p.SecurityParams) != 0 {
		return nil, fmt.Errorf("%w: tsm security parameters must be empty", ErrParse)
	}
	res := &VerifyResult{
		SecurityEngineID: t.engineID,
		SecurityLevel:    p.SecurityLevel,
	}
	if p.TransportSecurityName == "" {
		res.ErrorIndication = t.stats.indicate(TsmInvalidCaches)
		res.SecurityLevel = NoAuthNoPriv
		return res, ErrTsmInvalidCache
	}
	if p.Domain != DomainDTLS {
		res.ErrorIndication = t.stats.indicate(TsmInadequateSecurityLevels)
		res.SecurityLevel = NoAuthNoPriv
		return res, ErrTsmInadequateLevel
	}
	if len(p.MsgData) == 0 || p.MsgData[0] != byte(Sequence) {
		return res, fmt.Errorf("%w: scoped pdu is not a sequence", ErrParse)
	}

	name := p.TransportSecurityName
	if t.Prefix {
		name = "dtls:" + name
	}
	t.Logger.Printf("%v authenticated as %q", p.Addr, name)
	res.SecurityName = name
	res.UserName = name
	res.ScopedPDU = p.MsgData
	res.MaxSizeResponseScopedPDU = p.MaxMessageSize - usmResponseOverhead(0, 0, 0, false)
	res.StateRef = tsmStateRef{securityName: name, addr: p.Addr}
	return res, nil
}

// Secure emits the message with empty security parameters; the transport
// protects it.
func (t *TransportSecurityModel) Secure(p *SecureParams) ([]byte, error) {
	body := newBerBuilder()
	if err := body.writeInt(int(Version3)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	body.writeRaw(p.MsgGlobalData)
	if err := body.writeOctetString(nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	body.writeRaw(p.ScopedPDU)
	msg, err := body.wrap(byte(Sequence))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return msg.bytes(), nil
}

func (t *TransportSecurityModel) ReleaseState(SecurityStateRef) {}
