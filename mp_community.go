// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"errors"
	"fmt"
	"slices"
)

// communityModel is the SNMPv1 (RFC 1157) and SNMPv2c (RFC 1901) message
// processing model. Both share the community wrapper and differ in the PDU
// types they carry and in error status handling.
type communityModel struct {
	version  SnmpVersion
	secModel SecurityModelID

	engine *Engine
	pool   *RequestList
}

// Compile-time interface checks
var (
	_ MessageProcessingModel = (*communityModel)(nil)
	_ ResponseEncoder        = (*communityModel)(nil)
	_ Notifier               = (*communityModel)(nil)
)

func newCommunityModel(version SnmpVersion) *communityModel {
	m := &communityModel{version: version, secModel: SecurityModelV2c}
	if version == Version1 {
		m.secModel = SecurityModelV1
	}
	return m
}

func (m *communityModel) ID() SnmpVersion                { return m.version }
func (m *communityModel) SecurityModel() SecurityModelID { return m.secModel }

func (m *communityModel) Init(e *Engine) error {
	pool, err := e.pool(m.version)
	if err != nil {
		return err
	}
	m.engine = e
	m.pool = pool
	return nil
}

// pduAllowed reports whether an inbound PDU of type t is handled by the
// model.
func (m *communityModel) pduAllowed(t PDUType) bool {
	switch t {
	case GetRequest, GetNextRequest, SetRequest:
		return true
	case Trap:
		return m.version == Version1
	case GetBulkRequest, InformRequest, SNMPv2Trap:
		return m.version == Version2c
	}
	return false
}

func (m *communityModel) parseError(err error) error {
	if errors.Is(err, ErrParse) {
		m.engine.stats.Inc(SnmpInASNParseErrs)
	}
	return err
}

func (m *communityModel) DecodeRequest(msg *Message, s *Session) error {
	e := m.engine
	buf := m.pool.Add(msg)
	if buf == nil {
		e.stats.Inc(SnmpInASNParseErrs)
		return fmt.Errorf("%w: %d octet v%v message from %v", ErrCapacity, len(msg.Data), m.version, msg.Addr)
	}
	s.state = buf
	data := buf.Data()

	outer := newBerReader(data)
	body, err := outer.sequence(byte(Sequence))
	if err != nil {
		return m.parseError(fmt.Errorf("message: %w", err))
	}
	version, err := body.readInt()
	if err != nil {
		return m.parseError(fmt.Errorf("version: %w", err))
	}
	if SnmpVersion(version) != m.version {
		return m.parseError(fmt.Errorf("%w: version %d in v%v model", ErrParse, version, m.version))
	}
	community, err := body.readOctetString()
	if err != nil {
		return m.parseError(fmt.Errorf("community: %w", err))
	}
	pduData := body.data[body.offset():]

	res, err := e.dispatcher.Verify(m.secModel, &VerifyParams{
		Version:               m.version,
		MaxMessageSize:        e.cfg.MaxMessageSize,
		SecurityLevel:         NoAuthNoPriv,
		SecurityParams:        community,
		WholeMsg:              data,
		MsgData:               pduData,
		Addr:                  msg.Addr,
		Domain:                msg.Domain,
		TransportSecurityName: msg.TransportSecurityName,
	})
	if err != nil {
		if errors.Is(err, ErrUnknownSecurityModel) {
			return fmt.Errorf("%w: %w", ErrInvalidMsg, err)
		}
		return err
	}
	s.securityState = res.StateRef

	pdu, err := unmarshalPDU(res.ScopedPDU)
	if err != nil {
		return m.parseError(err)
	}
	if !m.pduAllowed(pdu.Type) {
		return fmt.Errorf("%w: %v in v%v", ErrUnknownPDUHandler, pdu.Type, m.version)
	}

	prefix, err := communityPrefix(m.version, string(community))
	if err != nil {
		return m.parseError(fmt.Errorf("%w: %v", ErrParse, err))
	}

	s.Version = m.version
	s.SecurityModel = m.secModel
	s.SecurityLevel = NoAuthNoPriv
	s.SecurityName = res.SecurityName
	s.Community = string(community)
	s.ContextEngineID = res.ContextEngineID
	s.ContextName = res.ContextName
	s.MsgMaxSize = e.cfg.MaxMessageSize
	s.MaxResponseSize = res.MaxSizeResponseScopedPDU
	s.PDU = *pdu
	s.Addr = msg.Addr
	s.Domain = msg.Domain
	s.checkpoint = &errorCheckpoint{
		prefix:    prefix,
		requestID: pdu.RequestID,
		variables: slices.Clone(pdu.Variables),
	}
	return nil
}

// EncodeResponse encodes s.PDU as a GetResponse. ErrTooBig is returned when
// the message would exceed the size the request allows.
func (m *communityModel) EncodeResponse(s *Session) ([]byte, error) {
	pdu := s.PDU
	pdu.Type = GetResponse
	if m.version == Version1 {
		pdu = v1Response(pdu, s.checkpoint)
	}
	body, err := marshalPDU(&pdu)
	if err != nil {
		return nil, err
	}
	out, err := m.engine.dispatcher.Secure(m.secModel, &SecureParams{
		Version:        m.version,
		MaxMessageSize: s.MsgMaxSize,
		SecurityName:   s.SecurityName,
		SecurityLevel:  NoAuthNoPriv,
		ScopedPDU:      body,
		StateRef:       s.securityState,
	})
	if err != nil {
		return nil, err
	}
	if s.MaxResponseSize > 0 && len(out) > s.MaxResponseSize {
		return nil, fmt.Errorf("%w: %d octets, limit %d", ErrTooBig, len(out), s.MaxResponseSize)
	}
	return out, nil
}

// EncodeError re-emits the request as a GetResponse carrying status. SNMPv1
// echoes the request varbinds; SNMPv2c sends tooBig with an empty list.
func (m *communityModel) EncodeError(s *Session, status SNMPError, index int) ([]byte, error) {
	cp := s.checkpoint
	if cp == nil {
		return nil, fmt.Errorf("%w: no request checkpoint", ErrNoResponse)
	}
	pdu := PDU{
		Type:       GetResponse,
		RequestID:  cp.requestID,
		Error:      status,
		ErrorIndex: index,
		Variables:  cp.variables,
	}
	if m.version == Version1 {
		pdu.Error = v1ErrorStatus(status)
	} else if status == TooBig {
		pdu.Variables = nil
	}
	body, err := marshalPDU(&pdu)
	if err != nil {
		return nil, err
	}
	return wrapCommunityMessage(cp.prefix, body)
}

// EncodeNotify encodes n as an SNMPv2-Trap or InformRequest (v2c), or as a
// translated Trap-PDU (v1).
func (m *communityModel) EncodeNotify(n *Notification) ([]byte, error) {
	var pdu *PDU
	if m.version == Version1 {
		if n.pduType() != SNMPv2Trap {
			return nil, fmt.Errorf("%w: %v over SNMPv1", ErrUnknownPDUHandler, n.pduType())
		}
		var err error
		if pdu, err = TrapV2ToV1(n.v2Variables(), n.Enterprise, n.AgentAddress); err != nil {
			return nil, err
		}
	} else {
		pdu = &PDU{
			Type:      n.pduType(),
			RequestID: n.RequestID,
			Variables: n.v2Variables(),
		}
	}
	body, err := marshalPDU(pdu)
	if err != nil {
		return nil, err
	}
	out, err := m.engine.dispatcher.Secure(m.secModel, &SecureParams{
		Version:        m.version,
		MaxMessageSize: m.engine.cfg.MaxMessageSize,
		SecurityName:   n.SecurityName,
		SecurityLevel:  NoAuthNoPriv,
		ScopedPDU:      body,
	})
	if err != nil {
		return nil, err
	}
	if len(out) > m.engine.cfg.MaxMessageSize {
		return nil, fmt.Errorf("%w: notification of %d octets", ErrTooBig, len(out))
	}
	return out, nil
}

// v1ErrorStatus maps SNMPv2 error statuses to their SNMPv1 equivalents
// (RFC 3584 §4.4).
func v1ErrorStatus(e SNMPError) SNMPError {
	switch e {
	case WrongValue, WrongEncoding, WrongType, WrongLength, InconsistentValue:
		return BadValue
	case NoAccess, NotWritable, NoCreation, InconsistentName, AuthorizationError:
		return NoSuchName
	case ResourceUnavailable, CommitFailed, UndoFailed:
		return GenErr
	}
	return e
}

// v1Response converts a response PDU to SNMPv1 form. A Counter64 or
// exception value cannot be carried: the response becomes noSuchName at
// that varbind, echoing the request.
func v1Response(pdu PDU, cp *errorCheckpoint) PDU {
	pdu.Error = v1ErrorStatus(pdu.Error)
	for i, vb := range pdu.Variables {
		switch vb.Type {
		case Counter64, NoSuchObject, NoSuchInstance, EndOfMibView:
			pdu.Error = NoSuchName
			pdu.ErrorIndex = i + 1
			if cp != nil {
				pdu.Variables = cp.variables
			}
			return pdu
		}
	}
	return pdu
}
