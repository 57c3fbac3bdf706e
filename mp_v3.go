// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
)

// SnmpV3MsgFlags contains various message flags to describe Authentication, Privacy, and whether a report PDU must be sent.
type SnmpV3MsgFlags uint8

// Possible values of SnmpV3MsgFlags
const (
	NoAuthNoPrivFlag SnmpV3MsgFlags = 0x0 // No authentication, and no privacy
	AuthNoPrivFlag   SnmpV3MsgFlags = 0x1 // Authentication and no privacy
	AuthPrivFlag     SnmpV3MsgFlags = 0x3 // Authentication and privacy
	Reportable       SnmpV3MsgFlags = 0x4 // Report PDU must be sent.
)

// minMsgMaxSize is the smallest msgMaxSize an SNMPv3 engine must accept
// (RFC 3412 §6).
const minMsgMaxSize = 484

func msgFlagsFor(level SecurityLevel, reportable bool) SnmpV3MsgFlags {
	var f SnmpV3MsgFlags
	switch level {
	case AuthNoPriv:
		f = AuthNoPrivFlag
	case AuthPriv:
		f = AuthPrivFlag
	}
	if reportable {
		f |= Reportable
	}
	return f
}

// level returns the security level encoded in the flags. The combination
// privacy-without-authentication has no level.
func (f SnmpV3MsgFlags) level() (SecurityLevel, bool) {
	switch f & AuthPrivFlag {
	case NoAuthNoPrivFlag:
		return NoAuthNoPriv, true
	case AuthNoPrivFlag:
		return AuthNoPriv, true
	case AuthPrivFlag:
		return AuthPriv, true
	}
	return 0, false
}

// v3Model is the SNMPv3 message processing model (RFC 3412).
type v3Model struct {
	engine *Engine
	pool   *RequestList

	// msgID numbers engine-originated messages.
	msgID atomic.Uint32
}

// Compile-time interface checks
var (
	_ MessageProcessingModel = (*v3Model)(nil)
	_ ResponseEncoder        = (*v3Model)(nil)
	_ Notifier               = (*v3Model)(nil)
)

func newV3Model() *v3Model {
	m := &v3Model{}
	m.msgID.Store(randomUint32() & math.MaxInt32)
	return m
}

func (m *v3Model) ID() SnmpVersion                { return Version3 }
func (m *v3Model) SecurityModel() SecurityModelID { return SecurityModelUSM }

func (m *v3Model) Init(e *Engine) error {
	pool, err := e.pool(Version3)
	if err != nil {
		return err
	}
	m.engine = e
	m.pool = pool
	return nil
}

func (m *v3Model) nextMsgID() uint32 {
	return m.msgID.Add(1) & math.MaxInt32
}

func (m *v3Model) parseError(err error) error {
	if errors.Is(err, ErrParse) {
		m.engine.stats.Inc(SnmpInASNParseErrs)
	}
	return err
}

// v3Header is the decoded part of an SNMPv3 message in front of the
// security parameters.
type v3Header struct {
	msgID      uint32
	maxSize    int
	flags      SnmpV3MsgFlags
	secModel   SecurityModelID
	secParams  []byte
	secOffset  int
	msgData    []byte
	reportable bool
}

// parseV3Header decodes SNMPv3Message up to msgData. secOffset is the
// absolute offset of the msgSecurityParameters content in data.
func parseV3Header(data []byte) (*v3Header, error) {
	_, hdr, err := parseLength(data)
	if err != nil {
		return nil, err
	}
	body, err := newBerReader(data).sequence(byte(Sequence))
	if err != nil {
		return nil, fmt.Errorf("message: %w", err)
	}
	if _, err = body.readInt(); err != nil {
		return nil, fmt.Errorf("msgVersion: %w", err)
	}

	global, err := body.sequence(byte(Sequence))
	if err != nil {
		return nil, fmt.Errorf("msgGlobalData: %w", err)
	}
	h := &v3Header{}
	if h.msgID, err = global.readUint32(byte(Integer)); err != nil {
		return nil, fmt.Errorf("msgID: %w", err)
	}
	maxSize, err := global.readUint32(byte(Integer))
	if err != nil {
		return nil, fmt.Errorf("msgMaxSize: %w", err)
	}
	if maxSize < minMsgMaxSize {
		return nil, fmt.Errorf("%w: msgMaxSize %d", ErrParse, maxSize)
	}
	h.maxSize = int(maxSize)
	flags, err := global.readOctetString()
	if err != nil {
		return nil, fmt.Errorf("msgFlags: %w", err)
	}
	if len(flags) != 1 {
		return nil, fmt.Errorf("%w: msgFlags of %d octets", ErrParse, len(flags))
	}
	h.flags = SnmpV3MsgFlags(flags[0])
	h.reportable = h.flags&Reportable != 0
	secModel, err := global.readUint32(byte(Integer))
	if err != nil {
		return nil, fmt.Errorf("msgSecurityModel: %w", err)
	}
	if secModel == 0 {
		return nil, fmt.Errorf("%w: msgSecurityModel 0", ErrParse)
	}
	h.secModel = SecurityModelID(secModel)
	if !global.empty() {
		return nil, fmt.Errorf("%w: trailing octets in msgGlobalData", ErrParse)
	}

	start := body.offset()
	if h.secParams, err = body.readOctetString(); err != nil {
		return nil, fmt.Errorf("msgSecurityParameters: %w", err)
	}
	_, cursor, _ := parseLength(body.data[start:])
	h.secOffset = hdr + start + cursor

	if body.empty() {
		return nil, fmt.Errorf("%w: missing msgData", ErrParse)
	}
	h.msgData = body.data[body.offset():]
	return h, nil
}

// scopedPDU is the decoded ScopedPDU. Trailing octets after the SEQUENCE
// (block cipher padding) are ignored.
func parseScopedPDU(data []byte) (contextEngineID []byte, contextName string, pdu *PDU, err error) {
	seq, err := newBerReader(data).sequence(byte(Sequence))
	if err != nil {
		return nil, "", nil, fmt.Errorf("scopedPDU: %w", err)
	}
	if contextEngineID, err = seq.readOctetString(); err != nil {
		return nil, "", nil, fmt.Errorf("contextEngineID: %w", err)
	}
	name, err := seq.readOctetString()
	if err != nil {
		return nil, "", nil, fmt.Errorf("contextName: %w", err)
	}
	if pdu, err = unmarshalPDU(seq.data[seq.offset():]); err != nil {
		return nil, "", nil, err
	}
	return contextEngineID, string(name), pdu, nil
}

// requestIDOf extracts the request id from a plaintext scoped PDU, or 0.
func requestIDOf(data []byte) int32 {
	seq, err := newBerReader(data).sequence(byte(Sequence))
	if err != nil {
		return 0
	}
	if _, err = seq.readOctetString(); err != nil {
		return 0
	}
	if _, err = seq.readOctetString(); err != nil {
		return 0
	}
	tag, err := seq.peekTag()
	if err != nil || !knownPDUType(PDUType(tag)) || PDUType(tag) == Trap {
		return 0
	}
	pdu, err := seq.sequence(tag)
	if err != nil {
		return 0
	}
	rid, err := pdu.readInt()
	if err != nil {
		return 0
	}
	return int32(rid)
}

func contextPrefix(contextEngineID []byte, contextName string) ([]byte, error) {
	b := newBerBuilder()
	if err := b.writeOctetString(contextEngineID); err != nil {
		return nil, err
	}
	if err := b.writeOctetString([]byte(contextName)); err != nil {
		return nil, err
	}
	return b.bytes(), nil
}

func marshalScopedPDU(prefix []byte, pdu *PDU) ([]byte, error) {
	body, err := marshalPDU(pdu)
	if err != nil {
		return nil, err
	}
	b := newBerBuilder()
	b.writeRaw(prefix)
	b.writeRaw(body)
	out, err := b.wrap(byte(Sequence))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return out.bytes(), nil
}

func marshalGlobalData(msgID uint32, maxSize int, flags SnmpV3MsgFlags, model SecurityModelID) ([]byte, error) {
	b := newBerBuilder()
	if err := b.writeUnsigned(Integer, msgID); err != nil {
		return nil, err
	}
	if err := b.writeInt(maxSize); err != nil {
		return nil, err
	}
	if err := b.writeOctetString([]byte{byte(flags)}); err != nil {
		return nil, err
	}
	if err := b.writeInt(int(model)); err != nil {
		return nil, err
	}
	out, err := b.wrap(byte(Sequence))
	if err != nil {
		return nil, err
	}
	return out.bytes(), nil
}

func (m *v3Model) DecodeRequest(msg *Message, s *Session) error {
	e := m.engine
	buf := m.pool.Add(msg)
	if buf == nil {
		e.stats.Inc(SnmpInASNParseErrs)
		return fmt.Errorf("%w: %d octet v3 message from %v", ErrCapacity, len(msg.Data), msg.Addr)
	}
	s.state = buf
	data := buf.Data()

	h, err := parseV3Header(data)
	if err != nil {
		return m.parseError(err)
	}
	level, ok := h.flags.level()
	if !ok {
		e.stats.Inc(SnmpInvalidMsgs)
		return fmt.Errorf("%w: msgFlags 0x%02x", ErrInvalidMsg, byte(h.flags))
	}

	s.Version = Version3
	s.MsgID = h.msgID
	s.MsgMaxSize = h.maxSize
	s.Reportable = h.reportable
	s.SecurityModel = h.secModel
	s.SecurityLevel = level
	s.Addr = msg.Addr
	s.Domain = msg.Domain

	res, err := e.dispatcher.Verify(h.secModel, &VerifyParams{
		Version:               Version3,
		MaxMessageSize:        min(h.maxSize, e.cfg.MaxMessageSize),
		SecurityLevel:         level,
		SecurityParams:        h.secParams,
		SecurityParamsOffset:  h.secOffset,
		WholeMsg:              data,
		MsgData:               h.msgData,
		Addr:                  msg.Addr,
		Domain:                msg.Domain,
		TransportSecurityName: msg.TransportSecurityName,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownSecurityModel):
		s.Report = ErrorIndication{OID: snmpUnknownSecurityModels, Value: e.stats.Get(SnmpUnknownSecurityModels)}
		s.SecurityModel = SecurityModelUSM
		s.SecurityLevel = NoAuthNoPriv
		s.PDU.RequestID = m.plainRequestID(h, level)
		return fmt.Errorf("%w: %w", ErrReportPending, err)
	case errors.Is(err, ErrParse):
		return m.parseError(err)
	case errors.Is(err, ErrCacheFull):
		e.Logger.Printf("v3: dropping message from %v: %v", msg.Addr, err)
		return fmt.Errorf("%w: %w", ErrCapacity, err)
	case res != nil && res.ErrorIndication.pending():
		s.Report = res.ErrorIndication
		s.SecurityLevel = res.SecurityLevel
		s.SecurityName = res.SecurityName
		s.securityEngID = res.SecurityEngineID
		s.userName = res.UserName
		s.PDU.RequestID = m.plainRequestID(h, level)
		return fmt.Errorf("%w: %w", ErrReportPending, err)
	default:
		return err
	}

	s.SecurityName = res.SecurityName
	s.securityEngID = res.SecurityEngineID
	s.userName = res.UserName
	s.securityState = res.StateRef
	s.MaxResponseSize = res.MaxSizeResponseScopedPDU

	contextEngineID, contextName, pdu, err := parseScopedPDU(res.ScopedPDU)
	if err != nil {
		return m.parseError(err)
	}
	switch pdu.Type {
	case GetRequest, GetNextRequest, GetBulkRequest, SetRequest, InformRequest, SNMPv2Trap:
	default:
		return fmt.Errorf("%w: %v in v3", ErrUnknownPDUHandler, pdu.Type)
	}
	prefix, err := contextPrefix(contextEngineID, contextName)
	if err != nil {
		return m.parseError(fmt.Errorf("%w: %v", ErrParse, err))
	}
	s.ContextEngineID = contextEngineID
	s.ContextName = contextName
	s.PDU = *pdu
	s.checkpoint = &errorCheckpoint{
		prefix:    prefix,
		requestID: pdu.RequestID,
		variables: slices.Clone(pdu.Variables),
	}
	return nil
}

// plainRequestID recovers the request id for a report when the scoped PDU
// was sent in the clear.
func (m *v3Model) plainRequestID(h *v3Header, level SecurityLevel) int32 {
	if level == AuthPriv {
		return 0
	}
	return requestIDOf(h.msgData)
}

// EncodeResponse encodes the response to s, or the pending report.
func (m *v3Model) EncodeResponse(s *Session) ([]byte, error) {
	if s.Report.pending() {
		return m.encodeReport(s)
	}
	prefix, err := contextPrefix(s.ContextEngineID, s.ContextName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	pdu := s.PDU
	pdu.Type = GetResponse
	scoped, err := marshalScopedPDU(prefix, &pdu)
	if err != nil {
		return nil, err
	}
	if s.MaxResponseSize > 0 && len(scoped) > s.MaxResponseSize {
		return nil, fmt.Errorf("%w: scoped pdu of %d octets, limit %d", ErrTooBig, len(scoped), s.MaxResponseSize)
	}
	return m.secure(s, s.MsgID, scoped, msgFlagsFor(s.SecurityLevel, false))
}

// EncodeError encodes a GetResponse with status from the request
// checkpoint. tooBig carries an empty varbind list.
func (m *v3Model) EncodeError(s *Session, status SNMPError, index int) ([]byte, error) {
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
	if status == TooBig {
		pdu.Variables = nil
	}
	scoped, err := marshalScopedPDU(cp.prefix, &pdu)
	if err != nil {
		return nil, err
	}
	return m.secure(s, s.MsgID, scoped, msgFlagsFor(s.SecurityLevel, false))
}

// encodeReport builds the Report PDU for a failed request. It carries the
// counter that recorded the failure and the local engine id, which is what
// a manager uses for discovery (RFC 3414 §4).
func (m *v3Model) encodeReport(s *Session) ([]byte, error) {
	prefix, err := contextPrefix(m.engine.engineID, s.ContextName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	pdu := PDU{
		Type:      Report,
		RequestID: s.PDU.RequestID,
		Variables: []SnmpPDU{{Name: s.Report.OID, Type: Counter32, Value: s.Report.Value}},
	}
	scoped, err := marshalScopedPDU(prefix, &pdu)
	if err != nil {
		return nil, err
	}
	return m.secure(s, s.MsgID, scoped, msgFlagsFor(s.SecurityLevel, false))
}

// secure wraps a scoped PDU for the session's security model. The security
// state of s is consumed.
func (m *v3Model) secure(s *Session, msgID uint32, scoped []byte, flags SnmpV3MsgFlags) ([]byte, error) {
	e := m.engine
	global, err := marshalGlobalData(msgID, e.cfg.MaxMessageSize, flags, s.SecurityModel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	ref := s.securityState
	s.securityState = nil
	return e.dispatcher.Secure(s.SecurityModel, &SecureParams{
		Version:          Version3,
		MsgGlobalData:    global,
		MaxMessageSize:   s.MsgMaxSize,
		SecurityEngineID: e.engineID,
		SecurityName:     s.SecurityName,
		SecurityLevel:    s.SecurityLevel,
		ScopedPDU:        scoped,
		StateRef:         ref,
	})
}

// EncodeNotify encodes n under the USM with a fresh msgID.
func (m *v3Model) EncodeNotify(n *Notification) ([]byte, error) {
	e := m.engine
	prefix, err := contextPrefix(e.engineID, n.ContextName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	pdu := PDU{
		Type:      n.pduType(),
		RequestID: n.RequestID,
		Variables: n.v2Variables(),
	}
	scoped, err := marshalScopedPDU(prefix, &pdu)
	if err != nil {
		return nil, err
	}
	level := n.SecurityLevel
	if level == 0 {
		level = NoAuthNoPriv
	}
	s := &Session{
		Version:       Version3,
		SecurityModel: SecurityModelUSM,
		SecurityLevel: level,
		SecurityName:  n.SecurityName,
		MsgMaxSize:    e.cfg.MaxMessageSize,
	}
	out, err := m.secure(s, m.nextMsgID(), scoped, msgFlagsFor(level, pdu.Type == InformRequest))
	if err != nil {
		return nil, err
	}
	if len(out) > e.cfg.MaxMessageSize {
		return nil, fmt.Errorf("%w: notification of %d octets", ErrTooBig, len(out))
	}
	return out, nil
}
