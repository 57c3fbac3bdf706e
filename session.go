// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// SnmpVersion is the message processing model identifier carried in the
// version field of every SNMP message.
type SnmpVersion int

// SnmpVersion 1, 2c and 3 implemented
const (
	Version1  SnmpVersion = 0x0
	Version2c SnmpVersion = 0x1
	Version3  SnmpVersion = 0x3
)

func (s SnmpVersion) String() string {
	switch s {
	case Version1:
		return "1"
	case Version2c:
		return "2c"
	case Version3:
		return "3"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// SecurityModelID identifies a security model (RFC 3411 SnmpSecurityModel).
type SecurityModelID int

const (
	SecurityModelAny  SecurityModelID = 0
	SecurityModelV1   SecurityModelID = 1
	SecurityModelV2c  SecurityModelID = 2
	SecurityModelUSM  SecurityModelID = 3
	SecurityModelTSM  SecurityModelID = 4
	securityModelNone SecurityModelID = -1
)

// SecurityLevel is the RFC 3411 SnmpSecurityLevel.
type SecurityLevel int

const (
	NoAuthNoPriv SecurityLevel = 1
	AuthNoPriv   SecurityLevel = 2
	AuthPriv     SecurityLevel = 3
)

func (l SecurityLevel) String() string {
	switch l {
	case NoAuthNoPriv:
		return "noAuthNoPriv"
	case AuthNoPriv:
		return "authNoPriv"
	case AuthPriv:
		return "authPriv"
	}
	return fmt.Sprintf("SecurityLevel(%d)", int(l))
}

// TransportDomain tags the transport a message arrived on.
type TransportDomain int

const (
	DomainUDPIPv4 TransportDomain = iota + 1
	DomainUDPIPv6
	DomainDTLS
)

func (d TransportDomain) String() string {
	switch d {
	case DomainUDPIPv4:
		return "udpIpv4"
	case DomainUDPIPv6:
		return "udpIpv6"
	case DomainDTLS:
		return "dtls"
	}
	return fmt.Sprintf("TransportDomain(%d)", int(d))
}

// Message is a raw datagram together with the metadata of the transport it
// was received on.
type Message struct {
	Addr   net.Addr
	Domain TransportDomain
	Data   []byte

	// TransportSecurityName is set by secure transports after mapping the
	// peer certificate.
	TransportSecurityName string
}

// ErrorIndication is a pending report: the counter OID that was bumped and
// its value after the increment. The zero value means no error is pending.
type ErrorIndication struct {
	OID   string
	Value uint32
}

func (e ErrorIndication) pending() bool {
	return e.OID != ""
}

// SecurityStateRef is an opaque handle a security model hands out on a
// successful Verify and expects back on Secure.
type SecurityStateRef any

// errorCheckpoint is the encoded state needed to re-emit an error response
// without re-running the whole response encoder.
type errorCheckpoint struct {
	// prefix is the encoded content of the outer message up to the PDU
	// (v1/v2c: version and community) or of the scoped PDU up to the PDU
	// (v3: context engine id and context name).
	prefix    []byte
	requestID int32
	variables []SnmpPDU
}

// Session carries one request through decode, processing and encode.
type Session struct {
	Version       SnmpVersion
	SecurityModel SecurityModelID
	SecurityLevel SecurityLevel
	SecurityName  string
	Community     string

	ContextEngineID []byte
	ContextName     string

	MsgID      uint32
	MsgMaxSize int
	Reportable bool

	// MaxResponseSize bounds the encoded response (v1/v2c: the whole
	// message, v3: the scoped PDU).
	MaxResponseSize int

	PDU PDU

	// Report is set when decoding failed in a way that must be answered
	// with a Report PDU.
	Report ErrorIndication

	Addr   net.Addr
	Domain TransportDomain

	checkpoint    *errorCheckpoint
	state         *RequestBuffer
	securityState SecurityStateRef
	securityEngID []byte
	userName      string
}

// RequestBuffer returns the pooled copy of the inbound message, or nil for
// sessions that do not originate from a request.
func (s *Session) RequestBuffer() *RequestBuffer {
	return s.state
}

// SafeString describes the session for logging. Community strings and
// security state are left out.
func (s *Session) SafeString() string {
	var b strings.Builder
	b.Grow(256)

	b.WriteString("Version:")
	b.WriteString(s.Version.String())
	b.WriteString(", SecurityModel:")
	b.WriteString(strconv.Itoa(int(s.SecurityModel)))
	b.WriteString(", SecurityLevel:")
	b.WriteString(s.SecurityLevel.String())
	b.WriteString(", SecurityName:")
	b.WriteString(s.SecurityName)
	b.WriteString(", ContextEngineID:")
	b.WriteString(hex.EncodeToString(s.ContextEngineID))
	b.WriteString(", ContextName:")
	b.WriteString(s.ContextName)
	b.WriteString(", PDUType:")
	b.WriteString(s.PDU.Type.String())
	b.WriteString(", MsgID:")
	b.WriteString(strconv.FormatUint(uint64(s.MsgID), 10))
	b.WriteString(", RequestID:")
	b.WriteString(strconv.FormatInt(int64(s.PDU.RequestID), 10))
	b.WriteString(", MsgMaxSize:")
	b.WriteString(strconv.Itoa(s.MsgMaxSize))
	b.WriteString(", Error:")
	b.WriteString(strconv.Itoa(int(s.PDU.Error)))
	b.WriteString(", ErrorIndex:")
	b.WriteString(strconv.Itoa(s.PDU.ErrorIndex))
	if s.Report.pending() {
		b.WriteString(", Report:")
		b.WriteString(s.Report.OID)
	}
	b.WriteString(", Variables:")
	fmt.Fprintf(&b, "%v", s.PDU.Variables)
	return b.String()
}
