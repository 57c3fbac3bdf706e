// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"fmt"
	"net"
)

// PDUType describes which SNMP Protocol Data Unit is being sent.
type PDUType byte

// The currently supported PDUType's
const (
	GetRequest     PDUType = 0xa0
	GetNextRequest PDUType = 0xa1
	GetResponse    PDUType = 0xa2
	SetRequest     PDUType = 0xa3
	Trap           PDUType = 0xa4 // v1
	GetBulkRequest PDUType = 0xa5
	InformRequest  PDUType = 0xa6
	SNMPv2Trap     PDUType = 0xa7 // v2c, v3
	Report         PDUType = 0xa8 // v3
)

func (t PDUType) String() string {
	switch t {
	case GetRequest:
		return "GetRequest"
	case GetNextRequest:
		return "GetNextRequest"
	case GetResponse:
		return "GetResponse"
	case SetRequest:
		return "SetRequest"
	case Trap:
		return "Trap"
	case GetBulkRequest:
		return "GetBulkRequest"
	case InformRequest:
		return "InformRequest"
	case SNMPv2Trap:
		return "SNMPv2Trap"
	case Report:
		return "Report"
	}
	return fmt.Sprintf("PDUType(0x%02x)", byte(t))
}

// confirmed reports whether a PDU of this type expects a response
// (RFC 3411 §2.8).
func (t PDUType) confirmed() bool {
	switch t {
	case GetRequest, GetNextRequest, GetBulkRequest, SetRequest, InformRequest:
		return true
	}
	return false
}

func knownPDUType(t PDUType) bool {
	return t >= GetRequest && t <= Report
}

// SNMPError is the type for standard SNMP errors.
type SNMPError uint8

// SNMP Errors
const (
	NoError             SNMPError = iota // No error occurred. This code is also used in all request PDUs, since they have no error status to report.
	TooBig                               // The size of the Response-PDU would be too large to transport.
	NoSuchName                           // The name of a requested object was not found.
	BadValue                             // A value in the request didn't match the structure that the recipient of the request had for the object.
	ReadOnly                             // An attempt was made to set a variable that has an Access value indicating that it is read-only.
	GenErr                               // An error occurred other than one indicated by a more specific error code in this table.
	NoAccess                             // Access was denied to the object for security reasons.
	WrongType                            // The object type in a variable binding is incorrect for the object.
	WrongLength                          // A variable binding specifies a length incorrect for the object.
	WrongEncoding                        // A variable binding specifies an encoding incorrect for the object.
	WrongValue                           // The value given in a variable binding is not possible for the object.
	NoCreation                           // A specified variable does not exist and cannot be created.
	InconsistentValue                    // A variable binding specifies a value that could be held by the variable but cannot be assigned to it at this time.
	ResourceUnavailable                  // An attempt to set a variable required a resource that is not available.
	CommitFailed                         // An attempt to set a particular variable failed.
	UndoFailed                           // An attempt to set a particular variable as part of a group of variables failed, and the attempt to then undo the setting of other variables was not successful.
	AuthorizationError                   // A problem occurred in authorization.
	NotWritable                          // The variable cannot be written or created.
	InconsistentName                     // The name in a variable binding specifies a variable that does not exist.
)

// SnmpPDU will be used when doing SNMP Set's
type SnmpPDU struct {
	// The value to be set by the SNMP set, or the value when
	// sending a trap
	Value any

	// Name is an oid in string format eg ".1.3.6.1.4.9.27"
	Name string

	// The type of the value eg Integer
	Type Asn1BER
}

// PDU is the decoded protocol data unit carried by a session. For GetBulk
// requests Error and ErrorIndex hold non-repeaters and max-repetitions.
type PDU struct {
	Type       PDUType
	RequestID  int32
	Error      SNMPError
	ErrorIndex int
	Variables  []SnmpPDU

	NonRepeaters   int
	MaxRepetitions int

	// SNMPv1 trap header
	Enterprise   string
	AgentAddress string
	GenericTrap  int
	SpecificTrap int
	Timestamp    uint32
}

// -- marshalling --------------------------------------------------------------

func marshalPDU(pdu *PDU) ([]byte, error) {
	body := newBerBuilder()

	switch pdu.Type {
	case Trap:
		if err := marshalV1TrapHeader(body, pdu); err != nil {
			return nil, err
		}
	case GetBulkRequest:
		if err := body.writeInt(int(pdu.RequestID)); err != nil {
			return nil, err
		}
		if err := body.writeInt(pdu.NonRepeaters); err != nil {
			return nil, fmt.Errorf("marshalPDU: unable to marshal NonRepeaters: %w", err)
		}
		if err := body.writeInt(pdu.MaxRepetitions); err != nil {
			return nil, fmt.Errorf("marshalPDU: unable to marshal MaxRepetitions: %w", err)
		}
	default:
		if err := body.writeInt(int(pdu.RequestID)); err != nil {
			return nil, err
		}
		if err := body.writeInt(int(pdu.Error)); err != nil {
			return nil, fmt.Errorf("marshalPDU: unable to marshal errorStatus: %w", err)
		}
		if err := body.writeInt(pdu.ErrorIndex); err != nil {
			return nil, fmt.Errorf("marshalPDU: unable to marshal errorIndex: %w", err)
		}
	}

	vbl, err := marshalVBL(pdu.Variables)
	if err != nil {
		return nil, fmt.Errorf("marshalPDU: unable to marshal varbind list: %w", err)
	}
	body.writeRaw(vbl)

	out, err := body.wrap(byte(pdu.Type))
	if err != nil {
		return nil, fmt.Errorf("marshalPDU: unable to marshal pdu length: %w", err)
	}
	return out.bytes(), nil
}

func marshalV1TrapHeader(b *berBuilder, pdu *PDU) error {
	if err := b.writeOID(pdu.Enterprise); err != nil {
		return fmt.Errorf("unable to marshal enterprise OID: %w", err)
	}
	ip := net.ParseIP(pdu.AgentAddress).To4()
	if ip == nil {
		ip = net.IPv4zero.To4()
	}
	if err := b.writeTLV(byte(IPAddress), ip); err != nil {
		return err
	}
	if err := b.writeInt(pdu.GenericTrap); err != nil {
		return fmt.Errorf("unable to marshal SNMPv1 GenericTrap: %w", err)
	}
	if err := b.writeInt(pdu.SpecificTrap); err != nil {
		return fmt.Errorf("unable to marshal SNMPv1 SpecificTrap: %w", err)
	}
	return b.writeUnsigned(TimeTicks, pdu.Timestamp)
}

// marshalVBL encodes a varbind list.
func marshalVBL(vars []SnmpPDU) ([]byte, error) {
	vblBuf := new(bytes.Buffer)
	for i := range vars {
		vb, err := marshalVarbind(&vars[i])
		if err != nil {
			return nil, err
		}
		vblBuf.Write(vb)
	}

	out := new(bytes.Buffer)
	if err := marshalTLV(out, byte(Sequence), vblBuf.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// marshalVarbind encodes an SNMP variable binding (varbind) as BER.
// Returns a Sequence TLV containing the OID and its associated value:
//
//	Sequence {
//	  ObjectIdentifier (pdu.Name)
//	  <Value TLV>      (pdu.Type + pdu.Value)
//	}
func marshalVarbind(pdu *SnmpPDU) ([]byte, error) {
	oid, err := marshalObjectIdentifier(pdu.Name)
	if err != nil {
		return nil, err
	}
	tmpBuf := new(bytes.Buffer)
	if err = marshalTLV(tmpBuf, byte(ObjectIdentifier), oid); err != nil {
		return nil, err
	}

	var value []byte
	switch pdu.Type {
	case Null, NoSuchInstance, NoSuchObject, EndOfMibView:
		value = nil

	case Integer:
		switch v := pdu.Value.(type) {
		case int:
			value, err = marshalInt32(v)
		case int32:
			value, err = marshalInt32(int(v))
		default:
			err = fmt.Errorf("unable to marshal PDU Integer; not int")
		}

	case Counter32, Gauge32, TimeTicks, Uinteger32:
		switch v := pdu.Value.(type) {
		case uint32:
			value = marshalUint32(v)
		case uint:
			value = marshalUint32(uint32(v))
		case int:
			if v < 0 {
				err = fmt.Errorf("unable to marshal negative %v", pdu.Type)
				break
			}
			value = marshalUint32(uint32(v))
		default:
			err = fmt.Errorf("unable to marshal pdu.Type %v; unknown pdu.Value %v[type=%T]", pdu.Type, pdu.Value, pdu.Value)
		}

	case Counter64:
		switch v := pdu.Value.(type) {
		case uint64:
			value = marshalUint64(v)
		default:
			err = fmt.Errorf("unable to marshal Counter64; not uint64")
		}

	case OctetString, BitString, Opaque:
		switch v := pdu.Value.(type) {
		case []byte:
			value = v
		case string:
			value = []byte(v)
		default:
			err = fmt.Errorf("unable to marshal PDU OctetString; not []byte or string")
		}

	case ObjectIdentifier:
		s, ok := pdu.Value.(string)
		if !ok {
			return nil, fmt.Errorf("unable to marshal ObjectIdentifier; not string")
		}
		value, err = marshalObjectIdentifier(s)

	case IPAddress:
		switch v := pdu.Value.(type) {
		case []byte:
			value = v
		case string:
			value = net.ParseIP(v).To4()
			if value == nil {
				err = fmt.Errorf("unable to marshal IPAddress %q", v)
			}
		default:
			err = fmt.Errorf("unable to marshal PDU IPAddress; not []byte or string")
		}

	default:
		return nil, fmt.Errorf("unable to marshal PDU: unknown BER type %q", pdu.Type)
	}
	if err != nil {
		return nil, err
	}

	if err = marshalTLV(tmpBuf, byte(pdu.Type), value); err != nil {
		return nil, err
	}
	pduBuf := new(bytes.Buffer)
	if err = marshalTLV(pduBuf, byte(Sequence), tmpBuf.Bytes()); err != nil {
		return nil, err
	}
	return pduBuf.Bytes(), nil
}

// -- unmarshalling ------------------------------------------------------------

// unmarshalPDU decodes a complete PDU element.
func unmarshalPDU(data []byte) (*PDU, error) {
	r := newBerReader(data)
	tag, err := r.peekTag()
	if err != nil {
		return nil, err
	}
	pduType := PDUType(tag)
	if !knownPDUType(pduType) {
		return nil, fmt.Errorf("%w: pdu type 0x%02x", ErrUnknownPDUHandler, tag)
	}
	body, err := r.sequence(tag)
	if err != nil {
		return nil, err
	}
	if !r.empty() {
		return nil, fmt.Errorf("%w: trailing octets after pdu", ErrParse)
	}

	pdu := &PDU{Type: pduType}
	if pduType == Trap {
		if err = unmarshalV1TrapHeader(body, pdu); err != nil {
			return nil, err
		}
	} else {
		rid, err := body.readInt()
		if err != nil {
			return nil, fmt.Errorf("unable to parse request id: %w", err)
		}
		pdu.RequestID = int32(rid)
		first, err := body.readInt()
		if err != nil {
			return nil, fmt.Errorf("unable to parse error status: %w", err)
		}
		second, err := body.readInt()
		if err != nil {
			return nil, fmt.Errorf("unable to parse error index: %w", err)
		}
		if pduType == GetBulkRequest {
			pdu.NonRepeaters, pdu.MaxRepetitions = first, second
		} else {
			if first < 0 || first > int(InconsistentName) {
				return nil, fmt.Errorf("%w: error status %d", ErrParse, first)
			}
			pdu.Error, pdu.ErrorIndex = SNMPError(first), second
		}
	}

	vbl, err := body.expect(byte(Sequence))
	if err != nil {
		return nil, fmt.Errorf("unable to parse varbind list: %w", err)
	}
	if pdu.Variables, err = unmarshalVBL(vbl); err != nil {
		return nil, err
	}
	return pdu, nil
}

func unmarshalV1TrapHeader(r *berReader, pdu *PDU) error {
	var err error
	if pdu.Enterprise, err = r.readOID(); err != nil {
		return fmt.Errorf("unable to parse enterprise: %w", err)
	}
	addr, err := r.expect(byte(IPAddress))
	if err != nil {
		return fmt.Errorf("unable to parse agent address: %w", err)
	}
	if len(addr) == net.IPv4len {
		pdu.AgentAddress = net.IP(addr).String()
	}
	if pdu.GenericTrap, err = r.readInt(); err != nil {
		return fmt.Errorf("unable to parse generic trap: %w", err)
	}
	if pdu.SpecificTrap, err = r.readInt(); err != nil {
		return fmt.Errorf("unable to parse specific trap: %w", err)
	}
	if pdu.Timestamp, err = r.readUint32(byte(TimeTicks)); err != nil {
		return fmt.Errorf("unable to parse timestamp: %w", err)
	}
	return nil
}

// unmarshalVBL decodes the content of a varbind list SEQUENCE.
func unmarshalVBL(content []byte) ([]SnmpPDU, error) {
	r := newBerReader(content)
	var vars []SnmpPDU
	for !r.empty() {
		vb, err := r.sequence(byte(Sequence))
		if err != nil {
			return nil, fmt.Errorf("expected a sequence when unmarshalling a VB: %w", err)
		}
		name, err := vb.readOID()
		if err != nil {
			return nil, fmt.Errorf("error parsing OID Value: %w", err)
		}
		tag, value, err := vb.next()
		if err != nil {
			return nil, fmt.Errorf("error decoding value of %s: %w", name, err)
		}
		pdu, err := decodeValue(name, Asn1BER(tag), value)
		if err != nil {
			return nil, err
		}
		vars = append(vars, pdu)
	}
	return vars, nil
}

func decodeValue(name string, typ Asn1BER, value []byte) (SnmpPDU, error) {
	pdu := SnmpPDU{Name: name, Type: typ}
	var err error
	switch typ {
	case Null, NoSuchObject, NoSuchInstance, EndOfMibView:
	case Integer:
		pdu.Value, err = parseInt(value)
	case Counter32, Gauge32, TimeTicks, Uinteger32:
		pdu.Value, err = parseUint32(value)
	case Counter64:
		pdu.Value, err = parseUint64(value)
	case OctetString, BitString, Opaque:
		pdu.Value = append([]byte(nil), value...)
	case ObjectIdentifier:
		pdu.Value, err = parseObjectIdentifier(value)
	case IPAddress:
		switch len(value) {
		case 0:
		case net.IPv4len, net.IPv6len:
			pdu.Value = net.IP(value).String()
		default:
			err = fmt.Errorf("got ipaddress len %d, expected 4 or 16", len(value))
		}
	default:
		err = fmt.Errorf("type 0x%02x isn't implemented", byte(typ))
	}
	if err != nil {
		return SnmpPDU{}, fmt.Errorf("%w: decoding %s: %v", ErrParse, name, err)
	}
	return pdu, nil
}
