// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"fmt"
	"strconv"
	"strings"
)

// SNMPv2-MIB and SNMP-COMMUNITY-MIB objects used in notifications.
const (
	sysUpTimeOID          = ".1.3.6.1.2.1.1.3.0"
	snmpTrapOID           = ".1.3.6.1.6.3.1.1.4.1.0"
	snmpTrapEnterpriseOID = ".1.3.6.1.6.3.1.1.4.3.0"
	snmpTrapAddressOID    = ".1.3.6.1.6.3.18.1.3.0"
	snmpTrapsPrefix       = ".1.3.6.1.6.3.1.1.5"

	// enterpriseSpecific generic-trap value
	enterpriseSpecific = 6

	// AuthenticationFailureTrapOID is snmpTraps.5.
	AuthenticationFailureTrapOID = snmpTrapsPrefix + ".5"
	// ColdStartTrapOID is snmpTraps.1.
	ColdStartTrapOID = snmpTrapsPrefix + ".1"
)

// Notification is an outbound trap or inform in SNMPv2 form. The SNMPv1
// model translates it to a Trap-PDU.
type Notification struct {
	// Type is SNMPv2Trap or InformRequest; the zero value means SNMPv2Trap.
	Type    PDUType
	TrapOID string
	// Variables follow sysUpTime.0 and snmpTrapOID.0 in the varbind list.
	Variables []SnmpPDU

	// Uptime is the sysUpTime.0 value in hundredths of a second.
	Uptime    uint32
	RequestID int32

	// SecurityName selects the community (v1, v2c) or user (v3).
	SecurityName  string
	SecurityLevel SecurityLevel
	ContextName   string

	// Enterprise and AgentAddress fill the SNMPv1 header when the varbinds
	// carry no snmpTrapEnterprise.0 or snmpTrapAddress.0.
	Enterprise   string
	AgentAddress string
}

func (n *Notification) pduType() PDUType {
	if n.Type == 0 {
		return SNMPv2Trap
	}
	return n.Type
}

// v2Variables returns the complete SNMPv2-Trap varbind list.
func (n *Notification) v2Variables() []SnmpPDU {
	vars := make([]SnmpPDU, 0, len(n.Variables)+2)
	vars = append(vars,
		SnmpPDU{Name: sysUpTimeOID, Type: TimeTicks, Value: n.Uptime},
		SnmpPDU{Name: snmpTrapOID, Type: ObjectIdentifier, Value: normalizeOID(n.TrapOID)},
	)
	return append(vars, n.Variables...)
}

func normalizeOID(oid string) string {
	if oid == "" || oid[0] == '.' {
		return oid
	}
	return "." + oid
}

func splitOID(oid string) ([]uint64, error) {
	parts := strings.Split(strings.TrimPrefix(oid, "."), ".")
	ids := make([]uint64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid oid %q: %w", oid, err)
		}
		ids = append(ids, v)
	}
	return ids, nil
}

func joinOID(ids []uint64) string {
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteByte('.')
		sb.WriteString(strconv.FormatUint(id, 10))
	}
	return sb.String()
}

// standardTrap returns the generic-trap value of one of the six snmpTraps
// notifications.
func standardTrap(oid string) (int, bool) {
	rest, ok := strings.CutPrefix(normalizeOID(oid), snmpTrapsPrefix+".")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 1 || idx > 6 {
		return 0, false
	}
	return idx - 1, true
}

// TrapV2ToV1 converts an SNMPv2-Trap varbind list into an SNMPv1 Trap-PDU
// (RFC 3584 §3.2). The list must start with sysUpTime.0 and snmpTrapOID.0.
// Counter64 bindings have no SNMPv1 form and are dropped. defaultEnterprise
// and agentAddress are used when the list carries no snmpTrapEnterprise.0 or
// snmpTrapAddress.0.
func TrapV2ToV1(vars []SnmpPDU, defaultEnterprise, agentAddress string) (*PDU, error) {
	if len(vars) < 2 || vars[0].Name != sysUpTimeOID || vars[1].Name != snmpTrapOID {
		return nil, fmt.Errorf("%w: notification must start with sysUpTime.0 and snmpTrapOID.0", ErrParse)
	}
	uptime, ok := vars[0].Value.(uint32)
	if !ok {
		return nil, fmt.Errorf("%w: sysUpTime.0 is %T", ErrParse, vars[0].Value)
	}
	trapOID, ok := vars[1].Value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: snmpTrapOID.0 is %T", ErrParse, vars[1].Value)
	}

	pdu := &PDU{
		Type:         Trap,
		Timestamp:    uptime,
		AgentAddress: agentAddress,
	}
	for _, vb := range vars[2:] {
		switch {
		case vb.Type == Counter64:
			continue
		case vb.Name == snmpTrapEnterpriseOID:
			if oid, ok := vb.Value.(string); ok {
				pdu.Enterprise = oid
			}
		case vb.Name == snmpTrapAddressOID:
			if addr, ok := vb.Value.(string); ok {
				pdu.AgentAddress = addr
			}
		}
		pdu.Variables = append(pdu.Variables, vb)
	}

	if generic, ok := standardTrap(trapOID); ok {
		pdu.GenericTrap = generic
		if pdu.Enterprise == "" {
			pdu.Enterprise = defaultEnterprise
		}
		if pdu.Enterprise == "" {
			pdu.Enterprise = snmpTrapsPrefix
		}
		return pdu, nil
	}

	ids, err := splitOID(trapOID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(ids) < 3 {
		return nil, fmt.Errorf("%w: trap oid %s too short", ErrParse, trapOID)
	}
	pdu.GenericTrap = enterpriseSpecific
	pdu.SpecificTrap = int(ids[len(ids)-1])
	cut := len(ids) - 1
	if ids[cut-1] == 0 {
		cut--
	}
	pdu.Enterprise = joinOID(ids[:cut])
	return pdu, nil
}

// TrapV1ToV2 converts an SNMPv1 Trap-PDU into an SNMPv2-Trap varbind list
// (RFC 3584 §3.1).
func TrapV1ToV2(pdu *PDU) ([]SnmpPDU, error) {
	if pdu.Type != Trap {
		return nil, fmt.Errorf("%w: %v is not an SNMPv1 trap", ErrParse, pdu.Type)
	}
	enterprise := normalizeOID(pdu.Enterprise)

	var trapOID string
	switch {
	case pdu.GenericTrap >= 0 && pdu.GenericTrap < enterpriseSpecific:
		trapOID = fmt.Sprintf("%s.%d", snmpTrapsPrefix, pdu.GenericTrap+1)
	case pdu.GenericTrap == enterpriseSpecific:
		trapOID = fmt.Sprintf("%s.0.%d", enterprise, pdu.SpecificTrap)
	default:
		return nil, fmt.Errorf("%w: generic trap %d", ErrParse, pdu.GenericTrap)
	}

	vars := make([]SnmpPDU, 0, len(pdu.Variables)+4)
	vars = append(vars,
		SnmpPDU{Name: sysUpTimeOID, Type: TimeTicks, Value: pdu.Timestamp},
		SnmpPDU{Name: snmpTrapOID, Type: ObjectIdentifier, Value: trapOID},
	)
	vars = append(vars, pdu.Variables...)
	if pdu.AgentAddress != "" {
		vars = append(vars, SnmpPDU{Name: snmpTrapAddressOID, Type: IPAddress, Value: pdu.AgentAddress})
	}
	if pdu.GenericTrap != enterpriseSpecific {
		vars = append(vars, SnmpPDU{Name: snmpTrapEnterpriseOID, Type: ObjectIdentifier, Value: enterprise})
	}
	return vars, nil
}
