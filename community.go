// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"sync"
)

// Community is a row of the community mapping table (RFC 3584
// snmpCommunityTable, reduced to what the engine needs).
type Community struct {
	Name         string
	SecurityName string
	ContextName  string
	// Versions restricts the message processing models the community may
	// be used with; empty allows v1 and v2c.
	Versions []SnmpVersion
	// Sources restricts the transport addresses; empty allows any.
	Sources []netip.Prefix
}

func (c *Community) allows(version SnmpVersion, addr net.Addr) bool {
	if len(c.Versions) > 0 && !slices.Contains(c.Versions, version) {
		return false
	}
	if len(c.Sources) == 0 {
		return true
	}
	ip, ok := addrIP(addr)
	if !ok {
		return false
	}
	for _, p := range c.Sources {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

func addrIP(addr net.Addr) (netip.Addr, bool) {
	switch a := addr.(type) {
	case *net.UDPAddr:
		ip, ok := netip.AddrFromSlice(a.IP)
		return ip.Unmap(), ok
	case *net.TCPAddr:
		ip, ok := netip.AddrFromSlice(a.IP)
		return ip.Unmap(), ok
	case nil:
		return netip.Addr{}, false
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.Addr{}, false
	}
	return ap.Addr().Unmap(), true
}

// CommunityTable maps community strings to security names and contexts.
type CommunityTable struct {
	mu   sync.RWMutex
	rows map[string]Community
}

// NewCommunityTable returns an empty table.
func NewCommunityTable() *CommunityTable {
	return &CommunityTable{rows: make(map[string]Community)}
}

// Add inserts or replaces a community.
func (t *CommunityTable) Add(c Community) {
	if c.SecurityName == "" {
		c.SecurityName = c.Name
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[c.Name] = c
}

func (t *CommunityTable) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, name)
}

func (t *CommunityTable) Lookup(name string) (Community, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.rows[name]
	return c, ok
}

// communityFor finds a community that maps to securityName.
func (t *CommunityTable) communityFor(securityName string, version SnmpVersion) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var names []string
	for name, c := range t.rows {
		if c.SecurityName == securityName && (len(c.Versions) == 0 || slices.Contains(c.Versions, version)) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	slices.Sort(names)
	return names[0], true
}

// communityStateRef carries the request community to the response.
type communityStateRef string

// CommunitySecurityModel is the community-based security model used by the
// v1 (model 1) and v2c (model 2) message processing models.
type CommunitySecurityModel struct {
	id       SecurityModelID
	version  SnmpVersion
	engineID []byte
	table    *CommunityTable
	stats    *Statistics
	Logger   Logger

	onAuthFailure func(addr net.Addr, model SecurityModelID)
}

// Compile-time interface check
var _ SecurityModel = (*CommunitySecurityModel)(nil)

// NewCommunitySecurityModel returns the model for version (Version1 or
// Version2c).
func NewCommunitySecurityModel(version SnmpVersion, engineID []byte, table *CommunityTable, stats *Statistics) (*CommunitySecurityModel, error) {
	var id SecurityModelID
	switch version {
	case Version1:
		id = SecurityModelV1
	case Version2c:
		id = SecurityModelV2c
	default:
		return nil, fmt.Errorf("community security model: unsupported version %v", version)
	}
	if table == nil {
		table = NewCommunityTable()
	}
	if stats == nil {
		stats = &Statistics{}
	}
	return &CommunitySecurityModel{
		id:       id,
		version:  version,
		engineID: bytes.Clone(engineID),
		table:    table,
		stats:    stats,
	}, nil
}

func (m *CommunitySecurityModel) ID() SecurityModelID { return m.id }

func (m *CommunitySecurityModel) Table() *CommunityTable { return m.table }

// Verify maps the community to a security name and context.
func (m *CommunitySecurityModel) Verify(p *VerifyParams) (*VerifyResult, error) {
	name := string(p.SecurityParams)
	c, ok := m.table.Lookup(name)
	if !ok {
		m.stats.Inc(SnmpInBadCommunityNames)
		m.authFailure(p.Addr)
		return nil, fmt.Errorf("%w: unknown community", ErrAuthFailure)
	}
	if !c.allows(p.Version, p.Addr) {
		m.stats.Inc(SnmpInBadCommunityUses)
		m.authFailure(p.Addr)
		return nil, fmt.Errorf("%w: community not permitted from %v", ErrAuthFailure, p.Addr)
	}
	return &VerifyResult{
		SecurityEngineID:         m.engineID,
		SecurityName:             c.SecurityName,
		SecurityLevel:            NoAuthNoPriv,
		ScopedPDU:                p.MsgData,
		MaxSizeResponseScopedPDU: p.MaxMessageSize,
		StateRef:                 communityStateRef(name),
		ContextEngineID:          m.engineID,
		ContextName:              c.ContextName,
	}, nil
}

func (m *CommunitySecurityModel) authFailure(addr net.Addr) {
	m.Logger.Printf("authentication failure from %v", addr)
	if m.onAuthFailure != nil {
		m.onAuthFailure(addr, m.id)
	}
}

// Secure wraps the PDU with the version and community.
func (m *CommunitySecurityModel) Secure(p *SecureParams) ([]byte, error) {
	community, ok := p.StateRef.(communityStateRef)
	if !ok {
		name, found := m.table.communityFor(p.SecurityName, m.version)
		if !found {
			name = p.SecurityName
		}
		community = communityStateRef(name)
	}
	prefix, err := communityPrefix(m.version, string(community))
	if err != nil {
		return nil, err
	}
	return wrapCommunityMessage(prefix, p.ScopedPDU)
}

func (m *CommunitySecurityModel) ReleaseState(SecurityStateRef) {}

// communityPrefix encodes the version and community fields.
func communityPrefix(version SnmpVersion, community string) ([]byte, error) {
	b := newBerBuilder()
	if err := b.writeInt(int(version)); err != nil {
		return nil, err
	}
	if err := b.writeOctetString([]byte(community)); err != nil {
		return nil, err
	}
	return b.bytes(), nil
}

func wrapCommunityMessage(prefix, pdu []byte) ([]byte, error) {
	b := newBerBuilder()
	b.writeRaw(prefix)
	b.writeRaw(pdu)
	msg, err := b.wrap(byte(Sequence))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return msg.bytes(), nil
}
