// Copyright 2025 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	// hash implementations for CertMapping.HashAlgo
	_ "crypto/sha256"
	_ "crypto/sha512"
)

// CertMappingType selects how a tmSecurityName is derived from a DTLS peer
// certificate (RFC 6353 §5.3.2, snmpTlstmCertToTSNMIdentities).
type CertMappingType int

const (
	// CertMapSpecified matches a configured fingerprint and yields the
	// configured SecurityName.
	CertMapSpecified CertMappingType = iota
	// CertMapSANRFC822 uses the first rfc822Name; the host part is lowercased.
	CertMapSANRFC822
	// CertMapSANDNSName uses the first dNSName, lowercased.
	CertMapSANDNSName
	// CertMapSANIPAddress uses the first iPAddress.
	CertMapSANIPAddress
	// CertMapSANAny tries rfc822Name, dNSName, then iPAddress.
	CertMapSANAny
	// CertMapCommonName uses the subject CommonName.
	CertMapCommonName
)

var certMappingNames = map[string]CertMappingType{
	"specified":     CertMapSpecified,
	"san_rfc822":    CertMapSANRFC822,
	"san_dns":       CertMapSANDNSName,
	"san_ip":        CertMapSANIPAddress,
	"san_any":       CertMapSANAny,
	"common_name":   CertMapCommonName,
	"cn":            CertMapCommonName,
	"fingerprint":   CertMapSpecified,
	"san_dnsname":   CertMapSANDNSName,
	"san_ipaddress": CertMapSANIPAddress,
}

// ParseCertMappingType parses a configuration name such as "san_dns".
func ParseCertMappingType(s string) (CertMappingType, error) {
	t, ok := certMappingNames[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown certificate mapping type %q", s)
	}
	return t, nil
}

// CertMapping is one row of the certificate to security name table.
type CertMapping struct {
	Type CertMappingType

	// Fingerprint and SecurityName are used by CertMapSpecified only.
	Fingerprint  []byte
	SecurityName string

	// HashAlgo computes Fingerprint; zero means SHA-256.
	HashAlgo crypto.Hash
}

// ErrNoCertMapping is returned when no certificate mapping matches.
var ErrNoCertMapping = errors.New("no matching certificate mapping")

func (c CertMappingConfig) mapping() (CertMapping, error) {
	t, err := ParseCertMappingType(c.Type)
	if err != nil {
		return CertMapping{}, err
	}
	m := CertMapping{Type: t, SecurityName: c.SecurityName}
	if t != CertMapSpecified {
		return m, nil
	}
	switch strings.ToLower(c.Hash) {
	case "", "sha256":
		m.HashAlgo = crypto.SHA256
	case "sha384":
		m.HashAlgo = crypto.SHA384
	case "sha512":
		m.HashAlgo = crypto.SHA512
	default:
		return m, fmt.Errorf("certificate mapping: unknown hash %q", c.Hash)
	}
	fp := strings.NewReplacer(":", "", " ", "").Replace(c.Fingerprint)
	if m.Fingerprint, err = hex.DecodeString(fp); err != nil {
		return m, fmt.Errorf("certificate mapping fingerprint: %w", err)
	}
	if len(m.Fingerprint) != m.HashAlgo.Size() || m.SecurityName == "" {
		return m, fmt.Errorf("certificate mapping %q: bad fingerprint or empty security name", c.Fingerprint)
	}
	return m, nil
}

// CertMappings converts the DTLS mapping configuration.
func CertMappings(cfg []CertMappingConfig) ([]CertMapping, error) {
	out := make([]CertMapping, 0, len(cfg))
	for _, c := range cfg {
		m, err := c.mapping()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ExtractSecurityName derives a security name from a single certificate.
func ExtractSecurityName(cert *x509.Certificate, mappings []CertMapping) (string, error) {
	if cert == nil {
		return "", errors.New("certificate is nil")
	}
	return ExtractSecurityNameFromChain([]*x509.Certificate{cert}, mappings)
}

// ExtractSecurityNameFromChain tries every mapping, in order, against every
// certificate of the chain. The first match wins.
func ExtractSecurityNameFromChain(chain []*x509.Certificate, mappings []CertMapping) (string, error) {
	if len(chain) == 0 {
		return "", errors.New("certificate chain is empty")
	}
	for _, m := range mappings {
		for _, cert := range chain {
			if name, ok := m.apply(cert); ok {
				return name, nil
			}
		}
	}
	return "", ErrNoCertMapping
}

// CertFingerprint hashes the DER certificate; zero hashAlgo means SHA-256.
func CertFingerprint(cert *x509.Certificate, hashAlgo crypto.Hash) []byte {
	if hashAlgo == 0 {
		hashAlgo = crypto.SHA256
	}
	h := hashAlgo.New()
	h.Write(cert.Raw)
	return h.Sum(nil)
}

func (m CertMapping) apply(cert *x509.Certificate) (string, bool) {
	switch m.Type {
	case CertMapSpecified:
		if bytes.Equal(CertFingerprint(cert, m.HashAlgo), m.Fingerprint) {
			return m.SecurityName, true
		}
	case CertMapSANRFC822:
		return firstEmail(cert)
	case CertMapSANDNSName:
		return firstDNSName(cert)
	case CertMapSANIPAddress:
		return firstIP(cert)
	case CertMapSANAny:
		for _, f := range []func(*x509.Certificate) (string, bool){firstEmail, firstDNSName, firstIP} {
			if name, ok := f(cert); ok {
				return name, true
			}
		}
	case CertMapCommonName:
		if cn := cert.Subject.CommonName; cn != "" {
			return cn, true
		}
	}
	return "", false
}

func firstEmail(cert *x509.Certificate) (string, bool) {
	if len(cert.EmailAddresses) == 0 {
		return "", false
	}
	local, host, ok := strings.Cut(cert.EmailAddresses[0], "@")
	if !ok {
		return cert.EmailAddresses[0], true
	}
	return local + "@" + strings.ToLower(host), true
}

func firstDNSName(cert *x509.Certificate) (string, bool) {
	if len(cert.DNSNames) == 0 {
		return "", false
	}
	return strings.ToLower(cert.DNSNames[0]), true
}

func firstIP(cert *x509.Certificate) (string, bool) {
	if len(cert.IPAddresses) == 0 {
		return "", false
	}
	return cert.IPAddresses[0].String(), true
}
