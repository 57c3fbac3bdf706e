// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des" //nolint:gosec
	"crypto/hmac"
	"crypto/md5" //nolint:gosec
	"crypto/rand"
	"crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"strings"
	"sync/atomic"
)

// SnmpV3AuthProtocol describes the authentication protocol in use by an
// authenticated SnmpV3 user.
type SnmpV3AuthProtocol uint8

// NoAuth, MD5, and SHA are implemented
const (
	NoAuth SnmpV3AuthProtocol = 1
	MD5    SnmpV3AuthProtocol = 2
	SHA    SnmpV3AuthProtocol = 3
	SHA224 SnmpV3AuthProtocol = 4
	SHA256 SnmpV3AuthProtocol = 5
	SHA384 SnmpV3AuthProtocol = 6
	SHA512 SnmpV3AuthProtocol = 7
)

func (p SnmpV3AuthProtocol) String() string {
	switch p {
	case NoAuth:
		return "NoAuth"
	case MD5:
		return "MD5"
	case SHA:
		return "SHA"
	case SHA224:
		return "SHA224"
	case SHA256:
		return "SHA256"
	case SHA384:
		return "SHA384"
	case SHA512:
		return "SHA512"
	}
	return fmt.Sprintf("SnmpV3AuthProtocol(%d)", uint8(p))
}

// ParseAuthProtocol maps a configuration name to an auth protocol.
func ParseAuthProtocol(name string) (SnmpV3AuthProtocol, error) {
	switch strings.ToUpper(name) {
	case "", "NONE", "NOAUTH":
		return NoAuth, nil
	case "MD5":
		return MD5, nil
	case "SHA", "SHA1":
		return SHA, nil
	case "SHA224":
		return SHA224, nil
	case "SHA256":
		return SHA256, nil
	case "SHA384":
		return SHA384, nil
	case "SHA512":
		return SHA512, nil
	}
	return 0, fmt.Errorf("unknown auth protocol %q", name)
}

// SnmpV3PrivProtocol is the privacy protocol in use by an private SnmpV3 user.
type SnmpV3PrivProtocol uint8

// NoPriv, DES and AES implemented
const (
	NoPriv SnmpV3PrivProtocol = 1
	DES    SnmpV3PrivProtocol = 2
	AES    SnmpV3PrivProtocol = 3
)

func (p SnmpV3PrivProtocol) String() string {
	switch p {
	case NoPriv:
		return "NoPriv"
	case DES:
		return "DES"
	case AES:
		return "AES"
	}
	return fmt.Sprintf("SnmpV3PrivProtocol(%d)", uint8(p))
}

// ParsePrivProtocol maps a configuration name to a privacy protocol.
func ParsePrivProtocol(name string) (SnmpV3PrivProtocol, error) {
	switch strings.ToUpper(name) {
	case "", "NONE", "NOPRIV":
		return NoPriv, nil
	case "DES":
		return DES, nil
	case "AES", "AES128":
		return AES, nil
	}
	return 0, fmt.Errorf("unknown priv protocol %q", name)
}

// minPasswordLength is the RFC 3414 §11.2 lower bound.
const minPasswordLength = 8

var errShortPassword = fmt.Errorf("password shorter than %d characters", minPasswordLength)

// AuthProtocol is an HMAC based authentication protocol.
type AuthProtocol interface {
	Protocol() SnmpV3AuthProtocol
	OID() string
	// KeyLength is the length of a localized key.
	KeyLength() int
	// MACLength is the length of msgAuthenticationParameters.
	MACLength() int
	New() hash.Hash
	PasswordToKey(password string, engineID []byte) ([]byte, error)
	Sign(key, wholeMsg []byte) []byte
	Verify(key, wholeMsg, mac []byte) bool
}

// PrivProtocol is a symmetric privacy protocol. engineBoots and engineTime
// are those of the authoritative engine.
type PrivProtocol interface {
	Protocol() SnmpV3PrivProtocol
	OID() string
	KeyLength() int
	Encrypt(key []byte, engineBoots, engineTime uint32, plaintext []byte) (ciphertext, privParams []byte, err error)
	Decrypt(key []byte, engineBoots, engineTime uint32, privParams, ciphertext []byte) ([]byte, error)
}

type hmacAuth struct {
	proto  SnmpV3AuthProtocol
	oid    string
	newFn  func() hash.Hash
	keyLen int
	macLen int
}

func (a *hmacAuth) Protocol() SnmpV3AuthProtocol { return a.proto }
func (a *hmacAuth) OID() string                  { return a.oid }
func (a *hmacAuth) KeyLength() int               { return a.keyLen }
func (a *hmacAuth) MACLength() int               { return a.macLen }
func (a *hmacAuth) New() hash.Hash               { return a.newFn() }

// PasswordToKey implements RFC 3414 A.2: hash one megabyte of the repeated
// password, then localize the digest with the engine id.
func (a *hmacAuth) PasswordToKey(password string, engineID []byte) ([]byte, error) {
	if len(password) < minPasswordLength {
		return nil, errShortPassword
	}
	h := a.newFn()
	pw := []byte(password)
	var chunk [64]byte
	for count := 0; count < 1048576; count += len(chunk) {
		for i := range chunk {
			chunk[i] = pw[(count+i)%len(pw)]
		}
		h.Write(chunk[:])
	}
	ku := h.Sum(nil)

	h.Reset()
	h.Write(ku)
	h.Write(engineID)
	h.Write(ku)
	return h.Sum(nil), nil
}

func (a *hmacAuth) Sign(key, wholeMsg []byte) []byte {
	mac := hmac.New(a.newFn, key)
	mac.Write(wholeMsg)
	return mac.Sum(nil)[:a.macLen]
}

func (a *hmacAuth) Verify(key, wholeMsg, mac []byte) bool {
	return hmac.Equal(a.Sign(key, wholeMsg), mac)
}

// Auth protocols, RFC 3414 and RFC 7860.
var authProtocols = []AuthProtocol{
	&hmacAuth{proto: MD5, oid: ".1.3.6.1.6.3.10.1.1.2", newFn: md5.New, keyLen: md5.Size, macLen: 12},
	&hmacAuth{proto: SHA, oid: ".1.3.6.1.6.3.10.1.1.3", newFn: sha1.New, keyLen: sha1.Size, macLen: 12},
	&hmacAuth{proto: SHA224, oid: ".1.3.6.1.6.3.10.1.1.4", newFn: sha256.New224, keyLen: sha256.Size224, macLen: 16},
	&hmacAuth{proto: SHA256, oid: ".1.3.6.1.6.3.10.1.1.5", newFn: sha256.New, keyLen: sha256.Size, macLen: 24},
	&hmacAuth{proto: SHA384, oid: ".1.3.6.1.6.3.10.1.1.6", newFn: sha512.New384, keyLen: sha512.Size384, macLen: 32},
	&hmacAuth{proto: SHA512, oid: ".1.3.6.1.6.3.10.1.1.7", newFn: sha512.New, keyLen: sha512.Size, macLen: 48},
}

// LookupAuthProtocol returns the implementation of p, or nil for NoAuth and
// unknown protocols.
func LookupAuthProtocol(p SnmpV3AuthProtocol) AuthProtocol {
	for _, a := range authProtocols {
		if a.Protocol() == p {
			return a
		}
	}
	return nil
}

// -- privacy ------------------------------------------------------------------

type desPriv struct {
	salt atomic.Uint32
}

func (*desPriv) Protocol() SnmpV3PrivProtocol { return DES }
func (*desPriv) OID() string                  { return ".1.3.6.1.6.3.10.1.2.2" }
func (*desPriv) KeyLength() int               { return 16 }

// Encrypt implements RFC 3414 §8.1.1.1. The salt is the engine boots
// followed by a local counter.
func (p *desPriv) Encrypt(key []byte, engineBoots, _ uint32, plaintext []byte) ([]byte, []byte, error) {
	if len(key) < 16 {
		return nil, nil, fmt.Errorf("%w: DES key too short", ErrEncryptionError)
	}
	block, err := des.NewCipher(key[:8]) //nolint:gosec
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncryptionError, err)
	}
	salt := make([]byte, 8)
	binary.BigEndian.PutUint32(salt, engineBoots)
	binary.BigEndian.PutUint32(salt[4:], p.salt.Add(1))

	iv := make([]byte, 8)
	for i := range iv {
		iv[i] = key[8+i] ^ salt[i]
	}
	padded := plaintext
	if r := len(plaintext) % des.BlockSize; r != 0 {
		padded = make([]byte, len(plaintext)+des.BlockSize-r)
		copy(padded, plaintext)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, salt, nil
}

func (p *desPriv) Decrypt(key []byte, _, _ uint32, privParams, ciphertext []byte) ([]byte, error) {
	if len(key) < 16 || len(privParams) != 8 {
		return nil, fmt.Errorf("%w: bad DES key or salt", ErrDecryptionError)
	}
	if len(ciphertext) == 0 || len(ciphertext)%des.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d not a multiple of %d", ErrDecryptionError, len(ciphertext), des.BlockSize)
	}
	block, err := des.NewCipher(key[:8]) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionError, err)
	}
	iv := make([]byte, 8)
	for i := range iv {
		iv[i] = key[8+i] ^ privParams[i]
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

type aesPriv struct {
	salt atomic.Uint64
}

func (*aesPriv) Protocol() SnmpV3PrivProtocol { return AES }
func (*aesPriv) OID() string                  { return ".1.3.6.1.6.3.10.1.2.4" }
func (*aesPriv) KeyLength() int               { return 16 }

func aesIV(engineBoots, engineTime uint32, salt []byte) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint32(iv, engineBoots)
	binary.BigEndian.PutUint32(iv[4:], engineTime)
	copy(iv[8:], salt)
	return iv
}

// Encrypt implements RFC 3826 §3.1.3.
func (p *aesPriv) Encrypt(key []byte, engineBoots, engineTime uint32, plaintext []byte) ([]byte, []byte, error) {
	if len(key) < 16 {
		return nil, nil, fmt.Errorf("%w: AES key too short", ErrEncryptionError)
	}
	block, err := aes.NewCipher(key[:16])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncryptionError, err)
	}
	salt := make([]byte, 8)
	binary.BigEndian.PutUint64(salt, p.salt.Add(1))
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCFBEncrypter(block, aesIV(engineBoots, engineTime, salt)).XORKeyStream(ciphertext, plaintext) //nolint:staticcheck
	return ciphertext, salt, nil
}

func (p *aesPriv) Decrypt(key []byte, engineBoots, engineTime uint32, privParams, ciphertext []byte) ([]byte, error) {
	if len(key) < 16 || len(privParams) != 8 {
		return nil, fmt.Errorf("%w: bad AES key or salt", ErrDecryptionError)
	}
	block, err := aes.NewCipher(key[:16])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionError, err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCFBDecrypter(block, aesIV(engineBoots, engineTime, privParams)).XORKeyStream(plaintext, ciphertext) //nolint:staticcheck
	return plaintext, nil
}

var privProtocols = []PrivProtocol{newDESPriv(), newAESPriv()}

func newDESPriv() *desPriv {
	p := &desPriv{}
	p.salt.Store(randomUint32())
	return p
}

func newAESPriv() *aesPriv {
	p := &aesPriv{}
	p.salt.Store(uint64(randomUint32())<<32 | uint64(randomUint32()))
	return p
}

func randomUint32() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}

// LookupPrivProtocol returns the implementation of p, or nil for NoPriv and
// unknown protocols.
func LookupPrivProtocol(p SnmpV3PrivProtocol) PrivProtocol {
	for _, pp := range privProtocols {
		if pp.Protocol() == p {
			return pp
		}
	}
	return nil
}

// LocalizePrivKey derives a privacy key from a password using the hash of
// the user's auth protocol, truncated to what the privacy protocol needs.
func LocalizePrivKey(auth AuthProtocol, priv PrivProtocol, password string, engineID []byte) ([]byte, error) {
	if auth == nil || priv == nil {
		return nil, errors.New("privacy requires both an auth and a priv protocol")
	}
	key, err := auth.PasswordToKey(password, engineID)
	if err != nil {
		return nil, err
	}
	if len(key) < priv.KeyLength() {
		return nil, fmt.Errorf("%v key too short for %v", auth.Protocol(), priv.Protocol())
	}
	return key[:priv.KeyLength()], nil
}

// -- key change ---------------------------------------------------------------

// KeyChange builds a KeyChange value (RFC 3414 §5) that moves a holder of
// oldKey to newKey. random must be as long as the keys.
func KeyChange(auth AuthProtocol, oldKey, newKey, random []byte) ([]byte, error) {
	if len(oldKey) != len(newKey) || len(random) != len(oldKey) {
		return nil, fmt.Errorf("%w: key and random lengths differ", ErrBadKeyChange)
	}
	delta := keyChangeDelta(auth, oldKey, random, newKey)
	return append(append([]byte(nil), random...), delta...), nil
}

// ApplyKeyChange recovers the new key from oldKey and a KeyChange value.
func ApplyKeyChange(auth AuthProtocol, oldKey, keyChange []byte) ([]byte, error) {
	n := len(oldKey)
	if n == 0 || len(keyChange) != 2*n {
		return nil, fmt.Errorf("%w: expected %d octets, got %d", ErrBadKeyChange, 2*n, len(keyChange))
	}
	return keyChangeDelta(auth, oldKey, keyChange[:n], keyChange[n:]), nil
}

// keyChangeDelta XORs src with the digest stream seeded by key and random.
// The operation is its own inverse.
func keyChangeDelta(auth AuthProtocol, key, random, src []byte) []byte {
	h := auth.New()
	out := make([]byte, len(src))
	temp := append([]byte(nil), key...)
	for done := 0; done < len(src); {
		h.Reset()
		h.Write(temp)
		h.Write(random)
		temp = h.Sum(nil)
		n := copy(out[done:], temp)
		for i := 0; i < n; i++ {
			out[done+i] ^= src[done+i]
		}
		done += n
	}
	return out
}
