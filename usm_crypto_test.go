// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var maplesyrupEngineID = []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2}

func mustHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// RFC 3414 A.3.1 and A.3.2
func TestPasswordToKeyVectors(t *testing.T) {
	tests := []struct {
		proto SnmpV3AuthProtocol
		key   string
	}{
		{MD5, "526f5eed9fcce26f8964c2930787d82b"},
		{SHA, "6695febc9288e36282235fc7151f128497b38f3f"},
	}
	for _, tt := range tests {
		t.Run(tt.proto.String(), func(t *testing.T) {
			auth := LookupAuthProtocol(tt.proto)
			require.NotNil(t, auth)
			key, err := auth.PasswordToKey("maplesyrup", maplesyrupEngineID)
			require.NoError(t, err)
			assert.Equal(t, mustHex(t, tt.key), key)
			assert.Len(t, key, auth.KeyLength())
		})
	}
}

func TestPasswordToKeyShortPassword(t *testing.T) {
	_, err := LookupAuthProtocol(SHA).PasswordToKey("short", maplesyrupEngineID)
	assert.ErrorIs(t, err, errShortPassword)
}

func TestAuthProtocolLengths(t *testing.T) {
	tests := []struct {
		proto  SnmpV3AuthProtocol
		keyLen int
		macLen int
	}{
		{MD5, 16, 12},
		{SHA, 20, 12},
		{SHA224, 28, 16},
		{SHA256, 32, 24},
		{SHA384, 48, 32},
		{SHA512, 64, 48},
	}
	for _, tt := range tests {
		auth := LookupAuthProtocol(tt.proto)
		require.NotNil(t, auth, tt.proto)
		assert.Equal(t, tt.keyLen, auth.KeyLength(), tt.proto)
		assert.Equal(t, tt.macLen, auth.MACLength(), tt.proto)

		key, err := auth.PasswordToKey("maplesyrup", maplesyrupEngineID)
		require.NoError(t, err)
		assert.Len(t, key, tt.keyLen, tt.proto)

		msg := []byte("whole message with zeroed digest")
		mac := auth.Sign(key, msg)
		assert.Len(t, mac, tt.macLen)
		assert.True(t, auth.Verify(key, msg, mac))
		msg[0] ^= 1
		assert.False(t, auth.Verify(key, msg, mac), tt.proto)
	}
	assert.Nil(t, LookupAuthProtocol(NoAuth))
	assert.Nil(t, LookupPrivProtocol(NoPriv))
}

func TestParseProtocols(t *testing.T) {
	for name, want := range map[string]SnmpV3AuthProtocol{"": NoAuth, "md5": MD5, "SHA1": SHA, "sha512": SHA512} {
		got, err := ParseAuthProtocol(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseAuthProtocol("sha3")
	assert.Error(t, err)

	for name, want := range map[string]SnmpV3PrivProtocol{"none": NoPriv, "des": DES, "AES128": AES} {
		got, err := ParsePrivProtocol(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err = ParsePrivProtocol("3des")
	assert.Error(t, err)
}

func TestPrivRoundTrip(t *testing.T) {
	auth := LookupAuthProtocol(SHA)
	plaintext := []byte("scoped pdu octets, not a multiple of eight")
	for _, proto := range []SnmpV3PrivProtocol{DES, AES} {
		t.Run(proto.String(), func(t *testing.T) {
			priv := LookupPrivProtocol(proto)
			require.NotNil(t, priv)
			key, err := LocalizePrivKey(auth, priv, "privpassword", maplesyrupEngineID)
			require.NoError(t, err)
			require.Len(t, key, 16)

			ciphertext, salt, err := priv.Encrypt(key, 7, 1234, plaintext)
			require.NoError(t, err)
			require.Len(t, salt, 8)
			assert.False(t, bytes.Contains(ciphertext, plaintext[:8]))

			got, err := priv.Decrypt(key, 7, 1234, salt, ciphertext)
			require.NoError(t, err)
			// DES pads to the block size; the BER decoder ignores the tail
			assert.Equal(t, plaintext, got[:len(plaintext)])

			// a fresh salt for every message
			_, salt2, err := priv.Encrypt(key, 7, 1234, plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, salt, salt2)
		})
	}
}

func TestDESDecryptRejectsPartialBlock(t *testing.T) {
	priv := LookupPrivProtocol(DES)
	_, err := priv.Decrypt(make([]byte, 16), 0, 0, make([]byte, 8), make([]byte, 12))
	assert.ErrorIs(t, err, ErrDecryptionError)
	_, err = priv.Decrypt(make([]byte, 16), 0, 0, make([]byte, 4), make([]byte, 16))
	assert.ErrorIs(t, err, ErrDecryptionError)
}

func TestAESDecryptWrongTimeGarbles(t *testing.T) {
	priv := LookupPrivProtocol(AES)
	key := bytes.Repeat([]byte{0x11}, 16)
	plaintext := []byte("0123456789abcdef0123")
	ciphertext, salt, err := priv.Encrypt(key, 1, 100, plaintext)
	require.NoError(t, err)

	got, err := priv.Decrypt(key, 1, 101, salt, ciphertext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, got)
}

func TestKeyChangeRoundTrip(t *testing.T) {
	for _, proto := range []SnmpV3AuthProtocol{MD5, SHA, SHA256} {
		t.Run(proto.String(), func(t *testing.T) {
			auth := LookupAuthProtocol(proto)
			oldKey, err := auth.PasswordToKey("maplesyrup", maplesyrupEngineID)
			require.NoError(t, err)
			newKey, err := auth.PasswordToKey("newsyrup!", maplesyrupEngineID)
			require.NoError(t, err)
			random := bytes.Repeat([]byte{0xa5}, len(oldKey))

			kc, err := KeyChange(auth, oldKey, newKey, random)
			require.NoError(t, err)
			assert.Len(t, kc, 2*len(oldKey))
			assert.Equal(t, random, kc[:len(oldKey)])

			got, err := ApplyKeyChange(auth, oldKey, kc)
			require.NoError(t, err)
			assert.Equal(t, newKey, got)

			_, err = ApplyKeyChange(auth, oldKey, kc[1:])
			assert.ErrorIs(t, err, ErrBadKeyChange)
		})
	}
}

func TestLocalizePrivKeyNeedsBothProtocols(t *testing.T) {
	_, err := LocalizePrivKey(nil, LookupPrivProtocol(AES), "privpassword", maplesyrupEngineID)
	assert.Error(t, err)
}
