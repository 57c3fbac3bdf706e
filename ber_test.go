// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testsMarshalLength = []struct {
	length   int
	expected []byte
}{
	{1, []byte{0x01}},
	{129, []byte{0x81, 0x81}},
	{256, []byte{0x82, 0x01, 0x00}},
	{272, []byte{0x82, 0x01, 0x10}},
	{435, []byte{0x82, 0x01, 0xb3}},
}

func TestMarshalLength(t *testing.T) {
	for i, test := range testsMarshalLength {
		testBytes, err := marshalLength(test.length)
		require.NoError(t, err, "%d: length %d", i, test.length)
		assert.Equal(t, test.expected, testBytes, "%d: length %d", i, test.length)
	}
}

// TestParseLength covers definite short and long forms. X.690 §8.1.3;
// RFC 3417 §8 forbids the indefinite form.
func TestParseLength(t *testing.T) {
	tests := []struct {
		name           string
		data           []byte
		expectedLength int
		expectedCursor int
		wantErr        bool
	}{
		{
			name:           "short_form_zero",
			data:           []byte{0x04, 0x00},
			expectedLength: 2,
			expectedCursor: 2,
		},
		{
			name:           "short_form_small",
			data:           []byte{0x04, 0x05, 0x01, 0x02, 0x03, 0x04, 0x05},
			expectedLength: 7,
			expectedCursor: 2,
		},
		{
			name:           "short_form_max",
			data:           append([]byte{0x04, 0x7f}, make([]byte, 127)...),
			expectedLength: 129,
			expectedCursor: 2,
		},
		{
			name:           "long_form_1_octet_128",
			data:           append([]byte{0x04, 0x81, 0x80}, make([]byte, 128)...),
			expectedLength: 131,
			expectedCursor: 3,
		},
		{
			name:           "long_form_2_octets_1000",
			data:           append([]byte{0x04, 0x82, 0x03, 0xe8}, make([]byte, 1000)...),
			expectedLength: 1004,
			expectedCursor: 4,
		},
		{
			name:    "indefinite_length_0x80",
			data:    []byte{0x30, 0x80, 0x00, 0x00},
			wantErr: true,
		},
		{
			name:    "long_form_truncated_length_octets",
			data:    []byte{0x04, 0x82, 0x01},
			wantErr: true,
		},
		{
			name:    "overflow_8_octets_max",
			data:    []byte{0x04, 0x88, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			wantErr: true,
		},
		{
			name:    "header_only",
			data:    []byte{0x04},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			length, cursor, err := parseLength(tt.data)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrParse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedLength, length)
			assert.Equal(t, tt.expectedCursor, cursor)
		})
	}
}

func TestBerReaderTruncatedElement(t *testing.T) {
	r := newBerReader([]byte{0x30, 0x05, 0x02, 0x01})
	_, err := r.sequence(byte(Sequence))
	require.ErrorIs(t, err, ErrParse)
	assert.Equal(t, 0, r.offset())
}

func TestBerReaderWrongTagKeepsCursor(t *testing.T) {
	r := newBerReader([]byte{0x04, 0x01, 'a'})
	_, err := r.readInt()
	require.ErrorIs(t, err, ErrParse)
	assert.Equal(t, 0, r.offset())

	s, err := r.readOctetString()
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), s)
	assert.True(t, r.empty())
}

func TestBerReaderUint32Range(t *testing.T) {
	// INTEGER -1 is not a valid msgID or engine time
	r := newBerReader([]byte{0x02, 0x01, 0xff})
	_, err := r.readUint32(byte(Integer))
	assert.ErrorIs(t, err, ErrParse)

	r = newBerReader([]byte{0x41, 0x05, 0x00, 0xff, 0xff, 0xff, 0xff})
	v, err := r.readUint32(byte(Counter32))
	require.NoError(t, err)
	assert.Equal(t, uint32(0xffffffff), v)
}

func TestBerBuilderPatchAfterWrap(t *testing.T) {
	inner := newBerBuilder()
	require.NoError(t, inner.writeInt(3))
	require.NoError(t, inner.writePlaceholder("digest", byte(OctetString), 4))

	outer, err := inner.wrap(byte(Sequence))
	require.NoError(t, err)
	msg := newBerBuilder()
	require.NoError(t, msg.writeInt(1))
	msg.append(outer)

	off, ok := msg.mark("digest")
	require.True(t, ok)
	// INTEGER 1, SEQUENCE header, INTEGER 3, OCTET STRING header
	assert.Equal(t, 3+2+3+2, off)

	require.NoError(t, msg.patch("digest", []byte{0xde, 0xad, 0xbe, 0xef}))
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, msg.bytes()[off:off+4])

	r := newBerReader(msg.bytes())
	v, err := r.readInt()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	body, err := r.sequence(byte(Sequence))
	require.NoError(t, err)
	_, err = body.readInt()
	require.NoError(t, err)
	digest, err := body.readOctetString()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, digest)
}

func TestBerBuilderPatchErrors(t *testing.T) {
	b := newBerBuilder()
	assert.ErrorIs(t, b.patch("missing", []byte{1}), ErrParse)

	require.NoError(t, b.writePlaceholder("p", byte(OctetString), 2))
	assert.ErrorIs(t, b.patch("p", []byte{1, 2, 3}), ErrParse)
}

func TestObjectIdentifierRoundTrip(t *testing.T) {
	for _, oid := range []string{
		".1.3.6.1.2.1.1.3.0",
		".1.3.6.1.6.3.15.1.1.3.0",
		".1.3.6.1.4.1.8072.3.2.10",
		".1.3.6.1.4.1.4294967295",
	} {
		b := newBerBuilder()
		require.NoError(t, b.writeOID(oid), oid)
		got, err := newBerReader(b.bytes()).readOID()
		require.NoError(t, err, oid)
		assert.Equal(t, oid, got)
	}
}

func TestSnmpVersionString(t *testing.T) {
	for _, test := range []struct {
		in  SnmpVersion
		out string
	}{
		{Version1, "1"},
		{Version2c, "2c"},
		{Version3, "3"},
		{SnmpVersion(2), "unknown(2)"},
	} {
		assert.Equal(t, test.out, test.in.String())
	}
}
