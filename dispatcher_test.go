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

// decodeOnlyModel has no response or notify path.
type decodeOnlyModel struct {
	id  SnmpVersion
	err error
}

func (m *decodeOnlyModel) ID() SnmpVersion                        { return m.id }
func (m *decodeOnlyModel) SecurityModel() SecurityModelID         { return SecurityModelAny }
func (m *decodeOnlyModel) Init(*Engine) error                     { return nil }
func (m *decodeOnlyModel) DecodeRequest(*Message, *Session) error { return m.err }

type releaseCounter struct {
	id       SecurityModelID
	released []SecurityStateRef
}

func (r *releaseCounter) ID() SecurityModelID { return r.id }

func (r *releaseCounter) Verify(*VerifyParams) (*VerifyResult, error) {
	return &VerifyResult{SecurityName: "fake"}, nil
}

func (r *releaseCounter) Secure(*SecureParams) ([]byte, error) {
	return []byte{0x30, 0x00}, nil
}

func (r *releaseCounter) ReleaseState(ref SecurityStateRef) {
	r.released = append(r.released, ref)
}

func TestDispatcherDecode(t *testing.T) {
	tests := []struct {
		name          string
		version       SnmpVersion
		modelErr      error
		err           error
		badVersions   uint32
		unknownPDUHnd uint32
	}{
		{name: "ok", version: Version2c},
		{name: "unknown version", version: Version3, err: ErrUnknownVersion, badVersions: 1},
		{name: "version below registered", version: Version1, err: ErrUnknownVersion, badVersions: 1},
		{name: "version above registered", version: SnmpVersion(0x7fffffff), err: ErrUnknownVersion, badVersions: 1},
		{name: "parse error", version: Version2c, modelErr: ErrParse, err: ErrParse},
		{name: "report pending", version: Version2c, modelErr: ErrReportPending, err: ErrReportPending},
		{name: "unaccounted error", version: Version2c, modelErr: ErrUnknownPDUHandler, err: ErrUnknownPDUHandler, unknownPDUHnd: 1},
		{name: "foreign error", version: Version2c, modelErr: errors.New("boom"), unknownPDUHnd: 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			stats := &Statistics{}
			d := NewDispatcher(stats, []MessageProcessingModel{&decodeOnlyModel{id: Version2c, err: test.modelErr}}, nil)

			s := &Session{}
			err := d.Decode(test.version, &Message{}, s)
			switch {
			case test.err != nil:
				assert.ErrorIs(t, err, test.err)
			case test.modelErr != nil:
				assert.Equal(t, test.modelErr, err)
			default:
				assert.NoError(t, err)
			}
			assert.Equal(t, test.badVersions, stats.Get(SnmpInBadVersions))
			assert.Equal(t, test.unknownPDUHnd, stats.Get(SnmpUnknownPDUHandlers))
			assert.Equal(t, uint32(0), stats.Get(SnmpInASNParseErrs))
			if test.badVersions > 0 {
				assert.Equal(t, Session{}, *s)
			}
		})
	}
}

func TestDispatcherOptionalInterfaces(t *testing.T) {
	d := NewDispatcher(nil, []MessageProcessingModel{&decodeOnlyModel{id: Version1}}, nil)

	out, err := d.Encode(Version1, &Session{})
	assert.NoError(t, err)
	assert.Nil(t, out)

	out, err = d.EncodeError(Version1, &Session{}, GenErr, 0)
	assert.NoError(t, err)
	assert.Nil(t, out)

	out, err = d.Notify(Version1, &Notification{})
	assert.NoError(t, err)
	assert.Nil(t, out)

	_, err = d.Encode(Version3, &Session{})
	assert.ErrorIs(t, err, ErrUnknownVersion)
	_, err = d.EncodeError(Version3, &Session{}, GenErr, 0)
	assert.ErrorIs(t, err, ErrUnknownVersion)
	_, err = d.Notify(Version3, &Notification{})
	assert.ErrorIs(t, err, ErrUnknownVersion)
	assert.Zero(t, d.stats.Get(SnmpInBadVersions))
}

func TestDispatcherSecurityRegistry(t *testing.T) {
	stats := &Statistics{}
	fake := &releaseCounter{id: SecurityModelID(42)}
	d := NewDispatcher(stats, nil, []SecurityModel{fake})

	res, err := d.Verify(42, &VerifyParams{})
	require.NoError(t, err)
	assert.Equal(t, "fake", res.SecurityName)
	out, err := d.Secure(42, &SecureParams{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x30, 0x00}, out)

	_, err = d.Verify(SecurityModelUSM, &VerifyParams{})
	assert.ErrorIs(t, err, ErrUnknownSecurityModel)
	_, err = d.Secure(SecurityModelUSM, &SecureParams{})
	assert.ErrorIs(t, err, ErrUnknownSecurityModel)
	assert.Equal(t, uint32(2), stats.Get(SnmpUnknownSecurityModels))

	d.ReleaseState(42, nil)
	d.ReleaseState(SecurityModelUSM, "dropped")
	d.ReleaseState(42, "kept")
	assert.Equal(t, []SecurityStateRef{"kept"}, fake.released)
}
