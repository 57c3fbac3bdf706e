// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import "errors"

// Structural and capacity errors.
var (
	ErrParse       = errors.New("asn.1 parse error")
	ErrCapacity    = errors.New("request list exhausted")
	ErrCacheFull   = errors.New("usm cache full")
	ErrOutOfMemory = errors.New("out of memory")
	ErrTooBig      = errors.New("response too big")
)

// Dispatch errors.
var (
	ErrUnknownVersion       = errors.New("unknown message processing model")
	ErrUnknownSecurityModel = errors.New("unknown security model")
	ErrUnknownPDUHandler    = errors.New("unknown pdu handler")
	ErrInvalidMsg           = errors.New("invalid message")
	ErrReportPending        = errors.New("report pdu pending")
	ErrNoResponse           = errors.New("no response for pdu class")
)

// Security errors. Each maps to exactly one statistics counter.
var (
	ErrUnknownEngineID          = errors.New("unknown engine id")
	ErrUnknownUserName          = errors.New("unknown user name")
	ErrUnsupportedSecurityLevel = errors.New("unsupported security level")
	ErrAuthenticationError      = errors.New("authentication failure (wrong digest)")
	ErrNotInTimeWindow          = errors.New("not in time window")
	ErrDecryptionError          = errors.New("decryption error")
	ErrEncryptionError          = errors.New("encryption error")
	ErrAuthFailure              = errors.New("community authentication failure")
	ErrTsmInvalidCache          = errors.New("no transport security name for message")
	ErrTsmInadequateLevel       = errors.New("transport cannot provide requested security level")
)

// User table errors.
var (
	ErrUserExists   = errors.New("usm user already exists")
	ErrUserNotFound = errors.New("usm user not found")
	ErrNotOwner     = errors.New("own key change requested by another principal")
	ErrBadKeyChange = errors.New("malformed key change value")
)

// isRecognizedDecodeOutcome reports whether err is one of the outcomes a
// message processing model accounts for itself. Anything else returned by
// DecodeRequest is charged to snmpUnknownPDUHandlers.
func isRecognizedDecodeOutcome(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, ErrParse),
		errors.Is(err, ErrReportPending),
		errors.Is(err, ErrAuthFailure),
		errors.Is(err, ErrCapacity),
		errors.Is(err, ErrInvalidMsg):
		return true
	}
	return false
}
