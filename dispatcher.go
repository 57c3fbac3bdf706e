// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import "fmt"

// MessageProcessingModel decodes requests of one SNMP version
// (RFC 3411 §4.2 prepareDataElements).
type MessageProcessingModel interface {
	ID() SnmpVersion
	SecurityModel() SecurityModelID
	Init(e *Engine) error
	DecodeRequest(msg *Message, s *Session) error
}

// ResponseEncoder is implemented by models that can answer requests.
type ResponseEncoder interface {
	EncodeResponse(s *Session) ([]byte, error)
	// EncodeError re-emits the request as an error response from the
	// checkpoint saved at decode time.
	EncodeError(s *Session, status SNMPError, index int) ([]byte, error)
}

// Notifier is implemented by models that can originate notifications.
type Notifier interface {
	EncodeNotify(n *Notification) ([]byte, error)
}

// Dispatcher routes messages to message processing and security models by
// their numeric identifier. The registries are fixed at construction.
type Dispatcher struct {
	models   []MessageProcessingModel
	security []SecurityModel
	stats    *Statistics
	Logger   Logger
}

// NewDispatcher builds a dispatcher over fixed model and security registries.
func NewDispatcher(stats *Statistics, models []MessageProcessingModel, security []SecurityModel) *Dispatcher {
	if stats == nil {
		stats = &Statistics{}
	}
	return &Dispatcher{
		models:   models,
		security: security,
		stats:    stats,
	}
}

func (d *Dispatcher) model(id SnmpVersion) MessageProcessingModel {
	for _, m := range d.models {
		if m.ID() == id {
			return m
		}
	}
	return nil
}

func (d *Dispatcher) securityModel(id SecurityModelID) SecurityModel {
	for _, m := range d.security {
		if m.ID() == id {
			return m
		}
	}
	return nil
}

// Decode hands msg to the model registered for id. An unregistered id
// counts one snmpInBadVersions and leaves s untouched. Outcomes the model
// does not account for itself count one snmpUnknownPDUHandlers.
func (d *Dispatcher) Decode(id SnmpVersion, msg *Message, s *Session) error {
	m := d.model(id)
	if m == nil {
		d.stats.Inc(SnmpInBadVersions)
		return fmt.Errorf("%w: %d", ErrUnknownVersion, int(id))
	}
	err := m.DecodeRequest(msg, s)
	if !isRecognizedDecodeOutcome(err) {
		d.stats.Inc(SnmpUnknownPDUHandlers)
		d.Logger.Printf("v%v decode: %v", id, err)
	}
	return err
}

// Encode builds the response for s. A model without a response encoder
// yields no output and no error.
func (d *Dispatcher) Encode(id SnmpVersion, s *Session) ([]byte, error) {
	m := d.model(id)
	if m == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, int(id))
	}
	enc, ok := m.(ResponseEncoder)
	if !ok {
		return nil, nil
	}
	return enc.EncodeResponse(s)
}

// EncodeError builds an error response for s from its decode checkpoint.
func (d *Dispatcher) EncodeError(id SnmpVersion, s *Session, status SNMPError, index int) ([]byte, error) {
	m := d.model(id)
	if m == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, int(id))
	}
	enc, ok := m.(ResponseEncoder)
	if !ok {
		return nil, nil
	}
	return enc.EncodeError(s, status, index)
}

// Notify encodes a notification with the model registered for id. A model
// without a notify path yields no output and no error.
func (d *Dispatcher) Notify(id SnmpVersion, n *Notification) ([]byte, error) {
	m := d.model(id)
	if m == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, int(id))
	}
	nf, ok := m.(Notifier)
	if !ok {
		return nil, nil
	}
	return nf.EncodeNotify(n)
}

// Secure protects an outbound message with the security model id.
func (d *Dispatcher) Secure(id SecurityModelID, p *SecureParams) ([]byte, error) {
	m := d.securityModel(id)
	if m == nil {
		d.stats.Inc(SnmpUnknownSecurityModels)
		return nil, fmt.Errorf("%w: %d", ErrUnknownSecurityModel, int(id))
	}
	return m.Secure(p)
}

// Verify authenticates an inbound message with the security model id.
func (d *Dispatcher) Verify(id SecurityModelID, p *VerifyParams) (*VerifyResult, error) {
	m := d.securityModel(id)
	if m == nil {
		d.stats.Inc(SnmpUnknownSecurityModels)
		return nil, fmt.Errorf("%w: %d", ErrUnknownSecurityModel, int(id))
	}
	return m.Verify(p)
}

// ReleaseState hands an unused state reference back to its model.
func (d *Dispatcher) ReleaseState(id SecurityModelID, ref SecurityStateRef) {
	if ref == nil {
		return
	}
	if m := d.securityModel(id); m != nil {
		m.ReleaseState(ref)
	}
}
