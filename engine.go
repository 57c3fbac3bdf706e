// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync/atomic"
)

//go:generate mockgen -destination=mocks/command_processor.go -package=mocks github.com/gosnmp/snmpengine CommandProcessor

// CommandProcessor answers decoded requests. It fills s.PDU with the
// response variables and, where needed, Error and ErrorIndex.
type CommandProcessor interface {
	ProcessPDU(ctx context.Context, s *Session) error
}

// CommandProcessorFunc adapts a function to CommandProcessor.
type CommandProcessorFunc func(ctx context.Context, s *Session) error

func (f CommandProcessorFunc) ProcessPDU(ctx context.Context, s *Session) error {
	return f(ctx, s)
}

// NotificationSink receives notifications the engine originates on its own,
// such as authenticationFailure.
type NotificationSink func(target TrapTarget, data []byte)

// Engine is the SNMP engine context: registries, pools, security models,
// clock and statistics. All state lives here; there are no package globals.
type Engine struct {
	cfg    Config
	Logger Logger

	engineID    []byte
	clock       *EngineClock
	stats       *Statistics
	dispatcher  *Dispatcher
	pools       map[SnmpVersion]*RequestList
	usm         *UserSecurityModel
	communities *CommunityTable
	tsm         *TransportSecurityModel

	processor CommandProcessor
	store     UserStore
	sink      NotificationSink

	requestID atomic.Int32
	closed    atomic.Bool
}

// ErrEngineClosed is returned by an engine after Close.
var ErrEngineClosed = errors.New("engine closed")

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l LoggerInterface) Option {
	return func(e *Engine) { e.Logger = NewLogger(l) }
}

func WithCommandProcessor(p CommandProcessor) Option {
	return func(e *Engine) { e.processor = p }
}

// WithUserStore loads users from s and persists users added at runtime.
func WithUserStore(s UserStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithClock replaces the engine clock, for tests.
func WithClock(c *EngineClock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithNotificationSink(sink NotificationSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// NewEngine builds an engine from cfg. Defaults are applied to cfg before
// validation.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	engineID, err := cfg.engineID()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		engineID: engineID,
		stats:    &Statistics{},
		pools:    make(map[SnmpVersion]*RequestList),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = NewEngineClock(cfg.EngineBoots)
	}
	e.requestID.Store(int32(randomUint32() & math.MaxInt32))

	e.communities = NewCommunityTable()
	for _, cc := range cfg.Communities {
		c, err := cc.community()
		if err != nil {
			return nil, err
		}
		e.communities.Add(c)
	}

	e.usm = NewUserSecurityModel(engineID, e.clock, nil, e.stats, cfg.USMCacheSize)
	e.usm.Logger = e.Logger.Named("usm")
	e.usm.onAuthFailure = e.authFailure
	if err = e.loadUsers(); err != nil {
		return nil, err
	}
	e.usm.store = e.store

	e.tsm = NewTransportSecurityModel(engineID, e.stats)
	e.tsm.Logger = e.Logger.Named("tsm")
	e.tsm.Prefix = cfg.Listen.DTLS.UsePrefix

	security := []SecurityModel{e.usm, e.tsm}
	var models []MessageProcessingModel
	for _, name := range cfg.Versions {
		version, _ := ParseVersion(name)
		switch version {
		case Version1, Version2c:
			cbsm, err := NewCommunitySecurityModel(version, engineID, e.communities, e.stats)
			if err != nil {
				return nil, err
			}
			cbsm.Logger = e.Logger.Named("community")
			cbsm.onAuthFailure = e.authFailure
			security = append(security, cbsm)
			models = append(models, newCommunityModel(version))
		case Version3:
			models = append(models, newV3Model())
		}
	}
	e.dispatcher = NewDispatcher(e.stats, models, security)
	e.dispatcher.Logger = e.Logger.Named("dispatcher")
	for _, m := range models {
		if err = m.Init(e); err != nil {
			return nil, fmt.Errorf("init v%v: %w", m.ID(), err)
		}
	}
	return e, nil
}

func (e *Engine) loadUsers() error {
	if e.store != nil {
		users, err := e.store.ReadFile()
		if err != nil {
			return fmt.Errorf("load users: %w", err)
		}
		for _, u := range users {
			if err = e.usm.users.Add(u); err != nil {
				return fmt.Errorf("load users: %w", err)
			}
		}
	}
	for _, uc := range e.cfg.Users {
		auth, _ := ParseAuthProtocol(uc.AuthProtocol)
		priv, _ := ParsePrivProtocol(uc.PrivProtocol)
		u, err := e.usm.LocalizeUser(uc.Name, auth, uc.AuthPassword, priv, uc.PrivPassword)
		if err != nil {
			return err
		}
		u.StorageType = StoragePermanent
		if err = e.usm.users.Add(u); err != nil && !errors.Is(err, ErrUserExists) {
			return err
		}
	}
	return nil
}

// pool returns the request list of a message processing model, creating
// it on first use. Only called during NewEngine.
func (e *Engine) pool(version SnmpVersion) (*RequestList, error) {
	if p, ok := e.pools[version]; ok {
		return p, nil
	}
	p, err := NewRequestList(e.cfg.RequestListCapacity)
	if err != nil {
		return nil, err
	}
	e.pools[version] = p
	return p, nil
}

func (e *Engine) EngineID() []byte             { return bytes.Clone(e.engineID) }
func (e *Engine) Clock() *EngineClock          { return e.clock }
func (e *Engine) Stats() *Statistics           { return e.stats }
func (e *Engine) USM() *UserSecurityModel      { return e.usm }
func (e *Engine) Communities() *CommunityTable { return e.communities }
func (e *Engine) Config() Config               { return e.cfg }

// peekVersion reads the msgVersion field without decoding the message.
func peekVersion(data []byte) (SnmpVersion, error) {
	body, err := newBerReader(data).sequence(byte(Sequence))
	if err != nil {
		return 0, err
	}
	v, err := body.readInt()
	if err != nil {
		return 0, err
	}
	return SnmpVersion(v), nil
}

// HandleMessage runs one inbound message through decode, the command
// processor and encode. It returns the datagram to send back, or nil when
// the message is dropped or needs no answer.
func (e *Engine) HandleMessage(ctx context.Context, msg *Message) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	e.stats.Inc(SnmpInPkts)

	version, err := peekVersion(msg.Data)
	if err != nil {
		e.stats.Inc(SnmpInASNParseErrs)
		return nil, err
	}

	s := &Session{}
	defer e.Release(s)

	err = e.dispatcher.Decode(version, msg, s)
	switch {
	case err == nil:
	case errors.Is(err, ErrReportPending):
		e.Logger.Printf("engine: report to %v: %v", msg.Addr, err)
		return e.respond(version, s)
	default:
		e.Logger.Printf("engine: dropping message from %v: %v", msg.Addr, err)
		return nil, err
	}

	if e.Logger.Enabled() {
		e.Logger.Printf("engine: request from %v: %s", msg.Addr, s.SafeString())
	}

	if !s.PDU.Type.confirmed() {
		if e.processor != nil {
			if err = e.processor.ProcessPDU(ctx, s); err != nil {
				e.Logger.Printf("engine: %v from %v: %v", s.PDU.Type, msg.Addr, err)
			}
		}
		return nil, nil
	}
	if s.PDU.Type == InformRequest {
		return e.respond(version, s)
	}

	if e.processor == nil {
		return e.respondError(version, s, GenErr, 0)
	}
	if err = e.processor.ProcessPDU(ctx, s); err != nil {
		e.Logger.Printf("engine: processing %v from %v: %v", s.PDU.Type, msg.Addr, err)
		return e.respondError(version, s, GenErr, 0)
	}
	return e.respond(version, s)
}

func (e *Engine) respond(version SnmpVersion, s *Session) ([]byte, error) {
	out, err := e.dispatcher.Encode(version, s)
	if errors.Is(err, ErrTooBig) {
		return e.respondError(version, s, TooBig, 0)
	}
	if err != nil {
		e.stats.Inc(SnmpSilentDrops)
		return nil, err
	}
	if out != nil {
		e.stats.Inc(SnmpOutPkts)
	}
	return out, nil
}

func (e *Engine) respondError(version SnmpVersion, s *Session, status SNMPError, index int) ([]byte, error) {
	out, err := e.dispatcher.EncodeError(version, s, status, index)
	if err == nil && len(out) > e.cfg.MaxMessageSize {
		err = fmt.Errorf("%w: %v response of %d octets", ErrTooBig, status, len(out))
	}
	if err != nil {
		e.stats.Inc(SnmpSilentDrops)
		return nil, err
	}
	if out != nil {
		e.stats.Inc(SnmpOutPkts)
	}
	return out, nil
}

// Release returns the request buffer and any unused security state held by
// s. Calling it again is a no-op.
func (e *Engine) Release(s *Session) {
	if s == nil {
		return
	}
	if s.securityState != nil {
		e.dispatcher.ReleaseState(s.SecurityModel, s.securityState)
		s.securityState = nil
	}
	if s.state != nil {
		if err := s.state.list.Remove(s.state); err != nil {
			e.Logger.Printf("engine: release: %v", err)
		}
		s.state = nil
	}
}

// Notify encodes a notification for the given version. Uptime, request id,
// enterprise and agent address default from the engine.
func (e *Engine) Notify(ctx context.Context, version SnmpVersion, n *Notification) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n.Uptime == 0 {
		n.Uptime = e.clock.Uptime()
	}
	if n.RequestID == 0 {
		n.RequestID = e.requestID.Add(1) & math.MaxInt32
	}
	if n.Enterprise == "" {
		n.Enterprise = e.cfg.TrapEnterprise
	}
	if n.AgentAddress == "" {
		n.AgentAddress = e.cfg.AgentAddress
	}
	out, err := e.dispatcher.Notify(version, n)
	if err != nil {
		return nil, err
	}
	if out != nil {
		e.stats.Inc(SnmpOutPkts)
	}
	return out, nil
}

// NotifyTarget encodes a notification for a configured target.
func (e *Engine) NotifyTarget(ctx context.Context, t TrapTarget, n *Notification) ([]byte, error) {
	version, err := ParseVersion(t.Version)
	if err != nil {
		return nil, err
	}
	if n.SecurityName == "" {
		n.SecurityName = t.SecurityName
	}
	if n.SecurityLevel == 0 {
		n.SecurityLevel, _ = ParseSecurityLevel(t.SecurityLevel)
	}
	if t.Inform && n.Type == 0 {
		n.Type = InformRequest
	}
	return e.Notify(ctx, version, n)
}

// authFailure emits authenticationFailure to every trap target when
// enabled. Called by security models with no locks held.
func (e *Engine) authFailure(addr net.Addr, model SecurityModelID) {
	if !e.cfg.AuthenticationFailureTraps || e.sink == nil {
		return
	}
	for _, t := range e.cfg.TrapTargets {
		data, err := e.NotifyTarget(context.Background(), t, &Notification{TrapOID: AuthenticationFailureTrapOID})
		if err != nil {
			e.Logger.Printf("engine: authenticationFailure for %v (model %d) to %s: %v", addr, model, t.Address, err)
			continue
		}
		if data != nil {
			e.sink(t, data)
		}
	}
}

// Close stops the engine from accepting messages.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}
	return nil
}
