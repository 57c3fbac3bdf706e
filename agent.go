// Copyright 2025 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/dtls/v3"
	"golang.org/x/sync/errgroup"
)

// Default timeout value for CloseTimeout of 3 seconds
const defaultCloseTimeout = 3 * time.Second

// maxDatagramSize is the receive buffer; larger messages are truncated by
// the socket.
const maxDatagramSize = 65535

// Agent hosts an Engine on UDP and DTLS sockets. Requests on one socket are
// handled in arrival order; each DTLS association runs on its own goroutine.
type Agent struct {
	engine *Engine
	Logger Logger

	// DTLSConfig is required for a DTLS listener. Client certificates are
	// always required; the peer chain is mapped through CertMappings to the
	// transport security name.
	DTLSConfig   *dtls.Config
	CertMappings []CertMapping

	// CloseTimeout is the max wait time for the sockets to drain on Close.
	CloseTimeout time.Duration

	mu       sync.Mutex
	udp      []*net.UDPConn
	dtls     net.Listener
	conns    sync.WaitGroup
	done     chan struct{}
	finish   atomic.Bool
	serving  atomic.Bool
	finished chan struct{}
}

// NewAgent returns an agent serving e. Call Listen before Serve.
func NewAgent(e *Engine) *Agent {
	return &Agent{
		engine:       e,
		Logger:       e.Logger.Named("agent"),
		CloseTimeout: defaultCloseTimeout,
		done:         make(chan struct{}),
		finished:     make(chan struct{}),
	}
}

// Listen binds the UDP sockets and, when dtlsAddr is set, the DTLS
// listener.
func (a *Agent) Listen(udpAddrs []string, dtlsAddr string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, addr := range udpAddrs {
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return err
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			return err
		}
		a.udp = append(a.udp, conn)
	}
	if dtlsAddr == "" {
		return nil
	}
	if a.DTLSConfig == nil {
		return errors.New("DTLSConfig required for DTLS listener")
	}
	a.DTLSConfig.ClientAuth = dtls.RequireAndVerifyClientCert
	udpAddr, err := net.ResolveUDPAddr("udp", dtlsAddr)
	if err != nil {
		return err
	}
	if a.dtls, err = dtls.Listen("udp", udpAddr, a.DTLSConfig); err != nil {
		return err
	}
	return nil
}

// UDPAddrs returns the bound UDP addresses.
func (a *Agent) UDPAddrs() []net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]net.Addr, 0, len(a.udp))
	for _, c := range a.udp {
		out = append(out, c.LocalAddr())
	}
	return out
}

// DTLSAddr returns the bound DTLS address, or nil.
func (a *Agent) DTLSAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dtls == nil {
		return nil
	}
	return a.dtls.Addr()
}

// Serve runs every bound listener until ctx is done or Close is called.
func (a *Agent) Serve(ctx context.Context) error {
	if !a.serving.CompareAndSwap(false, true) {
		return errors.New("agent already serving")
	}
	defer close(a.finished)

	a.mu.Lock()
	udp := a.udp
	listener := a.dtls
	a.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, conn := range udp {
		g.Go(func() error { return a.serveUDP(ctx, conn) })
	}
	if listener != nil {
		g.Go(func() error { return a.serveDTLS(ctx, listener) })
	}
	g.Go(func() error {
		select {
		case <-ctx.Done():
			a.shutdown()
		case <-a.done:
		}
		return nil
	})
	err := g.Wait()
	a.conns.Wait()
	return err
}

func udpDomain(addr *net.UDPAddr) TransportDomain {
	if addr.IP.To4() == nil {
		return DomainUDPIPv6
	}
	return DomainUDPIPv4
}

func (a *Agent) serveUDP(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if a.finish.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			a.Logger.Printf("udp read: %s", err)
			continue
		}
		out, err := a.engine.HandleMessage(ctx, &Message{
			Addr:   remote,
			Domain: udpDomain(remote),
			Data:   buf[:n],
		})
		if err != nil {
			a.Logger.Printf("%v: %s", remote, err)
		}
		if out == nil {
			continue
		}
		if count, err := conn.WriteToUDP(out, remote); err != nil {
			a.Logger.Printf("udp write to %v: %s", remote, err)
		} else if count != len(out) {
			a.Logger.Printf("short write to %v", remote)
		}
	}
}

func (a *Agent) serveDTLS(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if a.finish.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			a.Logger.Printf("dtls accept: %s", err)
			continue
		}
		dconn, ok := conn.(*dtls.Conn)
		if !ok {
			conn.Close()
			continue
		}
		a.conns.Add(1)
		go func() {
			defer a.conns.Done()
			a.handleDTLS(ctx, dconn)
		}()
	}
}

// handleDTLS serves every message of one DTLS association.
func (a *Agent) handleDTLS(ctx context.Context, conn *dtls.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, maxDatagramSize)
	securityName := ""
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !a.finish.Load() && !errors.Is(err, net.ErrClosed) {
				a.Logger.Printf("dtls read from %v: %s", conn.RemoteAddr(), err)
			}
			return
		}
		if securityName == "" {
			if securityName, err = a.peerSecurityName(conn); err != nil {
				a.Logger.Printf("dtls peer %v: %s", conn.RemoteAddr(), err)
			}
		}
		out, err := a.engine.HandleMessage(ctx, &Message{
			Addr:                  conn.RemoteAddr(),
			Domain:                DomainDTLS,
			Data:                  buf[:n],
			TransportSecurityName: securityName,
		})
		if err != nil {
			a.Logger.Printf("%v: %s", conn.RemoteAddr(), err)
		}
		if out != nil {
			if _, err = conn.Write(out); err != nil {
				a.Logger.Printf("dtls write to %v: %s", conn.RemoteAddr(), err)
				return
			}
		}
	}
}

// peerSecurityName maps the peer certificate chain to a tmSecurityName.
func (a *Agent) peerSecurityName(conn *dtls.Conn) (string, error) {
	state, ok := conn.ConnectionState()
	if !ok || len(state.PeerCertificates) == 0 {
		return "", errors.New("no peer certificate")
	}
	// pion/dtls returns raw DER, must parse
	chain := make([]*x509.Certificate, 0, len(state.PeerCertificates))
	for _, der := range state.PeerCertificates {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return "", fmt.Errorf("parse peer certificate: %w", err)
		}
		chain = append(chain, cert)
	}
	return ExtractSecurityNameFromChain(chain, a.CertMappings)
}

// SendNotification writes an encoded notification to target from the first
// UDP socket.
func (a *Agent) SendNotification(target TrapTarget, data []byte) {
	a.mu.Lock()
	var conn *net.UDPConn
	if len(a.udp) > 0 {
		conn = a.udp[0]
	}
	a.mu.Unlock()
	if conn == nil {
		a.Logger.Printf("no udp socket for notification to %s", target.Address)
		return
	}
	addr, err := net.ResolveUDPAddr("udp", target.Address)
	if err != nil {
		a.Logger.Printf("notification target %s: %s", target.Address, err)
		return
	}
	if _, err = conn.WriteToUDP(data, addr); err != nil {
		a.Logger.Printf("notification to %s: %s", target.Address, err)
	}
}

func (a *Agent) shutdown() {
	if !a.finish.CompareAndSwap(false, true) {
		return
	}
	close(a.done)

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.udp {
		if err := c.Close(); err != nil {
			a.Logger.Printf("failed to close udp socket: %s", err)
		}
	}
	if a.dtls != nil {
		if err := a.dtls.Close(); err != nil {
			a.Logger.Printf("failed to close dtls listener: %s", err)
		}
	}
}

// Close terminates the listeners and waits up to CloseTimeout for Serve to
// return.
func (a *Agent) Close() {
	a.shutdown()
	if !a.serving.Load() {
		return
	}
	select {
	case <-a.finished:
	case <-time.After(a.CloseTimeout): // A timeout can prevent blocking forever
		a.Logger.Printf("timeout while awaiting listeners on Close()")
	}
}

// NewDTLSConfig builds a server DTLS configuration from certificate files.
func NewDTLSConfig(cfg DTLSConfig) (*dtls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("dtls certificate: %w", err)
	}
	out := &dtls.Config{
		Certificates:         []tls.Certificate{cert},
		ClientAuth:           dtls.RequireAndVerifyClientCert,
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("dtls ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("dtls ca: no certificates in %s", cfg.CAFile)
		}
		out.ClientCAs = pool
	}
	return out, nil
}
