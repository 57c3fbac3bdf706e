// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gosnmp/snmpengine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent",
	Long: `Run the agent on the configured UDP and DTLS addresses until SIGINT or
SIGTERM. A coldStart notification is sent to every trap target on startup.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := snmpengine.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "snmpengined: ", log.LstdFlags)
	var agent *snmpengine.Agent
	opts := []snmpengine.Option{
		snmpengine.WithNotificationSink(func(t snmpengine.TrapTarget, data []byte) {
			agent.SendNotification(t, data)
		}),
	}
	if verbose {
		opts = append(opts, snmpengine.WithLogger(logger))
	}
	if cfg.UsersFile != "" {
		opts = append(opts, snmpengine.WithUserStore(snmpengine.NewYAMLUserStore(cfg.UsersFile)))
	}
	hostname, _ := os.Hostname()
	mib := &systemMIB{
		descr: fmt.Sprintf("snmpengined %s", Version),
		name:  hostname,
	}
	opts = append(opts, snmpengine.WithCommandProcessor(mib))

	engine, err := snmpengine.NewEngine(cfg, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()
	mib.engine = engine

	agent = snmpengine.NewAgent(engine)
	if cfg.Listen.DTLS.Address != "" {
		if agent.DTLSConfig, err = snmpengine.NewDTLSConfig(cfg.Listen.DTLS); err != nil {
			return err
		}
		if agent.CertMappings, err = snmpengine.CertMappings(cfg.Listen.DTLS.Mappings); err != nil {
			return err
		}
	}
	if err = agent.Listen(cfg.Listen.UDP, cfg.Listen.DTLS.Address); err != nil {
		return err
	}
	for _, addr := range agent.UDPAddrs() {
		logger.Printf("listening on udp %v", addr)
	}
	if addr := agent.DTLSAddr(); addr != nil {
		logger.Printf("listening on dtls %v", addr)
	}
	logger.Printf("engine id %x, boots %d", engine.EngineID(), cfg.EngineBoots)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *http.Server
	if cfg.Metrics.Address != "" {
		metrics = serveMetrics(engine, cfg.Metrics.Address, logger)
	}

	coldStart(ctx, engine, agent, logger)

	err = agent.Serve(ctx)
	if metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := metrics.Shutdown(shutdownCtx); serr != nil {
			logger.Printf("metrics shutdown: %v", serr)
		}
	}
	logger.Printf("stopped")
	return err
}

func serveMetrics(engine *snmpengine.Engine, addr string, logger *log.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(snmpengine.NewStatsCollector(engine))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("metrics on http://%s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server: %v", err)
		}
	}()
	return srv
}

func coldStart(ctx context.Context, engine *snmpengine.Engine, agent *snmpengine.Agent, logger *log.Logger) {
	for _, t := range engine.Config().TrapTargets {
		data, err := engine.NotifyTarget(ctx, t, &snmpengine.Notification{TrapOID: snmpengine.ColdStartTrapOID})
		if err != nil {
			logger.Printf("coldStart to %s: %v", t.Address, err)
			continue
		}
		agent.SendNotification(t, data)
	}
}
