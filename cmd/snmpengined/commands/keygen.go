// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package commands

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gosnmp/snmpengine"
)

var (
	keygenEngineID string
	keygenAuth     string
	keygenPriv     string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen <auth-password> [priv-password]",
	Short: "Print localized USM keys",
	Long: `Derive localized authentication and privacy keys (RFC 3414 §2.6) from
passwords for an engine id. Without --engine-id the configured engine id is
used.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenEngineID, "engine-id", "", "authoritative engine id, hex")
	keygenCmd.Flags().StringVar(&keygenAuth, "auth", "SHA", "authentication protocol")
	keygenCmd.Flags().StringVar(&keygenPriv, "priv", "AES", "privacy protocol")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	engineID, err := keygenEngine()
	if err != nil {
		return err
	}
	authProto, err := snmpengine.ParseAuthProtocol(keygenAuth)
	if err != nil {
		return err
	}
	auth := snmpengine.LookupAuthProtocol(authProto)
	if auth == nil {
		return fmt.Errorf("keygen needs an authentication protocol, got %s", keygenAuth)
	}
	authKey, err := auth.PasswordToKey(args[0], engineID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "engine_id: %x\n", engineID)
	fmt.Fprintf(out, "auth_key:  %x\n", authKey)

	if len(args) < 2 {
		return nil
	}
	privProto, err := snmpengine.ParsePrivProtocol(keygenPriv)
	if err != nil {
		return err
	}
	priv := snmpengine.LookupPrivProtocol(privProto)
	if priv == nil {
		return fmt.Errorf("keygen needs a privacy protocol, got %s", keygenPriv)
	}
	privKey, err := snmpengine.LocalizePrivKey(auth, priv, args[1], engineID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "priv_key:  %x\n", privKey)
	return nil
}

func keygenEngine() ([]byte, error) {
	if keygenEngineID != "" {
		return hex.DecodeString(keygenEngineID)
	}
	cfg, err := snmpengine.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.EngineID == "" {
		return nil, errors.New("no engine id configured; pass --engine-id")
	}
	return hex.DecodeString(cfg.EngineID)
}
