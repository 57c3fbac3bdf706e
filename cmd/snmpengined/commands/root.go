// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package commands implements the snmpengined command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "snmpengined",
	Short: "SNMP agent engine",
	Long: `snmpengined answers SNMPv1, SNMPv2c and SNMPv3 requests over UDP and
DTLS. Every configuration key can be overridden with an SNMPENGINE_
environment variable, for example SNMPENGINE_MAX_MESSAGE_SIZE=1400.

Use "snmpengined [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "snmpengined %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

// Execute runs the root command. Called once by main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults and environment)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every request")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(usersCmd)
}
