// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gosnmp/snmpengine"
)

var (
	userAuth         string
	userAuthPassword string
	userPriv         string
	userPrivPassword string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage persisted USM users",
	Long:  `List and add users in the configured users_file.`,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, err := usersEngine()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ENGINE ID\tUSER\tAUTH\tPRIV\tSTORAGE")
		for _, u := range engine.USM().Users().Users() {
			fmt.Fprintf(w, "%x\t%s\t%s\t%s\t%v\n", u.EngineID, u.UserName, u.AuthProtocol, u.PrivProtocol, u.StorageType)
		}
		return w.Flush()
	},
}

var usersAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a user localized to the configured engine id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := usersEngine()
		if err != nil {
			return err
		}
		auth, err := snmpengine.ParseAuthProtocol(userAuth)
		if err != nil {
			return err
		}
		priv, err := snmpengine.ParsePrivProtocol(userPriv)
		if err != nil {
			return err
		}
		if err = engine.USM().AddUser(args[0], auth, userAuthPassword, priv, userPrivPassword); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s/%s)\n", args[0], auth, priv)
		return nil
	},
}

func init() {
	usersAddCmd.Flags().StringVar(&userAuth, "auth", "SHA", "authentication protocol")
	usersAddCmd.Flags().StringVar(&userAuthPassword, "auth-password", "", "authentication password")
	usersAddCmd.Flags().StringVar(&userPriv, "priv", "AES", "privacy protocol")
	usersAddCmd.Flags().StringVar(&userPrivPassword, "priv-password", "", "privacy password")

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersAddCmd)
}

// usersEngine builds an engine over the users file. Users only make sense
// against a stable engine id, so one must be configured.
func usersEngine() (*snmpengine.Engine, error) {
	cfg, err := snmpengine.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.UsersFile == "" {
		return nil, errors.New("users_file is not configured")
	}
	if cfg.EngineID == "" {
		return nil, errors.New("engine_id must be configured to manage users")
	}
	return snmpengine.NewEngine(cfg, snmpengine.WithUserStore(snmpengine.NewYAMLUserStore(cfg.UsersFile)))
}
