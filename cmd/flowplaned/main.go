// SPDX-License-Identifier: GPL-3.0-or-later

// Command flowplaned runs the proxy data plane described by a bootstrap
// file and the profile it points at.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flowplaned",
		Short:         "Userspace proxy data plane daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newValidateProfileCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var bootstrapPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load a profile and serve its entry plugins until signalled to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(context.Background(), bootstrapPath)
		},
	}
	cmd.Flags().StringVarP(&bootstrapPath, "bootstrap", "b", "flowplaned.yaml", "path to the bootstrap file")
	return cmd
}

func newValidateProfileCmd() *cobra.Command {
	var profilePath string
	cmd := &cobra.Command{
		Use:   "validate-profile",
		Short: "Parse and load a profile against the plugin registry without binding any listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateProfile(context.Background(), profilePath, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "path to the profile document")
	cmd.MarkFlagRequired("profile")
	return cmd
}
