// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package app holds the cobra commands of the signet binary.
package app

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "signet",
		Short:        "Signet is an OpenID Connect provider",
		Long:         "Signet serves the OAuth 2.0 / OpenID Connect protocol endpoints on top of a pluggable storage backend.",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}
