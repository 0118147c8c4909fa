// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the signet command.
package main

import (
	"log/slog"
	"os"

	"github.com/signet-dev/signet/cmd/signet/app"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := app.NewRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
