// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command flowctl is the CLI for a running flowd server.
//
// # Usage
//
//	flowctl graph register review.yaml
//	flowctl graph get <graph-id>
//	flowctl run start <graph-id> --state '{"source_code": "..."}'
//	flowctl run watch <run-id>
//	flowctl run status <run-id>
//	flowctl run cancel <run-id>
//
// The server address comes from --server or the FLOWD_URL environment
// variable, defaulting to http://localhost:12310.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianFlow/pkg/logging"
	"github.com/AleutianAI/AleutianFlow/pkg/ux"
)

var (
	serverURL        string
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	logger *logging.Logger
	client *Client

	rootCmd = &cobra.Command{
		Use:   "flowctl",
		Short: "A cli for the AleutianFlow workflow engine",
		Long: `Flowctl manages workflow graphs and runs on a flowd server:
register graph definitions, start runs, and stream their execution
logs live.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}

			logger = logging.New(logging.Config{
				Level:   logging.LevelInfo,
				LogDir:  "~/.aleutianflow/logs",
				Service: "flowctl",
				Quiet:   true,
			})

			client = NewClient(resolveServerURL())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Close()
			}
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"flowd server URL (default http://localhost:12310, env FLOWD_URL)")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full, standard, minimal, machine")

	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(runCmd)
}

// resolveServerURL picks the server address: flag, then environment,
// then the local default.
func resolveServerURL() string {
	if serverURL != "" {
		return serverURL
	}
	if env := os.Getenv("FLOWD_URL"); env != "" {
		return env
	}
	return "http://localhost:12310"
}

// fail prints the error and exits nonzero.
func fail(err error) {
	ux.Error(err.Error())
	if logger != nil {
		logger.Error("command failed", "error", err.Error())
		logger.Close()
	}
	os.Exit(1)
}
