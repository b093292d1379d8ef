// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianFlow/pkg/ux"
	"github.com/AleutianAI/AleutianFlow/services/workflow/engine"
)

var (
	runStateJSON string // Initial state: inline JSON or @file
	runNoWatch   bool   // Start without streaming the log

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Manage workflow runs",
	}

	runStartCmd = &cobra.Command{
		Use:   "start [graph-id]",
		Short: "Start a run and stream its execution log",
		Args:  cobra.ExactArgs(1),
		Run:   runRunStart,
	}

	runStatusCmd = &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show a run snapshot",
		Args:  cobra.ExactArgs(1),
		Run:   runRunStatus,
	}

	runWatchCmd = &cobra.Command{
		Use:   "watch [run-id]",
		Short: "Stream the log of a run, including its backlog",
		Args:  cobra.ExactArgs(1),
		Run:   runRunWatch,
	}

	runCancelCmd = &cobra.Command{
		Use:   "cancel [run-id]",
		Short: "Request cancellation of a run",
		Args:  cobra.ExactArgs(1),
		Run:   runRunCancel,
	}
)

func init() {
	runStartCmd.Flags().StringVar(&runStateJSON, "state", "",
		"Initial state as inline JSON, or @path/to/file.json")
	runStartCmd.Flags().BoolVar(&runNoWatch, "no-watch", false,
		"Print the run id and return without streaming")

	runCmd.AddCommand(runStartCmd)
	runCmd.AddCommand(runStatusCmd)
	runCmd.AddCommand(runWatchCmd)
	runCmd.AddCommand(runCancelCmd)
}

func runRunStart(cmd *cobra.Command, args []string) {
	state, err := parseInitialState(runStateJSON)
	if err != nil {
		fail(err)
	}

	runID, err := client.StartRun(cmd.Context(), args[0], state)
	if err != nil {
		fail(err)
	}
	logger.Info("run started", "run_id", runID, "graph_id", args[0])

	if runNoWatch {
		ux.Success("Run started")
		ux.KeyValue("run_id", runID)
		return
	}

	ux.Muted("run " + runID)
	watchRun(cmd, runID)
}

func runRunStatus(cmd *cobra.Command, args []string) {
	view, err := client.GetRun(cmd.Context(), args[0])
	if err != nil {
		fail(err)
	}
	printRunView(view)
}

func runRunWatch(cmd *cobra.Command, args []string) {
	watchRun(cmd, args[0])
}

func runRunCancel(cmd *cobra.Command, args []string) {
	if err := client.CancelRun(cmd.Context(), args[0]); err != nil {
		fail(err)
	}
	logger.Info("run cancellation requested", "run_id", args[0])
	ux.Success("Cancellation requested")
}

// watchRun streams events until the run finishes, then prints the
// final view. Exits nonzero when the run did not complete.
func watchRun(cmd *cobra.Command, runID string) {
	var final *engine.RunView

	err := client.WatchRun(cmd.Context(), runID, func(ev engine.Event) {
		switch ev.Type {
		case engine.EventLog:
			if ev.Entry == nil {
				return
			}
			msg := ev.Entry.Message
			if ev.Entry.Error != "" {
				msg = ux.Styles.Error.Render(ev.Entry.Error)
			}
			ux.StepLine(ev.Entry.Step, ev.Entry.Node, msg)
		case engine.EventCompletion:
			final = ev.Run
		}
	})
	if err != nil {
		fail(err)
	}
	if final == nil {
		fail(fmt.Errorf("stream ended without a completion event"))
	}

	fmt.Println()
	printRunView(final)

	if final.Status != engine.StatusCompleted {
		os.Exit(1)
	}
}

// printRunView renders a run snapshot.
func printRunView(view *engine.RunView) {
	fmt.Println(ux.RunStatus(string(view.Status)))
	ux.KeyValue("run_id", view.RunID.String())
	ux.KeyValue("graph_id", view.GraphID.String())
	ux.KeyValue("steps", fmt.Sprintf("%d", view.StepCount))
	if view.CurrentNode != "" {
		ux.KeyValue("node", view.CurrentNode)
	}
	if view.Error != "" {
		ux.KeyValue("error", ux.Styles.Error.Render(view.Error))
	}
	if len(view.FinalState) > 0 {
		pretty, err := json.MarshalIndent(view.FinalState, "", "  ")
		if err == nil {
			ux.Muted(string(pretty))
		}
	}
}

// parseInitialState decodes the --state flag: empty, inline JSON, or
// @file reference.
func parseInitialState(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}

	data := []byte(raw)
	if strings.HasPrefix(raw, "@") {
		var err error
		data, err = os.ReadFile(raw[1:])
		if err != nil {
			return nil, fmt.Errorf("read state file: %w", err)
		}
	}

	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse initial state: %w", err)
	}
	return state, nil
}
