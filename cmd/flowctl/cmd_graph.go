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
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianFlow/pkg/ux"
	"github.com/AleutianAI/AleutianFlow/services/workflow/datatypes"
)

var (
	graphCmd = &cobra.Command{
		Use:   "graph",
		Short: "Manage workflow graph definitions",
	}

	graphRegisterCmd = &cobra.Command{
		Use:   "register [file]",
		Short: "Register a graph definition from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		Run:   runGraphRegister,
	}

	graphGetCmd = &cobra.Command{
		Use:   "get [graph-id]",
		Short: "Show a registered graph definition",
		Args:  cobra.ExactArgs(1),
		Run:   runGraphGet,
	}
)

func init() {
	graphCmd.AddCommand(graphRegisterCmd)
	graphCmd.AddCommand(graphGetCmd)
}

func runGraphRegister(cmd *cobra.Command, args []string) {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		fail(fmt.Errorf("read %s: %w", path, err))
	}

	var req datatypes.GraphCreateRequest
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, &req)
	} else {
		err = yaml.Unmarshal(data, &req)
	}
	if err != nil {
		fail(fmt.Errorf("parse %s: %w", path, err))
	}

	id, err := client.RegisterGraph(cmd.Context(), req)
	if err != nil {
		fail(err)
	}

	logger.Info("graph registered", "graph_id", id, "file", path)
	ux.Success("Graph registered")
	ux.KeyValue("graph_id", id)
	ux.KeyValue("start_node", req.StartNode)
	ux.KeyValue("nodes", fmt.Sprintf("%d", len(req.Nodes)))
}

func runGraphGet(cmd *cobra.Command, args []string) {
	view, err := client.GetGraph(cmd.Context(), args[0])
	if err != nil {
		fail(err)
	}

	ux.Title("Graph " + view.GraphID)
	ux.KeyValue("start_node", view.StartNode)
	ux.KeyValue("max_iterations", fmt.Sprintf("%d", view.MaxIterations))
	for _, n := range view.Nodes {
		label := n.Name
		if n.Type != "" && n.Type != n.Name {
			label += " (" + n.Type + ")"
		}
		ux.Info(label)
	}
	for _, e := range view.Edges {
		target, _ := json.Marshal(e.ToNode)
		ux.Muted(fmt.Sprintf("  %s %s %s", e.FromNode, ux.IconArrow, target))
	}
}
