// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package nodes

import "github.com/AleutianAI/AleutianFlow/services/workflow/engine"

// ReviewGraph returns the built-in code review workflow definition.
//
// # Description
//
// The graph runs extract, score, lint and suggest in sequence, then the
// compute_quality gate either loops back to check_complexity ("retry")
// or hands off to finalize_report ("pass"). finalize_report has no
// outgoing edge, so the run completes there.
//
// The returned definition is not yet validated or registered; callers
// pass it to GraphStore.Register.
func ReviewGraph(threshold float64) *engine.GraphDefinition {
	if threshold <= 0 {
		threshold = DefaultQualityThreshold
	}

	return &engine.GraphDefinition{
		Nodes: []engine.NodeSpec{
			{Name: "extract_functions"},
			{Name: "check_complexity"},
			{Name: "detect_issues"},
			{Name: "suggest_improvements"},
			{Name: "compute_quality", Config: map[string]any{"threshold": threshold}},
			{Name: "finalize_report"},
		},
		Edges: map[string]engine.EdgeTarget{
			"extract_functions":    {Node: "check_complexity"},
			"check_complexity":     {Node: "detect_issues"},
			"detect_issues":        {Node: "suggest_improvements"},
			"suggest_improvements": {Node: "compute_quality"},
			"compute_quality": {Branches: map[string]string{
				"retry": "check_complexity",
				"pass":  "finalize_report",
			}},
		},
		StartNode:     "extract_functions",
		MaxIterations: 50,
	}
}
