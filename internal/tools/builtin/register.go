// Package builtin wires the kernel's Tool ABI (spec §6) to a live Session,
// grounded on session.py's _setup_default_tools: one ExecuteFunc closure per
// tool name, all sharing the single target-string calling convention the
// Proposer's plan-level reasoning already speaks.
package builtin

import (
	"github.com/B-A-M-N/amnesic/internal/session"
	"github.com/B-A-M-N/amnesic/internal/tools"
)

// targetSchema is the Schema every builtin tool shares: one required
// free-form string argument, interpreted differently per tool.
func targetSchema(description string) tools.Schema {
	return tools.Schema{
		Required: []string{"target"},
		Properties: map[string]tools.Property{
			"target": {Type: "string", Description: description},
		},
	}
}

// Register installs every builtin tool into reg, bound to tc. Call once per
// Session, after session.New returns but before the first Step/Run.
func Register(reg *tools.Registry, tc *session.ToolContext) error {
	entries := []*tools.Tool{
		{
			Name:        "stage_context",
			Description: "Load one or more files (or 'path?query=symbol' to stage just a function/class/method) into L1 working memory.",
			Category:    tools.CategoryContext,
			Schema:      targetSchema("Space- or comma-separated file paths, optionally with '?query=symbol'."),
			Execute:     stageContext(tc),
		},
		{
			Name:        "unstage_context",
			Description: "Evict a page from L1 by file path, basename, artifact key, or 'ALL' to clear every page.",
			Category:    tools.CategoryContext,
			Schema:      targetSchema("A file path, artifact key, or 'ALL'."),
			Execute:     unstageContext(tc),
		},
		{
			Name:        "save_artifact",
			Description: "Record a durable fact as 'KEY: value' (or 'KEY=value'); with no value, distills one from the active L1 context. Prefix with 'PINNED_L1:' to keep it permanently resident.",
			Category:    tools.CategoryArtifact,
			Schema:      targetSchema("'KEY: value', 'KEY=value', or a bare key to distill from context."),
			Execute:     saveArtifact(tc),
		},
		{
			Name:        "delete_artifact",
			Description: "Remove an artifact from the Backpack and the Sidecar.",
			Category:    tools.CategoryArtifact,
			Schema:      targetSchema("The artifact identifier to delete."),
			Execute:     deleteArtifact(tc),
		},
		{
			Name:        "stage_artifact",
			Description: "Promote a saved artifact's value into L1 working memory.",
			Category:    tools.CategoryArtifact,
			Schema:      targetSchema("The artifact identifier to stage."),
			Execute:     stageArtifact(tc),
		},
		{
			Name:        "stage_multiple_artifacts",
			Description: "Stage several artifacts into L1 in one call.",
			Category:    tools.CategoryArtifact,
			Schema:      targetSchema("A comma/space-separated list of artifact identifiers."),
			Execute:     stageMultipleArtifacts(tc),
		},
		{
			Name:        "query_sidecar",
			Description: "Semantically search the persistent Sidecar knowledge store.",
			Category:    tools.CategoryKnowledge,
			Schema:      targetSchema("The search query."),
			Execute:     querySidecar(tc),
		},
		{
			Name:        "edit_file",
			Description: "Apply a single surgical edit to a file: 'path: instruction'.",
			Category:    tools.CategoryIO,
			Schema:      targetSchema("'path: instruction' describing the edit to make."),
			Execute:     editFile(tc),
		},
		{
			Name:        "write_file",
			Description: "Write content to a file: 'path: content' (or 'ARTIFACT:key' as the content to pull an artifact's value).",
			Category:    tools.CategoryIO,
			Schema:      targetSchema("'path: content' or 'path: ARTIFACT:key'."),
			Execute:     writeFile(tc),
		},
		{
			Name:        "calculate",
			Description: "Perform ADD/SUBTRACT/MULTIPLY/DIVIDE arithmetic or COMBINE/JOIN/CONCAT concatenation over numbers in the target or the Backpack. 'EXPR:<go expression>' evaluates an arbitrary arithmetic expression.",
			Category:    tools.CategoryCompute,
			Schema:      targetSchema("An arithmetic/concatenation instruction, or 'EXPR:<expression>'."),
			Execute:     calculate(tc),
		},
		{
			Name:        "verify_step",
			Description: "Verify a claim: dispatches to calculate for math-shaped targets, otherwise checks presence on disk, in the Backpack, or in L1 context.",
			Category:    tools.CategoryCompute,
			Schema:      targetSchema("The claim or math expression to verify."),
			Execute:     verifyStep(tc),
		},
		{
			Name:        "compare_files",
			Description: "Load two files into the Comparator, merge them via a Worker round-trip, and save the result as artifact 'RESOLVED_CODE'.",
			Category:    tools.CategoryCompute,
			Schema:      targetSchema("'file_a, file_b' to compare and merge."),
			Execute:     compareFiles(tc),
		},
		{
			Name:        "switch_strategy",
			Description: "Retag the session's strategy hint read by the Proposer's prompt builder.",
			Category:    tools.CategoryControl,
			Schema:      targetSchema("The new strategy tag."),
			Execute:     switchStrategy(tc),
		},
		{
			Name:        "set_audit_policy",
			Description: "Switch the Gatekeeper's active audit profile by name.",
			Category:    tools.CategoryControl,
			Schema:      targetSchema("The audit profile name."),
			Execute:     setAuditPolicy(tc),
		},
		{
			Name:        "enable_policy",
			Description: "Re-admit a named Policy Engine rule.",
			Category:    tools.CategoryControl,
			Schema:      targetSchema("The policy name to enable."),
			Execute:     enablePolicy(tc),
		},
		{
			Name:        "disable_policy",
			Description: "Remove a named Policy Engine rule from consideration.",
			Category:    tools.CategoryControl,
			Schema:      targetSchema("The policy name to disable."),
			Execute:     disablePolicy(tc),
		},
		{
			Name:        "halt_and_ask",
			Description: "Stop the session and surface a question to the operator.",
			Category:    tools.CategoryControl,
			Schema:      targetSchema("The question to surface."),
			Execute:     haltAndAsk(tc),
		},
	}

	for _, t := range entries {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
