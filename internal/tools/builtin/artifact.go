package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/session"
)

// stageArtifact implements "stage_artifact": promote a previously saved
// artifact's summary into L1 at priority 10 (artifacts outrank staged
// files, since they're already-distilled facts).
func stageArtifact(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	return func(_ context.Context, args map[string]any) (string, error) {
		target, _ := args["target"].(string)
		target = strings.TrimSpace(target)
		state := tc.State()

		found := state.FindArtifact(target)
		if found == nil {
			state.LastActionFeedback = fmt.Sprintf("ERROR: Artifact %s not found.", target)
			return state.LastActionFeedback, nil
		}
		content := found.Summary
		tc.Pager().RequestAccess("FILE:ARTIFACT:"+target, &content, 10)
		state.LastActionFeedback = fmt.Sprintf("Artifact %s staged.", target)
		return state.LastActionFeedback, nil
	}
}

// stageMultipleArtifacts implements "stage_multiple_artifacts": chain a
// comma/space-separated key list into L1 in one call.
func stageMultipleArtifacts(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	return func(_ context.Context, args map[string]any) (string, error) {
		target, _ := args["target"].(string)
		state := tc.State()

		keys := splitStagingTargets(strings.Trim(target, "[]"))
		foundAny := false
		for _, key := range keys {
			found := state.FindArtifact(key)
			if found == nil {
				continue
			}
			content := found.Summary
			tc.Pager().RequestAccess("FILE:ARTIFACT:"+key, &content, 10)
			foundAny = true
		}

		if foundAny {
			state.LastActionFeedback = fmt.Sprintf("Artifacts [%s] staged into L1.", strings.Join(keys, ", "))
		} else {
			state.LastActionFeedback = fmt.Sprintf("ERROR: None of the artifacts [%s] were found.", strings.Join(keys, ", "))
		}
		return state.LastActionFeedback, nil
	}
}

// deleteArtifact implements "delete_artifact": drop an artifact from the
// Backpack and, if a Sidecar is configured, from persistent knowledge too.
func deleteArtifact(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	return func(_ context.Context, args map[string]any) (string, error) {
		target, _ := args["target"].(string)
		target = strings.TrimSpace(target)
		state := tc.State()

		kept := state.Artifacts[:0]
		for _, a := range state.Artifacts {
			if a.Identifier != target {
				kept = append(kept, a)
			}
		}
		state.Artifacts = kept

		if sc := tc.Sidecar(); sc != nil {
			sc.Delete(target)
		}
		state.LastActionFeedback = fmt.Sprintf("Artifact %s DELETED.", target)
		return state.LastActionFeedback, nil
	}
}

// querySidecar implements "query_sidecar": semantic recall against the
// persistent knowledge store, surfacing the top hits as feedback text
// (the model reads last_action_feedback, it doesn't get raw Go values).
func querySidecar(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		target, _ := args["target"].(string)
		state := tc.State()

		sc := tc.Sidecar()
		if sc == nil {
			state.LastActionFeedback = "Error: Sidecar not initialized."
			return state.LastActionFeedback, nil
		}

		hits, err := sc.QuerySemantic(ctx, target, 5)
		if err != nil || len(hits) == 0 {
			state.LastActionFeedback = fmt.Sprintf("No results found in Sidecar for '%s'.", target)
			return state.LastActionFeedback, nil
		}

		var sb strings.Builder
		for _, h := range hits {
			preview := h.Content
			if len(preview) > 100 {
				preview = preview[:100]
			}
			fmt.Fprintf(&sb, "- %s (score: %.2f): %s...\n", h.Key, h.Score, preview)
		}
		state.LastActionFeedback = fmt.Sprintf("Sidecar Results for '%s':\n%s", target, strings.TrimRight(sb.String(), "\n"))
		return state.LastActionFeedback, nil
	}
}

// saveArtifact implements "save_artifact" ("TARGET: value" / "TARGET=value"
// key/value shorthand, or a distill-from-L1 fallback via the Worker when no
// value is given), grounded on session.py's _tool_worker_task. Batches a
// comma-separated list of "key: value" pairs by recursing per item, and
// applies PINNED_L1: semantic pinning and JIT de-duplication afterward.
func saveArtifact(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	var execute func(ctx context.Context, raw string) (string, error)
	execute = func(ctx context.Context, raw string) (string, error) {
		state := tc.State()

		if strings.Contains(raw, ",") && !strings.HasPrefix(raw, "http") && looksLikeBatch(raw) {
			var last string
			for _, part := range strings.Split(raw, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				var err error
				last, err = execute(ctx, part)
				if err != nil {
					return "", err
				}
			}
			return last, nil
		}

		isPinned := false
		target := raw
		if strings.HasPrefix(target, "PINNED_L1:") {
			target = strings.TrimSpace(strings.TrimPrefix(target, "PINNED_L1:"))
			isPinned = true
		}

		identifier, value := splitKeyValue(target)
		identifier = slugifyIdentifier(strings.TrimSpace(identifier))

		var summary string
		if value != "" {
			summary = strings.TrimSpace(value)
		} else {
			extracted, err := runWorker(ctx, tc.Driver(), "Extract "+target, tc.Pager().Render(), []string{"Raw value only."})
			if err != nil {
				state.LastActionFeedback = fmt.Sprintf("ERROR: %v", err)
				return state.LastActionFeedback, nil
			}
			summary = extracted
		}

		kept := state.Artifacts[:0:0]
		for _, a := range state.Artifacts {
			if a.Identifier != identifier {
				kept = append(kept, a)
			}
		}
		newArtifact := &kernel.Artifact{
			Identifier: identifier,
			Type:       kernel.ArtifactTextContent,
			Summary:    summary,
			Status:     kernel.StatusVerifiedInvariant,
			Pinned:     isPinned,
		}
		state.Artifacts = append(kept, newArtifact)

		if isPinned {
			tc.Pager().Pin("ARTIFACT:"+identifier, summary)
		}
		if sc := tc.Sidecar(); sc != nil {
			_ = sc.Ingest(ctx, identifier, summary, string(newArtifact.Type), nil)
		}

		jitDeduplicate(tc)

		state.LastActionFeedback = fmt.Sprintf("Artifact %s saved.", identifier)
		return state.LastActionFeedback, nil
	}

	return func(ctx context.Context, args map[string]any) (string, error) {
		target, _ := args["target"].(string)
		return execute(ctx, target)
	}
}

// looksLikeBatch reports whether every comma-separated part of raw looks
// like a "key: value" or "key=value" pair, distinguishing a genuine batch
// from a single long value that happens to contain a comma.
func looksLikeBatch(raw string) bool {
	parts := strings.Split(raw, ",")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if !strings.ContainsAny(p, ":=") {
			return false
		}
	}
	return true
}

// splitKeyValue splits "KEY: value" or "KEY=value" into identifier/value;
// with neither separator, the whole string is the identifier and value is
// empty (triggering the Worker-distillation fallback).
func splitKeyValue(target string) (identifier, value string) {
	if strings.Contains(target, ":") && !strings.HasPrefix(target, "http") {
		parts := strings.SplitN(target, ":", 2)
		return parts[0], parts[1]
	}
	if strings.Contains(target, "=") {
		parts := strings.SplitN(target, "=", 2)
		return parts[0], parts[1]
	}
	return target, ""
}

// jitDeduplicate collapses artifacts whose trimmed summary is identical,
// keeping the first writer and deleting the rest from the Sidecar too,
// grounded on session.py's _jit_deduplicate.
func jitDeduplicate(tc *session.ToolContext) {
	state := tc.State()
	if len(state.Artifacts) == 0 {
		return
	}

	seen := make(map[string]string, len(state.Artifacts))
	toDelete := make(map[string]bool)
	for _, a := range state.Artifacts {
		val := strings.TrimSpace(a.Summary)
		if _, dup := seen[val]; dup {
			toDelete[a.Identifier] = true
			continue
		}
		seen[val] = a.Identifier
	}
	if len(toDelete) == 0 {
		return
	}

	kept := state.Artifacts[:0:0]
	for _, a := range state.Artifacts {
		if toDelete[a.Identifier] {
			if sc := tc.Sidecar(); sc != nil {
				sc.Delete(a.Identifier)
			}
			continue
		}
		kept = append(kept, a)
	}
	state.Artifacts = kept
}
