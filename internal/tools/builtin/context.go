package builtin

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/session"
)

// splitStagingTargets accepts space- or comma-separated paths, stripping
// surrounding quote/backtick noise a model sometimes wraps a bare path in.
func splitStagingTargets(target string) []string {
	fields := strings.Fields(strings.ReplaceAll(target, ",", " "))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'\"`")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// stageContext implements "stage_context": load one or more files into L1,
// honoring the "path?query=symbol" contextual-grep syntax (spec §6) to
// stage only the named function/class/method instead of the whole file.
func stageContext(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		target, _ := args["target"].(string)
		state := tc.State()

		for _, filePath := range splitStagingTargets(target) {
			query := ""
			if idx := strings.Index(filePath, "?query="); idx >= 0 {
				query = filePath[idx+len("?query="):]
				filePath = filePath[:idx]
			}

			l1Key := filepath.Base(filePath)
			safePath, err := tc.SafePath(filePath)
			if err != nil {
				state.LastActionFeedback = fmt.Sprintf("ERROR: %v", err)
				continue
			}

			content, ok := tc.ShadowRead(safePath)
			if !ok {
				state.LastActionFeedback = fmt.Sprintf("CRITICAL ERROR: File '%s' NOT FOUND on disk. It is missing from the environment.", filePath)
				continue
			}

			if query != "" {
				scanner := tc.Scanner()
				if scanner == nil {
					state.LastActionFeedback = fmt.Sprintf("Grepping Error: no workspace scanner configured, cannot resolve '%s'.", query)
					continue
				}
				found, err := scanner.SymbolLookup(ctx, filePath, query)
				if err != nil {
					state.LastActionFeedback = fmt.Sprintf("Grepping Error: symbol '%s' not found in %s.", query, filePath)
					continue
				}
				content = found
				l1Key = fmt.Sprintf("%s[%s]", l1Key, query)
			}

			pageID := "FILE:" + l1Key
			if tc.Pager().InL1(pageID) {
				state.LastActionFeedback = fmt.Sprintf("SUCCESS: %s is already staged.", l1Key)
				continue
			}

			// Capture the eviction candidate before attempting admission:
			// a failed RequestAccess can still evict this page as a side
			// effect of making room it ultimately doesn't need, so the
			// blocker must be named from state as it stood going in.
			blocker := tc.Pager().Blocker()
			if !tc.Pager().RequestAccess(pageID, &content, 8) {
				if blocker == "" {
					blocker = pageID
				}
				state.LastActionFeedback = fmt.Sprintf("L1 RAM VIOLATION (%s is open)", blocker)
				continue
			}
			state.LastActionFeedback = fmt.Sprintf("SUCCESS: Staged %s", l1Key)
		}

		return state.LastActionFeedback, nil
	}
}

// unstageContext implements "unstage_context": evict a page from L1 by
// full key, basename, or artifact namespace, or "ALL" to wipe every page.
// Absence is success (idempotent unstage, spec §8's idempotent-stage
// invariant's mirror image), not an error.
func unstageContext(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	return func(_ context.Context, args map[string]any) (string, error) {
		target, _ := args["target"].(string)
		clean := strings.Trim(strings.TrimSpace(target), "'\"`")
		state := tc.State()
		pager := tc.Pager()

		if strings.EqualFold(clean, "ALL") {
			ids := pager.L1IDs()
			for _, id := range ids {
				pager.EvictToL2(id)
			}
			state.LastActionFeedback = fmt.Sprintf("SUCCESS: All %d pages unstaged from L1.", len(ids))
			return state.LastActionFeedback, nil
		}

		candidates := []struct {
			id   string
			name string
		}{
			{"FILE:" + clean, clean},
			{"FILE:" + filepath.Base(clean), filepath.Base(clean)},
			{"FILE:ARTIFACT:" + clean, "Artifact " + clean},
		}
		for _, c := range candidates {
			if pager.InL1(c.id) {
				pager.EvictToL2(c.id)
				state.LastActionFeedback = "Unstaged " + c.name
				return state.LastActionFeedback, nil
			}
		}

		state.LastActionFeedback = fmt.Sprintf("SUCCESS: %s is not in L1 RAM (already unstaged).", clean)
		return state.LastActionFeedback, nil
	}
}
