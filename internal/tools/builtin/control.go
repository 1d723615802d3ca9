package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/session"
)

// switchStrategy implements "switch_strategy": retag the session's
// strategy hint, read by the Proposer's prompt builder.
func switchStrategy(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	return func(_ context.Context, args map[string]any) (string, error) {
		target, _ := args["target"].(string)
		state := tc.State()
		state.StrategyTag = target
		state.LastActionFeedback = fmt.Sprintf("Strategy: %s", target)
		return state.LastActionFeedback, nil
	}
}

// setAuditPolicy implements "set_audit_policy": switch the Gatekeeper's
// active AuditProfile by name. The Session looks this name up fresh every
// turn (Session.currentProfile), so mutating AuditProfileName here is the
// whole of the job — there is no separate Auditor instance to repoint.
func setAuditPolicy(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	return func(_ context.Context, args map[string]any) (string, error) {
		target, _ := args["target"].(string)
		name := strings.ToUpper(strings.TrimSpace(target))
		state := tc.State()

		if _, ok := tc.Profiles()[name]; ok {
			state.AuditProfileName = name
			state.LastActionFeedback = fmt.Sprintf("Audit Policy Updated: Now running in %s mode.", name)
			return state.LastActionFeedback, nil
		}

		valid := make([]string, 0, len(tc.Profiles()))
		for k := range tc.Profiles() {
			valid = append(valid, k)
		}
		sort.Strings(valid)
		state.LastActionFeedback = fmt.Sprintf("Error: Invalid Audit Policy '%s'. Valid options: %s", name, strings.Join(valid, ", "))
		return state.LastActionFeedback, nil
	}
}

// enablePolicy implements "enable_policy": re-admit a named Policy Engine
// rule into state.ActivePolicies.
func enablePolicy(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	return func(_ context.Context, args map[string]any) (string, error) {
		target := strings.TrimSpace(argString(args))
		state := tc.State()

		if containsString(state.ActivePolicies, target) {
			state.LastActionFeedback = fmt.Sprintf("Policy '%s' is already active.", target)
			return state.LastActionFeedback, nil
		}
		state.ActivePolicies = append(state.ActivePolicies, target)
		state.LastActionFeedback = fmt.Sprintf("Policy '%s' ENABLED.", target)
		return state.LastActionFeedback, nil
	}
}

// disablePolicy implements "disable_policy": remove a named Policy Engine
// rule from state.ActivePolicies so Engine.Propose skips it.
func disablePolicy(tc *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	return func(_ context.Context, args map[string]any) (string, error) {
		target := strings.TrimSpace(argString(args))
		state := tc.State()

		if !containsString(state.ActivePolicies, target) {
			state.LastActionFeedback = fmt.Sprintf("Policy '%s' is not active.", target)
			return state.LastActionFeedback, nil
		}
		kept := state.ActivePolicies[:0:0]
		for _, n := range state.ActivePolicies {
			if n != target {
				kept = append(kept, n)
			}
		}
		state.ActivePolicies = kept
		state.LastActionFeedback = fmt.Sprintf("Policy '%s' DISABLED.", target)
		return state.LastActionFeedback, nil
	}
}

// haltAndAsk implements "halt_and_ask": a deliberate no-op. The Session's
// Step treats a PASSed halt_and_ask proposal as session termination before
// ever reaching tool dispatch, so this body never actually runs in
// practice — it exists so the tool is a valid, schema-complete Registry
// entry (e.g. for a healer-pipeline direct-call match, or a caller driving
// the Registry directly without going through Session.Step).
func haltAndAsk(_ *session.ToolContext) func(context.Context, map[string]any) (string, error) {
	return func(_ context.Context, _ map[string]any) (string, error) {
		return "", nil
	}
}

func argString(args map[string]any) string {
	v, _ := args["target"].(string)
	return v
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
