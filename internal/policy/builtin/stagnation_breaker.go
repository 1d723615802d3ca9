// Package builtin ships the kernel's six default Policy Engine rules, each
// grounded 1:1 on the matching check/react pair in amnesic/core/policies.py.
package builtin

import (
	"github.com/B-A-M-N/amnesic/internal/kernel"
)

// StagnationBreaker fires when the last four turns were all REJECTs of the
// same tool call — a sign the Proposer is stuck retrying a move the
// Gatekeeper will never pass. It forces a full context unstage to clear
// whatever is blocking progress.
type StagnationBreaker struct{}

func (StagnationBreaker) Name() string  { return "StagnationBreaker" }
func (StagnationBreaker) Priority() int { return 40 }

func (StagnationBreaker) Condition(state *kernel.FrameworkState, _ []string) bool {
	history := state.DecisionHistory
	if len(history) < 4 {
		return false
	}
	window := history[len(history)-4:]
	sameTool := window[0].ToolCall
	for _, h := range window {
		if h.Verdict != kernel.VerdictReject {
			return false
		}
		if h.ToolCall != sameTool {
			return false
		}
	}
	return true
}

func (StagnationBreaker) React(_ *kernel.FrameworkState) *kernel.Proposal {
	return &kernel.Proposal{
		ThoughtProcess: "Multiple consecutive rejections detected on the same move. Forcing an unstage to break the loop.",
		ToolCall:       "unstage_context",
		Target:         "ALL",
	}
}
