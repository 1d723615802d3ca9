// Package policy implements the kernel's deterministic Policy Engine (spec
// §4.6): an ordered set of condition/reaction rules that pre-empt the
// model-driven Proposer whenever a rule's Condition matches, grounded on
// amnesic/core/policies.py's KernelPolicy dataclass and its default rule set.
package policy

import (
	"sort"

	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/klog"
)

// Policy is a deterministic rule evaluated against a FrameworkState. When
// Condition reports true, React supplies the Proposal the session should
// act on instead of asking the model.
type Policy interface {
	Name() string
	Priority() int
	Condition(state *kernel.FrameworkState, activePages []string) bool
	React(state *kernel.FrameworkState) *kernel.Proposal
}

// Engine holds a fixed, priority-sorted policy set. Policies are sorted
// once at construction (descending priority, ties broken by registration
// order) so Propose's iteration order is stable across turns.
type Engine struct {
	policies []Policy
}

// NewEngine builds an Engine from the given policies, sorted by descending
// priority.
func NewEngine(policies ...Policy) *Engine {
	sorted := make([]Policy, len(policies))
	copy(sorted, policies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Engine{policies: sorted}
}

// Propose evaluates every policy in priority order and returns the first
// match's reaction. The anti-loop guard skips the policy that produced the
// most recent decision record when that record's verdict was REJECT,
// preventing a policy from re-proposing the exact move the Gatekeeper just
// rejected.
func (e *Engine) Propose(state *kernel.FrameworkState, activePages []string) (*kernel.Proposal, bool) {
	skip := lastRejectedPolicy(state)

	for _, p := range e.policies {
		if p.Name() == skip {
			klog.Debug(klog.CategoryPolicy, "skipping policy %s (anti-loop guard)", p.Name())
			continue
		}
		if len(state.ActivePolicies) > 0 && !isActivePolicy(state.ActivePolicies, p.Name()) {
			continue
		}
		if !p.Condition(state, activePages) {
			continue
		}
		proposal := p.React(state)
		if proposal == nil {
			continue
		}
		proposal.PolicyName = p.Name()
		klog.Info(klog.CategoryPolicy, "policy %s pre-empted proposer: %s(%s)", p.Name(), proposal.ToolCall, proposal.Target)
		return proposal, true
	}
	return nil, false
}

// isActivePolicy reports whether name appears in active. An empty active
// list means "no explicit toggle state yet" and lets every policy run —
// only once enable_policy/disable_policy have populated the list (as
// session.New does at construction) does it start gating Propose.
func isActivePolicy(active []string, name string) bool {
	for _, n := range active {
		if n == name {
			return true
		}
	}
	return false
}

// lastRejectedPolicy returns the PolicyName of the most recent REJECT
// decision, or "" if the last decision was not a policy-driven REJECT.
func lastRejectedPolicy(state *kernel.FrameworkState) string {
	h := state.DecisionHistory
	if len(h) == 0 {
		return ""
	}
	last := h[len(h)-1]
	if last.Verdict != kernel.VerdictReject {
		return ""
	}
	return last.PolicyName
}
