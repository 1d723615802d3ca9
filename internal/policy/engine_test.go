package policy

import (
	"testing"

	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/policy/builtin"
)

func newEngine() *Engine {
	return NewEngine(
		builtin.StagnationBreaker{},
		builtin.ProgressLock{},
		builtin.L1ViolationHandler{},
		builtin.CriticalErrorHalt{},
		builtin.CompletionPolicy{},
		builtin.AutoHalt{},
	)
}

func TestEngineSortsByPriorityDescending(t *testing.T) {
	e := newEngine()
	for i := 1; i < len(e.policies); i++ {
		if e.policies[i-1].Priority() < e.policies[i].Priority() {
			t.Fatalf("policies not sorted descending: %s (%d) before %s (%d)",
				e.policies[i-1].Name(), e.policies[i-1].Priority(),
				e.policies[i].Name(), e.policies[i].Priority())
		}
	}
}

func TestCriticalErrorHaltPreempts(t *testing.T) {
	e := newEngine()
	state := &kernel.FrameworkState{
		Mission:            "extract artifact 'X'",
		LastActionFeedback: "CRITICAL ERROR: disk full",
	}
	proposal, ok := e.Propose(state, nil)
	if !ok {
		t.Fatal("expected a policy to fire")
	}
	if proposal.PolicyName != "CriticalErrorHalt" || proposal.ToolCall != "halt_and_ask" {
		t.Fatalf("unexpected proposal: %+v", proposal)
	}
}

func TestAntiLoopGuardSkipsLastRejectedPolicy(t *testing.T) {
	e := newEngine()
	state := &kernel.FrameworkState{
		Mission:            "extract artifact 'X'",
		LastActionFeedback: "CRITICAL ERROR: disk full",
		DecisionHistory: []kernel.DecisionRecord{
			{ToolCall: "halt_and_ask", Verdict: kernel.VerdictReject, PolicyName: "CriticalErrorHalt"},
		},
	}
	_, ok := e.Propose(state, nil)
	if ok {
		t.Fatal("expected CriticalErrorHalt to be skipped by the anti-loop guard")
	}
}

func TestL1ViolationHandlerExtractsBlocker(t *testing.T) {
	e := newEngine()
	state := &kernel.FrameworkState{
		Mission:            "extract data",
		LastActionFeedback: "L1 RAM VIOLATION: memory full (FILE:step_0.txt is open)",
	}
	proposal, ok := e.Propose(state, nil)
	if !ok {
		t.Fatal("expected L1ViolationHandler to fire")
	}
	if proposal.ToolCall != "unstage_context" || proposal.Target != "step_0.txt" {
		t.Fatalf("unexpected proposal: %+v", proposal)
	}
}

func TestCompletionPolicyTerminalConditionDSL(t *testing.T) {
	e := newEngine()
	state := &kernel.FrameworkState{
		Mission:            "compute the sum",
		TerminalConditions: []kernel.TerminalCondition{{Kind: kernel.TerminalSum}},
		Artifacts: []*kernel.Artifact{
			{Identifier: "TOTAL", Summary: "42"},
		},
	}
	proposal, ok := e.Propose(state, nil)
	if !ok {
		t.Fatal("expected CompletionPolicy to fire via TerminalCondition DSL")
	}
	if proposal.ToolCall != "halt_and_ask" {
		t.Fatalf("unexpected proposal: %+v", proposal)
	}
}

func TestAutoHaltFiresOnSimpleExtraction(t *testing.T) {
	e := newEngine()
	state := &kernel.FrameworkState{
		Mission: "extract the function and save it as artifact 'FUNC_main'",
		Artifacts: []*kernel.Artifact{
			{Identifier: "FUNC_main", Summary: "func main() {}"},
		},
	}
	proposal, ok := e.Propose(state, nil)
	if !ok {
		t.Fatal("expected AutoHalt to fire")
	}
	if proposal.ToolCall != "halt_and_ask" {
		t.Fatalf("unexpected proposal: %+v", proposal)
	}
}

func TestNoPolicyFiresOnOrdinaryTurn(t *testing.T) {
	e := newEngine()
	state := &kernel.FrameworkState{Mission: "investigate the codebase"}
	_, ok := e.Propose(state, nil)
	if ok {
		t.Fatal("expected no policy to fire on an ordinary turn")
	}
}
