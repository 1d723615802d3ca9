// Package proposer builds the per-turn prompt and turns a Driver's raw
// reply into a kernel.Proposal, grounded on amnesic/decision/prompt_builder.py
// and amnesic/drivers/ollama.py's reply-healing pipeline.
package proposer

import (
	"context"
	"fmt"

	"github.com/B-A-M-N/amnesic/internal/driver"
	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/klog"
)

// Request bundles the per-turn context the Proposer needs to build a
// prompt; assembled by the Session from FrameworkState and the Pager's
// current render.
type Request struct {
	State          *kernel.FrameworkState
	L1Files        []string
	ActiveContent  string
	ForbiddenTools []string
	MapSummary     string
	MaxRecentTurns int
}

// Proposer drives one model round-trip per turn: build prompt, call the
// Driver, heal the reply into a Proposal, retrying with a corrective
// message on failure, and falling back to a kernel-panic halt_and_ask
// proposal when every retry is exhausted.
type Proposer struct {
	driver  driver.Driver
	builder PromptBuilder
	retries int
}

// New constructs a Proposer around a Driver. retries <= 0 uses the
// reference default of 2 (one original attempt plus two retries).
func New(d driver.Driver, retries int) *Proposer {
	if retries <= 0 {
		retries = 2
	}
	return &Proposer{driver: d, builder: PromptBuilder{}, retries: retries}
}

// Propose renders the prompt, calls the Driver, and heals the reply into a
// Proposal. On total healing failure after all retries, it returns a
// ModelProtocolFailure-tagged halt_and_ask proposal instead of an error —
// the Gatekeeper and Policy Engine treat this like any other proposal, so
// a misbehaving model degrades the session instead of crashing it.
func (p *Proposer) Propose(ctx context.Context, req Request) (*kernel.Proposal, error) {
	systemPrompt := p.builder.BuildSystemPrompt(req.State)
	historyBlock := "[DECISION HISTORY]\n" + CompressHistory(req.State.DecisionHistory, req.MaxRecentTurns)
	userPrompt := p.builder.BuildUserPrompt(req.State, req.L1Files, req.ActiveContent, req.ForbiddenTools, req.MapSummary, historyBlock)

	attempt := 0
	for attempt <= p.retries {
		if attempt > 0 {
			userPrompt += "\n\nError: previous reply was not valid. Output ONLY a single JSON object matching the schema."
			klog.Debug(klog.CategoryProposer, "retry attempt %d after healer failure", attempt)
		}

		raw, err := p.driver.GenerateStructured(ctx, systemPrompt, userPrompt, nil, 0)
		if err != nil {
			return nil, kernel.Wrap(kernel.ModelProtocolFailure, "proposer.Propose", err)
		}

		if proposal, ok := Heal(string(raw)); ok {
			return proposal, nil
		}
		attempt++
	}

	klog.Debug(klog.CategoryProposer, "healer exhausted %d retries, emitting kernel-panic halt", p.retries)
	return &kernel.Proposal{
		ThoughtProcess: fmt.Sprintf("Kernel panic: model failed to produce a valid proposal after %d attempts.", p.retries+1),
		ToolCall:       "halt_and_ask",
		Target:         "ModelProtocolFailure: unparseable model output.",
	}, nil
}
