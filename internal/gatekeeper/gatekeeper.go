// Package gatekeeper implements the kernel's layered proposal validator
// (spec §4.7), grounded on amnesic/decision/auditor.py's Auditor.evaluate_move.
// Each Layer inspects a Request and may return a Verdict (a REJECT, or a
// PASS that settles the proposal early, e.g. an idempotent stage); the
// first layer to do so wins and short-circuits the remaining layers.
package gatekeeper

import (
	"context"

	"github.com/B-A-M-N/amnesic/internal/embedding"
	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/klog"
)

// Request bundles everything a Layer needs to evaluate one proposal; it is
// assembled fresh by the Session on every turn from FrameworkState/AgentState
// plus the Pager's current render.
type Request struct {
	Proposal       *kernel.Proposal
	State          *kernel.FrameworkState
	ValidFiles     []string // disk-truth file list, from the workspace scan
	ActivePages    []string // L1 page ids currently resident, from the Pager
	ActiveContext  string   // rendered L1 content, for grounding checks
	ForbiddenTools []string
	CurrentTurn    int
	Profile        kernel.AuditProfile
}

// Layer evaluates one concern of a Request. Returning nil means this
// layer has no objection; the Gatekeeper proceeds to the next layer.
type Layer interface {
	Name() string
	Evaluate(ctx context.Context, req *Request) *kernel.Verdict
}

// Gatekeeper runs an ordered slice of Layers, first-verdict-wins.
type Gatekeeper struct {
	layers []Layer
}

// New constructs a Gatekeeper with the standard five layers, wiring the
// relevance layer to the given embedding engine (may be nil, in which case
// Layer4Relevance always passes — grounded on the Auditor's own behavior
// of only gating when an embedder is configured).
func New(engine embedding.EmbeddingEngine) *Gatekeeper {
	return &Gatekeeper{
		layers: []Layer{
			Layer0Physical{},
			Layer1Hygiene{},
			Layer2State{},
			Layer3Fidelity{},
			NewLayer4Relevance(engine),
		},
	}
}

// NewWithLayers constructs a Gatekeeper with an explicit, caller-supplied
// layer ordering — used by tests that want to isolate a subset of layers.
func NewWithLayers(layers ...Layer) *Gatekeeper {
	return &Gatekeeper{layers: layers}
}

// Evaluate runs every layer in order and returns the first non-nil
// verdict (REJECT or an early PASS), or a PASS verdict if every layer
// clears the proposal.
func (g *Gatekeeper) Evaluate(ctx context.Context, req *Request) *kernel.Verdict {
	for _, layer := range g.layers {
		if v := layer.Evaluate(ctx, req); v != nil {
			klog.Debug(klog.CategoryGatekeeper, "layer %s returned %s: %s", layer.Name(), v.Kind, v.Rationale)
			return v
		}
	}
	return &kernel.Verdict{
		Kind:       kernel.VerdictPass,
		Confidence: 1.0,
		Rationale:  "Move validated. State and safety invariants preserved.",
	}
}
