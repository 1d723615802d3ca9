package gatekeeper

import (
	"context"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

// Layer0Physical is the sandbox/tool-enforcement layer: a proposal naming a
// tool in the current ForbiddenTools list is rejected outright, before any
// other layer inspects it.
type Layer0Physical struct{}

func (Layer0Physical) Name() string { return "Layer0Physical" }

func (Layer0Physical) Evaluate(_ context.Context, req *Request) *kernel.Verdict {
	for _, forbidden := range req.ForbiddenTools {
		if req.Proposal.ToolCall == forbidden {
			return &kernel.Verdict{
				Kind:       kernel.VerdictReject,
				Confidence: 1.0,
				Rationale:  "FATAL: the tool '" + forbidden + "' is disabled in this mode. Reason using only saved artifacts.",
				Correction: "Use existing knowledge from the backpack to answer the query.",
			}
		}
	}
	return nil
}
