package gatekeeper

import (
	"context"
	"regexp"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

var identifierGrammar = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Layer1Hygiene enforces structural hygiene on save_artifact targets: the
// key portion of "KEY: value" / "KEY=value" (or a bare target) must match
// the identifier grammar and be at most 64 characters long.
type Layer1Hygiene struct{}

func (Layer1Hygiene) Name() string { return "Layer1Hygiene" }

func (Layer1Hygiene) Evaluate(_ context.Context, req *Request) *kernel.Verdict {
	if req.Proposal.ToolCall != "save_artifact" {
		return nil
	}

	target := strings.TrimSpace(req.Proposal.Target)
	hasSeparator := strings.ContainsAny(target, ":=")

	if hasSeparator {
		key := strings.TrimSpace(splitKey(target))
		if !identifierGrammar.MatchString(key) || len(key) > 64 {
			return &kernel.Verdict{
				Kind:       kernel.VerdictReject,
				Confidence: 1.0,
				Rationale:  "SEMANTIC POLLUTION: the key '" + key + "' contains spaces or invalid characters.",
				Correction: "Use a short symbolic name (e.g. MY_DATA) for the key before the separator.",
			}
		}
		return nil
	}

	if strings.Contains(target, " ") || len(target) > 64 {
		return &kernel.Verdict{
			Kind:       kernel.VerdictReject,
			Confidence: 1.0,
			Rationale:  "SEMANTIC POLLUTION: '" + req.Proposal.Target + "' is not a valid symbolic identifier.",
			Correction: "Retry save_artifact with a clean SNAKE_CASE identifier.",
		}
	}
	return nil
}

func splitKey(target string) string {
	idx := strings.IndexAny(target, ":=")
	if idx < 0 {
		return target
	}
	return target[:idx]
}
