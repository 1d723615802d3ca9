package gatekeeper

import (
	"context"
	"regexp"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

var numberPattern = regexp.MustCompile(`\b\d+\b`)
var nonAlnumPattern = regexp.MustCompile(`[^a-zA-Z0-9]`)
var nonAlnumSpacePattern = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
var tokenSplitPattern = regexp.MustCompile(`[^a-zA-Z0-9]+`)
var pureNumberPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

var mathRationaleKeywords = []string{"calculate", "sum", "total", "math", "add", "result", "divide", "multiply"}

// Layer3Fidelity checks save_artifact grounding: the claimed value must
// actually be traceable to the active L1 context, a prior artifact, or a
// math-derived result, or it is treated as a hallucination.
type Layer3Fidelity struct{}

func (Layer3Fidelity) Name() string { return "Layer3Fidelity" }

func (Layer3Fidelity) Evaluate(_ context.Context, req *Request) *kernel.Verdict {
	p := req.Proposal
	if p.ToolCall != "save_artifact" {
		return nil
	}

	identifier, summary := splitArtifactTarget(p.Target)
	_ = identifier
	if summary == "" {
		return nil
	}

	upper := strings.ToUpper(summary)
	if req.State.SanitizationMode && (strings.Contains(upper, "REDACTED") || strings.Contains(summary, "...")) {
		return nil
	}

	if checkGrounding(summary, req.ActiveContext) {
		return nil
	}
	if numberPattern.MatchString(summary) && checkNumericalAccuracy(summary, req.ActiveContext) {
		return nil
	}

	isMathRationale := false
	lowerRationale := strings.ToLower(p.ThoughtProcess)
	for _, kw := range mathRationaleKeywords {
		if strings.Contains(lowerRationale, kw) {
			isMathRationale = true
			break
		}
	}
	if isMathRationale && pureNumberPattern.MatchString(strings.TrimSpace(summary)) {
		return nil
	}

	for _, a := range req.State.Artifacts {
		if a != nil && strings.Contains(a.Summary, strings.TrimSpace(summary)) {
			return nil
		}
	}

	return &kernel.Verdict{
		Kind:       kernel.VerdictReject,
		Confidence: 1.0,
		Rationale:  "HALLUCINATION: the value for '" + identifier + "' was not found in the context or artifacts.",
		Correction: "Ensure the file containing the data is staged and visible in the current L1 context.",
	}
}

func checkGrounding(value, context string) bool {
	if value == "" || context == "" {
		return false
	}
	if strings.Contains(context, strings.TrimSpace(value)) {
		return true
	}

	cleanVal := strings.ToLower(nonAlnumPattern.ReplaceAllString(value, ""))
	cleanCtx := strings.ToLower(nonAlnumPattern.ReplaceAllString(context, ""))
	if cleanVal != "" && strings.Contains(cleanCtx, cleanVal) {
		return true
	}

	tokens := make([]string, 0)
	for _, t := range tokenSplitPattern.Split(value, -1) {
		if len(t) > 3 {
			tokens = append(tokens, strings.ToLower(t))
		}
	}
	if len(tokens) == 0 {
		return false
	}
	for _, t := range tokens {
		if !strings.Contains(cleanCtx, t) {
			return false
		}
	}
	return true
}

func checkNumericalAccuracy(claim, context string) bool {
	numbers := numberPattern.FindAllString(claim, -1)
	if len(numbers) == 0 {
		return true
	}
	cleanCtx := nonAlnumSpacePattern.ReplaceAllString(context, " ")
	for _, num := range numbers {
		if !strings.Contains(cleanCtx, num) {
			return false
		}
	}
	return true
}
