package gatekeeper

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

var haltCountPattern = regexp.MustCompile(`(?i)(\d+)\s*(-word|\s*parts|\s*artifacts|\s*files|\s*values|\s*items)`)

var hoardingKeywords = []string{"without unstaging", "keep both", "retain the previous", "holding both"}

// Layer2State enforces state-correctness and idempotency: sequential
// progress gating on numbered missions, stagnation (repeat-move)
// detection, duplicate-artifact rejection, halt-count validation, and
// stage/unstage disk-truth + idempotency checks.
type Layer2State struct{}

func (Layer2State) Name() string { return "Layer2State" }

func (Layer2State) Evaluate(_ context.Context, req *Request) *kernel.Verdict {
	p := req.Proposal
	state := req.State
	mission := state.Mission

	if v := checkSequentialProgress(p, state, mission); v != nil {
		return v
	}
	if v := checkStagnation(p, state); v != nil {
		return v
	}
	if v := checkDuplicateArtifact(p, state); v != nil {
		return v
	}
	if v := checkHaltValidation(p, state, mission); v != nil {
		return v
	}
	if v := checkStageContext(p, req); v != nil {
		return v
	}
	if v := checkUnstageContext(p, req); v != nil {
		return v
	}
	return nil
}

// checkSequentialProgress prevents finalizing a numbered ("1. ... 2. ...")
// mission before its named intermediate artifacts reach their threshold.
func checkSequentialProgress(p *kernel.Proposal, state *kernel.FrameworkState, mission string) *kernel.Verdict {
	if !(strings.Contains(mission, "1.") && strings.Contains(mission, "2.")) {
		return nil
	}
	if p.ToolCall != "halt_and_ask" && p.ToolCall != "save_artifact" {
		return nil
	}
	upperTarget := strings.ToUpper(p.Target)
	if !strings.Contains(upperTarget, "TOTAL") && !strings.Contains(upperTarget, "MISSION_COMPLETE") {
		return nil
	}

	if strings.Contains(mission, "PART_") {
		count := countArtifactsWithPrefix(state, "PART_")
		if count < 5 {
			return &kernel.Verdict{
				Kind:       kernel.VerdictReject,
				Confidence: 0.9,
				Rationale:  "PREMATURE COMPLETION: finalizing the mission without extracting intermediate parts. Follow the plan.",
			}
		}
	}
	if strings.Contains(mission, "VAL_log_") {
		count := countArtifactsWithPrefix(state, "VAL_log_")
		if count < 10 {
			return &kernel.Verdict{
				Kind:       kernel.VerdictReject,
				Confidence: 0.9,
				Rationale:  "PREMATURE COMPLETION: only a few logs processed. Process all logs before calculating the total.",
			}
		}
	}
	return nil
}

func countArtifactsWithPrefix(state *kernel.FrameworkState, prefix string) int {
	n := 0
	for _, a := range state.Artifacts {
		if a != nil && strings.Contains(a.Identifier, prefix) {
			n++
		}
	}
	return n
}

// checkStagnation rejects an exact repeat of the immediately preceding move.
func checkStagnation(p *kernel.Proposal, state *kernel.FrameworkState) *kernel.Verdict {
	h := state.DecisionHistory
	if len(h) == 0 {
		return nil
	}
	last := h[len(h)-1]
	if p.ToolCall == last.ToolCall && p.Target == last.Target {
		return &kernel.Verdict{
			Kind:       kernel.VerdictReject,
			Confidence: 1.0,
			Rationale:  "STAGNATION: repeating the same move. Change target or action.",
			Correction: "Move forward: check the plan and open the next step.",
		}
	}
	return nil
}

// checkDuplicateArtifact rejects re-saving an artifact under the same key
// with identical content; a differing summary is treated as a correction
// and allowed through.
func checkDuplicateArtifact(p *kernel.Proposal, state *kernel.FrameworkState) *kernel.Verdict {
	if p.ToolCall != "save_artifact" {
		return nil
	}
	identifier, summary := splitArtifactTarget(p.Target)
	existing := state.FindArtifact(identifier)
	if existing == nil {
		return nil
	}
	if strings.TrimSpace(existing.Summary) == summary {
		return &kernel.Verdict{
			Kind:       kernel.VerdictReject,
			Confidence: 1.0,
			Rationale:  fmt.Sprintf("STAGNATION: artifact '%s' is already in the backpack with the same value.", identifier),
			Correction: "Perform a different action now (stage a new file, calculate, or halt).",
		}
	}
	return nil
}

func splitArtifactTarget(target string) (identifier, summary string) {
	if idx := strings.Index(target, ":"); idx >= 0 {
		return strings.TrimSpace(target[:idx]), strings.TrimSpace(target[idx+1:])
	}
	return strings.TrimSpace(target), ""
}

// checkHaltValidation rejects a halt before a mission's stated artifact
// count has been reached.
func checkHaltValidation(p *kernel.Proposal, state *kernel.FrameworkState, mission string) *kernel.Verdict {
	if p.ToolCall != "halt_and_ask" {
		return nil
	}
	m := haltCountPattern.FindStringSubmatch(strings.ToLower(mission))
	if m == nil {
		return nil
	}
	required, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	nonMeta := len(state.NonMetaArtifacts())
	if nonMeta < required {
		return &kernel.Verdict{
			Kind:       kernel.VerdictReject,
			Confidence: 1.0,
			Rationale:  fmt.Sprintf("PREMATURE HALT: mission requires %d artifacts, only %d present.", required, nonMeta),
			Correction: fmt.Sprintf("Continue gathering the remaining %d parts.", required-nonMeta),
		}
	}
	return nil
}

// checkStageContext enforces idempotency (already-open files pass),
// strict-mode hoarding-intent rejection, and disk-truth existence.
func checkStageContext(p *kernel.Proposal, req *Request) *kernel.Verdict {
	if p.ToolCall != "stage_context" {
		return nil
	}
	target := p.Target
	targetBase := filepath.Base(target)

	if pageOpenForTarget(req.ActivePages, target, targetBase) {
		return &kernel.Verdict{
			Kind:       kernel.VerdictPass,
			Confidence: 1.0,
			Rationale:  fmt.Sprintf("IDEMPOTENCY: file '%s' is already in L1. Proceeding.", target),
			Correction: "Check the current L1 context content and save the data as an artifact if needed.",
		}
	}

	if !req.State.ElasticMode {
		rationale := strings.ToLower(p.ThoughtProcess)
		for _, kw := range hoardingKeywords {
			if strings.Contains(rationale, kw) {
				return &kernel.Verdict{
					Kind:       kernel.VerdictReject,
					Confidence: 1.0,
					Rationale:  "VIOLATION: one-file limit. Cannot explicitly hoard files in strict mode.",
					Correction: "Accept that the previous file will be evicted.",
				}
			}
		}
	}

	if !existsOnDisk(req.ValidFiles, target) {
		return &kernel.Verdict{
			Kind:       kernel.VerdictReject,
			Confidence: 1.0,
			Rationale:  fmt.Sprintf("FILE NOT FOUND: '%s' does not exist in the environment.", target),
			Correction: "Check the environment disk map for valid file paths.",
		}
	}
	return nil
}

func pageOpenForTarget(activePages []string, target, targetBase string) bool {
	for _, page := range activePages {
		if !strings.Contains(page, "FILE:") {
			continue
		}
		pagePath := strings.TrimPrefix(page, "FILE:")
		if pagePath == target || filepath.Base(pagePath) == targetBase {
			return true
		}
	}
	return false
}

func existsOnDisk(validFiles []string, target string) bool {
	for _, vf := range validFiles {
		if vf == target || strings.HasSuffix(vf, "/"+target) || strings.HasSuffix(target, "/"+vf) {
			return true
		}
	}
	return false
}

// checkUnstageContext treats unstaging an already-absent page as a no-op
// PASS, rather than a loop-inducing REJECT.
func checkUnstageContext(p *kernel.Proposal, req *Request) *kernel.Verdict {
	if p.ToolCall != "unstage_context" {
		return nil
	}
	target := p.Target
	targetBase := filepath.Base(target)
	if pageOpenForTarget(req.ActivePages, target, targetBase) {
		return nil
	}
	return &kernel.Verdict{
		Kind:       kernel.VerdictPass,
		Confidence: 1.0,
		Rationale:  fmt.Sprintf("IDEMPOTENCY: file '%s' was already unstaged. Proceeding.", target),
	}
}
