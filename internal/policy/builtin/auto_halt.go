package builtin

import (
	"regexp"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

var complexMissionKeywords = []string{"1.", "2.", "then", "finally", "after", "compare", "synthesize", "combine", "follow", "trail"}

var autoHaltTargetPattern = regexp.MustCompile(`artifact ['"]?([^'"\s]+)['"]?`)

// AutoHalt fires for simple "extract and stop" missions once the target
// artifact (or, absent a named target, any non-meta artifact) exists. It
// is deliberately low priority so ProgressLock and StagnationBreaker win
// any conflict on multi-step missions.
type AutoHalt struct{}

func (AutoHalt) Name() string  { return "AutoHalt" }
func (AutoHalt) Priority() int { return 5 }

func (AutoHalt) Condition(state *kernel.FrameworkState, _ []string) bool {
	// Mirrors the Python guard against firing during a restricted
	// composition phase (e.g. mid comparator snapshot), tracked here via
	// StrategyTag rather than scanning decision-history prose.
	strategy := strings.ToUpper(state.StrategyTag)
	if strings.Contains(strategy, "SNAPSHOT") || strings.Contains(strategy, "RESTRICTED") {
		return false
	}

	mission := strings.ToLower(state.Mission)

	isComplex := false
	for _, kw := range complexMissionKeywords {
		if strings.Contains(mission, kw) {
			isComplex = true
			break
		}
	}
	isSimple := strings.Contains(mission, "extract") && !isComplex
	if !isSimple {
		return false
	}

	if m := autoHaltTargetPattern.FindAllStringSubmatch(mission, -1); len(m) > 0 {
		target := strings.ToLower(m[len(m)-1][1])
		for _, a := range state.Artifacts {
			if a != nil && strings.ToLower(a.Identifier) == target {
				return true
			}
		}
		return false
	}

	return len(state.NonMetaArtifacts()) > 0
}

func (AutoHalt) React(state *kernel.FrameworkState) *kernel.Proposal {
	nonMeta := state.NonMetaArtifacts()
	if len(nonMeta) == 0 {
		return nil
	}
	art := nonMeta[0]
	return &kernel.Proposal{
		ThoughtProcess: "AutoHalt: mission required extraction, and '" + art.Identifier + "' is saved. Mission complete.",
		ToolCall:       "halt_and_ask",
		Target:         art.Identifier + " saved.",
	}
}
