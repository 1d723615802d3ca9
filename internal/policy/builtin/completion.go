package builtin

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

var completionCountPattern = regexp.MustCompile(`(\d+)\s*(-word|\s*parts|\s*artifacts|\s*files|\s*values|\s*items)`)

var mathMissionKeywords = []string{"sum", "total", "calculate", "math", "add", "result"}

// CompletionPolicy forces a halt once the mission's completion condition is
// satisfied. It prefers a session-supplied TerminalCondition DSL over the
// prose heuristics from the Python reference, falling back to those
// heuristics (sum/total keywords, numbered counts, completion-flag
// artifacts) when no TerminalConditions were configured — so plain-English
// missions keep working without a DSL declaration.
type CompletionPolicy struct{}

func (CompletionPolicy) Name() string  { return "CompletionPolicy" }
func (CompletionPolicy) Priority() int { return 10 }

func (CompletionPolicy) Condition(state *kernel.FrameworkState, _ []string) bool {
	if len(state.Artifacts) == 0 {
		return false
	}
	if len(state.TerminalConditions) > 0 {
		for _, tc := range state.TerminalConditions {
			if terminalConditionMet(state, tc) {
				return true
			}
		}
		return false
	}
	return proseCompletionMet(state)
}

func terminalConditionMet(state *kernel.FrameworkState, tc kernel.TerminalCondition) bool {
	switch tc.Kind {
	case kernel.TerminalSum:
		return state.FindArtifact("TOTAL") != nil
	case kernel.TerminalCount:
		return len(state.NonMetaArtifacts()) >= tc.Count
	case kernel.TerminalFlag:
		for _, a := range state.Artifacts {
			if a == nil {
				continue
			}
			up := strings.ToUpper(a.Identifier)
			if strings.Contains(up, "VERIFICATION") || strings.Contains(up, "COMPLETE") || strings.Contains(up, "VIOLATION") {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func proseCompletionMet(state *kernel.FrameworkState) bool {
	mission := strings.ToLower(state.Mission)

	hasTotal := state.FindArtifact("TOTAL") != nil
	isMathMission := false
	for _, kw := range mathMissionKeywords {
		if strings.Contains(mission, kw) {
			isMathMission = true
			break
		}
	}
	if hasTotal && isMathMission {
		return true
	}

	if m := completionCountPattern.FindStringSubmatch(mission); m != nil {
		required, err := strconv.Atoi(m[1])
		if err == nil {
			count := 0
			for _, a := range state.Artifacts {
				if a == nil {
					continue
				}
				if strings.HasPrefix(a.Identifier, "PART_") || strings.HasPrefix(a.Identifier, "VAL_") || strings.HasPrefix(a.Identifier, "FUNC_") {
					count++
				}
			}
			if count >= required {
				return true
			}
		}
	}

	return false
}

func (CompletionPolicy) React(state *kernel.FrameworkState) *kernel.Proposal {
	mission := strings.ToLower(state.Mission)
	hasTotal := state.FindArtifact("TOTAL") != nil

	// HOLD FIRE: the total has been computed but the mission also demands a
	// write, and no write has succeeded yet — let the agent write first.
	if strings.Contains(mission, "write") && hasTotal {
		wrote := false
		for _, h := range state.DecisionHistory {
			if h.ToolCall == "write_file" && h.ExecutionResult == "SUCCESS" {
				wrote = true
				break
			}
		}
		if !wrote {
			return nil
		}
	}

	if strings.Contains(mission, "concatenat") || strings.Contains(mission, "10-word") || strings.Contains(mission, "all parts") {
		parts := make([]*kernel.Artifact, 0)
		for _, a := range state.Artifacts {
			if a != nil && strings.HasPrefix(a.Identifier, "PART_") {
				parts = append(parts, a)
			}
		}
		if len(parts) > 0 {
			sort.Slice(parts, func(i, j int) bool { return parts[i].Identifier < parts[j].Identifier })
			summaries := make([]string, len(parts))
			for i, p := range parts {
				summaries[i] = strings.Trim(p.Summary, "'\"")
			}
			combined := strings.Join(summaries, " ")
			return &kernel.Proposal{
				ThoughtProcess: fmt.Sprintf("Mission complete. All %d parts combined.", len(parts)),
				ToolCall:       "halt_and_ask",
				Target:         "TOTAL: " + combined,
			}
		}
	}

	art := state.FindArtifact("TOTAL")
	if art == nil {
		art = findByUppercaseSubstring(state, "VIOLATION")
	}
	if art == nil {
		art = findByUppercaseSubstring(state, "COMPLETE")
	}
	if art == nil {
		art = findByUppercaseSubstring(state, "VERIFICATION")
	}
	if art == nil {
		return nil
	}

	return &kernel.Proposal{
		ThoughtProcess: fmt.Sprintf("The %s artifact is present. The mission is complete.", art.Identifier),
		ToolCall:       "halt_and_ask",
		Target:         fmt.Sprintf("%s: %s", art.Identifier, art.Summary),
	}
}

func findByUppercaseSubstring(state *kernel.FrameworkState, substr string) *kernel.Artifact {
	for _, a := range state.Artifacts {
		if a != nil && strings.Contains(strings.ToUpper(a.Identifier), substr) {
			return a
		}
	}
	return nil
}
