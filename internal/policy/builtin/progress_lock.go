package builtin

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

var progressCountPattern = regexp.MustCompile(`(?i)all (\d+)|(\d+)\s*(words|values|files|parts|artifacts|steps)`)

// ProgressLock fires when the mission names a required artifact count that
// has not yet been reached, and the agent is attempting to halt or
// calculate prematurely. It forces the agent back onto the next
// data-gathering step instead.
type ProgressLock struct{}

func (ProgressLock) Name() string  { return "ProgressLock" }
func (ProgressLock) Priority() int { return 30 }

func progressRequiredCount(mission string) (int, bool) {
	m := progressCountPattern.FindStringSubmatch(strings.ToLower(mission))
	if m == nil {
		return 0, false
	}
	digits := m[1]
	if digits == "" {
		digits = m[2]
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (ProgressLock) Condition(state *kernel.FrameworkState, activePages []string) bool {
	required, ok := progressRequiredCount(state.Mission)
	if !ok {
		return false
	}

	current := len(state.NonMetaArtifacts())
	feedback := strings.ToLower(state.LastActionFeedback)

	premature := strings.Contains(feedback, "calculate") || strings.Contains(feedback, "halt")
	if !premature && len(state.DecisionHistory) > 0 {
		premature = state.DecisionHistory[len(state.DecisionHistory)-1].ToolCall == "halt_and_ask"
	}

	// Anti-interference: in strict (non-elastic) mode with L1 occupied, defer
	// to other policies (e.g. L1ViolationHandler) instead of locking progress.
	if !state.ElasticMode && len(activePages) > 0 {
		return false
	}

	return current < required && premature
}

func (ProgressLock) React(state *kernel.FrameworkState) *kernel.Proposal {
	required, _ := progressRequiredCount(state.Mission)
	current := len(state.NonMetaArtifacts())

	missionLower := strings.ToLower(state.Mission)
	usesSteps := strings.Contains(missionLower, "step_")
	if !usesSteps {
		for _, a := range state.Artifacts {
			if a != nil && strings.Contains(a.Identifier, "step_") {
				usesSteps = true
				break
			}
		}
	}

	var target string
	if usesSteps {
		target = fmt.Sprintf("step_%d.txt", current)
	} else {
		target = fmt.Sprintf("log_%02d.txt", current)
	}

	if !state.ElasticMode && strings.Contains(state.LastActionFeedback, "L1 RAM VIOLATION") {
		if m := l1BlockerPattern.FindStringSubmatch(state.LastActionFeedback); len(m) == 2 {
			return &kernel.Proposal{
				ThoughtProcess: fmt.Sprintf("Progress lock: L1 is full (%s). Unstaging before continuing to %s.", m[1], target),
				ToolCall:       "unstage_context",
				Target:         m[1],
			}
		}
	}

	return &kernel.Proposal{
		ThoughtProcess: fmt.Sprintf("Progress lock: only %d/%d artifacts gathered. Continuing with stage_context(%s).", current, required, target),
		ToolCall:       "stage_context",
		Target:         target,
	}
}
