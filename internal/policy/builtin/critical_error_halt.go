package builtin

import (
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

// CriticalErrorHalt fires whenever the last tool execution reported a
// "CRITICAL ERROR" feedback string, forcing an immediate halt rather than
// letting the Proposer attempt to route around it.
type CriticalErrorHalt struct{}

func (CriticalErrorHalt) Name() string  { return "CriticalErrorHalt" }
func (CriticalErrorHalt) Priority() int { return 20 }

func (CriticalErrorHalt) Condition(state *kernel.FrameworkState, _ []string) bool {
	return strings.Contains(state.LastActionFeedback, "CRITICAL ERROR")
}

func (CriticalErrorHalt) React(state *kernel.FrameworkState) *kernel.Proposal {
	return &kernel.Proposal{
		ThoughtProcess: "A critical error occurred: " + state.LastActionFeedback + ". Halting immediately.",
		ToolCall:       "halt_and_ask",
		Target:         state.LastActionFeedback,
	}
}
