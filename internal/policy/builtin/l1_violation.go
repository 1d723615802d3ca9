package builtin

import (
	"regexp"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

var l1BlockerPattern = regexp.MustCompile(`FILE:(\S+) is open`)

// L1ViolationHandler fires when the previous move was rejected for
// exceeding the L1 budget, forcing an unstage of the page blocking it.
type L1ViolationHandler struct{}

func (L1ViolationHandler) Name() string  { return "L1ViolationHandler" }
func (L1ViolationHandler) Priority() int { return 25 }

func (L1ViolationHandler) Condition(state *kernel.FrameworkState, _ []string) bool {
	return strings.Contains(state.LastActionFeedback, "L1 RAM VIOLATION")
}

func (L1ViolationHandler) React(state *kernel.FrameworkState) *kernel.Proposal {
	blocker := "unknown"
	if m := l1BlockerPattern.FindStringSubmatch(state.LastActionFeedback); len(m) == 2 {
		blocker = m[1]
	}
	return &kernel.Proposal{
		ThoughtProcess: "L1 is full. Forcing unstage of " + blocker + " to clear room.",
		ToolCall:       "unstage_context",
		Target:         blocker,
	}
}
