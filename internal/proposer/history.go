package proposer

import (
	"fmt"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

// defaultMaxRecentTurns matches the Python reference's Manager call site
// (history_block uses max_turns=10).
const defaultMaxRecentTurns = 10

// CompressHistory collapses older decision records into a single
// "MILESTONE: ..." summary line once the history exceeds maxRecentTurns,
// keeping the most recent turns verbatim — grounded on
// amnesic/core/memory.py's compress_history.
func CompressHistory(history []kernel.DecisionRecord, maxRecentTurns int) string {
	if maxRecentTurns <= 0 {
		maxRecentTurns = defaultMaxRecentTurns
	}
	lines := make([]string, len(history))
	for i, h := range history {
		lines[i] = fmt.Sprintf("[TURN %d] %s | VERDICT: %s", i, h.ToolCall, h.Verdict)
	}

	if len(lines) <= maxRecentTurns {
		return strings.Join(lines, "\n")
	}

	cutoff := maxRecentTurns
	old := history[:len(history)-cutoff]
	recent := lines[len(lines)-cutoff:]

	successes, rejections := 0, 0
	for _, h := range old {
		switch h.Verdict {
		case kernel.VerdictPass, kernel.VerdictHalt:
			successes++
		case kernel.VerdictReject:
			rejections++
		}
	}

	summary := fmt.Sprintf("MILESTONE: Successfully processed %d initial steps (%d successful, %d rejected).",
		len(old), successes, rejections)

	return summary + "\n" + strings.Join(recent, "\n")
}
