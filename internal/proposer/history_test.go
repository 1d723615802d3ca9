package proposer

import (
	"strings"
	"testing"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

func TestCompressHistoryUnderLimitReturnsVerbatim(t *testing.T) {
	history := []kernel.DecisionRecord{
		{ToolCall: "stage_context", Verdict: kernel.VerdictPass},
		{ToolCall: "save_artifact", Verdict: kernel.VerdictReject},
	}
	out := CompressHistory(history, 10)
	if !strings.Contains(out, "stage_context") || !strings.Contains(out, "save_artifact") {
		t.Fatalf("expected verbatim history, got: %s", out)
	}
	if strings.Contains(out, "MILESTONE") {
		t.Fatal("did not expect a milestone summary under the turn limit")
	}
}

func TestCompressHistoryOverLimitSummarizesOldTurns(t *testing.T) {
	history := make([]kernel.DecisionRecord, 15)
	for i := range history {
		verdict := kernel.VerdictPass
		if i%3 == 0 {
			verdict = kernel.VerdictReject
		}
		history[i] = kernel.DecisionRecord{ToolCall: "stage_context", Verdict: verdict}
	}
	out := CompressHistory(history, 10)
	if !strings.HasPrefix(out, "MILESTONE:") {
		t.Fatalf("expected a MILESTONE summary prefix, got: %s", out)
	}
	if strings.Count(out, "[TURN") != 10 {
		t.Fatalf("expected 10 verbatim recent turns, got: %s", out)
	}
}
