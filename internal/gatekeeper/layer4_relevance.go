package gatekeeper

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/B-A-M-N/amnesic/internal/embedding"
	"github.com/B-A-M-N/amnesic/internal/kernel"
)

var sequentialFilePattern = regexp.MustCompile(`log_\d+|step_\d+`)

var relevanceGatedTools = map[string]bool{
	"save_artifact": true,
	"edit_file":     true,
	"write_file":    true,
	"calculate":     true,
}

// Layer4Relevance gates mission-mutating moves (save/write/edit/calculate)
// on cosine similarity against the mission goal vector; staging, halting,
// and querying are always exempt since exploration should never be
// penalized for relevance.
type Layer4Relevance struct {
	engine embedding.EmbeddingEngine

	mu        sync.Mutex
	lastGoal  string
	goalVec   []float32
}

// NewLayer4Relevance wraps an embedding engine. A nil engine disables this
// layer entirely (every proposal passes), matching the Auditor's behavior
// when no embedder is configured.
func NewLayer4Relevance(engine embedding.EmbeddingEngine) *Layer4Relevance {
	return &Layer4Relevance{engine: engine}
}

func (*Layer4Relevance) Name() string { return "Layer4Relevance" }

func (l *Layer4Relevance) Evaluate(ctx context.Context, req *Request) *kernel.Verdict {
	if l.engine == nil {
		return nil
	}
	p := req.Proposal
	if !relevanceGatedTools[p.ToolCall] {
		return nil
	}

	goalVec, err := l.goalVector(ctx, req.State.Mission)
	if err != nil {
		return nil // fail open: an embedding failure should not block progress
	}

	actionText := fmt.Sprintf("%s %s %s", p.ToolCall, p.Target, p.ThoughtProcess)
	actionVec, err := l.engine.Embed(ctx, actionText)
	if err != nil {
		return nil
	}
	relevance := embedding.CosineSimilarity(goalVec, actionVec)

	if sequentialFilePattern.MatchString(p.Target) && relevance > 0.55 {
		return &kernel.Verdict{
			Kind:       kernel.VerdictPass,
			Confidence: relevance,
			Rationale:  fmt.Sprintf("Fast-path approved: heuristic score %.2f > 0.55.", relevance),
		}
	}

	currentTurn := req.CurrentTurn
	threshold := req.Profile.RelevanceThreshold

	if relevance < threshold {
		if currentTurn <= 5 {
			return &kernel.Verdict{
				Kind:       kernel.VerdictPass,
				Confidence: relevance,
				Rationale:  fmt.Sprintf("Bootstrap pass: low relevance %.2f ignored during initialization (turn %d).", relevance, currentTurn),
			}
		}
		return &kernel.Verdict{
			Kind:       kernel.VerdictReject,
			Confidence: relevance,
			Rationale:  fmt.Sprintf("RELEVANCE FAILURE: this move (score %.2f) does not progress the mission.", relevance),
			Correction: "Focus on the mission goal and only interact with relevant files.",
		}
	}
	return nil
}

func (l *Layer4Relevance) goalVector(ctx context.Context, mission string) ([]float32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastGoal == mission && l.goalVec != nil {
		return l.goalVec, nil
	}
	vec, err := l.engine.Embed(ctx, mission)
	if err != nil {
		return nil, err
	}
	l.lastGoal = mission
	l.goalVec = vec
	return vec, nil
}

