package proposer

import (
	"strings"
	"testing"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

func TestBuildUserPromptIncludesArtifactChecklist(t *testing.T) {
	state := &kernel.FrameworkState{
		Mission:   "extract all parts",
		Artifacts: []*kernel.Artifact{{Identifier: "PART_0", Summary: "first"}},
	}
	out := PromptBuilder{}.BuildUserPrompt(state, []string{"a.py"}, "content", nil, "", "")
	if !strings.Contains(out, "PART_0 [DONE]") {
		t.Fatalf("expected artifact checklist entry, got:\n%s", out)
	}
}

func TestBuildUserPromptRestrictedModeWhenStageContextForbidden(t *testing.T) {
	state := &kernel.FrameworkState{Mission: "answer from memory"}
	out := PromptBuilder{}.BuildUserPrompt(state, nil, "", []string{"stage_context"}, "map", "")
	if !strings.Contains(out, "SNAPSHOT MODE") {
		t.Fatalf("expected snapshot-mode warning, got:\n%s", out)
	}
	if !strings.Contains(out, "[ENVIRONMENT ACCESS DISABLED]") {
		t.Fatalf("expected disk map to be disabled in restricted mode, got:\n%s", out)
	}
}

func TestBuildUserPromptElasticVsOneFileLimit(t *testing.T) {
	elastic := &kernel.FrameworkState{Mission: "m", ElasticMode: true}
	strict := &kernel.FrameworkState{Mission: "m", ElasticMode: false}

	elasticOut := PromptBuilder{}.BuildUserPrompt(elastic, nil, "", nil, "", "")
	strictOut := PromptBuilder{}.BuildUserPrompt(strict, nil, "", nil, "", "")

	if !strings.Contains(elasticOut, "ELASTIC CONTEXT") {
		t.Fatal("expected elastic-mode instructions")
	}
	if !strings.Contains(strictOut, "ONE-FILE LIMIT") {
		t.Fatal("expected one-file-limit instructions")
	}
}

func TestBuildSystemPromptIncludesHypothesis(t *testing.T) {
	state := &kernel.FrameworkState{Hypothesis: "the config holds a single integer"}
	out := PromptBuilder{}.BuildSystemPrompt(state)
	if !strings.Contains(out, "the config holds a single integer") {
		t.Fatalf("expected hypothesis in system prompt, got: %s", out)
	}
}
