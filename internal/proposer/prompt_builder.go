package proposer

import (
	"fmt"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

// PromptBuilder renders the system and user prompts sent to the Driver on
// every turn, grounded on amnesic/decision/prompt_builder.py's
// ManagerPromptBuilder.
type PromptBuilder struct{}

// NewPromptBuilder constructs a stateless PromptBuilder.
func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// BuildSystemPrompt renders the fixed framing prompt for the current turn.
func (PromptBuilder) BuildSystemPrompt(state *kernel.FrameworkState) string {
	return fmt.Sprintf(
		"You are the amnesic kernel's proposer. You hold no memory between turns; "+
			"everything you know is in this prompt. Mission hypothesis: %s. "+
			"Respond with a single JSON object: "+
			`{"thought_process": "...", "tool_call": "...", "target": "..."}`+
			". Do not call more than one tool per turn.",
		state.Hypothesis,
	)
}

// BuildUserPrompt renders the full per-turn context block: mission
// progress, the artifact checklist, plan step-gate status, governance
// rules, the disk map, decision history, and the active L1 content —
// matching build_user_prompt's section ordering.
func (PromptBuilder) BuildUserPrompt(
	state *kernel.FrameworkState,
	l1Files []string,
	activeContent string,
	forbiddenTools []string,
	mapSummary string,
	historyBlock string,
) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[MISSION PROGRESS]\n%s\n", state.Mission)

	if len(state.Artifacts) > 0 {
		b.WriteString("\n[COMPLETED ARTIFACTS CHECKLIST]\n")
		for _, a := range state.Artifacts {
			if a == nil {
				continue
			}
			fmt.Fprintf(&b, "- %s [DONE]\n", a.Identifier)
		}
	}

	if len(state.Plan) > 0 {
		b.WriteString("\n[STATE TRANSITION STATUS]\n")
		for i, step := range state.Plan {
			var status, pointer string
			switch {
			case i < state.CurrentStepIndex:
				status = "[SEALED - ACCESS DENIED]"
			case i == state.CurrentStepIndex:
				status = "[ACTIVE]"
				pointer = " *YOU ARE HERE*"
			default:
				status = "[LOCKED]"
			}
			fmt.Fprintf(&b, "Step %d: %s %s%s\n", i, step.Description, status, pointer)
		}
		if state.CurrentStepIndex < len(state.Plan)-1 {
			fmt.Fprintf(&b, "NEXT STATE GATE -> %s\n", state.Plan[state.CurrentStepIndex+1].Description)
		}
	}

	artifactPointers := make([]string, 0, len(state.Artifacts))
	for _, a := range state.Artifacts {
		if a != nil {
			artifactPointers = append(artifactPointers, "<"+a.Identifier+">")
		}
	}
	artifactSummary := "None"
	if len(artifactPointers) > 0 {
		artifactSummary = strings.Join(artifactPointers, ", ")
	}

	fmt.Fprintf(&b, "\n[STATE DELTA GOVERNANCE]\n"+
		"- YOUR REASONING IS EPHEMERAL: wiped every turn. Only Backpack artifacts persist.\n"+
		"- SEALED PAST: steps marked [SEALED] cannot be revisited.\n"+
		"- NO DELTA = FAILURE: a move that changes neither Backpack nor L1 is wasted.\n\n"+
		"[CRITICAL GROUND TRUTH (The Backpack)]\n"+
		"You currently hold pointers to: %s\n"+
		"Your Active L1 RAM contains: %v\n\n",
		artifactSummary, l1Files,
	)

	if state.LastActionFeedback != "" {
		fmt.Fprintf(&b, "%s\n\n", state.LastActionFeedback)
	}

	isRestricted := false
	for _, t := range forbiddenTools {
		if t == "stage_context" {
			isRestricted = true
			break
		}
	}

	b.WriteString("### OPERATIONAL INSTRUCTIONS ###\n")
	if isRestricted {
		b.WriteString("[!!! CRITICAL: RESTRICTED REASONING MODE !!!]\n" +
			"YOU ARE IN SNAPSHOT MODE. DISK ACCESS IS BLOCKED. " +
			"ANSWER USING ONLY THE ARTIFACTS IN THE BACKPACK. DO NOT attempt stage_context.\n")
	} else if state.ElasticMode {
		b.WriteString("- ELASTIC CONTEXT: you may have multiple files open as long as they fit in L1.\n")
	} else {
		b.WriteString("- ONE-FILE LIMIT: only one file open at a time; unstage_context before opening another.\n")
	}
	b.WriteString("- ARTIFACT SHADOWING: you only see pointers <id>; use stage_artifact(id) to read full content.\n" +
		"- Use calculate(SUM_BACKPACK) to aggregate numerical artifacts.\n\n")

	fmt.Fprintf(&b, "[ENVIRONMENT STRUCTURE - DISK MAP]\n%s\n\n", diskMapOrDisabled(mapSummary, isRestricted))

	if historyBlock != "" {
		fmt.Fprintf(&b, "%s\n\n", historyBlock)
	}

	fmt.Fprintf(&b, "[CURRENT L1 CONTEXT CONTENT]\n%s\n\n", activeContent)

	b.WriteString("[GOVERNANCE RULES]\n" +
		"1. FORWARD ONLY: once an artifact is in the checklist, never re-stage its source file.\n" +
		"2. SEQUENTIAL FLOW: open the next numerical file not yet completed.\n" +
		"3. IMMEDIATE SAVE: if a file is in Active L1 RAM, your next move MUST be save_artifact.\n" +
		"4. HALT: if all steps are complete, use halt_and_ask.\n" +
		"5. PRE-CALCULATION: before calculate, ensure all required numbers are saved as artifacts.\n" +
		"6. COUNT CHECK: if the mission specifies a count, count your artifacts before halting.\n\n" +
		"RESPONSE MUST BE VALID JSON: " +
		`{"tool_call": "...", "target": "..."}` + "\n")

	return b.String()
}

func diskMapOrDisabled(mapSummary string, restricted bool) string {
	if restricted || mapSummary == "" {
		return "[ENVIRONMENT ACCESS DISABLED]"
	}
	if len(mapSummary) > 2500 {
		return mapSummary[:2500]
	}
	return mapSummary
}
