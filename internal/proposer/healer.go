package proposer

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/kernel"
)

// healerStage is one attempt at recovering a Proposal from a raw model
// reply. Stages run in order; the first to succeed wins. Grounded on
// amnesic/drivers/ollama.py's OllamaDriver._extract_json_block, which
// chains exactly this sequence of increasingly permissive strategies.
type healerStage func(raw string) (*kernel.Proposal, bool)

var thinkTagPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)
var thoughtTagPattern = regexp.MustCompile(`(?s)\[THOUGHT\].*?\[/THOUGHT\]`)
var codeBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

var toolCallNames = []string{
	"stage_context", "unstage_context", "save_artifact", "delete_artifact",
	"stage_artifact", "stage_multiple_artifacts", "edit_file", "write_file",
	"halt_and_ask", "verify_step", "calculate", "switch_strategy",
	"compare_files", "query_sidecar", "set_audit_policy", "enable_policy",
	"disable_policy",
}

// healerPipeline returns the ordered stages the default Healer runs.
func healerPipeline() []healerStage {
	return []healerStage{
		stageDirectJSON,
		stageCodeBlockJSON,
		stageBalancedBraces,
		stageQuoteNormalized,
		stageProseKeyValue,
		stageDirectToolCall,
	}
}

// Heal strips reasoning-tag noise then tries each stage of the pipeline in
// order, returning the first successfully parsed Proposal.
func Heal(raw string) (*kernel.Proposal, bool) {
	clean := thinkTagPattern.ReplaceAllString(raw, "")
	clean = thoughtTagPattern.ReplaceAllString(clean, "")
	clean = strings.TrimSpace(clean)

	for _, stage := range healerPipeline() {
		if p, ok := stage(clean); ok {
			return p, true
		}
	}
	return nil, false
}

type rawProposal struct {
	ThoughtProcess string `json:"thought_process"`
	ToolCall       string `json:"tool_call"`
	Target         string `json:"target"`
}

func toProposal(r rawProposal) (*kernel.Proposal, bool) {
	if strings.TrimSpace(r.ToolCall) == "" {
		return nil, false
	}
	return &kernel.Proposal{
		ThoughtProcess: strings.TrimSpace(r.ThoughtProcess),
		ToolCall:       strings.TrimSpace(r.ToolCall),
		Target:         r.Target,
	}, true
}

// stageDirectJSON tries json.Unmarshal on the text as-is.
func stageDirectJSON(text string) (*kernel.Proposal, bool) {
	var r rawProposal
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return nil, false
	}
	return toProposal(r)
}

// stageCodeBlockJSON extracts ```json ... ``` fenced blocks and retries a
// direct parse on each.
func stageCodeBlockJSON(text string) (*kernel.Proposal, bool) {
	for _, m := range codeBlockPattern.FindAllStringSubmatch(text, -1) {
		if p, ok := stageDirectJSON(strings.TrimSpace(m[1])); ok {
			return p, true
		}
	}
	return nil, false
}

// stageBalancedBraces scans for the first brace-balanced {...} span and
// parses it, matching the Python reference's bracket-counting fallback
// (stage 3 there) rather than a naive first-'{'/last-'}' slice, so nested
// objects inside the target value don't break extraction.
func stageBalancedBraces(text string) (*kernel.Proposal, bool) {
	for start, ch := range text {
		if ch != '{' {
			continue
		}
		balance := 0
		for i := start; i < len(text); i++ {
			switch text[i] {
			case '{':
				balance++
			case '}':
				balance--
			}
			if balance == 0 {
				candidate := text[start : i+1]
				if p, ok := stageDirectJSON(candidate); ok {
					return p, true
				}
				break
			}
		}
	}
	return nil, false
}

// stageQuoteNormalized repairs single-quoted, Python-booleaned JSON before
// retrying the balanced-brace extraction.
func stageQuoteNormalized(text string) (*kernel.Proposal, bool) {
	repaired := strings.ReplaceAll(text, "'", `"`)
	repaired = strings.ReplaceAll(repaired, "True", "true")
	repaired = strings.ReplaceAll(repaired, "False", "false")
	repaired = strings.ReplaceAll(repaired, "None", "null")
	return stageBalancedBraces(repaired)
}

var thoughtKVPattern = regexp.MustCompile(`(?is)THOUGHT(?: PROCESS)?:\s*(.*?)(?:\n[A-Z ]+:|$)`)
var toolCallKVPattern = regexp.MustCompile(`(?is)TOOL CALL:\s*(.*?)(?:\n[A-Z ]+:|$)`)
var targetKVPattern = regexp.MustCompile(`(?is)TARGET:\s*(.*?)(?:\n[A-Z ]+:|$)`)
var contentKVPattern = regexp.MustCompile(`(?is)CONTENT:\s*(.*)`)

// stageProseKeyValue parses "TOOL CALL: x\nTARGET: y\nCONTENT: z" prose a
// small model emits instead of JSON, joining TARGET and CONTENT with a
// colon for edit_file/write_file the way the reference driver does.
func stageProseKeyValue(text string) (*kernel.Proposal, bool) {
	if !strings.Contains(strings.ToUpper(text), "TOOL CALL:") {
		return nil, false
	}
	var r rawProposal
	if m := thoughtKVPattern.FindStringSubmatch(text); m != nil {
		r.ThoughtProcess = strings.TrimSpace(m[1])
	}
	if m := toolCallKVPattern.FindStringSubmatch(text); m != nil {
		r.ToolCall = strings.TrimSpace(m[1])
	}
	if m := targetKVPattern.FindStringSubmatch(text); m != nil {
		r.Target = strings.TrimSpace(m[1])
	}
	if r.ToolCall == "" {
		return nil, false
	}
	lower := strings.ToLower(r.ToolCall)
	if m := contentKVPattern.FindStringSubmatch(text); m != nil {
		content := strings.TrimSpace(m[1])
		if (strings.Contains(lower, "edit_file") || strings.Contains(lower, "write_file")) && !strings.Contains(r.Target, ":") {
			r.Target = r.Target + ": " + content
		}
	}
	return toProposal(r)
}

// stageDirectToolCall handles CLI-style bare calls like stage_context(f.py)
// or edit_file path/to/file: new content, for models that ignore the JSON
// instruction entirely.
func stageDirectToolCall(text string) (*kernel.Proposal, bool) {
	for _, tool := range toolCallNames {
		parenPattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(tool) + `\s*\(\s*['"]?(.*?)['"]?\s*\)`)
		if m := parenPattern.FindStringSubmatch(text); m != nil {
			return &kernel.Proposal{
				ThoughtProcess: "Extracted from direct tool call.",
				ToolCall:       tool,
				Target:         strings.TrimSpace(m[1]),
			}, true
		}
		barePattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(tool) + `\s+['"]?([^` + "`" + `\n]+)['"]?`)
		if m := barePattern.FindStringSubmatch(text); m != nil {
			return &kernel.Proposal{
				ThoughtProcess: "Extracted from direct tool call.",
				ToolCall:       tool,
				Target:         strings.TrimSpace(m[1]),
			}, true
		}
	}
	return nil, false
}
