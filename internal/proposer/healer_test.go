package proposer

import "testing"

func TestHealDirectJSON(t *testing.T) {
	p, ok := Heal(`{"thought_process": "stage the file", "tool_call": "stage_context", "target": "a.py"}`)
	if !ok {
		t.Fatal("expected successful heal")
	}
	if p.ToolCall != "stage_context" || p.Target != "a.py" {
		t.Fatalf("unexpected proposal: %+v", p)
	}
}

func TestHealStripsThinkTags(t *testing.T) {
	raw := `<think>reasoning about the plan</think>{"tool_call": "halt_and_ask", "target": "done"}`
	p, ok := Heal(raw)
	if !ok {
		t.Fatal("expected successful heal")
	}
	if p.ToolCall != "halt_and_ask" {
		t.Fatalf("unexpected tool_call: %s", p.ToolCall)
	}
}

func TestHealCodeBlockJSON(t *testing.T) {
	raw := "Here is my answer:\n```json\n{\"tool_call\": \"save_artifact\", \"target\": \"X: 42\"}\n```"
	p, ok := Heal(raw)
	if !ok {
		t.Fatal("expected successful heal")
	}
	if p.ToolCall != "save_artifact" || p.Target != "X: 42" {
		t.Fatalf("unexpected proposal: %+v", p)
	}
}

func TestHealBalancedBracesWithNoise(t *testing.T) {
	raw := `Sure, here's the JSON: {"tool_call": "verify_step", "target": "check"} -- let me know if that works`
	p, ok := Heal(raw)
	if !ok {
		t.Fatal("expected successful heal")
	}
	if p.ToolCall != "verify_step" {
		t.Fatalf("unexpected tool_call: %s", p.ToolCall)
	}
}

func TestHealQuoteNormalized(t *testing.T) {
	raw := `{'tool_call': 'stage_context', 'target': 'b.py'}`
	p, ok := Heal(raw)
	if !ok {
		t.Fatal("expected successful heal")
	}
	if p.ToolCall != "stage_context" || p.Target != "b.py" {
		t.Fatalf("unexpected proposal: %+v", p)
	}
}

func TestHealProseKeyValue(t *testing.T) {
	raw := "THOUGHT: I should save this value\nTOOL CALL: save_artifact\nTARGET: RESULT\nCONTENT: the answer is 7"
	p, ok := Heal(raw)
	if !ok {
		t.Fatal("expected successful heal")
	}
	if p.ToolCall != "save_artifact" {
		t.Fatalf("unexpected tool_call: %s", p.ToolCall)
	}
}

func TestHealDirectToolCallSyntax(t *testing.T) {
	p, ok := Heal(`stage_context(config.py)`)
	if !ok {
		t.Fatal("expected successful heal")
	}
	if p.ToolCall != "stage_context" || p.Target != "config.py" {
		t.Fatalf("unexpected proposal: %+v", p)
	}
}

func TestHealFailsOnGarbage(t *testing.T) {
	_, ok := Heal("I have no idea what to do here, sorry.")
	if ok {
		t.Fatal("expected heal to fail on unparseable prose")
	}
}
