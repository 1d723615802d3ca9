package proposer

import (
	"context"
	"strings"
	"testing"

	"github.com/B-A-M-N/amnesic/internal/driver"
	"github.com/B-A-M-N/amnesic/internal/kernel"
)

type scriptedDriver struct {
	replies []string
	calls   int
}

func (d *scriptedDriver) Name() string         { return "scripted" }
func (d *scriptedDriver) LastTokenUsage() int   { return 0 }
func (d *scriptedDriver) Embed(context.Context, string) ([]float32, error) { return nil, driver.ErrUnsupported }

func (d *scriptedDriver) GenerateStructured(_ context.Context, _, _ string, _ []byte, _ int) ([]byte, error) {
	reply := d.replies[d.calls]
	if d.calls < len(d.replies)-1 {
		d.calls++
	}
	return []byte(reply), nil
}

func (d *scriptedDriver) GenerateStructuredStreaming(ctx context.Context, sys, user string, schema []byte, retries int, onToken func(string)) ([]byte, error) {
	return d.GenerateStructured(ctx, sys, user, schema, retries)
}

func (d *scriptedDriver) GenerateRaw(context.Context, string, string) (string, error) {
	return "", driver.ErrUnsupported
}

func baseRequest() Request {
	return Request{
		State: &kernel.FrameworkState{Mission: "extract the total", Hypothesis: "totals sum to a known value"},
	}
}

func TestProposeSucceedsOnFirstReply(t *testing.T) {
	d := &scriptedDriver{replies: []string{`{"tool_call": "stage_context", "target": "a.py"}`}}
	p := New(d, 2)
	proposal, err := p.Propose(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proposal.ToolCall != "stage_context" {
		t.Fatalf("unexpected proposal: %+v", proposal)
	}
}

func TestProposeRetriesThenSucceeds(t *testing.T) {
	d := &scriptedDriver{replies: []string{
		"garbage that cannot be parsed",
		`{"tool_call": "halt_and_ask", "target": "done"}`,
	}}
	p := New(d, 2)
	proposal, err := p.Propose(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proposal.ToolCall != "halt_and_ask" {
		t.Fatalf("unexpected proposal after retry: %+v", proposal)
	}
}

func TestProposeFallsBackToKernelPanicAfterExhaustingRetries(t *testing.T) {
	d := &scriptedDriver{replies: []string{"still garbage"}}
	p := New(d, 1)
	proposal, err := p.Propose(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proposal.ToolCall != "halt_and_ask" {
		t.Fatalf("expected fallback halt_and_ask, got: %+v", proposal)
	}
	if !strings.Contains(proposal.Target, "ModelProtocolFailure") {
		t.Fatalf("expected ModelProtocolFailure marker in target, got: %s", proposal.Target)
	}
}
