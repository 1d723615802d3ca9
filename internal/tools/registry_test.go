package tools

import (
	"context"
	"errors"
	"testing"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:     name,
		Category: CategoryCompute,
		Execute: func(_ context.Context, args map[string]any) (string, error) {
			return "ok", nil
		},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("ping")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if r.Get("ping") == nil {
		t.Fatal("expected ping to be registered")
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("ping"))
	if err := r.Register(echoTool("ping")); !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Fatalf("expected ErrToolAlreadyRegistered, got %v", err)
	}
}

func TestExecuteUnknownToolReturnsNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "missing", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestExecuteMissingRequiredArg(t *testing.T) {
	r := NewRegistry()
	tool := echoTool("needs_arg")
	tool.Schema.Required = []string{"path"}
	r.MustRegister(tool)

	_, err := r.Execute(context.Background(), "needs_arg", map[string]any{})
	if !errors.Is(err, ErrMissingRequiredArg) {
		t.Fatalf("expected ErrMissingRequiredArg, got %v", err)
	}
}

func TestExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("ping"))

	result, err := r.Execute(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsSuccess() || result.Output != "ok" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestByCategorySortedByPriority(t *testing.T) {
	r := NewRegistry()
	low := echoTool("low")
	low.Priority = 10
	high := echoTool("high")
	high.Priority = 90
	r.MustRegister(low)
	r.MustRegister(high)

	sorted := r.ByCategory(CategoryCompute)
	if len(sorted) != 2 || sorted[0].Name != "high" {
		t.Fatalf("expected high priority first, got %+v", sorted)
	}
}
