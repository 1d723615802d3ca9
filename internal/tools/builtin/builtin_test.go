package builtin

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/B-A-M-N/amnesic/internal/driver"
	"github.com/B-A-M-N/amnesic/internal/embedding"
	"github.com/B-A-M-N/amnesic/internal/session"
	"github.com/B-A-M-N/amnesic/internal/tools"
)

// scriptedDriver replies with fixed text for GenerateRaw/GenerateStructured,
// enough to drive the Worker round-trips save_artifact/edit_file/
// compare_files depend on.
type scriptedDriver struct {
	raw        string
	structured string
}

func (d *scriptedDriver) Name() string       { return "scripted" }
func (d *scriptedDriver) LastTokenUsage() int { return 0 }
func (d *scriptedDriver) Embed(context.Context, string) ([]float32, error) {
	return nil, driver.ErrUnsupported
}
func (d *scriptedDriver) GenerateStructured(context.Context, string, string, []byte, int) ([]byte, error) {
	return []byte(d.structured), nil
}
func (d *scriptedDriver) GenerateStructuredStreaming(ctx context.Context, sys, user string, schema []byte, retries int, _ func(string)) ([]byte, error) {
	return d.GenerateStructured(ctx, sys, user, schema, retries)
}
func (d *scriptedDriver) GenerateRaw(context.Context, string, string) (string, error) {
	return d.raw, nil
}

type fakeScanner struct {
	files []session.ScannedFile
}

func (f *fakeScanner) Scan([]string) ([]session.ScannedFile, error) { return f.files, nil }
func (f *fakeScanner) SymbolLookup(_ context.Context, file, symbol string) (string, error) {
	return "func " + symbol + "() {}", nil
}

func newTestContext(t *testing.T, d driver.Driver, sc session.Scanner) (*session.ToolContext, *session.Session) {
	t.Helper()
	root := t.TempDir()
	cfg := session.DefaultConfig("test mission")
	cfg.CacheDir = t.TempDir()
	cfg.RootDirs = []string{root}

	sess, err := session.New(cfg, d, embedding.NewKeywordEngine(16), tools.NewRegistry(), sc)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return sess.ToolContext(), sess
}

func newTestContextWithCapacity(t *testing.T, d driver.Driver, sc session.Scanner, capacityTokens int) *session.ToolContext {
	t.Helper()
	root := t.TempDir()
	cfg := session.DefaultConfig("test mission")
	cfg.CacheDir = t.TempDir()
	cfg.RootDirs = []string{root}
	cfg.L1CapacityTokens = capacityTokens

	sess, err := session.New(cfg, d, embedding.NewKeywordEngine(16), tools.NewRegistry(), sc)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return sess.ToolContext()
}

func writeFixture(t *testing.T, tc *session.ToolContext, name, content string) string {
	t.Helper()
	root := tc.RootDirs()[0]
	path := filepath.Join(root, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestRegisterInstallsAllSeventeenTools(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)
	reg := tools.NewRegistry()
	if err := Register(reg, tc); err != nil {
		t.Fatalf("Register: %v", err)
	}

	want := []string{
		"stage_context", "unstage_context", "save_artifact", "delete_artifact",
		"stage_artifact", "stage_multiple_artifacts", "query_sidecar",
		"edit_file", "write_file", "calculate", "verify_step", "compare_files",
		"switch_strategy", "set_audit_policy", "enable_policy", "disable_policy",
		"halt_and_ask",
	}
	for _, name := range want {
		if !reg.Has(name) {
			t.Errorf("expected tool %q to be registered", name)
		}
	}
	if reg.Count() != len(want) {
		t.Errorf("expected %d tools, got %d", len(want), reg.Count())
	}
}

func TestStageAndUnstageContext(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)
	writeFixture(t, tc, "a.go", "package a\n")

	out, err := stageContext(tc)(context.Background(), map[string]any{"target": "a.go"})
	if err != nil {
		t.Fatalf("stage_context: %v", err)
	}
	if !strings.Contains(out, "Staged") {
		t.Fatalf("expected staged feedback, got: %s", out)
	}
	if !tc.Pager().InL1("FILE:a.go") {
		t.Fatal("expected a.go to be resident in L1")
	}

	out, err = unstageContext(tc)(context.Background(), map[string]any{"target": "a.go"})
	if err != nil {
		t.Fatalf("unstage_context: %v", err)
	}
	if !strings.Contains(out, "Unstaged") {
		t.Fatalf("expected unstaged feedback, got: %s", out)
	}
	if tc.Pager().InL1("FILE:a.go") {
		t.Fatal("expected a.go to be evicted from L1")
	}
}

// TestStageContextCapacityFailureSurfacesL1Violation covers spec §7's
// error-propagation requirement: a stage that can't fit names the resident
// blocker page so L1ViolationHandler (priority 25) can force its unstage
// next turn.
func TestStageContextCapacityFailureSurfacesL1Violation(t *testing.T) {
	tc := newTestContextWithCapacity(t, &scriptedDriver{}, nil, 40)
	writeFixture(t, tc, "resident.go", "package a\nfunc Resident() { return }\n")
	writeFixture(t, tc, "big.go", "package a\nfunc Big() { return veryVeryVeryLongExpression }\n")

	out, err := stageContext(tc)(context.Background(), map[string]any{"target": "resident.go"})
	if err != nil {
		t.Fatalf("stage_context resident.go: %v", err)
	}
	if !strings.Contains(out, "Staged") {
		t.Fatalf("expected resident.go to stage successfully, got: %s", out)
	}

	out, err = stageContext(tc)(context.Background(), map[string]any{"target": "big.go"})
	if err != nil {
		t.Fatalf("stage_context big.go: %v", err)
	}
	if !strings.Contains(out, "L1 RAM VIOLATION (FILE:resident.go is open)") {
		t.Fatalf("expected an L1 RAM VIOLATION naming the resident blocker, got: %s", out)
	}
}

func TestStageContextSymbolQuery(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, &fakeScanner{})
	writeFixture(t, tc, "a.go", "package a\nfunc Foo() {}\n")

	out, err := stageContext(tc)(context.Background(), map[string]any{"target": "a.go?query=Foo"})
	if err != nil {
		t.Fatalf("stage_context: %v", err)
	}
	if !strings.Contains(out, "Staged") {
		t.Fatalf("expected staged feedback, got: %s", out)
	}
	if !tc.Pager().InL1("FILE:a.go[Foo]") {
		t.Fatal("expected the symbol-scoped page to be resident in L1")
	}
}

func TestSaveArtifactKeyValue(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)

	out, err := saveArtifact(tc)(context.Background(), map[string]any{"target": "COUNT: 5"})
	if err != nil {
		t.Fatalf("save_artifact: %v", err)
	}
	if !strings.Contains(out, "COUNT") {
		t.Fatalf("expected feedback naming the artifact, got: %s", out)
	}
	found := tc.State().FindArtifact("COUNT")
	if found == nil || found.Summary != "5" {
		t.Fatalf("expected artifact COUNT=5, got: %+v", found)
	}
}

func TestSaveArtifactDistillsFromWorkerWhenNoValue(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{raw: "distilled value"}, nil)

	_, err := saveArtifact(tc)(context.Background(), map[string]any{"target": "SUMMARY"})
	if err != nil {
		t.Fatalf("save_artifact: %v", err)
	}
	found := tc.State().FindArtifact("SUMMARY")
	if found == nil || found.Summary != "distilled value" {
		t.Fatalf("expected distilled artifact, got: %+v", found)
	}
}

func TestSaveArtifactBatch(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)

	_, err := saveArtifact(tc)(context.Background(), map[string]any{"target": "A: 1, B: 2"})
	if err != nil {
		t.Fatalf("save_artifact: %v", err)
	}
	if tc.State().FindArtifact("A") == nil || tc.State().FindArtifact("B") == nil {
		t.Fatalf("expected both A and B artifacts saved, got: %+v", tc.State().Artifacts)
	}
}

func TestDeleteArtifact(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)
	saveArtifact(tc)(context.Background(), map[string]any{"target": "X: 1"})

	_, err := deleteArtifact(tc)(context.Background(), map[string]any{"target": "X"})
	if err != nil {
		t.Fatalf("delete_artifact: %v", err)
	}
	if tc.State().FindArtifact("X") != nil {
		t.Fatal("expected X to be deleted")
	}
}

func TestStageArtifactNotFound(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)

	out, err := stageArtifact(tc)(context.Background(), map[string]any{"target": "MISSING"})
	if err != nil {
		t.Fatalf("stage_artifact: %v", err)
	}
	if !strings.Contains(out, "ERROR") {
		t.Fatalf("expected an error for a missing artifact, got: %s", out)
	}
}

func TestWriteFileAndEditFile(t *testing.T) {
	scripted := &scriptedDriver{structured: `{"original_snippet": "hello", "new_snippet": "goodbye"}`}
	tc, _ := newTestContext(t, scripted, nil)

	out, err := writeFile(tc)(context.Background(), map[string]any{"target": "out.txt: hello world"})
	if err != nil {
		t.Fatalf("write_file: %v", err)
	}
	if !strings.Contains(out, "SUCCESS") {
		t.Fatalf("expected success feedback, got: %s", out)
	}

	out, err = editFile(tc)(context.Background(), map[string]any{"target": "out.txt: replace hello"})
	if err != nil {
		t.Fatalf("edit_file: %v", err)
	}
	if !strings.Contains(out, "SUCCESS") {
		t.Fatalf("expected success feedback, got: %s", out)
	}

	content, ok := tc.ShadowRead(filepath.Join(tc.RootDirs()[0], "out.txt"))
	if !ok || !strings.Contains(content, "goodbye world") {
		t.Fatalf("expected edited content, got: %q (ok=%v)", content, ok)
	}
}

func TestCalculateAdd(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)

	out, err := calculate(tc)(context.Background(), map[string]any{"target": "ADD 2 and 3"})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !strings.Contains(out, "Final (ADD): 5") {
		t.Fatalf("expected Final (ADD): 5, got: %s", out)
	}
}

func TestCalculateDivideByZero(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)

	out, err := calculate(tc)(context.Background(), map[string]any{"target": "DIVIDE 10 and 0"})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !strings.Contains(out, "Division by zero") {
		t.Fatalf("expected division-by-zero error, got: %s", out)
	}
}

func TestCalculateBlocksCodeInjection(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)

	out, err := calculate(tc)(context.Background(), map[string]any{"target": "MODIFY def foo(): return 1"})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !strings.Contains(out, "MATH operations only") {
		t.Fatalf("expected the guardrail message, got: %s", out)
	}
}

func TestCalculateSumBackpack(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)
	saveArtifact(tc)(context.Background(), map[string]any{"target": "VAL1: 7"})
	saveArtifact(tc)(context.Background(), map[string]any{"target": "VAL2: 8"})

	out, err := calculate(tc)(context.Background(), map[string]any{"target": "SUM_BACKPACK"})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !strings.Contains(out, "Final (ADD): 15") {
		t.Fatalf("expected Final (ADD): 15, got: %s", out)
	}
}

func TestCalculateExprPath(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)

	out, err := calculate(tc)(context.Background(), map[string]any{"target": "EXPR: 6*7"})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !strings.Contains(out, "42") {
		t.Fatalf("expected 42 in the result, got: %s", out)
	}
}

func TestVerifyStepDispatchesToMath(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)

	out, err := verifyStep(tc)(context.Background(), map[string]any{"target": "ADD 1 2"})
	if err != nil {
		t.Fatalf("verify_step: %v", err)
	}
	if !strings.Contains(out, "Final (ADD): 3") {
		t.Fatalf("expected a calculate-shaped result, got: %s", out)
	}
}

func TestVerifyStepPresenceCheck(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)
	saveArtifact(tc)(context.Background(), map[string]any{"target": "NOTE: the answer is here"})

	out, err := verifyStep(tc)(context.Background(), map[string]any{"target": "NOTE"})
	if err != nil {
		t.Fatalf("verify_step: %v", err)
	}
	if !strings.Contains(out, "PASSED") {
		t.Fatalf("expected PASSED, got: %s", out)
	}

	out, err = verifyStep(tc)(context.Background(), map[string]any{"target": "NOWHERE"})
	if err != nil {
		t.Fatalf("verify_step: %v", err)
	}
	if !strings.Contains(out, "REFUTED") {
		t.Fatalf("expected REFUTED, got: %s", out)
	}
}

func TestCompareFiles(t *testing.T) {
	scripted := &scriptedDriver{raw: "merged content"}
	tc, _ := newTestContext(t, scripted, nil)
	writeFixture(t, tc, "a.go", "package a\nfunc A() {}\n")
	writeFixture(t, tc, "b.go", "package a\nfunc B() {}\n")

	out, err := compareFiles(tc)(context.Background(), map[string]any{"target": "a.go, b.go"})
	if err != nil {
		t.Fatalf("compare_files: %v", err)
	}
	if !strings.Contains(out, "SUCCESS") {
		t.Fatalf("expected success feedback, got: %s", out)
	}
	resolved := tc.State().FindArtifact("RESOLVED_CODE")
	if resolved == nil || resolved.Summary != "merged content" {
		t.Fatalf("expected RESOLVED_CODE artifact with merged content, got: %+v", resolved)
	}
	if tc.Pager().InL1("FILE:a.go") || tc.Pager().InL1("FILE:b.go") {
		t.Fatal("expected both source files to be force-unstaged")
	}
}

func TestSwitchStrategyAndAuditPolicy(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)

	switchStrategy(tc)(context.Background(), map[string]any{"target": "exploratory"})
	if tc.State().StrategyTag != "exploratory" {
		t.Fatalf("expected strategy tag to update, got: %s", tc.State().StrategyTag)
	}

	out, err := setAuditPolicy(tc)(context.Background(), map[string]any{"target": "not-a-real-profile"})
	if err != nil {
		t.Fatalf("set_audit_policy: %v", err)
	}
	if !strings.Contains(out, "Invalid Audit Policy") {
		t.Fatalf("expected invalid-profile feedback, got: %s", out)
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	tc, _ := newTestContext(t, &scriptedDriver{}, nil)

	enablePolicy(tc)(context.Background(), map[string]any{"target": "no_hoarding"})
	if !containsString(tc.State().ActivePolicies, "no_hoarding") {
		t.Fatal("expected no_hoarding to be active")
	}

	disablePolicy(tc)(context.Background(), map[string]any{"target": "no_hoarding"})
	if containsString(tc.State().ActivePolicies, "no_hoarding") {
		t.Fatal("expected no_hoarding to be removed")
	}
}
