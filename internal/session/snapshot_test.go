package session

import (
	"testing"

	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/tools"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	d := &scriptedDriver{replies: []string{`{}`}}
	s := newTestSession(t, d, tools.NewRegistry(), nil)

	s.state.Artifacts = append(s.state.Artifacts, &kernel.Artifact{Identifier: "X", Summary: "42"})
	s.pager.Pin("FILE:a.py", "print(1)")
	label := s.Snapshot("before")

	s.state.Artifacts = append(s.state.Artifacts, &kernel.Artifact{Identifier: "Y", Summary: "99"})
	s.pager.Pin("FILE:b.py", "print(2)")
	s.state.DecisionHistory = append(s.state.DecisionHistory, kernel.DecisionRecord{ToolCall: "noop"})

	if ok := s.Restore(label); !ok {
		t.Fatal("expected Restore to find the snapshot")
	}

	if len(s.state.Artifacts) != 1 || s.state.Artifacts[0].Identifier != "X" {
		t.Fatalf("expected artifacts rolled back to just X, got: %+v", s.state.Artifacts)
	}
	if s.pager.InL1("FILE:b.py") {
		t.Fatal("expected FILE:b.py to be gone after restore")
	}
	if !s.pager.InL1("FILE:a.py") {
		t.Fatal("expected FILE:a.py to still be resident after restore")
	}
	if len(s.state.DecisionHistory) != 0 {
		t.Fatal("expected decision history to be cleared on restore")
	}
	if s.state.Hypothesis != "RESTORED: before" {
		t.Fatalf("unexpected hypothesis: %s", s.state.Hypothesis)
	}
}

func TestRestoreUnknownLabelReturnsFalse(t *testing.T) {
	d := &scriptedDriver{replies: []string{`{}`}}
	s := newTestSession(t, d, tools.NewRegistry(), nil)
	if s.Restore("nope") {
		t.Fatal("expected Restore to fail for an unknown label")
	}
}

func TestSnapshotLabelsListsAllSnapshots(t *testing.T) {
	d := &scriptedDriver{replies: []string{`{}`}}
	s := newTestSession(t, d, tools.NewRegistry(), nil)
	s.Snapshot("a")
	s.Snapshot("b")

	labels := s.SnapshotLabels()
	if len(labels) != 2 {
		t.Fatalf("expected 2 labels, got %d: %v", len(labels), labels)
	}
}
