package session

import (
	"fmt"

	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/pager"
)

// snapshotRecord is a point-in-time copy of the mutable state Snapshot/
// Restore round-trip: the artifact ledger and the Pager's L1 residency,
// grounded on session.py's snapshot_state/restore_state.
type snapshotRecord struct {
	artifacts []*kernel.Artifact
	l1Pages   map[string]pager.Page
}

func cloneArtifacts(in []*kernel.Artifact) []*kernel.Artifact {
	out := make([]*kernel.Artifact, 0, len(in))
	for _, a := range in {
		if a == nil {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// Snapshot captures the current artifacts and L1 pages under label,
// overwriting any prior snapshot with the same label.
func (s *Session) Snapshot(label string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshots == nil {
		s.snapshots = make(map[string]snapshotRecord)
	}
	s.snapshots[label] = snapshotRecord{
		artifacts: cloneArtifacts(s.state.Artifacts),
		l1Pages:   s.pager.L1Snapshot(),
	}
	return label
}

// Restore rolls artifacts and L1 content back to a prior Snapshot, clearing
// decision history (a restored session starts a fresh audit trail) and
// tagging the hypothesis so the next turn's prompt reflects the rollback.
// Returns false if label names no known snapshot.
func (s *Session) Restore(label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[label]
	if !ok {
		return false
	}

	s.state.Artifacts = cloneArtifacts(snap.artifacts)
	s.pager.RestoreL1(snap.l1Pages)
	s.state.DecisionHistory = nil
	s.state.Hypothesis = fmt.Sprintf("RESTORED: %s", label)
	return true
}

// SnapshotLabels returns every label currently held, for CLI introspection.
func (s *Session) SnapshotLabels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	labels := make([]string, 0, len(s.snapshots))
	for label := range s.snapshots {
		labels = append(labels, label)
	}
	return labels
}
