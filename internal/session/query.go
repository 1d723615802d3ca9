package session

import (
	"context"
	"fmt"
	"strings"
)

// Query answers a question from the session's existing knowledge only —
// artifacts plus whatever is currently resident in L1 — without advancing
// the mission or invoking any tool. Grounded on session.py's query(),
// which hands the same context to a one-shot Worker; this port calls the
// driver directly since the Go kernel has no separate Worker abstraction.
func (s *Session) Query(ctx context.Context, question string) (string, error) {
	s.mu.Lock()
	var parts []string
	for _, a := range s.state.Artifacts {
		if a == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("ARTIFACT %s: %s", a.Identifier, a.Summary))
	}
	if active := s.pager.Render(); active != "" {
		parts = append(parts, "ACTIVE L1 RAM:\n"+active)
	}
	d := s.driver
	s.mu.Unlock()

	fullContext := strings.Join(parts, "\n\n")
	system := "Answer the question using ONLY the provided context. Do not invent facts. If the answer is not present, say so."
	user := fmt.Sprintf("CONTEXT:\n%s\n\nQUESTION: %s", fullContext, question)

	answer, err := d.GenerateRaw(ctx, system, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
