package session

import (
	"context"

	"github.com/B-A-M-N/amnesic/internal/pager"
	"github.com/B-A-M-N/amnesic/internal/sidecar"
)

// sidecarArchiver adapts *sidecar.Sidecar to pager.Archiver. The Pager's
// contract is context-free (a page archive/recall is never itself
// cancellable mid-turn), so this adapter threads context.Background()
// through to the Sidecar's context-aware methods.
type sidecarArchiver struct {
	s *sidecar.Sidecar
}

func (a sidecarArchiver) Ingest(key, value, typ string, metadata map[string]any) error {
	return a.s.Ingest(context.Background(), key, value, typ, metadata)
}

func (a sidecarArchiver) QuerySemantic(query string, k int) ([]pager.SemanticHit, error) {
	hits, err := a.s.QuerySemantic(context.Background(), query, k)
	if err != nil {
		return nil, err
	}
	out := make([]pager.SemanticHit, len(hits))
	for i, h := range hits {
		out[i] = pager.SemanticHit{Key: h.Key, Content: h.Content, Score: h.Score}
	}
	return out, nil
}

func (a sidecarArchiver) QueryExact(key string) (string, bool) {
	return a.s.QueryExact(key)
}

func (a sidecarArchiver) Count() int {
	return a.s.Count()
}
