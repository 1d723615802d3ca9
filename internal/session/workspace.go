package session

import (
	"context"
	"path/filepath"
	"strings"
)

// ScannedClass is one class/type extracted from a source file.
type ScannedClass struct {
	Name      string
	LineStart int
	LineEnd   int
	Methods   []string
}

// ScannedFunction is one top-level function/method extracted from a source file.
type ScannedFunction struct {
	Name      string
	Args      []string
	LineStart int
	LineEnd   int
	Docstring string
}

// ScannedFile is the structural map of one workspace file, per spec §6's
// workspace-scanner contract.
type ScannedFile struct {
	Path      string
	Classes   []ScannedClass
	Functions []ScannedFunction
	Imports   []string
}

// Scanner is the workspace external-collaborator the Session refreshes the
// substrate from every turn (grounded on ExecutionEnvironment.refresh_substrate
// and its StructuralMapper). A Session with no Scanner configured still
// runs, but ValidFiles is always empty and stage_context's disk-truth check
// relies entirely on whatever the caller pre-populates.
type Scanner interface {
	Scan(roots []string) ([]ScannedFile, error)
	SymbolLookup(ctx context.Context, file, symbolName string) (string, error)
}

// refreshWorkspace re-scans the configured roots and runs Physical GC:
// any non-SYS: L1 page whose backing file no longer exists on disk is
// demoted to L2, mirroring the manager node's garbage-collection pass.
func (s *Session) refreshWorkspace(ctx context.Context) ([]ScannedFile, error) {
	if s.scanner == nil {
		return nil, nil
	}

	fileMap, err := s.scanner.Scan(s.cfg.RootDirs)
	if err != nil {
		return nil, err
	}

	validBasenames := make(map[string]bool, len(fileMap))
	for _, f := range fileMap {
		validBasenames[filepath.Base(f.Path)] = true
	}

	for id, page := range s.pager.L1Snapshot() {
		if strings.Contains(id, "SYS:") {
			continue
		}
		clean := strings.TrimPrefix(id, "FILE:")
		if !validBasenames[filepath.Base(clean)] {
			s.pager.EvictToL2(id)
		}
		_ = page
	}

	s.lastFileMap = fileMap
	return fileMap, nil
}

// validFilePaths extracts the disk-truth path list the Gatekeeper's
// stage_context existence check compares proposals against.
func validFilePaths(fileMap []ScannedFile) []string {
	out := make([]string, len(fileMap))
	for i, f := range fileMap {
		out[i] = f.Path
	}
	return out
}

// buildMapSummary renders a compact disk-map listing for the Proposer's
// prompt, one path per line, capped to keep prompt size bounded.
func buildMapSummary(fileMap []ScannedFile) string {
	if len(fileMap) == 0 {
		return "None"
	}
	var sb strings.Builder
	for i, f := range fileMap {
		if i >= 200 {
			sb.WriteString("... (truncated)\n")
			break
		}
		sb.WriteString(f.Path)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
