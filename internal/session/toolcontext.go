package session

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/driver"
	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/pager"
	"github.com/B-A-M-N/amnesic/internal/sidecar"
)

// sensitivePathFragments are never readable/writable through SafePath,
// regardless of RootDirs, mirroring session.py's _safe_path denylist.
var sensitivePathFragments = []string{".env", ".git", ".gemini"}

// ToolContext exposes the narrow slice of Session internals that
// internal/tools/builtin's reference tool implementations need. It is
// captured once — typically right after session.New, before the first
// Step — and handed to builtin.Register. Its Pager/Sidecar/FrameworkState
// pointers are fixed for the Session's lifetime: Pager and Sidecar guard
// their own state with their own locks, and FrameworkState is only ever
// mutated from inside the Session's own single-threaded turn loop (the
// same goroutine that runs tool execution), so no additional locking is
// needed here.
type ToolContext struct {
	sess *Session
}

// ToolContext returns the tool-facing capability handle for s.
func (s *Session) ToolContext() *ToolContext { return &ToolContext{sess: s} }

// State returns the session's FrameworkState for direct mutation by a tool.
func (tc *ToolContext) State() *kernel.FrameworkState { return tc.sess.state }

// Pager returns the session's Pager.
func (tc *ToolContext) Pager() *pager.Pager { return tc.sess.pager }

// Sidecar returns the session's Sidecar (may be nil in degraded configs,
// though Session.New always constructs or receives one today).
func (tc *ToolContext) Sidecar() *sidecar.Sidecar { return tc.sess.sidecar }

// Driver returns the session's model collaborator, for tools (save_artifact,
// compare_files, edit_file) that delegate sub-tasks to a Worker round-trip.
func (tc *ToolContext) Driver() driver.Driver { return tc.sess.driver }

// Scanner returns the session's workspace Scanner, or nil if none was
// configured. Used by stage_context's "?query=symbol" contextual grep and
// edit_file's AST-based auto-discovery.
func (tc *ToolContext) Scanner() Scanner { return tc.sess.scanner }

// RootDirs returns the session's configured workspace roots.
func (tc *ToolContext) RootDirs() []string { return tc.sess.cfg.RootDirs }

// Sandbox reports whether file writes should land in the in-memory shadow
// filesystem instead of the real disk.
func (tc *ToolContext) Sandbox() bool { return tc.sess.cfg.Sandbox }

// Profiles returns the session's name -> AuditProfile map (builtins plus
// any custom profiles), for set_audit_policy's validation/lookup.
func (tc *ToolContext) Profiles() map[string]kernel.AuditProfile { return tc.sess.profiles }

// LastFileMap returns the most recent workspace scan, for edit_file's
// basename/symbol auto-discovery fallback.
func (tc *ToolContext) LastFileMap() []ScannedFile { return tc.sess.lastFileMap }

// SafePath resolves path against RootDirs, rejecting traversal outside
// every configured root and any path touching a sensitive fragment
// (.env/.git/.gemini), grounded on session.py's _safe_path.
func (tc *ToolContext) SafePath(path string) (string, error) {
	for _, frag := range sensitivePathFragments {
		if strings.Contains(path, frag) {
			return "", kernel.Newf(kernel.SandboxViolation, "tools.SafePath", "security blocked: %s", path)
		}
	}

	roots := tc.sess.cfg.RootDirs
	if len(roots) == 0 {
		roots = []string{"."}
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return "", kernel.Wrap(kernel.IOFailure, "tools.SafePath", err)
	}
	if pathWithinAny(target, roots) {
		return target, nil
	}

	// filepath.Join does not special-case an absolute second argument, so
	// joining an already-absolute (and already rejected) path under a root
	// would always yield a string prefixed by that root. Only relative
	// paths are eligible for the root-join fallback.
	if !filepath.IsAbs(path) {
		for _, rd := range roots {
			joined, err := filepath.Abs(filepath.Join(rd, path))
			if err != nil {
				continue
			}
			if pathWithinAny(joined, []string{rd}) {
				return joined, nil
			}
		}
	}

	return "", kernel.Newf(kernel.SandboxViolation, "tools.SafePath", "path traversal blocked: %s", path)
}

func pathWithinAny(target string, roots []string) bool {
	for _, rd := range roots {
		rdAbs, err := filepath.Abs(rd)
		if err != nil {
			continue
		}
		if target == rdAbs || strings.HasPrefix(target, rdAbs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ShadowRead returns sandboxed content previously written via ShadowWrite,
// falling back to the real filesystem when sandbox mode is off or the
// path was never shadow-written.
func (tc *ToolContext) ShadowRead(safePath string) (string, bool) {
	if tc.sess.cfg.Sandbox {
		if content, ok := tc.sess.shadowFS[safePath]; ok {
			return content, true
		}
	}
	data, err := os.ReadFile(safePath)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// ShadowWrite records content for safePath, either into the in-memory
// shadow filesystem (sandbox mode) or the real disk.
func (tc *ToolContext) ShadowWrite(safePath, content string) error {
	if tc.sess.cfg.Sandbox {
		if tc.sess.shadowFS == nil {
			tc.sess.shadowFS = make(map[string]string)
		}
		tc.sess.shadowFS[safePath] = content
		return nil
	}
	return os.WriteFile(safePath, []byte(content), 0o644)
}
