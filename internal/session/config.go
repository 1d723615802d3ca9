package session

import (
	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/policy"
	"github.com/B-A-M-N/amnesic/internal/sidecar"
)

// ContextMode selects the context-floor preset used by elastic capacity
// recalculation, grounded on session.py's diligent/creative/balanced modes.
type ContextMode string

const (
	ContextDiligent ContextMode = "diligent"
	ContextCreative ContextMode = "creative"
	ContextBalanced ContextMode = "balanced"
)

// Config configures one Session. Zero value is not usable; use
// DefaultConfig and override fields as needed.
type Config struct {
	Mission  string
	RootDirs []string

	MaxTotalContext int
	ContextMode     ContextMode
	ContextFloors   map[string]int // "reasoning"/"output"/"overhead"; nil uses ContextMode's preset

	ElasticMode bool
	// L1CapacityTokens fixes the Pager's capacity directly when ElasticMode
	// is false, bypassing the context-floor math entirely (spec §6's
	// l1CapacityTokens option). Zero falls back to the floor-derived
	// capacity even in non-elastic mode.
	L1CapacityTokens int
	ForbiddenTools   []string
	Sandbox          bool

	AuditProfileName string
	AuditProfiles    map[string]kernel.AuditProfile // merged over kernel.BuiltinProfiles()
	SanitizationMode bool

	UseDefaultPolicies bool
	ExtraPolicies      []policy.Policy

	RecursionLimit int
	MaxRecentTurns int

	Strategy           string
	TerminalConditions []kernel.TerminalCondition

	CacheDir string // Sidecar ledger directory

	// SharedSidecar, if set, is used in place of constructing a new Sidecar
	// from CacheDir — the mechanism by which a Pipeline strings multiple
	// Sessions together over one knowledge store (spec §4.11). Left nil for
	// a standalone Session.
	SharedSidecar *sidecar.Sidecar
}

// DefaultConfig returns the session.py defaults: balanced context mode,
// 32768-token budget, recursion limit 25, no terminal-condition DSL (falls
// back to prose heuristics).
func DefaultConfig(mission string) Config {
	return Config{
		Mission:            mission,
		RootDirs:           []string{"."},
		MaxTotalContext:    32768,
		ContextMode:        ContextBalanced,
		AuditProfileName:   kernel.StrictAudit.Name,
		UseDefaultPolicies: true,
		RecursionLimit:     25,
		MaxRecentTurns:     10,
		CacheDir:           ".amnesic_cache",
	}
}

// presetContextFloors mirrors session.py's three context_mode presets.
func presetContextFloors(mode ContextMode) map[string]int {
	switch mode {
	case ContextDiligent:
		return map[string]int{"reasoning": 8192, "output": 4096, "overhead": 4096}
	case ContextCreative:
		return map[string]int{"reasoning": 1024, "output": 1024, "overhead": 2048}
	default:
		return map[string]int{"reasoning": 4096, "output": 2048, "overhead": 3072}
	}
}

// resolveContextFloors applies the configured or preset floors, shrinking
// them proportionally if they would exceed 100% of the context budget —
// the same safety fallback session.py applies for small windows.
func (c Config) resolveContextFloors() (floors map[string]int, effectiveL1Capacity int) {
	if !c.ElasticMode && c.L1CapacityTokens > 0 {
		return presetContextFloors(c.ContextMode), c.L1CapacityTokens
	}

	floors = c.ContextFloors
	if floors == nil {
		floors = presetContextFloors(c.ContextMode)
	} else {
		floors = map[string]int{"reasoning": floors["reasoning"], "output": floors["output"], "overhead": floors["overhead"]}
	}

	total := floors["reasoning"] + floors["output"] + floors["overhead"]
	numCtx := c.MaxTotalContext
	if numCtx <= 0 {
		numCtx = 32768
	}

	if total >= numCtx {
		scale := (float64(numCtx) * 0.8) / float64(total)
		floors = map[string]int{
			"reasoning": int(float64(floors["reasoning"]) * scale),
			"output":    int(float64(floors["output"]) * scale),
			"overhead":  int(float64(floors["overhead"]) * scale),
		}
		total = floors["reasoning"] + floors["output"] + floors["overhead"]
	}

	effectiveL1Capacity = numCtx - total
	return floors, effectiveL1Capacity
}
