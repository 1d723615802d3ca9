// Package session implements the kernel's execution loop: an explicit,
// framework-free state machine cycling proposer -> gatekeeper -> executor,
// grounded on amnesic/core/session.py and amnesic/core/graph_engine.py's
// LangGraph node wiring, in the spirit of the teacher's "no shards, no
// spawn, no factories, clean" Executor.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/B-A-M-N/amnesic/internal/driver"
	"github.com/B-A-M-N/amnesic/internal/embedding"
	"github.com/B-A-M-N/amnesic/internal/gatekeeper"
	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/klog"
	"github.com/B-A-M-N/amnesic/internal/pager"
	"github.com/B-A-M-N/amnesic/internal/policy"
	"github.com/B-A-M-N/amnesic/internal/policy/builtin"
	"github.com/B-A-M-N/amnesic/internal/proposer"
	"github.com/B-A-M-N/amnesic/internal/sidecar"
	"github.com/B-A-M-N/amnesic/internal/tokenizer"
	"github.com/B-A-M-N/amnesic/internal/tools"
)

// Session owns every kernel subsystem for one mission run: Pager, Sidecar,
// Gatekeeper, Policy Engine, Tool Registry, and the Proposer. Ownership is
// explicit (spec §9 Design Note) — nothing here is a shared global.
type Session struct {
	mu sync.Mutex

	cfg   Config
	state *kernel.FrameworkState

	pager      *pager.Pager
	sidecar    *sidecar.Sidecar
	gatekeeper *gatekeeper.Gatekeeper
	policies   *policy.Engine
	tools      *tools.Registry
	proposer   *proposer.Proposer

	scanner Scanner
	driver  driver.Driver

	profiles map[string]kernel.AuditProfile

	initialL1Capacity int
	lastFileMap       []ScannedFile
	snapshots         map[string]snapshotRecord

	// shadowFS is the in-memory overlay write_file/edit_file use instead
	// of the real disk when Config.Sandbox is true, grounded on
	// session.py's self.shadow_fs. Only ever touched from within the
	// session's single-threaded turn loop, so it needs no lock of its own.
	shadowFS map[string]string
}

// New constructs a Session. toolRegistry is the caller-assembled Tool ABI
// (internal/tools/builtin ships reference implementations); scanner may be
// nil if the caller has no workspace to enumerate.
func New(cfg Config, drv driver.Driver, embEngine embedding.EmbeddingEngine, toolRegistry *tools.Registry, scanner Scanner) (*Session, error) {
	if cfg.RecursionLimit <= 0 {
		cfg.RecursionLimit = 25
	}
	if cfg.MaxRecentTurns <= 0 {
		cfg.MaxRecentTurns = 10
	}
	if cfg.AuditProfileName == "" {
		cfg.AuditProfileName = kernel.StrictAudit.Name
	}

	_, effectiveL1 := cfg.resolveContextFloors()

	sc := cfg.SharedSidecar
	if sc == nil {
		var err error
		sc, err = sidecar.New(cfg.CacheDir, embEngine)
		if err != nil {
			return nil, kernel.Wrap(kernel.IOFailure, "session.New", err)
		}
	}

	p := pager.New(effectiveL1, sidecarArchiver{s: sc})
	p.Pin("SYS:MISSION", fmt.Sprintf("MISSION: %s", cfg.Mission))

	profiles := kernel.BuiltinProfiles()
	for name, prof := range cfg.AuditProfiles {
		profiles[name] = prof
	}

	policies := make([]policy.Policy, 0, 6+len(cfg.ExtraPolicies))
	if cfg.UseDefaultPolicies {
		policies = append(policies,
			builtin.StagnationBreaker{},
			builtin.ProgressLock{},
			builtin.L1ViolationHandler{},
			builtin.CriticalErrorHalt{},
			builtin.CompletionPolicy{},
			builtin.AutoHalt{},
		)
	}
	policies = append(policies, cfg.ExtraPolicies...)

	activePolicyNames := make([]string, len(policies))
	for i, pol := range policies {
		activePolicyNames[i] = pol.Name()
	}

	state := &kernel.FrameworkState{
		Mission:          cfg.Mission,
		Hypothesis:       "Initial Assessment",
		HardConstraints:  []string{"Local Only"},
		OpenUnknowns:     []string{"Context Structure"},
		Confidence:       0.5,
		StrategyTag:      cfg.Strategy,
		ElasticMode:      cfg.ElasticMode,
		AuditProfileName: cfg.AuditProfileName,
		ActivePolicies:   activePolicyNames,
		SanitizationMode: cfg.SanitizationMode,
		TerminalConditions: cfg.TerminalConditions,
	}

	for key, value := range sc.All() {
		if key == "TOTAL" || key == "VERIFICATION" {
			continue
		}
		state.Artifacts = append(state.Artifacts, &kernel.Artifact{
			Identifier: key,
			Type:       kernel.ArtifactConfig,
			Summary:    value,
			Status:     kernel.StatusVerifiedInvariant,
		})
	}

	if toolRegistry == nil {
		toolRegistry = tools.NewRegistry()
	}

	s := &Session{
		cfg:               cfg,
		state:             state,
		pager:             p,
		sidecar:           sc,
		gatekeeper:        gatekeeper.New(embEngine),
		policies:          policy.NewEngine(policies...),
		tools:             toolRegistry,
		proposer:          proposer.New(drv, 2),
		scanner:           scanner,
		driver:            drv,
		profiles:          profiles,
		initialL1Capacity: effectiveL1,
	}
	return s, nil
}

// State returns the session's FrameworkState. Callers must not mutate the
// returned pointer's slices directly; use the tool ABI or policy reactions.
func (s *Session) State() *kernel.FrameworkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pager exposes the session's Pager, e.g. for a CLI's status display.
func (s *Session) Pager() *pager.Pager { return s.pager }

// Sidecar exposes the session's Sidecar.
func (s *Session) Sidecar() *sidecar.Sidecar { return s.sidecar }

// Tools exposes the session's Tool Registry, e.g. for a caller that wants
// to call builtin.Register(sess.Tools(), sess.ToolContext()) after
// construction but before the first Step.
func (s *Session) Tools() *tools.Registry { return s.tools }

func (s *Session) currentProfile() kernel.AuditProfile {
	if prof, ok := s.profiles[s.state.AuditProfileName]; ok {
		return prof
	}
	return kernel.StrictAudit
}

// Run drives the proposer -> gatekeeper -> executor loop until a halt
// verdict, a halt_and_ask proposal, or the configured recursion limit.
func (s *Session) Run(ctx context.Context) error {
	for turn := 0; turn < s.cfg.RecursionLimit; turn++ {
		halted, err := s.Step(ctx)
		if err != nil {
			return err
		}
		if halted {
			return nil
		}
	}
	return kernel.Newf(kernel.Cancelled, "session.Run", "recursion limit %d reached without halting", s.cfg.RecursionLimit)
}

// Step runs exactly one turn of the loop and reports whether the session
// has halted (either by Gatekeeper HALT verdict or a passed halt_and_ask).
func (s *Session) Step(ctx context.Context) (halted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pager.Tick()

	fileMap, err := s.refreshWorkspace(ctx)
	if err != nil {
		klog.Warn(klog.CategorySession, "workspace refresh failed: %v", err)
	}
	s.syncSidecarArtifactsLocked()
	s.recalculatePagerCapacityLocked(fileMap)

	activePages := s.pager.L1IDs()

	proposal, fromPolicy := s.policies.Propose(s.state, activePages)
	if !fromPolicy {
		proposal, err = s.proposer.Propose(ctx, proposer.Request{
			State:          s.state.Snapshot(),
			L1Files:        l1DisplayNames(s.pager),
			ActiveContent:  s.pager.Render(),
			ForbiddenTools: s.cfg.ForbiddenTools,
			MapSummary:     buildMapSummary(fileMap),
			MaxRecentTurns: s.cfg.MaxRecentTurns,
		})
		if err != nil {
			return false, err
		}
	}

	turn := len(s.state.DecisionHistory) + 1
	klog.Info(klog.CategorySession, "[turn %d] proposer: %s(%s)", turn, proposal.ToolCall, proposal.Target)

	verdict := s.gatekeeper.Evaluate(ctx, &gatekeeper.Request{
		Proposal:       proposal,
		State:          s.state.Snapshot(),
		ValidFiles:     validFilePaths(fileMap),
		ActivePages:    activePages,
		ActiveContext:  s.pager.Render(),
		ForbiddenTools: s.cfg.ForbiddenTools,
		CurrentTurn:    turn,
		Profile:        s.currentProfile(),
	})

	klog.Debug(klog.CategorySession, "[turn %d] gatekeeper: %s (%s)", turn, verdict.Kind, verdict.Rationale)

	record := kernel.DecisionRecord{
		Turn:       turn,
		ToolCall:   proposal.ToolCall,
		Target:     proposal.Target,
		Rationale:  verdict.Rationale,
		Verdict:    verdict.Kind,
		PolicyName: proposal.PolicyName,
		Timestamp:  time.Now(),
	}

	switch verdict.Kind {
	case kernel.VerdictHalt:
		record.ExecutionResult = "NOT_EXECUTED"
		s.state.DecisionHistory = append(s.state.DecisionHistory, record)
		return true, nil

	case kernel.VerdictPass:
		if proposal.ToolCall == "halt_and_ask" {
			record.ExecutionResult = "SUCCESS"
			s.state.DecisionHistory = append(s.state.DecisionHistory, record)
			return true, nil
		}
		s.executeLocked(ctx, proposal, &record)
		s.state.DecisionHistory = append(s.state.DecisionHistory, record)
		return false, nil

	default: // REJECT
		policyTag := ""
		if proposal.PolicyName != "" {
			policyTag = fmt.Sprintf("[%s] ", proposal.PolicyName)
		}
		s.state.LastActionFeedback = fmt.Sprintf("%sREJECTED: %s", policyTag, verdict.Rationale)
		record.ExecutionResult = "NOT_EXECUTED"
		s.state.DecisionHistory = append(s.state.DecisionHistory, record)
		return false, nil
	}
}

// executeLocked runs a PASSed, non-halt proposal through the Tool Registry
// and records the outcome onto record and LastActionFeedback.
func (s *Session) executeLocked(ctx context.Context, proposal *kernel.Proposal, record *kernel.DecisionRecord) {
	s.state.LastActionFeedback = ""
	klog.Info(klog.CategorySession, "executor: %s", proposal.ToolCall)

	result, err := s.tools.Execute(ctx, proposal.ToolCall, map[string]any{"target": proposal.Target})
	if err != nil {
		klog.Warn(klog.CategorySession, "executor: %s failed: %v", proposal.ToolCall, err)
		record.ExecutionResult = fmt.Sprintf("ERROR: %v", err)
		s.state.LastActionFeedback = fmt.Sprintf("ERROR: %v", err)
		return
	}

	record.ExecutionResult = "SUCCESS"
	if s.state.LastActionFeedback == "" {
		s.state.LastActionFeedback = fmt.Sprintf("SUCCESS: %s", proposal.ToolCall)
	}
	_ = result
}

// syncSidecarArtifactsLocked merges any shared-knowledge keys ingested
// since session start into the framework state's artifacts, so every
// session in a swarm converges on the same Sidecar-backed facts.
func (s *Session) syncSidecarArtifactsLocked() {
	if s.sidecar == nil {
		return
	}
	for key, value := range s.sidecar.All() {
		if s.state.FindArtifact(key) != nil {
			continue
		}
		s.state.Artifacts = append(s.state.Artifacts, &kernel.Artifact{
			Identifier: key,
			Type:       kernel.ArtifactConfig,
			Summary:    value,
			Status:     kernel.StatusVerifiedInvariant,
		})
	}
}

// recalculatePagerCapacityLocked re-estimates prompt overhead with an
// empty-content dummy prompt and resizes the Pager to keep the configured
// reasoning/output floors intact, applying the change only when it moves
// capacity by more than 10 tokens (spec §9 Open Question decision). A
// no-op unless ElasticMode is enabled — non-elastic sessions keep the
// fixed capacity they were constructed with (spec §4.3's "if the
// elastic-context feature is enabled").
func (s *Session) recalculatePagerCapacityLocked(fileMap []ScannedFile) {
	if !s.cfg.ElasticMode {
		return
	}
	floors, _ := s.cfg.resolveContextFloors()
	builder := proposer.PromptBuilder{}
	counter := tokenizer.New(nil)

	historyBlock := "[DECISION HISTORY]\n" + proposer.CompressHistory(s.state.DecisionHistory, s.cfg.MaxRecentTurns)
	dummySystem := builder.BuildSystemPrompt(s.state)
	dummyUser := builder.BuildUserPrompt(s.state, l1DisplayNames(s.pager), "", s.cfg.ForbiddenTools, buildMapSummary(fileMap), historyBlock)

	overhead := counter.CountTokens(dummySystem) + counter.CountTokens(dummyUser)

	reasoningFloor := floors["reasoning"]
	outputFloor := floors["output"]
	if s.cfg.ContextMode == ContextCreative {
		reasoningFloor = int(float64(reasoningFloor) * 0.5)
		outputFloor = int(float64(outputFloor) * 0.5)
	}

	reserved := overhead + reasoningFloor + outputFloor
	newCapacity := s.cfg.MaxTotalContext - reserved
	if newCapacity > s.initialL1Capacity {
		newCapacity = s.initialL1Capacity
	}
	if newCapacity < 100 {
		newCapacity = 100
	}

	current := s.pager.Capacity()
	delta := newCapacity - current
	if delta < 0 {
		delta = -delta
	}
	if delta > 10 {
		klog.Debug(klog.CategorySession, "elastic pager capacity %d -> %d (overhead=%d)", current, newCapacity, overhead)
		s.pager.SetCapacity(newCapacity)
	}
}

// l1DisplayNames renders the Pager's L1 content as a page-name list, with a
// "(PINNED)" suffix for pinned pages — the same display format
// session.py's recalculate_pager_capacity builds for the Manager prompt.
func l1DisplayNames(p *pager.Pager) []string {
	snap := p.L1Snapshot()
	names := make([]string, 0, len(snap))
	for id, page := range snap {
		name := id
		for _, prefix := range []string{"FILE:", "SYS:", "ARTIFACT:"} {
			if len(name) > len(prefix) && name[:len(prefix)] == prefix {
				name = name[len(prefix):]
				break
			}
		}
		if page.Pinned {
			name += " (PINNED)"
		}
		names = append(names, name)
	}
	return names
}
