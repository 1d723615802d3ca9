// Package pipeline composes multiple Sessions sharing one Sidecar into a
// "Scout -> Map -> Reduce" workflow, grounded on amnesic/core/pipeline.py's
// AmnesicPipeline/PipelineStep/MapStep.
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/B-A-M-N/amnesic/internal/driver"
	"github.com/B-A-M-N/amnesic/internal/embedding"
	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/klog"
	"github.com/B-A-M-N/amnesic/internal/session"
	"github.com/B-A-M-N/amnesic/internal/sidecar"
	"github.com/B-A-M-N/amnesic/internal/tools"

	"golang.org/x/sync/errgroup"
)

// Step is a single linear task: a mission string plus audit profile and
// forbidden-tool overrides, run as one Session.
type Step struct {
	Name           string
	Mission        string
	Profile        string
	ForbiddenTools []string
}

// MapStep runs a mission template once per item in a comma/newline
// delimited artifact, substituting "{item}" into Mission.
type MapStep struct {
	Step
	InputArtifact string
}

// splitItemsPattern mirrors pipeline.py's re.split(r'[,\n]', ...).
var splitItemsPattern = regexp.MustCompile(`[,\n]`)

// SessionFactory builds a fresh, unstarted Session for one pipeline step,
// wired to the given shared Sidecar. Pipeline calls it once per Step and
// once per MapStep item.
type SessionFactory func(cfg session.Config) (*session.Session, error)

// Pipeline is the meta-controller stringing Sessions together over one
// shared Sidecar (spec §4.11). Sub-sessions never share a Pager, Gatekeeper,
// or Policy Engine — only Sidecar knowledge crosses step boundaries.
type Pipeline struct {
	Sidecar *sidecar.Sidecar

	// Parallel enables concurrent fan-out of a MapStep's per-item
	// sub-sessions via a bounded errgroup. Sequential by default, matching
	// pipeline.py's plain for loop (spec §5); this is an explicit opt-in
	// extension the Python reference does not have.
	Parallel bool
	// MaxConcurrency bounds simultaneous sub-sessions when Parallel is
	// true. Zero or negative means unbounded (one goroutine per item).
	MaxConcurrency int

	DefaultRecursionLimit int

	steps   []any // Step or MapStep
	factory SessionFactory
}

// RegisterTools installs a session's Tool ABI against its own ToolContext.
// It has the exact shape of builtin.Register, so callers pass that function
// directly; Pipeline invokes it once per sub-session rather than sharing one
// Registry, since builtin tool closures are bound to the ToolContext they
// were registered against (see internal/tools/builtin).
type RegisterTools func(reg *tools.Registry, tc *session.ToolContext) error

// New returns a Pipeline backed by a fresh Sidecar rooted at cacheDir.
// registerTools, if non-nil, is called once per sub-session (mirroring
// session.py's per-Session _setup_default_tools) rather than sharing a
// single Registry across every step's Session.
func New(cacheDir string, embEngine embedding.EmbeddingEngine, drv driver.Driver, registerTools RegisterTools, scanner session.Scanner) (*Pipeline, error) {
	sc, err := sidecar.New(cacheDir, embEngine)
	if err != nil {
		return nil, kernel.Wrap(kernel.IOFailure, "pipeline.New", err)
	}

	p := &Pipeline{
		Sidecar:               sc,
		DefaultRecursionLimit: 50,
	}
	p.factory = func(cfg session.Config) (*session.Session, error) {
		cfg.SharedSidecar = sc
		s, err := session.New(cfg, drv, embEngine, nil, scanner)
		if err != nil {
			return nil, err
		}
		if registerTools != nil {
			if err := registerTools(s.Tools(), s.ToolContext()); err != nil {
				return nil, kernel.Wrap(kernel.IOFailure, "pipeline.New", err)
			}
		}
		return s, nil
	}
	return p, nil
}

// AddStep appends a linear step.
func (p *Pipeline) AddStep(name, mission, profile string, forbiddenTools []string) *Pipeline {
	p.steps = append(p.steps, Step{Name: name, Mission: mission, Profile: profile, ForbiddenTools: forbiddenTools})
	return p
}

// AddMapStep appends a map step: one sub-session per comma/newline item of
// inputArtifact, with "{item}" substituted into missionTemplate.
func (p *Pipeline) AddMapStep(name, inputArtifact, missionTemplate, profile string, forbiddenTools []string) *Pipeline {
	p.steps = append(p.steps, MapStep{
		Step:          Step{Name: name, Mission: missionTemplate, Profile: profile, ForbiddenTools: forbiddenTools},
		InputArtifact: inputArtifact,
	})
	return p
}

// Run executes every step in order. A step's error aborts the pipeline
// (spec §4.11: "Errors in a step abort the pipeline").
func (p *Pipeline) Run(ctx context.Context) error {
	klog.Info(klog.CategoryPipeline, "pipeline starting: %d steps", len(p.steps))

	for _, raw := range p.steps {
		switch step := raw.(type) {
		case MapStep:
			klog.Info(klog.CategoryPipeline, ">>> running map step %q", step.Name)
			if err := p.runMapStep(ctx, step); err != nil {
				return kernel.Wrap(kernel.Cancelled, fmt.Sprintf("pipeline.Run[%s]", step.Name), err)
			}
		case Step:
			klog.Info(klog.CategoryPipeline, ">>> running step %q", step.Name)
			if err := p.runSingleStep(ctx, step); err != nil {
				return kernel.Wrap(kernel.Cancelled, fmt.Sprintf("pipeline.Run[%s]", step.Name), err)
			}
		}
	}

	klog.Info(klog.CategoryPipeline, "pipeline complete")
	return nil
}

func (p *Pipeline) sessionConfig(step Step) session.Config {
	cfg := session.DefaultConfig(step.Mission)
	cfg.ForbiddenTools = step.ForbiddenTools
	cfg.RecursionLimit = p.DefaultRecursionLimit
	if step.Profile != "" {
		cfg.AuditProfileName = step.Profile
	}
	return cfg
}

func (p *Pipeline) runSingleStep(ctx context.Context, step Step) error {
	s, err := p.factory(p.sessionConfig(step))
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

// runMapStep fans a MapStep out over every item parsed from its input
// artifact. Missing or empty input is a skip, not an error, matching
// pipeline.py's SKIPPING MAP STEP behavior.
func (p *Pipeline) runMapStep(ctx context.Context, step MapStep) error {
	raw, ok := p.Sidecar.QueryExact(step.InputArtifact)
	if !ok || strings.TrimSpace(raw) == "" {
		klog.Warn(klog.CategoryPipeline, "skipping map step %q: artifact %q not found", step.Name, step.InputArtifact)
		return nil
	}

	items := parseItems(raw)
	klog.Info(klog.CategoryPipeline, "map step %q: %d items from %q", step.Name, len(items), step.InputArtifact)

	if !p.Parallel {
		for i, item := range items {
			klog.Info(klog.CategoryPipeline, "  worker %d/%d: %q", i+1, len(items), item)
			if err := p.runMapItem(ctx, step, item); err != nil {
				return err
			}
		}
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if p.MaxConcurrency > 0 {
		eg.SetLimit(p.MaxConcurrency)
	}
	for i, item := range items {
		i, item := i, item
		eg.Go(func() error {
			klog.Info(klog.CategoryPipeline, "  worker %d/%d: %q", i+1, len(items), item)
			return p.runMapItem(egCtx, step, item)
		})
	}
	return eg.Wait()
}

func (p *Pipeline) runMapItem(ctx context.Context, step MapStep, item string) error {
	mission := step.Mission
	if strings.Contains(mission, "{item}") {
		mission = strings.ReplaceAll(mission, "{item}", item)
	} else {
		mission = fmt.Sprintf("%s (Target: %s)", mission, item)
	}

	itemStep := step.Step
	itemStep.Mission = mission
	s, err := p.factory(p.sessionConfig(itemStep))
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

// parseItems mirrors pipeline.py's bracket/quote-stripping comma-or-newline
// split of a Sidecar artifact's raw text into individual map-step items.
func parseItems(raw string) []string {
	cleaned := raw
	for _, ch := range []string{"[", "]", `"`, "'"} {
		cleaned = strings.ReplaceAll(cleaned, ch, "")
	}

	parts := splitItemsPattern.Split(cleaned, -1)
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if t := strings.TrimSpace(part); t != "" {
			items = append(items, t)
		}
	}
	return items
}
