package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/B-A-M-N/amnesic/internal/klog"
)

// Registry holds every registered tool and dispatches calls by name. It is
// safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]*Tool
	byCategory map[Category][]*Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]*Tool),
		byCategory: make(map[Category][]*Tool),
	}
}

// Register adds a tool. Returns ErrToolAlreadyRegistered for a duplicate name.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	if tool.Priority == 0 {
		tool.Priority = 50
	}

	r.tools[tool.Name] = tool
	r.byCategory[tool.Category] = append(r.byCategory[tool.Category], tool)
	klog.Debug(klog.CategoryTools, "registered tool %s (category=%s priority=%d)", tool.Name, tool.Category, tool.Priority)
	return nil
}

// MustRegister registers a tool, panicking on error. Intended for static
// registration at process startup only.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("tools: failed to register %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if unregistered.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// ByCategory returns every tool in a category, sorted by descending priority.
func (r *Registry) ByCategory(category Category) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tool, len(r.byCategory[category]))
	copy(out, r.byCategory[category])
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool by name with the given arguments. Returns
// ErrToolNotFound for an unregistered name, ErrMissingRequiredArg if a
// schema-required argument is absent.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*Result, error) {
	tool := r.Get(name)
	if tool == nil {
		err := fmt.Errorf("%w: %s", ErrToolNotFound, name)
		return &Result{ToolName: name, Err: err}, err
	}
	return r.executeTool(ctx, tool, args)
}

func (r *Registry) executeTool(ctx context.Context, tool *Tool, args map[string]any) (*Result, error) {
	start := time.Now()

	if err := validateArgs(tool, args); err != nil {
		return &Result{ToolName: tool.Name, Err: err, DurationMs: time.Since(start).Milliseconds()}, err
	}

	klog.Debug(klog.CategoryTools, "executing tool %s", tool.Name)
	output, err := tool.Execute(ctx, args)
	duration := time.Since(start)
	klog.Debug(klog.CategoryTools, "tool %s completed in %v (ok=%v)", tool.Name, duration, err == nil)

	return &Result{
		ToolName:   tool.Name,
		Output:     output,
		Err:        err,
		DurationMs: duration.Milliseconds(),
	}, err
}

func validateArgs(tool *Tool, args map[string]any) error {
	for _, required := range tool.Schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
		}
	}
	return nil
}
