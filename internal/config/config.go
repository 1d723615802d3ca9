// Package config loads the kernel's root Config from YAML, mirroring the
// teacher's internal/config.Config/DefaultConfig/Load/Save shape. Fields
// cover every item in spec.md §6's "Configuration options" plus the
// ambient sections SPEC_FULL.md §0 adds (logging, persistence paths,
// embedding/driver provider selection).
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/B-A-M-N/amnesic/internal/driver"
	"github.com/B-A-M-N/amnesic/internal/embedding"
	"github.com/B-A-M-N/amnesic/internal/kernel"
	"github.com/B-A-M-N/amnesic/internal/klog"
	"github.com/B-A-M-N/amnesic/internal/session"
)

// Config is the root configuration document, loaded from a single YAML
// file (spec §6's Configuration options, plus ambient logging/persistence).
type Config struct {
	Mission  string   `yaml:"mission"`
	RootDirs []string `yaml:"root_dirs"`

	Model ModelConfig `yaml:"model"`

	L1CapacityTokens int            `yaml:"l1_capacity_tokens"`
	MaxTotalContext  int            `yaml:"max_total_context"`
	ContextMode      string         `yaml:"context_mode"` // diligent|creative|balanced
	ContextFloors    map[string]int `yaml:"context_floors,omitempty"`

	ElasticMode bool `yaml:"elastic_mode"`

	// EvictionStrategy names one of on_save|on_limit|manual (spec §6).
	// Only on_limit is implemented by the Pager's admission/eviction
	// algorithm (spec §2's single, invariant governCapacity pass run on
	// every tick and on every admission) — see DESIGN.md for why
	// on_save/manual are accepted here but not yet behaviorally distinct.
	EvictionStrategy string `yaml:"eviction_strategy"`

	DeterministicSeed int64 `yaml:"deterministic_seed,omitempty"`

	Strategy       string   `yaml:"strategy,omitempty"`
	ForbiddenTools []string `yaml:"forbidden_tools,omitempty"`
	Sandbox        bool     `yaml:"sandbox"`

	UseDefaultPolicies bool `yaml:"use_default_policies"`

	AuditProfile        string                         `yaml:"audit_profile"`
	CustomAuditProfiles map[string]kernel.AuditProfile `yaml:"custom_audit_profiles,omitempty"`
	SanitizationMode    bool                           `yaml:"sanitization_mode"`

	RecursionLimit int `yaml:"recursion_limit"`
	MaxRecentTurns int `yaml:"max_recent_turns"`

	CacheDir string `yaml:"cache_dir"`

	Logging   LoggingConfig   `yaml:"logging"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// ModelConfig selects the LLM driver, mirroring driver.Config's shape
// (provider one of ollama|openai|anthropic|gemini|local per spec §6).
type ModelConfig struct {
	Provider string `yaml:"provider"`
	Name     string `yaml:"name"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// LoggingConfig gates debug-level klog output, following the teacher's
// debug_mode flag in internal/config.LoggingConfig.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// EmbeddingConfig selects the embedding backend: "genai" for the
// network-backed adapter, "keyword" for the deterministic test fixture.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key,omitempty"`
	Model      string `yaml:"model,omitempty"`
	Dimensions int    `yaml:"dimensions"`
}

// DefaultConfig returns the session.py-equivalent defaults: balanced
// context mode, local driver, keyword embedding fallback.
func DefaultConfig(mission string) *Config {
	return &Config{
		Mission:            mission,
		RootDirs:           []string{"."},
		Model:              ModelConfig{Provider: "local", Name: "local-deterministic"},
		MaxTotalContext:    32768,
		ContextMode:        "balanced",
		ElasticMode:        false,
		EvictionStrategy:   "on_limit",
		UseDefaultPolicies: true,
		AuditProfile:       kernel.StrictAudit.Name,
		RecursionLimit:     25,
		MaxRecentTurns:     10,
		CacheDir:           ".amnesic_cache",
		Logging:            LoggingConfig{Debug: false},
		Embedding:          EmbeddingConfig{Provider: "keyword", Dimensions: 32},
	}
}

// Load reads path as YAML over DefaultConfig(""), so a partial file only
// overrides the fields it names. A missing file is not an error — it
// returns the defaults, matching the teacher's Load behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig("")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes c as YAML to path, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides checks config first, then falls back to environment
// variables for secrets, following internal/perception/client_factory.go's
// pattern: explicit config always wins, env only fills gaps.
func (c *Config) applyEnvOverrides() {
	if c.Model.APIKey == "" {
		for _, pair := range [][2]string{
			{"AMNESIC_ANTHROPIC_API_KEY", "anthropic"},
			{"AMNESIC_OPENAI_API_KEY", "openai"},
			{"AMNESIC_GEMINI_API_KEY", "gemini"},
		} {
			if key := os.Getenv(pair[0]); key != "" {
				c.Model.APIKey = key
				if c.Model.Provider == "" || c.Model.Provider == "local" {
					c.Model.Provider = pair[1]
				}
				break
			}
		}
	}
	if host := os.Getenv("AMNESIC_OLLAMA_HOST"); host != "" && c.Model.BaseURL == "" {
		c.Model.BaseURL = host
		if c.Model.Provider == "" || c.Model.Provider == "local" {
			c.Model.Provider = "ollama"
		}
	}
	if key := os.Getenv("AMNESIC_GENAI_API_KEY"); key != "" && c.Embedding.APIKey == "" {
		c.Embedding.APIKey = key
		if c.Embedding.Provider == "" || c.Embedding.Provider == "keyword" {
			c.Embedding.Provider = "genai"
		}
	}
}

// DriverConfig adapts Model into driver.Config for driver.Registry.New.
func (c *Config) DriverConfig() driver.Config {
	return driver.Config{
		Provider: c.Model.Provider,
		Model:    c.Model.Name,
		APIKey:   c.Model.APIKey,
		BaseURL:  c.Model.BaseURL,
	}
}

// ConfigureLogging installs klog's root logger per c.Logging.Debug. Call
// once at process startup before constructing any kernel subsystem.
func (c *Config) ConfigureLogging() {
	klog.Configure(c.Logging.Debug)
}

// EmbeddingEngine builds the configured EmbeddingEngine adapter: "genai"
// for the network-backed default, anything else (including "keyword" or
// unset) for the deterministic keyword fixture used offline and in tests.
func (c *Config) EmbeddingEngine(ctx context.Context) (embedding.EmbeddingEngine, error) {
	if c.Embedding.Provider == "genai" {
		dims := int32(c.Embedding.Dimensions)
		return embedding.NewGenAIEngine(ctx, c.Embedding.APIKey, c.Embedding.Model, dims)
	}
	dims := c.Embedding.Dimensions
	if dims <= 0 {
		dims = 32
	}
	return embedding.NewKeywordEngine(dims), nil
}

// SessionConfig translates this root Config into a session.Config, the
// boundary between the CLI-facing YAML document and the kernel's own
// in-process configuration struct.
func (c *Config) SessionConfig() session.Config {
	sc := session.DefaultConfig(c.Mission)
	sc.RootDirs = c.RootDirs
	sc.MaxTotalContext = c.MaxTotalContext
	sc.ContextMode = session.ContextMode(c.ContextMode)
	if c.ContextFloors != nil {
		sc.ContextFloors = c.ContextFloors
	}
	sc.ElasticMode = c.ElasticMode
	sc.L1CapacityTokens = c.L1CapacityTokens
	sc.ForbiddenTools = c.ForbiddenTools
	sc.Sandbox = c.Sandbox
	sc.AuditProfileName = c.AuditProfile
	sc.AuditProfiles = c.CustomAuditProfiles
	sc.SanitizationMode = c.SanitizationMode
	sc.UseDefaultPolicies = c.UseDefaultPolicies
	sc.RecursionLimit = c.RecursionLimit
	sc.MaxRecentTurns = c.MaxRecentTurns
	sc.Strategy = c.Strategy
	sc.CacheDir = c.CacheDir
	return sc
}
