// Command amnesic runs one agent session: a mission string drives the
// proposer -> gatekeeper -> effector loop (spec §6's CLI surface) until
// the session halts or the configured recursion limit is reached.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/B-A-M-N/amnesic/internal/config"
	"github.com/B-A-M-N/amnesic/internal/driver"
	"github.com/B-A-M-N/amnesic/internal/klog"
	"github.com/B-A-M-N/amnesic/internal/scanner"
	"github.com/B-A-M-N/amnesic/internal/session"
	"github.com/B-A-M-N/amnesic/internal/tools/builtin"
)

var (
	flagConfigFile string
	flagRoot       []string
	flagModel      string
	flagProvider   string
	flagTurns      int
	flagCacheDir   string
	flagDebug      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "amnesic <mission>",
	Short:        "amnesic runs a stateful, tool-using agent session against a mission",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runMission,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfigFile, "config", "", "path to a YAML config file (defaults applied over anything unset)")
	rootCmd.Flags().StringSliceVar(&flagRoot, "root", nil, "workspace root directory (repeatable); defaults to the current directory")
	rootCmd.Flags().StringVar(&flagModel, "model", "", "model name to request from the driver")
	rootCmd.Flags().StringVar(&flagProvider, "provider", "", "driver provider: ollama|openai|anthropic|gemini|local")
	rootCmd.Flags().IntVar(&flagTurns, "turns", 0, "recursion limit override (0 keeps the config/default value)")
	rootCmd.Flags().StringVar(&flagCacheDir, "cache-dir", "", "Sidecar persistence directory override")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug-level logging")
}

// runMission loads configuration, wires the kernel's external
// collaborators (driver, embedding engine, scanner), registers the
// builtin Tool ABI, and drives the session to completion.
func runMission(cmd *cobra.Command, args []string) error {
	mission := args[0]

	// config.Load falls back to DefaultConfig and still applies
	// environment-variable overrides (API keys, Ollama host) when
	// flagConfigFile is empty or names a missing file, so this is safe
	// to call unconditionally rather than branching on flagConfigFile.
	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Mission = mission

	if len(flagRoot) > 0 {
		cfg.RootDirs = flagRoot
	}
	if flagModel != "" {
		cfg.Model.Name = flagModel
	}
	if flagProvider != "" {
		cfg.Model.Provider = flagProvider
	}
	if flagTurns > 0 {
		cfg.RecursionLimit = flagTurns
	}
	if flagCacheDir != "" {
		cfg.CacheDir = flagCacheDir
	}
	if flagDebug {
		cfg.Logging.Debug = true
	}

	cfg.ConfigureLogging()
	defer klog.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	embEngine, err := cfg.EmbeddingEngine(ctx)
	if err != nil {
		return fmt.Errorf("build embedding engine: %w", err)
	}

	driverRegistry := driver.NewRegistry()
	drv, err := driverRegistry.New(cfg.DriverConfig())
	if err != nil {
		return fmt.Errorf("build driver: %w", err)
	}

	sess, err := session.New(cfg.SessionConfig(), drv, embEngine, nil, scanner.New())
	if err != nil {
		return fmt.Errorf("construct session: %w", err)
	}
	if err := builtin.Register(sess.Tools(), sess.ToolContext()); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	klog.Info(klog.CategorySession, "mission: %s", mission)
	if err := sess.Run(ctx); err != nil {
		return fmt.Errorf("session halted abnormally: %w", err)
	}

	state := sess.State()
	fmt.Printf("hypothesis: %s\n", state.Hypothesis)
	fmt.Printf("turns: %d\n", len(state.DecisionHistory))
	return nil
}
