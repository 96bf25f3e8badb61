// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pageshot-cli/internal/browser"
	"github.com/xkilldash9x/pageshot-cli/internal/capture"
	"github.com/xkilldash9x/pageshot-cli/internal/config"
	"github.com/xkilldash9x/pageshot-cli/internal/consent"
	"github.com/xkilldash9x/pageshot-cli/internal/observability"
)

// contextKey namespaces values this package stores on the command context.
type contextKey string

// configKey carries the validated *config.Config from PersistentPreRunE to RunE.
const configKey contextKey = "config"

// shutdownGracePeriod bounds the browser teardown after a run, even when the
// run itself was cancelled.
const shutdownGracePeriod = 15 * time.Second

// captureEngine is what the capture run needs from the browser engine.
// *browser.Engine satisfies it; tests swap launchEngine to avoid a real
// chromium.
type captureEngine interface {
	capture.Browser
	Shutdown(ctx context.Context) error
}

var launchEngine = func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (captureEngine, error) {
	engine, err := browser.Launch(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// NewRootCommand builds a fresh root command. Every invocation gets its own
// flag set and viper instance so runs never leak state into each other.
func NewRootCommand() *cobra.Command {
	var (
		cfgFile   string
		targetURL string
	)

	rootCmd := &cobra.Command{
		Use:   "pageshot",
		Short: "Pageshot captures full-page desktop and mobile screenshots of a website.",
		Long: `Pageshot navigates to a website with a real headless browser and captures
full-page screenshots for a desktop and a mobile viewport. Before capturing,
it resolves cookie consent banners: click a known accept button, fall back to
injecting pre-consent cookies, and finally hide known banner containers so
the page content is unobstructed.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// Bind flags so they override file and environment values.
			if err := bindFlags(cmd, v); err != nil {
				return err
			}

			cfg, err := config.NewFromViper(v)
			if err != nil {
				// Fall back to a basic logger so the failure is visible.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "pageshot"})
				return fmt.Errorf("failed to load config: %w", err)
			}

			if v.GetBool("verbose") {
				cfg.Logger.Level = "debug"
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting pageshot.", zap.String("version", Version))

			// Store the validated config on the context for RunE.
			ctx := context.WithValue(cmd.Context(), configKey, cfg)
			cmd.SetContext(ctx)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ok := cmd.Context().Value(configKey).(*config.Config)
			if !ok {
				return fmt.Errorf("configuration missing from command context")
			}
			return runCapture(cmd, cfg, targetURL)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	flags := rootCmd.Flags()
	flags.StringVarP(&targetURL, "url", "u", "", "target website URL (required)")
	flags.StringP("output", "o", "", `directory for captured screenshots (default "./output")`)
	flags.BoolP("verbose", "v", false, "enable debug-level diagnostics")
	flags.Bool("skip-cookies", false, "skip cookie consent resolution entirely")
	flags.Bool("tablet", false, "also capture a 768x1024 tablet profile")
	_ = rootCmd.MarkFlagRequired("url")

	return rootCmd
}

// Execute runs the root command with the signal-aware context from main.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// initializeConfig wires the file and environment sources into the viper
// instance. An explicitly passed config file must exist; the default search
// path is optional.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "pageshot"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PAGESHOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file found; defaults and environment apply.
	}
	return nil
}

// bindFlags maps command line flags onto their viper keys.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	bindings := map[string]string{
		"capture.output_dir":   "output",
		"capture.skip_consent": "skip-cookies",
		"capture.tablet":       "tablet",
		"verbose":              "verbose",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("binding flag %q: %w", flag, err)
		}
	}
	return nil
}

// runCapture is the body of the root command: validate input, launch the
// engine, run the capture, print the summary.
func runCapture(cmd *cobra.Command, cfg *config.Config, targetURL string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	// Validate before any side effect: a bad URL must not create directories
	// or touch the browser engine.
	target, err := capture.ValidateTargetURL(targetURL)
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	logger.Info("Starting capture run.",
		zap.String("run_id", runID),
		zap.String("target", target.String()),
		zap.Bool("skip_consent", cfg.Capture.SkipConsent),
		zap.Bool("tablet", cfg.Capture.Tablet),
	)

	engine, err := launchEngine(ctx, cfg.Browser, logger)
	if err != nil {
		logger.Error("Browser engine failed to launch.", zap.Error(err))
		return fmt.Errorf("launching browser engine: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := engine.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser engine shutdown reported an error.", zap.Error(err))
		}
	}()

	resolver := consent.NewResolver(cfg.Consent, logger)
	orchestrator, err := capture.New(cfg.Capture, engine, resolver, logger)
	if err != nil {
		return fmt.Errorf("building capture orchestrator: %w", err)
	}

	report, err := orchestrator.Run(ctx, target, runID)
	if err != nil {
		return fmt.Errorf("capture run failed: %w", err)
	}

	printSummary(cmd, report)

	// A signal-driven abort is a graceful exit, not a failure.
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Warn("Capture run aborted.", zap.String("run_id", runID))
		return fmt.Errorf("capture aborted: %w", ctxErr)
	}
	if !report.Succeeded() {
		failed := report.FailedProfiles()
		return fmt.Errorf("%d of %d profiles failed: %s", len(failed), len(report.Profiles), strings.Join(failed, ", "))
	}
	return nil
}

// printSummary writes the per-profile results to the command's stdout.
func printSummary(cmd *cobra.Command, report *capture.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nCapture complete. Run ID: %s\n", report.RunID)
	for _, p := range report.Profiles {
		label := fmt.Sprintf("%s (%dx%d)", p.Name, p.Width, p.Height)
		switch {
		case p.Captured() && p.ConsentOutcome != "":
			fmt.Fprintf(out, "  %-20s %s  [consent: %s]\n", label, p.ScreenshotPath, p.ConsentOutcome)
		case p.Captured():
			fmt.Fprintf(out, "  %-20s %s\n", label, p.ScreenshotPath)
		default:
			fmt.Fprintf(out, "  %-20s FAILED: %s\n", label, p.Error)
		}
	}
}
