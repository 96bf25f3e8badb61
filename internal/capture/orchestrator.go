// File: internal/capture/orchestrator.go

// Package capture drives the screenshot sequence for one target: a fresh
// isolated browsing context per viewport profile, navigation, consent
// resolution, a full-page capture and a machine-readable run manifest.
// Profile failures are isolated; only engine-level setup can fail a run.
package capture

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pageshot-cli/internal/config"
	"github.com/xkilldash9x/pageshot-cli/internal/consent"
)

// Browser is the engine capability the orchestrator consumes. Implemented by
// internal/browser; tests substitute fakes.
type Browser interface {
	NewContext(profile Profile) (Context, error)
}

// Context is one isolated browsing context with its own cookie jar. Nothing
// is shared between the contexts of different profiles.
type Context interface {
	NewPage() (Page, error)
	Close() error
}

// Page is the per-tab surface: everything the consent resolver needs plus
// navigation, capture and teardown.
type Page interface {
	consent.Page
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Screenshot(ctx context.Context, path string) error
	Close(ctx context.Context) error
}

// Resolver abstracts the consent pipeline so tests can observe invocations.
type Resolver interface {
	Resolve(ctx context.Context, page consent.Page) consent.Outcome
}

// Orchestrator captures every configured profile for one target, strictly in
// order, sharing a single launched engine across all of them.
type Orchestrator struct {
	cfg      config.CaptureConfig
	browser  Browser
	resolver Resolver
	logger   *zap.Logger
	now      func() time.Time
}

// New wires an orchestrator. The resolver may be nil only when consent
// resolution is skipped.
func New(cfg config.CaptureConfig, browser Browser, resolver Resolver, logger *zap.Logger) (*Orchestrator, error) {
	if browser == nil {
		return nil, fmt.Errorf("capture: browser engine is required")
	}
	if resolver == nil && !cfg.SkipConsent {
		return nil, fmt.Errorf("capture: consent resolver is required unless skip_consent is set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		browser:  browser,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Run captures all profiles for target and writes the run manifest. The
// returned error is reserved for fatal setup failure (run directories);
// per-profile failures are folded into the report, never escalated.
func (o *Orchestrator) Run(ctx context.Context, target *url.URL, runID string) (*Report, error) {
	startedAt := o.now()
	layout := NewRunLayout(o.cfg.OutputDir, target.Host, startedAt)
	if err := layout.Materialize(); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     runID,
		Target:    target.String(),
		Host:      layout.Host,
		StartedAt: startedAt,
	}

	log := o.logger.With(zap.String("run_id", runID), zap.String("target", report.Target))
	log.Info("Starting capture run.", zap.String("dir", layout.Root), zap.Bool("skip_consent", o.cfg.SkipConsent))

	for _, profile := range Profiles(o.cfg.Tablet) {
		if err := ctx.Err(); err != nil {
			report.Profiles = append(report.Profiles, ProfileReport{
				Name:   profile.Name,
				Width:  profile.Width,
				Height: profile.Height,
				Error:  fmt.Sprintf("aborted: %v", err),
			})
			continue
		}
		report.Profiles = append(report.Profiles, o.captureProfile(ctx, profile, report.Target, layout, log))
	}

	if err := report.WriteManifest(layout.ManifestPath()); err != nil {
		log.Warn("Failed to write run manifest.", zap.Error(err))
	}
	return report, nil
}

// captureProfile runs one profile start to finish. Every failure is folded
// into the returned entry so sibling profiles remain unaffected, and the
// browsing context is released on all exit paths.
func (o *Orchestrator) captureProfile(ctx context.Context, profile Profile, target string, layout RunLayout, log *zap.Logger) (entry ProfileReport) {
	start := o.now()
	entry = ProfileReport{Name: profile.Name, Width: profile.Width, Height: profile.Height}
	defer func() { entry.DurationMS = o.now().Sub(start).Milliseconds() }()

	plog := log.With(zap.String("profile", profile.Name))
	plog.Info("Capturing profile.", zap.Int("width", profile.Width), zap.Int("height", profile.Height))

	bctx, err := o.browser.NewContext(profile)
	if err != nil {
		entry.Error = fmt.Sprintf("context: %v", err)
		plog.Warn("Failed to open browsing context.", zap.Error(err))
		return entry
	}
	defer func() {
		if cerr := bctx.Close(); cerr != nil {
			plog.Debug("Browsing context close failed.", zap.Error(cerr))
		}
	}()

	page, err := bctx.NewPage()
	if err != nil {
		entry.Error = fmt.Sprintf("page: %v", err)
		plog.Warn("Failed to open page.", zap.Error(err))
		return entry
	}
	defer func() {
		if cerr := page.Close(ctx); cerr != nil {
			plog.Debug("Page close failed.", zap.Error(cerr))
		}
	}()

	if err := page.Navigate(ctx, target, o.cfg.NavigationTimeout); err != nil {
		entry.Error = fmt.Sprintf("navigation: %v", err)
		plog.Warn("Navigation failed, profile skipped.", zap.Error(err))
		return entry
	}

	if !o.cfg.SkipConsent {
		outcome := o.resolver.Resolve(ctx, page)
		entry.ConsentOutcome = outcome.String()
		plog.Info("Consent resolution finished.", zap.Stringer("outcome", outcome))
		page.Settle(ctx, o.cfg.PostResolveWait)
	}

	path := layout.ScreenshotPath(profile)
	if err := page.Screenshot(ctx, path); err != nil {
		entry.Error = fmt.Sprintf("screenshot: %v", err)
		plog.Warn("Screenshot capture failed.", zap.Error(err))
		return entry
	}

	entry.ScreenshotPath = path
	plog.Info("Screenshot captured.", zap.String("path", path))
	return entry
}
