// File: internal/browser/engine.go

// Package browser owns the Playwright driver and the single shared Chromium
// instance for a run, and adapts its pages to the capture and consent
// contracts.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pageshot-cli/internal/capture"
	"github.com/xkilldash9x/pageshot-cli/internal/config"
)

// Engine is the launched browser runtime. One engine serves all viewport
// profiles of a run; contexts are created per profile and tracked so
// Shutdown can release anything a caller left open.
type Engine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger

	mu   sync.Mutex
	open map[*browsingContext]struct{}

	closeOnce sync.Once
	closeErr  error
}

// Launch installs the chromium runtime if needed, starts the Playwright
// driver and launches the browser. A failed launch cleans up the driver and
// leaves no other side effects.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("browser")

	if err := ensureInstallation(ctx, cfg.InstallTimeout, log); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright driver: %w", err)
	}

	browser, err := pw.Chromium.Launch(prepareLaunchOptions(cfg))
	if err != nil {
		if stopErr := pw.Stop(); stopErr != nil {
			log.Debug("Driver stop after failed launch also failed.", zap.Error(stopErr))
		}
		return nil, fmt.Errorf("launching browser instance: %w", err)
	}

	log.Info("Browser engine launched.",
		zap.String("browser_version", browser.Version()),
		zap.Bool("headless", cfg.Headless))

	return &Engine{
		pw:      pw,
		browser: browser,
		logger:  log,
		open:    make(map[*browsingContext]struct{}),
	}, nil
}

// ensureInstallation downloads the chromium runtime when missing. Install
// blocks with no context support, so it runs in a goroutine bounded by the
// install timeout.
func ensureInstallation(ctx context.Context, timeout time.Duration, log *zap.Logger) error {
	log.Info("Verifying browser installation.")
	installCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		options := &playwright.RunOptions{Browsers: []string{"chromium"}}
		if err := playwright.Install(options); err != nil {
			errChan <- fmt.Errorf("installing playwright browsers: %w", err)
			return
		}
		errChan <- nil
	}()

	select {
	case err := <-errChan:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("waiting for browser installation: %w", installCtx.Err())
	}
}

// prepareLaunchOptions merges the container-stability defaults with any
// user-supplied arguments.
func prepareLaunchOptions(cfg config.BrowserConfig) playwright.BrowserTypeLaunchOptions {
	defaultArgs := []string{
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
	}
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     append(defaultArgs, cfg.Args...),
		Timeout:  playwright.Float(float64(cfg.LaunchTimeout.Milliseconds())),
	}
}

// NewContext opens an isolated browsing context with the profile's viewport.
// Each context owns a fresh cookie jar; nothing is shared between profiles.
func (e *Engine) NewContext(profile capture.Profile) (capture.Context, error) {
	bctx, err := e.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: profile.Width, Height: profile.Height},
	})
	if err != nil {
		return nil, fmt.Errorf("creating browsing context for %s: %w", profile.Name, err)
	}

	wrapped := &browsingContext{
		ctx:    bctx,
		logger: e.logger.With(zap.String("profile", profile.Name)),
	}
	wrapped.onClose = func() {
		e.mu.Lock()
		delete(e.open, wrapped)
		e.mu.Unlock()
	}

	e.mu.Lock()
	if e.open == nil {
		e.open = make(map[*browsingContext]struct{})
	}
	e.open[wrapped] = struct{}{}
	e.mu.Unlock()

	e.logger.Debug("Browsing context opened.", zap.String("profile", profile.Name))
	return wrapped, nil
}

// Shutdown closes leftover contexts, the browser and the driver. Idempotent
// and safe after a partially failed launch; ctx bounds the teardown.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- e.teardown() }()
		select {
		case err := <-done:
			e.closeErr = err
		case <-ctx.Done():
			e.closeErr = fmt.Errorf("browser teardown interrupted: %w", ctx.Err())
		}
	})
	return e.closeErr
}

func (e *Engine) teardown() error {
	e.mu.Lock()
	leftovers := make([]*browsingContext, 0, len(e.open))
	for c := range e.open {
		leftovers = append(leftovers, c)
	}
	e.mu.Unlock()

	for _, c := range leftovers {
		if err := c.Close(); err != nil {
			e.logger.Warn("Leftover context close failed.", zap.Error(err))
		}
	}

	var firstErr error
	if e.browser != nil {
		if err := e.browser.Close(); err != nil {
			e.logger.Error("Failed to close browser instance.", zap.Error(err))
			firstErr = fmt.Errorf("closing browser: %w", err)
		}
	}
	if e.pw != nil {
		if err := e.pw.Stop(); err != nil {
			e.logger.Error("Failed to stop playwright driver.", zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("stopping playwright driver: %w", err)
			}
		}
	}

	e.logger.Info("Browser engine shut down.")
	return firstErr
}

// browsingContext pairs a playwright context with its deregistration hook.
// Close is safe to call more than once; the orchestrator defers it and
// Shutdown sweeps whatever remains.
type browsingContext struct {
	ctx     playwright.BrowserContext
	logger  *zap.Logger
	onClose func()

	once sync.Once
	err  error
}

// NewPage opens a tab in this context.
func (c *browsingContext) NewPage() (capture.Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	return &Page{page: page, logger: c.logger}, nil
}

// Close releases the context and everything in it.
func (c *browsingContext) Close() error {
	c.once.Do(func() {
		if err := c.ctx.Close(); err != nil {
			c.err = fmt.Errorf("closing browsing context: %w", err)
		}
		if c.onClose != nil {
			c.onClose()
		}
	})
	return c.err
}
