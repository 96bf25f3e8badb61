// File: internal/browser/page.go

package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pageshot-cli/internal/consent"
)

// Page adapts a playwright page to the capture and consent contracts.
// Playwright calls carry their own timeouts instead of contexts, so every
// method checks the caller's context before dispatching and classify maps
// driver faults back onto the shared sentinel errors.
type Page struct {
	page   playwright.Page
	logger *zap.Logger
}

// URL reports the page's current address.
func (p *Page) URL() string {
	return p.page.URL()
}

// Navigate loads the target and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", consent.ErrContext, err)
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return classify(ctx, fmt.Errorf("navigating to %s: %w", url, err))
	}
	p.logger.Debug("Navigation complete.", zap.String("url", url))
	return nil
}

// WaitVisible blocks until the first element matching the selector is
// visible, or the timeout elapses.
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", consent.ErrContext, err)
	}
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return classify(ctx, err)
	}
	return nil
}

// Click clicks the first element matching the selector.
func (p *Page) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", consent.ErrContext, err)
	}
	err := p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return classify(ctx, err)
	}
	return nil
}

// SetCookies stores the batch in the page's browsing context.
func (p *Page) SetCookies(ctx context.Context, cookies []consent.Cookie) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", consent.ErrContext, err)
	}
	payload := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			SameSite: playwright.SameSiteAttributeLax,
		}
		if c.URL != "" {
			cookie.URL = playwright.String(c.URL)
		}
		if c.Domain != "" {
			cookie.Domain = playwright.String(c.Domain)
		}
		if c.Path != "" {
			cookie.Path = playwright.String(c.Path)
		}
		payload = append(payload, cookie)
	}
	if err := p.page.Context().AddCookies(payload); err != nil {
		return classify(ctx, fmt.Errorf("adding cookies: %w", err))
	}
	return nil
}

// Reload re-navigates the page so injected cookies take effect.
func (p *Page) Reload(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", consent.ErrContext, err)
	}
	_, err := p.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return classify(ctx, fmt.Errorf("reloading page: %w", err))
	}
	return nil
}

// AddStyle injects a stylesheet into the current document.
func (p *Page) AddStyle(ctx context.Context, css string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", consent.ErrContext, err)
	}
	_, err := p.page.AddStyleTag(playwright.PageAddStyleTagOptions{
		Content: playwright.String(css),
	})
	if err != nil {
		return classify(ctx, fmt.Errorf("injecting stylesheet: %w", err))
	}
	return nil
}

// Settle waits out animations and late reflows. Returns early when the
// caller's context is cancelled.
func (p *Page) Settle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Screenshot writes a full-page PNG to the given path.
func (p *Page) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", consent.ErrContext, err)
	}
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	if err != nil {
		return classify(ctx, fmt.Errorf("capturing screenshot: %w", err))
	}
	return nil
}

// Close disposes the tab. A page that already went away with its context is
// not an error.
func (p *Page) Close(ctx context.Context) error {
	err := p.page.Close()
	if err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
		return fmt.Errorf("closing page: %w", err)
	}
	return nil
}

// classify maps driver faults onto the shared sentinels so callers can sort
// expected misses from real failures with errors.Is.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", consent.ErrContext, err)
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return fmt.Errorf("%w: %v", consent.ErrContext, err)
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", consent.ErrTimeout, err)
	}
	if isNavigationFault(err) {
		return fmt.Errorf("%w: %v", consent.ErrNavigation, err)
	}
	return err
}

// isNavigationFault sniffs the chromium and gecko network error prefixes out
// of the driver's message, which is all playwright exposes for them.
func isNavigationFault(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "net::ERR") || strings.Contains(msg, "NS_ERROR")
}
