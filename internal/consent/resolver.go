// File: internal/consent/resolver.go

// Package consent dismisses or suppresses cookie-consent banners on a page
// before it is screenshotted. Resolution is strictly best-effort: the
// resolver reports what it did but never fails the capture that invoked it.
package consent

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/pageshot-cli/internal/config"
)

// Fault categories a Page implementation is expected to wrap its errors in.
// Check with errors.Is. Expected categories log at debug, anything else at
// warn; neither ever escapes Resolve.
var (
	// ErrNoMatch indicates the selector matched nothing within its probe window.
	ErrNoMatch = errors.New("no matching element")
	// ErrTimeout indicates a bounded wait elapsed before the operation completed.
	ErrTimeout = errors.New("operation timed out")
	// ErrNavigation indicates a reload or in-flight navigation failed.
	ErrNavigation = errors.New("navigation failed")
	// ErrContext indicates the page or its browsing context is gone.
	ErrContext = errors.New("browsing context unavailable")
)

// Outcome reports which tier, if any, acted on the page.
type Outcome int

const (
	// OutcomeNoActionTaken means no tier had anything to do and nothing faulted.
	OutcomeNoActionTaken Outcome = iota
	// OutcomeDismissedByClick means a tier 1 selector was found and clicked.
	OutcomeDismissedByClick
	// OutcomeDismissedByCookieInjection means tier 2 injected cookies and reloaded.
	OutcomeDismissedByCookieInjection
	// OutcomeSuppressedByStyle means only the tier 3 style override was applied.
	OutcomeSuppressedByStyle
	// OutcomeFailedSilently means nothing was applied and at least one fault was swallowed.
	OutcomeFailedSilently
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDismissedByClick:
		return "dismissed_by_click"
	case OutcomeDismissedByCookieInjection:
		return "dismissed_by_cookie_injection"
	case OutcomeSuppressedByStyle:
		return "suppressed_by_style"
	case OutcomeFailedSilently:
		return "failed_silently"
	default:
		return "no_action_taken"
	}
}

// Cookie is one synthetic consent cookie ready for injection. Exactly one of
// URL or Domain is set: URL scopes the cookie to the page, Domain to the
// registrable domain.
type Cookie struct {
	Name   string
	Value  string
	URL    string
	Domain string
	Path   string
}

// Page is the slice of browser capability the resolver needs. The concrete
// implementation lives in internal/browser; tests substitute fakes.
type Page interface {
	URL() string
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	SetCookies(ctx context.Context, cookies []Cookie) error
	Reload(ctx context.Context, timeout time.Duration) error
	AddStyle(ctx context.Context, css string) error
	Settle(ctx context.Context, d time.Duration)
}

// stepOutcome tags the exit state of one pipeline step.
type stepOutcome int

const (
	stepSkipped stepOutcome = iota
	stepApplied
	stepFailed
)

// Resolver executes the three-tier dismissal pipeline against a single page.
// It holds no per-page state and may be reused across pages sequentially.
type Resolver struct {
	cfg     config.ConsentConfig
	catalog Catalog
	logger  *zap.Logger
	now     func() time.Time
}

// NewResolver builds a resolver over the built-in catalog.
func NewResolver(cfg config.ConsentConfig, logger *zap.Logger) *Resolver {
	return NewResolverWithCatalog(cfg, DefaultCatalog(), logger)
}

// NewResolverWithCatalog builds a resolver over a caller-supplied catalog.
func NewResolverWithCatalog(cfg config.ConsentConfig, catalog Catalog, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, catalog: catalog, logger: logger, now: time.Now}
}

// Resolve runs the pipeline against page. It never returns an error: every
// fault is logged and absorbed, and the Outcome records what happened.
//
// Tier order is fixed. A tier 1 click is terminal. Tier 2 runs only when
// tier 1 matched nothing. Tier 3 always runs afterwards, even when tier 2
// claims success, since a reload does not prove the banner is gone.
func (r *Resolver) Resolve(ctx context.Context, page Page) Outcome {
	log := r.logger.With(zap.String("url", page.URL()))

	click := r.dismissByClick(ctx, page, log)
	if click == stepApplied {
		return OutcomeDismissedByClick
	}

	cookie := r.injectCookies(ctx, page, log)
	style := r.suppressByStyle(ctx, page, log)

	var out Outcome
	switch {
	case cookie == stepApplied:
		out = OutcomeDismissedByCookieInjection
	case style == stepApplied:
		out = OutcomeSuppressedByStyle
	case click == stepFailed || cookie == stepFailed || style == stepFailed:
		out = OutcomeFailedSilently
	default:
		out = OutcomeNoActionTaken
	}
	log.Debug("Consent resolution finished.", zap.Stringer("outcome", out))
	return out
}

// dismissByClick probes the catalog in order and clicks the first visible
// match. Probe misses keep the loop going; only a failed click or an
// unexpected fault marks the tier as failed.
func (r *Resolver) dismissByClick(ctx context.Context, page Page, log *zap.Logger) stepOutcome {
	out := stepSkipped
	for _, sel := range r.catalog.Clicks {
		if ctx.Err() != nil {
			log.Debug("Click tier cut short by cancellation.", zap.Error(ctx.Err()))
			return stepFailed
		}
		query := sel.Query()
		if err := page.WaitVisible(ctx, query, r.cfg.ProbeTimeout); err != nil {
			r.logFault(log, "probe", sel.Pattern, err)
			if !expectedMiss(err) {
				out = stepFailed
			}
			continue
		}
		if err := page.Click(ctx, query, r.cfg.ClickTimeout); err != nil {
			r.logFault(log, "click", sel.Pattern, err)
			out = stepFailed
			continue
		}
		log.Debug("Consent banner dismissed by click.",
			zap.String("selector", sel.Pattern),
			zap.Stringer("kind", sel.Kind),
			zap.Stringer("category", sel.Category))
		page.Settle(ctx, r.cfg.ClickSettle)
		return stepApplied
	}
	return out
}

// injectCookies renders the catalog presets against the page URL, injects
// them in one batch and reloads exactly once. Any fault falls through to the
// style tier; there is no retry.
func (r *Resolver) injectCookies(ctx context.Context, page Page, log *zap.Logger) stepOutcome {
	if len(r.catalog.Cookies) == 0 {
		return stepSkipped
	}
	if ctx.Err() != nil {
		log.Debug("Cookie tier cut short by cancellation.", zap.Error(ctx.Err()))
		return stepFailed
	}
	cookies, err := r.buildCookies(page.URL())
	if err != nil {
		r.logFault(log, "cookie_build", page.URL(), err)
		return stepFailed
	}
	if err := page.SetCookies(ctx, cookies); err != nil {
		r.logFault(log, "cookie_inject", page.URL(), err)
		return stepFailed
	}
	if err := page.Reload(ctx, r.cfg.ReloadTimeout); err != nil {
		r.logFault(log, "reload", page.URL(), err)
		return stepFailed
	}
	log.Debug("Synthetic consent cookies injected.", zap.Int("cookies", len(cookies)))
	page.Settle(ctx, r.cfg.ReloadSettle)
	return stepApplied
}

// suppressByStyle hides every known banner container. Purely cosmetic: the
// banner DOM stays, it just cannot render into the screenshot.
func (r *Resolver) suppressByStyle(ctx context.Context, page Page, log *zap.Logger) stepOutcome {
	css := r.catalog.SuppressionCSS()
	if css == "" {
		return stepSkipped
	}
	if ctx.Err() != nil {
		log.Debug("Style tier cut short by cancellation.", zap.Error(ctx.Err()))
		return stepFailed
	}
	if err := page.AddStyle(ctx, css); err != nil {
		r.logFault(log, "style", "suppression css", err)
		return stepFailed
	}
	log.Debug("Banner containers suppressed by style.", zap.Int("containers", len(r.catalog.Containers)))
	return stepApplied
}

// buildCookies renders the presets against the page's current URL. Presets
// marked DomainWide get a second variant on the registrable domain, matching
// how those platforms scope the cookie themselves.
func (r *Resolver) buildCookies(rawURL string) ([]Cookie, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("page url %q has no host", rawURL)
	}
	now := r.now()
	cookies := make([]Cookie, 0, len(r.catalog.Cookies)*2)
	for _, preset := range r.catalog.Cookies {
		value := preset.RenderValue(now)
		cookies = append(cookies, Cookie{Name: preset.Name, Value: value, URL: rawURL})
		if !preset.DomainWide {
			continue
		}
		etld, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
		if err != nil {
			// Single-label hosts like localhost have no registrable domain.
			continue
		}
		cookies = append(cookies, Cookie{Name: preset.Name, Value: value, Domain: "." + etld, Path: "/"})
	}
	return cookies, nil
}

// expectedMiss reports whether err is an ordinary probe miss.
func expectedMiss(err error) bool {
	return errors.Is(err, ErrNoMatch) || errors.Is(err, ErrTimeout)
}

// logFault records a swallowed fault at the level its category warrants.
// Expected categories stay at debug so routine probing does not flood the
// log; anything uncategorised surfaces at warn.
func (r *Resolver) logFault(log *zap.Logger, step, subject string, err error) {
	fields := []zap.Field{
		zap.String("step", step),
		zap.String("subject", subject),
		zap.Error(err),
	}
	if expectedMiss(err) {
		log.Debug("Consent step made no progress.", fields...)
		return
	}
	log.Warn("Swallowed unexpected consent fault.", fields...)
}
