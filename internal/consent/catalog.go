// File: internal/consent/catalog.go
package consent

import (
	"fmt"
	"strings"
	"time"
)

// MatchKind distinguishes how a catalog entry locates its target element.
type MatchKind int

const (
	// MatchCSS entries are plain CSS selectors.
	MatchCSS MatchKind = iota
	// MatchText entries match on visible element text.
	MatchText
)

func (k MatchKind) String() string {
	if k == MatchText {
		return "text"
	}
	return "css"
}

// Category records the confidence class of a click entry.
type Category int

const (
	// CategoryAcceptAction marks elements explicitly labeled as an accept action.
	CategoryAcceptAction Category = iota
	// CategoryPlatformHandler marks the well-known handler ids of a consent platform.
	CategoryPlatformHandler
)

func (c Category) String() string {
	if c == CategoryPlatformHandler {
		return "platform_handler"
	}
	return "accept_action"
}

// Selector is one ordered entry of the dismissal catalog.
type Selector struct {
	Pattern  string
	Kind     MatchKind
	Category Category
	Platform string
}

// Query renders the entry as an engine locator. Text entries expand to the
// clickable element types a banner actually uses; text matching in the engine
// is case-insensitive substring.
func (s Selector) Query() string {
	if s.Kind == MatchText {
		return fmt.Sprintf(`button:has-text(%q), a:has-text(%q), [role="button"]:has-text(%q)`,
			s.Pattern, s.Pattern, s.Pattern)
	}
	return s.Pattern
}

// CookiePreset describes one synthetic consent cookie a platform honours.
type CookiePreset struct {
	Name  string
	Value string
	// Timestamped presets encode the acceptance moment instead of a fixed value.
	Timestamped bool
	// DomainWide presets are additionally injected on the registrable domain.
	DomainWide bool
}

// RenderValue resolves the cookie value at injection time.
func (p CookiePreset) RenderValue(now time.Time) string {
	if p.Timestamped {
		return now.UTC().Format(time.RFC3339)
	}
	return p.Value
}

// Catalog is the selector and cookie knowledge the resolver works from. The
// zero value is empty; DefaultCatalog returns the built-in providers table.
type Catalog struct {
	Clicks     []Selector
	Containers []string
	Cookies    []CookiePreset
}

// SuppressionCSS renders a maximum-priority style override hiding every known
// banner container. Empty when the catalog lists no containers.
func (c Catalog) SuppressionCSS() string {
	if len(c.Containers) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.Join(c.Containers, ",\n"))
	b.WriteString(" {\n")
	b.WriteString("\tdisplay: none !important;\n")
	b.WriteString("\tvisibility: hidden !important;\n")
	b.WriteString("\topacity: 0 !important;\n")
	b.WriteString("\tpointer-events: none !important;\n")
	b.WriteString("}\n")
	// Consent platforms lock document scrolling while their dialog is open.
	b.WriteString("html, body {\n\toverflow: auto !important;\n}\n")
	return b.String()
}

// provider groups everything known about one consent platform: the handler
// ids to click (tier 1), the synthetic cookies it honours (tier 2) and the
// containers to hide when neither worked (tier 3).
type provider struct {
	name       string
	category   Category
	clicks     []string
	containers []string
	cookies    []CookiePreset
}

// acceptTexts are probed before any platform handler. Ordering runs from the
// most specific label to the most generic, English then German.
var acceptTexts = []string{
	"Accept all cookies",
	"Accept all",
	"Accept cookies",
	"I agree",
	"Allow all",
	"Accept",
	"Got it",
	"Alle Cookies akzeptieren",
	"Alle akzeptieren",
	"Akzeptieren",
	"Zustimmen",
	"Einverstanden",
}

// providers is the per-platform knowledge base. Declaration order is probe
// order for tier 1, after the accept texts; the generic patterns come last as
// the lowest-confidence match.
var providers = []provider{
	{
		name:     "onetrust",
		category: CategoryPlatformHandler,
		clicks: []string{
			`#onetrust-accept-btn-handler`,
			`#accept-recommended-btn-handler`,
		},
		containers: []string{
			`#onetrust-banner-sdk`,
			`#onetrust-consent-sdk`,
		},
		cookies: []CookiePreset{
			{Name: "OptanonAlertBoxClosed", Timestamped: true, DomainWide: true},
		},
	},
	{
		name:     "cookiebot",
		category: CategoryPlatformHandler,
		clicks: []string{
			`#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll`,
			`#CybotCookiebotDialogBodyButtonAccept`,
		},
		containers: []string{
			`#CybotCookiebotDialog`,
			`#CybotCookiebotDialogBodyUnderlay`,
		},
		cookies: []CookiePreset{
			// -1 marks the visitor as exempt from the consent dialog.
			{Name: "CookieConsent", Value: "-1", DomainWide: true},
		},
	},
	{
		name:     "quantcast",
		category: CategoryPlatformHandler,
		clicks: []string{
			`.qc-cmp2-summary-buttons button[mode="primary"]`,
			`button.qc-cmp-button`,
		},
		containers: []string{
			`#qc-cmp2-container`,
		},
	},
	{
		name:     "trustarc",
		category: CategoryPlatformHandler,
		clicks: []string{
			`#truste-consent-button`,
			`button.trustarc-agree-btn`,
		},
		containers: []string{
			`#truste-consent-track`,
			`.truste_box_overlay`,
			`.truste_overlay`,
		},
		cookies: []CookiePreset{
			{Name: "notice_gdpr_prefs", Value: "0,1,2:", DomainWide: true},
			{Name: "notice_preferences", Value: "2:", DomainWide: true},
		},
	},
	{
		name:     "didomi",
		category: CategoryPlatformHandler,
		clicks: []string{
			`#didomi-notice-agree-button`,
			`button[class*="didomi-agree"]`,
		},
		containers: []string{
			`#didomi-host`,
			`#didomi-popup`,
		},
	},
	{
		name:     "cookieconsent",
		category: CategoryPlatformHandler,
		clicks: []string{
			`.cc-btn.cc-allow`,
			`.cc-btn.cc-dismiss`,
		},
		containers: []string{
			`.cc-window`,
			`.cc-banner`,
		},
		cookies: []CookiePreset{
			{Name: "cookieconsent_status", Value: "dismiss"},
		},
	},
	{
		name:     "generic",
		category: CategoryAcceptAction,
		clicks: []string{
			`button[data-testid="cookie-accept"]`,
			`button[aria-label*="accept" i]`,
			`button.cookie-accept`,
			`button.accept-cookies`,
			`button.consent-accept`,
			`button.gdpr-accept`,
			`#acceptCookies`,
		},
		containers: []string{
			`#cookie-banner`,
			`.cookie-banner`,
			`#cookie-consent`,
			`.cookie-consent`,
			`#cookie-notice`,
			`.cookie-notice`,
			`#gdpr-banner`,
			`.gdpr-banner`,
			`#cookie-law-info-bar`,
			`div[class*="cookie-popup"]`,
		},
	},
}

var defaultCatalog = buildCatalog()

func buildCatalog() Catalog {
	var cat Catalog
	for _, text := range acceptTexts {
		cat.Clicks = append(cat.Clicks, Selector{
			Pattern:  text,
			Kind:     MatchText,
			Category: CategoryAcceptAction,
		})
	}
	for _, p := range providers {
		for _, pattern := range p.clicks {
			cat.Clicks = append(cat.Clicks, Selector{
				Pattern:  pattern,
				Kind:     MatchCSS,
				Category: p.category,
				Platform: p.name,
			})
		}
		cat.Containers = append(cat.Containers, p.containers...)
		cat.Cookies = append(cat.Cookies, p.cookies...)
	}
	return cat
}

// DefaultCatalog returns the built-in catalog. It is assembled once at
// process start and must be treated as read-only.
func DefaultCatalog() Catalog { return defaultCatalog }

// ClickSelectors returns the tier 1 catalog in probe order: accept texts
// first, then platform handlers, generic patterns last.
func ClickSelectors() []Selector { return defaultCatalog.Clicks }

// ContainerSelectors returns every known banner container for tier 3.
func ContainerSelectors() []string { return defaultCatalog.Containers }

// CookiePresets returns the synthetic consent cookies for tier 2.
func CookiePresets() []CookiePreset { return defaultCatalog.Cookies }

// SuppressionCSS renders the tier 3 style override for the built-in catalog.
func SuppressionCSS() string { return defaultCatalog.SuppressionCSS() }
