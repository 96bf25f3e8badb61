// File: internal/capture/orchestrator_test.go
package capture

import (
	"context"
	"errors"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pageshot-cli/internal/config"
	"github.com/xkilldash9x/pageshot-cli/internal/consent"
)

// -- Fake Browser Stack --

// fakePage satisfies capture.Page. Consent-facing methods are inert; the
// resolver itself is faked separately.
type fakePage struct {
	mu        sync.Mutex
	url       string
	navErr    error // -- simulate navigation failure --
	shotErr   error // -- simulate capture failure --
	navigated []string
	shots     []string
	settles   []time.Duration
	closed    bool
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}

func (p *fakePage) SetCookies(ctx context.Context, cookies []consent.Cookie) error { return nil }

func (p *fakePage) Reload(ctx context.Context, timeout time.Duration) error { return nil }

func (p *fakePage) AddStyle(ctx context.Context, css string) error { return nil }

func (p *fakePage) Settle(ctx context.Context, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settles = append(p.settles, d)
}

func (p *fakePage) Navigate(ctx context.Context, target string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, target)
	if p.navErr != nil {
		return p.navErr
	}
	p.url = target
	return nil
}

func (p *fakePage) Screenshot(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shotErr != nil {
		return p.shotErr
	}
	p.shots = append(p.shots, path)
	// Write a real file so end-to-end assertions can stat it.
	return os.WriteFile(path, []byte("fake png bytes"), 0644)
}

func (p *fakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeContext struct {
	mu      sync.Mutex
	page    *fakePage
	pageErr error
	closed  bool
}

func (c *fakeContext) NewPage() (Page, error) {
	if c.pageErr != nil {
		return nil, c.pageErr
	}
	return c.page, nil
}

func (c *fakeContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeBrowser struct {
	mu       sync.Mutex
	contexts map[string]*fakeContext // scripted per profile, auto-created otherwise
	ctxErr   map[string]error
	opened   []string
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		contexts: make(map[string]*fakeContext),
		ctxErr:   make(map[string]error),
	}
}

func (b *fakeBrowser) NewContext(profile Profile) (Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, profile.Name)
	if err := b.ctxErr[profile.Name]; err != nil {
		return nil, err
	}
	c, ok := b.contexts[profile.Name]
	if !ok {
		c = &fakeContext{page: &fakePage{}}
		b.contexts[profile.Name] = c
	}
	return c, nil
}

type fakeResolver struct {
	mu      sync.Mutex
	calls   int
	outcome consent.Outcome
}

func (r *fakeResolver) Resolve(ctx context.Context, page consent.Page) consent.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.outcome
}

// -- Test Fixture Setup --

type captureFixture struct {
	cfg      config.CaptureConfig
	browser  *fakeBrowser
	resolver *fakeResolver
}

func setupCapture(t *testing.T) *captureFixture {
	t.Helper()
	return &captureFixture{
		cfg: config.CaptureConfig{
			OutputDir:         t.TempDir(),
			NavigationTimeout: 50 * time.Millisecond,
			PostResolveWait:   2 * time.Millisecond,
		},
		browser:  newFakeBrowser(),
		resolver: &fakeResolver{outcome: consent.OutcomeSuppressedByStyle},
	}
}

func (f *captureFixture) newOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	orch, err := New(f.cfg, f.browser, f.resolver, zaptest.NewLogger(t))
	require.NoError(t, err)
	return orch
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// -- Test Cases --

func TestNewOrchestrator(t *testing.T) {
	t.Parallel()

	t.Run("should require a browser engine", func(t *testing.T) {
		t.Parallel()
		_, err := New(config.CaptureConfig{}, nil, &fakeResolver{}, nil)
		assert.Error(t, err)
	})

	t.Run("should require a resolver unless consent is skipped", func(t *testing.T) {
		t.Parallel()
		_, err := New(config.CaptureConfig{}, newFakeBrowser(), nil, nil)
		assert.Error(t, err)

		_, err = New(config.CaptureConfig{SkipConsent: true}, newFakeBrowser(), nil, nil)
		assert.NoError(t, err)
	})
}

func TestOrchestratorRun(t *testing.T) {
	t.Parallel()

	t.Run("should capture desktop and mobile in order", func(t *testing.T) {
		t.Parallel()
		fixture := setupCapture(t)
		orch := fixture.newOrchestrator(t)

		report, err := orch.Run(context.Background(), mustParseURL(t, "https://example.com"), "run-1")
		require.NoError(t, err)
		require.NotNil(t, report)

		assert.Equal(t, []string{"desktop", "mobile"}, fixture.browser.opened)
		assert.True(t, report.Succeeded())
		require.Len(t, report.Profiles, 2)
		assert.Equal(t, "desktop", report.Profiles[0].Name)
		assert.Equal(t, "mobile", report.Profiles[1].Name)

		for _, entry := range report.Profiles {
			assert.Equal(t, "suppressed_by_style", entry.ConsentOutcome)
			info, statErr := os.Stat(entry.ScreenshotPath)
			require.NoError(t, statErr, "screenshot for %s should exist", entry.Name)
			assert.Positive(t, info.Size(), "screenshot for %s should not be empty", entry.Name)
		}

		fixture.resolver.mu.Lock()
		assert.Equal(t, 2, fixture.resolver.calls, "resolver should run once per profile")
		fixture.resolver.mu.Unlock()
	})

	t.Run("should release every browsing context", func(t *testing.T) {
		t.Parallel()
		fixture := setupCapture(t)
		orch := fixture.newOrchestrator(t)

		_, err := orch.Run(context.Background(), mustParseURL(t, "https://example.com"), "run-2")
		require.NoError(t, err)

		for name, bctx := range fixture.browser.contexts {
			assert.True(t, bctx.closed, "context for %s should be closed", name)
			assert.True(t, bctx.page.closed, "page for %s should be closed", name)
		}
	})

	t.Run("should apply the post-resolve wait after resolution", func(t *testing.T) {
		t.Parallel()
		fixture := setupCapture(t)
		orch := fixture.newOrchestrator(t)

		_, err := orch.Run(context.Background(), mustParseURL(t, "https://example.com"), "run-3")
		require.NoError(t, err)

		for name, bctx := range fixture.browser.contexts {
			assert.Equal(t, []time.Duration{fixture.cfg.PostResolveWait}, bctx.page.settles,
				"page for %s should settle exactly once", name)
		}
	})

	t.Run("should still capture mobile when desktop navigation fails", func(t *testing.T) {
		t.Parallel()
		fixture := setupCapture(t)
		fixture.browser.contexts["desktop"] = &fakeContext{
			page: &fakePage{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")},
		}
		orch := fixture.newOrchestrator(t)

		report, err := orch.Run(context.Background(), mustParseURL(t, "https://example.com"), "run-4")
		require.NoError(t, err, "profile failures must not escalate")

		assert.False(t, report.Succeeded())
		assert.Equal(t, []string{"desktop"}, report.FailedProfiles())
		assert.Contains(t, report.Profiles[0].Error, "navigation")
		assert.True(t, report.Profiles[1].Captured(), "mobile must be attempted regardless")
		assert.True(t, fixture.browser.contexts["desktop"].closed, "failed profile context must still close")

		fixture.resolver.mu.Lock()
		assert.Equal(t, 1, fixture.resolver.calls, "resolver must not run on a failed navigation")
		fixture.resolver.mu.Unlock()
	})

	t.Run("should record a context failure and continue", func(t *testing.T) {
		t.Parallel()
		fixture := setupCapture(t)
		fixture.browser.ctxErr["desktop"] = errors.New("browser gone")
		orch := fixture.newOrchestrator(t)

		report, err := orch.Run(context.Background(), mustParseURL(t, "https://example.com"), "run-5")
		require.NoError(t, err)

		assert.Contains(t, report.Profiles[0].Error, "context")
		assert.True(t, report.Profiles[1].Captured())
	})

	t.Run("should record a screenshot failure and keep the sibling", func(t *testing.T) {
		t.Parallel()
		fixture := setupCapture(t)
		fixture.browser.contexts["mobile"] = &fakeContext{
			page: &fakePage{shotErr: errors.New("disk full")},
		}
		orch := fixture.newOrchestrator(t)

		report, err := orch.Run(context.Background(), mustParseURL(t, "https://example.com"), "run-6")
		require.NoError(t, err)

		assert.True(t, report.Profiles[0].Captured())
		assert.Contains(t, report.Profiles[1].Error, "screenshot")
		assert.True(t, fixture.browser.contexts["mobile"].closed)
	})

	t.Run("should never invoke the resolver when consent is skipped", func(t *testing.T) {
		t.Parallel()
		fixture := setupCapture(t)
		fixture.cfg.SkipConsent = true
		orch := fixture.newOrchestrator(t)

		report, err := orch.Run(context.Background(), mustParseURL(t, "https://example.com"), "run-7")
		require.NoError(t, err)

		assert.True(t, report.Succeeded())
		fixture.resolver.mu.Lock()
		assert.Zero(t, fixture.resolver.calls)
		fixture.resolver.mu.Unlock()

		for name, bctx := range fixture.browser.contexts {
			assert.Empty(t, bctx.page.settles, "page for %s should not settle without resolution", name)
		}
		for _, entry := range report.Profiles {
			assert.Empty(t, entry.ConsentOutcome)
		}
	})

	t.Run("should append the tablet profile when enabled", func(t *testing.T) {
		t.Parallel()
		fixture := setupCapture(t)
		fixture.cfg.Tablet = true
		orch := fixture.newOrchestrator(t)

		report, err := orch.Run(context.Background(), mustParseURL(t, "https://example.com"), "run-8")
		require.NoError(t, err)

		assert.Equal(t, []string{"desktop", "mobile", "tablet"}, fixture.browser.opened)
		require.Len(t, report.Profiles, 3)
		assert.Equal(t, "tablet", report.Profiles[2].Name)
	})

	t.Run("should write a manifest that matches the returned report", func(t *testing.T) {
		t.Parallel()
		fixture := setupCapture(t)
		orch := fixture.newOrchestrator(t)

		report, err := orch.Run(context.Background(), mustParseURL(t, "https://example.com"), "run-9")
		require.NoError(t, err)

		layout := NewRunLayout(fixture.cfg.OutputDir, "example.com", report.StartedAt)
		data, err := os.ReadFile(layout.ManifestPath())
		require.NoError(t, err)

		var decoded Report
		require.NoError(t, json.Unmarshal(data, &decoded))
		if diff := cmp.Diff(report, &decoded); diff != "" {
			t.Errorf("manifest does not match the report (-want +got):\n%s", diff)
		}
	})

	t.Run("should mark profiles aborted once the run context is cancelled", func(t *testing.T) {
		t.Parallel()
		fixture := setupCapture(t)
		orch := fixture.newOrchestrator(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report, err := orch.Run(ctx, mustParseURL(t, "https://example.com"), "run-10")
		require.NoError(t, err)

		assert.Empty(t, fixture.browser.opened, "no context should open after cancellation")
		require.Len(t, report.Profiles, 2)
		for _, entry := range report.Profiles {
			assert.Contains(t, entry.Error, "aborted")
		}
		assert.False(t, report.Succeeded())
	})
}
