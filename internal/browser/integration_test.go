//go:build integration

// File: internal/browser/integration_test.go

package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pageshot-cli/internal/capture"
	"github.com/xkilldash9x/pageshot-cli/internal/config"
	"github.com/xkilldash9x/pageshot-cli/internal/consent"
)

// bannerFixture overlays the page with a consent dialog whose accept button
// removes it, the same shape the text-based catalog entries target.
const bannerFixture = `<!DOCTYPE html>
<html>
<head><title>Consent fixture</title></head>
<body>
  <div id="cookie-banner" style="position:fixed;top:0;left:0;right:0;bottom:0;background:rgba(0,0,0,0.6)">
    <button type="button" onclick="document.getElementById('cookie-banner').remove()">Accept all</button>
  </div>
  <main><h1>Fixture content</h1></main>
</body>
</html>`

// TestEngineEndToEnd drives a real chromium through the full flow: navigate,
// resolve the consent banner, capture a screenshot. Run with
// `go test -tags integration ./internal/browser/`.
func TestEngineEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(bannerFixture))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	cfg := config.NewDefaultConfig()
	logger := zaptest.NewLogger(t)

	engine, err := Launch(ctx, cfg.Browser, logger)
	require.NoError(t, err, "launch requires a working chromium installation")
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		assert.NoError(t, engine.Shutdown(shutdownCtx))
	}()

	bctx, err := engine.NewContext(capture.ProfileDesktop)
	require.NoError(t, err)
	defer bctx.Close()

	page, err := bctx.NewPage()
	require.NoError(t, err)

	require.NoError(t, page.Navigate(ctx, server.URL, cfg.Capture.NavigationTimeout))

	resolver := consent.NewResolver(cfg.Consent, logger)
	outcome := resolver.Resolve(ctx, page)
	assert.Equal(t, consent.OutcomeDismissedByClick, outcome)

	shot := filepath.Join(t.TempDir(), "desktop.png")
	require.NoError(t, page.Screenshot(ctx, shot))

	info, err := os.Stat(shot)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	require.NoError(t, page.Close(ctx))
}
