// File: internal/capture/layout.go
package capture

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidTarget marks a target URL that fails validation. Check with
// errors.Is.
var ErrInvalidTarget = errors.New("invalid target url")

// ValidateTargetURL checks that raw parses as an absolute http(s) URL with a
// host, returning the parsed form so callers keep the normalization.
func ValidateTargetURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidTarget, raw)
	}
	return u, nil
}

// SanitizeHost maps a URL host to a path-safe directory name. Anything
// outside [a-zA-Z0-9._-] becomes '_'; names that would vanish or walk the
// tree ("", ".", "..") collapse to "_".
func SanitizeHost(host string) string {
	var b strings.Builder
	b.Grow(len(host))
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// timestampLayout names run directories: 8-digit date, 6-digit time,
// capture start in local time.
const timestampLayout = "20060102_150405"

// RunLayout resolves every path belonging to one capture run.
type RunLayout struct {
	Host        string // sanitized host segment
	Root        string // <output>/<host>/<timestamp>
	Screenshots string // Root/screenshots
}

// NewRunLayout derives the layout for a run without touching the filesystem.
func NewRunLayout(outputDir, host string, startedAt time.Time) RunLayout {
	sanitized := SanitizeHost(host)
	root := filepath.Join(outputDir, sanitized, startedAt.Format(timestampLayout))
	return RunLayout{
		Host:        sanitized,
		Root:        root,
		Screenshots: filepath.Join(root, "screenshots"),
	}
}

// Materialize creates the run directories. Callers invoke this only once the
// engine is up, keeping a launch failure free of filesystem effects.
func (l RunLayout) Materialize() error {
	if err := os.MkdirAll(l.Screenshots, 0755); err != nil {
		return fmt.Errorf("creating run directories: %w", err)
	}
	return nil
}

// ScreenshotPath returns the image path for one profile.
func (l RunLayout) ScreenshotPath(p Profile) string {
	return filepath.Join(l.Screenshots, p.Filename())
}

// ManifestPath returns the manifest location in the run root.
func (l RunLayout) ManifestPath() string {
	return filepath.Join(l.Root, "manifest.json")
}
