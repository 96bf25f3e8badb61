// File: internal/capture/report.go
package capture

import (
	"fmt"
	"os"
	"time"

	json "github.com/json-iterator/go"
)

// ProfileReport records what happened for one viewport profile.
type ProfileReport struct {
	Name           string `json:"name"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	ConsentOutcome string `json:"consent_outcome,omitempty"`
	ScreenshotPath string `json:"screenshot_path,omitempty"`
	Error          string `json:"error,omitempty"`
	DurationMS     int64  `json:"duration_ms"`
}

// Captured reports whether the profile produced its screenshot.
func (p ProfileReport) Captured() bool {
	return p.Error == "" && p.ScreenshotPath != ""
}

// Report is the machine-readable record of one run, written as manifest.json
// into the run root on both full and partial success.
type Report struct {
	RunID     string          `json:"run_id"`
	Target    string          `json:"target"`
	Host      string          `json:"host"`
	StartedAt time.Time       `json:"started_at"`
	Profiles  []ProfileReport `json:"profiles"`
}

// Succeeded reports whether every requested profile was captured.
func (r *Report) Succeeded() bool {
	if len(r.Profiles) == 0 {
		return false
	}
	for _, p := range r.Profiles {
		if !p.Captured() {
			return false
		}
	}
	return true
}

// FailedProfiles lists the profiles that produced no screenshot.
func (r *Report) FailedProfiles() []string {
	var failed []string
	for _, p := range r.Profiles {
		if !p.Captured() {
			failed = append(failed, p.Name)
		}
	}
	return failed
}

// WriteManifest serializes the report to path.
func (r *Report) WriteManifest(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}
