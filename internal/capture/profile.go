// File: internal/capture/profile.go
package capture

// Profile is a named viewport configuration driving one screenshot.
type Profile struct {
	Name   string
	Width  int
	Height int
}

// Filename returns the fixed per-profile image name inside the run's
// screenshots directory.
func (p Profile) Filename() string { return p.Name + ".png" }

// Viewport presets. Desktop and mobile are always captured, in that order;
// tablet joins the tail of the run when enabled.
var (
	ProfileDesktop = Profile{Name: "desktop", Width: 1920, Height: 1080}
	ProfileMobile  = Profile{Name: "mobile", Width: 375, Height: 667}
	ProfileTablet  = Profile{Name: "tablet", Width: 768, Height: 1024}
)

// Profiles returns the capture order for one run.
func Profiles(tablet bool) []Profile {
	profiles := []Profile{ProfileDesktop, ProfileMobile}
	if tablet {
		profiles = append(profiles, ProfileTablet)
	}
	return profiles
}
