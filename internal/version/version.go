package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/fatih/color"
)

// Version information for the retaincheck CLI.
// These variables can be overridden at build time via -ldflags.

var (
	versionMajorColor = color.New(color.FgYellow, color.Bold)
	versionMinorColor = color.New(color.FgGreen, color.Bold)
	versionPatchColor = color.New(color.FgBlue, color.Bold)

	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// GitMessage is an optional git commit message.
	GitMessage = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

// Parse returns Version as a semver value.
func Parse() (*semver.Version, error) {
	v, err := semver.NewVersion(strings.TrimSpace(Version))
	if err != nil {
		return nil, fmt.Errorf("version %q: %w", Version, err)
	}
	return v, nil
}

// Colored renders Version with one color per component.
// Versions that do not parse are returned unchanged.
func Colored(enabled bool) string {
	v, err := Parse()
	if err != nil {
		return Version
	}
	out := sprint(versionMajorColor, enabled, v.Major()) + "." +
		sprint(versionMinorColor, enabled, v.Minor()) + "." +
		sprint(versionPatchColor, enabled, v.Patch())
	if pre := v.Prerelease(); pre != "" {
		out += "-" + pre
	}
	if meta := v.Metadata(); meta != "" {
		out += "+" + meta
	}
	return out
}

func sprint(c *color.Color, enabled bool, n uint64) string {
	if !enabled {
		return fmt.Sprint(n)
	}
	c.EnableColor()
	return c.Sprint(n)
}
