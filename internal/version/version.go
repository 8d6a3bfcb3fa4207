// Package version carries build metadata of the callgen CLI.
// The variables can be overridden at build time via -ldflags.
package version

import "github.com/fatih/color"

var (
	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// GitMessage is an optional git commit message.
	GitMessage = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)
)

// Colored renders v with each numeric component in its own color.
// Anything past major.minor.patch is left plain.
func Colored(v string, enabled bool) string {
	parts := splitVersion(v)
	if parts == nil {
		return v
	}
	cs := []*color.Color{majorColor, minorColor, patchColor}
	for _, c := range cs {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return cs[0].Sprint(parts[0]) + "." + cs[1].Sprint(parts[1]) + "." + cs[2].Sprint(parts[2]) + parts[3]
}

// splitVersion breaks "1.2.3-rc" into "1", "2", "3", "-rc".
func splitVersion(v string) []string {
	var out []string
	rest := v
	for i := range 3 {
		j := 0
		for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
			j++
		}
		if j == 0 {
			return nil
		}
		out = append(out, rest[:j])
		rest = rest[j:]
		if i < 2 {
			if rest == "" || rest[0] != '.' {
				return nil
			}
			rest = rest[1:]
		}
	}
	return append(out, rest)
}
