package version

import "strings"

// Version is set at build time with:
// -ldflags "-X github.com/izzyreal/qwatch/internal/version.Version=vX.Y.Z"
var Version = "dev"

// APIVersion is bumped whenever the queue API response shapes change.
const APIVersion = 1

func Current() string {
	v := strings.TrimSpace(Version)
	if v == "" {
		return "dev"
	}
	return v
}

func UserAgent() string {
	return "qwatch/" + Current()
}
