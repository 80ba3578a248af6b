package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

var (
	// AppName is the user-facing application name.
	AppName = "mega-scraper"

	// Version is the release version, overridable via ldflags.
	Version = "0.1.0-dev"

	// Revision is the git commit the binary was built from.
	Revision = "HEAD"
)

// Short returns a concise version string - `0.1.0 (5e23a4)`.
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}

// Detailed returns a version string with toolchain and platform info.
func Detailed() string {
	return fmt.Sprintf("%s (%s; %s; %s/%s)", Version, Revision, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies the binary in outbound HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", AppName, Version)
}

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return
	}

	if Version == "0.1.0-dev" || Version == "" {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			Version = strings.TrimPrefix(v, "v")
		}
	}

	if Revision == "HEAD" || Revision == "" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				Revision = s.Value
				break
			}
		}
	}
}
