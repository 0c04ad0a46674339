// Package version reports build metadata for boothcam.
package version

import (
	"log/slog"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/smazurov/boothcam/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

// Info is the build metadata served on /api/version.
type Info struct {
	Version   string
	GitCommit string
	BuildDate string
	Modified  bool
	GoVersion string
	Compiler  string
	Platform  string
}

// Get returns the build metadata. Commit and date fall back to the VCS stamp
// the go tool embeds when they were not set at link time.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.GitCommit == "":
				info.GitCommit = s.Value
			case s.Key == "vcs.time" && info.BuildDate == "":
				info.BuildDate = s.Value
			case s.Key == "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if len(info.GitCommit) > 12 {
		info.GitCommit = info.GitCommit[:12]
	}
	if info.GitCommit == "" {
		info.GitCommit = "unknown"
	}
	if info.BuildDate == "" {
		info.BuildDate = "unknown"
	}
	return info
}

// LogValue implements slog.LogValuer.
func (i Info) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", i.Version),
		slog.String("commit", i.GitCommit),
		slog.Bool("modified", i.Modified),
		slog.String("go", i.GoVersion),
		slog.String("platform", i.Platform),
	)
}

// String returns the application version.
func String() string {
	return Version
}
