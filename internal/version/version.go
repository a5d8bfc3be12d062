package version

import (
	"fmt"
	"runtime/debug"
)

var (
	tag       = "dev" // set via ldflags
	commit    = "123abc"
	buildTime = "now"
)

const releaseURL = "https://github.com/noot-app/feed-formulation-mcp-server/releases/tag/"

// Info describes the running build
type Info struct {
	Tag       string `json:"tag"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// buildInfoReader is swapped out in tests
var buildInfoReader = debug.ReadBuildInfo

// Get returns the build info. ldflags values win; VCS stamps fill in the
// commit and time when ldflags left the placeholders.
func Get() Info {
	info := Info{Tag: tag, Commit: commit, BuildTime: buildTime}

	bi, ok := buildInfoReader()
	if !ok || bi == nil {
		return info
	}
	for _, setting := range bi.Settings {
		switch {
		case setting.Key == "vcs.revision" && commit == "123abc":
			info.Commit = setting.Value
		case setting.Key == "vcs.time" && buildTime == "now":
			info.BuildTime = setting.Value
		}
	}
	return info
}

// Number is the bare tag, reported to MCP clients as the server version
func Number() string {
	return tag
}

// String returns the human readable build string printed by the version command
func String() string {
	info := Get()
	return fmt.Sprintf("%s (%s) built at %s\n%s%s", info.Tag, info.Commit, info.BuildTime, releaseURL, info.Tag)
}
