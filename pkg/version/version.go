// Package version carries the build stamp set with -ldflags -X.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Lines is the text rendering of the version command
func (i Info) Lines() []string {
	return []string{
		fmt.Sprintf("syncapp %s (%s) built %s", i.Version, i.GitCommit, i.BuildTime),
		fmt.Sprintf("%s %s", i.GoVersion, i.Platform),
	}
}

// UserAgent identifies syncapp to the storage providers
func UserAgent() string {
	return "syncapp/" + Version
}
