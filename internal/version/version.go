// Package version carries build metadata injected with -ldflags.
package version

import "time"

var (
	Version = "dev"
	Commit  = "none"
	Built   = "unknown"
)

type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Built   string `json:"built"`
}

func Info() BuildInfo {
	return BuildInfo{Version: Version, Commit: Commit, Built: Built}
}

// Get answers the GetVersion RPC.
func Get(nodes int, _ *GetVersionRequest) *GetVersionResponse {
	return &GetVersionResponse{
		BuildInfo:     Info(),
		Nodes:         nodes,
		CheckedAtUnix: time.Now().UTC().Unix(),
	}
}
