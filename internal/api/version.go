package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"runtime/debug"
)

type versionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

// VersionHandler reports build metadata. Values injected with -ldflags win;
// otherwise the VCS stamp Go embeds at build time is used.
func VersionHandler(build BuildInfo) http.Handler {
	body := versionResponse{
		Version:   build.Version,
		GitCommit: build.GitCommit,
		BuildDate: build.BuildDate,
		GoVersion: runtime.Version(),
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		body = body.withVCS(info.Settings)
	}
	body.Version = orDefault(body.Version, "dev")
	body.GitCommit = orDefault(body.GitCommit, "unknown")
	body.BuildDate = orDefault(body.BuildDate, "unknown")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
	})
}

// withVCS fills commit and build date from vcs.* build settings when they
// were not injected.
func (v versionResponse) withVCS(settings []debug.BuildSetting) versionResponse {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if v.GitCommit == "" {
				v.GitCommit = s.Value
			}
		case "vcs.time":
			if v.BuildDate == "" {
				v.BuildDate = s.Value
			}
		case "vcs.modified":
			v.Modified = s.Value == "true"
		}
	}
	return v
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
