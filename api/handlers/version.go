package handlers

import "net/http"

// Build metadata, stamped through ldflags in main. The zero values identify
// a binary built without the release wrapper.
var buildInfo = VersionResponse{
	Service: "insight-api",
	Version: "dev",
	Commit:  "none",
	Date:    "unknown",
}

// SetBuildInfo records the ldflags values for /api/version.
func SetBuildInfo(version, commit, date string) {
	buildInfo.Version = version
	buildInfo.Commit = commit
	buildInfo.Date = date
}

// VersionResponse describes the build serving requests.
type VersionResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// GetVersion reports the running build.
func GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildInfo)
}
