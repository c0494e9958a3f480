// Package buildinfo carries version metadata stamped at link time:
//
//	-X 'github.com/m3rciful/printbot/core/buildinfo.Version=v0.3.0'
//	-X 'github.com/m3rciful/printbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/printbot/core/buildinfo.Date=2026-10-01T12:00:00Z'
package buildinfo

// Defaults are what a plain `go build` produces.
var (
	Version = "dev"
	Commit  = "local"
	Date    = ""
)
