// Package version holds build metadata.
package version

import "runtime"

// Version is overridden at build time with -ldflags "-X".
var Version = "0.1.0"

// Commit is the VCS revision, when stamped by the build.
var Commit = ""

// String renders the version line printed by `tempo version`.
func String() string {
	s := "tempo " + Version
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	return s + " " + runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH
}
