// Package runner holds build metadata for the runner command and MCP server.
package runner

import "runtime/debug"

// Version is set at build time with
// -ldflags "-X github.com/foward955/runner.Version=v1.2.3". Without it the
// module version from the build info is used.
var Version = "(devel)"

func init() {
	if Version != "(devel)" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		Version = info.Main.Version
	}
}
