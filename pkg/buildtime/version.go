// Package buildtime tells how the running binary was built.
package buildtime

import (
	"runtime"
	"runtime/debug"
)

// Module is the module path of this library.
const Module = "github.com/opst/savethat"

// devel is the version of modules built from a working tree.
const devel = "(devel)"

// Version returns the version of this library linked into the running binary.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return devel
	}
	return versionIn(info)
}

func versionIn(info *debug.BuildInfo) string {
	if info.Main.Path == Module {
		return orDevel(info.Main.Version)
	}
	for _, d := range info.Deps {
		if d.Path != Module {
			continue
		}
		if d.Replace != nil {
			return orDevel(d.Replace.Version)
		}
		return orDevel(d.Version)
	}
	return devel
}

func orDevel(v string) string {
	if v == "" {
		return devel
	}
	return v
}

// VersionString describes the version with the Go toolchain, like "v0.1.0 (go1.23.1 linux/amd64)".
func VersionString() string {
	return Version() + " (" + runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
