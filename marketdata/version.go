package marketdata

import (
	"runtime/debug"
	"strings"
	"sync"
)

const modulePath = "github.com/activetick-http/activetick-go"

// BuildVersion describes the running binary.
type BuildVersion struct {
	Go     string
	Module string // empty when built from a local checkout
}

var buildVersion = sync.OnceValue(func() BuildVersion {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return BuildVersion{}
	}
	v := BuildVersion{Go: info.GoVersion}
	if info.Main.Path == modulePath && info.Main.Version != "(devel)" {
		v.Module = info.Main.Version
		return v
	}
	for _, dep := range info.Deps {
		if strings.HasPrefix(dep.Path, modulePath) {
			v.Module = dep.Version
			break
		}
	}
	return v
})

// Version returns the go version and activetick-go version of the binary.
func Version() BuildVersion {
	return buildVersion()
}

// userAgent is sent with every request so proxy logs can tell clients apart.
func userAgent() string {
	v := Version()
	mod := v.Module
	if mod == "" {
		mod = "devel"
	}
	ua := "activetick-go/" + mod
	if v.Go != "" {
		ua += " " + v.Go
	}
	return ua
}
