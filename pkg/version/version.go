// Package version resolves the build identifier reported in startup logs
// and the health endpoint.
package version

import (
	"runtime/debug"
	"sync"
)

// AppName prefixes version strings.
const AppName = "pce"

// commit is injected at release-build time:
//
//	go build -ldflags "-X github.com/pce-project/pce/pkg/version.commit=<sha>"
//
// When empty, the VCS stamp the Go toolchain embeds is used instead.
var commit string

// Commit returns the short commit hash identifying this build. A locally
// modified tree gets a "-dirty" suffix. Builds without an ldflags override
// or VCS stamp (go test, source archives without .git) report "dev".
var Commit = sync.OnceValue(func() string {
	if commit != "" {
		return short(commit)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	var rev string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return "dev"
	}
	if dirty {
		return short(rev) + "-dirty"
	}
	return short(rev)
})

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "pce/<commit>" for startup logs.
func Full() string {
	return AppName + "/" + Commit()
}
