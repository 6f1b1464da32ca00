// Package version carries build metadata and the User-Agent string
// sent with every outbound request.
package version

import (
	"fmt"
	"runtime"
)

var (
	Name    = "estransport"
	Version = "v0.1.0"
	Commit  = "none"
	Date    = "nowish"
)

// UserAgent computes the library's User-Agent header on each call;
// CachedUserAgent returns the value computed once per process.
// Format: "<name>/<version> (<os> <arch>; Runtime <go version>)"
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s %s; Runtime %s)", Name, Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

var cachedUserAgent = UserAgent()

// CachedUserAgent returns the process-wide computed User-Agent value,
// avoiding recomputation on every request.
func CachedUserAgent() string {
	return cachedUserAgent
}
