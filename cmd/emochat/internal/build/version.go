// Package build holds version information injected via ldflags:
//
//	go build -ldflags "-X github.com/haivivi/emochat/cmd/emochat/internal/build.Version=v1.0.0 \
//	  -X github.com/haivivi/emochat/cmd/emochat/internal/build.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/haivivi/emochat/cmd/emochat/internal/build.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package build

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Name is the service name reported by the CLI and the HTTP API.
const Name = "emochat"

// String returns a formatted version string.
func String() string {
	return fmt.Sprintf("%s %s (%s) built %s %s/%s",
		Name, Version, Commit, Date, runtime.GOOS, runtime.GOARCH)
}
