// Package version provides build-time version information.
package version

// CommitHash is the git commit hash of the build.
// It is set at build time via -ldflags:
//
//	go build -ldflags "-X github.com/otiai10/orderhook/internal/version.CommitHash=abc1234"
var CommitHash = "unknown"

// Short returns the abbreviated commit hash
func Short() string {
	if len(CommitHash) > 7 {
		return CommitHash[:7]
	}
	return CommitHash
}
