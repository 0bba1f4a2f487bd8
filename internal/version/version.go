// Package version carries build metadata and compares dotted versions, which
// warden uses both for itself and for the Ergo app reported by a device.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
)

// Set with -ldflags "-X github.com/mrz1836/warden/internal/version.Version=...".
//
//nolint:gochecknoglobals // Link-time variables
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build info, filling the commit from the module's VCS
// stamp when it was not linked in.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.Commit != "" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = s.Value
				}
			}
		}
	}
	return info
}

func (i Info) String() string {
	s := "warden " + i.Version
	if i.Commit != "" {
		c := i.Commit
		if len(c) > 12 {
			c = c[:12]
		}
		s += " (" + c + ")"
	}
	return fmt.Sprintf("%s %s %s", s, i.GoVersion, i.Platform)
}

// Compare compares two dotted versions numerically over major, minor and
// patch. It returns 1, 0 or -1. A leading "v" and any "-" or "+" suffix are
// ignored. "dev", "" and commit hashes sort before every release.
func Compare(a, b string) int {
	aDev, bDev := isDev(a), isDev(b)
	switch {
	case aDev && bDev:
		return 0
	case aDev:
		return -1
	case bDev:
		return 1
	}

	pa, pb := parts(a), parts(b)
	for i := range 3 {
		if pa[i] != pb[i] {
			if pa[i] > pb[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// AtLeast reports whether v is min or newer. An empty min always passes.
func AtLeast(v, minimum string) bool {
	return minimum == "" || Compare(v, minimum) >= 0
}

// Normalize strips whitespace, leading "v"s and any pre-release or build
// suffix.
func Normalize(v string) string {
	v = strings.TrimLeft(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i != -1 {
		v = v[:i]
	}
	return v
}

func parts(v string) [3]int {
	var out [3]int
	for i, p := range strings.SplitN(Normalize(v), ".", 3) {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		out[i] = n
	}
	return out
}

func isDev(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == "dev" || isCommitHash(v)
}

// isCommitHash matches 7-40 hex characters with at least one letter.
func isCommitHash(s string) bool {
	s = strings.TrimSuffix(s, "-dirty")
	if len(s) < 7 || len(s) > 40 {
		return false
	}
	letter := false
	for _, c := range strings.ToLower(s) {
		switch {
		case c >= 'a' && c <= 'f':
			letter = true
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return letter
}
