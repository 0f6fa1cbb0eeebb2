// Package versionutil normalizes build version strings.
package versionutil

import "strings"

// EnsureVPrefix returns s with a leading "v" if it doesn't already have one.
func EnsureVPrefix(s string) string {
	if s != "" && !strings.HasPrefix(s, "v") {
		return "v" + s
	}
	return s
}

// AppVersion returns the bare release number sent to the device in the app
// descriptor: "v1.4.0-3-gabc-dev" becomes "1.4.0". A dev build is "0.0.0".
func AppVersion(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		s = s[:i]
	}
	if s == "" || s == "dev" {
		return "0.0.0"
	}
	return s
}
