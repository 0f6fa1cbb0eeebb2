package versionutil

import "testing"

func TestEnsureVPrefix(t *testing.T) {
	for in, want := range map[string]string{"": "", "1.2.3": "v1.2.3", "v1.2.3": "v1.2.3"} {
		if got := EnsureVPrefix(in); got != want {
			t.Fatalf("EnsureVPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAppVersion(t *testing.T) {
	cases := map[string]string{
		"dev":               "0.0.0",
		"":                  "0.0.0",
		"v1.4.0":            "1.4.0",
		"v1.4.0-3-gabc-dev": "1.4.0",
		"2.0.1+meta":        "2.0.1",
	}
	for in, want := range cases {
		if got := AppVersion(in); got != want {
			t.Fatalf("AppVersion(%q) = %q, want %q", in, got, want)
		}
	}
}
