// Package domain defines the records and wire types shared across the fbxos
// client, object model, mirror and command-line layers.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Registration status values reported by the authorize tracking endpoint.
const (
	RegistrationUnknown = "unknown"
	RegistrationPending = "pending"
	RegistrationTimeout = "timeout"
	RegistrationGranted = "granted"
	RegistrationDenied  = "denied"
)

// Registration is the result of pairing this app with a device. It is
// created once by the registration flow and loaded at startup afterwards.
type Registration struct {
	AppToken string `json:"app_token"`
	TrackID  int    `json:"track_id"`
}

// Validate reports a [ConfigurationError] when either field is missing.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.AppToken) == "" {
		return &ConfigurationError{Field: "app_token", Hint: HintRegister, Err: ErrNotRegistered}
	}
	if r.TrackID <= 0 {
		return &ConfigurationError{Field: "track_id", Hint: HintRegister, Err: ErrNotRegistered}
	}
	return nil
}

// Addressing locates the device API. It is discovered once, cached to disk,
// and treated as immutable for the rest of the process.
type Addressing struct {
	Protocol   string `json:"protocol"`
	APIDomain  string `json:"api_domain"`
	Port       int    `json:"port"`
	APIBaseURL string `json:"api_base_url"`
	APIVersion string `json:"api_version"`
}

// Validate reports a [ConfigurationError] for incomplete addressing data.
func (a Addressing) Validate() error {
	switch {
	case a.Protocol != "http" && a.Protocol != "https":
		return &ConfigurationError{Field: "protocol", Hint: HintDiscover}
	case strings.TrimSpace(a.APIDomain) == "":
		return &ConfigurationError{Field: "api_domain", Hint: HintDiscover}
	case a.Port <= 0 || a.Port > 65535:
		return &ConfigurationError{Field: "port", Hint: HintDiscover}
	case a.MajorVersion() == "":
		return &ConfigurationError{Field: "api_version", Hint: HintDiscover}
	}
	return nil
}

// DeviceAddress returns scheme://domain:port, which also serves as the
// provenance tag of objects fetched live.
func (a Addressing) DeviceAddress() string {
	return fmt.Sprintf("%s://%s:%d", a.Protocol, a.APIDomain, a.Port)
}

// MajorVersion returns the API major version ("8" for "8.2").
func (a Addressing) MajorVersion() string {
	v := strings.TrimPrefix(strings.TrimSpace(a.APIVersion), "v")
	if idx := strings.Index(v, "."); idx >= 0 {
		v = v[:idx]
	}
	if _, err := strconv.Atoi(v); err != nil {
		return ""
	}
	return v
}

// APIBase returns the versioned API root, e.g. https://host:443/api/v8.
func (a Addressing) APIBase() string {
	base := a.APIBaseURL
	if base == "" {
		base = "/api/"
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return a.DeviceAddress() + base + "v" + a.MajorVersion()
}

// APIURL joins an endpoint path onto [Addressing.APIBase].
func (a Addressing) APIURL(endpoint string) string {
	if endpoint == "" {
		return a.APIBase() + "/"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return a.APIBase() + endpoint
}
