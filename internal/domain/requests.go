package domain

// AppDescriptor is presented to the device when requesting authorization.
type AppDescriptor struct {
	AppID      string `json:"app_id"`
	AppName    string `json:"app_name"`
	AppVersion string `json:"app_version"`
	DeviceName string `json:"device_name"`
}

// AuthorizeResult is returned by POST /login/authorize/.
type AuthorizeResult struct {
	AppToken string `json:"app_token"`
	TrackID  int    `json:"track_id"`
}

// AuthorizeStatus is returned by GET /login/authorize/{track_id}.
type AuthorizeStatus struct {
	Status    string `json:"status"`
	Challenge string `json:"challenge,omitempty"`
}

// LoginStatus is returned by GET /login/.
type LoginStatus struct {
	LoggedIn     bool   `json:"logged_in"`
	Challenge    string `json:"challenge"`
	PasswordSalt string `json:"password_salt,omitempty"`
}

// SessionRequest is the body of POST /login/session/.
type SessionRequest struct {
	AppID    string `json:"app_id"`
	Password string `json:"password"`
}

// Permissions lists the rights granted to the app on the device.
type Permissions map[string]bool

// Has reports whether the named permission was granted.
func (p Permissions) Has(name string) bool {
	return p[name]
}

// SessionResult is returned by POST /login/session/.
type SessionResult struct {
	SessionToken string      `json:"session_token"`
	Challenge    string      `json:"challenge"`
	Permissions  Permissions `json:"permissions"`
}

// APIVersionInfo is the payload of the unauthenticated /api_version
// endpoint, also published in the mDNS TXT record.
type APIVersionInfo struct {
	APIDomain      string `json:"api_domain"`
	HTTPSAvailable bool   `json:"https_available"`
	HTTPSPort      int    `json:"https_port"`
	APIBaseURL     string `json:"api_base_url"`
	APIVersion     string `json:"api_version"`
	DeviceName     string `json:"device_name,omitempty"`
	BoxModel       string `json:"box_model,omitempty"`
}

// Addressing converts discovery data into an [Addressing] record.
func (v APIVersionInfo) Addressing() Addressing {
	a := Addressing{
		Protocol:   "http",
		APIDomain:  v.APIDomain,
		Port:       80,
		APIBaseURL: v.APIBaseURL,
		APIVersion: v.APIVersion,
	}
	if v.HTTPSAvailable {
		a.Protocol = "https"
		a.Port = v.HTTPSPort
	}
	return a
}

// WifiAPParams is the access point part of the wifi configuration.
type WifiAPParams struct {
	Enabled bool `json:"enabled"`
}

// WifiConfig is the subset of /wifi/config/ used by the radio toggle.
type WifiConfig struct {
	Enabled  *bool         `json:"enabled,omitempty"`
	APParams *WifiAPParams `json:"ap_params,omitempty"`
}

// WifiPlanning is the subset of /wifi/planning/ used by the planning toggle.
type WifiPlanning struct {
	UsePlanning bool `json:"use_planning"`
}

// IsEnabled reports the radio state from either API generation's layout.
func (w WifiConfig) IsEnabled() bool {
	if w.Enabled != nil {
		return *w.Enabled
	}
	return w.APParams != nil && w.APParams.Enabled
}
