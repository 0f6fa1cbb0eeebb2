// Package fakebox runs an in-process FreeboxOS API double for tests. It
// implements the challenge/session login, the registration endpoints and
// lets tests register canned results and inject HTTP 403 responses.
package fakebox

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/koltyakov/fbxos/internal/domain"
)

// APIVersion is the version advertised by the double.
const APIVersion = "8.0"

// Server is a fake device.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	appToken     string
	trackID      int
	trackStatus  map[int]string
	challenge    string
	sessionToken string
	sessions     int
	permissions  domain.Permissions
	handlers     map[string]http.HandlerFunc
	forbidden    map[string]int
	hits         map[string]int
	bodies       map[string][]json.RawMessage
}

// New starts a fake device and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		appToken:    "app-token-0123456789",
		trackID:     7,
		trackStatus: map[int]string{7: domain.RegistrationGranted},
		challenge:   "challenge-0",
		permissions: domain.Permissions{"settings": true, "calls": true, "contacts": true},
		handlers:    map[string]http.HandlerFunc{},
		forbidden:   map[string]int{},
		hits:        map[string]int{},
		bodies:      map[string][]json.RawMessage{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Addressing points a client at the double.
func (s *Server) Addressing() domain.Addressing {
	host, port, _ := net.SplitHostPort(strings.TrimPrefix(s.URL, "http://"))
	p, _ := strconv.Atoi(port)
	return domain.Addressing{Protocol: "http", APIDomain: host, Port: p, APIBaseURL: "/api/", APIVersion: APIVersion}
}

// Registration returns credentials the double accepts.
func (s *Server) Registration() domain.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Registration{AppToken: s.appToken, TrackID: s.trackID}
}

// SetTrackStatus sets the pairing status reported for trackID.
func (s *Server) SetTrackStatus(trackID int, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackStatus[trackID] = status
}

// SetPermissions sets the rights granted with new sessions.
func (s *Server) SetPermissions(p domain.Permissions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions = p
}

// Sessions returns how many sessions were opened.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// Handle registers h for method and an endpoint relative to the API root,
// e.g. Handle("GET", "/call/log/", h). Requests reaching h are authenticated.
func (s *Server) Handle(method, endpoint string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method+" "+endpoint] = h
}

// HandleResult answers method endpoint with a success envelope around result.
func (s *Server) HandleResult(method, endpoint string, result any) {
	s.Handle(method, endpoint, func(w http.ResponseWriter, _ *http.Request) {
		WriteResult(w, result)
	})
}

// Forbid makes the next n authenticated requests to method endpoint fail
// with HTTP 403.
func (s *Server) Forbid(method, endpoint string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forbidden[method+" "+endpoint] = n
}

// Hits returns how many requests reached method endpoint, including
// rejected ones.
func (s *Server) Hits(method, endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+endpoint]
}

// Bodies returns the JSON bodies received on method endpoint.
func (s *Server) Bodies(method, endpoint string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.bodies[method+" "+endpoint]...)
}

// WriteResult writes a success envelope.
func WriteResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": result})
}

// WriteFailure writes a failure envelope with the given HTTP status.
func WriteFailure(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, map[string]any{"success": false, "msg": msg, "error_code": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v" + strings.SplitN(APIVersion, ".", 2)[0]
	if r.URL.Path == "/api_version" {
		s.serveAPIVersion(w)
		return
	}
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	endpoint := strings.TrimPrefix(r.URL.Path, prefix)
	key := r.Method + " " + endpoint

	var body json.RawMessage
	if r.Body != nil {
		raw, _ := io.ReadAll(r.Body)
		if json.Valid(raw) {
			body = raw
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))
	}

	s.mu.Lock()
	s.hits[key]++
	if body != nil {
		s.bodies[key] = append(s.bodies[key], body)
	}
	s.mu.Unlock()

	switch {
	case key == "GET /login/":
		s.serveChallenge(w)
		return
	case key == "POST /login/session/":
		s.serveSession(w, body)
		return
	case key == "POST /login/authorize/":
		s.serveAuthorize(w)
		return
	case r.Method == http.MethodGet && strings.HasPrefix(endpoint, "/login/authorize/"):
		s.serveTrack(w, strings.TrimPrefix(endpoint, "/login/authorize/"))
		return
	}

	s.mu.Lock()
	token := s.sessionToken
	forbid := s.forbidden[key]
	if forbid > 0 {
		s.forbidden[key] = forbid - 1
	}
	h := s.handlers[key]
	s.mu.Unlock()

	if token == "" || r.Header.Get("X-Fbx-App-Auth") != token || forbid > 0 {
		WriteFailure(w, http.StatusForbidden, "Insufficient rights", "insufficient_rights")
		return
	}
	if key == "POST /login/logout/" {
		s.mu.Lock()
		s.sessionToken = ""
		s.mu.Unlock()
		WriteResult(w, nil)
		return
	}
	if h == nil {
		WriteFailure(w, http.StatusNotFound, "Invalid API request", "invalid_request")
		return
	}
	h(w, r)
}

func (s *Server) serveAPIVersion(w http.ResponseWriter) {
	host, port, _ := net.SplitHostPort(strings.TrimPrefix(s.URL, "http://"))
	p, _ := strconv.Atoi(port)
	writeJSON(w, http.StatusOK, domain.APIVersionInfo{
		APIDomain:  host,
		HTTPSPort:  p,
		APIBaseURL: "/api/",
		APIVersion: APIVersion,
		DeviceName: "Freebox Server",
	})
}

func (s *Server) serveChallenge(w http.ResponseWriter) {
	s.mu.Lock()
	s.challenge = fmt.Sprintf("challenge-%d", s.sessions+1)
	challenge := s.challenge
	s.mu.Unlock()
	WriteResult(w, map[string]any{"logged_in": false, "challenge": challenge})
}

func (s *Server) serveSession(w http.ResponseWriter, body json.RawMessage) {
	var req domain.SessionRequest
	_ = json.Unmarshal(body, &req)

	s.mu.Lock()
	defer s.mu.Unlock()
	mac := hmac.New(sha1.New, []byte(s.appToken))
	mac.Write([]byte(s.challenge))
	if req.Password != hex.EncodeToString(mac.Sum(nil)) {
		WriteFailure(w, http.StatusForbidden, "Invalid password", "invalid_token")
		return
	}
	s.sessions++
	s.sessionToken = fmt.Sprintf("session-%d", s.sessions)
	WriteResult(w, map[string]any{"session_token": s.sessionToken, "challenge": s.challenge, "permissions": s.permissions})
}

func (s *Server) serveAuthorize(w http.ResponseWriter) {
	s.mu.Lock()
	s.trackID++
	s.appToken = fmt.Sprintf("app-token-%d", s.trackID)
	s.trackStatus[s.trackID] = domain.RegistrationPending
	res := domain.AuthorizeResult{AppToken: s.appToken, TrackID: s.trackID}
	s.mu.Unlock()
	WriteResult(w, res)
}

func (s *Server) serveTrack(w http.ResponseWriter, rawID string) {
	id, err := strconv.Atoi(strings.Trim(rawID, "/"))
	if err != nil {
		WriteFailure(w, http.StatusBadRequest, "invalid track id", "invalid_request")
		return
	}
	s.mu.Lock()
	status, ok := s.trackStatus[id]
	s.mu.Unlock()
	if !ok {
		status = domain.RegistrationUnknown
	}
	WriteResult(w, domain.AuthorizeStatus{Status: status})
}
