package client

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"

	"github.com/koltyakov/fbxos/internal/domain"
)

// State is the session state.
type State int

// Session states. Revoked behaves like Anonymous for the next request.
const (
	StateAnonymous State = iota
	StateChallenged
	StateAuthenticated
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateChallenged:
		return "challenged"
	case StateAuthenticated:
		return "authenticated"
	case StateRevoked:
		return "revoked"
	}
	return "invalid"
}

// session is guarded by mu. Login holds mu for the whole exchange so that
// concurrent callers wait for one re-login instead of starting their own.
type session struct {
	mu          sync.Mutex
	reg         domain.Registration
	state       State
	challenge   string
	token       string
	permissions domain.Permissions
}

// SessionPassword derives the session password: the lower-case hex
// HMAC-SHA1 of challenge keyed with appToken.
func SessionPassword(appToken, challenge string) string {
	mac := hmac.New(sha1.New, []byte(appToken))
	mac.Write([]byte(challenge))
	return hex.EncodeToString(mac.Sum(nil))
}

// State returns the current session state.
func (c *Client) State() State {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	return c.session.state
}

// Permissions returns the rights granted with the current session, or nil
// when not authenticated.
func (c *Client) Permissions() domain.Permissions {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	if c.session.state != StateAuthenticated {
		return nil
	}
	out := make(domain.Permissions, len(c.session.permissions))
	for k, v := range c.session.permissions {
		out[k] = v
	}
	return out
}

// Registration returns the registration the client authenticates with.
func (c *Client) Registration() domain.Registration {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	return c.session.reg
}

// Login opens a session if none is active.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.ensureSession(ctx)
	return err
}

// SessionToken returns the current session token, logging in first when
// needed.
func (c *Client) SessionToken(ctx context.Context) (string, error) {
	return c.ensureSession(ctx)
}

// Logout closes the current session. It is a no-op without one.
func (c *Client) Logout(ctx context.Context) error {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	if c.session.state != StateAuthenticated {
		return nil
	}
	token := c.session.token
	c.revokeLocked()

	env, err := c.roundTrip(ctx, http.MethodPost, "/login/logout/", []byte("{}"), token, 0)
	if err != nil {
		return authError(domain.StageLogout, err)
	}
	if !env.Success {
		return &domain.AuthError{Stage: domain.StageLogout, Msg: env.Msg, ErrorCode: env.ErrorCode}
	}
	return nil
}

func (c *Client) ensureSession(ctx context.Context) (string, error) {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	if c.session.state == StateAuthenticated {
		return c.session.token, nil
	}
	if err := c.loginLocked(ctx); err != nil {
		return "", err
	}
	return c.session.token, nil
}

func (c *Client) loginLocked(ctx context.Context) error {
	reg := c.session.reg
	if err := reg.Validate(); err != nil {
		return err
	}
	c.session.token = ""
	c.session.permissions = nil

	env, err := c.roundTrip(ctx, http.MethodGet, "/login/", nil, "", 0)
	if err != nil {
		return authError(domain.StageChallenge, err)
	}
	if !env.Success {
		return &domain.AuthError{Stage: domain.StageChallenge, Msg: env.Msg, ErrorCode: env.ErrorCode}
	}
	var status domain.LoginStatus
	if err := env.DecodeResult(&status); err != nil {
		return authError(domain.StageChallenge, err)
	}
	if status.Challenge == "" {
		return &domain.AuthError{Stage: domain.StageChallenge, Err: errors.New("device returned no challenge")}
	}
	c.session.challenge = status.Challenge
	c.session.state = StateChallenged

	req := domain.SessionRequest{AppID: c.app.AppID, Password: SessionPassword(reg.AppToken, status.Challenge)}
	payload, err := encodeBody(http.MethodPost, req)
	if err != nil {
		return err
	}
	env, err = c.roundTrip(ctx, http.MethodPost, "/login/session/", payload, "", 0)
	if err != nil {
		return authError(domain.StageSession, err)
	}
	if !env.Success {
		return &domain.AuthError{Stage: domain.StageSession, Msg: env.Msg, ErrorCode: env.ErrorCode}
	}
	var result domain.SessionResult
	if err := env.DecodeResult(&result); err != nil {
		return authError(domain.StageSession, err)
	}
	if result.SessionToken == "" {
		return &domain.AuthError{Stage: domain.StageSession, Err: errors.New("device returned no session token")}
	}

	c.session.token = result.SessionToken
	c.session.permissions = result.Permissions
	c.session.state = StateAuthenticated
	c.log.Debug("session opened", "app_id", c.app.AppID, "permissions", result.Permissions)
	if !result.Permissions.Has("settings") {
		c.log.Warn("permission 'settings' is not granted to this app on the device; configuration changes will likely fail")
	}
	return nil
}

// DropSession forgets the session after a non-HTTP channel, such as the
// event websocket, was refused with token. The next call logs in again.
func (c *Client) DropSession(ctx context.Context, token string) {
	c.dropSession(ctx, token)
}

// dropSession forgets the session after the device rejected token. If
// another caller already replaced the session, the new one is kept.
func (c *Client) dropSession(ctx context.Context, token string) {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	if c.session.token != token || c.session.state != StateAuthenticated {
		return
	}
	c.revokeLocked()
	if _, err := c.roundTrip(ctx, http.MethodPost, "/login/logout/", []byte("{}"), token, 0); err != nil {
		c.log.Debug("logout of rejected session failed", "err", err)
	}
}

func (c *Client) revokeLocked() {
	c.session.state = StateRevoked
	c.session.token = ""
	c.session.challenge = ""
	c.session.permissions = nil
}

// authError wraps a transport failure during an auth stage. A failure
// envelope carried by an HTTP error status is surfaced as the stage error.
func authError(stage domain.AuthStage, err error) error {
	var pe *domain.ProtocolError
	if errors.As(err, &pe) && pe.Envelope != nil {
		return &domain.AuthError{Stage: stage, Msg: pe.Envelope.Msg, ErrorCode: pe.Envelope.ErrorCode, Err: err}
	}
	var cfg *domain.ConfigurationError
	if errors.As(err, &cfg) {
		return err
	}
	return &domain.AuthError{Stage: stage, Err: err}
}
