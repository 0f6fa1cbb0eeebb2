package domain

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Corrective instructions attached to configuration errors.
const (
	HintRegister = "run `fbxos register` first"
	HintDiscover = "run `fbxos discover` to refresh the device address"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries. Callers should use [errors.Is] to match these.
var (
	// ErrNotRegistered means no usable app_token/track_id pair is available.
	ErrNotRegistered = errors.New("app is not registered")

	// ErrRegistrationPending means the user has not yet confirmed the
	// authorization request on the device.
	ErrRegistrationPending = errors.New("registration pending: confirm the request on the device")

	// ErrRegistrationDenied means the user refused the authorization request.
	ErrRegistrationDenied = errors.New("registration denied on the device")

	// ErrRegistrationTimeout means the authorization request expired.
	ErrRegistrationTimeout = errors.New("registration timed out: register again")

	// ErrRegistrationUnknown means the device does not know the track id.
	ErrRegistrationUnknown = errors.New("registration unknown to the device: register again")

	// ErrNotFound is returned when an object is absent from a collection or
	// the local mirror.
	ErrNotFound = errors.New("not found")
)

// RegistrationStatusError maps a terminal registration status to its
// sentinel error, or nil for "granted".
func RegistrationStatusError(status string) error {
	switch status {
	case RegistrationGranted:
		return nil
	case RegistrationPending:
		return ErrRegistrationPending
	case RegistrationDenied:
		return ErrRegistrationDenied
	case RegistrationTimeout:
		return ErrRegistrationTimeout
	case RegistrationUnknown:
		return ErrRegistrationUnknown
	}
	return fmt.Errorf("unexpected registration status %q", status)
}

// ConfigurationError reports missing or invalid local registration or
// addressing data. It is detected before any network call is made.
type ConfigurationError struct {
	Field string
	Hint  string
	Err   error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration: ")
	if e.Field != "" {
		b.WriteString("missing or invalid ")
		b.WriteString(e.Field)
	}
	if e.Err != nil {
		if e.Field != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	if e.Hint != "" {
		b.WriteString(" (")
		b.WriteString(e.Hint)
		b.WriteString(")")
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// FailureEnvelope is the error half of a vendor response envelope.
type FailureEnvelope struct {
	Msg       string
	ErrorCode string
}

// ProtocolError reports a non-2xx HTTP status or a network failure while
// talking to the device.
type ProtocolError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	// Envelope is set when the error body was a well-formed failure envelope.
	Envelope *FailureEnvelope
	Err      error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	if e.Envelope != nil {
		return fmt.Sprintf("%s %s: http status %d: %s (%s)", e.Method, e.Path, e.StatusCode, e.Envelope.Msg, e.Envelope.ErrorCode)
	}
	return fmt.Sprintf("%s %s: http status %d: %s", e.Method, e.Path, e.StatusCode, truncate(e.Body, 256))
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying network failure was a timeout.
func (e *ProtocolError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// AuthStage names the step of the authentication protocol that failed.
type AuthStage string

// Authentication stages.
const (
	StageChallenge    AuthStage = "challenge"
	StageSession      AuthStage = "session"
	StageRegistration AuthStage = "registration"
	StageLogout       AuthStage = "logout"
)

// AuthError reports a failure envelope (or rejected request) during the
// challenge, session, registration or logout exchanges.
type AuthError struct {
	Stage     AuthStage
	Msg       string
	ErrorCode string
	Err       error
}

func (e *AuthError) Error() string {
	switch {
	case e.Msg != "" || e.ErrorCode != "":
		return fmt.Sprintf("%s failure: %s (%s)", e.Stage, e.Msg, e.ErrorCode)
	case e.Err != nil:
		return fmt.Sprintf("%s failure: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s failure", e.Stage)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// MalformedResponseError reports a response that violates the envelope
// invariants. It always indicates a vendor or parsing defect.
type MalformedResponseError struct {
	Reason string
	Body   string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return "malformed response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// RequestFailure reports a failure envelope on an operational call.
type RequestFailure struct {
	Method    string
	Path      string
	Msg       string
	ErrorCode string
}

func (e *RequestFailure) Error() string {
	return fmt.Sprintf("%s %s: request failure: %s (%s)", e.Method, e.Path, e.Msg, e.ErrorCode)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
