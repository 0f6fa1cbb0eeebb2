package client

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/koltyakov/fbxos/internal/domain"
)

// Envelope is the vendor's uniform response wrapper.
type Envelope struct {
	Success   bool
	Result    json.RawMessage
	Msg       string
	ErrorCode string
	// Raw is the whole decoded body.
	Raw map[string]any
}

// BuildEnvelope parses and validates a response body. Every response goes
// through here: success must be a boolean, and a failure must carry both msg
// and error_code.
func BuildEnvelope(body []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &domain.MalformedResponseError{Reason: "body is not a JSON object", Body: string(body), Err: err}
	}
	if fields == nil {
		return nil, &domain.MalformedResponseError{Reason: "body is not a JSON object", Body: string(body)}
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &domain.MalformedResponseError{Reason: "body is not a JSON object", Body: string(body), Err: err}
	}

	successRaw, ok := fields["success"]
	if !ok {
		return nil, &domain.MalformedResponseError{Reason: "missing success", Body: string(body)}
	}
	env := &Envelope{Raw: raw}
	if err := json.Unmarshal(successRaw, &env.Success); err != nil || isNull(successRaw) {
		return nil, &domain.MalformedResponseError{Reason: "success is not a boolean", Body: string(body), Err: err}
	}
	if r, ok := fields["result"]; ok && !isNull(r) {
		env.Result = r
	}

	var err error
	if env.Msg, ok, err = stringField(fields, "msg"); err != nil {
		return nil, &domain.MalformedResponseError{Reason: "msg is not a string", Body: string(body), Err: err}
	} else if !ok && !env.Success {
		return nil, &domain.MalformedResponseError{Reason: "failure without msg", Body: string(body)}
	}
	if env.ErrorCode, ok, err = stringField(fields, "error_code"); err != nil {
		return nil, &domain.MalformedResponseError{Reason: "error_code is not a string", Body: string(body), Err: err}
	} else if !ok && !env.Success {
		return nil, &domain.MalformedResponseError{Reason: "failure without error_code", Body: string(body)}
	}
	return env, nil
}

// HasResult reports whether result is present and not null.
func (e *Envelope) HasResult() bool {
	return len(e.Result) > 0
}

// DecodeResult unmarshals result into v. An absent or null result leaves v
// untouched.
func (e *Envelope) DecodeResult(v any) error {
	if !e.HasResult() {
		return nil
	}
	if err := json.Unmarshal(e.Result, v); err != nil {
		return &domain.MalformedResponseError{Reason: fmt.Sprintf("decode result: %v", err), Body: string(e.Result), Err: err}
	}
	return nil
}

// Failure returns the failure half of the envelope.
func (e *Envelope) Failure() *domain.FailureEnvelope {
	return &domain.FailureEnvelope{Msg: e.Msg, ErrorCode: e.ErrorCode}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", true, err
	}
	return s, true, nil
}
