package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/koltyakov/fbxos/internal/domain"
)

// RequestOption customizes a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	timeout  time.Duration
	skipAuth bool
}

// WithTimeout overrides the client timeout for one request.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = d
	}
}

// SkipAuth sends the request without a session header and without logging
// in first.
func SkipAuth() RequestOption {
	return func(o *requestOptions) {
		o.skipAuth = true
	}
}

// Get issues GET {api}/{path}.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, path, nil, opts...)
}

// Put issues PUT {api}/{path} with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Envelope, error) {
	return c.Do(ctx, http.MethodPut, path, body, opts...)
}

// Post issues POST {api}/{path}. A nil body is sent as {}.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, path, body, opts...)
}

// Delete issues DELETE {api}/{path}. A nil body is sent as {}.
func (c *Client) Delete(ctx context.Context, path string, body any, opts ...RequestOption) (*Envelope, error) {
	return c.Do(ctx, http.MethodDelete, path, body, opts...)
}

// Do performs one API call. Unless [SkipAuth] is given it ensures a session
// first; an HTTP 403 then drops the session, waits RetryBackoff, logs in
// again and retries, up to MaxAttempts attempts in total. A failure
// envelope on a 2xx response is returned as *domain.RequestFailure.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Envelope, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	payload, err := encodeBody(method, body)
	if err != nil {
		return nil, err
	}

	var env *Envelope
	if o.skipAuth {
		env, err = c.roundTrip(ctx, method, path, payload, "", o.timeout)
	} else {
		env, err = c.doAuthenticated(ctx, method, path, payload, o.timeout)
	}
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &domain.RequestFailure{Method: method, Path: path, Msg: env.Msg, ErrorCode: env.ErrorCode}
	}
	return env, nil
}

func (c *Client) doAuthenticated(ctx context.Context, method, path string, payload []byte, timeout time.Duration) (*Envelope, error) {
	var env *Envelope
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(c.opts.MaxAttempts-1), retry.NewConstant(c.opts.RetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		token, err := c.ensureSession(ctx)
		if err != nil {
			return err
		}
		e, err := c.roundTrip(ctx, method, path, payload, token, timeout)
		if isForbidden(err) {
			c.log.Warn("session rejected by device, re-authenticating",
				"method", method, "path", path, "attempt", attempt, "max_attempts", c.opts.MaxAttempts)
			c.dropSession(ctx, token)
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		env = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

// roundTrip sends one HTTP request and validates the envelope. It never
// touches the session.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, token string, timeout time.Duration) (*Envelope, error) {
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.addr.APIURL(path), reader)
	if err != nil {
		return nil, &domain.ProtocolError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set(headerAuth, token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", "method", method, "path", path, "err", shortenError(err))
		return nil, &domain.ProtocolError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.ProtocolError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	c.log.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := &domain.ProtocolError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(body)}
		if env, envErr := BuildEnvelope(body); envErr == nil && !env.Success {
			pe.Envelope = env.Failure()
		}
		return nil, pe
	}
	return BuildEnvelope(body)
}

func encodeBody(method string, body any) ([]byte, error) {
	if body == nil {
		if method == http.MethodGet {
			return nil, nil
		}
		return []byte("{}"), nil
	}
	if raw, ok := body.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", method, err)
	}
	return b, nil
}

func isForbidden(err error) bool {
	var pe *domain.ProtocolError
	return errors.As(err, &pe) && pe.StatusCode == http.StatusForbidden
}
