package events

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/koltyakov/fbxos/internal/domain"
)

const (
	eventPath          = "/ws/event"
	wsHandshakeTimeout = 10 * time.Second
	wsReadLimit        = 1 << 20
	defaultPing        = 30 * time.Second
	defaultReconnect   = time.Second
	maxReconnect       = time.Minute
)

// Session is the part of the device client the watcher needs.
type Session interface {
	SessionToken(ctx context.Context) (string, error)
	// DropSession forgets token after the device refused it.
	DropSession(ctx context.Context, token string)
	Addressing() domain.Addressing
	TLSConfig() *tls.Config
}

// Options configures a [Watcher].
type Options struct {
	Events       []string
	PingInterval time.Duration
	// Reconnect is the first wait after a dropped stream; it doubles up to
	// one minute.
	Reconnect time.Duration
	Logger    *slog.Logger
}

// Watcher streams device events to sinks.
type Watcher struct {
	session Session
	opts    Options
	sinks   []Sink
	log     *slog.Logger
}

type wsMessage struct {
	Action    string          `json:"action"`
	Success   bool            `json:"success"`
	Source    string          `json:"source,omitempty"`
	Event     string          `json:"event,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Msg       string          `json:"msg,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
}

type registerRequest struct {
	Action string   `json:"action"`
	Events []string `json:"events"`
}

// NewWatcher returns a watcher delivering to sinks.
func NewWatcher(s Session, opts Options, sinks ...Sink) *Watcher {
	if len(opts.Events) == 0 {
		opts.Events = DefaultEvents
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPing
	}
	if opts.Reconnect <= 0 {
		opts.Reconnect = defaultReconnect
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{session: s, opts: opts, sinks: sinks, log: logger}
}

// URL returns the websocket URL of the event stream.
func URL(addr domain.Addressing) string {
	u := addr.APIURL(eventPath)
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// Run follows the stream until ctx is done, reconnecting with exponential
// back-off. The back-off restarts after every accepted subscription. A
// rejected subscription stops it.
func (w *Watcher) Run(ctx context.Context) error {
	b, reset := reconnectBackoff(w.opts.Reconnect)
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := w.runOnce(ctx, reset)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var failure *domain.RequestFailure
		if errors.As(err, &failure) {
			return err
		}
		w.log.Warn("event stream dropped, reconnecting", "err", err)
		return retry.RetryableError(err)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// reconnectBackoff returns an exponential back-off capped at one minute and
// a function that makes the next delay start again from base.
func reconnectBackoff(base time.Duration) (retry.Backoff, func()) {
	build := func() retry.Backoff {
		return retry.WithCappedDuration(maxReconnect, retry.NewExponential(base))
	}
	var mu sync.Mutex
	current := build()
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		mu.Lock()
		defer mu.Unlock()
		return current.Next()
	})
	reset := func() {
		mu.Lock()
		current = build()
		mu.Unlock()
	}
	return next, reset
}

// RunOnce connects, subscribes and delivers events until the connection
// drops or ctx is done. A handshake refused with HTTP 403 drops the session
// so that the next attempt logs in again.
func (w *Watcher) RunOnce(ctx context.Context) error {
	return w.runOnce(ctx, nil)
}

func (w *Watcher) runOnce(ctx context.Context, subscribed func()) error {
	token, err := w.session.SessionToken(ctx)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("X-Fbx-App-Auth", token)
	dialer := websocket.Dialer{
		HandshakeTimeout: wsHandshakeTimeout,
		TLSClientConfig:  w.session.TLSConfig(),
	}
	target := URL(w.session.Addressing())
	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusForbidden {
				w.log.Debug("event stream refused the session, logging in again")
				w.session.DropSession(ctx, token)
			}
			return &domain.ProtocolError{Method: http.MethodGet, Path: eventPath, StatusCode: resp.StatusCode, Err: err}
		}
		return &domain.ProtocolError{Method: http.MethodGet, Path: eventPath, Err: err}
	}
	conn.SetReadLimit(wsReadLimit)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-streamCtx.Done()
		_ = conn.Close()
	}()

	if err := conn.WriteJSON(registerRequest{Action: "register", Events: w.opts.Events}); err != nil {
		return fmt.Errorf("ws register: %w", err)
	}
	go w.keepalive(streamCtx, conn)

	device := w.session.Addressing().DeviceAddress()
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("ws read: %w", err)
		}
		switch msg.Action {
		case "register":
			if !msg.Success {
				return &domain.RequestFailure{Method: "WS", Path: eventPath, Msg: msg.Msg, ErrorCode: msg.ErrorCode}
			}
			w.log.Info("subscribed to device events", "events", strings.Join(w.opts.Events, ","))
			if subscribed != nil {
				subscribed()
			}
		case "notification":
			ev := Event{
				Source:   msg.Source,
				Name:     msg.Event,
				Result:   msg.Result,
				Device:   device,
				Received: time.Now().UTC(),
			}
			w.deliver(ctx, ev)
		default:
			w.log.Debug("ignoring websocket message", "action", msg.Action)
		}
	}
}

func (w *Watcher) deliver(ctx context.Context, ev Event) {
	for _, s := range w.sinks {
		if err := s.Deliver(ctx, ev); err != nil {
			w.log.Warn("event sink failed", "type", ev.Type(), "err", err)
		}
	}
}

func (w *Watcher) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(w.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(wsHandshakeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
