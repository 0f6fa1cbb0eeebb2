// Package client talks to a FreeboxOS device: it owns the HTTP transport,
// the authenticated session and the app registration flow, and exposes the
// handful of device operations that do not map onto the generic object model.
package client

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/koltyakov/fbxos/internal/domain"
)

// Options tunes the transport. Zero values fall back to the defaults below.
type Options struct {
	// Timeout bounds each HTTP request unless overridden with [WithTimeout].
	Timeout time.Duration
	// RetryBackoff is the wait between a 403 and the re-authenticated retry.
	RetryBackoff time.Duration
	// MaxAttempts is the total number of attempts for a request that keeps
	// failing with HTTP 403.
	MaxAttempts int
	// RadioTimeout bounds the wifi toggle request.
	RadioTimeout time.Duration
	// TLS overrides the TLS configuration. When nil the embedded vendor root
	// certificates are trusted.
	TLS *tls.Config
}

const (
	defaultTimeout      = 30 * time.Second
	defaultRetryBackoff = 15 * time.Second
	defaultMaxAttempts  = 5
	defaultRadioTimeout = time.Second
	maxResponseBytes    = 16 * 1024 * 1024
	headerAuth          = "X-Fbx-App-Auth"
)

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = defaultRetryBackoff
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RadioTimeout <= 0 {
		o.RadioTimeout = defaultRadioTimeout
	}
	return o
}

// Client is a FreeboxOS API client. It is safe for concurrent use; the
// session is shared and re-authentication is serialized.
type Client struct {
	addr    domain.Addressing
	app     domain.AppDescriptor
	opts    Options
	log     *slog.Logger
	http    *http.Client
	tls     *tls.Config
	session session
}

// New creates a Client for the device at addr. The registration may be
// empty when the client is only used to register; it is validated before
// the first login attempt.
func New(addr domain.Addressing, reg domain.Registration, app domain.AppDescriptor, opts Options, logger *slog.Logger) (*Client, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	tlsCfg := opts.TLS
	if tlsCfg == nil {
		pool, err := RootCAs("")
		if err != nil {
			return nil, err
		}
		tlsCfg = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	c := &Client{
		addr: addr,
		app:  app,
		opts: opts,
		log:  logger,
		http: &http.Client{Transport: newTransport(tlsCfg)},
		tls:  tlsCfg,
	}
	c.session.reg = reg
	return c, nil
}

func newTransport(tlsCfg *tls.Config) *http.Transport {
	base, _ := http.DefaultTransport.(*http.Transport)
	tr := base.Clone()
	tr.TLSClientConfig = tlsCfg
	tr.MaxIdleConnsPerHost = 4
	tr.IdleConnTimeout = 90 * time.Second
	return tr
}

// Addressing returns the device addressing this client was built with.
func (c *Client) Addressing() domain.Addressing {
	return c.addr
}

// DeviceAddress returns the provenance tag for objects fetched live.
func (c *Client) DeviceAddress() string {
	return c.addr.DeviceAddress()
}

// TLSConfig returns a copy of the TLS settings used for the device, for
// connections made outside the HTTP client such as the event websocket.
func (c *Client) TLSConfig() *tls.Config {
	return c.tls.Clone()
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.log
}
