// Package discovery locates the device on the local network. It browses
// the _fbx-api._tcp mDNS service and falls back to the well-known
// /api_version URL when nothing answers (bridged mode).
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/koltyakov/fbxos/internal/domain"
)

// Service is the mDNS service type published by the device.
const Service = "_fbx-api._tcp"

// DefaultFallbackURL is queried when mDNS finds nothing.
const DefaultFallbackURL = "http://mafreebox.freebox.fr/api_version"

const defaultMDNSTimeout = 3 * time.Second

// ErrNoAnswer is returned by [Discoverer.ViaMDNS] when no device answered
// before the timeout.
var ErrNoAnswer = errors.New("no mDNS answer for " + Service)

// Browser is the part of [zeroconf.Resolver] used here.
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// Method tells how addressing data was obtained.
type Method string

// Methods.
const (
	MethodMDNS Method = "mdns"
	MethodHTTP Method = "http"
)

// Result is a successful discovery.
type Result struct {
	Info   domain.APIVersionInfo
	Method Method
	// Instance is the mDNS instance name, empty for the HTTP fallback.
	Instance string
}

// Addressing converts the result into a persisted addressing record.
func (r Result) Addressing() domain.Addressing {
	return r.Info.Addressing()
}

// Options configures a [Discoverer]. Zero values select defaults.
type Options struct {
	Browser     Browser
	HTTPClient  *http.Client
	FallbackURL string
	MDNSTimeout time.Duration
	Logger      *slog.Logger
}

// Discoverer finds the device.
type Discoverer struct {
	browser     Browser
	http        *http.Client
	fallbackURL string
	timeout     time.Duration
	log         *slog.Logger
}

// New returns a Discoverer.
func New(opts Options) *Discoverer {
	d := &Discoverer{
		browser:     opts.Browser,
		http:        opts.HTTPClient,
		fallbackURL: strings.TrimSpace(opts.FallbackURL),
		timeout:     opts.MDNSTimeout,
		log:         opts.Logger,
	}
	if d.http == nil {
		d.http = &http.Client{Timeout: 10 * time.Second}
	}
	if d.fallbackURL == "" {
		d.fallbackURL = DefaultFallbackURL
	}
	if d.timeout <= 0 {
		d.timeout = defaultMDNSTimeout
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d
}

// Discover tries mDNS first and the HTTP fallback second.
func (d *Discoverer) Discover(ctx context.Context) (Result, error) {
	res, err := d.ViaMDNS(ctx)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	d.log.Warn("mDNS discovery failed, assuming bridged mode", "err", err, "fallback", d.fallbackURL)
	res, herr := d.ViaHTTP(ctx)
	if herr != nil {
		return Result{}, errors.Join(err, herr)
	}
	return res, nil
}

// ViaMDNS browses for the device and returns the first answer with a
// usable TXT record.
func (d *Discoverer) ViaMDNS(ctx context.Context) (Result, error) {
	browser := d.browser
	if browser == nil {
		r, err := zeroconf.NewResolver()
		if err != nil {
			return Result{}, fmt.Errorf("mdns resolver: %w", err)
		}
		browser = r
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := browser.Browse(ctx, Service, "local.", entries); err != nil {
		return Result{}, fmt.Errorf("mdns browse: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return Result{}, ErrNoAnswer
		case entry, ok := <-entries:
			if !ok {
				return Result{}, ErrNoAnswer
			}
			if entry == nil {
				continue
			}
			info, err := ParseTXT(entry.Text)
			if err != nil {
				d.log.Debug("ignoring mDNS answer", "instance", entry.Instance, "err", err)
				continue
			}
			d.log.Debug("mDNS answer", "instance", entry.Instance, "api_domain", info.APIDomain)
			return Result{Info: info, Method: MethodMDNS, Instance: entry.Instance}, nil
		}
	}
}

// ViaHTTP reads the unauthenticated fallback endpoint.
func (d *Discoverer) ViaHTTP(ctx context.Context) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.fallbackURL, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := d.http.Do(req)
	if err != nil {
		return Result{}, &domain.ProtocolError{Method: http.MethodGet, Path: d.fallbackURL, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Result{}, &domain.ProtocolError{Method: http.MethodGet, Path: d.fallbackURL, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode/100 != 2 {
		return Result{}, &domain.ProtocolError{Method: http.MethodGet, Path: d.fallbackURL, StatusCode: resp.StatusCode, Body: string(body)}
	}
	var info domain.APIVersionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return Result{}, &domain.MalformedResponseError{Reason: "api_version is not a JSON object", Body: string(body), Err: err}
	}
	if err := validate(info); err != nil {
		return Result{}, &domain.MalformedResponseError{Reason: err.Error(), Body: string(body)}
	}
	return Result{Info: info, Method: MethodHTTP}, nil
}

// ParseTXT decodes the key=value strings of the service TXT record.
func ParseTXT(txt []string) (domain.APIVersionInfo, error) {
	kv := make(map[string]string, len(txt))
	for _, entry := range txt {
		k, v, _ := strings.Cut(entry, "=")
		kv[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	info := domain.APIVersionInfo{
		APIDomain:      kv["api_domain"],
		HTTPSAvailable: kv["https_available"] == "1",
		APIBaseURL:     kv["api_base_url"],
		APIVersion:     kv["api_version"],
		DeviceName:     kv["device_name"],
		BoxModel:       kv["box_model"],
	}
	if p := kv["https_port"]; p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return domain.APIVersionInfo{}, fmt.Errorf("invalid https_port %q", p)
		}
		info.HTTPSPort = port
	}
	if err := validate(info); err != nil {
		return domain.APIVersionInfo{}, err
	}
	return info, nil
}

func validate(info domain.APIVersionInfo) error {
	switch {
	case info.APIDomain == "":
		return errors.New("missing api_domain")
	case info.APIBaseURL == "":
		return errors.New("missing api_base_url")
	case info.APIVersion == "":
		return errors.New("missing api_version")
	case info.HTTPSAvailable && info.HTTPSPort == 0:
		return errors.New("https_available without https_port")
	}
	return nil
}
