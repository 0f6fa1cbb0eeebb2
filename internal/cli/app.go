package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/koltyakov/fbxos/internal/client"
	"github.com/koltyakov/fbxos/internal/config"
	"github.com/koltyakov/fbxos/internal/discovery"
	"github.com/koltyakov/fbxos/internal/domain"
	"github.com/koltyakov/fbxos/internal/entity"
	"github.com/koltyakov/fbxos/internal/log"
	"github.com/koltyakov/fbxos/internal/settings"
	"github.com/koltyakov/fbxos/internal/store/sqlite"
	"github.com/koltyakov/fbxos/internal/versionutil"
)

type stdio struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// app is the per-command runtime: resolved configuration plus lazily built
// collaborators.
type app struct {
	name     string
	cfg      config.Config
	io       stdio
	log      *slog.Logger
	settings *settings.Store
}

// newApp parses the shared flags plus the ones registered by extra. A
// non-negative code means the command must stop and exit with it.
func newApp(name string, args []string, sio stdio, extra func(*flag.FlagSet)) (*app, []string, int) {
	cfg, rest, err := config.Parse(name, args, func(fs *flag.FlagSet) {
		fs.SetOutput(sio.err)
		if extra != nil {
			extra(fs)
		}
	})
	if errors.Is(err, flag.ErrHelp) {
		return nil, nil, 0
	}
	if err != nil {
		fmt.Fprintf(sio.err, "%s error: %v\n", name, err)
		return nil, nil, 2
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = versionutil.AppVersion(Version)
	}
	return &app{
		name:     name,
		cfg:      cfg,
		io:       sio,
		log:      log.NewWithWriter(sio.err, cfg.LogLevel),
		settings: settings.New(cfg.Dir),
	}, rest, -1
}

// fail reports err and maps it to an exit code: 2 for usage and local
// configuration problems, 130 for interruption, 1 otherwise.
func (a *app) fail(err error) int {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(a.io.err, "%s canceled\n", a.name)
		return 130
	}
	fmt.Fprintf(a.io.err, "%s error: %v\n", a.name, err)
	var cfgErr *domain.ConfigurationError
	var usage usageError
	if errors.As(err, &cfgErr) || errors.As(err, &usage) {
		return 2
	}
	return 1
}

type usageError string

func (e usageError) Error() string { return string(e) }

func (a *app) discoverer() *discovery.Discoverer {
	return discovery.New(discovery.Options{
		FallbackURL: a.cfg.FallbackURL,
		MDNSTimeout: a.cfg.MDNSTimeout,
		Logger:      a.log,
	})
}

// addressing loads the cached addressing record, discovering and caching it
// on first use.
func (a *app) addressing(ctx context.Context) (domain.Addressing, error) {
	addr, err := a.settings.LoadAddressing()
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return domain.Addressing{}, err
	}
	a.log.Info("no cached addressing, discovering the device")
	res, err := a.discoverer().Discover(ctx)
	if err != nil {
		return domain.Addressing{}, err
	}
	addr = res.Addressing()
	if err := a.settings.SaveAddressing(addr); err != nil {
		return domain.Addressing{}, err
	}
	a.log.Info("device found", "method", res.Method, "address", addr.DeviceAddress())
	return addr, nil
}

func (a *app) clientOptions() (client.Options, error) {
	pool, err := client.RootCAs(a.cfg.CAFile)
	if err != nil {
		return client.Options{}, &domain.ConfigurationError{Field: "ca_file", Err: err}
	}
	return client.Options{
		Timeout:      a.cfg.Timeout,
		RetryBackoff: a.cfg.RetryBackoff,
		MaxAttempts:  a.cfg.RetryAttempts,
		TLS:          &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
	}, nil
}

func (a *app) descriptor() domain.AppDescriptor {
	return domain.AppDescriptor{
		AppID:      a.cfg.AppID,
		AppName:    a.cfg.AppName,
		AppVersion: a.cfg.AppVersion,
		DeviceName: a.cfg.DeviceName,
	}
}

// client builds a device client. With registered set, a missing
// registration is reported before any network call.
func (a *app) client(ctx context.Context, registered bool) (*client.Client, error) {
	reg, err := a.settings.LoadRegistration()
	if err != nil && registered {
		return nil, err
	}
	addr, err := a.addressing(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := a.clientOptions()
	if err != nil {
		return nil, err
	}
	return client.New(addr, reg, a.descriptor(), opts, a.log)
}

func (a *app) service(ctx context.Context) (*client.Client, *entity.Service, error) {
	c, err := a.client(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	return c, entity.NewService(c, a.log), nil
}

func (a *app) store() (*sqlite.Store, error) {
	return sqlite.OpenWithOptions(a.cfg.DBPath, sqlite.OpenOptions{Logger: a.log})
}

// logout closes the session opened by a command; failures only matter at
// debug level.
func (a *app) logout(c *client.Client) {
	if c.State() != client.StateAuthenticated {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
	defer cancel()
	if err := c.Logout(ctx); err != nil {
		a.log.Debug("logout failed", "err", err)
	}
}

func resolveKind(name string) (*entity.Kind, error) {
	k, ok := entity.Resolve(name)
	if !ok {
		return nil, usageError(fmt.Sprintf("unknown kind %q (try one of %v)", name, entity.Aliases()))
	}
	return k, nil
}
