// Package config resolves fbxos runtime settings from defaults, an optional
// YAML file, FBXOS_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/koltyakov/fbxos/internal/settings"
)

// Config holds settings shared by every fbxos command.
type Config struct {
	ConfigFile    string
	Dir           string
	DBPath        string
	LogLevel      string
	AppID         string
	AppName       string
	AppVersion    string
	DeviceName    string
	CAFile        string
	FallbackURL   string
	Timeout       time.Duration
	RetryBackoff  time.Duration
	RetryAttempts int
	MDNSTimeout   time.Duration
	// MQTTURL and MQTTTopicPrefix configure event forwarding in `watch`.
	MQTTURL         string
	MQTTTopicPrefix string
}

const (
	defaultAppID         = "fr.freebox.fbxos"
	defaultAppName       = "fbxos"
	defaultTimeout       = 30 * time.Second
	defaultRetryBackoff  = 15 * time.Second
	defaultRetryAttempts = 5
	defaultMDNSTimeout   = 3 * time.Second
	defaultFallbackURL   = "http://mafreebox.freebox.fr/api_version"
	defaultConfigName    = "config.yml"
	defaultDBName        = "fbxos.db"
)

// Defaults returns the built-in configuration.
func Defaults() Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "fbxos"
	}
	return Config{
		Dir:           settings.DefaultDir(),
		LogLevel:      "info",
		AppID:         defaultAppID,
		AppName:       defaultAppName,
		DeviceName:    host,
		FallbackURL:   defaultFallbackURL,
		Timeout:       defaultTimeout,
		RetryBackoff:  defaultRetryBackoff,
		RetryAttempts: defaultRetryAttempts,
		MDNSTimeout:   defaultMDNSTimeout,
	}
}

// fileConfig mirrors Config in the YAML file. Durations are Go duration
// strings ("30s", "1m").
type fileConfig struct {
	Dir           string `yaml:"dir"`
	DB            string `yaml:"db"`
	LogLevel      string `yaml:"log_level"`
	AppID         string `yaml:"app_id"`
	AppName       string `yaml:"app_name"`
	DeviceName    string `yaml:"device_name"`
	CAFile        string `yaml:"ca_file"`
	FallbackURL   string `yaml:"fallback_url"`
	Timeout       string `yaml:"timeout"`
	RetryBackoff  string `yaml:"retry_backoff"`
	RetryAttempts int    `yaml:"retry_attempts"`
	MDNSTimeout   string `yaml:"mdns_timeout"`
	MQTT          struct {
		URL         string `yaml:"url"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
}

// Parse resolves the configuration for one command. The extra callback may
// register command-specific flags on the same FlagSet. It returns the
// remaining positional arguments.
func Parse(name string, args []string, extra func(*flag.FlagSet)) (Config, []string, error) {
	cfg := Defaults()
	cfg.Dir = envOrDefault("FBXOS_DIR", cfg.Dir)

	path, explicit := configPath(args)
	if path == "" {
		path = envOrDefault("FBXOS_CONFIG", "")
		explicit = path != ""
	}
	if path == "" {
		path = filepath.Join(cfg.Dir, defaultConfigName)
	}
	if err := cfg.loadFile(path, explicit); err != nil {
		return cfg, nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, nil, err
	}

	fset := flag.NewFlagSet(name, flag.ContinueOnError)
	cfg.RegisterFlags(fset)
	if extra != nil {
		extra(fset)
	}
	if err := fset.Parse(args); err != nil {
		return cfg, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	return cfg, fset.Args(), nil
}

// RegisterFlags binds the shared flags to fs using the current values as
// defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML config file (default <dir>/config.yml)")
	fs.StringVar(&c.Dir, "dir", c.Dir, "Settings directory holding addressing.json and registration.json")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "Local mirror database path (default <dir>/fbxos.db)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&c.AppID, "app-id", c.AppID, "Application id presented to the device")
	fs.StringVar(&c.AppName, "app-name", c.AppName, "Application name presented to the device")
	fs.StringVar(&c.DeviceName, "device-name", c.DeviceName, "Device name presented to the device")
	fs.StringVar(&c.CAFile, "ca-file", c.CAFile, "Extra PEM root certificates")
	fs.StringVar(&c.FallbackURL, "fallback-url", c.FallbackURL, "Discovery fallback endpoint")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "Per-request timeout")
	fs.DurationVar(&c.RetryBackoff, "retry-backoff", c.RetryBackoff, "Wait before re-authenticating after HTTP 403")
	fs.IntVar(&c.RetryAttempts, "retry-attempts", c.RetryAttempts, "Maximum attempts for a request that keeps failing with HTTP 403")
	fs.DurationVar(&c.MDNSTimeout, "mdns-timeout", c.MDNSTimeout, "mDNS browse duration")
}

// Validate checks the resolved values and fills derived paths.
func (c *Config) Validate() error {
	c.Dir = strings.TrimSpace(c.Dir)
	if c.Dir == "" {
		return errors.New("settings dir must not be empty")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = filepath.Join(c.Dir, defaultDBName)
	}
	if strings.TrimSpace(c.AppID) == "" {
		return errors.New("app id must not be empty")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if c.RetryBackoff < 0 {
		return errors.New("retry backoff must be >= 0")
	}
	if c.RetryAttempts < 1 {
		return errors.New("retry attempts must be >= 1")
	}
	if c.MDNSTimeout <= 0 {
		return errors.New("mdns timeout must be > 0")
	}
	return nil
}

func (c *Config) loadFile(path string, explicit bool) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.ConfigFile = path
	setString(&c.Dir, fc.Dir)
	setString(&c.DBPath, fc.DB)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.AppID, fc.AppID)
	setString(&c.AppName, fc.AppName)
	setString(&c.DeviceName, fc.DeviceName)
	setString(&c.CAFile, fc.CAFile)
	setString(&c.FallbackURL, fc.FallbackURL)
	setString(&c.MQTTURL, fc.MQTT.URL)
	setString(&c.MQTTTopicPrefix, fc.MQTT.TopicPrefix)
	if fc.RetryAttempts != 0 {
		c.RetryAttempts = fc.RetryAttempts
	}
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"timeout", fc.Timeout, &c.Timeout},
		{"retry_backoff", fc.RetryBackoff, &c.RetryBackoff},
		{"mdns_timeout", fc.MDNSTimeout, &c.MDNSTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %s: %w", path, d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Dir = envOrDefault("FBXOS_DIR", c.Dir)
	c.DBPath = envOrDefault("FBXOS_DB", c.DBPath)
	c.LogLevel = envOrDefault("FBXOS_LOG_LEVEL", c.LogLevel)
	c.AppID = envOrDefault("FBXOS_APP_ID", c.AppID)
	c.AppName = envOrDefault("FBXOS_APP_NAME", c.AppName)
	c.DeviceName = envOrDefault("FBXOS_DEVICE_NAME", c.DeviceName)
	c.CAFile = envOrDefault("FBXOS_CA_FILE", c.CAFile)
	c.FallbackURL = envOrDefault("FBXOS_FALLBACK_URL", c.FallbackURL)
	c.MQTTURL = envOrDefault("FBXOS_MQTT_URL", c.MQTTURL)
	c.MQTTTopicPrefix = envOrDefault("FBXOS_MQTT_TOPIC_PREFIX", c.MQTTTopicPrefix)
	c.RetryAttempts = envIntOrDefault("FBXOS_RETRY_ATTEMPTS", c.RetryAttempts)

	var err error
	if c.Timeout, err = envDurationOrDefault("FBXOS_TIMEOUT", c.Timeout); err != nil {
		return err
	}
	if c.RetryBackoff, err = envDurationOrDefault("FBXOS_RETRY_BACKOFF", c.RetryBackoff); err != nil {
		return err
	}
	if c.MDNSTimeout, err = envDurationOrDefault("FBXOS_MDNS_TIMEOUT", c.MDNSTimeout); err != nil {
		return err
	}
	return nil
}

// configPath finds an explicit --config value before the FlagSet exists.
func configPath(args []string) (string, bool) {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value, true
		}
		if i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDurationOrDefault(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
