package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/relaunchr/internal/auth"
	"github.com/loykin/relaunchr/internal/logger"
	"github.com/loykin/relaunchr/internal/manifest"
	"github.com/loykin/relaunchr/internal/process"
	"github.com/loykin/relaunchr/internal/scheduler"
	rtls "github.com/loykin/relaunchr/internal/tls"
	"github.com/loykin/relaunchr/internal/updater"
)

// EnvPrefix prefixes every environment override, e.g. RELAUNCHR_REMOTE_URL.
const EnvPrefix = "RELAUNCHR"

// Config represents the TOML file.
type Config struct {
	// Env holds fixed "K=V" entries for the managed process, applied over
	// the supervisor's environment and under the manifest's.
	Env      []string       `toml:"env" mapstructure:"env"`
	EnvFiles []string       `toml:"env_files" mapstructure:"env_files"`
	Remote   RemoteConfig   `toml:"remote" mapstructure:"remote"`
	Managed  ManagedConfig  `toml:"managed" mapstructure:"managed"`
	Update   UpdateConfig   `toml:"update" mapstructure:"update"`
	Schedule ScheduleConfig `toml:"schedule" mapstructure:"schedule"`
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
	Log      logger.Config  `toml:"log" mapstructure:"log"`

	// Path is the file the configuration was read from, if any.
	Path string `toml:"-" mapstructure:"-"`
}

type RemoteConfig struct {
	URL        string        `toml:"url" mapstructure:"url"`
	Token      string        `toml:"token" mapstructure:"token"`
	AuthScheme string        `toml:"auth_scheme" mapstructure:"auth_scheme"`
	Timeout    time.Duration `toml:"timeout" mapstructure:"timeout"`
	// AuthDownloads also sends the token when downloading the artifact.
	AuthDownloads bool `toml:"auth_downloads" mapstructure:"auth_downloads"`
}

type ManagedConfig struct {
	Executable string              `toml:"executable" mapstructure:"executable"`
	Args       []string            `toml:"args" mapstructure:"args"`
	StopWait   time.Duration       `toml:"stop_wait" mapstructure:"stop_wait"`
	Log        logger.OutputConfig `toml:"log" mapstructure:"log"`
}

type UpdateConfig struct {
	RunTimeout time.Duration `toml:"run_timeout" mapstructure:"run_timeout"`
}

type ScheduleConfig struct {
	OnStartup       bool          `toml:"on_startup" mapstructure:"on_startup"`
	Every           string        `toml:"every" mapstructure:"every"`
	RetryMaxElapsed time.Duration `toml:"retry_max_elapsed" mapstructure:"retry_max_elapsed"`
}

type ServerConfig struct {
	Listen   string      `toml:"listen" mapstructure:"listen"`
	BasePath string      `toml:"base_path" mapstructure:"base_path"`
	TLS      rtls.Config `toml:"tls" mapstructure:"tls"`
	Auth     auth.Config `toml:"auth" mapstructure:"auth"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
	// Listen serves /metrics on its own address; empty shares the API server.
	Listen string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	// DSN accepts one DSN or a list; see history/factory.
	DSN []string `toml:"dsn" mapstructure:"dsn"`
}

// legacyEnv maps keys to the variable names the original launcher read from
// its .env file.
var legacyEnv = map[string]string{
	"remote.url":         "REMOTE_CONFIG_URL",
	"managed.executable": "EXECUTABLE_PATH",
	"remote.token":       "GITHUB_TOKEN",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.auth_scheme", manifest.DefaultAuthScheme)
	v.SetDefault("remote.timeout", manifest.DefaultTimeout)
	v.SetDefault("managed.stop_wait", process.DefaultStopWait)
	v.SetDefault("update.run_timeout", updater.DefaultRunTimeout)
	v.SetDefault("schedule.on_startup", true)
	v.SetDefault("schedule.retry_max_elapsed", scheduler.DefaultRetryMaxElapsed)
	v.SetDefault("server.listen", "127.0.0.1:8787")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.ring_size", logger.DefaultRingSize)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper knows about, so every key that may come
	// from the environment alone is bound explicitly.
	for _, key := range envKeys {
		names := []string{key, envName(key)}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		_ = v.BindEnv(names...)
	}
	return v
}

var envKeys = []string{
	"env", "env_files",
	"remote.url", "remote.token", "remote.auth_scheme", "remote.timeout", "remote.auth_downloads",
	"managed.executable", "managed.args", "managed.stop_wait",
	"managed.log.dir", "managed.log.stdout", "managed.log.stderr",
	"update.run_timeout",
	"schedule.on_startup", "schedule.every", "schedule.retry_max_elapsed",
	"server.listen", "server.base_path",
	"server.tls.enabled", "server.tls.cert_file", "server.tls.key_file", "server.tls.dir", "server.tls.auto_generate",
	"server.auth.tokens",
	"metrics.enabled", "metrics.listen",
	"history.dsn",
	"log.level", "log.format", "log.color", "log.file.path", "log.ring_size",
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads path (optional), loads dotenv files and applies environment
// overrides. Dotenv files named on the command line come first, then the
// file's env_files; none of them overrides a variable that is already set.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := LoadDotenv(envFiles...); err != nil {
		return nil, err
	}
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		files := v.GetStringSlice("env_files")
		for i, f := range files {
			if !filepath.IsAbs(f) {
				files[i] = filepath.Join(filepath.Dir(path), f)
			}
		}
		if err := LoadDotenv(files...); err != nil {
			return nil, err
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.Path = path
	c.Remote.URL = strings.TrimSpace(c.Remote.URL)
	c.Managed.Executable = strings.TrimSpace(c.Managed.Executable)
	return &c, nil
}

// Validate checks what the update flow cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Remote.URL == "" {
		errs = append(errs, errors.New("remote.url is required"))
	} else if u, err := url.Parse(c.Remote.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("remote.url %q must be an http(s) URL", c.Remote.URL))
	}
	if c.Managed.Executable == "" {
		errs = append(errs, errors.New("managed.executable is required"))
	}
	if c.Remote.Timeout < 0 || c.Managed.StopWait < 0 || c.Update.RunTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if _, err := scheduler.ParseEvery(c.Schedule.Every); err != nil {
		errs = append(errs, fmt.Errorf("schedule.every: %w", err))
	}
	if _, err := auth.New(c.Server.Auth); err != nil {
		errs = append(errs, fmt.Errorf("server.auth: %w", err))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i <= 0 {
			errs = append(errs, fmt.Errorf("env entry %q must be KEY=VALUE", kv))
		}
	}
	return errors.Join(errs...)
}

// Save writes the configuration as TOML. The file may hold a token, so it
// is only readable by the owner.
func (c *Config) Save(path string) error {
	if path == "" {
		return errors.New("no config path to save to")
	}
	v := viper.New()
	for k, val := range c.settings() {
		v.Set(k, val)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	v.SetConfigType("toml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}

// settings flattens c into viper keys. Durations are written as strings so
// the file stays readable.
func (c *Config) settings() map[string]any {
	m := map[string]any{
		"remote.url":                 c.Remote.URL,
		"remote.auth_scheme":         c.Remote.AuthScheme,
		"remote.timeout":             c.Remote.Timeout.String(),
		"remote.auth_downloads":      c.Remote.AuthDownloads,
		"managed.executable":         c.Managed.Executable,
		"managed.stop_wait":          c.Managed.StopWait.String(),
		"update.run_timeout":         c.Update.RunTimeout.String(),
		"schedule.on_startup":        c.Schedule.OnStartup,
		"schedule.retry_max_elapsed": c.Schedule.RetryMaxElapsed.String(),
		"server.listen":              c.Server.Listen,
		"server.base_path":           c.Server.BasePath,
		"server.tls.enabled":         c.Server.TLS.Enabled,
		"metrics.enabled":            c.Metrics.Enabled,
		"log.level":                  c.Log.Level,
		"log.format":                 c.Log.Format,
		"log.color":                  c.Log.Color,
		"log.ring_size":              c.Log.RingSize,
	}
	optional := map[string]string{
		"remote.token":       c.Remote.Token,
		"schedule.every":     c.Schedule.Every,
		"metrics.listen":     c.Metrics.Listen,
		"log.file.path":      c.Log.File.Path,
		"managed.log.dir":    c.Managed.Log.Dir,
		"managed.log.stdout": c.Managed.Log.StdoutPath,
		"managed.log.stderr": c.Managed.Log.StderrPath,
	}
	for k, v := range optional {
		if v != "" {
			m[k] = v
		}
	}
	if len(c.Managed.Args) > 0 {
		m["managed.args"] = c.Managed.Args
	}
	if len(c.Env) > 0 {
		m["env"] = c.Env
	}
	if len(c.EnvFiles) > 0 {
		m["env_files"] = c.EnvFiles
	}
	if len(c.History.DSN) > 0 {
		m["history.dsn"] = c.History.DSN
	}
	// TLS settings survive a save while TLS is switched off
	tc := c.Server.TLS
	for k, v := range map[string]string{
		"server.tls.cert_file":   tc.CertFile,
		"server.tls.key_file":    tc.KeyFile,
		"server.tls.dir":         tc.Dir,
		"server.tls.min_version": tc.MinVersion,
	} {
		if v != "" {
			m[k] = v
		}
	}
	if tc.AutoGenerate {
		m["server.tls.auto_generate"] = true
	}
	if tc.ValidDays != 0 {
		m["server.tls.valid_days"] = tc.ValidDays
	}
	if len(tc.DNSNames) > 0 {
		m["server.tls.dns_names"] = tc.DNSNames
	}
	if len(c.Server.Auth.Tokens) > 0 {
		m["server.auth.tokens"] = c.Server.Auth.Tokens
	}
	if c.Server.Auth.BcryptCost != 0 {
		m["server.auth.bcrypt_cost"] = c.Server.Auth.BcryptCost
	}
	if c.Log.File.Path != "" {
		m["log.file.max_size_mb"] = c.Log.File.MaxSizeMB
		m["log.file.max_backups"] = c.Log.File.MaxBackups
		m["log.file.max_age_days"] = c.Log.File.MaxAgeDays
		m["log.file.compress"] = c.Log.File.Compress
	}
	if c.Managed.Log.Enabled() {
		m["managed.log.max_backups"] = c.Managed.Log.MaxBackups
		m["managed.log.max_age_days"] = c.Managed.Log.MaxAgeDays
		m["managed.log.compress"] = c.Managed.Log.Compress
	}
	return m
}
