// Package config loads the dlsync configuration file.
package config

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/isometry/dlsync/internal/directory"
	"github.com/isometry/dlsync/internal/ldap"
)

// Environment variables overriding file values.
const (
	EnvLDAPURL      = "DLSYNC_LDAP_URL"
	EnvBindDN       = "DLSYNC_BIND_DN"
	EnvBindPassword = "DLSYNC_BIND_PASSWORD"
)

// Config is the contents of the configuration file.
type Config struct {
	Settings Settings `yaml:"settings"`
	Groups   Search   `yaml:"groups"`
	Users    Search   `yaml:"users"`
	Probe    Search   `yaml:"probe"`
	Log      Log      `yaml:"log"`
	HTTP     HTTP     `yaml:"http"`
}

// Settings describes the directory endpoint and refresh cadence.
type Settings struct {
	URL                string        `yaml:"url"`
	Bind               Bind          `yaml:"bind"`
	BaseDN             string        `yaml:"basedn"`
	RefreshInterval    int           `yaml:"refresh_interval" default:"600"` // seconds
	PageSize           uint32        `yaml:"page_size" default:"1000"`
	Timeout            time.Duration `yaml:"timeout" default:"30s"`
	StartTLS           bool          `yaml:"start_tls"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Kerberos           Kerberos      `yaml:"kerberos"`
}

type Bind struct {
	DN string `yaml:"dn"`
	PW string `yaml:"pw"`
}

type Kerberos struct {
	Realm  string `yaml:"realm"`
	Keytab string `yaml:"keytab"`
	CCache string `yaml:"ccache"`
	Config string `yaml:"config"`
}

// Search holds an LDAP filter.
type Search struct {
	Filter string `yaml:"filter"`
}

type Log struct {
	Level string `yaml:"level" default:"info"`
}

type HTTP struct {
	// Listen is the address serving metrics, health and lookups. Empty
	// disables the listener.
	Listen string `yaml:"listen"`
}

// SetDefaults fills in the search filters. It is called by defaults.Set
// after the tag defaults are applied.
func (c *Config) SetDefaults() {
	if c.Users.Filter == "" {
		c.Users.Filter = ldap.DefaultUserFilter
	}
	if c.Groups.Filter == "" {
		c.Groups.Filter = ldap.DefaultGroupFilter
	}
	if c.Probe.Filter == "" {
		c.Probe.Filter = ldap.DefaultProbeFilter
	}
}

// Load reads the configuration at path. When envFile is set it is loaded
// into the process environment first; variables already set are kept.
// Environment overrides are applied before validation.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, completes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLDAPURL); v != "" {
		c.Settings.URL = v
	}
	if v := os.Getenv(EnvBindDN); v != "" {
		c.Settings.Bind.DN = v
	}
	if v := os.Getenv(EnvBindPassword); v != "" {
		c.Settings.Bind.PW = v
	}
}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var errs []error

	s := c.Settings
	if s.URL == "" {
		errs = append(errs, errors.New("settings.url is required"))
	} else if u, err := url.Parse(s.URL); err != nil {
		errs = append(errs, fmt.Errorf("settings.url: %w", err))
	} else {
		switch strings.ToLower(u.Scheme) {
		case "ldap":
		case "ldaps":
			if s.StartTLS {
				errs = append(errs, errors.New("settings.start_tls cannot be used with an ldaps:// url"))
			}
		default:
			errs = append(errs, fmt.Errorf("settings.url: unsupported scheme %q", u.Scheme))
		}
	}

	if s.BaseDN == "" {
		errs = append(errs, errors.New("settings.basedn is required"))
	} else if err := ldap.ValidateDNSyntax(s.BaseDN); err != nil {
		errs = append(errs, fmt.Errorf("settings.basedn: %w", err))
	}

	if s.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("settings.refresh_interval must be positive, got %d", s.RefreshInterval))
	}
	if s.Timeout < 0 {
		errs = append(errs, fmt.Errorf("settings.timeout cannot be negative, got %s", s.Timeout))
	}

	if s.Kerberos.Realm == "" && s.Bind.DN != "" && s.Bind.PW == "" {
		errs = append(errs, fmt.Errorf("settings.bind.pw is required for a simple bind (or set %s)", EnvBindPassword))
	}

	filters := []struct{ name, filter string }{
		{"users.filter", c.Users.Filter},
		{"groups.filter", c.Groups.Filter},
		{"probe.filter", c.Probe.Filter},
	}
	for _, f := range filters {
		if err := ldap.ValidateFilter(f.filter); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
		}
	}

	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

// RefreshInterval returns the refresh interval.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Settings.RefreshInterval) * time.Second
}

// ToConnectionConfig converts the settings into a directory session
// configuration.
func (c *Config) ToConnectionConfig() *ldap.ConnectionConfig {
	s := c.Settings
	cc := ldap.DefaultConfig()

	cc.URL = s.URL
	cc.BaseDN = s.BaseDN
	cc.PageSize = s.PageSize
	if s.Timeout > 0 {
		cc.Timeout = s.Timeout
	}

	cc.BindDN = s.Bind.DN
	cc.Password = s.Bind.PW
	cc.KerberosRealm = s.Kerberos.Realm
	cc.KerberosKeytab = s.Kerberos.Keytab
	cc.KerberosCCache = s.Kerberos.CCache
	cc.KerberosConfig = s.Kerberos.Config

	cc.StartTLS = s.StartTLS
	cc.TLSConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: s.InsecureSkipVerify,
	}
	return cc
}

// BuilderConfig returns the snapshot builder's search parameters.
func (c *Config) BuilderConfig() directory.BuilderConfig {
	return directory.BuilderConfig{
		BaseDN:      c.Settings.BaseDN,
		UserFilter:  c.Users.Filter,
		GroupFilter: c.Groups.Filter,
		ProbeFilter: c.Probe.Filter,
	}
}

// ConnectionChanged reports whether the directory session must be
// re-established to move from old to c.
func (c *Config) ConnectionChanged(old *Config) bool {
	if old == nil {
		return true
	}
	a, b := c.Settings, old.Settings
	a.RefreshInterval, b.RefreshInterval = 0, 0
	return a != b
}
