package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/seantiz/testengine-ci/internal/testengine"
)

// Client environment variables. They take precedence over the profile file.
const (
	EnvURL             = "TESTENGINE_URL"
	EnvUsername        = "TESTENGINE_USERNAME"
	EnvPassword        = "TESTENGINE_PASSWORD"
	EnvAuth            = "TESTENGINE_AUTH"
	EnvLicenseKey      = "TESTENGINE_LICENSE_KEY"
	EnvLicenseIssuer   = "TESTENGINE_LICENSE_ISSUER"
	EnvLicenseServer   = "TESTENGINE_LICENSE_SERVER"
	EnvEndpointProfile = "TESTENGINE_ENDPOINTS"
	EnvRateLimit       = "TESTENGINE_RATE_LIMIT"
	EnvLogLevel        = "TESTENGINE_LOG_LEVEL"
)

const defaultClientURL = "http://localhost:8080"

// ClientConfig is the client profile used by the CLI.
//
// A profile is a YAML file; ${VAR} and ${VAR:-default} are expanded before
// parsing. Example:
//
//	url: ${TESTENGINE_URL:-http://localhost:8080}
//	username: admin
//	password: ${TESTENGINE_PASSWORD}
//	endpoint_profile: report
//	timeout: 15s
//	poll:
//	  interval: 10s
//	  max_wait: 30m
type ClientConfig struct {
	URL             string               `yaml:"url"`
	Username        string               `yaml:"username"`
	Password        string               `yaml:"password"`
	Auth            string               `yaml:"auth"`
	EndpointProfile string               `yaml:"endpoint_profile"`
	Endpoints       testengine.Endpoints `yaml:"endpoints"`
	Timeout         Duration             `yaml:"timeout"`
	TransferTimeout Duration             `yaml:"transfer_timeout"`
	RateLimit       float64              `yaml:"rate_limit"`
	RateBurst       int                  `yaml:"rate_burst"`
	LogLevel        string               `yaml:"log_level"`
	License         LicenseConfig        `yaml:"license"`
	Poll            WaitConfig           `yaml:"poll"`
	Health          WaitConfig           `yaml:"health"`
}

// LicenseConfig carries activation credentials.
type LicenseConfig struct {
	Key    string `yaml:"key"`
	Issuer string `yaml:"issuer"`
	Server string `yaml:"server"`
}

// WaitConfig overrides a poller's cadence. Zero values keep the workflow defaults.
type WaitConfig struct {
	Interval Duration `yaml:"interval"`
	MaxWait  Duration `yaml:"max_wait"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// LoadClient builds the client profile. The file at path is read if path is
// not empty; TESTENGINE_* variables are applied on top.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		parsed, err := ParseClient(data)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		cfg.URL = defaultClientURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseClient parses a YAML client profile.
func ParseClient(data []byte) (*ClientConfig, error) {
	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, err
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

func (c *ClientConfig) applyEnv() error {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.URL, EnvURL)
	set(&c.Username, EnvUsername)
	set(&c.Password, EnvPassword)
	set(&c.Auth, EnvAuth)
	set(&c.EndpointProfile, EnvEndpointProfile)
	set(&c.LogLevel, EnvLogLevel)
	set(&c.License.Key, EnvLicenseKey)
	set(&c.License.Issuer, EnvLicenseIssuer)
	set(&c.License.Server, EnvLicenseServer)

	if v := os.Getenv(EnvRateLimit); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRateLimit, err)
		}
		c.RateLimit = r
	}
	return nil
}

// Validate checks the URL, auth scheme, endpoint profile and durations.
func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if _, err := testengine.NewAuth(c.Auth, c.Username, c.Password); err != nil {
		return err
	}
	if _, err := testengine.EndpointsByName(c.EndpointProfile); err != nil {
		return err
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative, got %v", c.RateLimit)
	}
	for name, d := range map[string]Duration{
		"timeout":          c.Timeout,
		"transfer_timeout": c.TransferTimeout,
		"poll.interval":    c.Poll.Interval,
		"poll.max_wait":    c.Poll.MaxWait,
		"health.interval":  c.Health.Interval,
		"health.max_wait":  c.Health.MaxWait,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative, got %s", name, d.Duration())
		}
	}
	return nil
}

// ResolvedEndpoints returns the named profile with any per-template
// overrides from the file applied.
func (c *ClientConfig) ResolvedEndpoints() (testengine.Endpoints, error) {
	base, err := testengine.EndpointsByName(c.EndpointProfile)
	if err != nil {
		return testengine.Endpoints{}, err
	}
	return c.Endpoints.Merge(base), nil
}

// ClientOptions translates the profile into testengine client options.
func (c *ClientConfig) ClientOptions() ([]testengine.Option, error) {
	auth, err := testengine.NewAuth(c.Auth, c.Username, c.Password)
	if err != nil {
		return nil, err
	}
	endpoints, err := c.ResolvedEndpoints()
	if err != nil {
		return nil, err
	}

	opts := []testengine.Option{
		testengine.WithAuth(auth),
		testengine.WithEndpoints(endpoints),
		testengine.WithTimeout(c.Timeout.Duration()),
		testengine.WithTransferTimeout(c.TransferTimeout.Duration()),
	}
	if c.RateLimit > 0 {
		opts = append(opts, testengine.WithRateLimit(rate.Limit(c.RateLimit), c.RateBurst))
	}
	return opts, nil
}

// LicenseRequest returns the activation body for the configured key.
func (c *ClientConfig) LicenseRequest() testengine.LicenseRequest {
	return testengine.LicenseRequest{
		Issuer:    c.License.Issuer,
		AccessKey: c.License.Key,
		Server:    c.License.Server,
	}
}

// LogLevelValue parses LogLevel, defaulting to info.
func (c *ClientConfig) LogLevelValue() slog.Level {
	return parseLogLevel(c.LogLevel)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment
// values. An unset variable without a default is an error.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		hasDefault := sub[2] != ""

		value, ok := os.LookupEnv(name)
		if !ok {
			if hasDefault {
				return sub[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", name)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
