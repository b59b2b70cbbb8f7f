// Package config loads run settings from .env, an optional config file and
// HANDLESCOUT_* environment variables. CLI flags are applied on top by the
// caller.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/jinzhu/configor"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/tdh8316/handlescout/internal/check"
	"github.com/tdh8316/handlescout/internal/platform"
	"github.com/tdh8316/handlescout/internal/platform/instagram"
)

const EnvPrefix = "HANDLESCOUT"

var (
	ErrUnknownPlatform   = errors.New("unknown platform")
	ErrMissingCredential = errors.New("missing credential")
)

type Config struct {
	Platform  string `default:"discord" yaml:"platform" json:"platform"`
	Token     string `env:"DISCORD_TOKEN" yaml:"token" json:"token"`
	SessionID string `env:"INSTAGRAM_SESSIONID" yaml:"sessionid" json:"sessionid"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	// BaseURL replaces the platform API root.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Concurrency, Delay and Timeout override the platform's pacing when
	// set. Delay and Timeout are Go durations ("1.5s"); "0s" is a real value.
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
	Delay       string `yaml:"delay" json:"delay"`
	Timeout     string `yaml:"timeout" json:"timeout"`

	ErrorThreshold  int `default:"3" yaml:"error_threshold" json:"error_threshold"`
	CooldownSeconds int `default:"15" yaml:"cooldown_seconds" json:"cooldown_seconds"`

	Proxies   []string `yaml:"proxies" json:"proxies"`
	ProxyFile string   `yaml:"proxy_file" json:"proxy_file"`

	RetryRateLimited bool `yaml:"retry_rate_limited" json:"retry_rate_limited"`
	Debug            bool `yaml:"debug" json:"debug"`

	WebhookURL  string `env:"WEBHOOK_URL" yaml:"webhook_url" json:"webhook_url"`
	Database    string `yaml:"database" json:"database"`
	SkipChecked bool   `yaml:"skip_checked" json:"skip_checked"`
	RulesFile   string `yaml:"rules_file" json:"rules_file"`

	ResultsDir string `default:"results" yaml:"results_dir" json:"results_dir"`
	NoOutput   bool   `yaml:"no_output" json:"no_output"`
	NoColor    bool   `yaml:"no_color" json:"no_color"`
}

// Load reads envFile (skipped when absent), then configFile (required when
// named), then the environment. Variables already set in the environment
// win over envFile.
func Load(configFile, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return Config{}, errors.Wrapf(err, "load %s", envFile)
		}
	}

	var files []string
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return Config{}, errors.Wrap(err, "config file")
		}
		files = append(files, configFile)
	}

	var cfg Config
	if err := configor.New(&configor.Config{ENVPrefix: EnvPrefix}).Load(&cfg, files...); err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}
	cfg.Platform = strings.ToLower(strings.TrimSpace(cfg.Platform))
	return cfg, nil
}

// Validate catches problems that must stop the run before it starts.
func (c Config) Validate() error {
	e, ok := platform.Lookup(c.Platform)
	if !ok {
		return errors.Wrapf(ErrUnknownPlatform, "%q (want one of %s)", c.Platform, strings.Join(platform.Names(), ", "))
	}
	if !c.Settings(instagram.Rules{}).Has(e.Credential) {
		return errors.Wrapf(ErrMissingCredential, "%s needs a %s", e.Name, e.Credential)
	}
	if _, err := parseDuration("delay", c.Delay); err != nil {
		return err
	}
	if _, err := parseDuration("timeout", c.Timeout); err != nil {
		return err
	}
	if c.Concurrency < 0 {
		return errors.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	return nil
}

// Settings extracts what the adapter constructors need.
func (c Config) Settings(rules instagram.Rules) platform.Settings {
	return platform.Settings{
		UserAgent: c.UserAgent,
		Token:     c.Token,
		SessionID: c.SessionID,
		Rules:     rules,
		BaseURL:   c.BaseURL,
	}
}

// Profile applies the overrides in c to the platform defaults p.
func (c Config) Profile(p check.Profile) check.Profile {
	if c.Concurrency > 0 {
		p.Concurrency = c.Concurrency
		p.DirectConcurrency = min(max(p.DirectConcurrency, 1), c.Concurrency)
	}
	if d, _ := parseDuration("delay", c.Delay); d != nil {
		p.Delay = *d
		p.DirectDelay = *d
	}
	if d, _ := parseDuration("timeout", c.Timeout); d != nil && *d > 0 {
		p.ProbeTimeout = *d
	}
	return p
}

// Cooldown is the streak-triggered pause length.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func parseDuration(name, s string) (*time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s", name)
	}
	if d < 0 {
		return nil, errors.Errorf("%s must not be negative, got %s", name, s)
	}
	return &d, nil
}
