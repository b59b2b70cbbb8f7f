package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/tdh8316/handlescout/internal/check"
	"github.com/tdh8316/handlescout/internal/platform/instagram"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platform != "discord" || cfg.ErrorThreshold != 3 || cfg.CooldownSeconds != 15 || cfg.ResultsDir != "results" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Cooldown() != 15*time.Second {
		t.Fatalf("cooldown = %v", cfg.Cooldown())
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, "handlescout.yml", "platform: Instagram\nconcurrency: 4\ndelay: 1.5s\nproxies:\n  - 10.0.0.1:8080\n")
	t.Setenv("INSTAGRAM_SESSIONID", "from-env")
	t.Setenv(EnvPrefix+"_RESULTSDIR", "out")

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Platform != "instagram" || cfg.Concurrency != 4 || cfg.Delay != "1.5s" {
		t.Fatalf("file values = %+v", cfg)
	}
	if len(cfg.Proxies) != 1 || cfg.Proxies[0] != "10.0.0.1:8080" {
		t.Fatalf("proxies = %v", cfg.Proxies)
	}
	if cfg.SessionID != "from-env" || cfg.ResultsDir != "out" {
		t.Fatalf("env values = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	// Ensure the variable is unset for this test and restored after.
	t.Setenv("DISCORD_TOKEN", "")
	os.Unsetenv("DISCORD_TOKEN")
	env := writeFile(t, ".env", "DISCORD_TOKEN=dotenv-token\n")

	cfg, err := Load("", env)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Token != "dotenv-token" {
		t.Fatalf("token = %q", cfg.Token)
	}
}

func TestLoad_MissingFiles(t *testing.T) {
	if _, err := Load("", filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("absent .env should be ignored: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml"), ""); err == nil {
		t.Fatal("named config file must exist")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{"anonymous ok", Config{Platform: "roblox"}, nil},
		{"unknown", Config{Platform: "myspace"}, ErrUnknownPlatform},
		{"legacy without token", Config{Platform: "discord-legacy"}, ErrMissingCredential},
		{"instagram without session", Config{Platform: "instagram", SessionID: " "}, ErrMissingCredential},
		{"legacy with token", Config{Platform: "discord-legacy", Token: "t"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatal(err)
				}
				return
			}
			if errors.Cause(err) != tc.want {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}

	if err := (Config{Platform: "roblox", Delay: "soon"}).Validate(); err == nil {
		t.Fatal("bad delay accepted")
	}
	if err := (Config{Platform: "roblox", Timeout: "-1s"}).Validate(); err == nil {
		t.Fatal("negative timeout accepted")
	}
}

func TestProfile(t *testing.T) {
	base := check.Profile{Concurrency: 5, DirectConcurrency: 1, Delay: time.Second, DirectDelay: 3 * time.Second, ProbeTimeout: 15 * time.Second}

	if got := (Config{}).Profile(base); got != base {
		t.Fatalf("no overrides changed profile: %+v", got)
	}

	got := Config{Concurrency: 8, Delay: "0s", Timeout: "5s"}.Profile(base)
	if got.Concurrency != 8 || got.DirectConcurrency != 1 {
		t.Fatalf("concurrency = %+v", got)
	}
	if got.Delay != 0 || got.DirectDelay != 0 || got.ProbeTimeout != 5*time.Second {
		t.Fatalf("timing = %+v", got)
	}
}

func TestSettings(t *testing.T) {
	s := Config{Token: "t", SessionID: "s", UserAgent: "ua"}.Settings(instagram.DefaultRules())
	if s.Token != "t" || s.SessionID != "s" || s.UserAgent != "ua" || s.Rules.TakenMinSignals != 4 {
		t.Fatalf("settings = %+v", s)
	}
}
