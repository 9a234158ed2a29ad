package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_Validate(t *testing.T) {
	cases := []struct {
		name        string
		cfg         AuthConfig
		wantErr     string
		wantEnabled bool
	}{
		{name: "disabled", cfg: AuthConfig{Mode: AuthModeDisabled}},
		{name: "empty mode", cfg: AuthConfig{}},
		{name: "token", cfg: AuthConfig{Mode: AuthModeToken, Token: "s3cret"}, wantEnabled: true},
		{name: "token mode without token", cfg: AuthConfig{Mode: AuthModeToken}, wantErr: "token is empty"},
		{name: "unknown mode", cfg: AuthConfig{Mode: "magic", Token: "x"}, wantErr: "mode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want it to mention %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if tc.cfg.Mode == "" {
				t.Error("empty mode was not normalised")
			}
			if tc.cfg.AuthEnabled() != tc.wantEnabled {
				t.Errorf("AuthEnabled = %v", tc.cfg.AuthEnabled())
			}
		})
	}
}

func TestAuthConfig_BearerToken(t *testing.T) {
	if tok := (&AuthConfig{Mode: AuthModeDisabled, Token: "ignored"}).BearerToken(); tok != "" {
		t.Errorf("disabled auth exposes token %q", tok)
	}
	if tok := (&AuthConfig{Mode: AuthModeToken, Token: "s3cret"}).BearerToken(); tok != "s3cret" {
		t.Errorf("token = %q", tok)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "missing roam dir on disk", mutate: func(c *Config) { c.Roam.Directory = "/does/not/exist" }},
		{name: "blank roam dir", mutate: func(c *Config) { c.Roam.Directory = "" }, wantErr: "roam.directory"},
		{name: "blank state dir", mutate: func(c *Config) { c.StateDir = "" }, wantErr: "state_dir"},
		{name: "bad port", mutate: func(c *Config) { c.App.HTTP.Port = 70000 }, wantErr: "app.http"},
		{name: "auth", mutate: func(c *Config) { c.Auth.Mode = AuthModeToken }, wantErr: "auth"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.HasPrefix(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want prefix %q", err, tc.wantErr)
			}
		})
	}
}

func TestConfig_IndexPath(t *testing.T) {
	cfg := NewDefaultConfig()
	if got := cfg.IndexPath(); got != ".roamorg/index.db" {
		t.Errorf("IndexPath = %q", got)
	}
	cfg.SQLite.Path = "/tmp/custom.db"
	if got := cfg.IndexPath(); got != "/tmp/custom.db" {
		t.Errorf("IndexPath = %q", got)
	}
}
