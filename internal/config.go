package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/roamorg/internal/settings"
)

// Auth modes accepted in auth.mode.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

const indexFileName = "index.db"

// Config is the file-backed configuration of every roamorg command.
//
// Validate only rejects values no command could run with. Missing roam
// directories or files are left to the validate command, which reports
// every failing setting at once.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Roam     settings.Roam     `yaml:"roam"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	StateDir string            `yaml:"state_dir"`
}

// Validate checks each section and prefixes failures with the section key.
func (c *Config) Validate() error {
	if c.Roam.Directory == "" {
		return errors.New("roam.directory: cannot be blank")
	}
	if c.StateDir == "" {
		return errors.New("state_dir: cannot be blank")
	}
	sections := []struct {
		key string
		v   validation.Validatable
	}{
		{"app.http", &c.App.HTTP},
		{"sqlite", &c.SQLite},
		{"auth", &c.Auth},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.key, err)
		}
	}
	return nil
}

// IndexPath is sqlite.path, or index.db inside the state directory when
// unset.
func (c *Config) IndexPath() string {
	if c.SQLite.Path == "" {
		return filepath.Join(c.StateDir, indexFileName)
	}
	return c.SQLite.Path
}

// ApplicationConfig holds process-wide settings.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// HTTPConfig configures the listener of the serve command.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the listen address for Port on all interfaces.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig locates the node index database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Length(0, 4096)),
	)
}

// AuthConfig guards the REST surface. In token mode every request must send
// "Authorization: Bearer <Token>"; disabled mode is meant for local use.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate treats an empty mode as disabled.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.Token,
			validation.When(c.Mode == AuthModeToken, validation.Required.Error("token is empty in token mode")),
		),
	)
}

// AuthEnabled reports whether requests must carry the token.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// BearerToken is the token requests must carry, or "" when auth is
// disabled.
func (c *AuthConfig) BearerToken() string {
	if c.AuthEnabled() {
		return c.Token
	}
	return ""
}

// NewDefaultConfig returns the configuration used for keys the config file
// leaves out.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP:     HTTPConfig{Port: 8080},
		},
		Roam:     settings.NewDefault(),
		StateDir: "./.roamorg",
		Auth:     AuthConfig{Mode: AuthModeDisabled},
	}
}
