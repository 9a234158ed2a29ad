// Package mode implements the on/off switch guarding every organizing
// command. The state is persisted so it survives between CLI invocations.
package mode

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/roamorg/internal/apperr"
	"github.com/starford/roamorg/internal/capture"
	"github.com/starford/roamorg/internal/settings"
)

// State is the mode state.
type State string

// Mode states.
const (
	Disabled State = "disabled"
	Enabled  State = "enabled"
)

// StateFile is the name of the file the state is kept in.
const StateFile = "mode.yaml"

type stateDoc struct {
	State     State     `yaml:"state"`
	ChangedAt time.Time `yaml:"changed_at"`
}

// Result describes the outcome of a transition.
type Result struct {
	State   State            `json:"state"`
	Changed bool             `json:"changed"`
	Report  *settings.Report `json:"report,omitempty"`
	Added   []string         `json:"templates_added,omitempty"`
	Skipped []string         `json:"templates_skipped,omitempty"`
}

// Controller is the Disabled/Enabled state machine.
type Controller struct {
	roam      settings.Roam
	statePath string
	validate  func() (settings.Report, error)
	getwd     func() (string, error)
	registry  func() (*capture.Registry, error)
	logger    *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithValidator replaces the settings check run by the enable guard.
func WithValidator(fn func() (settings.Report, error)) Option {
	return func(c *Controller) { c.validate = fn }
}

// WithGetwd replaces the working directory lookup.
func WithGetwd(fn func() (string, error)) Option {
	return func(c *Controller) { c.getwd = fn }
}

// WithRegistry sets where enabling merges the configured templates into.
func WithRegistry(fn func() (*capture.Registry, error)) Option {
	return func(c *Controller) { c.registry = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New returns a Controller keeping its state under stateDir.
func New(roam settings.Roam, stateDir string, opts ...Option) *Controller {
	c := &Controller{
		roam:      roam,
		statePath: filepath.Join(stateDir, StateFile),
		validate:  roam.Check,
		getwd:     os.Getwd,
		registry: func() (*capture.Registry, error) {
			return capture.Load(filepath.Join(stateDir, "templates.yaml"))
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the persisted state. No state file means Disabled.
func (c *Controller) State() (State, error) {
	data, err := os.ReadFile(c.statePath)
	if errors.Is(err, os.ErrNotExist) {
		return Disabled, nil
	}
	if err != nil {
		return Disabled, fmt.Errorf("mode: read state: %w", err)
	}
	var doc stateDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Disabled, fmt.Errorf("mode: parse state: %w", err)
	}
	if doc.State != Enabled {
		return Disabled, nil
	}
	return Enabled, nil
}

// Gate returns ErrDisabled unless the mode is enabled.
func (c *Controller) Gate() error {
	st, err := c.State()
	if err != nil {
		return err
	}
	if st != Enabled {
		return fmt.Errorf("mode: %w", apperr.ErrDisabled)
	}
	return nil
}

// Enable runs the guard and switches to Enabled. The guard requires valid
// settings and, unless anyDir is set, a working directory under the root.
// On failure the state stays Disabled; the returned Result still carries the
// validation report when there is one.
func (c *Controller) Enable(anyDir bool) (Result, error) {
	st, err := c.State()
	if err != nil {
		return Result{State: Disabled}, err
	}
	if st == Enabled {
		return Result{State: Enabled}, nil
	}

	rep, err := c.validate()
	if err != nil {
		return Result{State: Disabled}, fmt.Errorf("mode: validate: %w", err)
	}
	res := Result{State: Disabled, Report: &rep}
	if !rep.OK {
		return res, fmt.Errorf("mode: settings: %w", apperr.ErrInvalidConfig)
	}

	if !anyDir {
		wd, err := c.getwd()
		if err != nil {
			return res, fmt.Errorf("mode: working directory: %w", err)
		}
		if !settings.IsInside(c.roam.Root(), wd) {
			return res, fmt.Errorf("mode: %s is not under %s: %w", wd, c.roam.Root(), apperr.ErrOutsideRoot)
		}
	}

	if len(c.roam.Templates) > 0 {
		reg, err := c.registry()
		if err != nil {
			return res, err
		}
		res.Added, res.Skipped = reg.Merge(c.roam.Templates)
		if len(res.Added) > 0 {
			if err := reg.Save(); err != nil {
				return res, err
			}
		}
	}

	if err := c.write(Enabled); err != nil {
		return res, err
	}
	res.State, res.Changed = Enabled, true
	c.logger.Info("mode: enabled",
		slog.Int("templates_added", len(res.Added)),
		slog.Int("templates_skipped", len(res.Skipped)))
	return res, nil
}

// Disable switches to Disabled. It has no guard.
func (c *Controller) Disable() (Result, error) {
	st, err := c.State()
	if err != nil {
		return Result{State: Disabled}, err
	}
	if st == Disabled {
		return Result{State: Disabled}, nil
	}
	if err := c.write(Disabled); err != nil {
		return Result{State: Enabled}, err
	}
	c.logger.Info("mode: disabled")
	return Result{State: Disabled, Changed: true}, nil
}

// Toggle flips the state.
func (c *Controller) Toggle(anyDir bool) (Result, error) {
	st, err := c.State()
	if err != nil {
		return Result{State: Disabled}, err
	}
	if st == Enabled {
		return c.Disable()
	}
	return c.Enable(anyDir)
}

func (c *Controller) write(st State) error {
	data, err := yaml.Marshal(stateDoc{State: st, ChangedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("mode: encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.statePath), 0o755); err != nil {
		return fmt.Errorf("mode: mkdir: %w", err)
	}
	if err := os.WriteFile(c.statePath, data, 0o644); err != nil {
		return fmt.Errorf("mode: write state: %w", err)
	}
	return nil
}
