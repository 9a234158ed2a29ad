// Package capture keeps the registry of note creation templates.
package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Template describes how a new note is created.
type Template struct {
	Key         string `yaml:"key" json:"key"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Target      string `yaml:"target" json:"target"`
	Body        string `yaml:"body,omitempty" json:"body,omitempty"`
}

// Validate validates the template.
func (t Template) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Key, validation.Required),
		validation.Field(&t.Target, validation.Required),
	)
}

// Registry is a YAML file holding the known templates.
type Registry struct {
	path      string
	Templates []Template `yaml:"templates"`
}

// Load reads the registry at path. A missing file yields an empty registry.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("capture: read registry: %w", err)
	}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("capture: parse registry %s: %w", path, err)
	}
	return r, nil
}

// Save writes the registry back to its file.
func (r *Registry) Save() error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("capture: encode registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("capture: mkdir: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("capture: write registry: %w", err)
	}
	return nil
}

// Has reports whether a template with key is registered.
func (r *Registry) Has(key string) bool {
	for _, t := range r.Templates {
		if t.Key == key {
			return true
		}
	}
	return false
}

// Merge adds the templates whose key is not registered yet. Registered
// templates are never replaced.
func (r *Registry) Merge(templates []Template) (added, skipped []string) {
	for _, t := range templates {
		if r.Has(t.Key) {
			skipped = append(skipped, t.Key)
			continue
		}
		r.Templates = append(r.Templates, t)
		added = append(added, t.Key)
	}
	return added, skipped
}
