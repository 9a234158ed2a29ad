// Package config loads YAML configuration files into typed structs.
//
// Before decoding, ${VAR} and $VAR references are replaced from the
// environment; ${VAR:-fallback} uses fallback when VAR is unset or empty.
// Keys the target struct does not declare are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Validator is implemented by configuration types that check themselves
// after loading.
type Validator interface {
	Validate() error
}

// Load decodes filename into target and validates the result. Fields
// absent from the file keep the values target already holds.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	if err := decode(expandEnv(string(data)), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return validate(target)
}

// LoadOptional is Load for a file that may not exist. A missing file leaves
// target untouched, and it is validated either way. The boolean reports
// whether the file was read.
func LoadOptional[T any](filename string, target *T) (bool, error) {
	_, err := os.Stat(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return false, validate(target)
	}
	if err := Load(filename, target); err != nil {
		return false, err
	}
	return true, nil
}

func decode(doc string, target any) error {
	dec := yaml.NewDecoder(bytes.NewBufferString(doc))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func expandEnv(s string) string {
	return os.Expand(s, func(ref string) string {
		name, fallback, hasFallback := strings.Cut(ref, ":-")
		if v := os.Getenv(name); v != "" || !hasFallback {
			return v
		}
		return fallback
	})
}

func validate(target any) error {
	v, ok := target.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
