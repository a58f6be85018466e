// Package secrets resolves credentials from the environment, falling back to
// the Doppler CLI when a project is configured
package secrets

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrNotConfigured is returned when a secret is not in the environment and
// no Doppler project is set
var ErrNotConfigured = errors.New("doppler project not configured")

// Runner executes the doppler binary and returns its stdout
type Runner func(name string, args ...string) ([]byte, error)

// Doppler looks secrets up in the environment first, then in Doppler
type Doppler struct {
	Project string
	Config  string
	run     Runner
}

// NewDoppler creates a resolver for project/config. An empty project
// restricts lookups to the environment.
func NewDoppler(project, config string) *Doppler {
	return &Doppler{
		Project: project,
		Config:  config,
		run: func(name string, args ...string) ([]byte, error) {
			if _, err := exec.LookPath(name); err != nil {
				return nil, fmt.Errorf("doppler CLI not found: %w", err)
			}
			return exec.Command(name, args...).Output()
		},
	}
}

// WithRunner replaces the CLI invocation
func (d *Doppler) WithRunner(run Runner) *Doppler {
	d.run = run
	return d
}

// Lookup returns the value of key
func (d *Doppler) Lookup(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	if d.Project == "" {
		return "", ErrNotConfigured
	}

	out, err := d.run("doppler", "secrets", "get", key,
		"--project", d.Project,
		"--config", d.Config,
		"--plain")
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Get returns the value of key, or fallback when it cannot be resolved
func (d *Doppler) Get(key, fallback string) string {
	value, err := d.Lookup(key)
	if err != nil || value == "" {
		return fallback
	}
	return value
}
