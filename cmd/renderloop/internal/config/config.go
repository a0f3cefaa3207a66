// Package config loads the optional renderloop.yaml configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
	"gopkg.in/yaml.v3"

	"github.com/go-drift/renderloop/pkg/timing"
)

// FileName is the configuration file looked up in the project root.
const FileName = "renderloop.yaml"

// DefaultBufferSize is the timing buffer capacity when none is configured.
const DefaultBufferSize = 240

// Config represents renderloop.yaml.
type Config struct {
	Mount    MountConfig    `yaml:"mount"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Timing   TimingConfig   `yaml:"timing"`
	Log      LogConfig      `yaml:"log"`
}

// MountConfig holds the props applied to every simulated root.
type MountConfig struct {
	Subscribe *bool  `yaml:"subscribe,omitempty"`
	Immediate bool   `yaml:"immediate,omitempty"`
	Name      string `yaml:"name,omitempty"`
}

// PipelineConfig holds pipeline policy.
type PipelineConfig struct {
	OptimizePrepare *bool `yaml:"optimize_prepare,omitempty"`
}

// TimingConfig selects the timing reports.
type TimingConfig struct {
	AppLoop    bool `yaml:"app_loop,omitempty"`
	HostRender bool `yaml:"host_render,omitempty"`
	AppData    bool `yaml:"app_data,omitempty"`
	Buffer     int  `yaml:"buffer,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// Resolved contains resolved configuration values.
type Resolved struct {
	Root            string `yaml:"root"`
	Name            string `yaml:"name"`
	Subscribe       bool   `yaml:"subscribe"`
	Immediate       bool   `yaml:"immediate"`
	OptimizePrepare bool   `yaml:"optimize_prepare"`
	AppLoop         bool   `yaml:"app_loop"`
	HostRender      bool   `yaml:"host_render"`
	AppData         bool   `yaml:"app_data"`
	Buffer          int    `yaml:"buffer"`
	LogLevel        string `yaml:"log_level"`
}

// TimingFlags returns the enabled timing flags.
func (r *Resolved) TimingFlags() timing.Flag {
	var flags timing.Flag
	if r.AppLoop {
		flags |= timing.AppLoop
	}
	if r.HostRender {
		flags |= timing.HostRender
	}
	if r.AppData {
		flags |= timing.AppData
	}
	return flags
}

// LoadOptional reads renderloop.yaml from dir if present.
func LoadOptional(dir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	return cfg, nil
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return &cfg, nil
}

// Resolve loads renderloop.yaml from dir (if present) and resolves defaults.
func Resolve(dir string) (*Resolved, error) {
	cfg, err := LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	return cfg.Resolve(dir)
}

// Resolve fills defaults and validates the result. root is used to derive
// the default root name from its go.mod, if any.
func (c *Config) Resolve(root string) (*Resolved, error) {
	name := strings.TrimSpace(c.Mount.Name)
	if name == "" {
		name = defaultName(root)
	}

	logLevel := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if logLevel == "" {
		logLevel = "warn"
	}

	buffer := c.Timing.Buffer
	if buffer == 0 {
		buffer = DefaultBufferSize
	}

	r := &Resolved{
		Root:            root,
		Name:            name,
		Subscribe:       c.Mount.Subscribe == nil || *c.Mount.Subscribe,
		Immediate:       c.Mount.Immediate,
		OptimizePrepare: c.Pipeline.OptimizePrepare == nil || *c.Pipeline.OptimizePrepare,
		AppLoop:         c.Timing.AppLoop,
		HostRender:      c.Timing.HostRender,
		AppData:         c.Timing.AppData,
		Buffer:          buffer,
		LogLevel:        logLevel,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks resolved values.
func (r *Resolved) Validate() error {
	if r.Buffer < 0 {
		return fmt.Errorf("timing.buffer must be >= 0 (got %d)", r.Buffer)
	}
	if _, err := zerolog.ParseLevel(r.LogLevel); err != nil {
		return fmt.Errorf("log.level %q is not a valid level", r.LogLevel)
	}
	if strings.ContainsAny(r.Name, " \t\n") {
		return fmt.Errorf("mount.name cannot contain whitespace (%q)", r.Name)
	}
	return nil
}

// Marshal renders the resolved configuration as YAML.
func (r *Resolved) Marshal() ([]byte, error) {
	return yaml.Marshal(r)
}

// FindProjectRoot walks up from the current directory to the first
// directory holding renderloop.yaml or go.mod. It falls back to the
// current directory.
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for dir := cwd; ; {
		for _, marker := range []string{FileName, "go.mod"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd, nil
		}
		dir = parent
	}
}

// defaultName derives a root name from the module path in root/go.mod,
// falling back to "main".
func defaultName(root string) string {
	if root == "" {
		return "main"
	}
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return "main"
	}
	path := modfile.ModulePath(data)
	if path == "" {
		return "main"
	}
	prefix, _, ok := module.SplitPathVersion(path)
	if !ok {
		prefix = path
	}
	parts := strings.Split(prefix, "/")
	if base := parts[len(parts)-1]; base != "" {
		return base
	}
	return "main"
}
