package runner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no path is given
const DefaultConfigFile = "gate.yml"

// CheckConfig is one entry of the checks list in gate.yml.
// Exactly one of Command (argv) or Run (a shell line) is set.
type CheckConfig struct {
	Name       string            `yaml:"name"`
	Command    []string          `yaml:"command,omitempty"`
	Run        string            `yaml:"run,omitempty"`
	Dir        string            `yaml:"dir,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	FailPolicy string            `yaml:"fail_policy,omitempty"`
}

type Config struct {
	Name    string            `yaml:"name"`
	Dir     string            `yaml:"dir,omitempty"`
	Shell   []string          `yaml:"shell,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	History string            `yaml:"history,omitempty"`
	Checks  []CheckConfig     `yaml:"checks"`

	// directory of the file the config came from, empty for the built-in pipeline
	baseDir string
}

var defaultShell = []string{"sh", "-c"}

// ShellEnv overrides the default shell for configs that do not set one.
// The value is split on whitespace, e.g. "bash -eu -c".
const ShellEnv = "GATE_SHELL"

// DefaultConfig is the pipeline used when no gate.yml exists:
// formatting, vet, then the test suite.
func DefaultConfig() *Config {
	return &Config{
		Name: "go",
		Checks: []CheckConfig{
			{Name: "format", Run: `files=$(gofmt -l .) && { [ -z "$files" ] || { echo "$files"; exit 1; }; }`},
			{Name: "lint", Command: []string{"go", "vet", "./..."}},
			{Name: "test", Command: []string{"go", "test", "./..."}},
		},
	}
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gate config: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg.baseDir = filepath.Dir(absPath)

	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.baseDir)
	}
	cfg.shellFromEnv()

	return cfg, nil
}

// LoadConfigOrDefault loads path, falling back to DefaultConfig when the file
// does not exist. The fallback pipeline runs in baseDir.
func LoadConfigOrDefault(path, baseDir string) (*Config, bool, error) {
	cfg, err := LoadConfig(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	cfg = DefaultConfig()
	cfg.baseDir = baseDir
	cfg.shellFromEnv()
	return cfg, false, nil
}

func (c *Config) shellFromEnv() {
	if len(c.Shell) > 0 {
		return
	}
	if shell := strings.Fields(os.Getenv(ShellEnv)); len(shell) > 0 {
		c.Shell = shell
	}
}

// Validate checks the invariants the runner relies on
func (c *Config) Validate() error {
	if len(c.Checks) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrEmptyPipeline)
	}

	seen := make(map[string]bool, len(c.Checks))
	for i, check := range c.Checks {
		if check.Name == "" {
			return fmt.Errorf("%w: check %d has no name", ErrInvalidConfig, i+1)
		}
		if seen[check.Name] {
			return fmt.Errorf("%w: duplicate check name '%s'", ErrInvalidConfig, check.Name)
		}
		seen[check.Name] = true

		hasCommand := len(check.Command) > 0
		hasRun := check.Run != ""
		if hasCommand == hasRun {
			return fmt.Errorf("%w: check '%s' needs exactly one of command or run", ErrInvalidConfig, check.Name)
		}
		if hasCommand && check.Command[0] == "" {
			return fmt.Errorf("%w: check '%s': %w", ErrInvalidConfig, check.Name, ErrEmptyCommand)
		}

		switch FailPolicy(check.FailPolicy) {
		case "", FailPolicyAbort:
		default:
			return fmt.Errorf("%w: check '%s' has unsupported fail_policy '%s'", ErrInvalidConfig, check.Name, check.FailPolicy)
		}
	}

	return nil
}

// WorkDir is the directory checks run in
func (c *Config) WorkDir() string {
	return c.resolve(c.Dir)
}

// HistoryPath is the SQLite file for run history, empty when disabled
func (c *Config) HistoryPath() string {
	if c.History == "" {
		return ""
	}
	return c.resolve(c.History)
}

func (c *Config) resolve(path string) string {
	if path == "" {
		return c.baseDir
	}
	if filepath.IsAbs(path) || c.baseDir == "" {
		return path
	}
	return filepath.Join(c.baseDir, path)
}

// Pipeline converts the config into the checks the gate executes
func (c *Config) Pipeline() (Pipeline, error) {
	if err := c.Validate(); err != nil {
		return Pipeline{}, err
	}

	shell := c.Shell
	if len(shell) == 0 {
		shell = defaultShell
	}

	p := Pipeline{Name: c.Name, Checks: make([]Check, 0, len(c.Checks))}
	for _, cc := range c.Checks {
		command := cc.Command
		if cc.Run != "" {
			command = append(append([]string{}, shell...), cc.Run)
		}

		check := Check{
			Name:       cc.Name,
			Command:    append([]string{}, command...),
			Env:        envList(cc.Env),
			FailPolicy: FailPolicyAbort,
		}
		if cc.Dir != "" {
			check.Dir = c.resolve(cc.Dir)
		}
		p.Checks = append(p.Checks, check)
	}

	return p, nil
}

// Workspace builds the execution context from the process environment
// plus the config's env block.
func (c *Config) Workspace(name string) Workspace {
	return Workspace{
		Name: name,
		Dir:  c.WorkDir(),
		Env:  append(os.Environ(), envList(c.Env)...),
	}
}

// envList renders a map as sorted KEY=VALUE pairs
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}
