package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"gatego/runner"
)

// getEnv gets environment variable or returns default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// loadGateConfig resolves the gate config for the CLI commands.
// An explicitly named config must exist; otherwise a missing gate.yml in the
// working directory selects the default pipeline. GATE_SHELL is applied by
// the runner's loaders.
func loadGateConfig(configPath string) (*runner.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	var cfg *runner.Config
	if configPath == "" {
		configPath = getEnv("GATE_CONFIG", "")
	}
	if configPath != "" {
		cfg, err = runner.LoadConfig(configPath)
	} else {
		cfg, _, err = runner.LoadConfigOrDefault(filepath.Join(cwd, runner.DefaultConfigFile), cwd)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// historyPath picks the history database: flag, then GATE_HISTORY_DB, then config
func historyPath(flagValue string, cfg *runner.Config) string {
	if flagValue != "" {
		return flagValue
	}
	return getEnv("GATE_HISTORY_DB", cfg.HistoryPath())
}
