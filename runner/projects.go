package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Project is a source tree the server can gate on demand
type Project struct {
	Name        string `yaml:"name" json:"name"`
	Path        string `yaml:"path" json:"path"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// ProjectsConfig holds the list of all projects
type ProjectsConfig struct {
	Projects []Project `yaml:"projects" json:"projects"`
}

// LoadProjects loads the projects configuration from a YAML file
func LoadProjects(configPath string) (*ProjectsConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read projects config: %w", err)
	}

	var config ProjectsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse projects config: %w", err)
	}

	seen := make(map[string]bool, len(config.Projects))
	for _, p := range config.Projects {
		if p.Name == "" || p.Path == "" {
			return nil, fmt.Errorf("failed to parse projects config: every project needs a name and a path")
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("failed to parse projects config: duplicate project '%s'", p.Name)
		}
		seen[p.Name] = true
	}

	return &config, nil
}

// GetProject returns a project by name
func (pc *ProjectsConfig) GetProject(name string) (*Project, error) {
	for _, project := range pc.Projects {
		if project.Name == name {
			return &project, nil
		}
	}
	return nil, fmt.Errorf("project '%s' not found", name)
}

// Dir returns the project's absolute directory
func (p *Project) Dir(baseDir string) string {
	if filepath.IsAbs(p.Path) {
		return p.Path
	}
	return filepath.Join(baseDir, p.Path)
}

// Validate checks that the project directory exists.
// A missing gate.yml is fine: the default pipeline is used.
func (p *Project) Validate(baseDir string) error {
	info, err := os.Stat(p.Dir(baseDir))
	if err != nil {
		return fmt.Errorf("project path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project path is not a directory")
	}
	return nil
}

// GetGatePath returns the absolute path to the project's gate.yml
func (p *Project) GetGatePath(baseDir string) string {
	return filepath.Join(p.Dir(baseDir), DefaultConfigFile)
}

// LoadConfig loads the project's gate config or the default pipeline
func (p *Project) LoadConfig(baseDir string) (*Config, error) {
	cfg, _, err := LoadConfigOrDefault(p.GetGatePath(baseDir), p.Dir(baseDir))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
