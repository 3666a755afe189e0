package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models veritrace.yml.
type Config struct {
	Project struct {
		ID         string `yaml:"id"`
		Name       string `yaml:"name"`
		SystemType string `yaml:"system_type"`
	} `yaml:"project"`
	Validation struct {
		Regulations       []string `yaml:"regulations"`
		RiskLexiconNote   string   `yaml:"risk_lexicon_note"`
		RequireApprovedBy struct {
			FunctionalSpec bool `yaml:"functional_spec"`
			DesignSpec     bool `yaml:"design_spec"`
		} `yaml:"require_approved_parent"`
	} `yaml:"validation"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with vt project config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Project.SystemType != "GxP" && c.Project.SystemType != "Non-GxP" {
		return fmt.Errorf("config.project.system_type must be 'GxP' or 'Non-GxP'")
	}
	for _, reg := range c.Validation.Regulations {
		if reg == "" {
			return fmt.Errorf("config.validation.regulations contains empty entry")
		}
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["quality"]; !ok {
			return fmt.Errorf("config.rbac.roles must include quality")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	return nil
}

// RolePermitted reports whether a role grants a permission. A role with
// the wildcard permission "*" is permitted everything. An empty role
// table permits everything; locked-down deployments define roles.
func (c *Config) RolePermitted(role, permission string) bool {
	if len(c.RBAC.Roles) == 0 {
		return true
	}
	r, ok := c.RBAC.Roles[role]
	if !ok {
		return false
	}
	for _, p := range r.Permissions {
		if p == "*" || p == permission {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "veritrace.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID, projectID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	cfg.Project.SystemType = "GxP"
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(projectID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s
  name: %s
  system_type: GxP

validation:
  regulations:
    - 21 CFR Part 11
    - EU Annex 11
    - GAMP 5
  require_approved_parent:
    functional_spec: true
    design_spec: true

rbac:
  roles:
    quality:
      description: "Quality assurance; approves artifacts and closes deviations"
      permissions: ["*"]
    validation_lead:
      description: "Owns the validation plan and traceability"
      permissions:
        - requirement.write
        - requirement.approve
        - spec.write
        - spec.approve
        - design.write
        - testcase.write
        - change.write
        - change.approve
        - report.read
    tester:
      description: "Executes test cases and raises deviations"
      permissions:
        - execution.write
        - deviation.write
        - report.read
    viewer:
      description: "Read-only access to all artifacts"
      permissions:
        - report.read
`
