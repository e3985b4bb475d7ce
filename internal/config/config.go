package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Permissions understood by the API layer.
const (
	PermProjectConfigure = "project.configure"
	PermItemsLoad        = "items.load"
	PermTaskAssignOthers = "task.assign.others"
	PermAssignmentReview = "assignment.review"
	PermMembersManage    = "members.manage"
	PermEventsRead       = "events.read"
)

var knownPermissions = map[string]struct{}{
	PermProjectConfigure: {},
	PermItemsLoad:        {},
	PermTaskAssignOthers: {},
	PermAssignmentReview: {},
	PermMembersManage:    {},
	PermEventsRead:       {},
}

// Config models annoline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Allocation struct {
		MaxQuantity         int           `yaml:"max_quantity"`
		RetryAttempts       int           `yaml:"retry_attempts"`
		RetryInitialBackoff time.Duration `yaml:"retry_initial_backoff"`
		RetryMaxBackoff     time.Duration `yaml:"retry_max_backoff"`
	} `yaml:"allocation"`
	Defaults struct {
		MaxAssignments     int `yaml:"max_assignments"`
		ConsensusThreshold int `yaml:"consensus_threshold"`
	} `yaml:"defaults"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig describes one outbound event subscription. An empty Events
// list subscribes to every event type; an empty Project to every project.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Project        string   `yaml:"project"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Active reports whether the hook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return (w.Enabled == nil || *w.Enabled) && strings.TrimSpace(w.URL) != ""
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	if c.Allocation.MaxQuantity < 1 {
		return fmt.Errorf("config.allocation.max_quantity must be >= 1")
	}
	if c.Allocation.RetryAttempts < 1 {
		return fmt.Errorf("config.allocation.retry_attempts must be >= 1")
	}
	if c.Allocation.RetryInitialBackoff < 0 || c.Allocation.RetryMaxBackoff < c.Allocation.RetryInitialBackoff {
		return fmt.Errorf("config.allocation retry backoff must satisfy 0 <= initial <= max")
	}
	if c.Defaults.MaxAssignments < 1 {
		return fmt.Errorf("config.defaults.max_assignments must be >= 1")
	}
	if c.Defaults.ConsensusThreshold < 0 || c.Defaults.ConsensusThreshold > c.Defaults.MaxAssignments {
		return fmt.Errorf("config.defaults.consensus_threshold must be between 0 and max_assignments")
	}
	for roleID, role := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, perm := range role.Permissions {
			if _, ok := knownPermissions[perm]; !ok {
				return fmt.Errorf("role %s has unknown permission %q", roleID, perm)
			}
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) URL", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	return nil
}

// RolePermissions flattens the permissions granted by the given roles.
func (c *Config) RolePermissions(roles []string) []string {
	seen := map[string]bool{}
	var perms []string
	for _, r := range roles {
		for _, p := range c.RBAC.Roles[r].Permissions {
			if !seen[p] {
				seen[p] = true
				perms = append(perms, p)
			}
		}
	}
	return perms
}

// HasRole reports whether the role is defined.
func (c *Config) HasRole(role string) bool {
	_, ok := c.RBAC.Roles[role]
	return ok
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "annoline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with al config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the workspace config, falling back to Default when absent.
func LoadOrDefault(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

log:
  level: info
  format: text

allocation:
  max_quantity: 100
  retry_attempts: 5
  retry_initial_backoff: 10ms
  retry_max_backoff: 200ms

defaults:
  max_assignments: 1
  consensus_threshold: 1

rbac:
  roles:
    manager:
      description: "Creates projects, loads data and hands out work"
      permissions: [project.configure, items.load, task.assign.others, assignment.review, members.manage, events.read]
    reviewer:
      description: "Resolves submitted work and flagged items"
      permissions: [assignment.review, events.read]
    annotator:
      description: "Pulls and labels data items"
      permissions: []

# webhooks:
#   - url: https://example.internal/annoline
#     events: [item.resolved, item.flagged]
#     secret: change-me
#     timeout_seconds: 5
`
