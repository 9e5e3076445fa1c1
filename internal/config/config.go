package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models execdesk.yml for one tenant.
type Config struct {
	Tenant struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"tenant"`
	Aggregation struct {
		CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	} `yaml:"aggregation"`
	Alerts struct {
		Thresholds []ThresholdRule `yaml:"thresholds"`
		Lifecycle  []LifecycleRule `yaml:"lifecycle"`
	} `yaml:"alerts"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	RBAC     struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
}

// ThresholdRule fires when the referenced snapshot metric satisfies the
// comparator against the threshold. Rules with scope "department" are applied
// to every department row; "global" only to the tenant-wide metrics.
type ThresholdRule struct {
	Metric     string  `yaml:"metric"`
	Comparator string  `yaml:"comparator"`
	Threshold  float64 `yaml:"threshold"`
	Severity   string  `yaml:"severity"`
	AlertType  string  `yaml:"alert_type"`
	Scope      string  `yaml:"scope,omitempty"`
}

// LifecycleRule raises an alert when an entity transitions into to_status.
// Empty severity means "match the entity's own severity/priority".
type LifecycleRule struct {
	Entity      string `yaml:"entity"`
	ToStatus    string `yaml:"to_status"`
	MinPriority string `yaml:"min_priority,omitempty"`
	Severity    string `yaml:"severity,omitempty"`
	AlertType   string `yaml:"alert_type"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

var validComparators = map[string]bool{"lt": true, "lte": true, "gt": true, "gte": true, "eq": true}
var validSeverities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}
var validMetrics = map[string]bool{"revenue": true, "users": true, "performance": true, "growth": true}
var validEntities = map[string]bool{"analysis": true, "decision": true, "crisis": true}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with exd tenant config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Tenant.ID == "" {
		return fmt.Errorf("config.tenant.id is required")
	}
	if c.Aggregation.CacheTTLSeconds < 0 {
		return fmt.Errorf("config.aggregation.cache_ttl_seconds must be >= 0")
	}
	for i, r := range c.Alerts.Thresholds {
		if !validMetrics[r.Metric] {
			return fmt.Errorf("threshold rule %d: unknown metric %q", i, r.Metric)
		}
		if !validComparators[r.Comparator] {
			return fmt.Errorf("threshold rule %d: unknown comparator %q", i, r.Comparator)
		}
		if !validSeverities[r.Severity] {
			return fmt.Errorf("threshold rule %d: unknown severity %q", i, r.Severity)
		}
		if r.AlertType == "" {
			return fmt.Errorf("threshold rule %d: alert_type is required", i)
		}
		switch r.Scope {
		case "", "global", "department", "all":
		default:
			return fmt.Errorf("threshold rule %d: unknown scope %q", i, r.Scope)
		}
	}
	for i, r := range c.Alerts.Lifecycle {
		if !validEntities[r.Entity] {
			return fmt.Errorf("lifecycle rule %d: unknown entity %q", i, r.Entity)
		}
		if r.ToStatus == "" {
			return fmt.Errorf("lifecycle rule %d: to_status is required", i)
		}
		if r.Severity != "" && !validSeverities[r.Severity] {
			return fmt.Errorf("lifecycle rule %d: unknown severity %q", i, r.Severity)
		}
		if r.MinPriority != "" && !validSeverities[r.MinPriority] {
			return fmt.Errorf("lifecycle rule %d: unknown min_priority %q", i, r.MinPriority)
		}
		if r.AlertType == "" {
			return fmt.Errorf("lifecycle rule %d: alert_type is required", i)
		}
	}
	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhook %d: url is required", i)
		}
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["owner"]; !ok {
			return fmt.Errorf("config.rbac.roles must include owner")
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

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "execdesk.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(tenantID string) string {
	return fmt.Sprintf(defaultTemplate, tenantID, tenantID)
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

// Default returns the default Config struct for a tenant.
func Default(tenantID string) *Config {
	var cfg Config
	cfg.Tenant.ID = tenantID
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(tenantID))).Decode(&cfg)
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

const defaultTemplate = `tenant:
  id: %s
  name: %s

aggregation:
  cache_ttl_seconds: 300

alerts:
  thresholds:
    - metric: revenue
      comparator: lt
      threshold: 0
      severity: high
      alert_type: revenue.negative
      scope: all

    - metric: performance
      comparator: lt
      threshold: 50
      severity: medium
      alert_type: performance.degraded
      scope: all

    - metric: growth
      comparator: lt
      threshold: -10
      severity: high
      alert_type: growth.decline
      scope: global

  lifecycle:
    - entity: crisis
      to_status: detected
      alert_type: crisis.detected

    - entity: decision
      to_status: cancelled
      min_priority: critical
      severity: high
      alert_type: decision.cancelled
`
