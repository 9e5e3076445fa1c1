package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateDefaultValidates(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("acme")))
	if err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Tenant.ID != "acme" {
		t.Fatalf("tenant id = %q", cfg.Tenant.ID)
	}
	if len(cfg.Alerts.Thresholds) != 3 || len(cfg.Alerts.Lifecycle) != 2 {
		t.Fatalf("unexpected default rules: %d thresholds, %d lifecycle",
			len(cfg.Alerts.Thresholds), len(cfg.Alerts.Lifecycle))
	}
}

func TestDefaultMatchesGenerated(t *testing.T) {
	cfg := Default("acme")
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Aggregation.CacheTTLSeconds != 300 {
		t.Fatalf("cache ttl = %d", cfg.Aggregation.CacheTTLSeconds)
	}
	if cfg.Alerts.Thresholds[0].AlertType != "revenue.negative" {
		t.Fatalf("unexpected first rule: %+v", cfg.Alerts.Thresholds[0])
	}
}

func TestValidateRejections(t *testing.T) {
	base := func() *Config { return Default("acme") }
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing tenant id",
			mutate:  func(c *Config) { c.Tenant.ID = "" },
			wantErr: "tenant.id",
		},
		{
			name:    "negative cache ttl",
			mutate:  func(c *Config) { c.Aggregation.CacheTTLSeconds = -1 },
			wantErr: "cache_ttl_seconds",
		},
		{
			name:    "unknown metric",
			mutate:  func(c *Config) { c.Alerts.Thresholds[0].Metric = "churn" },
			wantErr: "unknown metric",
		},
		{
			name:    "unknown comparator",
			mutate:  func(c *Config) { c.Alerts.Thresholds[0].Comparator = "ne" },
			wantErr: "unknown comparator",
		},
		{
			name:    "unknown severity",
			mutate:  func(c *Config) { c.Alerts.Thresholds[0].Severity = "urgent" },
			wantErr: "unknown severity",
		},
		{
			name:    "missing alert type",
			mutate:  func(c *Config) { c.Alerts.Thresholds[0].AlertType = "" },
			wantErr: "alert_type is required",
		},
		{
			name:    "unknown scope",
			mutate:  func(c *Config) { c.Alerts.Thresholds[0].Scope = "region" },
			wantErr: "unknown scope",
		},
		{
			name:    "unknown lifecycle entity",
			mutate:  func(c *Config) { c.Alerts.Lifecycle[0].Entity = "report" },
			wantErr: "unknown entity",
		},
		{
			name:    "lifecycle missing to_status",
			mutate:  func(c *Config) { c.Alerts.Lifecycle[0].ToStatus = "" },
			wantErr: "to_status is required",
		},
		{
			name:    "webhook without url",
			mutate:  func(c *Config) { c.Webhooks = []WebhookConfig{{Secret: "s"}} },
			wantErr: "url is required",
		},
		{
			name: "roles without owner",
			mutate: func(c *Config) {
				c.RBAC.Roles = map[string]RBACRole{"viewer": {Permissions: []string{"metric.read"}}}
			},
			wantErr: "must include owner",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("want error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestFromYAMLRejectsMalformed(t *testing.T) {
	if _, err := FromYAML([]byte("tenant: [")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing file should be nil,nil: %v %v", cfg, err)
	}
	if err := os.WriteFile(Path(dir), []byte(GenerateDefault("acme")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil || cfg == nil || cfg.Tenant.ID != "acme" {
		t.Fatalf("load after write: %v %v", cfg, err)
	}
}

func TestPath(t *testing.T) {
	if got := Path(""); got != filepath.Join(".", "execdesk.yml") {
		t.Fatalf("Path(\"\") = %q", got)
	}
	if got := Path("/ws"); got != filepath.Join("/ws", "execdesk.yml") {
		t.Fatalf("Path(/ws) = %q", got)
	}
}
