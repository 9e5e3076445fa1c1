package app

import (
	"context"
	"errors"
	"fmt"

	"execdesk/internal/config"
	"execdesk/internal/engine"
	"execdesk/internal/repo"
)

// ResolveTenantAndConfig picks the active tenant and ensures a tenant + config
// exist in DB, seeding defaults if missing. It prefers the override, then the
// single-tenant DB. An unknown tenant is initialized on the fly.
func ResolveTenantAndConfig(ctx context.Context, e engine.Engine, tenantOverride, actorID string) (string, *config.Config, error) {
	tenantID := tenantOverride
	if tenantID == "" {
		t, err := e.Repo.SingleTenant(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("tenant not specified; use --tenant")
		}
		tenantID = t.ID
	}
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if _, err := e.InitTenant(ctx, tenantID, tenantID, actorID); err != nil {
			return "", nil, fmt.Errorf("init tenant: %w", err)
		}
	}
	cfg, err := e.Repo.GetTenantConfig(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(tenantID)
		if err := e.Repo.UpsertTenantConfig(ctx, tenantID, cfg); err != nil {
			return "", nil, fmt.Errorf("seed tenant config: %w", err)
		}
	}
	cfg.Tenant.ID = tenantID
	return tenantID, cfg, nil
}
