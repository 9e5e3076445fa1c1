package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"execdesk/internal/domain"
	"execdesk/internal/engine/auth"
	"execdesk/internal/events"
	"execdesk/internal/repo"
)

// Identity is the resolved RBAC view of one actor within a tenant.
type Identity struct {
	ActorID     string
	Roles       []string
	Permissions []string
}

func (e Engine) WhoAmI(ctx context.Context, tenantID, actorID string) (Identity, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return Identity{}, err
	}
	defer tx.Rollback()
	roles, err := e.Auth.ActorRoles(ctx, tx, tenantID, actorID)
	if err != nil {
		return Identity{}, err
	}
	perms, err := e.Auth.ActorPermissions(ctx, tx, tenantID, actorID)
	if err != nil {
		return Identity{}, err
	}
	return Identity{ActorID: actorID, Roles: roles, Permissions: perms}, nil
}

func (e Engine) GrantRole(ctx context.Context, tenantID, actorID, targetActorID, roleID string) error {
	if targetActorID == "" || roleID == "" {
		return errors.New("actor_id and role_id are required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Auth.ActorHasPermission(ctx, tx, tenantID, actorID, "rbac.manage")
	if err != nil {
		return err
	}
	if !ok {
		return auth.ForbiddenError{Permission: "rbac.manage"}
	}
	if err := e.Auth.EnsureActor(ctx, tx, targetActorID); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tx, tenantID, targetActorID, roleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "rbac.role_granted", tenantID, "rbac", targetActorID, actorID, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RevokeRole(ctx context.Context, tenantID, actorID, targetActorID, roleID string) error {
	if targetActorID == "" || roleID == "" {
		return errors.New("actor_id and role_id are required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Auth.ActorHasPermission(ctx, tx, tenantID, actorID, "rbac.manage")
	if err != nil {
		return err
	}
	if !ok {
		return auth.ForbiddenError{Permission: "rbac.manage"}
	}
	if err := e.Repo.RevokeRole(ctx, tx, tenantID, targetActorID, roleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "rbac.role_revoked", tenantID, "rbac", targetActorID, actorID, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey mints a key for an actor. The raw key is returned exactly once;
// only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, tenantID, actorID, name string) (domain.APIKey, string, error) {
	if actorID == "" {
		return domain.APIKey{}, "", errors.New("actor_id required")
	}
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		return domain.APIKey{}, "", err
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := "exd_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return key, "", err
	}
	defer tx.Rollback()
	if err := e.Auth.EnsureActor(ctx, tx, actorID); err != nil {
		return key, "", err
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return key, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", tenantID, "apikey", key.ID, actorID, nil); err != nil {
		return key, "", err
	}
	return key, raw, tx.Commit()
}
