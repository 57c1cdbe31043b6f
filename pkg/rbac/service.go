package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"dirhub/pkg/kvstore"
	"dirhub/pkg/observability"
)

var (
	// ErrCreateRole is the only error CreateRole surfaces to callers.
	// The underlying cause is logged, not returned.
	ErrCreateRole = errors.New("failed to create role")

	// ErrSystemRoleImmutable is returned when an update or delete
	// targets a built-in role.
	ErrSystemRoleImmutable = errors.New("system roles cannot be modified")

	// ErrInvalidRole is returned when a role fails validation.
	ErrInvalidRole = errors.New("invalid role")
)

const decisionCacheSize = 4096

// Service persists roles and user-role assignments in a key-value
// store and answers permission questions.
//
// Reads fail soft: on a store error they log and return the zero
// answer (nil role, empty list, false) instead of an error, so a
// flaky store degrades to denied access rather than a crash. CreateRole
// is the loud exception and surfaces ErrCreateRole.
//
// Multi-key operations (delete cascade, assignment bookkeeping) are not
// atomic. Readers tolerate the resulting dangling references and the
// Reconciler sweeps them up.
type Service struct {
	store   kvstore.Store
	logger  *observability.Logger
	metrics *observability.Metrics

	cache *expirable.LRU[string, bool]
}

// NewService creates a Service. cacheTTL bounds how stale a cached
// permission decision may be; zero disables the cache.
func NewService(store kvstore.Store, logger *observability.Logger, cacheTTL time.Duration) *Service {
	s := &Service{
		store:  store,
		logger: logger,
	}
	if cacheTTL > 0 {
		s.cache = expirable.NewLRU[string, bool](decisionCacheSize, nil, cacheTTL)
	}
	return s
}

// WithMetrics attaches Prometheus metrics and returns s for chaining.
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

// CreateRole validates and stores a new role, returning it with ID and
// timestamps filled in.
func (s *Service) CreateRole(ctx context.Context, role Role) (*Role, error) {
	if err := s.validateRole(&role); err != nil {
		s.mutation("create", "invalid")
		return nil, err
	}

	role.ID = uuid.NewString()
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	role.UserCount = 0

	if err := s.saveRole(ctx, &role); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": role.TenantID,
			"role_name": role.Name,
		}).Error("failed to create role")
		s.mutation("create", "error")
		return nil, ErrCreateRole
	}

	s.mutation("create", "ok")
	return &role, nil
}

// GetRole returns the role, or nil when it does not exist or the store
// is unavailable.
func (s *Service) GetRole(ctx context.Context, tenantID, roleID string) *Role {
	return s.loadRole(ctx, tenantID, roleID)
}

// GetRolesByTenant lists every role in the tenant. Enumeration failures
// yield an empty slice; individual unreadable roles are skipped.
func (s *Service) GetRolesByTenant(ctx context.Context, tenantID string) []Role {
	keys, err := s.store.ScanKeys(ctx, roleScanPattern(tenantID))
	if err != nil {
		s.logger.WithError(err).WithField("tenant_id", tenantID).
			Error("failed to list roles")
		return []Role{}
	}

	roles := make([]Role, 0, len(keys))
	for _, key := range keys {
		raw, err := s.store.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, kvstore.ErrNotFound) {
				s.logger.WithError(err).WithField("key", key).
					Warn("failed to read role during listing")
			}
			continue
		}
		var role Role
		if err := json.Unmarshal([]byte(raw), &role); err != nil {
			s.logger.WithError(err).WithField("key", key).
				Warn("corrupt role record skipped")
			continue
		}
		roles = append(roles, role)
	}
	return roles
}

// UpdateRole applies updates to an existing custom role. It returns
// nil, nil when the role does not exist and ErrSystemRoleImmutable for
// built-in roles. ID, TenantID, Type and CreatedAt never change.
func (s *Service) UpdateRole(ctx context.Context, tenantID, roleID string, updates RoleUpdate) (*Role, error) {
	role := s.loadRole(ctx, tenantID, roleID)
	if role == nil {
		s.mutation("update", "not_found")
		return nil, nil
	}
	if role.Type == RoleTypeSystem {
		s.mutation("update", "refused")
		return nil, ErrSystemRoleImmutable
	}

	if updates.Name != nil {
		role.Name = *updates.Name
	}
	if updates.Description != nil {
		role.Description = *updates.Description
	}
	if updates.Scope != nil {
		role.Scope = *updates.Scope
	}
	if updates.SiteID != nil {
		role.SiteID = *updates.SiteID
	}
	if updates.Permissions != nil {
		role.Permissions = *updates.Permissions
	}
	role.UpdatedAt = time.Now().UTC()

	if err := s.validateRole(role); err != nil {
		s.mutation("update", "invalid")
		return nil, err
	}

	if err := s.saveRole(ctx, role); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"role_id":   roleID,
		}).Error("failed to update role")
		s.mutation("update", "error")
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	s.invalidateTenant(tenantID)
	s.mutation("update", "ok")
	return role, nil
}

// DeleteRole removes a custom role and, best effort, every assignment
// of it. Assignment removals that fail are logged and left for the
// reconciler; readers tolerate the dangling IDs in the meantime.
// Returns false when the role does not exist, is a system role, or the
// role record itself could not be deleted.
func (s *Service) DeleteRole(ctx context.Context, tenantID, roleID string) bool {
	role := s.loadRole(ctx, tenantID, roleID)
	if role == nil {
		s.mutation("delete", "not_found")
		return false
	}
	if role.Type == RoleTypeSystem {
		s.logger.WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"role_id":   roleID,
		}).Warn("refusing to delete system role")
		s.mutation("delete", "refused")
		return false
	}

	users, err := s.store.SMembers(ctx, tenantUsersKey(tenantID))
	if err != nil {
		s.logger.WithError(err).WithField("tenant_id", tenantID).
			Warn("failed to enumerate tenant users during role delete")
		users = nil
	}
	for _, userID := range users {
		if err := s.store.SRem(ctx, userRolesKey(userID, tenantID), roleID); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"tenant_id": tenantID,
				"role_id":   roleID,
				"user_id":   userID,
			}).Warn("failed to unassign role during delete")
		}
	}

	if err := s.store.Del(ctx, roleKey(tenantID, roleID)); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"role_id":   roleID,
		}).Error("failed to delete role record")
		s.mutation("delete", "error")
		return false
	}

	s.invalidateTenant(tenantID)
	s.mutation("delete", "ok")
	return true
}

// AssignRoleToUser adds roleID to the user's role set in the tenant.
// The role must exist. Returns false on a missing role or store error.
func (s *Service) AssignRoleToUser(ctx context.Context, userID, tenantID, roleID string) bool {
	role := s.loadRole(ctx, tenantID, roleID)
	if role == nil {
		s.logger.WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"role_id":   roleID,
			"user_id":   userID,
		}).Warn("cannot assign nonexistent role")
		return false
	}

	if err := s.store.SAdd(ctx, userRolesKey(userID, tenantID), roleID); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"role_id":   roleID,
			"user_id":   userID,
		}).Error("failed to assign role")
		return false
	}
	if err := s.store.SAdd(ctx, tenantUsersKey(tenantID), userID); err != nil {
		// The assignment itself succeeded; the membership index is
		// advisory and the reconciler cannot repair it, so just log.
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"user_id":   userID,
		}).Warn("failed to record tenant membership")
	}

	s.adjustUserCount(ctx, role, 1)
	s.invalidateUser(userID, tenantID)
	return true
}

// RemoveRoleFromUser removes roleID from the user's role set in the
// tenant. Removing an assignment that does not exist still succeeds.
func (s *Service) RemoveRoleFromUser(ctx context.Context, userID, tenantID, roleID string) bool {
	if err := s.store.SRem(ctx, userRolesKey(userID, tenantID), roleID); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"role_id":   roleID,
			"user_id":   userID,
		}).Error("failed to remove role assignment")
		return false
	}

	if role := s.loadRole(ctx, tenantID, roleID); role != nil {
		s.adjustUserCount(ctx, role, -1)
	}
	s.invalidateUser(userID, tenantID)
	return true
}

// GetUserRoles returns the user's roles in the tenant. Role IDs whose
// record no longer exists (a delete cascade that did not finish) are
// silently skipped.
func (s *Service) GetUserRoles(ctx context.Context, userID, tenantID string) []Role {
	roleIDs, err := s.store.SMembers(ctx, userRolesKey(userID, tenantID))
	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"user_id":   userID,
		}).Error("failed to read user role set")
		return []Role{}
	}

	roles := make([]Role, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		role := s.loadRole(ctx, tenantID, roleID)
		if role == nil {
			continue
		}
		roles = append(roles, *role)
	}
	return roles
}

// GetUsersWithRole returns the IDs of every user in the tenant holding
// roleID.
func (s *Service) GetUsersWithRole(ctx context.Context, tenantID, roleID string) []string {
	users, err := s.store.SMembers(ctx, tenantUsersKey(tenantID))
	if err != nil {
		s.logger.WithError(err).WithField("tenant_id", tenantID).
			Error("failed to enumerate tenant users")
		return []string{}
	}

	holders := make([]string, 0, len(users))
	for _, userID := range users {
		ok, err := s.store.SIsMember(ctx, userRolesKey(userID, tenantID), roleID)
		if err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"tenant_id": tenantID,
				"user_id":   userID,
			}).Warn("failed to check role membership")
			continue
		}
		if ok {
			holders = append(holders, userID)
		}
	}
	return holders
}

// HasPermission answers whether the user may perform permission on the
// described resource within the tenant. Any failure along the way
// denies.
func (s *Service) HasPermission(ctx context.Context, userID, tenantID string, resourceType ResourceType, permission Permission, resourceID, siteID string) bool {
	start := time.Now()
	cacheKey := decisionKey(userID, tenantID, resourceType, permission, resourceID, siteID)

	if s.cache != nil {
		if decision, ok := s.cache.Get(cacheKey); ok {
			s.cacheHit()
			s.recordCheck(resourceType, permission, decision, start)
			return decision
		}
		s.cacheMiss()
	}

	roles := s.GetUserRoles(ctx, userID, tenantID)
	acl := EffectiveACL(userID, roles)
	decision := HasPermission(acl, resourceType, permission, tenantID, resourceID, siteID)

	if s.cache != nil {
		s.cache.Add(cacheKey, decision)
	}
	s.recordCheck(resourceType, permission, decision, start)
	return decision
}

// HasGlobalRole reports whether the user holds a global role in any
// tenant. Errors deny: a platform-operator bypass must never open up
// because the store hiccuped.
func (s *Service) HasGlobalRole(ctx context.Context, userID string) bool {
	keys, err := s.store.ScanKeys(ctx, userRolesScanPattern(userID))
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).
			Error("failed to scan user role sets")
		return false
	}

	for _, key := range keys {
		tenantID, ok := tenantFromUserRolesKey(key, userID)
		if !ok {
			continue
		}
		for _, role := range s.GetUserRoles(ctx, userID, tenantID) {
			if role.IsGlobal {
				return true
			}
		}
	}
	return false
}

// EffectiveACL flattens roles into a single ACL. Entries of a
// site-scoped role that carry no narrower scope of their own inherit
// the role's SiteID.
func EffectiveACL(userID string, roles []Role) ACL {
	acl := ACL{UserID: userID}
	for _, role := range roles {
		for _, entry := range role.Permissions {
			if role.Scope == RoleScopeSite && role.SiteID != "" &&
				entry.Resource.ID == "" && entry.Resource.SiteID == "" {
				entry.Resource.SiteID = role.SiteID
			}
			acl.Entries = append(acl.Entries, entry)
		}
	}
	return acl
}

func (s *Service) validateRole(role *Role) error {
	if role.TenantID == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidRole)
	}
	if strings.TrimSpace(role.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRole)
	}
	if role.Type == "" {
		role.Type = RoleTypeCustom
	}
	if role.Type != RoleTypeSystem && role.Type != RoleTypeCustom {
		return fmt.Errorf("%w: unknown role type %q", ErrInvalidRole, role.Type)
	}
	if role.Scope == "" {
		role.Scope = RoleScopeTenant
	}
	if role.Scope != RoleScopeTenant && role.Scope != RoleScopeSite {
		return fmt.Errorf("%w: unknown role scope %q", ErrInvalidRole, role.Scope)
	}
	if role.Scope == RoleScopeSite && role.SiteID == "" {
		return fmt.Errorf("%w: site-scoped role needs a site id", ErrInvalidRole)
	}

	for _, entry := range role.Permissions {
		if !entry.Resource.Type.Valid() {
			return fmt.Errorf("%w: unknown resource type %q", ErrInvalidRole, entry.Resource.Type)
		}
		if !entry.Permission.Valid() {
			return fmt.Errorf("%w: unknown permission %q", ErrInvalidRole, entry.Permission)
		}
		if entry.Resource.TenantID != role.TenantID {
			return fmt.Errorf("%w: entry tenant %q does not match role tenant %q",
				ErrInvalidRole, entry.Resource.TenantID, role.TenantID)
		}
	}
	return nil
}

func (s *Service) loadRole(ctx context.Context, tenantID, roleID string) *Role {
	raw, err := s.store.Get(ctx, roleKey(tenantID, roleID))
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"tenant_id": tenantID,
				"role_id":   roleID,
			}).Error("failed to read role")
		}
		return nil
	}

	var role Role
	if err := json.Unmarshal([]byte(raw), &role); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"role_id":   roleID,
		}).Error("corrupt role record")
		return nil
	}
	return &role
}

func (s *Service) saveRole(ctx context.Context, role *Role) error {
	data, err := json.Marshal(role)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, roleKey(role.TenantID, role.ID), string(data))
}

// adjustUserCount rewrites the stored role with its holder count moved
// by delta. Best effort: concurrent assignments may race and skew the
// count, it is display metadata, not an authorization input.
func (s *Service) adjustUserCount(ctx context.Context, role *Role, delta int) {
	role.UserCount += delta
	if role.UserCount < 0 {
		role.UserCount = 0
	}
	if err := s.saveRole(ctx, role); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"tenant_id": role.TenantID,
			"role_id":   role.ID,
		}).Warn("failed to update role user count")
	}
}

func decisionKey(userID, tenantID string, resourceType ResourceType, permission Permission, resourceID, siteID string) string {
	return userID + "|" + tenantID + "|" + string(resourceType) + "|" +
		string(permission) + "|" + resourceID + "|" + siteID
}

// invalidateUser drops cached decisions for one user in one tenant.
func (s *Service) invalidateUser(userID, tenantID string) {
	if s.cache == nil {
		return
	}
	prefix := userID + "|" + tenantID + "|"
	for _, key := range s.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Remove(key)
		}
	}
}

// invalidateTenant drops cached decisions for every user in a tenant.
// Role definitions changed, so any holder's answers may have changed.
func (s *Service) invalidateTenant(tenantID string) {
	if s.cache == nil {
		return
	}
	marker := "|" + tenantID + "|"
	for _, key := range s.cache.Keys() {
		if strings.Contains(key, marker) {
			s.cache.Remove(key)
		}
	}
}

func (s *Service) mutation(operation, status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RoleMutationsTotal.WithLabelValues(operation, status).Inc()
}

func (s *Service) recordCheck(resourceType ResourceType, permission Permission, decision bool, start time.Time) {
	if s.metrics == nil {
		return
	}
	verdict := "denied"
	if decision {
		verdict = "granted"
	}
	s.metrics.PermissionChecksTotal.
		WithLabelValues(string(resourceType), string(permission), verdict).Inc()
	s.metrics.PermissionCheckDuration.
		WithLabelValues(string(resourceType)).Observe(time.Since(start).Seconds())
}

func (s *Service) cacheHit() {
	if s.metrics == nil {
		return
	}
	s.metrics.CacheHitsTotal.WithLabelValues("decision").Inc()
}

func (s *Service) cacheMiss() {
	if s.metrics == nil {
		return
	}
	s.metrics.CacheMissesTotal.WithLabelValues("decision").Inc()
}
