package rbac

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"dirhub/pkg/audit"
	"dirhub/pkg/middleware"
	"dirhub/pkg/observability"
)

// Handlers exposes role management over HTTP.
type Handlers struct {
	service *Service
	audit   audit.Logger
	logger  *observability.Logger
}

func NewHandlers(service *Service, auditLog audit.Logger, logger *observability.Logger) *Handlers {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Handlers{service: service, audit: auditLog, logger: logger}
}

// RegisterRoutes mounts the role management API. Every tenant route is
// gated on tenant access plus the permission for its verb; manage on
// the same resource type also satisfies any verb.
func (h *Handlers) RegisterRoutes(router *mux.Router, mw *Middleware) {
	guard := func(handler http.HandlerFunc, resourceType ResourceType, permission Permission) http.Handler {
		return mw.RequireTenantAccess()(mw.RequirePermission(resourceType, permission)(handler))
	}

	router.Handle("/tenants/{tenant_id}/roles",
		guard(h.CreateRole, ResourceRole, PermissionCreate)).Methods(http.MethodPost)
	router.Handle("/tenants/{tenant_id}/roles",
		guard(h.ListRoles, ResourceRole, PermissionRead)).Methods(http.MethodGet)
	router.Handle("/tenants/{tenant_id}/roles/{role_id}",
		guard(h.GetRole, ResourceRole, PermissionRead)).Methods(http.MethodGet)
	router.Handle("/tenants/{tenant_id}/roles/{role_id}",
		guard(h.UpdateRole, ResourceRole, PermissionUpdate)).Methods(http.MethodPut)
	router.Handle("/tenants/{tenant_id}/roles/{role_id}",
		guard(h.DeleteRole, ResourceRole, PermissionDelete)).Methods(http.MethodDelete)
	router.Handle("/tenants/{tenant_id}/roles/{role_id}/users",
		guard(h.ListRoleUsers, ResourceRole, PermissionRead)).Methods(http.MethodGet)

	router.Handle("/tenants/{tenant_id}/users/{user_id}/roles",
		guard(h.AssignRole, ResourceUser, PermissionUpdate)).Methods(http.MethodPost)
	router.Handle("/tenants/{tenant_id}/users/{user_id}/roles",
		guard(h.ListUserRoles, ResourceUser, PermissionRead)).Methods(http.MethodGet)
	router.Handle("/tenants/{tenant_id}/users/{user_id}/roles/{role_id}",
		guard(h.RemoveRole, ResourceUser, PermissionUpdate)).Methods(http.MethodDelete)

	router.Handle("/tenants/{tenant_id}/permissions/check",
		mw.RequireTenantAccess()(http.HandlerFunc(h.CheckPermission))).Methods(http.MethodPost)

	router.Handle("/tenants/{tenant_id}/audit",
		guard(h.ListAuditEvents, ResourceAudit, PermissionRead)).Methods(http.MethodGet)

	router.HandleFunc("/templates", h.ListTemplates).Methods(http.MethodGet)
}

type createRoleRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Scope       RoleScope  `json:"scope"`
	SiteID      string     `json:"site_id"`
	Permissions []ACLEntry `json:"permissions"`

	// Template, when set, seeds Permissions from a predefined
	// template instead of the request body.
	Template string `json:"template,omitempty"`
}

// CreateRole creates a custom role in the tenant.
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	var req createRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role := Role{
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Type:        RoleTypeCustom,
		Scope:       req.Scope,
		SiteID:      req.SiteID,
		Permissions: req.Permissions,
	}

	if req.Template != "" {
		tpl, ok := findTemplate(req.Template)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown role template")
			return
		}
		role.Scope = tpl.Scope
		role.Permissions = tpl.Build(tenantID, req.SiteID)
		if role.Description == "" {
			role.Description = tpl.Description
		}
	}

	created, err := h.service.CreateRole(r.Context(), role)
	if err != nil {
		if errors.Is(err, ErrInvalidRole) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create role")
		return
	}

	h.logEvent(r, audit.EventRoleCreated, tenantID, created.ID, map[string]string{
		"name": created.Name,
	})
	writeJSON(w, http.StatusCreated, created)
}

// ListRoles lists the tenant's roles.
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]
	roles := h.service.GetRolesByTenant(r.Context(), tenantID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

// GetRole returns a single role.
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	role := h.service.GetRole(r.Context(), vars["tenant_id"], vars["role_id"])
	if role == nil {
		writeError(w, http.StatusNotFound, "role not found")
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// UpdateRole applies a partial update to a custom role.
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID, roleID := vars["tenant_id"], vars["role_id"]

	var updates RoleUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, err := h.service.UpdateRole(r.Context(), tenantID, roleID, updates)
	if err != nil {
		switch {
		case errors.Is(err, ErrSystemRoleImmutable):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, ErrInvalidRole):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to update role")
		}
		return
	}
	if role == nil {
		writeError(w, http.StatusNotFound, "role not found")
		return
	}

	h.logEvent(r, audit.EventRoleUpdated, tenantID, roleID, nil)
	writeJSON(w, http.StatusOK, role)
}

// DeleteRole removes a custom role and its assignments.
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID, roleID := vars["tenant_id"], vars["role_id"]

	role := h.service.GetRole(r.Context(), tenantID, roleID)
	if role == nil {
		writeError(w, http.StatusNotFound, "role not found")
		return
	}
	if role.Type == RoleTypeSystem {
		writeError(w, http.StatusForbidden, "system roles cannot be deleted")
		return
	}

	if !h.service.DeleteRole(r.Context(), tenantID, roleID) {
		writeError(w, http.StatusInternalServerError, "failed to delete role")
		return
	}

	h.logEvent(r, audit.EventRoleDeleted, tenantID, roleID, map[string]string{
		"name": role.Name,
	})
	w.WriteHeader(http.StatusNoContent)
}

// ListRoleUsers returns the user IDs holding a role.
func (h *Handlers) ListRoleUsers(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID, roleID := vars["tenant_id"], vars["role_id"]

	if h.service.GetRole(r.Context(), tenantID, roleID) == nil {
		writeError(w, http.StatusNotFound, "role not found")
		return
	}

	users := h.service.GetUsersWithRole(r.Context(), tenantID, roleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_ids": users})
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

// AssignRole assigns a role to a user within the tenant.
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID, userID := vars["tenant_id"], vars["user_id"]

	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoleID == "" {
		writeError(w, http.StatusBadRequest, "role_id is required")
		return
	}

	if !h.service.AssignRoleToUser(r.Context(), userID, tenantID, req.RoleID) {
		writeError(w, http.StatusNotFound, "role not found")
		return
	}

	h.logEvent(r, audit.EventRoleAssigned, tenantID, userID, map[string]string{
		"role_id": req.RoleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// RemoveRole removes a role assignment from a user.
func (h *Handlers) RemoveRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID, userID, roleID := vars["tenant_id"], vars["user_id"], vars["role_id"]

	if !h.service.RemoveRoleFromUser(r.Context(), userID, tenantID, roleID) {
		writeError(w, http.StatusInternalServerError, "failed to remove role")
		return
	}

	h.logEvent(r, audit.EventRoleRemoved, tenantID, userID, map[string]string{
		"role_id": roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// ListUserRoles returns a user's roles in the tenant.
func (h *Handlers) ListUserRoles(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roles := h.service.GetUserRoles(r.Context(), vars["user_id"], vars["tenant_id"])
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

type checkPermissionRequest struct {
	UserID       string       `json:"user_id,omitempty"`
	ResourceType ResourceType `json:"resource_type"`
	Permission   Permission   `json:"permission"`
	ResourceID   string       `json:"resource_id,omitempty"`
	SiteID       string       `json:"site_id,omitempty"`
}

// CheckPermission answers a permission question. Callers may always
// ask about themselves; asking about another user requires read on the
// user resource.
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req checkPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.ResourceType.Valid() || !req.Permission.Valid() {
		writeError(w, http.StatusBadRequest, "unknown resource type or permission")
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = authCtx.UserID
	}
	if userID != authCtx.UserID {
		ctx := r.Context()
		canInspect := h.service.HasPermission(ctx, authCtx.UserID, tenantID, ResourceUser, PermissionRead, "", "") ||
			h.service.HasPermission(ctx, authCtx.UserID, tenantID, ResourceUser, PermissionManage, "", "")
		if !canInspect {
			writeError(w, http.StatusForbidden, "cannot inspect other users")
			return
		}
	}

	allowed := h.service.HasPermission(r.Context(), userID, tenantID,
		req.ResourceType, req.Permission, req.ResourceID, req.SiteID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"allowed": allowed})
}

// ListAuditEvents returns the tenant's recent audit trail.
func (h *Handlers) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	events, err := h.audit.Recent(r.Context(), tenantID, limit)
	if err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenantID).
			Error("failed to read audit trail")
		writeError(w, http.StatusInternalServerError, "failed to read audit trail")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// ListTemplates returns the predefined role templates.
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": Templates()})
}

func findTemplate(name string) (RoleTemplate, bool) {
	for _, tpl := range Templates() {
		if tpl.Name == name {
			return tpl, true
		}
	}
	return RoleTemplate{}, false
}

func (h *Handlers) logEvent(r *http.Request, eventType audit.EventType, tenantID, targetID string, details map[string]string) {
	actorID := ""
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		actorID = authCtx.UserID
	}
	event := &audit.Event{
		TenantID: tenantID,
		Type:     eventType,
		ActorID:  actorID,
		TargetID: targetID,
		Details:  details,
	}
	if err := h.audit.Log(r.Context(), event); err != nil {
		h.logger.WithError(err).WithField("tenant_id", tenantID).
			Warn("failed to record audit event")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
