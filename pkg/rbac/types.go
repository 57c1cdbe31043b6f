package rbac

import "time"

// ResourceType identifies the kind of object a permission applies to.
type ResourceType string

const (
	ResourceUser     ResourceType = "user"
	ResourceRole     ResourceType = "role"
	ResourceSite     ResourceType = "site"
	ResourceCategory ResourceType = "category"
	ResourceListing  ResourceType = "listing"
	ResourceContent  ResourceType = "content"
	ResourceSetting  ResourceType = "setting"
	ResourceTenant   ResourceType = "tenant"
	ResourceAudit    ResourceType = "audit"
)

// Valid reports whether rt is one of the known resource types.
func (rt ResourceType) Valid() bool {
	switch rt {
	case ResourceUser, ResourceRole, ResourceSite, ResourceCategory,
		ResourceListing, ResourceContent, ResourceSetting,
		ResourceTenant, ResourceAudit:
		return true
	}
	return false
}

// Permission is a single action verb. Manage is its own verb and is
// never implied by the evaluator; callers that want "manage covers
// everything" semantics must check it explicitly.
type Permission string

const (
	PermissionCreate Permission = "create"
	PermissionRead   Permission = "read"
	PermissionUpdate Permission = "update"
	PermissionDelete Permission = "delete"
	PermissionManage Permission = "manage"
)

// Valid reports whether p is one of the known permissions.
func (p Permission) Valid() bool {
	switch p {
	case PermissionCreate, PermissionRead, PermissionUpdate,
		PermissionDelete, PermissionManage:
		return true
	}
	return false
}

// Resource names the target of a permission entry. TenantID is always
// required. ID and SiteID narrow the scope: a set ID grants on exactly
// that object, a set SiteID (with empty ID) grants on everything in
// that site, and both empty grants tenant-wide. Empty string means
// absent.
type Resource struct {
	Type     ResourceType `json:"type"`
	TenantID string       `json:"tenant_id"`
	ID       string       `json:"id,omitempty"`
	SiteID   string       `json:"site_id,omitempty"`
}

// ACLEntry pairs a resource scope with a permission verb.
type ACLEntry struct {
	Resource   Resource   `json:"resource"`
	Permission Permission `json:"permission"`
}

// ACL is a user's flattened permission set.
type ACL struct {
	UserID  string     `json:"user_id"`
	Entries []ACLEntry `json:"entries"`
}

// RoleType distinguishes built-in roles from tenant-created ones.
// System roles cannot be updated or deleted.
type RoleType string

const (
	RoleTypeSystem RoleType = "system"
	RoleTypeCustom RoleType = "custom"
)

// RoleScope says how widely a role's entries apply by default.
type RoleScope string

const (
	RoleScopeTenant RoleScope = "tenant"
	RoleScopeSite   RoleScope = "site"
)

// Role is a named bundle of permission entries inside one tenant.
//
// For site-scoped roles, SiteID names the site the role is bound to;
// entries without a narrower scope of their own inherit it when the
// role is flattened into an effective ACL. IsGlobal marks roles whose
// holders may cross tenant boundaries (platform operators).
type Role struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Type        RoleType   `json:"type"`
	Scope       RoleScope  `json:"scope"`
	SiteID      string     `json:"site_id,omitempty"`
	IsGlobal    bool       `json:"is_global,omitempty"`
	Permissions []ACLEntry `json:"permissions"`
	UserCount   int        `json:"user_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RoleUpdate carries the mutable fields of a role. Nil pointers leave
// the stored value unchanged. ID, TenantID, Type and CreatedAt are
// never updatable.
type RoleUpdate struct {
	Name        *string     `json:"name,omitempty"`
	Description *string     `json:"description,omitempty"`
	Scope       *RoleScope  `json:"scope,omitempty"`
	SiteID      *string     `json:"site_id,omitempty"`
	Permissions *[]ACLEntry `json:"permissions,omitempty"`
}
