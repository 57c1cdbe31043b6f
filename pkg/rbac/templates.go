package rbac

// RoleTemplate is a predefined permission bundle a tenant can
// instantiate as a role. Build assembles the entries for a concrete
// tenant (and site, for site-scoped templates; siteID is ignored
// otherwise).
type RoleTemplate struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Scope       RoleScope `json:"scope"`
	Build       func(tenantID, siteID string) []ACLEntry `json:"-"`
}

// allResourceTypes lists every resource type, used by the broad
// templates below.
var allResourceTypes = []ResourceType{
	ResourceUser, ResourceRole, ResourceSite, ResourceCategory,
	ResourceListing, ResourceContent, ResourceSetting,
	ResourceTenant, ResourceAudit,
}

// contentResourceTypes are the types a site's editorial staff works
// with day to day.
var contentResourceTypes = []ResourceType{
	ResourceCategory, ResourceListing, ResourceContent,
}

// TenantAdminEntries grants manage over every resource type,
// tenant-wide.
func TenantAdminEntries(tenantID string) []ACLEntry {
	acl := ACL{}
	for _, rt := range allResourceTypes {
		acl = GrantPermission(acl, rt, PermissionManage, tenantID, "", "")
	}
	return acl.Entries
}

// SiteAdminEntries grants manage over a single site and its contents,
// plus read on tenant settings.
func SiteAdminEntries(tenantID, siteID string) []ACLEntry {
	acl := ACL{}
	acl = GrantPermission(acl, ResourceSite, PermissionManage, tenantID, siteID, "")
	for _, rt := range contentResourceTypes {
		acl = GrantPermission(acl, rt, PermissionManage, tenantID, "", siteID)
	}
	acl = GrantPermission(acl, ResourceSetting, PermissionRead, tenantID, "", "")
	return acl.Entries
}

// ContentEditorEntries grants create, read and update (but not delete)
// on editorial content within a single site.
func ContentEditorEntries(tenantID, siteID string) []ACLEntry {
	acl := ACL{}
	for _, rt := range contentResourceTypes {
		acl = GrantPermission(acl, rt, PermissionCreate, tenantID, "", siteID)
		acl = GrantPermission(acl, rt, PermissionRead, tenantID, "", siteID)
		acl = GrantPermission(acl, rt, PermissionUpdate, tenantID, "", siteID)
	}
	return acl.Entries
}

// ViewerEntries grants read over every resource type except audit,
// tenant-wide.
func ViewerEntries(tenantID string) []ACLEntry {
	acl := ACL{}
	for _, rt := range allResourceTypes {
		if rt == ResourceAudit {
			continue
		}
		acl = GrantPermission(acl, rt, PermissionRead, tenantID, "", "")
	}
	return acl.Entries
}

// Templates returns the predefined role templates in display order.
func Templates() []RoleTemplate {
	return []RoleTemplate{
		{
			Name:        "Tenant Admin",
			Description: "Full control over every resource in the tenant",
			Scope:       RoleScopeTenant,
			Build: func(tenantID, _ string) []ACLEntry {
				return TenantAdminEntries(tenantID)
			},
		},
		{
			Name:        "Site Admin",
			Description: "Full control over one site and its contents",
			Scope:       RoleScopeSite,
			Build:       SiteAdminEntries,
		},
		{
			Name:        "Content Editor",
			Description: "Create and edit content within one site",
			Scope:       RoleScopeSite,
			Build:       ContentEditorEntries,
		},
		{
			Name:        "Viewer",
			Description: "Read-only access across the tenant",
			Scope:       RoleScopeTenant,
			Build: func(tenantID, _ string) []ACLEntry {
				return ViewerEntries(tenantID)
			},
		},
	}
}
