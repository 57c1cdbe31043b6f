package rbac

import "testing"

func entry(rt ResourceType, p Permission, tenantID, id, siteID string) ACLEntry {
	return ACLEntry{
		Resource: Resource{
			Type:     rt,
			TenantID: tenantID,
			ID:       id,
			SiteID:   siteID,
		},
		Permission: p,
	}
}

func TestHasPermission_TenantIsolation(t *testing.T) {
	acl := ACL{
		UserID: "u1",
		Entries: []ACLEntry{
			entry(ResourceListing, PermissionRead, "tenant-a", "", ""),
		},
	}

	if !HasPermission(acl, ResourceListing, PermissionRead, "tenant-a", "", "") {
		t.Error("Expected grant within owning tenant")
	}
	if HasPermission(acl, ResourceListing, PermissionRead, "tenant-b", "", "") {
		t.Error("Tenant-wide grant must never leak into another tenant")
	}
	if HasPermission(acl, ResourceListing, PermissionRead, "tenant-b", "l1", "s1") {
		t.Error("No scope combination may cross tenants")
	}
}

func TestHasPermission_ExactPermissionMatch(t *testing.T) {
	acl := ACL{
		UserID: "u1",
		Entries: []ACLEntry{
			entry(ResourceListing, PermissionManage, "t1", "", ""),
		},
	}

	// Manage is its own verb; the evaluator never expands it.
	for _, p := range []Permission{PermissionCreate, PermissionRead, PermissionUpdate, PermissionDelete} {
		if HasPermission(acl, ResourceListing, p, "t1", "", "") {
			t.Errorf("Manage entry must not satisfy %q", p)
		}
	}
	if !HasPermission(acl, ResourceListing, PermissionManage, "t1", "", "") {
		t.Error("Manage entry must satisfy a manage question")
	}
}

func TestHasPermission_ResourceTypeMismatch(t *testing.T) {
	acl := ACL{
		UserID: "u1",
		Entries: []ACLEntry{
			entry(ResourceListing, PermissionRead, "t1", "", ""),
		},
	}

	if HasPermission(acl, ResourceCategory, PermissionRead, "t1", "", "") {
		t.Error("Entry for one resource type must not grant another")
	}
}

func TestHasPermission_ResourceSpecificEntry(t *testing.T) {
	acl := ACL{
		UserID: "u1",
		Entries: []ACLEntry{
			entry(ResourceListing, PermissionUpdate, "t1", "l1", ""),
		},
	}

	if !HasPermission(acl, ResourceListing, PermissionUpdate, "t1", "l1", "") {
		t.Error("Expected grant on the named resource")
	}
	if HasPermission(acl, ResourceListing, PermissionUpdate, "t1", "l2", "") {
		t.Error("Resource-specific entry must not grant another resource")
	}
	if HasPermission(acl, ResourceListing, PermissionUpdate, "t1", "", "") {
		t.Error("Resource-specific entry must not grant a scopeless question")
	}
}

func TestHasPermission_EntryIDTrumpsSiteID(t *testing.T) {
	// An entry carrying both an ID and a site ID is evaluated by ID
	// alone; the site ID is dead weight.
	acl := ACL{
		UserID: "u1",
		Entries: []ACLEntry{
			entry(ResourceListing, PermissionRead, "t1", "l1", "s1"),
		},
	}

	if !HasPermission(acl, ResourceListing, PermissionRead, "t1", "l1", "other-site") {
		t.Error("ID match must grant regardless of the question's site")
	}
	if HasPermission(acl, ResourceListing, PermissionRead, "t1", "l2", "s1") {
		t.Error("Site ID on an ID-scoped entry must not widen it")
	}
}

func TestHasPermission_SiteWideEntry(t *testing.T) {
	acl := ACL{
		UserID: "u1",
		Entries: []ACLEntry{
			entry(ResourceListing, PermissionRead, "t1", "", "s1"),
		},
	}

	if !HasPermission(acl, ResourceListing, PermissionRead, "t1", "", "s1") {
		t.Error("Expected grant within the site")
	}
	if !HasPermission(acl, ResourceListing, PermissionRead, "t1", "any-listing", "s1") {
		t.Error("Site-wide entry grants any resource in the site")
	}
	if HasPermission(acl, ResourceListing, PermissionRead, "t1", "", "s2") {
		t.Error("Site-wide entry must not grant another site")
	}
	if HasPermission(acl, ResourceListing, PermissionRead, "t1", "", "") {
		t.Error("Site-wide entry must not grant a siteless question")
	}
}

func TestHasPermission_TenantWideEntry(t *testing.T) {
	acl := ACL{
		UserID: "u1",
		Entries: []ACLEntry{
			entry(ResourceListing, PermissionRead, "t1", "", ""),
		},
	}

	if !HasPermission(acl, ResourceListing, PermissionRead, "t1", "", "") {
		t.Error("Expected tenant-wide grant")
	}
	if !HasPermission(acl, ResourceListing, PermissionRead, "t1", "l1", "") {
		t.Error("Tenant-wide entry grants any resource")
	}
	if !HasPermission(acl, ResourceListing, PermissionRead, "t1", "l1", "s1") {
		t.Error("Tenant-wide entry grants in any site")
	}
}

func TestHasPermission_EmptyACL(t *testing.T) {
	if HasPermission(ACL{UserID: "u1"}, ResourceListing, PermissionRead, "t1", "", "") {
		t.Error("Empty ACL must deny everything")
	}
}

func TestHasPermission_FirstMatchWins(t *testing.T) {
	// Multiple entries can answer the same question; any one match
	// grants.
	acl := ACL{
		UserID: "u1",
		Entries: []ACLEntry{
			entry(ResourceListing, PermissionRead, "t1", "other", ""),
			entry(ResourceListing, PermissionRead, "t1", "", "s1"),
		},
	}

	if !HasPermission(acl, ResourceListing, PermissionRead, "t1", "l1", "s1") {
		t.Error("Later entry should still grant after earlier non-matches")
	}
}

func TestGrantPermission_DoesNotMutateInput(t *testing.T) {
	original := ACL{
		UserID: "u1",
		Entries: []ACLEntry{
			entry(ResourceListing, PermissionRead, "t1", "", ""),
		},
	}

	updated := GrantPermission(original, ResourceCategory, PermissionRead, "t1", "", "")

	if len(original.Entries) != 1 {
		t.Fatalf("Input ACL was mutated, now has %d entries", len(original.Entries))
	}
	if len(updated.Entries) != 2 {
		t.Fatalf("Expected 2 entries in result, got %d", len(updated.Entries))
	}
	if HasPermission(original, ResourceCategory, PermissionRead, "t1", "", "") {
		t.Error("Original ACL gained the new grant")
	}
	if !HasPermission(updated, ResourceCategory, PermissionRead, "t1", "", "") {
		t.Error("Result ACL is missing the new grant")
	}
}

func TestGrantPermission_Idempotent(t *testing.T) {
	acl := ACL{UserID: "u1"}
	acl = GrantPermission(acl, ResourceListing, PermissionRead, "t1", "", "s1")
	acl = GrantPermission(acl, ResourceListing, PermissionRead, "t1", "", "s1")

	if len(acl.Entries) != 1 {
		t.Errorf("Expected duplicate grant to be a no-op, got %d entries", len(acl.Entries))
	}
}

func TestGrantPermission_DifferentScopesAreDistinct(t *testing.T) {
	acl := ACL{UserID: "u1"}
	acl = GrantPermission(acl, ResourceListing, PermissionRead, "t1", "", "")
	acl = GrantPermission(acl, ResourceListing, PermissionRead, "t1", "", "s1")
	acl = GrantPermission(acl, ResourceListing, PermissionRead, "t1", "l1", "")

	if len(acl.Entries) != 3 {
		t.Errorf("Expected 3 distinct entries, got %d", len(acl.Entries))
	}
}

func TestRevokePermission_RemovesExactTuple(t *testing.T) {
	acl := ACL{UserID: "u1"}
	acl = GrantPermission(acl, ResourceListing, PermissionRead, "t1", "", "s1")
	acl = GrantPermission(acl, ResourceListing, PermissionRead, "t1", "", "s2")

	revoked := RevokePermission(acl, ResourceListing, PermissionRead, "t1", "", "s1")

	if len(acl.Entries) != 2 {
		t.Fatal("Input ACL was mutated by revoke")
	}
	if HasPermission(revoked, ResourceListing, PermissionRead, "t1", "", "s1") {
		t.Error("Revoked scope still grants")
	}
	if !HasPermission(revoked, ResourceListing, PermissionRead, "t1", "", "s2") {
		t.Error("Unrelated scope was removed")
	}
}

func TestRevokePermission_AbsentEntryIsNoOp(t *testing.T) {
	acl := ACL{UserID: "u1"}
	acl = GrantPermission(acl, ResourceListing, PermissionRead, "t1", "", "")

	revoked := RevokePermission(acl, ResourceCategory, PermissionDelete, "t1", "", "")

	if len(revoked.Entries) != 1 {
		t.Errorf("Expected revoke of absent entry to keep 1 entry, got %d", len(revoked.Entries))
	}
}

func TestGrantRevoke_RoundTrip(t *testing.T) {
	acl := ACL{UserID: "u1"}
	acl = GrantPermission(acl, ResourceContent, PermissionUpdate, "t1", "c1", "")
	acl = RevokePermission(acl, ResourceContent, PermissionUpdate, "t1", "c1", "")

	if HasPermission(acl, ResourceContent, PermissionUpdate, "t1", "c1", "") {
		t.Error("Grant followed by revoke must deny")
	}
	if len(acl.Entries) != 0 {
		t.Errorf("Expected empty entries after round trip, got %d", len(acl.Entries))
	}
}

func TestEffectiveACL_SiteRoleInheritsSiteID(t *testing.T) {
	roles := []Role{
		{
			ID:       "r1",
			TenantID: "t1",
			Scope:    RoleScopeSite,
			SiteID:   "s1",
			Permissions: []ACLEntry{
				// Scopeless entry inherits the role's site.
				entry(ResourceListing, PermissionUpdate, "t1", "", ""),
				// Entry with its own narrower scope keeps it.
				entry(ResourceContent, PermissionUpdate, "t1", "c1", ""),
			},
		},
	}

	acl := EffectiveACL("u1", roles)

	if !HasPermission(acl, ResourceListing, PermissionUpdate, "t1", "", "s1") {
		t.Error("Scopeless entry should be bound to the role's site")
	}
	if HasPermission(acl, ResourceListing, PermissionUpdate, "t1", "", "") {
		t.Error("Site role must not grant tenant-wide")
	}
	if HasPermission(acl, ResourceListing, PermissionUpdate, "t1", "", "s2") {
		t.Error("Site role must not grant in another site")
	}
	if !HasPermission(acl, ResourceContent, PermissionUpdate, "t1", "c1", "other") {
		t.Error("Resource-specific entry should be left untouched")
	}
}

func TestEffectiveACL_TenantRoleUnchanged(t *testing.T) {
	roles := []Role{
		{
			ID:       "r1",
			TenantID: "t1",
			Scope:    RoleScopeTenant,
			Permissions: []ACLEntry{
				entry(ResourceListing, PermissionRead, "t1", "", ""),
			},
		},
	}

	acl := EffectiveACL("u1", roles)
	if !HasPermission(acl, ResourceListing, PermissionRead, "t1", "", "") {
		t.Error("Tenant role entry should stay tenant-wide")
	}
}

func TestEffectiveACL_MergesMultipleRoles(t *testing.T) {
	roles := []Role{
		{
			ID: "viewer", TenantID: "t1", Scope: RoleScopeTenant,
			Permissions: ViewerEntries("t1"),
		},
		{
			ID: "editor", TenantID: "t1", Scope: RoleScopeSite, SiteID: "s1",
			Permissions: ContentEditorEntries("t1", "s1"),
		},
	}

	acl := EffectiveACL("u1", roles)

	if !HasPermission(acl, ResourceListing, PermissionRead, "t1", "", "") {
		t.Error("Viewer grant missing from merged ACL")
	}
	if !HasPermission(acl, ResourceListing, PermissionUpdate, "t1", "", "s1") {
		t.Error("Editor grant missing from merged ACL")
	}
	if HasPermission(acl, ResourceListing, PermissionUpdate, "t1", "", "s2") {
		t.Error("Editor grant leaked outside its site")
	}
}
