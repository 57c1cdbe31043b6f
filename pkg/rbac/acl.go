package rbac

// HasPermission evaluates acl against a single (type, permission,
// tenant, resource, site) question.
//
// An entry matches only when its type, permission and tenant all equal
// the question's exactly. A matching entry then grants according to its
// scope, most specific wins per entry:
//
//   - entry has a resource ID: grants only when resourceID equals it.
//     The entry's SiteID is ignored in that case.
//   - entry has a site ID (no resource ID): grants only when siteID
//     equals it, whatever resourceID is.
//   - entry has neither: grants tenant-wide.
//
// Permissions are compared exactly. Manage does not imply the CRUD
// verbs here; route-level callers check the verb and then manage as a
// second question.
func HasPermission(acl ACL, resourceType ResourceType, permission Permission, tenantID, resourceID, siteID string) bool {
	for _, e := range acl.Entries {
		if e.Resource.Type != resourceType {
			continue
		}
		if e.Permission != permission {
			continue
		}
		if e.Resource.TenantID != tenantID {
			continue
		}

		switch {
		case e.Resource.ID != "":
			if e.Resource.ID == resourceID {
				return true
			}
		case e.Resource.SiteID != "":
			if e.Resource.SiteID == siteID {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// GrantPermission returns a copy of acl with the given entry added.
// The input is never modified. Granting an entry that already exists
// (same type, permission, tenant, resource ID and site ID) returns the
// ACL unchanged, so the operation is idempotent.
func GrantPermission(acl ACL, resourceType ResourceType, permission Permission, tenantID, resourceID, siteID string) ACL {
	entry := ACLEntry{
		Resource: Resource{
			Type:     resourceType,
			TenantID: tenantID,
			ID:       resourceID,
			SiteID:   siteID,
		},
		Permission: permission,
	}

	for _, e := range acl.Entries {
		if e == entry {
			return acl
		}
	}

	entries := make([]ACLEntry, len(acl.Entries), len(acl.Entries)+1)
	copy(entries, acl.Entries)
	entries = append(entries, entry)

	return ACL{UserID: acl.UserID, Entries: entries}
}

// RevokePermission returns a copy of acl with every entry matching the
// full tuple removed. The input is never modified. Revoking an entry
// that is not present returns an equivalent ACL.
func RevokePermission(acl ACL, resourceType ResourceType, permission Permission, tenantID, resourceID, siteID string) ACL {
	target := ACLEntry{
		Resource: Resource{
			Type:     resourceType,
			TenantID: tenantID,
			ID:       resourceID,
			SiteID:   siteID,
		},
		Permission: permission,
	}

	entries := make([]ACLEntry, 0, len(acl.Entries))
	for _, e := range acl.Entries {
		if e == target {
			continue
		}
		entries = append(entries, e)
	}

	return ACL{UserID: acl.UserID, Entries: entries}
}
