package rbac

import "strings"

// Key layout. IDs are UUIDs or slugs and never contain ':', which keeps
// the parse helpers below unambiguous.
//
//	tenant:{tenantID}:role:{roleID}   role JSON
//	user:roles:{userID}:{tenantID}    set of role IDs
//	tenant:users:{tenantID}           set of user IDs ever assigned a role

const (
	userRolesPrefix   = "user:roles:"
	tenantUsersPrefix = "tenant:users:"
)

func roleKey(tenantID, roleID string) string {
	return "tenant:" + tenantID + ":role:" + roleID
}

func roleScanPattern(tenantID string) string {
	return "tenant:" + tenantID + ":role:*"
}

func userRolesKey(userID, tenantID string) string {
	return userRolesPrefix + userID + ":" + tenantID
}

func userRolesScanPattern(userID string) string {
	return userRolesPrefix + userID + ":*"
}

func tenantUsersKey(tenantID string) string {
	return tenantUsersPrefix + tenantID
}

// tenantFromUserRolesKey extracts the tenant ID from a user-roles key
// belonging to userID.
func tenantFromUserRolesKey(key, userID string) (string, bool) {
	rest, ok := strings.CutPrefix(key, userRolesPrefix+userID+":")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// tenantFromUsersKey extracts the tenant ID from a tenant-users key.
func tenantFromUsersKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, tenantUsersPrefix)
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}
