package rbac

import "testing"

func TestResourceType_Valid(t *testing.T) {
	for _, rt := range allResourceTypes {
		if !rt.Valid() {
			t.Errorf("Expected %q to be valid", rt)
		}
	}
	for _, rt := range []ResourceType{"", "widget", "User", "LISTING"} {
		if rt.Valid() {
			t.Errorf("Expected %q to be invalid", rt)
		}
	}
}

func TestPermission_Valid(t *testing.T) {
	valid := []Permission{
		PermissionCreate, PermissionRead, PermissionUpdate,
		PermissionDelete, PermissionManage,
	}
	for _, p := range valid {
		if !p.Valid() {
			t.Errorf("Expected %q to be valid", p)
		}
	}
	for _, p := range []Permission{"", "admin", "Read", "write"} {
		if p.Valid() {
			t.Errorf("Expected %q to be invalid", p)
		}
	}
}
