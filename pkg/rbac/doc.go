// Package rbac implements tenant-scoped role-based access control.
//
// The package has two layers. The bottom layer is a pure permission
// model: ACLs, an evaluator (HasPermission) and immutable mutators
// (GrantPermission, RevokePermission) that never touch storage. The top
// layer is Service, which persists roles and user-role assignments in a
// key-value store and answers permission questions by flattening a
// user's roles into an effective ACL.
//
// Every object and every key is scoped to a tenant. No operation ever
// reads or writes across tenant boundaries; the only deliberate
// exception is HasGlobalRole, which scans a user's assignments in all
// tenants looking for a role flagged global.
package rbac
