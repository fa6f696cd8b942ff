package rbac

import (
	"fmt"
	"slices"

	"ezmail/internal/apperr"
)

// 权限常量
const (
	PermissionFetchMail    = "mail:fetch"
	PermissionConnectMail  = "mail:connect"
	PermissionSearch       = "email:search"
	PermissionSnooze       = "email:snooze"
	PermissionReplayOutbox = "outbox:replay"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var userPermissions = []string{
	PermissionFetchMail,
	PermissionConnectMail,
	PermissionSearch,
	PermissionSnooze,
}

// 角色权限映射，admin 额外可以重放 outbox
var rolePermissions = map[string][]string{
	RoleUser:  userPermissions,
	RoleAdmin: append(slices.Clone(userPermissions), PermissionReplayOutbox),
}

// NormalizeRole 旧 token 没有 role，按 user 处理
func NormalizeRole(role string) string {
	if role == "" {
		return RoleUser
	}
	return role
}

func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[NormalizeRole(role)]
	if !ok {
		return false
	}
	return slices.Contains(permissions, permission)
}

// CheckPermission returns an error matching apperr.ErrPermission when the role lacks permission.
func CheckPermission(role, permission string) error {
	if !HasPermission(role, permission) {
		return fmt.Errorf("role %q lacks %s: %w", NormalizeRole(role), permission, apperr.ErrPermission)
	}
	return nil
}
