package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ezmail/internal/apperr"
)

func TestRolePermissions(t *testing.T) {
	assert.True(t, HasPermission(RoleUser, PermissionSearch))
	assert.True(t, HasPermission("", PermissionSnooze))
	assert.False(t, HasPermission(RoleUser, PermissionReplayOutbox))
	assert.True(t, HasPermission(RoleAdmin, PermissionReplayOutbox))
	assert.True(t, HasPermission(RoleAdmin, PermissionFetchMail))
	assert.False(t, HasPermission("guest", PermissionSearch))
}

func TestCheckPermission(t *testing.T) {
	assert.NoError(t, CheckPermission(RoleAdmin, PermissionReplayOutbox))
	assert.ErrorIs(t, CheckPermission(RoleUser, PermissionReplayOutbox), apperr.ErrPermission)
}
