package service

import (
	"context"
	"sync"
	"testing"

	"waterworks/internal/apperr"
	"waterworks/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetPermissionUpserts(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	roleID := env.createRole(t, "Planners")

	created, err := env.permissions.SetPermission(ctx, roleID, model.PageValves, PermissionFlags{CanView: true}, false)
	require.NoError(t, err)

	updated, err := env.permissions.SetPermission(ctx, roleID, model.PageValves, PermissionFlags{CanView: true, CanEdit: true}, false)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, updated.CanEdit)
	assert.Equal(t, 3, env.store.permCount(roleID))
}

func TestCreatePermissionRejectsDuplicateKey(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	roleID := env.createRole(t, "Planners")

	_, err := env.permissions.CreatePermission(ctx, roleID, model.PageDashboard, PermissionFlags{CanView: true}, false)
	var dup *apperr.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, model.PageDashboard, dup.Page)
	assert.Equal(t, roleID.String(), dup.RoleID)
}

func TestPermissionWritesRequireExistingRole(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := env.permissions.SetPermission(context.Background(), uuid.New(), model.PageValves, PermissionFlags{CanView: true}, false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = env.permissions.ListPermissions(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSetPermissionRequiresPage(t *testing.T) {
	env := newTestEnv(t, false)
	roleID := env.createRole(t, "Planners")

	_, err := env.permissions.SetPermission(context.Background(), roleID, " ", PermissionFlags{}, false)
	var invalid *apperr.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "page", invalid.Field)
}

func TestLoginPageMovesBetweenRows(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	roleID := env.createRole(t, "Dispatch")

	page, err := env.permissions.LoginPage(ctx, roleID)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = env.permissions.SetPermission(ctx, roleID, model.PageDashboard, PermissionFlags{CanView: true}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{model.PageDashboard}, env.store.loginPages(roleID))

	_, err = env.permissions.CreatePermission(ctx, roleID, model.PageValves, PermissionFlags{CanView: true}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{model.PageValves}, env.store.loginPages(roleID))

	page, err = env.permissions.LoginPage(ctx, roleID)
	require.NoError(t, err)
	assert.Equal(t, model.PageValves, page)
}

func TestLoginPageIsScopedToRole(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	a := env.createRole(t, "A")
	b := env.createRole(t, "B")

	_, err := env.permissions.SetPermission(ctx, a, model.PageDashboard, PermissionFlags{CanView: true}, true)
	require.NoError(t, err)
	_, err = env.permissions.SetPermission(ctx, b, model.PageProfile, PermissionFlags{CanView: true}, true)
	require.NoError(t, err)

	assert.Equal(t, []string{model.PageDashboard}, env.store.loginPages(a))
	assert.Equal(t, []string{model.PageProfile}, env.store.loginPages(b))
}

func TestConcurrentLoginPageWritesKeepOneFlag(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	roleID := env.createRole(t, "Race")

	pages := []string{model.PageDashboard, model.PageProfile, model.PageValves, model.PageUsers}
	var wg sync.WaitGroup
	errs := make(chan error, len(pages)*10)
	for i := 0; i < 10; i++ {
		for _, page := range pages {
			wg.Add(1)
			go func(page string) {
				defer wg.Done()
				_, err := env.permissions.SetPermission(ctx, roleID, page, PermissionFlags{CanView: true}, true)
				errs <- err
			}(page)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, env.store.loginPages(roleID), 1)
}

func TestGetPermissionAbsentIsNil(t *testing.T) {
	env := newTestEnv(t, false)
	roleID := env.createRole(t, "Readers")

	perm, err := env.permissions.GetPermission(context.Background(), roleID, model.PageUsers)
	require.NoError(t, err)
	assert.Nil(t, perm)

	perm, err = env.permissions.GetPermission(context.Background(), roleID, model.PageDashboard)
	require.NoError(t, err)
	require.NotNil(t, perm)
	assert.True(t, perm.CanView)
}

func TestRevokePermission(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	roleID := env.createRole(t, "Readers")
	actor := env.actorWithRole(t, roleID)

	allowed, err := env.access.CanPerform(ctx, actor, model.PageProfile, model.ActionView)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, env.permissions.RevokePermission(ctx, roleID, model.PageProfile))

	allowed, err = env.access.CanPerform(ctx, actor, model.PageProfile, model.ActionView)
	require.NoError(t, err)
	assert.False(t, allowed)

	err = env.permissions.RevokePermission(ctx, roleID, model.PageProfile)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
