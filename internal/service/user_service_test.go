package service

import (
	"context"
	"testing"

	"waterworks/internal/apperr"
	"waterworks/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserValidates(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	missing := uuid.New()

	_, err := env.users.CreateUser(ctx, CreateUserRequest{Username: "kim", Email: "Kim@Example.com"})
	require.NoError(t, err)

	cases := map[string]CreateUserRequest{
		"email":   {Username: "kim2", Email: "kim@example.com"},
		"format":  {Username: "lee", Email: "not-an-email"},
		"role_id": {Username: "park", Email: "park@example.com", RoleID: &missing},
	}
	for name, req := range cases {
		_, err := env.users.CreateUser(ctx, req)
		var invalid *apperr.ValidationError
		assert.ErrorAs(t, err, &invalid, name)
	}
}

func TestDeleteUserKeepsLogEntries(t *testing.T) {
	env := newTestEnv(t, false)
	roleID := env.createRole(t, "Crew")
	actor := env.actorWithRole(t, roleID)
	ctx := WithActor(context.Background(), actor)
	valve := seedValve(t, env, 100, 50)

	_, err := env.valves.UpdateValve(ctx, valve.ID, map[string]any{model.ValveFieldCurrentCondition: 25})
	require.NoError(t, err)

	require.NoError(t, env.users.DeleteUser(ctx, actor.ID))

	logs, err := env.audit.ListValveLogs(ctx, valve.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].UserID)
	assert.Equal(t, "System", logs[0].Username)

	err = env.users.DeleteUser(ctx, actor.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAssignRoleAndProfile(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	roleID := env.createRole(t, "Dispatch")
	_, err := env.permissions.SetPermission(ctx, roleID, model.PageValves, PermissionFlags{CanView: true}, true)
	require.NoError(t, err)

	user, err := env.users.CreateUser(ctx, CreateUserRequest{Username: "sato", Email: "sato@example.com"})
	require.NoError(t, err)

	actor, err := env.users.ResolveActor(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, actor.HasRole())

	profile, err := env.users.Profile(ctx, actor)
	require.NoError(t, err)
	assert.Empty(t, profile.Permissions)
	assert.Empty(t, profile.LoginPage)

	assigned, err := env.users.AssignRole(ctx, user.ID, &roleID)
	require.NoError(t, err)
	assert.Equal(t, "Dispatch", assigned.RoleName)

	actor, err = env.users.ResolveActor(ctx, user.ID)
	require.NoError(t, err)
	profile, err = env.users.Profile(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, model.PageValves, profile.LoginPage)
	assert.Len(t, profile.Permissions, 3)

	_, err = env.users.AssignRole(ctx, user.ID, nil)
	require.NoError(t, err)
	actor, err = env.users.ResolveActor(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, actor.RoleID)
}

func TestResolveActorUnknownUser(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := env.users.ResolveActor(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProfileRequiresActor(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := env.users.Profile(context.Background(), nil)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
