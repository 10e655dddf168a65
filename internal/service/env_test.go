package service

import (
	"context"
	"testing"
	"time"

	"waterworks/internal/cache"
	"waterworks/internal/logger"
	"waterworks/internal/metrics"
	"waterworks/internal/model"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store   *memStore
	grants  *cache.MemoryCache
	metrics *metrics.Metrics
	events  *fakePublisher

	roles       RoleService
	permissions PermissionService
	access      *AccessEvaluator
	auditor     *ChangeAuditor
	valves      ValveService
	audit       AuditService
	users       UserService
}

func newTestEnv(t *testing.T, strictSeeding bool) *testEnv {
	t.Helper()
	store := newMemStore()
	tx := fakeTxManager{store: store}
	roleRepo := fakeRoleRepo{store: store}
	permRepo := fakePermRepo{store: store}
	valveRepo := fakeValveRepo{store: store}
	logRepo := fakeLogRepo{store: store}
	userRepo := fakeUserRepo{store: store}

	log := logger.Discard()
	grants := cache.NewMemoryCache(128, time.Minute)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	events := &fakePublisher{}

	permissions := NewPermissionService(roleRepo, permRepo, tx, grants, log)
	auditor := NewChangeAuditor(valveRepo, logRepo, tx, m)
	return &testEnv{
		store:       store,
		grants:      grants,
		metrics:     m,
		events:      events,
		roles:       NewRoleService(roleRepo, permRepo, permissions, tx, grants, m, log, strictSeeding),
		permissions: permissions,
		access:      NewAccessEvaluator(permRepo, grants, m, log),
		auditor:     auditor,
		valves:      NewValveService(valveRepo, roleRepo, auditor, events, log),
		audit:       NewAuditService(valveRepo, logRepo),
		users:       NewUserService(userRepo, roleRepo, logRepo, permissions, tx),
	}
}

func (e *testEnv) createRole(t *testing.T, name string) uuid.UUID {
	t.Helper()
	role, err := e.roles.CreateRole(context.Background(), CreateRoleRequest{Name: name})
	require.NoError(t, err)
	return uuid.MustParse(role.ID)
}

func (e *testEnv) actorWithRole(t *testing.T, roleID uuid.UUID) *Actor {
	t.Helper()
	email := "user-" + uuid.NewString()[:8] + "@example.com"
	user, err := e.users.CreateUser(context.Background(), CreateUserRequest{
		Username: email,
		Email:    email,
		RoleID:   &roleID,
	})
	require.NoError(t, err)
	return &Actor{ID: user.ID, Email: user.Email, RoleID: user.RoleID}
}

func (e *testEnv) grant(t *testing.T, roleID uuid.UUID, page string, flags PermissionFlags) {
	t.Helper()
	_, err := e.permissions.SetPermission(context.Background(), roleID, page, flags, false)
	require.NoError(t, err)
}

func permByPage(perms []model.Permission, page string) *model.Permission {
	for i := range perms {
		if perms[i].Page == page {
			return &perms[i]
		}
	}
	return nil
}
