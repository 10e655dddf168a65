package service

import (
	"context"
	"errors"

	"waterworks/internal/apperr"
	"waterworks/internal/cache"
	"waterworks/internal/metrics"
	"waterworks/internal/model"
	"waterworks/internal/repository"

	"github.com/sirupsen/logrus"
)

// Guard decides whether actor may proceed against page.
type Guard func(ctx context.Context, actor *Actor, page string) (bool, error)

// AccessEvaluator answers capability questions from the actor's role permission rows.
// Lookups are read-only; a missing role or row is a denial, not an error.
type AccessEvaluator struct {
	perms   repository.PermissionRepository
	grants  cache.GrantCache
	metrics *metrics.Metrics
	log     *logrus.Logger
}

func NewAccessEvaluator(perms repository.PermissionRepository, grants cache.GrantCache, m *metrics.Metrics, log *logrus.Logger) *AccessEvaluator {
	if grants == nil {
		grants = cache.Noop{}
	}
	return &AccessEvaluator{perms: perms, grants: grants, metrics: m, log: log}
}

// CanPerform reports whether actor may perform action on page.
// Only storage failures produce an error; the boolean is false in that case too.
func (e *AccessEvaluator) CanPerform(ctx context.Context, actor *Actor, page string, action model.Action) (bool, error) {
	if !actor.HasRole() {
		e.metrics.Decision(page, string(action), false)
		return false, nil
	}

	perm, err := e.lookup(ctx, actor, page)
	if err != nil {
		return false, err
	}

	allowed := perm != nil && perm.Allows(action)
	e.metrics.Decision(page, string(action), allowed)
	return allowed, nil
}

func (e *AccessEvaluator) lookup(ctx context.Context, actor *Actor, page string) (*model.Permission, error) {
	roleID := *actor.RoleID
	entry, token, ok := e.grants.Get(ctx, roleID, page)
	if ok {
		e.metrics.CacheLookup(true)
		return entry.Permission, nil
	}
	e.metrics.CacheLookup(false)

	perm, err := e.perms.FindByRoleAndPage(ctx, roleID, page)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		perm = nil
	case err != nil:
		if e.log != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"role_id": roleID,
				"page":    page,
			}).Error("permission lookup failed")
		}
		return nil, apperr.Storage("lookup permission", err)
	}

	// Dropped if a permission write for the role committed since Get.
	e.grants.Set(ctx, roleID, page, token, cache.Entry{Permission: perm})
	return perm, nil
}

// GuardFor builds a guard checking a single action.
func (e *AccessEvaluator) GuardFor(action model.Action) Guard {
	return func(ctx context.Context, actor *Actor, page string) (bool, error) {
		return e.CanPerform(ctx, actor, page, action)
	}
}

// ViewGuard allows reads on pages the role can view.
func (e *AccessEvaluator) ViewGuard() Guard { return e.GuardFor(model.ActionView) }

// AddGuard allows creation on pages the role can add to.
func (e *AccessEvaluator) AddGuard() Guard { return e.GuardFor(model.ActionAdd) }

// EditGuard allows mutating requests on pages the role can edit.
func (e *AccessEvaluator) EditGuard() Guard { return e.GuardFor(model.ActionEdit) }

// DeleteGuard allows delete requests on pages the role can delete from.
func (e *AccessEvaluator) DeleteGuard() Guard { return e.GuardFor(model.ActionDelete) }
