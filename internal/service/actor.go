package service

import (
	"context"

	"github.com/google/uuid"
)

// Actor is the authenticated principal a request runs as.
type Actor struct {
	ID     uuid.UUID
	Email  string
	RoleID *uuid.UUID
}

// HasRole reports whether the actor carries any role at all.
func (a *Actor) HasRole() bool {
	return a != nil && a.RoleID != nil
}

type actorContextKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor stored by WithActor, or nil.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorContextKey{}).(*Actor)
	return actor
}
