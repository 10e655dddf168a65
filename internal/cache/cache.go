// Package cache keeps permission grant lookups close to the access evaluator.
// Writers of permission rows invalidate a whole role at a time.
package cache

import (
	"context"

	"waterworks/internal/model"

	"github.com/google/uuid"
)

// Entry is one cached lookup. Permission is nil when the role has no row for the page,
// so misses are cached as well.
type Entry struct {
	Permission *model.Permission `json:"permission"`
}

// Token is the role generation observed by a Get. A fill carrying a token
// older than the current generation is discarded, so a lookup that raced with
// a permission write cannot put the old row back.
type Token int64

// GrantCache caches (role, page) permission lookups.
type GrantCache interface {
	// Get returns the cached entry, or a miss and the token to fill it with.
	Get(ctx context.Context, roleID uuid.UUID, page string) (Entry, Token, bool)
	// Set stores entry only if the role has not been invalidated since token was taken.
	Set(ctx context.Context, roleID uuid.UUID, page string, token Token, entry Entry)
	InvalidateRole(ctx context.Context, roleID uuid.UUID)
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, uuid.UUID, string) (Entry, Token, bool) { return Entry{}, 0, false }
func (Noop) Set(context.Context, uuid.UUID, string, Token, Entry)        {}
func (Noop) InvalidateRole(context.Context, uuid.UUID)                   {}
