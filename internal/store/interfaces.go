// Package store persists conversation contexts across turns. Stores own
// serialization to and from conversation.Snapshot and implement the
// archive rule: an expired session keeps its slots and drops everything
// else.
package store

import (
	"context"
	"errors"

	"github.com/vampirenirmal/convocart/internal/conversation"
)

var (
	// ErrNotFound is returned when no live context exists for a principal.
	ErrNotFound = errors.New("context not found")

	// ErrVersionConflict is returned when a Put loses an optimistic
	// concurrency check against a newer saved version.
	ErrVersionConflict = errors.New("context version conflict")
)

// ContextStore is the persistence port for conversation contexts.
type ContextStore interface {
	// Get loads the live context for a principal, or ErrNotFound.
	Get(ctx context.Context, principal string) (*conversation.Context, error)

	// Put saves a context. Implementations check conv.Version against the
	// stored version and return ErrVersionConflict on a lost race; on
	// success conv.Version is bumped.
	Put(ctx context.Context, principal string, conv *conversation.Context) error

	// Delete removes a principal's context entirely, slots included.
	Delete(ctx context.Context, principal string) error

	// Archive collapses a principal's record to its slots only and
	// returns them. Phase, state data and history are discarded. The
	// preserved slots seed the principal's next session.
	Archive(ctx context.Context, principal string) (map[string]any, error)

	// ArchivedSlots returns slots preserved by a previous Archive, or
	// ErrNotFound when the principal has no archived record.
	ArchivedSlots(ctx context.Context, principal string) (map[string]any, error)
}
