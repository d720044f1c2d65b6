package store

import (
	"context"
	"time"

	"github.com/Protocol-Lattice/go-context/src/model"
)

// InteractionStore is the read-only boundary to the external interaction
// log. Both queries return chronologically ordered immutable snapshots; no
// locks are held beyond the call.
type InteractionStore interface {
	// Recent returns interactions newer than now-window, oldest first,
	// capped at limit (0 means no cap).
	Recent(ctx context.Context, window time.Duration, limit int) ([]model.Interaction, error)
	// BySession returns all interactions for one session, oldest first.
	BySession(ctx context.Context, sessionID string) ([]model.Interaction, error)
}

// SchemaInitializer allows stores to expose optional schema/bootstrap routines.
type SchemaInitializer interface {
	CreateSchema(ctx context.Context) error
}
