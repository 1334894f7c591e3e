package issues

import "context"

// Store is the durable issue collaborator. Each call is atomic on its own;
// there are no multi-call transactions. Missing ids yield ErrNotFound.
type Store interface {
	Put(ctx context.Context, issue Issue) (string, error)
	Patch(ctx context.Context, id string, p Patch) error
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Issue, error)
	List(ctx context.Context) (Snapshot, error)

	// Subscribe delivers an initial snapshot, then one per committed change.
	// Bursts may coalesce; versions strictly increase.
	Subscribe(fn func(Snapshot)) (unsubscribe func(), err error)
}
