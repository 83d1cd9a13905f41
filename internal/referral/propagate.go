package referral

import (
	"context"
	"fmt"
)

// Propagator keeps the stored snapshots of a referrer and all its ancestors
// in line with the live graph after a new user is linked below them.
type Propagator struct {
	store   Store
	builder *Builder
}

func NewPropagator(store Store, builder *Builder) *Propagator {
	return &Propagator{store: store, builder: builder}
}

// Propagate saves tree on referrerID, then rebuilds and saves the tree of
// every ancestor up to the forest root. It returns the number of snapshots
// written. There is no rollback: on error, snapshots already written stay
// and the ones above the failure keep their previous value.
func (p *Propagator) Propagate(ctx context.Context, referrerID string, tree Tree) (int, error) {
	visited := make(map[string]struct{})
	id := referrerID
	written := 0

	for {
		visited[id] = struct{}{}
		if err := p.store.SaveTree(ctx, id, tree); err != nil {
			return written, fmt.Errorf("save referral tree of %s: %w", id, err)
		}
		written++

		parent, err := p.store.ReferrerOf(ctx, id)
		if err != nil {
			return written, fmt.Errorf("lookup referrer of %s: %w", id, err)
		}
		if parent == "" {
			return written, nil
		}
		if _, seen := visited[parent]; seen {
			return written, fmt.Errorf("%w: ancestor %s revisited from %s", ErrCycleDetected, parent, referrerID)
		}

		next, found, err := p.builder.Build(ctx, parent)
		if err != nil {
			return written, fmt.Errorf("rebuild referral tree of %s: %w", parent, err)
		}
		// dangling reference to a deleted referrer ends the chain
		if !found {
			return written, nil
		}
		id, tree = parent, next
	}
}
