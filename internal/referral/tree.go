package referral

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

// Builder computes live referral trees from the store. It walks the graph
// level by level with an explicit worklist, so deep chains do not grow the
// goroutine stack, and rejects any id it reaches twice.
type Builder struct {
	store       Store
	concurrency int
}

func NewBuilder(store Store, concurrency int) *Builder {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Builder{store: store, concurrency: concurrency}
}

// Build returns the descendant tree rooted at rootID. found is false when no
// record with that id exists.
func (b *Builder) Build(ctx context.Context, rootID string) (tree Tree, found bool, err error) {
	ok, err := b.store.Exists(ctx, rootID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	visited := map[string]struct{}{rootID: {}}
	children := make(map[string][]Ref)
	levels := [][]string{{rootID}}

	for frontier := levels[0]; len(frontier) > 0; {
		fetched, err := b.fetchLevel(ctx, frontier)
		if err != nil {
			return nil, false, err
		}

		var next []string
		for i, parent := range frontier {
			for _, child := range fetched[i] {
				if _, seen := visited[child.ID]; seen {
					return nil, false, fmt.Errorf("%w: %s reached twice below %s", ErrCycleDetected, child.ID, rootID)
				}
				visited[child.ID] = struct{}{}
				next = append(next, child.ID)
			}
			children[parent] = fetched[i]
		}

		if len(next) > 0 {
			levels = append(levels, next)
		}
		frontier = next
	}

	// assemble bottom-up so every child's subtree exists before its parent
	built := make(map[string]Tree, len(visited))
	for l := len(levels) - 1; l >= 0; l-- {
		for _, id := range levels[l] {
			refs := children[id]
			t := make(Tree, 0, len(refs))
			for _, ref := range refs {
				t = append(t, Node{
					ID:           ref.ID,
					ReferralCode: ref.ReferralCode,
					ReferralTree: built[ref.ID],
				})
			}
			built[id] = t
		}
	}

	return built[rootID], true, nil
}

func (b *Builder) fetchLevel(ctx context.Context, ids []string) ([][]Ref, error) {
	results := make([][]Ref, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			refs, err := b.store.Children(gctx, id)
			if err != nil {
				return fmt.Errorf("list referrals of %s: %w", id, err)
			}
			results[i] = refs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
