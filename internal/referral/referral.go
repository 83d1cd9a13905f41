package referral

import (
	"context"
	"errors"
)

var (
	ErrCycleDetected           = errors.New("referral cycle detected")
	ErrCodeGenerationExhausted = errors.New("failed to generate unique referral code")
)

// Node is one entry of a materialized referral tree.
type Node struct {
	ID           string `json:"id"`
	ReferralCode string `json:"referralCode"`
	ReferralTree Tree   `json:"referralTree"`
}

// Tree is the ordered list of a user's direct referrals, each carrying its
// own subtree.
type Tree []Node

// Ref identifies a direct referral as returned by the store.
type Ref struct {
	ID           string
	ReferralCode string
}

// Store is the record access the builder and propagator need.
type Store interface {
	// Exists reports whether a record with the given id is present.
	Exists(ctx context.Context, id string) (bool, error)
	// Children returns the records whose referrer is id, in store order.
	Children(ctx context.Context, id string) ([]Ref, error)
	// ReferrerOf returns the referrer of id, or "" for a forest root.
	ReferrerOf(ctx context.Context, id string) (string, error)
	// SaveTree replaces the stored snapshot of id.
	SaveTree(ctx context.Context, id string, tree Tree) error
}

// Size returns the number of nodes in the tree.
func (t Tree) Size() int {
	size := 0
	stack := []Tree{t}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		size += len(cur)
		for _, n := range cur {
			if len(n.ReferralTree) > 0 {
				stack = append(stack, n.ReferralTree)
			}
		}
	}
	return size
}

// Depth returns the length of the longest referral chain in the tree.
func (t Tree) Depth() int {
	type frame struct {
		tree  Tree
		level int
	}
	depth := 0
	stack := []frame{{tree: t, level: 1}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(cur.tree) == 0 {
			continue
		}
		if cur.level > depth {
			depth = cur.level
		}
		for _, n := range cur.tree {
			stack = append(stack, frame{tree: n.ReferralTree, level: cur.level + 1})
		}
	}
	return depth
}
