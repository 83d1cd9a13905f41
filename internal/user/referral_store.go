package user

import (
	"context"
	"errors"

	"github.com/wichananm65/referral-service/internal/referral"
)

// referralStore exposes a Repository as the record access of the referral
// tree builder and propagator.
type referralStore struct {
	repo Repository
}

var _ referral.Store = referralStore{}

func (s referralStore) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s referralStore) Children(ctx context.Context, id string) ([]referral.Ref, error) {
	users, err := s.repo.ListByReferrer(ctx, id)
	if err != nil {
		return nil, err
	}
	refs := make([]referral.Ref, 0, len(users))
	for _, u := range users {
		refs = append(refs, referral.Ref{ID: u.ID, ReferralCode: u.ReferralCode})
	}
	return refs, nil
}

func (s referralStore) ReferrerOf(ctx context.Context, id string) (string, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if u.Referrer == nil {
		return "", nil
	}
	return *u.Referrer, nil
}

func (s referralStore) SaveTree(ctx context.Context, id string, tree referral.Tree) error {
	return s.repo.SetReferralTree(ctx, id, tree)
}
