package user

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wichananm65/referral-service/internal/referral"
)

var (
	ErrNotFound        = errors.New("user not found")
	ErrInvalidID       = errors.New("invalid user id")
	ErrInvalidReferral = errors.New("invalid referral code")
	ErrInvalidRecord   = errors.New("user validation failed")
)

// Repository is the record store behind the service.
type Repository interface {
	List(ctx context.Context) ([]User, error)
	GetByID(ctx context.Context, id string) (User, error)
	GetByReferralCode(ctx context.Context, code string) (User, error)
	ListByReferrer(ctx context.Context, referrerID string) ([]User, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, user User) (User, error)
	// Update applies patch and returns the record as it was before.
	Update(ctx context.Context, id string, patch Patch) (User, error)
	SetReferralTree(ctx context.Context, id string, tree referral.Tree) error
	// Delete removes the record and returns it.
	Delete(ctx context.Context, id string) (User, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type InMemoryRepository struct {
	mu    sync.RWMutex
	users []User
	now   func() time.Time
}

var _ Repository = (*InMemoryRepository)(nil)

func NewInMemoryRepository(seed []User) *InMemoryRepository {
	repo := &InMemoryRepository{
		users: make([]User, 0, len(seed)),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, user := range seed {
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		repo.users = append(repo.users, cloneUser(user))
	}
	return repo
}

func (r *InMemoryRepository) List(ctx context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, cloneUser(user))
	}
	return users, nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(id); i >= 0 {
		return cloneUser(r.users[i]), nil
	}
	return User{}, ErrNotFound
}

func (r *InMemoryRepository) GetByReferralCode(ctx context.Context, code string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.ReferralCode == code {
			return cloneUser(user), nil
		}
	}
	return User{}, ErrNotFound
}

func (r *InMemoryRepository) ListByReferrer(ctx context.Context, referrerID string) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]User, 0)
	for _, user := range r.users {
		if user.Referrer != nil && *user.Referrer == referrerID {
			users = append(users, cloneUser(user))
		}
	}
	return users, nil
}

func (r *InMemoryRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := r.GetByReferralCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *InMemoryRepository) Create(ctx context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.ReferralCode == user.ReferralCode {
			return User{}, errors.New("duplicate referral code")
		}
	}

	now := r.now()
	user.ID = uuid.NewString()
	if user.Role == "" {
		user.Role = DefaultRole
	}
	if user.ReferralTree == nil {
		user.ReferralTree = referral.Tree{}
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	r.users = append(r.users, cloneUser(user))
	return cloneUser(user), nil
}

func (r *InMemoryRepository) Update(ctx context.Context, id string, patch Patch) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return User{}, ErrNotFound
	}

	before := cloneUser(r.users[i])
	patch.apply(&r.users[i])
	r.users[i].UpdatedAt = r.now()
	return before, nil
}

func (r *InMemoryRepository) SetReferralTree(ctx context.Context, id string, tree referral.Tree) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	r.users[i].ReferralTree = tree
	r.users[i].UpdatedAt = r.now()
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return User{}, ErrNotFound
	}
	deleted := r.users[i]
	r.users = append(r.users[:i], r.users[i+1:]...)
	return deleted, nil
}

func (r *InMemoryRepository) DeleteAll(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.users))
	r.users = r.users[:0]
	return n, nil
}

func (r *InMemoryRepository) indexOf(id string) int {
	for i, user := range r.users {
		if user.ID == id {
			return i
		}
	}
	return -1
}

// cloneUser copies the pointer fields so callers cannot mutate stored records.
// Trees are replaced wholesale, never edited in place, so they are shared.
func cloneUser(user User) User {
	if user.Referrer != nil {
		ref := *user.Referrer
		user.Referrer = &ref
	}
	if user.WalletAddress != nil {
		addr := *user.WalletAddress
		user.WalletAddress = &addr
	}
	return user
}
