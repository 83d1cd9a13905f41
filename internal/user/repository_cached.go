package user

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/wichananm65/referral-service/internal/cache"
	"github.com/wichananm65/referral-service/internal/metrics"
	"github.com/wichananm65/referral-service/internal/referral"
)

// CachedRepository reads single records through a cache and evicts a record
// on every write to it. Cache failures are logged and fall back to the
// underlying repository.
//
// A read that misses fills the cache only if no write happened while it was
// reading the store, so a slow read cannot put back a record older than one a
// concurrent writer has already committed and evicted.
type CachedRepository struct {
	Repository
	cache cache.Cache
	log   *slog.Logger

	mu  sync.Mutex
	gen uint64
}

var _ Repository = (*CachedRepository)(nil)

func NewCachedRepository(repo Repository, c cache.Cache, logger *slog.Logger) *CachedRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRepository{Repository: repo, cache: c, log: logger}
}

func cacheKey(id string) string {
	return "user:" + id
}

func (r *CachedRepository) GetByID(ctx context.Context, id string) (User, error) {
	key := cacheKey(id)
	raw, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.log.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
	}
	if ok {
		var user User
		if err := json.Unmarshal(raw, &user); err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return user, nil
		}
		r.evict(ctx, id)
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	start := r.generation()
	user, err := r.Repository.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	r.fill(ctx, key, start, user)
	return user, nil
}

func (r *CachedRepository) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// fill stores user under key unless a write has bumped the generation since
// start. The check and the Set share the lock that writers take to bump.
func (r *CachedRepository) fill(ctx context.Context, key string, start uint64, user User) {
	raw, err := json.Marshal(user)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != start {
		return
	}
	if err := r.cache.Set(ctx, key, raw); err != nil {
		r.log.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (r *CachedRepository) bump() {
	r.mu.Lock()
	r.gen++
	r.mu.Unlock()
}

func (r *CachedRepository) Update(ctx context.Context, id string, patch Patch) (User, error) {
	before, err := r.Repository.Update(ctx, id, patch)
	r.evict(ctx, id)
	return before, err
}

func (r *CachedRepository) SetReferralTree(ctx context.Context, id string, tree referral.Tree) error {
	err := r.Repository.SetReferralTree(ctx, id, tree)
	r.evict(ctx, id)
	return err
}

func (r *CachedRepository) Delete(ctx context.Context, id string) (User, error) {
	deleted, err := r.Repository.Delete(ctx, id)
	r.evict(ctx, id)
	return deleted, err
}

func (r *CachedRepository) DeleteAll(ctx context.Context) (int64, error) {
	n, err := r.Repository.DeleteAll(ctx)
	r.bump()
	if perr := r.cache.Purge(ctx); perr != nil {
		r.log.Warn("cache purge failed", slog.Any("error", perr))
	}
	return n, err
}

func (r *CachedRepository) evict(ctx context.Context, id string) {
	r.bump()
	if err := r.cache.Delete(ctx, cacheKey(id)); err != nil {
		r.log.Warn("cache eviction failed", slog.String("id", id), slog.Any("error", err))
	}
}
