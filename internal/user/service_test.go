package user

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wichananm65/referral-service/internal/referral"
)

func newTestService(repo Repository) *Service {
	return NewService(repo, Options{
		TreeConcurrency: 2,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func signup(name, code string) CreateInput {
	return CreateInput{
		FullName:     name + " Tester",
		Username:     name,
		Email:        name + "@example.com",
		Phone:        "0800000000",
		Password:     "secret-" + name,
		ReferralCode: code,
	}
}

func TestCreate_WithoutReferral(t *testing.T) {
	repo := NewInMemoryRepository(nil)
	svc := newTestService(repo)

	a, err := svc.Create(context.Background(), signup("a", ""))
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Len(t, a.ReferralCode, referral.DefaultCodeLength)
	assert.Nil(t, a.Referrer)
	assert.Equal(t, DefaultRole, a.Role)
	assert.NotNil(t, a.ReferralTree)
	assert.Empty(t, a.ReferralTree)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(a.Password), []byte("secret-a")))
}

func TestCreate_ThreeGenerationScenario(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(nil)
	svc := newTestService(repo)

	a, err := svc.Create(ctx, signup("a", ""))
	require.NoError(t, err)

	b, err := svc.Create(ctx, signup("b", a.ReferralCode))
	require.NoError(t, err)
	require.NotNil(t, b.Referrer)
	assert.Equal(t, a.ID, *b.Referrer)

	storedA, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, referral.Tree{
		{ID: b.ID, ReferralCode: b.ReferralCode, ReferralTree: referral.Tree{}},
	}, storedA.ReferralTree)

	c, err := svc.Create(ctx, signup("c", b.ReferralCode))
	require.NoError(t, err)

	storedB, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, referral.Tree{
		{ID: c.ID, ReferralCode: c.ReferralCode, ReferralTree: referral.Tree{}},
	}, storedB.ReferralTree)

	storedA, err = repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, referral.Tree{
		{ID: b.ID, ReferralCode: b.ReferralCode, ReferralTree: referral.Tree{
			{ID: c.ID, ReferralCode: c.ReferralCode, ReferralTree: referral.Tree{}},
		}},
	}, storedA.ReferralTree)
}

func TestCreate_SiblingSnapshotsStayStale(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(nil)
	svc := newTestService(repo)

	root, _ := svc.Create(ctx, signup("root", ""))
	left, _ := svc.Create(ctx, signup("left", root.ReferralCode))
	right, _ := svc.Create(ctx, signup("right", root.ReferralCode))
	_, err := svc.Create(ctx, signup("leaf", left.ReferralCode))
	require.NoError(t, err)

	storedRoot, _ := repo.GetByID(ctx, root.ID)
	assert.Len(t, storedRoot.ReferralTree, 2)
	assert.Equal(t, 3, storedRoot.ReferralTree.Size())

	storedRight, _ := repo.GetByID(ctx, right.ID)
	assert.Empty(t, storedRight.ReferralTree)
}

func TestCreate_InvalidReferralCreatesNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(nil)
	svc := newTestService(repo)

	_, err := svc.Create(ctx, signup("a", "NOPE1234"))
	assert.ErrorIs(t, err, ErrInvalidReferral)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestCreate_MissingRequiredFieldFails(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(nil)
	svc := newTestService(repo)

	input := signup("a", "")
	input.Email = ""
	_, err := svc.Create(ctx, input)
	assert.ErrorIs(t, err, ErrInvalidRecord)

	users, _ := repo.List(ctx)
	assert.Empty(t, users)
}

// collidingRepo reports every referral code as taken.
type collidingRepo struct {
	*InMemoryRepository
	checks int
}

func (r *collidingRepo) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	r.checks++
	return true, nil
}

func TestCreate_CodeGenerationExhausted(t *testing.T) {
	repo := &collidingRepo{InMemoryRepository: NewInMemoryRepository(nil)}
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), signup("a", ""))
	assert.ErrorIs(t, err, referral.ErrCodeGenerationExhausted)
	assert.Equal(t, referral.DefaultMaxAttempts, repo.checks)

	users, _ := repo.List(context.Background())
	assert.Empty(t, users)
}

// failingTreeRepo fails every snapshot write.
type failingTreeRepo struct {
	*InMemoryRepository
}

func (r failingTreeRepo) SetReferralTree(ctx context.Context, id string, tree referral.Tree) error {
	return errors.New("write timeout")
}

func TestCreate_PropagationFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	repo := failingTreeRepo{NewInMemoryRepository(nil)}
	svc := newTestService(repo)

	a, err := svc.Create(ctx, signup("a", ""))
	require.NoError(t, err)

	b, err := svc.Create(ctx, signup("b", a.ReferralCode))
	require.Error(t, err)
	assert.NotEmpty(t, b.ID)

	_, err = repo.GetByID(ctx, b.ID)
	assert.NoError(t, err)
}

func TestUpdate_ReturnsPreviousRecordAndHashesPassword(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(nil)
	svc := newTestService(repo)

	a, err := svc.Create(ctx, signup("a", ""))
	require.NoError(t, err)

	name := "Renamed"
	password := "new-secret"
	before, err := svc.Update(ctx, a.ID, Patch{FullName: &name, Password: &password})
	require.NoError(t, err)
	assert.Equal(t, "a Tester", before.FullName)

	after, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", after.FullName)
	assert.Equal(t, a.ReferralCode, after.ReferralCode)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(after.Password), []byte("new-secret")))
}

func TestGetByID_RejectsMalformedID(t *testing.T) {
	svc := newTestService(NewInMemoryRepository(nil))

	_, err := svc.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = svc.Delete(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestLiveReferralTree_ReflectsCurrentGraph(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(nil)
	svc := newTestService(repo)

	root, _ := svc.Create(ctx, signup("root", ""))
	child, _ := svc.Create(ctx, signup("child", root.ReferralCode))
	_, err := svc.Delete(ctx, child.ID)
	require.NoError(t, err)

	stored, err := svc.ReferralTree(ctx, root.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ReferralTree, 1, "stored snapshot is not refreshed on delete")

	live, err := svc.LiveReferralTree(ctx, root.ID)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestDeleteAll_EmptiesStore(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(nil)
	svc := newTestService(repo)

	svc.Create(ctx, signup("a", ""))
	svc.Create(ctx, signup("b", ""))

	n, err := svc.DeleteAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	users, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}
