package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wichananm65/referral-service/internal/metrics"
	"github.com/wichananm65/referral-service/internal/referral"
)

var validate = validator.New()

// CreateInput is the signup payload.
type CreateInput struct {
	FullName     string `json:"fullName"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	ReferralCode string `json:"referralCode"`
}

type Service struct {
	repo       Repository
	codes      *referral.CodeGenerator
	builder    *referral.Builder
	propagator *referral.Propagator
	log        *slog.Logger
}

type Options struct {
	CodeLength      int
	TreeConcurrency int
	Logger          *slog.Logger
}

func NewService(repo Repository, opts Options) *Service {
	store := referralStore{repo: repo}
	builder := referral.NewBuilder(store, opts.TreeConcurrency)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		codes:      referral.NewCodeGenerator(opts.CodeLength),
		builder:    builder,
		propagator: referral.NewPropagator(store, builder),
		log:        logger,
	}
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	if err := checkID(id); err != nil {
		return User{}, err
	}
	return s.repo.GetByID(ctx, id)
}

// Create stores a new user, linking it below the owner of input.ReferralCode
// when one is given, and refreshes the referral snapshots of that referrer
// and all its ancestors. A propagation error is returned together with the
// stored user: the record is not removed.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	var referrer *string
	if input.ReferralCode != "" {
		owner, err := s.repo.GetByReferralCode(ctx, input.ReferralCode)
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidReferral
		}
		if err != nil {
			return User{}, fmt.Errorf("resolve referral code: %w", err)
		}
		referrer = &owner.ID
	}

	code, err := s.codes.Generate(ctx, s.repo.ReferralCodeExists)
	if err != nil {
		return User{}, err
	}

	user := User{
		FullName:     input.FullName,
		Username:     input.Username,
		Email:        input.Email,
		Phone:        input.Phone,
		Password:     input.Password,
		Role:         DefaultRole,
		ReferralCode: code,
		Referrer:     referrer,
		ReferralTree: referral.Tree{},
	}
	if err := validate.Struct(user); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if user.Password, err = hashPassword(user.Password); err != nil {
		return User{}, err
	}

	// TODO: remove the new record when propagation below fails
	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	metrics.UsersCreated.WithLabelValues(strconv.FormatBool(referrer != nil)).Inc()

	if referrer == nil {
		return created, nil
	}

	if err := s.linkReferrer(ctx, *referrer); err != nil {
		metrics.PropagationFailures.Inc()
		s.log.Error("referral propagation failed",
			slog.String("user_id", created.ID),
			slog.String("referrer_id", *referrer),
			slog.Any("error", err))
		return created, err
	}
	return created, nil
}

func (s *Service) linkReferrer(ctx context.Context, referrerID string) error {
	tree, found, err := s.builder.Build(ctx, referrerID)
	if err != nil {
		return err
	}
	if !found {
		s.log.Warn("referrer vanished before propagation", slog.String("referrer_id", referrerID))
		return nil
	}
	metrics.TreeSize.Observe(float64(tree.Size()))

	written, err := s.propagator.Propagate(ctx, referrerID, tree)
	metrics.PropagationDepth.Observe(float64(written))
	if err != nil {
		return err
	}
	s.log.Debug("referral snapshots refreshed",
		slog.String("referrer_id", referrerID),
		slog.Int("written", written))
	return nil
}

// Update applies patch to an existing user and returns the record as it was
// before the update.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (User, error) {
	if err := checkID(id); err != nil {
		return User{}, err
	}
	if patch.Password != nil {
		hashed, err := hashPassword(*patch.Password)
		if err != nil {
			return User{}, err
		}
		patch.Password = &hashed
	}
	return s.repo.Update(ctx, id, patch)
}

func (s *Service) Delete(ctx context.Context, id string) (User, error) {
	if err := checkID(id); err != nil {
		return User{}, err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	return s.repo.DeleteAll(ctx)
}

// ReferralTree returns the user with its stored snapshot. The snapshot is not
// rebuilt and may be stale.
func (s *Service) ReferralTree(ctx context.Context, id string) (User, error) {
	return s.GetByID(ctx, id)
}

// LiveReferralTree rebuilds the user's tree from the current graph without
// storing it.
func (s *Service) LiveReferralTree(ctx context.Context, id string) (referral.Tree, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	tree, found, err := s.builder.Build(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return tree, nil
}

func checkID(id string) error {
	if id == "" {
		return ErrInvalidID
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	return nil
}

func hashPassword(password string) (string, error) {
	if password == "" || looksLikeBcrypt(password) {
		return password, nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func looksLikeBcrypt(value string) bool {
	return len(value) > 4 && value[0:2] == "$2"
}
