package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wichananm65/referral-service/internal/referral"
)

type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*PostgresRepository)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, full_name, username, email, phone, password, role, referral_code, referrer, referral_tree, deed_energy, wallet_address, created_at, updated_at`

const (
	createUsersTable = `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			full_name TEXT NOT NULL,
			username TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL,
			password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			referral_code TEXT NOT NULL UNIQUE,
			referrer UUID,
			referral_tree JSONB NOT NULL DEFAULT '[]',
			deed_energy DOUBLE PRECISION NOT NULL DEFAULT 0,
			wallet_address TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`
	createReferrerIndex = `CREATE INDEX IF NOT EXISTS users_referrer_idx ON users (referrer)`

	listUsersQuery         = `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id`
	getUserByIDQuery       = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	getUserByCodeQuery     = `SELECT ` + userColumns + ` FROM users WHERE referral_code = $1`
	listByReferrerQuery    = `SELECT ` + userColumns + ` FROM users WHERE referrer = $1 ORDER BY created_at, id`
	lockUserByIDQuery      = `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	referralCodeExistQuery = `SELECT EXISTS (SELECT 1 FROM users WHERE referral_code = $1)`

	insertUserQuery = `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	updateUserQuery = `
		UPDATE users
		SET full_name = COALESCE($2, full_name),
			username = COALESCE($3, username),
			email = COALESCE($4, email),
			phone = COALESCE($5, phone),
			password = COALESCE($6, password),
			role = COALESCE($7, role),
			deed_energy = COALESCE($8, deed_energy),
			wallet_address = COALESCE($9, wallet_address),
			updated_at = $10
		WHERE id = $1
	`
	setReferralTreeQuery = `UPDATE users SET referral_tree = $2, updated_at = $3 WHERE id = $1`
	deleteUserQuery      = `DELETE FROM users WHERE id = $1 RETURNING ` + userColumns
	deleteAllUsersQuery  = `DELETE FROM users`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates the users table and the referrer index when missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, createReferrerIndex); err != nil {
		return fmt.Errorf("create referrer index: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]User, error) {
	return r.queryUsers(ctx, listUsersQuery)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (User, error) {
	return r.queryUser(ctx, getUserByIDQuery, id)
}

func (r *PostgresRepository) GetByReferralCode(ctx context.Context, code string) (User, error) {
	return r.queryUser(ctx, getUserByCodeQuery, code)
}

func (r *PostgresRepository) ListByReferrer(ctx context.Context, referrerID string) ([]User, error) {
	return r.queryUsers(ctx, listByReferrerQuery, referrerID)
}

func (r *PostgresRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, referralCodeExistQuery, code).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user User) (User, error) {
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

	tree, err := json.Marshal(user.ReferralTree)
	if err != nil {
		return User{}, err
	}

	_, err = r.db.ExecContext(ctx, insertUserQuery,
		user.ID,
		user.FullName,
		user.Username,
		user.Email,
		user.Phone,
		user.Password,
		user.Role,
		user.ReferralCode,
		nullString(user.Referrer),
		tree,
		user.DeedEnergy,
		nullString(user.WalletAddress),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, patch Patch) (User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	defer tx.Rollback()

	before, err := scanUser(tx.QueryRowContext(ctx, lockUserByIDQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}

	var deedEnergy sql.NullFloat64
	if patch.DeedEnergy != nil {
		deedEnergy = sql.NullFloat64{Float64: *patch.DeedEnergy, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, updateUserQuery,
		id,
		nullString(patch.FullName),
		nullString(patch.Username),
		nullString(patch.Email),
		nullString(patch.Phone),
		nullString(patch.Password),
		nullString(patch.Role),
		deedEnergy,
		nullString(patch.WalletAddress),
		r.now(),
	); err != nil {
		return User{}, err
	}

	if err := tx.Commit(); err != nil {
		return User{}, err
	}
	return before, nil
}

func (r *PostgresRepository) SetReferralTree(ctx context.Context, id string, tree referral.Tree) error {
	if tree == nil {
		tree = referral.Tree{}
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, setReferralTreeQuery, id, raw, r.now())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (User, error) {
	return r.queryUser(ctx, deleteUserQuery, id)
}

func (r *PostgresRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, deleteAllUsersQuery)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PostgresRepository) queryUser(ctx context.Context, query string, args ...any) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

func (r *PostgresRepository) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(scanner rowScanner) (User, error) {
	user := User{}
	var referrer sql.NullString
	var wallet sql.NullString
	var tree []byte

	if err := scanner.Scan(
		&user.ID,
		&user.FullName,
		&user.Username,
		&user.Email,
		&user.Phone,
		&user.Password,
		&user.Role,
		&user.ReferralCode,
		&referrer,
		&tree,
		&user.DeedEnergy,
		&wallet,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return User{}, err
	}

	if referrer.Valid {
		user.Referrer = &referrer.String
	}
	if wallet.Valid {
		user.WalletAddress = &wallet.String
	}

	user.ReferralTree = referral.Tree{}
	if len(tree) > 0 {
		if err := json.Unmarshal(tree, &user.ReferralTree); err != nil {
			return User{}, fmt.Errorf("decode referral tree of %s: %w", user.ID, err)
		}
	}

	return user, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
