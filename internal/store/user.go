package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/types"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// UserRepository handles persistence for users in Postgres.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `
		SELECT id, name, email, age, password_hash, tokens, created_at, updated_at
		FROM users
		WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT id, name, email, age, password_hash, tokens, created_at, updated_at
		FROM users
		WHERE email = $1`
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (types.User, error) {
	var user types.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Age,
		&user.PasswordHash,
		pq.Array(&user.Tokens),
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Tokens == nil {
		user.Tokens = []string{}
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, name, email, age, password_hash, tokens, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Name,
		user.Email,
		user.Age,
		user.PasswordHash,
		pq.Array(user.Tokens),
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		return types.User{}, mapWriteError(err)
	}
	return user, nil
}

// Update overwrites the profile columns. Tokens and avatar have their own statements.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET name = $1,
			email = $2,
			age = $3,
			password_hash = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.Age,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, mapWriteError(err)
	}
	if err := expectAffected(result); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *UserRepository) AddToken(ctx context.Context, id, token string) error {
	const query = `UPDATE users SET tokens = array_append(tokens, $1), updated_at = $2 WHERE id = $3`
	return r.exec(ctx, query, token, time.Now(), id)
}

func (r *UserRepository) RemoveToken(ctx context.Context, id, token string) error {
	const query = `UPDATE users SET tokens = array_remove(tokens, $1), updated_at = $2 WHERE id = $3`
	return r.exec(ctx, query, token, time.Now(), id)
}

func (r *UserRepository) ClearTokens(ctx context.Context, id string) error {
	const query = `UPDATE users SET tokens = '{}', updated_at = $1 WHERE id = $2`
	return r.exec(ctx, query, time.Now(), id)
}

// SetAvatar stores data on the user row. Empty data clears the avatar.
func (r *UserRepository) SetAvatar(ctx context.Context, id string, data []byte) error {
	var value any
	if len(data) > 0 {
		value = data
	}
	const query = `UPDATE users SET avatar = $1, updated_at = $2 WHERE id = $3`
	return r.exec(ctx, query, value, time.Now(), id)
}

// GetAvatar returns nil data when the user exists without an avatar.
func (r *UserRepository) GetAvatar(ctx context.Context, id string) ([]byte, error) {
	const query = `SELECT avatar FROM users WHERE id = $1`
	var data []byte
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}
