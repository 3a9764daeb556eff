package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type userRepository struct {
	q querier
}

const userSelect = `
	SELECT id, username, email, password_hash, first_name, last_name, is_staff, date_joined
	FROM users`

func scanUser(row interface{ Scan(dest ...any) error }) (domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsStaff, &u.DateJoined); err != nil {
		return domain.User{}, err
	}
	u.DateJoined = u.DateJoined.UTC()
	return u, nil
}

func (r *userRepository) Create(ctx context.Context, u domain.User) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if u.DateJoined.IsZero() {
		u.DateJoined = time.Now().UTC()
	}

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, first_name, last_name, is_staff, date_joined)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.IsStaff, u.DateJoined).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrUsernameTaken
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *userRepository) Get(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	u, err := scanUser(r.q.QueryRowContext(ctx, userSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	u, err := scanUser(r.q.QueryRowContext(ctx, userSelect+` WHERE LOWER(username) = LOWER($1)`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user by username: %w", err)
	}
	return u, nil
}

var _ domain.UserRepository = (*userRepository)(nil)
