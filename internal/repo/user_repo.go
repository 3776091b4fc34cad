package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/classigoo/auth-server/internal/model"
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	Create(ctx context.Context, name, email, role, avatarURL string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (model.User, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, name, email, role, status, avatar_url, subscription_status, sessions, created_at, updated_at`

// Create inserts a new user with status=pending and an inactive subscription stub.
func (r *userRepo) Create(ctx context.Context, name, email, role, avatarURL string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, role, status, avatar_url, subscription_status)
		VALUES ($1, $2, $3, $4, $5, 'inactive')
		RETURNING `+userColumns+`
	`, name, email, role, model.StatusPending, avatarURL)

	user, err := scanUser(row)
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// FindByEmail retrieves a user by lowercased email
func (r *userRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1
	`, email)

	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("query user by email: %w", err)
	}
	return user, nil
}

// FindByID retrieves a user by ID
func (r *userRepo) FindByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id)

	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("query user by id: %w", err)
	}
	return user, nil
}

// SetStatus updates the user's lifecycle status.
func (r *userRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var user model.User
	var idStr string
	var sessionStrs pq.StringArray

	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.Status,
		&user.AvatarURL,
		&user.SubscriptionStatus,
		&sessionStrs,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, err
	}

	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("parse user ID: %w", err)
	}

	for _, s := range sessionStrs {
		sid, err := uuid.Parse(s)
		if err != nil {
			return model.User{}, fmt.Errorf("parse session ref %q: %w", s, err)
		}
		user.Sessions = append(user.Sessions, sid)
	}

	return user, nil
}
