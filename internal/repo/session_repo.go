package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/classigoo/auth-server/internal/model"
)

// SessionRepo defines the interface for session repository operations
type SessionRepo interface {
	Create(ctx context.Context, session model.Session) (model.Session, error)
	FindActive(ctx context.Context, userID uuid.UUID, sessionToken string) (model.Session, error)
	MarkExpired(ctx context.Context, id uuid.UUID) error
}

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

const sessionColumns = `id, user_id, session_token, session_expiry, ip, platform, os, device, location, push_token, expired, created_at, updated_at`

// Create inserts a session and appends its id to the owning user's session
// list in the same transaction, so the cross-check in the access guard never
// observes one without the other.
func (r *sessionRepo) Create(ctx context.Context, session model.Session) (model.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Session{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO sessions (user_id, session_token, session_expiry, ip, platform, os, device, location, push_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+sessionColumns+`
	`, session.UserID, session.SessionToken, session.SessionExpiry,
		session.Security.IP, session.Security.Platform, session.Security.OS,
		session.Security.Device, session.Security.Location, session.PushToken)

	created, err := scanSession(row)
	if err != nil {
		return model.Session{}, fmt.Errorf("insert session: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE users SET sessions = array_append(sessions, $2), updated_at = now()
		WHERE id = $1
	`, session.UserID, created.ID)
	if err != nil {
		return model.Session{}, fmt.Errorf("append session to user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return model.Session{}, fmt.Errorf("user %s: %w", session.UserID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return model.Session{}, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// FindActive returns the non-expired session for (user, token).
func (r *sessionRepo) FindActive(ctx context.Context, userID uuid.UUID, sessionToken string) (model.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND session_token = $2 AND expired = false
	`, userID, sessionToken)

	session, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Session{}, fmt.Errorf("active session: %w", ErrNotFound)
		}
		return model.Session{}, fmt.Errorf("query session: %w", err)
	}
	return session, nil
}

// MarkExpired flags a session whose absolute expiry has passed (lazy expiry,
// written back by the access guard on detection).
func (r *sessionRepo) MarkExpired(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET expired = true, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark session expired: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanSession(row *sql.Row) (model.Session, error) {
	var session model.Session
	var idStr, userIDStr string
	var pushToken sql.NullString

	err := row.Scan(
		&idStr,
		&userIDStr,
		&session.SessionToken,
		&session.SessionExpiry,
		&session.Security.IP,
		&session.Security.Platform,
		&session.Security.OS,
		&session.Security.Device,
		&session.Security.Location,
		&pushToken,
		&session.Expired,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return model.Session{}, err
	}

	session.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Session{}, fmt.Errorf("parse session ID: %w", err)
	}
	session.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return model.Session{}, fmt.Errorf("parse session user ID: %w", err)
	}
	if pushToken.Valid {
		session.PushToken = &pushToken.String
	}

	return session, nil
}
