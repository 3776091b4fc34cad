package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/classigoo/auth-server/internal/model"
)

// BlacklistRepo defines the interface for per-IP lockout rows. The counter
// mutations are single-statement atomic so concurrent validations from the
// same IP are counted correctly across service instances.
type BlacklistRepo interface {
	Find(ctx context.Context, ip string) (model.Blacklist, error)
	IncrementAttempts(ctx context.Context, ip string) (model.Blacklist, error)
	Block(ctx context.Context, ip string, until time.Time) error
	Unblock(ctx context.Context, ip string) error
	ResetAttempts(ctx context.Context, ip string) error
}

type blacklistRepo struct {
	db *sql.DB
}

// NewBlacklistRepo creates a new BlacklistRepo instance
func NewBlacklistRepo(db *sql.DB) BlacklistRepo {
	return &blacklistRepo{db: db}
}

const blacklistColumns = `id, ip_address, attempts, blocked_until, is_blocked, is_permanently_blocked, created_at, updated_at`

// Find returns the lockout row for the IP.
func (r *blacklistRepo) Find(ctx context.Context, ip string) (model.Blacklist, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+blacklistColumns+` FROM blacklist WHERE ip_address = $1
	`, ip)

	bl, err := scanBlacklist(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Blacklist{}, fmt.Errorf("blacklist %s: %w", ip, ErrNotFound)
		}
		return model.Blacklist{}, fmt.Errorf("query blacklist: %w", err)
	}
	return bl, nil
}

// IncrementAttempts bumps the attempt counter by one, creating the row on
// first contact. Upsert keeps the read-modify-write in a single statement.
func (r *blacklistRepo) IncrementAttempts(ctx context.Context, ip string) (model.Blacklist, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO blacklist (ip_address, attempts)
		VALUES ($1, 1)
		ON CONFLICT (ip_address)
		DO UPDATE SET attempts = blacklist.attempts + 1, updated_at = now()
		RETURNING `+blacklistColumns+`
	`, ip)

	bl, err := scanBlacklist(row)
	if err != nil {
		return model.Blacklist{}, fmt.Errorf("increment attempts: %w", err)
	}
	return bl, nil
}

// Block trips the lock: counter zeroed, blocked flag set, deadline recorded.
func (r *blacklistRepo) Block(ctx context.Context, ip string, until time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE blacklist
		SET attempts = 0, blocked_until = $2, is_blocked = true, updated_at = now()
		WHERE ip_address = $1
	`, ip, until)
	if err != nil {
		return fmt.Errorf("block ip: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("blacklist %s: %w", ip, ErrNotFound)
	}
	return nil
}

// Unblock clears an elapsed lock: counter, deadline and flag together.
func (r *blacklistRepo) Unblock(ctx context.Context, ip string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE blacklist
		SET attempts = 0, blocked_until = NULL, is_blocked = false, updated_at = now()
		WHERE ip_address = $1
	`, ip)
	if err != nil {
		return fmt.Errorf("unblock ip: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("blacklist %s: %w", ip, ErrNotFound)
	}
	return nil
}

// ResetAttempts zeroes the counter only; an active lock is left untouched.
func (r *blacklistRepo) ResetAttempts(ctx context.Context, ip string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE blacklist SET attempts = 0, updated_at = now() WHERE ip_address = $1
	`, ip)
	if err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("blacklist %s: %w", ip, ErrNotFound)
	}
	return nil
}

func scanBlacklist(row *sql.Row) (model.Blacklist, error) {
	var bl model.Blacklist
	var idStr string
	var blockedUntil sql.NullTime

	err := row.Scan(
		&idStr,
		&bl.IPAddress,
		&bl.Attempts,
		&blockedUntil,
		&bl.IsBlocked,
		&bl.IsPermanentlyBlocked,
		&bl.CreatedAt,
		&bl.UpdatedAt,
	)
	if err != nil {
		return model.Blacklist{}, err
	}

	bl.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Blacklist{}, fmt.Errorf("parse blacklist ID: %w", err)
	}
	if blockedUntil.Valid {
		bl.BlockedUntil = &blockedUntil.Time
	}

	return bl, nil
}
