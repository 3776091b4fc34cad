package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/classigoo/auth-server/internal/model"
)

// OtpRepo defines the interface for OTP repository operations. Rows are
// never deleted; lifecycle is tracked through the expired/used flags.
type OtpRepo interface {
	Create(ctx context.Context, otp model.Otp) (model.Otp, error)
	FindActiveByEmail(ctx context.Context, email string) (model.Otp, error)
	FindByCodeAndToken(ctx context.Context, code, sessionToken string) (model.Otp, error)
	FindByToken(ctx context.Context, sessionToken string) (model.Otp, error)
	ExpireAllForEmail(ctx context.Context, email string) error
	MarkExpired(ctx context.Context, id uuid.UUID) error
	MarkUsed(ctx context.Context, id uuid.UUID) error
	Rotate(ctx context.Context, sessionToken, newCode string) error
}

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a new OtpRepo instance
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

const otpColumns = `id, email, otp, session_token, remember_me, ip, platform, os, device, location, push_token, expired, used, created_at, updated_at`

// Create inserts a new OTP row.
func (r *otpRepo) Create(ctx context.Context, otp model.Otp) (model.Otp, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO otps (email, otp, session_token, remember_me, ip, platform, os, device, location, push_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+otpColumns+`
	`, otp.Email, otp.Code, otp.SessionToken, otp.RememberMe,
		otp.Security.IP, otp.Security.Platform, otp.Security.OS,
		otp.Security.Device, otp.Security.Location, otp.PushToken)

	created, err := scanOtp(row)
	if err != nil {
		return model.Otp{}, fmt.Errorf("insert otp: %w", err)
	}
	return created, nil
}

// FindActiveByEmail returns the latest non-expired OTP for the email.
func (r *otpRepo) FindActiveByEmail(ctx context.Context, email string) (model.Otp, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+otpColumns+` FROM otps
		WHERE email = $1 AND expired = false
		ORDER BY updated_at DESC
		LIMIT 1
	`, email)

	otp, err := scanOtp(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Otp{}, fmt.Errorf("active otp for %s: %w", email, ErrNotFound)
		}
		return model.Otp{}, fmt.Errorf("query active otp: %w", err)
	}
	return otp, nil
}

// FindByCodeAndToken returns the OTP matching both the submitted code and the
// session token. Both must match the same row.
func (r *otpRepo) FindByCodeAndToken(ctx context.Context, code, sessionToken string) (model.Otp, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+otpColumns+` FROM otps
		WHERE otp = $1 AND session_token = $2
	`, code, sessionToken)

	otp, err := scanOtp(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Otp{}, fmt.Errorf("otp by code and token: %w", ErrNotFound)
		}
		return model.Otp{}, fmt.Errorf("query otp by code and token: %w", err)
	}
	return otp, nil
}

// FindByToken returns the OTP for the session token regardless of flags.
func (r *otpRepo) FindByToken(ctx context.Context, sessionToken string) (model.Otp, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+otpColumns+` FROM otps WHERE session_token = $1
	`, sessionToken)

	otp, err := scanOtp(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Otp{}, fmt.Errorf("otp by token: %w", ErrNotFound)
		}
		return model.Otp{}, fmt.Errorf("query otp by token: %w", err)
	}
	return otp, nil
}

// ExpireAllForEmail flags every non-expired OTP for the email. Run before
// inserting a replacement so at most one active OTP exists per email.
func (r *otpRepo) ExpireAllForEmail(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE otps SET expired = true, updated_at = now()
		WHERE email = $1 AND expired = false
	`, email)
	if err != nil {
		return fmt.Errorf("expire otps for email: %w", err)
	}
	return nil
}

// MarkExpired flags a single OTP as expired (freshness-window lapse).
func (r *otpRepo) MarkExpired(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE otps SET expired = true, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark otp expired: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("otp %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkUsed consumes the OTP: used and expired in one write.
func (r *otpRepo) MarkUsed(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE otps SET used = true, expired = true, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark otp used: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("otp %s: %w", id, ErrNotFound)
	}
	return nil
}

// Rotate overwrites the code in place for a resend: same row, same session
// token, fresh updated_at, expired cleared.
func (r *otpRepo) Rotate(ctx context.Context, sessionToken, newCode string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE otps SET otp = $2, expired = false, updated_at = now()
		WHERE session_token = $1
	`, sessionToken, newCode)
	if err != nil {
		return fmt.Errorf("rotate otp: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("otp for token: %w", ErrNotFound)
	}
	return nil
}

func scanOtp(row *sql.Row) (model.Otp, error) {
	var otp model.Otp
	var idStr string
	var pushToken sql.NullString

	err := row.Scan(
		&idStr,
		&otp.Email,
		&otp.Code,
		&otp.SessionToken,
		&otp.RememberMe,
		&otp.Security.IP,
		&otp.Security.Platform,
		&otp.Security.OS,
		&otp.Security.Device,
		&otp.Security.Location,
		&pushToken,
		&otp.Expired,
		&otp.Used,
		&otp.CreatedAt,
		&otp.UpdatedAt,
	)
	if err != nil {
		return model.Otp{}, err
	}

	otp.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Otp{}, fmt.Errorf("parse otp ID: %w", err)
	}
	if pushToken.Valid {
		otp.PushToken = &pushToken.String
	}

	return otp, nil
}
