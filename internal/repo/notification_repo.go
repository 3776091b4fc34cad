package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/classigoo/auth-server/internal/model"
)

// NotificationRepo stores in-app auth notifications (welcome, new-login).
type NotificationRepo interface {
	Create(ctx context.Context, n model.AuthNotification) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]model.AuthNotification, error)
}

type notificationRepo struct {
	db *sql.DB
}

// NewNotificationRepo creates a new NotificationRepo instance
func NewNotificationRepo(db *sql.DB) NotificationRepo {
	return &notificationRepo{db: db}
}

// Create inserts a notification row.
func (r *notificationRepo) Create(ctx context.Context, n model.AuthNotification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_notifications (user_id, image_url, title, description, link)
		VALUES ($1, $2, $3, $4, $5)
	`, n.UserID, n.ImageURL, n.Title, n.Description, n.Link)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListForUser returns the user's notifications, newest first.
func (r *notificationRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.AuthNotification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, image_url, title, description, link, is_read, created_at
		FROM auth_notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []model.AuthNotification
	for rows.Next() {
		var n model.AuthNotification
		var idStr, userIDStr string
		var imageURL, link sql.NullString
		if err := rows.Scan(&idStr, &userIDStr, &imageURL, &n.Title, &n.Description, &link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse notification ID: %w", err)
		}
		n.UserID, err = uuid.Parse(userIDStr)
		if err != nil {
			return nil, fmt.Errorf("parse notification user ID: %w", err)
		}
		if imageURL.Valid {
			n.ImageURL = &imageURL.String
		}
		if link.Valid {
			n.Link = &link.String
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
