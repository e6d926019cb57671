package storage

import (
	"context"

	"github.com/clinicazen/platform/services/booking-service/internal/model"
)

func (s *Store) InsertNotification(ctx context.Context, n model.Notification) (model.Notification, error) {
	var appointmentID any
	if n.AppointmentID != "" {
		appointmentID = n.AppointmentID
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, kind, title, message, appointment_id)
		VALUES ($1, $2, $3, $4, $5::uuid)
		RETURNING id::text, read, created_at
	`, n.UserID, string(n.Kind), n.Title, n.Message, appointmentID).Scan(&n.ID, &n.Read, &n.CreatedAt)
	return n, err
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, user_id::text, kind, title, message, COALESCE(appointment_id::text, ''), read, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT read)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var (
			n    model.Notification
			kind string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Message, &n.AppointmentID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Kind = model.NotificationKind(kind)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationsRead marks the given notifications of userID as read, or
// all of them when ids is empty.
func (s *Store) MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		tag, err := s.pool.Exec(ctx, `UPDATE notifications SET read = true WHERE user_id = $1 AND NOT read`, userID)
		return tag.RowsAffected(), err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read = true
		WHERE user_id = $1 AND id = ANY($2::uuid[]) AND NOT read
	`, userID, ids)
	return tag.RowsAffected(), err
}

// DeleteNotification removes one notification owned by userID and reports
// whether it existed.
func (s *Store) DeleteNotification(ctx context.Context, userID, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
