package db

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotificationDuplicate means a tracking row already exists for the
// (organization, recipient, application, kind) tuple: the notification was
// already claimed by this or another sync run.
var ErrNotificationDuplicate = errors.New("notification already tracked")

// TrackNotification inserts the at-most-once tracking row. It must be called
// BEFORE the email is sent; the primary key violation is what closes the race
// window between concurrent sync runs.
func (s *Store) TrackNotification(n *NotificationRecord) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO notification_tracking (organization_id, user_email, application_id, kind, sent_at)
		 VALUES (?, ?, ?, ?, ?)`,
		n.OrganizationID, n.UserEmail, n.ApplicationID, n.Kind, now,
	)
	if err != nil {
		if isConstraintErr(err) {
			return ErrNotificationDuplicate
		}
		return fmt.Errorf("track notification: %w", err)
	}
	n.SentAt = now
	return nil
}

// CountNotifications returns the number of tracking rows for an organization
// and kind; used by tests and the dashboard summary.
func (s *Store) CountNotifications(orgID, kind string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM notification_tracking WHERE organization_id = ? AND kind = ?`,
		orgID, kind,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}
