package db

import (
	"fmt"
	"time"
)

// UpsertOrgUser inserts a directory user, or refreshes the admin flag when
// the (organization, email) pair already exists.
func (s *Store) UpsertOrgUser(u *OrgUser) error {
	_, err := s.db.Exec(
		`INSERT INTO org_users (id, organization_id, email, is_admin, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (organization_id, email) DO UPDATE SET is_admin = excluded.is_admin`,
		u.ID, u.OrganizationID, u.Email, u.IsAdmin, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert org user: %w", err)
	}
	return nil
}

// ListOrgUsers returns all directory users of an organization.
func (s *Store) ListOrgUsers(orgID string) ([]OrgUser, error) {
	return s.listOrgUsers(
		`SELECT id, organization_id, email, is_admin, created_at
		 FROM org_users WHERE organization_id = ? ORDER BY email`, orgID)
}

// ListOrgAdmins returns the admin users of an organization; these are the
// recipients for new-app notifications.
func (s *Store) ListOrgAdmins(orgID string) ([]OrgUser, error) {
	return s.listOrgUsers(
		`SELECT id, organization_id, email, is_admin, created_at
		 FROM org_users WHERE organization_id = ? AND is_admin = 1 ORDER BY email`, orgID)
}

func (s *Store) listOrgUsers(query, orgID string) ([]OrgUser, error) {
	rows, err := s.db.Query(query, orgID)
	if err != nil {
		return nil, fmt.Errorf("list org users: %w", err)
	}
	defer rows.Close()

	var users []OrgUser
	for rows.Next() {
		var u OrgUser
		if err := rows.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan org user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
