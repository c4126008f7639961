package db

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertApplication inserts a newly discovered application. When a concurrent
// sync already inserted the same (organization, client_ids) row, the insert
// degrades to a timestamp touch and the canonical row ID is returned, so both
// runs converge on one application row.
func (s *Store) UpsertApplication(app *Application) (string, error) {
	now := time.Now().UTC()
	var id string
	err := s.db.QueryRow(
		`INSERT INTO applications
			(id, organization_id, client_ids, name, scopes, risk_tier, category, user_count, management_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (organization_id, client_ids) DO UPDATE SET updated_at = excluded.updated_at
		 RETURNING id`,
		app.ID, app.OrganizationID, app.ClientIDs, app.Name, app.Scopes, app.RiskTier,
		app.Category, app.UserCount, app.ManagementStatus, now, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert application: %w", err)
	}
	return id, nil
}

// UpdateApplication writes the derived fields that the reconciliation engine
// found changed. The row's identity and management status are untouched.
func (s *Store) UpdateApplication(app *Application) error {
	_, err := s.db.Exec(
		`UPDATE applications
		 SET name = ?, scopes = ?, risk_tier = ?, user_count = ?, updated_at = ?
		 WHERE id = ?`,
		app.Name, app.Scopes, app.RiskTier, app.UserCount, time.Now().UTC(), app.ID,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	return nil
}

// UpdateApplicationCategory records the asynchronously derived category.
func (s *Store) UpdateApplicationCategory(appID, category string) error {
	_, err := s.db.Exec(
		`UPDATE applications SET category = ?, updated_at = ? WHERE id = ?`,
		category, time.Now().UTC(), appID,
	)
	if err != nil {
		return fmt.Errorf("update application category: %w", err)
	}
	return nil
}

// SetManagementStatus transitions an application's review state.
// Returns true if the row existed.
func (s *Store) SetManagementStatus(orgID, appID, status string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE applications SET management_status = ?, updated_at = ?
		 WHERE organization_id = ? AND id = ?`,
		status, time.Now().UTC(), orgID, appID,
	)
	if err != nil {
		return false, fmt.Errorf("set management status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetApplication retrieves one application scoped to an organization.
// Returns nil when absent.
func (s *Store) GetApplication(orgID, appID string) (*Application, error) {
	app := &Application{}
	err := s.db.QueryRow(
		`SELECT id, organization_id, client_ids, name, scopes, risk_tier, category, user_count, management_status, created_at, updated_at
		 FROM applications WHERE organization_id = ? AND id = ?`, orgID, appID,
	).Scan(&app.ID, &app.OrganizationID, &app.ClientIDs, &app.Name, &app.Scopes, &app.RiskTier,
		&app.Category, &app.UserCount, &app.ManagementStatus, &app.CreatedAt, &app.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	return app, nil
}

// ListApplications returns all applications of an organization.
func (s *Store) ListApplications(orgID string) ([]Application, error) {
	rows, err := s.db.Query(
		`SELECT id, organization_id, client_ids, name, scopes, risk_tier, category, user_count, management_status, created_at, updated_at
		 FROM applications WHERE organization_id = ? ORDER BY created_at`, orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		var a Application
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.ClientIDs, &a.Name, &a.Scopes, &a.RiskTier,
			&a.Category, &a.UserCount, &a.ManagementStatus, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}
