package db

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertRelation inserts a user↔application relation, or reactivates and
// updates the existing row for the same (user_email, application_id) pair.
// The caller passes the final merged scope set; merging happens in the
// reconciliation engine, the conflict clause only keeps concurrent runs and
// restarts convergent. Returns the canonical relation ID.
func (s *Store) UpsertRelation(r *UserAppRelation) (string, error) {
	now := time.Now().UTC()
	var id string
	err := s.db.QueryRow(
		`INSERT INTO user_app_relations
			(id, organization_id, user_email, application_id, scopes, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_email, application_id) DO UPDATE SET
			scopes = excluded.scopes,
			status = excluded.status,
			updated_at = excluded.updated_at
		 RETURNING id`,
		r.ID, r.OrganizationID, r.UserEmail, r.ApplicationID, r.Scopes, r.Status, now, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert relation: %w", err)
	}
	return id, nil
}

// MarkRelationRemoved soft-deletes a relation. The row is kept for audit.
func (s *Store) MarkRelationRemoved(id string) error {
	_, err := s.db.Exec(
		`UPDATE user_app_relations SET status = ?, updated_at = ? WHERE id = ?`,
		RelationRemoved, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark relation removed: %w", err)
	}
	return nil
}

// ListRelations returns all relations of an organization, ACTIVE and REMOVED.
func (s *Store) ListRelations(orgID string) ([]UserAppRelation, error) {
	return s.listRelations(
		`SELECT id, organization_id, user_email, application_id, scopes, status, created_at, updated_at
		 FROM user_app_relations WHERE organization_id = ? ORDER BY created_at`, orgID)
}

// ListRelationsForApp returns all relations of one application.
func (s *Store) ListRelationsForApp(orgID, appID string) ([]UserAppRelation, error) {
	rows, err := s.db.Query(
		`SELECT id, organization_id, user_email, application_id, scopes, status, created_at, updated_at
		 FROM user_app_relations WHERE organization_id = ? AND application_id = ? ORDER BY user_email`,
		orgID, appID,
	)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

func (s *Store) listRelations(query, orgID string) ([]UserAppRelation, error) {
	rows, err := s.db.Query(query, orgID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

func scanRelations(rows *sql.Rows) ([]UserAppRelation, error) {
	var rels []UserAppRelation
	for rows.Next() {
		var r UserAppRelation
		if err := rows.Scan(&r.ID, &r.OrganizationID, &r.UserEmail, &r.ApplicationID,
			&r.Scopes, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}
