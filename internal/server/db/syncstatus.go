package db

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertSyncStatus records a new sync attempt row. One row per attempt;
// token rotation inserts fresh rows instead of rewriting old ones.
func (s *Store) InsertSyncStatus(st *SyncStatus) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO sync_statuses
			(id, organization_id, status, progress, message, access_token_enc, refresh_token_enc, token_expiry, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.OrganizationID, st.Status, st.Progress, st.Message,
		st.AccessTokenEnc, st.RefreshTokenEnc, st.TokenExpiry, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert sync status: %w", err)
	}
	st.CreatedAt = now
	st.UpdatedAt = now
	return nil
}

// UpdateSyncProgress advances a sync row's state. Progress never moves
// backwards: MAX() keeps checkpoints monotone even if stages race.
func (s *Store) UpdateSyncProgress(id, status string, progress int, message string) error {
	_, err := s.db.Exec(
		`UPDATE sync_statuses
		 SET status = ?, progress = MAX(progress, ?), message = ?, updated_at = ?
		 WHERE id = ?`,
		status, progress, message, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update sync progress: %w", err)
	}
	return nil
}

// GetSyncStatus retrieves one sync attempt. Returns nil when absent.
func (s *Store) GetSyncStatus(id string) (*SyncStatus, error) {
	st := &SyncStatus{}
	err := s.db.QueryRow(
		`SELECT id, organization_id, status, progress, message, access_token_enc, refresh_token_enc, token_expiry, created_at, updated_at
		 FROM sync_statuses WHERE id = ?`, id,
	).Scan(&st.ID, &st.OrganizationID, &st.Status, &st.Progress, &st.Message,
		&st.AccessTokenEnc, &st.RefreshTokenEnc, &st.TokenExpiry, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync status: %w", err)
	}
	return st, nil
}

// LatestCompletedSync returns the newest COMPLETED sync row carrying tokens;
// it is the credential source for the next scheduled run. Returns nil when
// the organization has never completed a credential refresh.
func (s *Store) LatestCompletedSync(orgID string) (*SyncStatus, error) {
	st := &SyncStatus{}
	err := s.db.QueryRow(
		`SELECT id, organization_id, status, progress, message, access_token_enc, refresh_token_enc, token_expiry, created_at, updated_at
		 FROM sync_statuses
		 WHERE organization_id = ? AND status = ? AND refresh_token_enc IS NOT NULL
		 ORDER BY created_at DESC LIMIT 1`, orgID, SyncCompleted,
	).Scan(&st.ID, &st.OrganizationID, &st.Status, &st.Progress, &st.Message,
		&st.AccessTokenEnc, &st.RefreshTokenEnc, &st.TokenExpiry, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed sync: %w", err)
	}
	return st, nil
}

// ListSyncStatuses returns an organization's sync history, newest first.
func (s *Store) ListSyncStatuses(orgID string, limit int) ([]SyncStatus, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, organization_id, status, progress, message, access_token_enc, refresh_token_enc, token_expiry, created_at, updated_at
		 FROM sync_statuses WHERE organization_id = ?
		 ORDER BY created_at DESC LIMIT ?`, orgID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync statuses: %w", err)
	}
	defer rows.Close()

	var sts []SyncStatus
	for rows.Next() {
		var st SyncStatus
		if err := rows.Scan(&st.ID, &st.OrganizationID, &st.Status, &st.Progress, &st.Message,
			&st.AccessTokenEnc, &st.RefreshTokenEnc, &st.TokenExpiry, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sync status: %w", err)
		}
		sts = append(sts, st)
	}
	return sts, rows.Err()
}
