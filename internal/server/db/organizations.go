package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for organization operations.
var (
	ErrOrganizationDuplicate = errors.New("organization already exists")
)

// CreateOrganization inserts a new organization.
func (s *Store) CreateOrganization(org *Organization) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO organizations (id, domain, name, provider, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		org.ID, org.Domain, org.Name, org.Provider, now, now,
	)
	if err != nil {
		if isConstraintErr(err) {
			return ErrOrganizationDuplicate
		}
		return fmt.Errorf("insert organization: %w", err)
	}
	org.CreatedAt = now
	org.UpdatedAt = now
	return nil
}

// GetOrganization retrieves an organization by ID. Returns nil when absent.
func (s *Store) GetOrganization(id string) (*Organization, error) {
	org := &Organization{}
	err := s.db.QueryRow(
		`SELECT id, domain, name, provider, created_at, updated_at
		 FROM organizations WHERE id = ?`, id,
	).Scan(&org.ID, &org.Domain, &org.Name, &org.Provider, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return org, nil
}

// GetOrganizationByDomain retrieves an organization by its provider domain.
func (s *Store) GetOrganizationByDomain(domain string) (*Organization, error) {
	org := &Organization{}
	err := s.db.QueryRow(
		`SELECT id, domain, name, provider, created_at, updated_at
		 FROM organizations WHERE domain = ?`, domain,
	).Scan(&org.ID, &org.Domain, &org.Name, &org.Provider, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization by domain: %w", err)
	}
	return org, nil
}

// TouchOrganization bumps updated_at; called once per completed sync.
func (s *Store) TouchOrganization(id string) error {
	_, err := s.db.Exec(
		`UPDATE organizations SET updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("touch organization: %w", err)
	}
	return nil
}

// ListOrganizations returns all organizations ordered by creation time.
func (s *Store) ListOrganizations() ([]Organization, error) {
	rows, err := s.db.Query(
		`SELECT id, domain, name, provider, created_at, updated_at
		 FROM organizations ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Domain, &o.Name, &o.Provider, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}
