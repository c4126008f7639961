// Package client is the HTTP client the oversight CLI uses to talk to the
// server's admin API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oversight-hq/oversight/internal/server/db"
)

// Client calls the oversight server's v1 API with the admin token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New returns a client for the given server URL. Trailing slashes are
// stripped so path joining stays predictable.
func New(serverURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(serverURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is the {"error": "..."} shape every handler returns on failure.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var ae apiError
		if json.NewDecoder(resp.Body).Decode(&ae) == nil && ae.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, ae.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CreateOrg registers an organization.
func (c *Client) CreateOrg(ctx context.Context, domain, name, provider string) (*db.Organization, error) {
	var org db.Organization
	err := c.do(ctx, http.MethodPost, "/v1/orgs", map[string]string{
		"domain": domain, "name": name, "provider": provider,
	}, &org)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// ListOrgs lists registered organizations.
func (c *Client) ListOrgs(ctx context.Context) ([]db.Organization, error) {
	var orgs []db.Organization
	if err := c.do(ctx, http.MethodGet, "/v1/orgs", nil, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// TriggerSyncResponse is the 202 body of a sync trigger.
type TriggerSyncResponse struct {
	SyncID string `json:"sync_id"`
	Status string `json:"status"`
}

// TriggerSync starts a sync run. refreshToken may be empty when the server
// holds a stored rotated token for the organization.
func (c *Client) TriggerSync(ctx context.Context, orgID, refreshToken string) (*TriggerSyncResponse, error) {
	body := map[string]string{}
	if refreshToken != "" {
		body["refresh_token"] = refreshToken
	}
	var resp TriggerSyncResponse
	if err := c.do(ctx, http.MethodPost, "/v1/orgs/"+orgID+"/syncs", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSync polls one sync attempt.
func (c *Client) GetSync(ctx context.Context, orgID, syncID string) (*db.SyncStatus, error) {
	var st db.SyncStatus
	if err := c.do(ctx, http.MethodGet, "/v1/orgs/"+orgID+"/syncs/"+syncID, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// WaitForSync polls until the sync reaches a terminal state or ctx expires.
func (c *Client) WaitForSync(ctx context.Context, orgID, syncID string, interval time.Duration) (*db.SyncStatus, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		st, err := c.GetSync(ctx, orgID, syncID)
		if err != nil {
			return nil, err
		}
		switch st.Status {
		case db.SyncCompleted, db.SyncCompletedWithErrors, db.SyncFailed:
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-t.C:
		}
	}
}

// ListSyncs lists an organization's sync history, newest first.
func (c *Client) ListSyncs(ctx context.Context, orgID string, limit int) ([]db.SyncStatus, error) {
	path := "/v1/orgs/" + orgID + "/syncs"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var sts []db.SyncStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &sts); err != nil {
		return nil, err
	}
	return sts, nil
}

// ListApps lists discovered applications, optionally filtered.
func (c *Client) ListApps(ctx context.Context, orgID, risk, status string) ([]db.Application, error) {
	path := "/v1/orgs/" + orgID + "/apps"
	sep := "?"
	if risk != "" {
		path += sep + "risk=" + risk
		sep = "&"
	}
	if status != "" {
		path += sep + "status=" + status
	}
	var apps []db.Application
	if err := c.do(ctx, http.MethodGet, path, nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// SetAppStatus transitions an application's management status.
func (c *Client) SetAppStatus(ctx context.Context, orgID, appID, status string) error {
	return c.do(ctx, http.MethodPut, "/v1/orgs/"+orgID+"/apps/"+appID+"/status",
		map[string]string{"status": status}, nil)
}

// ListAppUsers lists the user relations of one application.
func (c *Client) ListAppUsers(ctx context.Context, orgID, appID string) ([]db.UserAppRelation, error) {
	var rels []db.UserAppRelation
	if err := c.do(ctx, http.MethodGet, "/v1/orgs/"+orgID+"/apps/"+appID+"/users", nil, &rels); err != nil {
		return nil, err
	}
	return rels, nil
}
