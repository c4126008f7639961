package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oversight-hq/oversight/internal/batch"
	"github.com/oversight-hq/oversight/internal/mailer"
	"github.com/oversight-hq/oversight/internal/provider"
	"github.com/oversight-hq/oversight/internal/server/db"
	"github.com/oversight-hq/oversight/internal/server/handler"
	"github.com/oversight-hq/oversight/internal/sync"
)

type staticSource struct {
	users  []provider.DirectoryUser
	grants []provider.Grant
}

func (s *staticSource) Name() string { return db.ProviderGoogle }
func (s *staticSource) FetchUsers(ctx context.Context, tokens provider.Tokens) ([]provider.DirectoryUser, error) {
	return s.users, nil
}
func (s *staticSource) FetchGrants(ctx context.Context, tokens provider.Tokens, users []provider.DirectoryUser) ([]provider.Grant, error) {
	return s.grants, nil
}

// setupTestServer wires the real router and store to a pipeline fed by a
// static in-memory grant source, so the whole trigger→poll→inspect flow runs
// without a network identity provider.
func setupTestServer(t *testing.T, src *staticSource) (*httptest.Server, *db.Store) {
	t.Helper()
	store, err := db.NewStore(filepath.Join(t.TempDir(), "oversight.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var masterKey [32]byte
	for i := range masterKey {
		masterKey[i] = byte(i)
	}
	guard := &sync.RefreshGuard{
		Store:     store,
		MasterKey: masterKey,
		Refresh: func(ctx context.Context, refreshToken string) (provider.Tokens, error) {
			return provider.Tokens{AccessToken: "access", RefreshToken: "rotated"}, nil
		},
	}
	deps := sync.Deps{
		Store:  store,
		Mailer: mailer.Discard{},
		Source: src,
		Guard:  guard,
		Batch:  batch.Options{Size: 10},
	}
	start := func(org *db.Organization, syncID, refreshToken string) error {
		go func() {
			_ = sync.Run(context.Background(), deps, sync.Params{
				OrganizationID: org.ID,
				SyncID:         syncID,
				RefreshToken:   refreshToken,
			})
		}()
		return nil
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	v1 := r.Group("/v1")
	v1.POST("/orgs", handler.HandleCreateOrg(store))
	v1.POST("/orgs/:id/syncs", handler.HandleTriggerSync(store, start))
	v1.GET("/orgs/:id/syncs/:sid", handler.HandleGetSync(store))
	v1.GET("/orgs/:id/apps", handler.HandleListApps(store))
	v1.PUT("/orgs/:id/apps/:appID/status", handler.HandleSetAppStatus(store))
	v1.GET("/orgs/:id/apps/:appID/users", handler.HandleListAppUsers(store))

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, store
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestFullSyncFlow(t *testing.T) {
	src := &staticSource{
		users: []provider.DirectoryUser{
			{Email: "admin@corp.test", IsAdmin: true},
			{Email: "anna@corp.test"},
		},
		grants: []provider.Grant{
			{ClientID: "c1", DisplayName: "Slack", UserEmail: "anna@corp.test",
				Scopes: []string{"openid", "email"}},
			{ClientID: "c2", DisplayName: "Backup Tool", UserEmail: "admin@corp.test",
				Scopes: []string{"https://www.googleapis.com/auth/drive"}},
		},
	}
	ts, _ := setupTestServer(t, src)

	var org db.Organization
	if code := postJSON(t, ts.URL+"/v1/orgs", map[string]string{
		"domain": "corp.test", "name": "Corp", "provider": "google",
	}, &org); code != http.StatusCreated {
		t.Fatalf("create org: %d", code)
	}

	var trig struct {
		SyncID string `json:"sync_id"`
	}
	if code := postJSON(t, ts.URL+"/v1/orgs/"+org.ID+"/syncs",
		map[string]string{"refresh_token": "seed"}, &trig); code != http.StatusAccepted {
		t.Fatalf("trigger sync: %d", code)
	}

	// Poll until terminal.
	deadline := time.After(10 * time.Second)
	var st db.SyncStatus
	for {
		getJSON(t, ts.URL+"/v1/orgs/"+org.ID+"/syncs/"+trig.SyncID, &st)
		if st.Status == db.SyncCompleted || st.Status == db.SyncFailed || st.Status == db.SyncCompletedWithErrors {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("sync did not finish: %+v", st)
		case <-time.After(20 * time.Millisecond):
		}
	}
	if st.Status != db.SyncCompleted || st.Progress != 100 {
		t.Fatalf("sync = %s/%d", st.Status, st.Progress)
	}

	var apps []db.Application
	getJSON(t, ts.URL+"/v1/orgs/"+org.ID+"/apps", &apps)
	if len(apps) != 2 {
		t.Fatalf("apps = %d, want 2", len(apps))
	}

	var high []db.Application
	getJSON(t, ts.URL+"/v1/orgs/"+org.ID+"/apps?risk=HIGH", &high)
	if len(high) != 1 || high[0].Name != "Backup Tool" {
		t.Fatalf("high-risk apps = %+v", high)
	}

	// Review the risky app, then confirm the transition stuck.
	b, _ := json.Marshal(map[string]string{"status": db.StatusManaged})
	req, _ := http.NewRequest(http.MethodPut,
		ts.URL+"/v1/orgs/"+org.ID+"/apps/"+high[0].ID+"/status", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set status: %d", resp.StatusCode)
	}

	var rels []db.UserAppRelation
	getJSON(t, ts.URL+"/v1/orgs/"+org.ID+"/apps/"+high[0].ID+"/users", &rels)
	if len(rels) != 1 || rels[0].UserEmail != "admin@corp.test" {
		t.Fatalf("relations = %+v", rels)
	}
}
