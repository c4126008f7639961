package sync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oversight-hq/oversight/internal/provider"
	"github.com/oversight-hq/oversight/internal/server/db"
)

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.NewStore(filepath.Join(t.TempDir(), "oversight.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestOrg(t *testing.T, store *db.Store) *db.Organization {
	t.Helper()
	org := &db.Organization{
		ID:       uuid.NewString(),
		Domain:   uuid.NewString() + ".test",
		Name:     "Corp",
		Provider: db.ProviderGoogle,
	}
	if err := store.CreateOrganization(org); err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	return org
}

func newPendingSync(t *testing.T, store *db.Store, orgID string) string {
	t.Helper()
	id := uuid.NewString()
	err := store.InsertSyncStatus(&db.SyncStatus{
		ID: id, OrganizationID: orgID, Status: db.SyncPending,
	})
	if err != nil {
		t.Fatalf("InsertSyncStatus: %v", err)
	}
	return id
}

func testMasterKey() [32]byte {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestRefreshGuardRotatesAndPersists(t *testing.T) {
	store := newTestStore(t)
	org := newTestOrg(t, store)
	syncID := newPendingSync(t, store, org.ID)
	key := testMasterKey()

	guard := &RefreshGuard{
		Store:     store,
		MasterKey: key,
		Refresh: func(ctx context.Context, refreshToken string) (provider.Tokens, error) {
			if refreshToken != "old-refresh" {
				t.Fatalf("refresh token = %q", refreshToken)
			}
			return provider.Tokens{
				AccessToken:  "new-access",
				RefreshToken: "new-refresh",
				Expiry:       time.Now().Add(time.Hour),
			}, nil
		},
	}

	tokens, err := guard.Run(context.Background(), org.ID, syncID, "old-refresh")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tokens.AccessToken != "new-access" || tokens.RefreshToken != "new-refresh" {
		t.Fatalf("tokens = %+v", tokens)
	}

	stored, ok, err := StoredTokens(store, key, org.ID)
	if err != nil || !ok {
		t.Fatalf("StoredTokens: ok=%v err=%v", ok, err)
	}
	if stored.AccessToken != "new-access" || stored.RefreshToken != "new-refresh" {
		t.Fatalf("stored tokens = %+v", stored)
	}

	// Raw row must not contain the plaintext.
	row, err := store.LatestCompletedSync(org.ID)
	if err != nil || row == nil {
		t.Fatalf("LatestCompletedSync: %v", err)
	}
	if string(row.RefreshTokenEnc) == "new-refresh" {
		t.Fatal("refresh token stored in plaintext")
	}
}

func TestRefreshGuardRetriesBeforeSucceeding(t *testing.T) {
	store := newTestStore(t)
	org := newTestOrg(t, store)
	syncID := newPendingSync(t, store, org.ID)

	calls := 0
	guard := &RefreshGuard{
		Store:     store,
		MasterKey: testMasterKey(),
		Backoff:   []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
		Refresh: func(ctx context.Context, refreshToken string) (provider.Tokens, error) {
			calls++
			if calls < 3 {
				return provider.Tokens{}, errors.New("transient")
			}
			return provider.Tokens{AccessToken: "a", RefreshToken: "r"}, nil
		},
	}

	if _, err := guard.Run(context.Background(), org.ID, syncID, "old"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 3 {
		t.Fatalf("refresh calls = %d, want 3", calls)
	}
}

func TestRefreshGuardExhaustionMarksFailed(t *testing.T) {
	store := newTestStore(t)
	org := newTestOrg(t, store)
	syncID := newPendingSync(t, store, org.ID)

	guard := &RefreshGuard{
		Store:     store,
		MasterKey: testMasterKey(),
		Backoff:   []time.Duration{time.Millisecond},
		Refresh: func(ctx context.Context, refreshToken string) (provider.Tokens, error) {
			return provider.Tokens{}, errors.New("invalid_grant")
		},
	}

	_, err := guard.Run(context.Background(), org.ID, syncID, "old")
	var cerr *CredentialError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *CredentialError", err)
	}

	st, err := store.GetSyncStatus(syncID)
	if err != nil || st == nil {
		t.Fatalf("GetSyncStatus: %v", err)
	}
	if st.Status != db.SyncFailed {
		t.Fatalf("status = %s, want %s", st.Status, db.SyncFailed)
	}
	if st.Message == "" {
		t.Fatal("failure message missing")
	}
}

func TestRefreshGuardHonorsCancellation(t *testing.T) {
	store := newTestStore(t)
	org := newTestOrg(t, store)
	syncID := newPendingSync(t, store, org.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	guard := &RefreshGuard{
		Store:     store,
		MasterKey: testMasterKey(),
		Backoff:   []time.Duration{time.Hour},
		Refresh: func(ctx context.Context, refreshToken string) (provider.Tokens, error) {
			return provider.Tokens{}, errors.New("transient")
		},
	}

	_, err := guard.Run(ctx, org.ID, syncID, "old")
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled in chain", err)
	}
}
