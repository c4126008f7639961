package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/google"

	"github.com/oversight-hq/oversight/internal/crypto"
	"github.com/oversight-hq/oversight/internal/logx"
	"github.com/oversight-hq/oversight/internal/provider"
	"github.com/oversight-hq/oversight/internal/server/db"
)

// RefreshFunc exchanges a refresh token for a fresh credential pair.
type RefreshFunc func(ctx context.Context, refreshToken string) (provider.Tokens, error)

// RefreshGuard forces a credential refresh before every sync run and
// persists the rotated pair. A refresh token that no longer works is the
// single most common failure mode; failing fast here keeps half-synced
// state out of the database.
type RefreshGuard struct {
	Store     *db.Store
	MasterKey [32]byte
	Refresh   RefreshFunc
	// Backoff between attempts. Overridable in tests.
	Backoff []time.Duration
}

// DefaultBackoff is the wait schedule between refresh attempts.
var DefaultBackoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// NewRefreshGuard wires the guard for a provider using the oauth2 token
// endpoint matching providerName.
func NewRefreshGuard(store *db.Store, masterKey [32]byte, providerName, clientID, clientSecret string) *RefreshGuard {
	endpoint := google.Endpoint
	if providerName == db.ProviderMicrosoft {
		endpoint = endpoints.AzureAD("common")
	}
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoint,
	}
	return &RefreshGuard{
		Store:     store,
		MasterKey: masterKey,
		Refresh:   oauth2Refresh(cfg),
		Backoff:   DefaultBackoff,
	}
}

// oauth2Refresh forces a grant_type=refresh_token exchange by seeding the
// token source with an already expired access token.
func oauth2Refresh(cfg *oauth2.Config) RefreshFunc {
	return func(ctx context.Context, refreshToken string) (provider.Tokens, error) {
		seed := &oauth2.Token{
			RefreshToken: refreshToken,
			Expiry:       time.Now().Add(-time.Minute),
		}
		tok, err := cfg.TokenSource(ctx, seed).Token()
		if err != nil {
			return provider.Tokens{}, err
		}
		refreshed := provider.Tokens{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			Expiry:       tok.Expiry,
		}
		// Providers may omit the refresh token when it is still valid.
		if refreshed.RefreshToken == "" {
			refreshed.RefreshToken = refreshToken
		}
		return refreshed, nil
	}
}

// Run refreshes the credential pair, retrying on failure per the backoff
// schedule. Exhaustion marks the sync attempt FAILED and returns a
// *CredentialError. Success inserts a new COMPLETED sync row carrying the
// encrypted rotated pair, so the next scheduled run picks it up even if
// this run dies later.
func (g *RefreshGuard) Run(ctx context.Context, orgID, syncID, refreshToken string) (provider.Tokens, error) {
	var lastErr error
	for attempt := 0; attempt <= len(g.Backoff); attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, g.Backoff[attempt-1]); err != nil {
				lastErr = err
				break
			}
			logx.Infof("token refresh retry %d for org %s", attempt, orgID)
		}
		tokens, err := g.Refresh(ctx, refreshToken)
		if err != nil {
			lastErr = err
			continue
		}
		if err := g.persistRotation(orgID, tokens); err != nil {
			// The refreshed pair works; losing the rotation row only costs
			// the next run a refresh round-trip.
			logx.Warnf("persist rotated tokens for org %s: %v", orgID, err)
		}
		return tokens, nil
	}

	cerr := &CredentialError{Err: lastErr}
	if err := g.Store.UpdateSyncProgress(syncID, db.SyncFailed, 0, cerr.Error()); err != nil {
		logx.Errorf("mark sync %s failed: %v", syncID, err)
	}
	return provider.Tokens{}, cerr
}

func (g *RefreshGuard) persistRotation(orgID string, tokens provider.Tokens) error {
	accessEnc, err := crypto.EncryptAtRest(g.MasterKey, []byte(tokens.AccessToken))
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refreshEnc, err := crypto.EncryptAtRest(g.MasterKey, []byte(tokens.RefreshToken))
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}
	expiry := tokens.Expiry
	return g.Store.InsertSyncStatus(&db.SyncStatus{
		ID:              uuid.NewString(),
		OrganizationID:  orgID,
		Status:          db.SyncCompleted,
		Progress:        100,
		Message:         "credential rotation",
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		TokenExpiry:     &expiry,
	})
}

// StoredTokens decrypts the credential pair from the newest completed sync
// row. Returns false when the organization has no stored credentials.
func StoredTokens(store *db.Store, masterKey [32]byte, orgID string) (provider.Tokens, bool, error) {
	row, err := store.LatestCompletedSync(orgID)
	if err != nil {
		return provider.Tokens{}, false, err
	}
	if row == nil {
		return provider.Tokens{}, false, nil
	}
	access, err := crypto.DecryptAtRest(masterKey, row.AccessTokenEnc)
	if err != nil {
		return provider.Tokens{}, false, fmt.Errorf("decrypt access token: %w", err)
	}
	refresh, err := crypto.DecryptAtRest(masterKey, row.RefreshTokenEnc)
	if err != nil {
		return provider.Tokens{}, false, fmt.Errorf("decrypt refresh token: %w", err)
	}
	tokens := provider.Tokens{AccessToken: string(access), RefreshToken: string(refresh)}
	if row.TokenExpiry != nil {
		tokens.Expiry = *row.TokenExpiry
	}
	return tokens, true, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
