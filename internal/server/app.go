package server

import (
	"context"
	"fmt"

	"github.com/oversight-hq/oversight/internal/categorize"
	"github.com/oversight-hq/oversight/internal/logx"
	"github.com/oversight-hq/oversight/internal/mailer"
	"github.com/oversight-hq/oversight/internal/provider"
	"github.com/oversight-hq/oversight/internal/server/db"
	"github.com/oversight-hq/oversight/internal/sync"
)

// App wires the store, outbound mail, the categorization worker, and the
// sync pipeline behind the HTTP surface.
type App struct {
	Store       *db.Store
	Cfg         *Config
	Mailer      mailer.Mailer
	Categorizer *categorize.Service

	cancel context.CancelFunc
}

// NewApp assembles the application and starts the categorization worker.
func NewApp(store *db.Store, cfg *Config) *App {
	var m mailer.Mailer = mailer.Discard{}
	if cfg.SMTPConfigured() {
		m = mailer.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		logx.Warnf("SMTP not configured, notifications will be dropped")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cat := categorize.NewService(store, 0)
	cat.Start(ctx)

	return &App{
		Store:       store,
		Cfg:         cfg,
		Mailer:      m,
		Categorizer: cat,
		cancel:      cancel,
	}
}

// Shutdown stops the background workers.
func (a *App) Shutdown() {
	a.cancel()
	a.Categorizer.Wait()
}

// StartSync validates credentials, then runs the pipeline on its own
// goroutine. Implements handler.StartSyncFunc.
func (a *App) StartSync(org *db.Organization, syncID, refreshToken string) error {
	if refreshToken == "" {
		stored, ok, err := sync.StoredTokens(a.Store, a.Cfg.MasterKey, org.ID)
		if err != nil {
			return fmt.Errorf("load stored credentials: %w", err)
		}
		if !ok {
			return fmt.Errorf("no refresh token supplied and none stored for this organization")
		}
		refreshToken = stored.RefreshToken
	}

	source, guard, err := a.providerFor(org)
	if err != nil {
		return err
	}

	deps := sync.Deps{
		Store:       a.Store,
		Mailer:      a.Mailer,
		Categorizer: a.Categorizer,
		Source:      source,
		Guard:       guard,
		Batch:       a.Cfg.Batch,
	}
	params := sync.Params{
		OrganizationID: org.ID,
		SyncID:         syncID,
		RefreshToken:   refreshToken,
	}
	go func() {
		if err := sync.Run(context.Background(), deps, params); err != nil {
			logx.Errorf("sync %s: %v", syncID, err)
		}
	}()
	return nil
}

func (a *App) providerFor(org *db.Organization) (provider.Source, *sync.RefreshGuard, error) {
	switch org.Provider {
	case db.ProviderGoogle:
		guard := sync.NewRefreshGuard(a.Store, a.Cfg.MasterKey, org.Provider,
			a.Cfg.GoogleClientID, a.Cfg.GoogleClientSecret)
		return provider.NewGoogleSource(org.Domain, a.Cfg.Batch), guard, nil
	case db.ProviderMicrosoft:
		guard := sync.NewRefreshGuard(a.Store, a.Cfg.MasterKey, org.Provider,
			a.Cfg.MicrosoftClientID, a.Cfg.MicrosoftClientSecret)
		return provider.NewMicrosoftSource(org.Domain), guard, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", org.Provider)
	}
}
