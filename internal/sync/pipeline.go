package sync

import (
	"context"
	"fmt"
	"strings"
	stdsync "sync"

	"github.com/google/uuid"
	"github.com/oversight-hq/oversight/internal/batch"
	"github.com/oversight-hq/oversight/internal/categorize"
	"github.com/oversight-hq/oversight/internal/logx"
	"github.com/oversight-hq/oversight/internal/mailer"
	"github.com/oversight-hq/oversight/internal/obs"
	"github.com/oversight-hq/oversight/internal/provider"
	"github.com/oversight-hq/oversight/internal/server/db"
)

// Progress checkpoints. Fetching grants dominates wall time, so it owns
// most of the bar; the remaining stages are quick local work.
const (
	progressRefreshed  = 10
	progressFetched    = 85
	progressReconciled = 89
	progressWritten    = 95
	progressDone       = 100
)

// notifyWorkers bounds concurrent notification dispatch so a large run
// cannot swamp the database pool or the SMTP server.
const notifyWorkers = 4

// Store is the slice of the persistence layer the pipeline drives.
// *db.Store satisfies it.
type Store interface {
	NotificationStore
	GetOrganization(id string) (*db.Organization, error)
	TouchOrganization(id string) error
	UpsertOrgUser(u *db.OrgUser) error
	ListApplications(orgID string) ([]db.Application, error)
	UpsertApplication(app *db.Application) (string, error)
	UpdateApplication(app *db.Application) error
	ListRelations(orgID string) ([]db.UserAppRelation, error)
	UpsertRelation(r *db.UserAppRelation) (string, error)
	MarkRelationRemoved(id string) error
	UpdateSyncProgress(id, status string, progress int, message string) error
}

// Deps are the pipeline's collaborators. Categorizer may be nil.
type Deps struct {
	Store       Store
	Mailer      mailer.Mailer
	Categorizer *categorize.Service
	Source      provider.Source
	Guard       *RefreshGuard
	Batch       batch.Options
}

// Params identifies one sync run. The refresh token is the only credential
// required up front; the guard trades it for a working pair.
type Params struct {
	OrganizationID string
	SyncID         string
	RefreshToken   string
}

// Run executes one full sync: refresh credentials, fetch the directory and
// grant list, reconcile against stored state, apply writes in paced batches,
// and dispatch notifications. The outcome is reported through the SyncStatus
// row; the returned error exists for callers that run the pipeline inline.
func Run(ctx context.Context, deps Deps, params Params) error {
	store := deps.Store
	providerName := deps.Source.Name()

	org, err := store.GetOrganization(params.OrganizationID)
	if err != nil {
		return failRun(store, providerName, params.SyncID, err)
	}
	if org == nil {
		return failRun(store, providerName, params.SyncID, fmt.Errorf("organization %s not found", params.OrganizationID))
	}

	if err := store.UpdateSyncProgress(params.SyncID, db.SyncInProgress, 0, "sync started"); err != nil {
		return err
	}

	tokens, err := deps.Guard.Run(ctx, org.ID, params.SyncID, params.RefreshToken)
	if err != nil {
		// The guard already marked the row FAILED.
		obs.SyncRuns.WithLabelValues(providerName, db.SyncFailed).Inc()
		return err
	}
	checkpoint(store, params.SyncID, progressRefreshed, "credentials refreshed")

	users, err := deps.Source.FetchUsers(ctx, tokens)
	if err != nil {
		return failRun(store, providerName, params.SyncID, &ProviderFetchError{Provider: providerName, Err: err})
	}
	grants, err := deps.Source.FetchGrants(ctx, tokens, users)
	if err != nil {
		return failRun(store, providerName, params.SyncID, &ProviderFetchError{Provider: providerName, Err: err})
	}
	obs.GrantsFetched.WithLabelValues(providerName).Add(float64(len(grants)))
	checkpoint(store, params.SyncID, progressFetched, fmt.Sprintf("fetched %d grants from %d users", len(grants), len(users)))

	degraded := persistUsers(ctx, deps, org.ID, users)

	existingApps, err := store.ListApplications(org.ID)
	if err != nil {
		return failRun(store, providerName, params.SyncID, err)
	}
	existingRels, err := store.ListRelations(org.ID)
	if err != nil {
		return failRun(store, providerName, params.SyncID, err)
	}
	existingByID := make(map[string]*db.Application, len(existingApps))
	for i := range existingApps {
		existingByID[existingApps[i].ID] = &existingApps[i]
	}

	plan := Reconcile(org.ID, Aggregate(grants), existingApps, existingRels)
	checkpoint(store, params.SyncID, progressReconciled, "reconciliation planned")

	appIDs, wrote := applyPlan(ctx, deps, plan)
	degraded = degraded || !wrote
	checkpoint(store, params.SyncID, progressWritten, "state written")

	dispatchNotifications(deps, org, plan, appIDs, existingByID, users)

	enqueueUncategorized(deps, org.ID)

	if err := store.TouchOrganization(org.ID); err != nil {
		logx.Warnf("touch organization %s: %v", org.ID, err)
	}

	status := db.SyncCompleted
	message := "sync completed"
	if degraded {
		status = db.SyncCompletedWithErrors
		message = "sync completed with skipped writes"
	}
	if err := store.UpdateSyncProgress(params.SyncID, status, progressDone, message); err != nil {
		return err
	}
	obs.SyncRuns.WithLabelValues(providerName, status).Inc()
	logx.Infof("sync %s for org %s: %s", params.SyncID, org.ID, status)
	return nil
}

// persistUsers writes the fetched directory in batches. Failures degrade the
// run instead of aborting it. Returns true when any chunk was skipped.
func persistUsers(ctx context.Context, deps Deps, orgID string, users []provider.DirectoryUser) bool {
	degraded := false
	_ = batch.Run(ctx, len(users), deps.Batch, func(lo, hi int) error {
		for _, u := range users[lo:hi] {
			err := deps.Store.UpsertOrgUser(&db.OrgUser{
				ID:             uuid.NewString(),
				OrganizationID: orgID,
				Email:          u.Email,
				IsAdmin:        u.IsAdmin,
			})
			if err != nil {
				logx.Errorf("%v", &PersistenceError{Stage: "org users", Err: err})
				degraded = true
				return nil // skip the rest of the chunk, keep going
			}
		}
		return nil
	})
	return degraded
}

// applyPlan executes the reconciliation plan in paced batches. Returns the
// planned→canonical application ID map and whether every write landed.
func applyPlan(ctx context.Context, deps Deps, plan *Plan) (map[string]string, bool) {
	store := deps.Store
	ok := true
	appIDs := make(map[string]string, len(plan.AppInserts))

	_ = batch.Run(ctx, len(plan.AppInserts), deps.Batch, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			app := plan.AppInserts[i]
			canonical, err := store.UpsertApplication(&app)
			if err != nil {
				logx.Errorf("%v", &PersistenceError{Stage: "applications", Err: err})
				appIDs[app.ID] = app.ID
				ok = false
				continue
			}
			appIDs[app.ID] = canonical
			if canonical == app.ID {
				obs.AppsDiscovered.Inc()
			}
		}
		return nil
	})

	_ = batch.Run(ctx, len(plan.AppUpdates), deps.Batch, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if err := store.UpdateApplication(&plan.AppUpdates[i]); err != nil {
				logx.Errorf("%v", &PersistenceError{Stage: "application updates", Err: err})
				ok = false
			}
		}
		return nil
	})

	_ = batch.Run(ctx, len(plan.RelationUpserts), deps.Batch, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			rel := plan.RelationUpserts[i].Relation
			if canonical, mapped := appIDs[rel.ApplicationID]; mapped {
				rel.ApplicationID = canonical
			}
			if _, err := store.UpsertRelation(&rel); err != nil {
				logx.Errorf("%v", &PersistenceError{Stage: "relations", Err: err})
				ok = false
			}
		}
		return nil
	})

	_ = batch.Run(ctx, len(plan.RemovedRelationIDs), deps.Batch, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if err := store.MarkRelationRemoved(plan.RemovedRelationIDs[i]); err != nil {
				logx.Errorf("%v", &PersistenceError{Stage: "relation removals", Err: err})
				ok = false
			}
		}
		return nil
	})

	return appIDs, ok
}

// enqueueUncategorized feeds every application still lacking a category to
// the categorization worker. Sweeping the stored state instead of this run's
// inserts means a job dropped from the worker's bounded queue is picked up
// again on the next sync.
func enqueueUncategorized(deps Deps, orgID string) {
	if deps.Categorizer == nil {
		return
	}
	apps, err := deps.Store.ListApplications(orgID)
	if err != nil {
		logx.Warnf("list applications for categorization: %v", err)
		return
	}
	for _, app := range apps {
		if app.Category != "" {
			continue
		}
		deps.Categorizer.Enqueue(categorize.Job{
			ApplicationID: app.ID,
			Name:          app.Name,
			Scopes:        splitList(app.Scopes),
		})
	}
}

// dispatchNotifications derives the run's notification events and hands
// them to a small detached worker pool. It returns as soon as the events
// are queued: the run finalizes without waiting on deliveries, since the
// at-most-once claim is durable before any send is attempted. Send
// failures only reach the log.
func dispatchNotifications(deps Deps, org *db.Organization, plan *Plan, appIDs map[string]string, existingByID map[string]*db.Application, users []provider.DirectoryUser) {
	var admins []string
	for _, u := range users {
		if u.IsAdmin {
			admins = append(admins, u.Email)
		}
	}

	inserted := make(map[string]db.Application, len(plan.AppInserts))
	for _, app := range plan.AppInserts {
		inserted[appIDs[app.ID]] = app
	}

	var events []Event
	for _, app := range plan.AppInserts {
		canonical := appIDs[app.ID]
		payload := mailer.Payload{
			AppName:          app.Name,
			OrganizationName: org.Name,
			RiskLevel:        app.RiskTier,
			UserCount:        app.UserCount,
			TotalPermissions: len(splitList(app.Scopes)),
		}
		for _, admin := range admins {
			events = append(events, Event{
				OrganizationID: org.ID,
				Recipient:      admin,
				ApplicationID:  canonical,
				Kind:           db.NotifyNewApp,
				Payload:        payload,
			})
		}
	}

	for _, ru := range plan.RelationUpserts {
		if !ru.New {
			continue
		}
		// Tenant-wide consents are attributed to a pseudo-user with no
		// mailbox; there is nobody to tell.
		if !strings.Contains(ru.Relation.UserEmail, "@") {
			continue
		}
		appID := ru.Relation.ApplicationID
		if canonical, mapped := appIDs[appID]; mapped {
			appID = canonical
		}

		var name, risk, category, status string
		var userCount, permCount int
		if app, ok := inserted[appID]; ok {
			name, risk, status = app.Name, app.RiskTier, app.ManagementStatus
			userCount, permCount = app.UserCount, len(splitList(app.Scopes))
		} else if app, ok := existingByID[appID]; ok {
			name, risk, category, status = app.Name, app.RiskTier, app.Category, app.ManagementStatus
			userCount, permCount = app.UserCount, len(splitList(app.Scopes))
		}
		payload := mailer.Payload{
			AppName:          name,
			OrganizationName: org.Name,
			RiskLevel:        risk,
			Category:         category,
			UserCount:        userCount,
			TotalPermissions: permCount,
		}

		events = append(events, Event{
			OrganizationID: org.ID,
			Recipient:      ru.Relation.UserEmail,
			ApplicationID:  appID,
			Kind:           db.NotifyNewUser,
			Payload:        payload,
		})
		// A new user on an app still awaiting review also pings the admins,
		// unless the app itself was just announced to them.
		if _, justInserted := inserted[appID]; !justInserted && status == db.StatusNeedsReview {
			for _, admin := range admins {
				events = append(events, Event{
					OrganizationID: org.ID,
					Recipient:      admin,
					ApplicationID:  appID,
					Kind:           db.NotifyNewUserReview,
					Payload:        payload,
				})
			}
		}
	}

	if len(events) == 0 {
		return
	}

	dispatcher := &Dispatcher{Store: deps.Store, Mailer: deps.Mailer}
	queue := make(chan Event, len(events))
	for _, ev := range events {
		queue <- ev
	}
	close(queue)

	errs := make(chan error, len(events))
	var wg stdsync.WaitGroup
	for i := 0; i < notifyWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range queue {
				sent, err := dispatcher.Dispatch(ev)
				if err != nil {
					errs <- err
					continue
				}
				if sent {
					obs.NotificationsSent.WithLabelValues(ev.Kind).Inc()
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(errs)
		for err := range errs {
			logx.Errorf("%v", err)
		}
	}()
}

func checkpoint(store Store, syncID string, progress int, message string) {
	if err := store.UpdateSyncProgress(syncID, db.SyncInProgress, progress, message); err != nil {
		logx.Warnf("sync %s: record progress %d: %v", syncID, progress, err)
	}
}

func failRun(store Store, providerName, syncID string, cause error) error {
	if err := store.UpdateSyncProgress(syncID, db.SyncFailed, 0, cause.Error()); err != nil {
		logx.Errorf("mark sync %s failed: %v", syncID, err)
	}
	obs.SyncRuns.WithLabelValues(providerName, db.SyncFailed).Inc()
	return cause
}
