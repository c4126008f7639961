package sync

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/oversight-hq/oversight/internal/logx"
	"github.com/oversight-hq/oversight/internal/server/db"
)

// RelationUpsert is one planned relation write. New marks pairs that were
// not ACTIVE before this run (fresh inserts and reactivations) and gates
// notification eligibility; the tracking table still dedups on its own.
type RelationUpsert struct {
	Relation db.UserAppRelation
	New      bool
}

// Plan is the set of writes a reconciliation run decided on. Application IDs
// inside RelationUpserts reference AppInserts rows by their planned ID; the
// executor remaps them to the canonical ID the upsert returns.
type Plan struct {
	AppInserts         []db.Application
	AppUpdates         []db.Application
	RelationUpserts    []RelationUpsert
	RemovedRelationIDs []string
}

// appState accumulates every aggregate that resolved to one application row,
// existing or planned. Multiple client IDs of a migrated app can show up as
// separate aggregates in the same run; they must converge before writes.
type appState struct {
	existing *db.Application
	id       string
	clientID string
	name     string
	scopes   map[string]struct{}
	users    map[string]map[string]struct{}
}

// Reconcile diffs the current run's aggregates against stored state and
// produces the write plan: new applications, field-level application
// updates, relation upserts with merged scopes, and soft deletes for
// user/app pairs the provider no longer reports.
func Reconcile(orgID string, aggs map[string]*AppAggregate, existingApps []db.Application, existingRels []db.UserAppRelation) *Plan {
	byClientID := make(map[string][]*db.Application)
	for i := range existingApps {
		app := &existingApps[i]
		for _, cid := range splitList(app.ClientIDs) {
			byClientID[cid] = append(byClientID[cid], app)
		}
	}

	clientIDs := make([]string, 0, len(aggs))
	for cid := range aggs {
		clientIDs = append(clientIDs, cid)
	}
	sort.Strings(clientIDs)

	states := make(map[string]*appState)
	var stateOrder []string
	for _, cid := range clientIDs {
		agg := aggs[cid]
		existing := resolveApp(cid, byClientID[cid])

		id := ""
		if existing != nil {
			id = existing.ID
		}
		st, ok := states[id]
		if !ok {
			st = &appState{
				existing: existing,
				clientID: cid,
				scopes:   make(map[string]struct{}),
				users:    make(map[string]map[string]struct{}),
			}
			if existing != nil {
				st.id = existing.ID
				st.name = existing.Name
				for _, s := range splitList(existing.Scopes) {
					st.scopes[s] = struct{}{}
				}
			} else {
				st.id = uuid.NewString()
			}
			states[st.id] = st
			stateOrder = append(stateOrder, st.id)
		}
		if agg.Name != "" {
			st.name = agg.Name
		}
		for s := range agg.Scopes {
			st.scopes[s] = struct{}{}
		}
		for email, us := range agg.Users {
			dst, ok := st.users[email]
			if !ok {
				dst = make(map[string]struct{})
				st.users[email] = dst
			}
			for s := range us {
				dst[s] = struct{}{}
			}
		}
	}

	relByKey := make(map[[2]string]*db.UserAppRelation)
	for i := range existingRels {
		r := &existingRels[i]
		relByKey[[2]string{r.UserEmail, r.ApplicationID}] = r
	}

	plan := &Plan{}
	seen := make(map[[2]string]struct{})
	for _, id := range stateOrder {
		st := states[id]
		scopeList := sortedKeys(st.scopes)
		risk := ClassifyScopes(scopeList).String()

		if st.existing == nil {
			plan.AppInserts = append(plan.AppInserts, db.Application{
				ID:               st.id,
				OrganizationID:   orgID,
				ClientIDs:        st.clientID,
				Name:             st.name,
				Scopes:           strings.Join(scopeList, ","),
				RiskTier:         risk,
				UserCount:        len(st.users),
				ManagementStatus: db.StatusNeedsReview,
			})
		} else if appChanged(st.existing, st.name, risk, len(scopeList), len(st.users)) {
			upd := *st.existing
			upd.Name = st.name
			upd.Scopes = strings.Join(scopeList, ",")
			upd.RiskTier = risk
			upd.UserCount = len(st.users)
			plan.AppUpdates = append(plan.AppUpdates, upd)
		}

		for _, email := range sortedUserKeys(st.users) {
			key := [2]string{email, st.id}
			seen[key] = struct{}{}

			userScopes := st.users[email]
			rel := relByKey[key]
			if rel == nil {
				plan.RelationUpserts = append(plan.RelationUpserts, RelationUpsert{
					New: true,
					Relation: db.UserAppRelation{
						ID:             uuid.NewString(),
						OrganizationID: orgID,
						UserEmail:      email,
						ApplicationID:  st.id,
						Scopes:         strings.Join(sortedKeys(userScopes), ","),
						Status:         db.RelationActive,
					},
				})
				continue
			}

			merged := make(map[string]struct{}, len(userScopes))
			for _, s := range splitList(rel.Scopes) {
				merged[s] = struct{}{}
			}
			grew := false
			for s := range userScopes {
				if _, ok := merged[s]; !ok {
					merged[s] = struct{}{}
					grew = true
				}
			}
			if !grew && rel.Status == db.RelationActive {
				continue
			}
			plan.RelationUpserts = append(plan.RelationUpserts, RelationUpsert{
				New: rel.Status == db.RelationRemoved,
				Relation: db.UserAppRelation{
					ID:             rel.ID,
					OrganizationID: orgID,
					UserEmail:      email,
					ApplicationID:  st.id,
					Scopes:         strings.Join(sortedKeys(merged), ","),
					Status:         db.RelationActive,
				},
			})
		}
	}

	for i := range existingRels {
		r := &existingRels[i]
		if r.Status != db.RelationActive {
			continue
		}
		if _, ok := seen[[2]string{r.UserEmail, r.ApplicationID}]; ok {
			continue
		}
		plan.RemovedRelationIDs = append(plan.RemovedRelationIDs, r.ID)
	}

	return plan
}

// resolveApp picks the application row a client ID belongs to. A client ID
// listed by more than one row is a data smell from before the unique index;
// the lexicographically smallest ID wins so every run picks the same row.
func resolveApp(clientID string, candidates []*db.Application) *db.Application {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.ID < best.ID {
			best = c
		}
	}
	if len(candidates) > 1 {
		logx.Warnf("client ID %s matches %d applications, using %s", clientID, len(candidates), best.ID)
	}
	return best
}

func appChanged(app *db.Application, name, risk string, scopeCount, userCount int) bool {
	return app.Name != name ||
		app.RiskTier != risk ||
		len(splitList(app.Scopes)) != scopeCount ||
		app.UserCount != userCount
}

// splitList parses a comma-joined set column. Empty input yields nil.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedUserKeys(m map[string]map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
