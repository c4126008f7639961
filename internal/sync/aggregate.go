package sync

import (
	"sort"

	"github.com/oversight-hq/oversight/internal/provider"
)

// AppAggregate is the merged view of every grant seen for one client ID
// during a single sync run. Scopes is the union across all users; Users
// keys double as the user set, each mapped to the scopes that user
// individually consented to.
type AppAggregate struct {
	ClientID string
	Name     string
	Scopes   map[string]struct{}
	Users    map[string]map[string]struct{}
	Risk     Tier
}

// Aggregate folds raw provider grants into per-application aggregates.
// The result is independent of grant order: scope and user sets only
// grow, the risk tier is the max over all scopes seen, and the display
// name is filled by the first non-empty value encountered (providers
// report the same name on every grant for a given client ID, so ties
// do not arise in practice).
func Aggregate(grants []provider.Grant) map[string]*AppAggregate {
	apps := make(map[string]*AppAggregate)
	for _, g := range grants {
		if g.ClientID == "" {
			continue
		}
		agg, ok := apps[g.ClientID]
		if !ok {
			agg = &AppAggregate{
				ClientID: g.ClientID,
				Scopes:   make(map[string]struct{}),
				Users:    make(map[string]map[string]struct{}),
			}
			apps[g.ClientID] = agg
		}
		if agg.Name == "" {
			agg.Name = g.DisplayName
		}
		scopes := provider.NormalizeScopes(g.Scopes)
		for _, s := range scopes {
			agg.Scopes[s] = struct{}{}
		}
		if g.UserEmail != "" {
			us, ok := agg.Users[g.UserEmail]
			if !ok {
				us = make(map[string]struct{})
				agg.Users[g.UserEmail] = us
			}
			for _, s := range scopes {
				us[s] = struct{}{}
			}
		}
	}
	for _, agg := range apps {
		agg.Risk = ClassifyScopes(agg.ScopeList())
	}
	return apps
}

// ScopeList returns the union scope set sorted ascending.
func (a *AppAggregate) ScopeList() []string {
	out := make([]string, 0, len(a.Scopes))
	for s := range a.Scopes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// UserList returns the distinct user emails sorted ascending.
func (a *AppAggregate) UserList() []string {
	out := make([]string, 0, len(a.Users))
	for u := range a.Users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// UserScopes returns the sorted scopes a single user granted to the app.
func (a *AppAggregate) UserScopes(email string) []string {
	us, ok := a.Users[email]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(us))
	for s := range us {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
