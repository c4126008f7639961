// Package provider normalizes identity-provider grant listings into a common
// shape. Each provider's wire quirks (scope encodings, paging, throttling)
// stay behind the Source interface; nothing downstream knows which provider a
// grant came from.
package provider

import (
	"context"
	"sort"
	"strings"
	"time"
)

// UnknownScope is substituted for an empty scope list. Risk classification
// needs at least one entry per grant; an empty set would silently tier an
// ambiguous grant as LOW.
const UnknownScope = "unknown_scope"

// Grant is one user's authorization of one third-party client, as reported
// by the identity provider. Ephemeral: consumed directly into aggregation.
type Grant struct {
	ClientID    string
	DisplayName string
	UserEmail   string
	Scopes      []string
}

// DirectoryUser is a member of the organization's user directory.
type DirectoryUser struct {
	Email   string
	IsAdmin bool
}

// Tokens is the validated credential pair a fetch runs with.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Source lists an organization's users and OAuth grants.
type Source interface {
	// Name identifies the provider ("google" or "microsoft").
	Name() string
	// FetchUsers returns the organization's user directory.
	FetchUsers(ctx context.Context, tokens Tokens) ([]DirectoryUser, error)
	// FetchGrants returns the complete current grant list. One entry per
	// user × authorized client; scopes already normalized. users is the
	// directory a prior FetchUsers call returned, so providers that fetch
	// grants per user do not have to enumerate the directory twice.
	FetchGrants(ctx context.Context, tokens Tokens, users []DirectoryUser) ([]Grant, error)
}

// NormalizeScopes trims, deduplicates, and sorts a raw scope list. An empty
// result becomes the UnknownScope sentinel.
func NormalizeScopes(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return []string{UnknownScope}
	}
	sort.Strings(out)
	return out
}

// SplitScopeString normalizes a space-delimited scope encoding
// (Microsoft's and Google's non-array form) into a scope list.
func SplitScopeString(s string) []string {
	return NormalizeScopes(strings.Fields(s))
}
