package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/oversight-hq/oversight/internal/logx"
)

const (
	graphBaseURL = "https://graph.microsoft.com/v1.0"

	// AllPrincipalsUser attributes tenant-wide admin consents. Graph reports
	// those with no principal, so the app and its scopes are tracked under
	// this pseudo-user instead of fanning out to every directory member.
	AllPrincipalsUser = "tenant-wide-consent"

	// Role template ID of the Entra "Global Administrator" role.
	globalAdminTemplateID = "62e90394-69f5-4237-9190-012177145e10"
)

// MicrosoftSource enumerates OAuth grants via Microsoft Graph:
// service principals joined with their oauth2PermissionGrants.
type MicrosoftSource struct {
	TenantID string
	BaseURL  string // overridable for tests; defaults to the Graph v1.0 endpoint
	HTTP     *http.Client
}

// NewMicrosoftSource returns a Source for one Entra tenant.
func NewMicrosoftSource(tenantID string) *MicrosoftSource {
	return &MicrosoftSource{
		TenantID: tenantID,
		BaseURL:  graphBaseURL,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (m *MicrosoftSource) Name() string { return "microsoft" }

type graphUser struct {
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

type graphServicePrincipal struct {
	ID          string `json:"id"`
	AppID       string `json:"appId"`
	DisplayName string `json:"displayName"`
}

type graphPermissionGrant struct {
	ClientID    string `json:"clientId"` // service principal OBJECT id, not appId
	ConsentType string `json:"consentType"`
	PrincipalID string `json:"principalId"`
	Scope       string `json:"scope"`
}

type graphDirectoryRole struct {
	ID             string `json:"id"`
	RoleTemplateID string `json:"roleTemplateId"`
}

func (u graphUser) email() string {
	if u.Mail != "" {
		return u.Mail
	}
	return u.UserPrincipalName
}

// FetchUsers lists the tenant's users; Global Administrator members are
// flagged as admins. A failure resolving the admin role degrades to an
// unflagged listing rather than failing the fetch.
func (m *MicrosoftSource) FetchUsers(ctx context.Context, tokens Tokens) ([]DirectoryUser, error) {
	raw, err := m.listUsers(ctx, tokens)
	if err != nil {
		return nil, err
	}

	admins := make(map[string]struct{})
	if ids, err := m.globalAdminIDs(ctx, tokens); err != nil {
		logx.Warnf("microsoft: resolve admin role members: %v", err)
	} else {
		admins = ids
	}

	users := make([]DirectoryUser, 0, len(raw))
	for _, u := range raw {
		if u.email() == "" {
			continue
		}
		_, isAdmin := admins[u.ID]
		users = append(users, DirectoryUser{Email: u.email(), IsAdmin: isAdmin})
	}
	return users, nil
}

// FetchGrants joins service principals with their permission grants and
// normalizes them into the common Grant shape. The `scope` field is Graph's
// space-delimited encoding. The caller's directory is not reused here:
// permission grants reference users by Graph object ID, so the id→email
// join needs its own listing.
func (m *MicrosoftSource) FetchGrants(ctx context.Context, tokens Tokens, _ []DirectoryUser) ([]Grant, error) {
	rawUsers, err := m.listUsers(ctx, tokens)
	if err != nil {
		return nil, err
	}
	emailByID := make(map[string]string, len(rawUsers))
	for _, u := range rawUsers {
		emailByID[u.ID] = u.email()
	}

	sps, err := paged[graphServicePrincipal](ctx, m, tokens, "/servicePrincipals?$select=id,appId,displayName&$top=100")
	if err != nil {
		return nil, fmt.Errorf("list service principals: %w", err)
	}
	spByID := make(map[string]graphServicePrincipal, len(sps))
	for _, sp := range sps {
		spByID[sp.ID] = sp
	}

	consents, err := paged[graphPermissionGrant](ctx, m, tokens, "/oauth2PermissionGrants?$top=999")
	if err != nil {
		return nil, fmt.Errorf("list permission grants: %w", err)
	}

	var grants []Grant
	for _, c := range consents {
		sp, ok := spByID[c.ClientID]
		if !ok || sp.AppID == "" {
			continue
		}
		email := AllPrincipalsUser
		if c.ConsentType != "AllPrincipals" {
			email = emailByID[c.PrincipalID]
			if email == "" {
				continue
			}
		}
		grants = append(grants, Grant{
			ClientID:    sp.AppID,
			DisplayName: sp.DisplayName,
			UserEmail:   email,
			Scopes:      SplitScopeString(c.Scope),
		})
	}
	return grants, nil
}

func (m *MicrosoftSource) listUsers(ctx context.Context, tokens Tokens) ([]graphUser, error) {
	users, err := paged[graphUser](ctx, m, tokens, "/users?$select=id,mail,userPrincipalName&$top=999")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (m *MicrosoftSource) globalAdminIDs(ctx context.Context, tokens Tokens) (map[string]struct{}, error) {
	roles, err := paged[graphDirectoryRole](ctx, m, tokens, "/directoryRoles")
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{})
	for _, r := range roles {
		if r.RoleTemplateID != globalAdminTemplateID {
			continue
		}
		members, err := paged[graphUser](ctx, m, tokens, "/directoryRoles/"+r.ID+"/members?$select=id")
		if err != nil {
			return nil, err
		}
		for _, u := range members {
			ids[u.ID] = struct{}{}
		}
	}
	return ids, nil
}

// paged follows @odata.nextLink until the collection is exhausted.
func paged[T any](ctx context.Context, m *MicrosoftSource, tokens Tokens, path string) ([]T, error) {
	var out []T
	url := m.BaseURL + path
	for url != "" {
		body, err := m.get(ctx, tokens, url)
		if err != nil {
			return nil, err
		}
		var envelope struct {
			Value    []T    `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decode graph response: %w", err)
		}
		out = append(out, envelope.Value...)
		url = envelope.NextLink
	}
	return out, nil
}

// get performs one authenticated Graph request, honoring 429 Retry-After.
func (m *MicrosoftSource) get(ctx context.Context, tokens Tokens, url string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build graph request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
		req.Header.Set("Accept", "application/json")

		resp, err := m.HTTP.Do(req)
		if err != nil {
			return nil, fmt.Errorf("graph request %s: %w", url, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read graph response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < 3 {
			wait := 2 * time.Second
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					wait = time.Duration(secs) * time.Second
				}
			}
			logx.Warnf("microsoft: throttled on %s, retrying in %s", url, wait)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("graph request %s: status %d: %s", url, resp.StatusCode, body)
		}
		return body, nil
	}
}
