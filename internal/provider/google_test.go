package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"

	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/option"

	"github.com/oversight-hq/oversight/internal/batch"
)

// fakeDirectory serves the two Admin SDK endpoints the source touches and
// counts directory enumerations.
func fakeDirectory(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	mux := http.NewServeMux()
	var listCalls int32

	mux.HandleFunc("/admin/directory/v1/users", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&listCalls, 1)
		if r.URL.Query().Get("domain") != "example.com" {
			http.Error(w, "wrong domain", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"users": []map[string]any{
				{"primaryEmail": "a@example.com", "isAdmin": true},
				{"primaryEmail": "b@example.com"},
				{"primaryEmail": "gone@example.com", "suspended": true},
			},
		})
	})

	tokensFor := map[string][]map[string]any{
		"a@example.com": {
			{"clientId": "c1", "displayText": "Acme", "scopes": []string{"https://www.googleapis.com/auth/drive"}},
		},
		"b@example.com": {
			{"clientId": "c1", "displayText": "Acme", "scopes": []string{"https://mail.google.com/"}},
			{"clientId": "c2", "displayText": "NoScopes", "scopes": []string{}},
		},
	}
	mux.HandleFunc("/admin/directory/v1/users/a@example.com/tokens", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"items": tokensFor["a@example.com"]})
	})
	mux.HandleFunc("/admin/directory/v1/users/b@example.com/tokens", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"items": tokensFor["b@example.com"]})
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, &listCalls
}

func newFakeGoogleSource(t *testing.T) (*GoogleSource, *int32) {
	t.Helper()
	ts, listCalls := fakeDirectory(t)
	src := NewGoogleSource("example.com", batch.Options{Size: 10})
	src.newService = func(ctx context.Context, tokens Tokens) (*admin.Service, error) {
		return admin.NewService(ctx,
			option.WithEndpoint(ts.URL+"/"),
			option.WithoutAuthentication(),
		)
	}
	return src, listCalls
}

func TestGoogleFetchUsers(t *testing.T) {
	src, _ := newFakeGoogleSource(t)

	users, err := src.FetchUsers(context.Background(), testTokens())
	if err != nil {
		t.Fatalf("FetchUsers: %v", err)
	}
	want := []DirectoryUser{
		{Email: "a@example.com", IsAdmin: true},
		{Email: "b@example.com", IsAdmin: false},
	}
	if !reflect.DeepEqual(users, want) {
		t.Errorf("users = %+v, want %+v (suspended users skipped)", users, want)
	}
}

func TestGoogleFetchGrants(t *testing.T) {
	src, listCalls := newFakeGoogleSource(t)

	users, err := src.FetchUsers(context.Background(), testTokens())
	if err != nil {
		t.Fatalf("FetchUsers: %v", err)
	}
	grants, err := src.FetchGrants(context.Background(), testTokens(), users)
	if err != nil {
		t.Fatalf("FetchGrants: %v", err)
	}
	if len(grants) != 3 {
		t.Fatalf("got %d grants, want 3: %+v", len(grants), grants)
	}
	// Grant fetching reuses the already-listed directory instead of
	// enumerating it a second time.
	if n := atomic.LoadInt32(listCalls); n != 1 {
		t.Errorf("directory listed %d times across the run, want 1", n)
	}

	byUser := make(map[string][]Grant)
	for _, g := range grants {
		byUser[g.UserEmail] = append(byUser[g.UserEmail], g)
	}
	if len(byUser["a@example.com"]) != 1 || len(byUser["b@example.com"]) != 2 {
		t.Fatalf("grant distribution wrong: %+v", byUser)
	}

	// Empty scope list normalized to the sentinel.
	for _, g := range byUser["b@example.com"] {
		if g.ClientID == "c2" && !reflect.DeepEqual(g.Scopes, []string{UnknownScope}) {
			t.Errorf("c2 scopes = %v, want sentinel", g.Scopes)
		}
	}
}
