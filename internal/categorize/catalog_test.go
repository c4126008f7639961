package categorize

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestCategorizeByName(t *testing.T) {
	m := NewMatcher()
	cases := []struct {
		name string
		want string
	}{
		{"Slack", "Communication"},
		{"Slack for Google Workspace", "Communication"},
		{"NOTION LABS", "Productivity"},
		{"Figma Desktop", "Design"},
		{"GitHub.com", "Developer Tools"},
		{"ChatGPT", "AI"},
	}
	for _, c := range cases {
		if got := m.Categorize(c.name, nil); got != c.want {
			t.Errorf("Categorize(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestCategorizeScopeFallback(t *testing.T) {
	m := NewMatcher()

	got := m.Categorize("Unheard Of App", []string{"https://www.googleapis.com/auth/calendar.readonly"})
	if got != "Scheduling" {
		t.Errorf("calendar scope = %q, want Scheduling", got)
	}

	got = m.Categorize("Mystery", []string{"unknown_scope"})
	if got != Uncategorized {
		t.Errorf("unknown scopes = %q, want %q", got, Uncategorized)
	}
}

func TestCategorizeDeterministic(t *testing.T) {
	m := NewMatcher()
	first := m.Categorize("Zoom for Gmail", []string{"mail"})
	for i := 0; i < 10; i++ {
		if got := m.Categorize("Zoom for Gmail", []string{"mail"}); got != first {
			t.Fatalf("iteration %d: %q != %q", i, got, first)
		}
	}
}

type categoryRecorder struct {
	mu   sync.Mutex
	seen map[string]string
}

func (r *categoryRecorder) UpdateApplicationCategory(appID, category string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[appID] = category
	return nil
}

func TestServiceWritesBack(t *testing.T) {
	rec := &categoryRecorder{seen: make(map[string]string)}
	svc := NewService(rec, 8)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	svc.Enqueue(Job{ApplicationID: "app-1", Name: "Trello Power-Up", Scopes: nil})
	svc.Enqueue(Job{ApplicationID: "app-2", Name: "???", Scopes: []string{"drive"}})

	deadline := time.After(2 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.seen)
		rec.mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for categories")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	svc.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.seen["app-1"] != "Productivity" {
		t.Errorf("app-1 = %q", rec.seen["app-1"])
	}
	if rec.seen["app-2"] != "Storage" {
		t.Errorf("app-2 = %q", rec.seen["app-2"])
	}
}
