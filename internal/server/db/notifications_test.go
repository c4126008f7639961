package db

import (
	"fmt"
	"sync"
	"testing"
)

func TestTrackNotificationDedup(t *testing.T) {
	s := newTestStore(t)
	org := newTestOrg(t, s)

	n := &NotificationRecord{
		OrganizationID: org.ID,
		UserEmail:      "admin@example.com",
		ApplicationID:  "app-1",
		Kind:           NotifyNewApp,
	}
	if err := s.TrackNotification(n); err != nil {
		t.Fatalf("TrackNotification: %v", err)
	}

	dup := &NotificationRecord{
		OrganizationID: org.ID,
		UserEmail:      "admin@example.com",
		ApplicationID:  "app-1",
		Kind:           NotifyNewApp,
	}
	if err := s.TrackNotification(dup); err != ErrNotificationDuplicate {
		t.Fatalf("expected ErrNotificationDuplicate, got %v", err)
	}

	// Different kind for the same tuple is a distinct notification.
	other := &NotificationRecord{
		OrganizationID: org.ID,
		UserEmail:      "admin@example.com",
		ApplicationID:  "app-1",
		Kind:           NotifyNewUser,
	}
	if err := s.TrackNotification(other); err != nil {
		t.Fatalf("TrackNotification other kind: %v", err)
	}

	count, err := s.CountNotifications(org.ID, NotifyNewApp)
	if err != nil {
		t.Fatalf("CountNotifications: %v", err)
	}
	if count != 1 {
		t.Fatalf("got %d new_app rows, want 1", count)
	}
}

// Two concurrent runs racing on the same tuple: exactly one insert wins.
func TestTrackNotificationConcurrent(t *testing.T) {
	s := newTestStore(t)
	org := newTestOrg(t, s)

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := &NotificationRecord{
				OrganizationID: org.ID,
				UserEmail:      "admin@example.com",
				ApplicationID:  "app-race",
				Kind:           NotifyNewApp,
			}
			err := s.TrackNotification(n)
			switch err {
			case nil:
				wins <- struct{}{}
			case ErrNotificationDuplicate:
				// lost the race, expected
			default:
				t.Errorf("TrackNotification: %v", err)
			}
		}()
	}
	wg.Wait()
	close(wins)

	var won int
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("%d workers claimed the notification, want exactly 1", won)
	}
}

// A large fan-out of distinct tuples must land every claim. Concurrent
// inserts spread across the connection pool, so each connection needs the
// busy-timeout pragma or claims are dropped as SQLITE_BUSY.
func TestTrackNotificationConcurrentDistinctKeys(t *testing.T) {
	s := newTestStore(t)
	org := newTestOrg(t, s)

	const claims = 150
	var wg sync.WaitGroup
	for i := 0; i < claims; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n := &NotificationRecord{
				OrganizationID: org.ID,
				UserEmail:      fmt.Sprintf("admin%d@example.com", i%30),
				ApplicationID:  fmt.Sprintf("app-%d", i/30),
				Kind:           NotifyNewApp,
			}
			if err := s.TrackNotification(n); err != nil {
				t.Errorf("TrackNotification %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	count, err := s.CountNotifications(org.ID, NotifyNewApp)
	if err != nil {
		t.Fatalf("CountNotifications: %v", err)
	}
	if count != claims {
		t.Fatalf("got %d tracking rows, want %d", count, claims)
	}
}
