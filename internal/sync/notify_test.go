package sync

import (
	"errors"
	"sync"
	"testing"

	"github.com/oversight-hq/oversight/internal/mailer"
	"github.com/oversight-hq/oversight/internal/server/db"
)

// recordingMailer collects sent messages; safe for concurrent sends.
type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *recordingMailer) Send(msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func TestDispatchSendsOnce(t *testing.T) {
	store := newTestStore(t)
	org := newTestOrg(t, store)
	mail := &recordingMailer{}
	d := &Dispatcher{Store: store, Mailer: mail}

	ev := Event{
		OrganizationID: org.ID,
		Recipient:      "admin@corp.test",
		ApplicationID:  "app1",
		Kind:           db.NotifyNewApp,
		Payload:        mailer.Payload{AppName: "Acme Notes", OrganizationName: org.Name, RiskLevel: db.RiskHigh},
	}

	sent, err := d.Dispatch(ev)
	if err != nil || !sent {
		t.Fatalf("Dispatch: sent=%v err=%v", sent, err)
	}
	sent, err = d.Dispatch(ev)
	if err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if sent {
		t.Fatal("second Dispatch reported a send")
	}
	if got := mail.sentCount(); got != 1 {
		t.Fatalf("sent = %d, want 1", got)
	}
	if mail.sent[0].To != "admin@corp.test" {
		t.Fatalf("recipient = %s", mail.sent[0].To)
	}
}

func TestDispatchConcurrentRunsSendOnce(t *testing.T) {
	store := newTestStore(t)
	org := newTestOrg(t, store)
	mail := &recordingMailer{}

	ev := Event{
		OrganizationID: org.ID,
		Recipient:      "anna@corp.test",
		ApplicationID:  "app1",
		Kind:           db.NotifyNewUser,
		Payload:        mailer.Payload{AppName: "Acme Notes"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := &Dispatcher{Store: store, Mailer: mail}
			if _, err := d.Dispatch(ev); err != nil {
				t.Errorf("Dispatch: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := mail.sentCount(); got != 1 {
		t.Fatalf("sent = %d, want exactly 1", got)
	}
	n, err := store.CountNotifications(org.ID, db.NotifyNewUser)
	if err != nil || n != 1 {
		t.Fatalf("tracking rows = %d err=%v, want 1", n, err)
	}
}

func TestDispatchSendFailureIsClaimed(t *testing.T) {
	store := newTestStore(t)
	org := newTestOrg(t, store)
	mail := &recordingMailer{err: errors.New("smtp down")}
	d := &Dispatcher{Store: store, Mailer: mail}

	ev := Event{
		OrganizationID: org.ID,
		Recipient:      "anna@corp.test",
		ApplicationID:  "app1",
		Kind:           db.NotifyNewUser,
		Payload:        mailer.Payload{AppName: "Acme Notes"},
	}

	_, err := d.Dispatch(ev)
	var nerr *NotificationError
	if !errors.As(err, &nerr) {
		t.Fatalf("err = %v, want *NotificationError", err)
	}

	// The claim stands: a retry must not resend.
	mail.err = nil
	sent, err := d.Dispatch(ev)
	if err != nil {
		t.Fatalf("retry Dispatch: %v", err)
	}
	if sent {
		t.Fatal("retry resent a claimed notification")
	}
	if got := mail.sentCount(); got != 0 {
		t.Fatalf("sent = %d, want 0 (claim already taken)", got)
	}
}

func TestDispatchDistinctKindsAreIndependent(t *testing.T) {
	store := newTestStore(t)
	org := newTestOrg(t, store)
	mail := &recordingMailer{}
	d := &Dispatcher{Store: store, Mailer: mail}

	base := Event{
		OrganizationID: org.ID,
		Recipient:      "anna@corp.test",
		ApplicationID:  "app1",
		Payload:        mailer.Payload{AppName: "Acme Notes"},
	}
	for _, kind := range []string{db.NotifyNewUser, db.NotifyNewUserReview} {
		ev := base
		ev.Kind = kind
		if _, err := d.Dispatch(ev); err != nil {
			t.Fatalf("Dispatch %s: %v", kind, err)
		}
	}
	if got := mail.sentCount(); got != 2 {
		t.Fatalf("sent = %d, want 2", got)
	}
}
