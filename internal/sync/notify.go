package sync

import (
	"errors"

	"github.com/oversight-hq/oversight/internal/mailer"
	"github.com/oversight-hq/oversight/internal/server/db"
)

// NotificationStore is the claim surface the dispatcher writes through.
type NotificationStore interface {
	TrackNotification(n *db.NotificationRecord) error
}

// Dispatcher sends discovery notifications with at-most-once semantics.
// The tracking row is written before the send; a duplicate key means some
// run (this one or a concurrent one) already claimed the notification. A
// send that fails after the row was written is lost, not retried.
type Dispatcher struct {
	Store  NotificationStore
	Mailer mailer.Mailer
}

// Event is one notification to dispatch.
type Event struct {
	OrganizationID string
	Recipient      string
	ApplicationID  string
	Kind           string
	Payload        mailer.Payload
}

// Dispatch claims and sends one notification. The bool reports whether a
// message actually went out: false with a nil error means the notification
// was already claimed. A *NotificationError means the send failed after
// claiming; the claim stands either way.
func (d *Dispatcher) Dispatch(ev Event) (bool, error) {
	err := d.Store.TrackNotification(&db.NotificationRecord{
		OrganizationID: ev.OrganizationID,
		UserEmail:      ev.Recipient,
		ApplicationID:  ev.ApplicationID,
		Kind:           ev.Kind,
	})
	if errors.Is(err, db.ErrNotificationDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ev.Payload.To = ev.Recipient
	msg, err := mailer.Build(ev.Kind, ev.Payload)
	if err != nil {
		return false, &NotificationError{Kind: ev.Kind, Recipient: ev.Recipient, Err: err}
	}
	if err := d.Mailer.Send(msg); err != nil {
		return false, &NotificationError{Kind: ev.Kind, Recipient: ev.Recipient, Err: err}
	}
	return true, nil
}
