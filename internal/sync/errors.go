package sync

import "fmt"

// CredentialError means token refresh exhausted its retries. Fatal to the
// run; the next scheduled run starts from scratch.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string { return fmt.Sprintf("credential refresh: %v", e.Err) }
func (e *CredentialError) Unwrap() error { return e.Err }

// ProviderFetchError means the grant API was unreachable or returned garbage.
// Fatal to the run.
type ProviderFetchError struct {
	Provider string
	Err      error
}

func (e *ProviderFetchError) Error() string {
	return fmt.Sprintf("fetch grants from %s: %v", e.Provider, e.Err)
}
func (e *ProviderFetchError) Unwrap() error { return e.Err }

// PersistenceError means one batch of writes failed. The batch is skipped
// and the run finishes as COMPLETED_WITH_ERRORS; partial progress beats none.
type PersistenceError struct {
	Stage string
	Err   error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist %s: %v", e.Stage, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// NotificationError means an email dispatch failed after its tracking row
// was written. Logged only; the tracking row guarantees no duplicate later.
type NotificationError struct {
	Kind      string
	Recipient string
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s to %s: %v", e.Kind, e.Recipient, e.Err)
}
func (e *NotificationError) Unwrap() error { return e.Err }
