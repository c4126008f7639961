package db

import "time"

// Identity providers an organization can sync from.
const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
)

// Risk tiers derived from granted scopes.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Management review states for a discovered application.
const (
	StatusManaged     = "MANAGED"
	StatusUnmanaged   = "UNMANAGED"
	StatusNeedsReview = "NEEDS_REVIEW"
)

// Relation lifecycle states. REMOVED is a soft delete: the row stays for
// audit and reactivates if the user shows up again in a later sync.
const (
	RelationActive  = "ACTIVE"
	RelationRemoved = "REMOVED"
)

// Sync attempt states.
const (
	SyncPending             = "PENDING"
	SyncInProgress          = "IN_PROGRESS"
	SyncCompleted           = "COMPLETED"
	SyncCompletedWithErrors = "COMPLETED_WITH_ERRORS"
	SyncFailed              = "FAILED"
)

// Notification kinds tracked for at-most-once delivery.
const (
	NotifyNewApp        = "new_app"
	NotifyNewUser       = "new_user"
	NotifyNewUserReview = "new_user_review"
)

// Organization is a tenant boundary: one identity-provider domain.
type Organization struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	Name      string    `json:"name"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrgUser is a directory user of the organization. Admins receive
// new-app notifications; regular users receive per-relation ones.
type OrgUser struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Email          string    `json:"email"`
	IsAdmin        bool      `json:"is_admin"`
	CreatedAt      time.Time `json:"created_at"`
}

// Application is a third-party OAuth client discovered for an organization.
// ClientIDs holds the comma-joined set of provider client IDs that have
// historically identified this application; matching happens against any
// member of that set. Rows are never deleted.
type Application struct {
	ID               string    `json:"id"`
	OrganizationID   string    `json:"organization_id"`
	ClientIDs        string    `json:"client_ids"`
	Name             string    `json:"name"`
	Scopes           string    `json:"scopes"`
	RiskTier         string    `json:"risk_tier"`
	Category         string    `json:"category"`
	UserCount        int       `json:"user_count"`
	ManagementStatus string    `json:"management_status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// UserAppRelation links a directory user to an application they authorized.
// Scopes only grow across syncs; they survive REMOVED/reactivation cycles.
type UserAppRelation struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	UserEmail      string    `json:"user_email"`
	ApplicationID  string    `json:"application_id"`
	Scopes         string    `json:"scopes"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SyncStatus is one row per sync attempt. Credential rotation inserts a new
// row rather than mutating an old one, so the token history stays auditable.
// Tokens are AES-GCM encrypted before they reach this struct.
type SyncStatus struct {
	ID              string     `json:"id"`
	OrganizationID  string     `json:"organization_id"`
	Status          string     `json:"status"`
	Progress        int        `json:"progress"`
	Message         string     `json:"message"`
	AccessTokenEnc  []byte     `json:"-"`
	RefreshTokenEnc []byte     `json:"-"`
	TokenExpiry     *time.Time `json:"token_expiry,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NotificationRecord is the at-most-once tracking row for an outbound
// notification. The composite primary key is the sole dedup mechanism.
type NotificationRecord struct {
	OrganizationID string    `json:"organization_id"`
	UserEmail      string    `json:"user_email"`
	ApplicationID  string    `json:"application_id"`
	Kind           string    `json:"kind"`
	SentAt         time.Time `json:"sent_at"`
}
