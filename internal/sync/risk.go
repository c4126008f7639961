package sync

import "github.com/oversight-hq/oversight/internal/server/db"

// Tier is a grant risk classification. Ordering matters: HIGH > MEDIUM > LOW.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return db.RiskHigh
	case TierMedium:
		return db.RiskMedium
	default:
		return db.RiskLow
	}
}

// High-sensitivity scopes: administrative directory writes, full mailbox,
// full drive/file access. Any one of these makes a grant HIGH.
var highRiskScopes = map[string]struct{}{
	// Google Workspace
	"https://www.googleapis.com/auth/admin.directory.user":   {},
	"https://www.googleapis.com/auth/admin.directory.group":  {},
	"https://www.googleapis.com/auth/admin.directory.domain": {},
	"https://mail.google.com/":                               {},
	"https://www.googleapis.com/auth/gmail.modify":           {},
	"https://www.googleapis.com/auth/gmail.compose":          {},
	"https://www.googleapis.com/auth/drive":                  {},
	"https://www.googleapis.com/auth/drive.file":             {},
	"https://www.googleapis.com/auth/documents":              {},
	// Microsoft Graph
	"Directory.ReadWrite.All": {},
	"User.ReadWrite.All":      {},
	"Mail.ReadWrite":          {},
	"Mail.Send":               {},
	"Files.ReadWrite.All":     {},
	"Sites.FullControl.All":   {},
}

// Moderate scopes: read-only directory, calendar, spreadsheets.
var mediumRiskScopes = map[string]struct{}{
	// Google Workspace
	"https://www.googleapis.com/auth/admin.directory.user.readonly": {},
	"https://www.googleapis.com/auth/calendar":                      {},
	"https://www.googleapis.com/auth/calendar.readonly":             {},
	"https://www.googleapis.com/auth/spreadsheets":                  {},
	"https://www.googleapis.com/auth/spreadsheets.readonly":         {},
	"https://www.googleapis.com/auth/drive.readonly":                {},
	"https://www.googleapis.com/auth/gmail.readonly":                {},
	"https://www.googleapis.com/auth/contacts.readonly":             {},
	// Microsoft Graph
	"Directory.Read.All":  {},
	"User.Read.All":       {},
	"Calendars.Read":      {},
	"Calendars.ReadWrite": {},
	"Files.Read.All":      {},
	"Mail.Read":           {},
	"Contacts.Read":       {},
}

// ClassifyScopes returns the highest tier any scope in the set reaches.
// Deterministic: depends only on set membership, not iteration order.
func ClassifyScopes(scopes []string) Tier {
	tier := TierLow
	for _, s := range scopes {
		if _, ok := highRiskScopes[s]; ok {
			return TierHigh
		}
		if _, ok := mediumRiskScopes[s]; ok {
			tier = TierMedium
		}
	}
	return tier
}
