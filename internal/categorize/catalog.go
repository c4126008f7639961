// Package categorize assigns discovered applications a category string.
// Matching is two-stage: a known-app catalog matched against the display
// name with Aho-Corasick, then a scope-keyword heuristic fallback. Categories
// are eventually consistent; the sync pipeline never blocks on them.
package categorize

import (
	"strings"

	aho "github.com/petar-dambovaliev/aho-corasick"
)

// Uncategorized is assigned when neither the catalog nor the scope heuristic
// matches.
const Uncategorized = "Uncategorized"

type catalogEntry struct {
	pattern  string
	category string
}

// Display-name catalog of common SaaS apps. Patterns are substrings matched
// case-insensitively; the longest match wins.
var catalog = []catalogEntry{
	{"slack", "Communication"},
	{"zoom", "Communication"},
	{"microsoft teams", "Communication"},
	{"discord", "Communication"},
	{"loom", "Communication"},
	{"notion", "Productivity"},
	{"asana", "Productivity"},
	{"trello", "Productivity"},
	{"todoist", "Productivity"},
	{"monday", "Productivity"},
	{"airtable", "Productivity"},
	{"clickup", "Productivity"},
	{"evernote", "Productivity"},
	{"calendly", "Scheduling"},
	{"doodle", "Scheduling"},
	{"figma", "Design"},
	{"canva", "Design"},
	{"miro", "Design"},
	{"adobe", "Design"},
	{"sketch", "Design"},
	{"github", "Developer Tools"},
	{"gitlab", "Developer Tools"},
	{"bitbucket", "Developer Tools"},
	{"jira", "Developer Tools"},
	{"postman", "Developer Tools"},
	{"vercel", "Developer Tools"},
	{"netlify", "Developer Tools"},
	{"sentry", "Developer Tools"},
	{"dropbox", "Storage"},
	{"box", "Storage"},
	{"we transfer", "Storage"},
	{"wetransfer", "Storage"},
	{"salesforce", "CRM"},
	{"hubspot", "CRM"},
	{"pipedrive", "CRM"},
	{"zendesk", "Support"},
	{"intercom", "Support"},
	{"freshdesk", "Support"},
	{"mailchimp", "Marketing"},
	{"sendgrid", "Marketing"},
	{"buffer", "Marketing"},
	{"hootsuite", "Marketing"},
	{"quickbooks", "Finance"},
	{"xero", "Finance"},
	{"stripe", "Finance"},
	{"expensify", "Finance"},
	{"docusign", "Legal"},
	{"pandadoc", "Legal"},
	{"grammarly", "Writing"},
	{"otter", "Writing"},
	{"chatgpt", "AI"},
	{"openai", "AI"},
	{"claude", "AI"},
	{"gemini", "AI"},
	{"midjourney", "AI"},
	{"zapier", "Automation"},
	{"ifttt", "Automation"},
	{"make.com", "Automation"},
	{"tableau", "Analytics"},
	{"looker", "Analytics"},
	{"mixpanel", "Analytics"},
	{"amplitude", "Analytics"},
	{"okta", "IT Management"},
	{"1password", "IT Management"},
	{"lastpass", "IT Management"},
}

// Scope keyword fallback, checked in order.
var scopeHints = []struct {
	keyword  string
	category string
}{
	{"mail", "Email"},
	{"gmail", "Email"},
	{"calendar", "Scheduling"},
	{"drive", "Storage"},
	{"files", "Storage"},
	{"spreadsheets", "Productivity"},
	{"documents", "Productivity"},
	{"contacts", "CRM"},
	{"directory", "IT Management"},
	{"admin", "IT Management"},
}

// Matcher categorizes applications by display name and scopes.
type Matcher struct {
	ac aho.AhoCorasick
}

// NewMatcher builds the catalog automaton once; Matcher is safe for
// concurrent use.
func NewMatcher() *Matcher {
	patterns := make([]string, len(catalog))
	for i, e := range catalog {
		patterns[i] = e.pattern
	}
	builder := aho.NewAhoCorasickBuilder(aho.Opts{
		AsciiCaseInsensitive: true,
		MatchKind:            aho.LeftMostLongestMatch,
	})
	return &Matcher{ac: builder.Build(patterns)}
}

// Categorize returns the category for an application. Name matches beat
// scope hints; the longest catalog match wins.
func (m *Matcher) Categorize(name string, scopes []string) string {
	if name != "" {
		best := -1
		bestLen := 0
		for _, match := range m.ac.FindAll(name) {
			if l := match.End() - match.Start(); l > bestLen {
				bestLen = l
				best = match.Pattern()
			}
		}
		if best >= 0 {
			return catalog[best].category
		}
	}

	for _, s := range scopes {
		ls := strings.ToLower(s)
		for _, h := range scopeHints {
			if strings.Contains(ls, h.keyword) {
				return h.category
			}
		}
	}
	return Uncategorized
}
