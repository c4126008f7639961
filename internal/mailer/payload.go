package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// Payload carries the fields every notification kind renders from.
type Payload struct {
	To               string
	AppName          string
	OrganizationName string
	RiskLevel        string
	Category         string
	UserCount        int
	TotalPermissions int
}

var (
	newAppTmpl = template.Must(template.New("new_app").Parse(`
<p>A new third-party application was discovered in {{.OrganizationName}}.</p>
<ul>
  <li>Application: <b>{{.AppName}}</b></li>
  <li>Risk level: {{.RiskLevel}}</li>
  {{if .Category}}<li>Category: {{.Category}}</li>{{end}}
  <li>Users who authorized it: {{.UserCount}}</li>
  <li>Permissions granted: {{.TotalPermissions}}</li>
</ul>
<p>Review it in your oversight dashboard.</p>`))

	newUserTmpl = template.Must(template.New("new_user").Parse(`
<p>You authorized <b>{{.AppName}}</b> with your {{.OrganizationName}} account.</p>
<p>It was granted {{.TotalPermissions}} permission(s) and is rated {{.RiskLevel}} risk.</p>
<p>If this wasn't you, revoke its access from your account security page.</p>`))

	newUserReviewTmpl = template.Must(template.New("new_user_review").Parse(`
<p>A user in {{.OrganizationName}} authorized <b>{{.AppName}}</b>, which is pending review.</p>
<ul>
  <li>Risk level: {{.RiskLevel}}</li>
  <li>Users so far: {{.UserCount}}</li>
</ul>`))
)

// Build renders the message for a notification kind.
func Build(kind string, p Payload) (Message, error) {
	var (
		tmpl    *template.Template
		subject string
	)
	switch kind {
	case "new_app":
		tmpl = newAppTmpl
		subject = fmt.Sprintf("New application discovered: %s", p.AppName)
	case "new_user":
		tmpl = newUserTmpl
		subject = fmt.Sprintf("You connected %s to your work account", p.AppName)
	case "new_user_review":
		tmpl = newUserReviewTmpl
		subject = fmt.Sprintf("Unreviewed app %s gained a user", p.AppName)
	default:
		return Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, p); err != nil {
		return Message{}, fmt.Errorf("render %s notification: %w", kind, err)
	}
	return Message{To: p.To, Subject: subject, HTMLBody: body.String()}, nil
}
