package mailer

import (
	"strings"
	"testing"
)

func TestBuildKinds(t *testing.T) {
	p := Payload{
		To:               "admin@example.com",
		AppName:          "Acme Notes",
		OrganizationName: "Example Inc",
		RiskLevel:        "HIGH",
		Category:         "Productivity",
		UserCount:        4,
		TotalPermissions: 7,
	}

	for _, kind := range []string{"new_app", "new_user", "new_user_review"} {
		msg, err := Build(kind, p)
		if err != nil {
			t.Fatalf("Build(%s): %v", kind, err)
		}
		if msg.To != "admin@example.com" {
			t.Errorf("%s: To = %q", kind, msg.To)
		}
		if !strings.Contains(msg.Subject, "Acme Notes") {
			t.Errorf("%s: subject %q missing app name", kind, msg.Subject)
		}
		if !strings.Contains(msg.HTMLBody, "Acme Notes") {
			t.Errorf("%s: body missing app name", kind)
		}
	}
}

func TestBuildUnknownKind(t *testing.T) {
	if _, err := Build("bogus", Payload{}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestBuildEscapesHTML(t *testing.T) {
	msg, err := Build("new_app", Payload{AppName: "<script>alert(1)</script>", To: "a@b.c"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Contains(msg.HTMLBody, "<script>") {
		t.Fatal("app name not escaped in body")
	}
}
