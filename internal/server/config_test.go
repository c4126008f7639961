package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

const testMasterKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OVERSIGHT_ADMIN_TOKEN", "0123456789abcdef")
	t.Setenv("OVERSIGHT_MASTER_KEY", testMasterKeyHex)
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DBPath != "oversight.db" || cfg.ListenAddr != ":8080" {
		t.Fatalf("defaults = %q %q", cfg.DBPath, cfg.ListenAddr)
	}
	if cfg.SMTPConfigured() {
		t.Fatal("SMTP should not be configured by default")
	}
	if cfg.Batch.Size <= 0 {
		t.Fatalf("batch size = %d", cfg.Batch.Size)
	}
}

func TestLoadConfigRequiresAdminToken(t *testing.T) {
	t.Setenv("OVERSIGHT_ADMIN_TOKEN", "")
	t.Setenv("OVERSIGHT_MASTER_KEY", testMasterKeyHex)
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing admin token")
	}

	t.Setenv("OVERSIGHT_ADMIN_TOKEN", "short")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for short admin token")
	}
}

func TestLoadConfigRejectsBadMasterKey(t *testing.T) {
	t.Setenv("OVERSIGHT_ADMIN_TOKEN", "0123456789abcdef")
	t.Setenv("OVERSIGHT_MASTER_KEY", "not-hex")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for malformed master key")
	}
}

func TestLoadConfigBatchOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OVERSIGHT_BATCH_SIZE", "25")
	t.Setenv("OVERSIGHT_BATCH_DELAY_MS", "0")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Batch.Size != 25 || cfg.Batch.Delay != 0 {
		t.Fatalf("batch = %+v", cfg.Batch)
	}

	t.Setenv("OVERSIGHT_BATCH_SIZE", "zero")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for non-numeric batch size")
	}
}

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", AdminAuth("0123456789abcdef"), func(c *gin.Context) { c.String(200, "ok") })

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer 0123456789abcdef", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%s: code = %d, want %d", tc.name, w.Code, tc.want)
		}
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://dash.corp.test/"}))
	r.GET("/x", func(c *gin.Context) { c.String(200, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://dash.corp.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.corp.test" {
		t.Fatalf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unlisted origin allowed")
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Fatal("request itself should still pass")
	}
}
