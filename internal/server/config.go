package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oversight-hq/oversight/internal/batch"
	"github.com/oversight-hq/oversight/internal/crypto"
)

// Config holds server configuration loaded from environment variables.
type Config struct {
	AdminToken  string
	DBPath      string
	ListenAddr  string
	MasterKey   [32]byte
	CORSOrigins []string

	// OAuth client credentials used for token refresh, per provider.
	GoogleClientID        string
	GoogleClientSecret    string
	MicrosoftClientID     string
	MicrosoftClientSecret string

	// SMTP settings. Host empty means notifications are logged and dropped.
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	Batch batch.Options
}

// LoadConfig loads server configuration from environment variables.
func LoadConfig() (*Config, error) {
	adminToken := os.Getenv("OVERSIGHT_ADMIN_TOKEN")
	if adminToken == "" {
		return nil, fmt.Errorf("OVERSIGHT_ADMIN_TOKEN is required")
	}
	if len(adminToken) < 16 {
		return nil, fmt.Errorf("OVERSIGHT_ADMIN_TOKEN must be at least 16 characters")
	}

	masterKey, err := crypto.ParseMasterKey(os.Getenv("OVERSIGHT_MASTER_KEY"))
	if err != nil {
		return nil, fmt.Errorf("OVERSIGHT_MASTER_KEY: %w", err)
	}

	dbPath := os.Getenv("OVERSIGHT_DB_PATH")
	if dbPath == "" {
		dbPath = "oversight.db"
	}

	listenAddr := os.Getenv("OVERSIGHT_LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	var corsOrigins []string
	if v := os.Getenv("OVERSIGHT_CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				corsOrigins = append(corsOrigins, o)
			}
		}
	}

	smtpPort := 587
	if v := os.Getenv("OVERSIGHT_SMTP_PORT"); v != "" {
		smtpPort, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("OVERSIGHT_SMTP_PORT must be a number")
		}
	}

	batchOpts := batch.DefaultOptions
	if v := os.Getenv("OVERSIGHT_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("OVERSIGHT_BATCH_SIZE must be a positive number")
		}
		batchOpts.Size = n
	}
	if v := os.Getenv("OVERSIGHT_BATCH_DELAY_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("OVERSIGHT_BATCH_DELAY_MS must be a non-negative number")
		}
		batchOpts.Delay = time.Duration(n) * time.Millisecond
	}

	return &Config{
		AdminToken:            adminToken,
		DBPath:                dbPath,
		ListenAddr:            listenAddr,
		MasterKey:             masterKey,
		CORSOrigins:           corsOrigins,
		GoogleClientID:        os.Getenv("OVERSIGHT_GOOGLE_CLIENT_ID"),
		GoogleClientSecret:    os.Getenv("OVERSIGHT_GOOGLE_CLIENT_SECRET"),
		MicrosoftClientID:     os.Getenv("OVERSIGHT_MS_CLIENT_ID"),
		MicrosoftClientSecret: os.Getenv("OVERSIGHT_MS_CLIENT_SECRET"),
		SMTPHost:              os.Getenv("OVERSIGHT_SMTP_HOST"),
		SMTPPort:              smtpPort,
		SMTPUser:              os.Getenv("OVERSIGHT_SMTP_USER"),
		SMTPPassword:          os.Getenv("OVERSIGHT_SMTP_PASSWORD"),
		SMTPFrom:              os.Getenv("OVERSIGHT_SMTP_FROM"),
		Batch:                 batchOpts,
	}, nil
}

// SMTPConfigured reports whether outbound mail can actually be sent.
func (c *Config) SMTPConfigured() bool { return c.SMTPHost != "" }
