package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/oversight-hq/oversight/internal/logx"
	"github.com/oversight-hq/oversight/internal/obs"
	"github.com/oversight-hq/oversight/internal/server"
	"github.com/oversight-hq/oversight/internal/server/db"
	"github.com/oversight-hq/oversight/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	verbose := flag.Bool("verbose", false, "Enable verbose debug logs (same as --log-level debug)")
	logLevel := flag.String("log-level", "", "Log level: debug|info|warn|error (or OVERSIGHT_LOG_LEVEL)")
	flag.BoolVar(showVersion, "v", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\n", version.String("oversight-server"))
		fmt.Fprintf(os.Stderr, "Oversight server discovers third-party OAuth grants across an organization and keeps them reconciled.\n\n")
		fmt.Fprintf(os.Stderr, "Environment variables:\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_MASTER_KEY            Token encryption key (64 hex chars, required)\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_ADMIN_TOKEN           Admin Bearer token for the API (min 16 chars, required)\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_DB_PATH               SQLite database path (default: oversight.db)\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_LISTEN_ADDR           Listen address (default: :8080)\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_GOOGLE_CLIENT_ID      OAuth client ID for Google Workspace token refresh\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_GOOGLE_CLIENT_SECRET  OAuth client secret for Google Workspace\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_MS_CLIENT_ID          OAuth client ID for Microsoft Entra token refresh\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_MS_CLIENT_SECRET      OAuth client secret for Microsoft Entra\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_SMTP_HOST             SMTP host for notifications (unset: notifications dropped)\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_SMTP_PORT             SMTP port (default: 587)\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_SMTP_USER             SMTP username\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_SMTP_PASSWORD         SMTP password\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_SMTP_FROM             Notification sender address\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_BATCH_SIZE            Items per write batch (default: 50)\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_BATCH_DELAY_MS        Pause between batches in ms (default: 200)\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_CORS_ORIGINS          Comma-separated allowed dashboard origins\n")
		fmt.Fprintf(os.Stderr, "  OVERSIGHT_LOG_LEVEL             Log level: debug|info|warn|error (default: info)\n")
		fmt.Fprintf(os.Stderr, "\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("oversight-server"))
		os.Exit(0)
	}

	if err := logx.Configure(*logLevel, *verbose); err != nil {
		log.Fatalf("configure logging: %v", err)
	}

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := db.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer store.Close()

	obs.Init()

	app := server.NewApp(store, cfg)
	defer app.Shutdown()
	r := server.NewRouter(app)

	log.Printf("oversight-server listening on %s", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
