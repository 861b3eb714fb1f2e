// ABOUTME: Entry point for the fieldwatch service
// ABOUTME: Wires config, logging, cache, scheduler, monitor, and the HTTP API together
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/harperreed/fieldwatch/cache"
	"github.com/harperreed/fieldwatch/db"
	"github.com/harperreed/fieldwatch/monitor"
	"github.com/harperreed/fieldwatch/notify"
	"github.com/harperreed/fieldwatch/scheduler"
	"github.com/harperreed/fieldwatch/upstream"
	"github.com/harperreed/fieldwatch/web"
)

const version = "0.1.0"

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	port := flag.Int("port", 8080, "HTTP API port")
	accountID := flag.String("account", "", "Account id to schedule and monitor (default: FIELDWATCH_ACCOUNT)")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/fieldwatch/fieldwatch.db)")
	configPath := flag.String("notify-config", "", "Notification config path (default: XDG data dir)")
	syncEvery := flag.Duration("sync-interval", scheduler.DefaultInterval, "Scheduled refresh interval")
	checkEvery := flag.Duration("check-interval", monitor.DefaultInterval, "Monitor check-pass interval")
	devLogging := flag.Bool("dev", false, "Human-readable logging")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fieldwatch version %s\n", version)
		os.Exit(0)
	}

	// .env is optional; real env vars win.
	_ = godotenv.Load()

	log, err := newLogger(*devLogging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if *accountID == "" {
		*accountID = os.Getenv("FIELDWATCH_ACCOUNT")
	}
	if *accountID == "" {
		log.Fatal("no account configured; pass --account or set FIELDWATCH_ACCOUNT")
	}

	baseURL := os.Getenv("UPSTREAM_BASE_URL")
	if baseURL == "" {
		log.Fatal("UPSTREAM_BASE_URL is required")
	}
	client := upstream.NewHTTPClient(baseURL, os.Getenv("UPSTREAM_TOKEN"), log)

	database, err := db.OpenDatabase(databasePath(*dbPath))
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer func() { _ = database.Close() }()
	store := db.NewJobStore(database)

	syncCache := cache.New(client, log, cache.WithRecordStore(store))
	sched := scheduler.New(syncCache, *accountID, *syncEvery, log)

	if *configPath == "" {
		*configPath = notify.DefaultConfigPath()
	}
	engine := notify.NewEngine(*configPath, log)

	monOpts := []monitor.Option{
		monitor.WithInterval(*checkEvery),
		monitor.WithNotificationLog(store),
	}
	if mailer := buildMailer(log); mailer != nil {
		monOpts = append(monOpts, monitor.WithMailer(mailer))
	}
	mon := monitor.New(syncCache, client, engine, *accountID, log, monOpts...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched.Start(ctx)
	mon.Start(ctx)

	server := web.NewServer(syncCache, client, sched, mon, engine, store, log)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(*port) }()

	log.Info("fieldwatch started",
		zap.String("version", version),
		zap.String("account_id", *accountID),
		zap.Int("port", *port))

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", zap.Error(err))
		}
	}

	sched.Stop()
	mon.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func databasePath(override string) string {
	if override != "" {
		return override
	}
	if p := os.Getenv("FIELDWATCH_DB"); p != "" {
		return p
	}
	return filepath.Join(xdg.DataHome, "fieldwatch", "fieldwatch.db")
}

// buildMailer constructs the SMTP transport from SMTP_* env vars, or returns
// nil when none is configured.
func buildMailer(log *zap.Logger) notify.Mailer {
	cfg := notify.SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	}
	if portStr := os.Getenv("SMTP_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = p
		}
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if !cfg.Configured() {
		log.Info("no SMTP transport configured; notifications will not be dispatched")
		return nil
	}

	mailer, err := notify.NewSMTPMailer(cfg)
	if err != nil {
		log.Warn("failed to build SMTP transport", zap.Error(err))
		return nil
	}
	return mailer
}
