package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"remindflow/internal/api"
	"remindflow/internal/config"
	"remindflow/internal/contact"
	"remindflow/internal/notify"
	"remindflow/internal/reminder"
	"remindflow/internal/schedgw"
	"remindflow/internal/store"
	"remindflow/internal/sweep"
	"remindflow/internal/timing"
)

func main() {
	var (
		addr    = flag.String("addr", "", "HTTP bind address (overrides config)")
		cfgPath = flag.String("config", "", "path to YAML config")
		dbPath  = flag.String("db", "", "SQLite DB path (overrides config)")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := sweep.ValidateSpec(cfg.SweepSpec); err != nil {
		log.Fatal().Err(err).Str("spec", cfg.SweepSpec).Msg("invalid sweep spec")
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	repo := store.NewSQLiteRepo(db)

	loc := timing.Location(cfg.TZOffsetHours)
	calc := timing.NewCalculator(loc)
	resolver := contact.NewResolver(cfg.CountryPrefix)
	gateway := schedgw.NewHTTPGateway(cfg.Scheduler.BaseURL, cfg.Scheduler.APIKey, cfg.Scheduler.CallbackURL, cfg.Scheduler.Timeout())
	orch := reminder.NewOrchestrator(repo, gateway, resolver, calc, cfg.Scheduler.Timeout())

	emailSender := notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	messagingSender := notify.NewGatewaySender(cfg.Messaging.BaseURL, cfg.Messaging.APIKey, cfg.Messaging.Timeout(), cfg.Messaging.PerSecond, cfg.Messaging.Burst)
	worker := notify.NewWorker(emailSender, messagingSender, repo, notify.NewRenderer(loc))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := sweep.NewService(repo, cfg.SweepSpec).Run(ctx); err != nil {
			log.Error().Err(err).Msg("overdue sweep stopped")
		}
	}()

	srv := &http.Server{Addr: cfg.Addr, Handler: api.NewServer(repo, orch, worker)}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
