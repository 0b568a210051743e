package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.io/infrasutra/mailbridge/internal/api"
	"github.io/infrasutra/mailbridge/internal/auth"
	"github.io/infrasutra/mailbridge/internal/config"
	"github.io/infrasutra/mailbridge/internal/health"
	"github.io/infrasutra/mailbridge/internal/provider"
	"github.io/infrasutra/mailbridge/internal/provider/mailersend"
	"github.io/infrasutra/mailbridge/internal/provider/mailgun"
	"github.io/infrasutra/mailbridge/internal/provider/postmark"
	"github.io/infrasutra/mailbridge/internal/smtpserver"
	"github.io/infrasutra/mailbridge/internal/sse"
	"github.io/infrasutra/mailbridge/internal/store"
	"github.io/infrasutra/mailbridge/internal/token"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	authManager, err := auth.New(cfg.AdminToken, 30*24*time.Hour)
	if err != nil {
		logger.Error("init auth", "error", err)
		os.Exit(1)
	}
	if !cfg.AdminEnabled() {
		logger.Warn("ADMIN_TOKEN not set; admin API disabled")
	}

	// One outbound client shared by all adapters; its timeout bounds every
	// provider call.
	httpClient := &http.Client{Timeout: 30 * time.Second}
	senders := map[token.Provider]provider.Sender{
		token.ProviderMailerSend: mailersend.New(httpClient),
		token.ProviderPostmark:   postmark.New(httpClient),
		token.ProviderMailgun:    mailgun.New(httpClient),
	}

	hub := sse.NewHub()
	prober := health.NewProber(cfg.ListenHost, cfg.SMTPPorts, logger)
	apiServer := api.NewServer(cfg, db, authManager, hub, prober, logger)

	var smtpServers []*smtpserver.Server
	for _, port := range cfg.SMTPPorts {
		srv := smtpserver.New(smtpserver.Options{
			Addr:    fmt.Sprintf("%s:%d", cfg.ListenHost, port),
			Port:    port,
			Domain:  cfg.ServerName,
			Senders: senders,
			Store:   db,
			Hub:     hub,
			Logger:  logger,
		})
		smtpServers = append(smtpServers, srv)

		go func(srv *smtpserver.Server, port int) {
			if err := srv.ListenAndServe(); err != nil {
				logger.Error("smtp server stopped", "port", port, "error", err)
			}
		}(srv, port)
	}

	httpAddr := fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.HealthPort)
	httpSrv := &http.Server{
		Addr:    httpAddr,
		Handler: apiServer,
	}

	go func() {
		logger.Info("http server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown http", "error", err)
	}
	for _, srv := range smtpServers {
		if err := srv.Close(); err != nil {
			logger.Error("shutdown smtp", "error", err)
		}
	}
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load(), nil
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}
