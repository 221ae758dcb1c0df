package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/auth"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/catalog"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/config"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/fulfillment"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/gateway/backend"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/router"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/session"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/ws"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return err
	}

	gw, closeGateway, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGateway()

	engine := fulfillment.NewEngine(gw, cat)
	if cfg.Gateway == config.GatewayMemory {
		// An empty in-process store gets one zero-quantity row per catalog item.
		if _, err := engine.SeedCatalog(ctx, 0); err != nil {
			return fmt.Errorf("seed memory gateway: %w", err)
		}
		slog.Warn("using in-memory gateway; data is lost on restart")
	}
	if err := engine.VerifyMapping(ctx); err != nil {
		slog.Warn("orders reference products without inventory rows", "error", err)
	}

	store, closeSessions, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	creds := auth.NewCredentials(cfg.Credentials)
	if len(creds.Usernames()) == 0 {
		slog.Warn("no login credentials configured; set LOGIN1/LOGINPASSWORD1 or LOGINS")
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	r := router.New(cfg, router.Services{
		Gateway:     gw,
		Catalog:     cat,
		Engine:      engine,
		Sessions:    session.NewController(store),
		Credentials: creds,
		Hub:         hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", cfg.Port, "gateway", cfg.Gateway, "sessions", cfg.SessionStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func openSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return session.NewMemoryStore(cfg.SessionTTL), func() {}, nil
	}
	rs, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		return nil, nil, err
	}
	if err := rs.Ping(ctx); err != nil {
		rs.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return rs, func() { rs.Close() }, nil
}
