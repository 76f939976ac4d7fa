package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/studyhall/pairhub/internal/config"
	"github.com/studyhall/pairhub/internal/handler"
	"github.com/studyhall/pairhub/internal/handler/pair"
	pairservice "github.com/studyhall/pairhub/internal/service/pair"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	sessionService := pairservice.NewService(pairservice.Config{
		TTL:            cfg.Session.TTL,
		MaxMessages:    cfg.Session.MaxMessages,
		ReplayMessages: cfg.Session.ReplayMessages,
	})
	go sessionService.Run(ctx, cfg.Session.SweepInterval)
	log.Printf("session service ready (ttl=%s, max_messages=%d, replay=%d)",
		cfg.Session.TTL, cfg.Session.MaxMessages, cfg.Session.ReplayMessages)

	relay := pair.NewRelay(sessionService, cfg.Server.AllowedOrigins)
	router := handler.NewRouter(sessionService, relay, cfg.Server.AllowedOrigins)

	startServer(ctx, cfg.Server, router, relay)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, relay *pair.Relay) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// Shutdown does not track hijacked websocket connections.
	srv.RegisterOnShutdown(func() {
		relay.DisconnectAll("server shutting down")
	})

	log.Printf("pairhub relay listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
