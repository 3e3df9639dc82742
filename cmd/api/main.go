package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tracker/api/internal/app"
	"tracker/api/internal/config"
	"tracker/api/internal/docstore"
	"tracker/api/internal/repo"
	"tracker/api/internal/session"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("document store connection failed: %v", err)
	}
	defer store.Close()

	redisStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisStore.Close()

	service := app.New(cfg, store, redisStore)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Tracker API listening on %s (store=%s)", cfg.Addr, cfg.DocstoreDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (docstore.Store, error) {
	switch cfg.DocstoreDriver {
	case "postgres":
		return docstore.OpenPostgres(ctx, cfg.DatabaseURL, repo.CollectionNames())
	case "memory":
		return docstore.NewMemoryStore(), nil
	default:
		return docstore.OpenMongo(ctx, cfg.MongoURL, cfg.MongoDB)
	}
}
