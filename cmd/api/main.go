package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agencydesk/api/internal/app"
	"agencydesk/api/internal/archive"
	"agencydesk/api/internal/config"
	"agencydesk/api/internal/hawksoft"
	"agencydesk/api/internal/hawksync"
	"agencydesk/api/internal/runlog"
	"agencydesk/api/internal/search"
	"agencydesk/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	vendor := hawksoft.New(cfg.HawkSoftURL, cfg.HawkSoftAPIKey, cfg.HawkSoftAgencyID)
	syncer := hawksync.New(dataStore, vendor, cfg.TenantID)

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		syncer.Search = meiliClient
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioArchive, err := archive.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("archive connection failed: %v", err)
		}
		syncer.Archive = minioArchive
	}

	// Redis keeps the recent run reports; without it the runs endpoint is 503.
	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for sync run reports")
		runStore, err := runlog.NewStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer runStore.Close()
		service = app.NewWithRunLog(cfg, dataStore, syncer, runStore)
	} else {
		service = app.New(cfg, dataStore, syncer)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("AgencyDesk API listening on %s", cfg.Addr)
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
