package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rsstank/app/api"
	"github.com/lysyi3m/rsstank/app/cfg"
	"github.com/lysyi3m/rsstank/app/cleanup"
	"github.com/lysyi3m/rsstank/app/crawler"
	"github.com/lysyi3m/rsstank/app/database"
	"github.com/lysyi3m/rsstank/app/dispatch"
	"github.com/lysyi3m/rsstank/app/mailtank"
	"github.com/lysyi3m/rsstank/app/tagsync"
	"github.com/lysyi3m/rsstank/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting rsstank", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	keyRepo := database.NewKeyRepository(db)
	feedRepo := database.NewFeedRepository(db)
	itemRepo := database.NewItemRepository(db)

	// One explicitly constructed HTTP client shared by the crawler and
	// the Mailtank clients; no ambient client state.
	httpClient := &http.Client{
		Timeout: time.Duration(appCfg.FetchTimeout) * time.Second,
	}

	resolver := crawler.NewPolicyResolver(httpClient, appCfg.UserAgent)
	poller := crawler.NewPoller(httpClient, feedRepo, itemRepo, keyRepo, appCfg.UserAgent)
	hostScheduler := crawler.NewHostScheduler(poller, time.Duration(appCfg.DefaultCrawlDelay)*time.Second)
	coordinator := crawler.NewCoordinator(feedRepo, resolver, hostScheduler, appCfg.HostConcurrency)

	newMailtankClient := func(keyContent string) *mailtank.Client {
		return mailtank.New(appCfg.MailtankURL, keyContent, httpClient)
	}

	dispatcher := dispatch.NewDispatcher(feedRepo, itemRepo, keyRepo, func(keyContent string) dispatch.Mailer {
		return newMailtankClient(keyContent)
	})
	syncer := tagsync.NewSyncer(feedRepo, keyRepo, func(keyContent string) tagsync.TagLister {
		return newMailtankClient(keyContent)
	})
	cleaner := cleanup.NewCleaner(feedRepo, itemRepo)

	scheduler := tasks.NewScheduler(appCfg.WorkerCount)
	scheduler.AddJob("poll", time.Duration(appCfg.PollInterval)*time.Second, coordinator.Run)
	scheduler.AddJob("send", time.Duration(appCfg.SendInterval)*time.Second, dispatcher.Run)
	scheduler.AddJob("sync", time.Duration(appCfg.SyncInterval)*time.Second, syncer.Run)
	scheduler.AddJob("cleanup", time.Duration(appCfg.CleanupInterval)*time.Second, cleaner.Run)
	scheduler.Start()
	defer scheduler.Stop()

	verifyKey := func(ctx context.Context, keyContent string) error {
		_, err := newMailtankClient(keyContent).GetTags(ctx, "")
		return err
	}

	apiHandler := api.NewHandler(keyRepo, feedRepo, scheduler, verifyKey)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
}
