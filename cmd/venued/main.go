package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/bwmarrin/snowflake"
	"golang.org/x/time/rate"

	"venue-billing-backend/config"
	"venue-billing-backend/internal/api"
	"venue-billing-backend/internal/catalog"
	"venue-billing-backend/internal/db"
	"venue-billing-backend/internal/mw"
	"venue-billing-backend/internal/notification"
	"venue-billing-backend/internal/session"
	"venue-billing-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "venue-backend ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	node, err := snowflake.NewNode(cfg.Server.NodeID)
	if err != nil {
		logger.Fatalf("invalid server.node_id %d: %v", cfg.Server.NodeID, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB, node)
	logger.Println("data store initialized")

	var webpushOptions *webpush.Options
	var notifier session.Notifier
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Println("VAPID keys are not configured; push notifications are disabled")
	} else {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		workerPool.Start(ctx)
		notifier = workerPool
	}

	catalogSvc := catalog.NewService(cfg, appStore)
	if err := catalogSvc.SyncOnce(ctx); err != nil {
		logger.Fatalf("failed to sync catalog: %v", err)
	}
	if cfg.Catalog.File != "" {
		go catalogSvc.Run(ctx)
	}

	open, err := appStore.LoadActiveSessions(ctx)
	if err != nil {
		logger.Fatalf("failed to load open sessions: %v", err)
	}
	logger.Printf("%d open session(s) restored", len(open))

	sessions := session.NewService(cfg, appStore, notifier)

	limiter := mw.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)
	go limiter.RunEviction(ctx, time.Minute, 10*time.Minute)

	router := api.NewRouter(cfg, appStore, sessions, webpushOptions, limiter)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mw.CORS(cfg.Server.AllowedOrigins, router),
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
