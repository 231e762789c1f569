package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"taskboard/api/internal/app"
	"taskboard/api/internal/assist"
	"taskboard/api/internal/auth"
	"taskboard/api/internal/config"
	"taskboard/api/internal/email"
	"taskboard/api/internal/files"
	"taskboard/api/internal/logging"
	"taskboard/api/internal/ratelimit"
	"taskboard/api/internal/realtime"
	"taskboard/api/internal/search"
	"taskboard/api/internal/session"
	"taskboard/api/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)
	log := logging.Component("main")

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

	// Refresh tokens live in Redis; the server does not start without it.
	redisStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisStore.Close()

	service := app.NewService(dataStore, redisStore, []byte(cfg.JWTSecret), cfg.AccessTTL, cfg.RefreshTTL)
	service.SetAppBaseURL(cfg.AppBaseURL)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	service.SetSearch(searchService)
	if meiliClient != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	if cfg.SMTPHost != "" {
		service.SetMailer(email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}))
	}

	fileStore, err := files.NewService(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("object storage connection failed: %v", err)
	}
	if fileStore != nil {
		service.SetFiles(fileStore)
	}

	if cfg.OpenAIKey != "" {
		service.SetAssistant(assist.NewService(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel))
	}

	hub := realtime.NewHub()
	defer hub.Close()
	hub.SetTaskUpdater(service)
	service.SetHub(hub)

	if err := service.Bootstrap(ctx); err != nil {
		log.Warnf("bootstrap failed, will retry on next restart: %v", err)
	}

	generalLimiter := ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow)
	defer generalLimiter.Close()
	authLimiter := ratelimit.New(cfg.AuthRateMax, cfg.RateLimitWindow)
	defer authLimiter.Close()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	httpServer.SetRateLimiters(generalLimiter, authLimiter)
	httpServer.SetWebSocket(hub.ServeWS(func(token string) (realtime.Identity, error) {
		claims, err := auth.ParseToken([]byte(cfg.JWTSecret), token)
		if err != nil {
			return realtime.Identity{}, err
		}
		return realtime.Identity{UserID: claims.Subject, Name: claims.Name, Role: claims.Role}, nil
	}))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infof("taskboard api listening on %s", cfg.Addr)
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
		log.Warnf("shutdown error: %v", err)
	}
}
