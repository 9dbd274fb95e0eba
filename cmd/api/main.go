package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"checkin/internal/api"
	"checkin/internal/authz"
	"checkin/internal/checkin"
	"checkin/internal/config"
	"checkin/internal/httpmiddleware"
	"checkin/internal/identity"
	"checkin/internal/ledger"
	"checkin/internal/roster"
	"checkin/internal/session"
	"checkin/internal/store"
	"checkin/internal/token"
	"checkin/internal/tokenlog"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var logQueue tokenlog.Queue
	var limiter httpmiddleware.Limiter
	if cfg.QueueBackend == "memory" {
		logQueue = tokenlog.NewInMemory(64)
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	} else {
		logQueue = tokenlog.NewRedisQueue(redisClient.Client, "checkin:tokenlogs")
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	codec := token.New(cfg.PayloadSecret)
	sessions := session.NewRegistry(db.Client, cfg.GraceMinutes)
	rosterRepo := roster.NewRepository(db.Client)
	gate := authz.NewGate(db.Client)
	led := ledger.New(db.Client)
	users := identity.NewStore(db.Client)
	processor := checkin.NewProcessor(codec, sessions, rosterRepo, gate, led, users)

	srv := &api.Server{
		Cfg:      cfg,
		Checkin:  processor,
		Sessions: sessions,
		Gate:     gate,
		Roster:   rosterRepo,
		Ledger:   led,
		Users:    users,
		Codec:    codec,
		LogQueue: logQueue,
		Logs:     tokenlog.NewRepository(db.Client),
		Limiter:  limiter,
		DB:       db,
		Redis:    redisClient,
	}

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
