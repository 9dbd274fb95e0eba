package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"checkin/internal/config"
	"checkin/internal/store"
	"checkin/internal/tokenlog"
)

// Worker drains the token-log queue into Postgres. Forensic logging is the
// only asynchronous work in the system; the redemption path never goes
// through here.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q tokenlog.Queue
	if cfg.QueueBackend == "memory" {
		q = tokenlog.NewInMemory(64)
	} else {
		q = tokenlog.NewRedisQueue(redisClient.Client, "checkin:tokenlogs")
	}

	repo := tokenlog.NewRepository(db.Client)

	entries, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume failed: %v", err)
	}

	log.Println("token log worker started")
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				log.Println("queue closed, exiting")
				return
			}
			if err := repo.Insert(ctx, entry); err != nil {
				log.Printf("token log insert failed: %v", err)
				continue
			}
			preview := entry.Token
			if len(preview) > 10 {
				preview = preview[:10] + "..."
			}
			log.Printf("token logged: %s device=%s", preview, entry.Device)
		case <-ctx.Done():
			log.Println("worker stopped")
			return
		}
	}
}
