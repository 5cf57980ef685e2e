package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"medimitra/backend/internal/config"
	"medimitra/backend/internal/events"
	"medimitra/backend/internal/notify"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if len(cfg.KafkaBrokers) == 0 {
		log.Fatalf("KAFKA_BROKERS must be set for the notifier")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dedup notify.Deduper = notify.NewMemoryDeduper(notify.DefaultDedupTTL)
	if cfg.RedisAddr != "" {
		rd := notify.NewRedisDeduper(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, notify.DefaultDedupTTL)
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rd.Ping(pingCtx); err != nil {
			log.Printf("redis unavailable (%v), deduplicating in memory", err)
		} else {
			dedup = rd
			defer rd.Close()
			log.Println("dedup: redis")
		}
		pingCancel()
	}

	notifier := notify.New(notify.LogSink{}, dedup)
	topics := []string{events.TopicOrderPlaced, events.TopicOrderStatusChanged, events.TopicOrderDeleted}
	consumer := events.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, topics, cfg.NotifierWorkers)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("notifier started: group=%s topics=%v workers=%d", cfg.NotifierGroup, topics, cfg.NotifierWorkers)
		if err := consumer.Start(ctx, notifier.Handle); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down...")
	cancel()
	<-done
	log.Println("notifier stopped")
}
