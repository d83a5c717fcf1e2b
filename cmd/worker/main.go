package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classroll/internal/absence"
	"classroll/internal/config"
	"classroll/internal/notify"
	"classroll/internal/queue"
	"classroll/internal/store"
)

// Worker consumes decision messages and delivers notifications to the
// configured webhook.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classroll:decisions")
	}

	notifier := notify.New(cfg.NotifyWebhookURL, cfg.NotifySkip)

	// Check webhook reachability on startup
	if !cfg.NotifySkip {
		if err := notifier.Health(ctx); err != nil {
			log.Printf("WARNING: notification webhook not available: %v", err)
			log.Println("Worker will retry delivery when decisions arrive")
		} else {
			log.Println("Notification webhook connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeAbsenceDecided {
			continue
		}

		var d absence.Decision
		if err := json.Unmarshal(msg.Body, &d); err != nil {
			log.Printf("bad decision message: %v", err)
			continue
		}
		log.Printf("delivering decision %s for explanation %s", d.Status, d.ExplanationID)

		n := notify.Notification{
			ExplanationID: d.ExplanationID,
			StudentID:     d.StudentID,
			Status:        string(d.Status),
			Comment:       d.Comment,
			ReviewedBy:    d.ReviewedBy,
		}
		if err := notifier.Send(ctx, n); err != nil {
			log.Printf("notification delivery failed for %s: %v", d.ExplanationID, err)
			continue
		}
		log.Printf("explanation %s notified", d.ExplanationID)

		time.Sleep(10 * time.Millisecond) // Small delay between deliveries
	}

	log.Println("worker stopped")
}
