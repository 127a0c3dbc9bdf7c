package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"smartattend/internal/attendance"
	"smartattend/internal/config"
	"smartattend/internal/queue"
	"smartattend/internal/store"
)

// Recorder persists mirrored records.
type Recorder interface {
	Mirror(ctx context.Context, rec attendance.Record) error
	Reset(ctx context.Context) error
}

// Worker consumes record-change events and mirrors them into Postgres.
func main() {
	cfg := config.Load()
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis, got %q", cfg.QueueBackend)
	}
	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Warn("redis not reachable yet, consumer will keep retrying")
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	repo := attendance.NewRepository(db.Client)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		consume(gctx, messages, repo)
		return nil
	})

	log.Info("worker started, waiting for record events")
	if err := g.Wait(); err != nil {
		log.Errorf("worker failed: %v", err)
	}
	log.Info("worker stopped")
}

// consume mirrors every record event until messages is closed. Failures are
// logged and skipped; the next change of the same pair carries the full record.
// A reset wipes the mirror, and record events stamped before it are dropped
// since they may arrive after the reset itself.
func consume(ctx context.Context, messages <-chan queue.Message, repo Recorder) (mirrored int) {
	var resetAt time.Time
	for msg := range messages {
		switch msg.Type {
		case queue.TypeRecordsReset:
			var ev queue.ResetEvent
			if err := msg.Decode(&ev); err != nil {
				log.Warnf("dropping event: %v", err)
				continue
			}
			if ev.At.After(resetAt) {
				resetAt = ev.At
			}
			if err := repo.Reset(ctx); err != nil {
				log.Errorf("reset mirror failed: %v", err)
				continue
			}
			log.WithField("at", ev.At).Info("mirror reset")
		case queue.TypeRecordChanged:
			var rec attendance.Record
			if err := msg.Decode(&rec); err != nil {
				log.Warnf("dropping event: %v", err)
				continue
			}
			entry := log.WithFields(log.Fields{"record_id": rec.ID, "session_id": rec.SessionID, "student": rec.StudentKey})
			if !resetAt.IsZero() && !rec.Timestamp.After(resetAt) {
				entry.Debug("record predates reset, skipped")
				continue
			}
			if err := repo.Mirror(ctx, rec); err != nil {
				entry.Errorf("mirror failed: %v", err)
				continue
			}
			mirrored++
			entry.Debug("record mirrored")
		default:
			log.WithField("type", msg.Type).Debug("ignoring message")
		}
	}
	return mirrored
}
