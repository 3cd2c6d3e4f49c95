package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"

	"github.com/DeafMist/transcript-ocr/internal/config"
	"github.com/DeafMist/transcript-ocr/internal/elasticsearch"
	"github.com/DeafMist/transcript-ocr/internal/logger"
)

const (
	connectAttempts = 10
	maxConnectDelay = 30 * time.Second
	runTimeout      = 2 * time.Minute
)

type pinger interface {
	Ping(ctx context.Context) error
}

type purger interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

func main() {
	_ = gotenv.Load()

	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	if err := waitForCluster(ctx, log, esClient, 2*time.Second); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("elasticsearch unreachable", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("connected to elasticsearch")

	log.Info("transcript retention running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
		slog.Int("batch_size", cfg.BatchSize),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	runOnce(ctx, log, esClient, cfg)
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, esClient, cfg)
		}
	}
}

// waitForCluster pings until the cluster answers, doubling the delay up to
// maxConnectDelay between attempts.
func waitForCluster(ctx context.Context, log *slog.Logger, c pinger, delay time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = c.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}

		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", lastErr),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, maxConnectDelay)
	}
	return lastErr
}

// runOnce purges transcripts older than cfg.MaxAge. Failures are logged and
// retried on the next tick.
func runOnce(ctx context.Context, log *slog.Logger, p purger, cfg *config.Retention) int64 {
	subCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	deleted, err := p.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed", slog.Any("err", err))
		return 0
	}

	if deleted > 0 {
		log.Info("expired transcripts purged", slog.Int64("deleted", deleted))
	} else {
		log.Debug("no expired transcripts")
	}
	return deleted
}
