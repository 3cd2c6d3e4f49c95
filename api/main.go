package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"

	"github.com/DeafMist/transcript-ocr/internal/config"
	"github.com/DeafMist/transcript-ocr/internal/dedupe"
	"github.com/DeafMist/transcript-ocr/internal/elasticsearch"
	"github.com/DeafMist/transcript-ocr/internal/events"
	"github.com/DeafMist/transcript-ocr/internal/extract"
	"github.com/DeafMist/transcript-ocr/internal/logger"
	"github.com/DeafMist/transcript-ocr/internal/models"
)

func main() {
	// a missing .env is fine; real environment variables always win
	_ = gotenv.Load()

	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	processor := extract.Config{
		Credentials:  cfg.Credentials,
		Endpoint:     cfg.Endpoint,
		ProjectID:    cfg.ProjectID,
		Location:     cfg.Location,
		ProcessorID:  cfg.ProcessorID,
		ModelVersion: cfg.ModelVersion,
		Timeout:      cfg.Timeout,
		Attempts:     cfg.Attempts,
	}
	extractor, err := extract.NewDocumentAI(ctx, processor, log)
	if err != nil {
		log.Error("init document ai", slog.Any("err", err))
		os.Exit(1)
	}
	defer extractor.Close()

	srv := &server{
		log:       log,
		cfg:       cfg,
		extractor: extractor,
		publisher: events.Nop{},
		now:       time.Now,
	}

	if cfg.CacheCapacity > 0 {
		srv.cache = dedupe.NewCache[models.Transcript](cfg.CacheCapacity, cfg.CacheTTL)
	}

	if cfg.PublishEnabled() {
		publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer publisher.Close()
		srv.publisher = publisher
	}

	if cfg.SearchEnabled() {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		srv.search = esClient
	}

	// the write deadline has to outlast the extraction call
	var writeTimeout time.Duration
	if cfg.Timeout > 0 {
		writeTimeout = cfg.Timeout + 30*time.Second
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
	}

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("processor", processor.ResourceName()),
			slog.Bool("publish", cfg.PublishEnabled()),
			slog.Bool("search", cfg.SearchEnabled()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}
