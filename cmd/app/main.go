package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/genstudio/internal/ai"
	cfgpkg "github.com/local/genstudio/internal/config"
	"github.com/local/genstudio/internal/dispatcher"
	"github.com/local/genstudio/internal/gallery"
	"github.com/local/genstudio/internal/gateway"
	"github.com/local/genstudio/internal/history"
	logpkg "github.com/local/genstudio/internal/logger"
	"github.com/local/genstudio/internal/metrics"
	"github.com/local/genstudio/internal/queue"
	"github.com/local/genstudio/internal/session"
	"github.com/local/genstudio/internal/statuscheck"
	"github.com/local/genstudio/internal/store"
	"github.com/local/genstudio/internal/studio"
	"github.com/local/genstudio/internal/web"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	// Backend and gateway
	keyring := ai.NewKeyringFromEnv()
	backend := ai.NewGeminiClient(keyring)
	gw := gateway.New(keyring)

	// Stores
	sessions, err := session.NewStore(cfg.Queue.RedisURL, cfg.Session.TTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init session store")
	}
	defer sessions.Close()

	hist := history.NewStore(sessions.Client())

	status, err := store.NewRedisStatus(cfg.Queue.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init status store")
	}
	defer status.Close()

	rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis queue")
	}
	defer rq.Close()

	ctx := context.Background()
	gal, err := gallery.New(ctx, cfg.Storage.Bucket, cfg.Storage.Secret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init gallery store")
	}

	// Studio service
	breaker := studio.NewBreaker(sessions.Client(), cfg.Studio.BreakerBaseBackoff, cfg.Studio.BreakerMaxBackoff)
	svc := studio.NewService(backend, gw, breaker, hist, cfg)

	// HTTP API
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	api := web.New(web.Dependencies{
		Studio:   svc,
		Sessions: sessions,
		Queue:    rq,
		Status:   status,
		Gallery:  gal,
	})
	api.RegisterRoutes(mux)

	checker := statuscheck.New(statuscheck.Options{
		Redis:       rq,
		S3Bucket:    cfg.Storage.Bucket,
		Credentials: keyring,
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		summary := checker.Summary(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !summary.OK() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(summary)
	})

	// Video workers (optional, on by default)
	runWorkers := os.Getenv("RUN_DISPATCHER")
	if runWorkers == "" || runWorkers == "1" || runWorkers == "true" {
		jobTimeout := 24 * time.Hour
		if cfg.Video.PollTimeout > 0 {
			jobTimeout = cfg.Video.PollTimeout + 5*time.Minute
		}
		disp := dispatcher.New(dispatcher.Config{Concurrency: cfg.Queue.Workers, JobTimeout: jobTimeout}, rq, status, svc, gal)
		disp.Start()
		defer disp.Stop(context.Background())
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	fmt.Println("shutdown complete")
}
