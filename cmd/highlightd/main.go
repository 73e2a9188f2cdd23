package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/api"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/damage"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/document"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/group"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/settings"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/viewport"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	docPath := flag.String("doc", "", "document to serve (overrides document.path)")
	saveOnExit := flag.Bool("save", false, "write the document back to its path on shutdown")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *docPath != "" {
		cfg.Document.Path = *docPath
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting highlight service", "port", cfg.Server.Port, "document", cfg.Document.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	doc := document.NewBuffer("")
	if cfg.Document.Path != "" {
		doc, err = document.Load(cfg.Document.Path)
		if err != nil {
			slog.Error("failed to load document", "error", err)
			os.Exit(1)
		}
	}
	slog.Info("document loaded", "runes", doc.Len())

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, nil)
		metricsServer.Start()
		defer metricsServer.Shutdown(context.Background())
	}

	checker := health.NewChecker()

	var store settings.Store
	if cfg.Postgres.Enabled {
		var db *postgres.Client
		err := resilience.Retry(ctx, "connect postgres", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func(ctx context.Context) error {
			var err error
			db, err = postgres.New(ctx, cfg.Postgres)
			return err
		})
		if err != nil {
			slog.Warn("postgres unavailable, using configured highlight settings", "error", err)
		} else {
			defer db.Close()
			pg := settings.NewPostgresStore(db, cfg.Highlight)
			if err := pg.EnsureSchema(ctx); err != nil {
				slog.Error("failed to prepare settings schema", "error", err)
				os.Exit(1)
			}
			store = pg
			checker.Register("postgres", health.PingCheck(db.Ping, false))
			slog.Info("settings store enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		}
	}

	var scanCache *cache.ScanCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, scan caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewBreaker("scan-cache", resilience.BreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second})
			guarded := cache.Guard(redisClient, breaker, 200*time.Millisecond)
			scanCache = cache.New(guarded, scheduler.MatcherScanner{}, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, false))
			slog.Info("scan cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	vp := viewport.New(doc, cfg.Viewport)
	opts := []group.Option{group.WithMetrics(m)}
	if scanCache != nil {
		opts = append(opts, group.WithScanner(scanCache))
	}

	var summaries *feed.SummaryPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.HighlightEvents)
		defer producer.Close()
		summaries = feed.NewSummaryPublisher(producer, 1024)
		summaries.Start(ctx)
		opts = append(opts, group.WithPublisher(summaries))
		slog.Info("summary publisher started", "topic", cfg.Kafka.Topics.HighlightEvents)
	}

	mgr := group.NewManager(group.Config{
		Highlight: cfg.Highlight,
		Scheduler: cfg.Scheduler,
	}, doc, vp, damage.NewTracker(vp), store, opts...)
	doc.OnEdit(mgr.OnEdit)

	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		mgr.Run(ctx)
	}()
	checker.Register("groups", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d groups active", len(mgr.Statuses()))}
	})

	consumerDone := make(chan struct{})
	if cfg.Kafka.Enabled {
		applier := feed.NewApplier(doc, mgr, vp)
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.EditorEvents, applier.Handler())
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx); err != nil {
				slog.Error("editor event consumer error", "error", err)
			}
		}()
		slog.Info("editor event consumer started", "topic", cfg.Kafka.Topics.EditorEvents)
	} else {
		close(consumerDone)
	}

	var apiOpts []api.Option
	if scanCache != nil {
		apiOpts = append(apiOpts, api.WithCache(scanCache))
	}
	router := api.NewRouter(api.New(mgr, doc, vp, apiOpts...), checker, api.RouterConfig{
		Timeout: cfg.Server.WriteTimeout,
		CORS:    middleware.DefaultCORSConfig(),
		Metrics: m,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("highlight service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		stop()
	}

	<-consumerDone
	<-managerDone
	mgr.Close()
	if summaries != nil {
		summaries.Close()
	}
	if *saveOnExit && cfg.Document.Path != "" {
		if err := doc.Save(cfg.Document.Path); err != nil {
			slog.Error("failed to save document", "path", cfg.Document.Path, "error", err)
		} else {
			slog.Info("document saved", "path", cfg.Document.Path, "runes", doc.Len())
		}
	}
	slog.Info("highlight service stopped")
}
