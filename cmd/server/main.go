// Package main is the entry point for the leadbot server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/ai"
	"github.com/rastreogo/leadbot/internal/calendar"
	"github.com/rastreogo/leadbot/internal/classify"
	"github.com/rastreogo/leadbot/internal/clock"
	"github.com/rastreogo/leadbot/internal/config"
	"github.com/rastreogo/leadbot/internal/database"
	"github.com/rastreogo/leadbot/internal/domain"
	"github.com/rastreogo/leadbot/internal/engine"
	"github.com/rastreogo/leadbot/internal/export"
	"github.com/rastreogo/leadbot/internal/flow"
	"github.com/rastreogo/leadbot/internal/handler"
	"github.com/rastreogo/leadbot/internal/humanize"
	"github.com/rastreogo/leadbot/internal/logging"
	"github.com/rastreogo/leadbot/internal/metrics"
	"github.com/rastreogo/leadbot/internal/middleware"
	"github.com/rastreogo/leadbot/internal/phone"
	"github.com/rastreogo/leadbot/internal/repository"
	"github.com/rastreogo/leadbot/internal/shutdown"
	"github.com/rastreogo/leadbot/internal/store"
	"github.com/rastreogo/leadbot/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := logging.New(&logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Server.Environment,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger := appLogger.Zap()
	defer func() { _ = logger.Sync() }()

	logger.Info("starting leadbot server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Environment),
	)

	clk := clock.New()
	ctx := context.Background()

	// The database is a collaborator, not a prerequisite: a failed
	// connection starts the bot on the in-memory fallback so ongoing
	// conversations keep moving while the primary recovers.
	var repo domain.ProspectRepository
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Warn("database unavailable, starting on memory fallback", zap.Error(err))
		db = nil
	} else {
		if err := database.NewMigrator(db.Pool, logger).Migrate(ctx); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		repo = repository.NewProspectRepository(db.Pool)
	}

	prospects := store.New(repo, clk, logger)

	m := metrics.NewMetrics()
	errorRates := metrics.NewErrorRateTracker()

	var llm *ai.Client
	if cfg.LLM.Enabled() {
		llm = ai.NewClient(&cfg.LLM, m, clk, logger)
	} else {
		logger.Warn("LLM not configured, running on heuristics only")
	}

	var scheduler calendar.Scheduler
	if cfg.Calendar.Enabled() {
		cal, err := calendar.New(&cfg.Calendar, cfg.Bot.VendorName, m, clk, logger)
		if err != nil {
			logger.Warn("calendar unavailable, scheduling degrades to suggested times", zap.Error(err))
		} else {
			scheduler = cal
		}
	} else {
		logger.Info("calendar not configured, scheduling degrades to suggested times")
	}

	var exporter engine.Exporter
	if cfg.Export.Enabled() {
		exporter = export.NewSink(&cfg.Export, clk, logger)
	} else {
		logger.Warn("export sink not configured, closed prospects stay local")
	}

	gateway := transport.NewGateway(&cfg.Transport, logger)
	deliverer := humanize.New(gateway, m, clk, logger)

	var completer classify.Completer
	var transcriber engine.Transcriber
	if llm != nil {
		completer = llm
		transcriber = llm
	}

	modules := flow.NewModules(flow.Deps{
		Classifier: classify.NewClassifier(completer, cfg.LLM.Timeout, logger),
		LLM:        completer,
		Calendar:   scheduler,
		BotName:    cfg.Bot.Name,
		VendorName: cfg.Bot.VendorName,
		LLMTimeout: cfg.LLM.Timeout,
		Logger:     logger,
	})

	resolver := phone.NewResolver(cfg.Bot.CountryDefault, cfg.Bot.TimezoneOverrides)

	eng := engine.New(
		prospects,
		modules,
		deliverer,
		gateway,
		transcriber,
		exporter,
		resolver,
		m,
		errorRates,
		engine.Config{
			OperatorNumbers: cfg.Bot.OperatorNumbers,
			NotifyNumber:    cfg.Bot.NotifyNumber,
		},
		clk,
		logger,
	)

	queue := engine.NewQueue(eng, engine.DefaultQueueConfig(), logger)
	if err := queue.Start(); err != nil {
		logger.Fatal("failed to start dispatch queue", zap.Error(err))
	}

	sweeper := engine.NewSweeper(prospects, deliverer, cfg.Bot.InactivityHours, clk, logger)
	sweeper.Start()

	// Router
	r := chi.NewRouter()
	r.Use(middleware.Correlation)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(m.Middleware)

	handler.NewWebhookHandler(queue, cfg.Transport.WebhookSecret, logger).RegisterRoutes(r)

	healthCfg := handler.HealthHandlerConfig{
		AI:         llmHealth(llm),
		Store:      prospects,
		ErrorRates: errorRates,
		Logger:     logger,
	}
	if db != nil {
		healthCfg.DB = db
	}
	handler.NewHealthHandler(healthCfg).RegisterRoutes(r)

	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.With(middleware.BodySizeLimiter(middleware.MaxJSONBodySize)).
		Handle("/log/level", appLogger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Gauges the scrape path cannot compute on its own.
	statsDone := make(chan struct{})
	statsStop := make(chan struct{})
	go func() {
		defer close(statsDone)
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if db != nil {
					stats := db.Stats()
					m.UpdateDBConnections(int(stats.TotalConns()), int(stats.AcquiredConns()))
				}
				m.SetProspectsInMemory(prospects.MemoryCount())
			case <-statsStop:
				return
			}
		}
	}()

	coord := shutdown.NewCoordinator(30*time.Second, logger)
	coord.Register(shutdown.PhaseIntake, "http-server", server.Shutdown)
	coord.Register(shutdown.PhaseDrain, "dispatch-queue", queue.Stop)
	coord.Register(shutdown.PhaseBackground, "sweeper", func(ctx context.Context) error {
		sweeper.Stop()
		return nil
	})
	coord.Register(shutdown.PhaseBackground, "stats", func(ctx context.Context) error {
		close(statsStop)
		<-statsDone
		return nil
	})
	coord.Register(shutdown.PhaseClose, "store", func(ctx context.Context) error {
		prospects.Close()
		return nil
	})
	if db != nil {
		coord.Register(shutdown.PhaseClose, "database", func(ctx context.Context) error {
			db.Close()
			return nil
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("received shutdown signal")
	if err := coord.Shutdown(ctx); err != nil {
		logger.Error("shutdown did not finish cleanly", zap.Error(err))
	}
}

// llmHealth avoids handing the health handler a typed-nil interface
// when the LLM is not configured.
func llmHealth(c *ai.Client) handler.AIHealthChecker {
	if c == nil {
		return nil
	}
	return c
}
