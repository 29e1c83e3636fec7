package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/joho/godotenv/autoload"

	"nutrition-enrichment/internal/completion"
	"nutrition-enrichment/internal/constants"
	"nutrition-enrichment/internal/infrastructure/repository"
	"nutrition-enrichment/internal/processor"
	"nutrition-enrichment/internal/prompts"
	"nutrition-enrichment/internal/scorer"
	"nutrition-enrichment/pkg/circuit"
	"nutrition-enrichment/pkg/config"
	"nutrition-enrichment/pkg/database"
	"nutrition-enrichment/pkg/events"
	"nutrition-enrichment/pkg/health"
	"nutrition-enrichment/pkg/logging"
	metricsPkg "nutrition-enrichment/pkg/metrics"
	"nutrition-enrichment/pkg/monitoring"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		// missing credentials are a startup failure, never a per-record one
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		Output:     "stdout",
		EnableFile: cfg.EnableFileLogging,
		FilePath:   cfg.LogFile,
	})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Close()

	monitoring.EnableProfiling(cfg.ProfilingEnabled)
	log.Println("Starting nutrition enrichment worker")

	db, err := database.NewWithConfig(cfg.DatabaseURL, cfg)
	if err != nil {
		log.Fatalf("database init: %v", err)
	}
	defer db.Close()

	repo := repository.NewSQLRepository(db, cfg.RescoreThreshold)
	uowFactory := repository.NewSQLUnitOfWorkFactory(db)
	eventStore := events.NewSQLEventStore(db)

	pm, err := prompts.NewManager()
	if err != nil {
		log.Fatalf("prompts init: %v", err)
	}

	trust, err := scorer.NewSourceTrust(cfg.SourcesFile)
	if err != nil {
		log.Fatalf("source registry init: %v", err)
	}
	qualityScorer := scorer.NewDefault(trust)

	breaker := circuit.New(circuit.Config{
		Name:              "completion",
		OperationTimeout:  cfg.OpenAITimeout,
		OpenFor:           constants.CompletionOpenFor,
		MaxConsecFailures: constants.CompletionMaxConsecFailures,
		FailureRate:       constants.CompletionFailureRate,
	}, logger)

	completer := completion.NewClient(cfg.OpenAIAPIKey, pm, breaker, completion.Options{
		Model:       cfg.OpenAIModel,
		Temperature: float32(cfg.OpenAITemperature),
		MaxTokens:   cfg.OpenAIMaxTokens,
		Timeout:     cfg.OpenAITimeout,
	})

	proc := processor.NewProcessor(repo, uowFactory, completer, qualityScorer, cfg.ClaimTTL, cfg.MaxTransientRetries)
	proc.SetEventStore(eventStore)

	runner := processor.NewRunner(repo, proc, cfg.BatchSize, cfg.RecordDelay)

	app := &App{
		db:        db,
		repo:      repo,
		runner:    runner,
		completer: completer,
		breaker:   breaker,
		config:    cfg,
	}

	// Config watcher for hot-reload of batch knobs
	reloadIntv := time.Duration(cfg.ConfigReloadIntervalSeconds) * time.Second
	if reloadIntv <= 0 {
		reloadIntv = constants.ConfigWatcherIntervalDefault
	}
	cw := config.NewWatcher(reloadIntv)
	cw.Start()
	defer cw.Stop()
	go func() {
		for chg := range cw.Subscribe() {
			if chg.Err != nil {
				log.Printf("Config reload failed: %v", chg.Err)
				continue
			}
			runner.ApplyConfig(chg.New)
			repo.SetRescoreThreshold(chg.New.RescoreThreshold)
			log.Printf("Config applied. Changed fields: %v", chg.Fields)
		}
	}()

	// Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Received shutdown signal, initiating graceful shutdown...")
		cancel()
	}()

	// Health checks
	healthMgr := health.NewManager(10*time.Second, logger)
	healthMgr.Register(health.NewDatabaseChecker(db.Conn(), "record_store"))
	healthMgr.Register(health.NewRunnerChecker("runner", func() any { return runner.Stats() }))

	// HTTP routing
	router := mux.NewRouter()

	var reqStats *monitoring.RequestStats
	if cfg.MetricsEnabled {
		reqStats = monitoring.NewRequestStats(512)
		router.Use(monitoring.Middleware(reqStats))
	}

	router.HandleFunc("/enrich", app.enrichBatchHandler).Methods("POST")
	router.HandleFunc("/records/{id}/enrich", app.enrichSingleHandler).Methods("POST")
	router.HandleFunc("/records/{id}/history", app.historyHandler).Methods("GET")
	router.HandleFunc("/api/stats", app.statsHandler).Methods("GET")
	router.Handle(cfg.HealthCheckPath, healthMgr.Handler()).Methods("GET")

	server := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	var adminServer *http.Server
	if cfg.ProfilingEnabled || cfg.MetricsEnabled {
		adminMux := http.NewServeMux()
		if cfg.ProfilingEnabled {
			monitoring.RegisterPprof(adminMux)
		}
		if cfg.MetricsEnabled {
			adminMux.Handle(cfg.MetricsPath, metricsPkg.Handler())
			if reqStats != nil && cfg.MetricsPath != "/metrics.json" {
				adminMux.Handle("/metrics.json", monitoring.RuntimeHandler(reqStats))
			}
		}
		adminServer = &http.Server{Addr: ":" + cfg.ProfilingPort, Handler: adminMux}
		go func() {
			fmt.Printf("Admin server (pprof/metrics) starting on port %s\n", cfg.ProfilingPort)
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("Admin HTTP server error: %v", err)
			}
		}()
	}

	go func() {
		fmt.Printf("Server starting on port %s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error:", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeoutDefault)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin HTTP server shutdown error: %v", err)
		}
	}
	log.Println("Application shutdown complete")
}

type App struct {
	db        *database.DB
	repo      *repository.SQLRepository
	runner    processor.Service
	completer *completion.Client
	breaker   *circuit.Breaker
	config    *config.Config

	batchRunning atomic.Bool
}

// enrichBatchHandler runs one enrichment batch synchronously. Only one batch
// runs at a time; concurrent triggers get 409.
func (app *App) enrichBatchHandler(w http.ResponseWriter, r *http.Request) {
	if !app.batchRunning.CompareAndSwap(false, true) {
		http.Error(w, "a batch is already running", http.StatusConflict)
		return
	}
	defer app.batchRunning.Store(false)

	result, err := app.runner.RunBatch(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		log.Printf("batch run failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "error",
			"error":  err.Error(),
			"result": result,
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"result": result,
	})
}

// enrichSingleHandler processes one record on demand.
func (app *App) enrichSingleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancelTO := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancelTO()

	outcome, err := app.runner.EnrichRecord(ctx, id)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		log.Printf("record %d: enrichment failed: %v", id, err)
		status := http.StatusInternalServerError
		if outcome == nil {
			status = http.StatusNotFound
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "error",
			"foodId":  id,
			"message": err.Error(),
		})
		return
	}
	if !outcome.Claimed {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "skipped",
			"foodId":  id,
			"message": "record is being processed by another worker",
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"foodId": id,
		"result": outcome.Status,
		"score":  outcome.Score,
		"issues": outcome.Issues,
	})
}

// historyHandler lists recent enrichment attempts for a record.
func (app *App) historyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit := 20
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	history, err := app.repo.GetEnrichmentHistoryCtx(r.Context(), id, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("history fetch failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"foodId":  id,
		"history": history,
	})
}

// statsHandler exposes runner, cost and queue statistics.
func (app *App) statsHandler(w http.ResponseWriter, r *http.Request) {
	tokens, requests, costUSD, uptime := app.completer.GetCostStats()
	remaining, err := app.repo.CountEnrichmentCandidatesCtx(r.Context())
	if err != nil {
		log.Printf("candidate count failed: %v", err)
		remaining = -1
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"runner":    app.runner.Stats(),
		"remaining": remaining,
		"breaker":   app.breaker.State().String(),
		"completion": map[string]any{
			"total_tokens":       tokens,
			"total_requests":     requests,
			"estimated_cost_usd": costUSD,
			"uptime":             uptime.String(),
		},
	})
}

func recordID(r *http.Request) (int64, error) {
	idStr, ok := mux.Vars(r)["id"]
	if !ok {
		return 0, fmt.Errorf("missing record id")
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid record id")
	}
	return id, nil
}
