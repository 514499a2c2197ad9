package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/fathomlabs/fathom/internal/activities"
	cfg "github.com/fathomlabs/fathom/internal/config"
	"github.com/fathomlabs/fathom/internal/constants"
	"github.com/fathomlabs/fathom/internal/httpapi"
	"github.com/fathomlabs/fathom/internal/llm"
	"github.com/fathomlabs/fathom/internal/search"
	"github.com/fathomlabs/fathom/internal/streaming"
	"github.com/fathomlabs/fathom/internal/temporal"
	"github.com/fathomlabs/fathom/internal/workflows"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	conf, err := cfg.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Streaming: in-memory manager plus an optional Redis mirror so event
	// consumers survive a worker restart.
	mgr := streaming.Get()
	if conf.Redis.URL != "" {
		opts, err := redis.ParseURL(conf.Redis.URL)
		if err != nil {
			logger.Warn("Invalid Redis URL, event mirroring disabled", zap.Error(err))
		} else {
			mgr.AddMirror(streaming.NewRedisMirror(redis.NewClient(opts), logger))
			logger.Info("Redis event mirroring enabled")
		}
	}

	// Admin HTTP: metrics and the session event stream.
	httpMux := http.NewServeMux()
	httpMux.Handle("/metrics", promhttp.Handler())
	httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	httpapi.NewStreamingHandler(mgr, logger).RegisterRoutes(httpMux)

	adminPort := conf.Observability.Metrics.Port
	go func() {
		server := &http.Server{
			Addr:         ":" + strconv.Itoa(adminPort),
			Handler:      httpMux,
			ReadTimeout:  10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		logger.Info("Admin HTTP server listening", zap.Int("port", adminPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	// External providers.
	var searcher search.Provider = search.NewTavily(conf.Search.APIKey, conf.Search.Depth)
	llmClient := llm.New(conf.LLM.ServiceURL)
	acts := activities.NewActivities(searcher, llmClient, logger)

	// Temporal worker.
	tClient, err := client.Dial(client.Options{
		HostPort:  conf.Temporal.HostPort,
		Namespace: conf.Temporal.Namespace,
		Logger:    temporal.NewZapAdapter(logger),
	})
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer tClient.Close()

	wk := worker.New(tClient, constants.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: 32,
	})

	wk.RegisterWorkflowWithOptions(workflows.DeepResearchWorkflow,
		workflow.RegisterOptions{Name: constants.DeepResearchWorkflowName})

	wk.RegisterActivityWithOptions(acts.PlanStages,
		activity.RegisterOptions{Name: constants.PlanStagesActivity})
	wk.RegisterActivityWithOptions(acts.ResearchNodes,
		activity.RegisterOptions{Name: constants.ResearchNodesActivity})
	wk.RegisterActivityWithOptions(acts.GenerateFollowUps,
		activity.RegisterOptions{Name: constants.GenerateFollowUpsActivity})
	wk.RegisterActivityWithOptions(acts.SynthesizeStage,
		activity.RegisterOptions{Name: constants.SynthesizeStageActivity})
	wk.RegisterActivityWithOptions(acts.AssembleReport,
		activity.RegisterOptions{Name: constants.AssembleReportActivity})
	wk.RegisterActivityWithOptions(activities.EmitProgress,
		activity.RegisterOptions{Name: constants.EmitProgressActivity})
	wk.RegisterActivityWithOptions(activities.RecordTokenUsage,
		activity.RegisterOptions{Name: constants.RecordTokenUsageActivity})

	if err := wk.Start(); err != nil {
		logger.Fatal("Failed to start worker", zap.Error(err))
	}
	logger.Info("Research worker started",
		zap.String("task_queue", constants.TaskQueue),
		zap.String("temporal", conf.Temporal.HostPort),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutting down")
	wk.Stop()
}
