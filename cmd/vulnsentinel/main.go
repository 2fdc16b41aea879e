// VulnSentinel pipeline orchestrator - monitors upstream C/C++ libraries
// for security fixes, matches them against client dependencies, and
// notifies maintainers when a reachable vulnerability is found.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/owensanzas/vulnsentinel/internal/config"
	"github.com/owensanzas/vulnsentinel/internal/database"
	"github.com/owensanzas/vulnsentinel/internal/logging"
	"github.com/owensanzas/vulnsentinel/pkg/analyzer"
	"github.com/owensanzas/vulnsentinel/pkg/classifier"
	"github.com/owensanzas/vulnsentinel/pkg/collector"
	"github.com/owensanzas/vulnsentinel/pkg/githubapi"
	"github.com/owensanzas/vulnsentinel/pkg/impact"
	"github.com/owensanzas/vulnsentinel/pkg/llmagent"
	"github.com/owensanzas/vulnsentinel/pkg/metrics"
	"github.com/owensanzas/vulnsentinel/pkg/notify"
	"github.com/owensanzas/vulnsentinel/pkg/reachability"
	"github.com/owensanzas/vulnsentinel/pkg/scheduler"
	"github.com/owensanzas/vulnsentinel/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	gin.SetMode(getEnv("GIN_MODE", "release"))
	logging.Init(getEnv("VULNSENTINEL_LOG_LEVEL", "info"))

	log.Printf("Starting VulnSentinel %s", version.Full())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("Error closing database client: %v", err)
		}
	}()
	log.Println("Connected to PostgreSQL database; migrations applied")

	db := dbClient.DB()

	gh := githubapi.NewClient(githubapi.Config{
		BaseURL:    cfg.GitHub.BaseURL,
		Token:      cfg.GitHub.Token,
		MaxRetries: cfg.GitHub.MaxRetries,
		Timeout:    cfg.GitHub.Timeout,
	})

	llmProvider, err := llmagent.NewLangChainProvider(llmBaseURL(cfg.LLM.Provider), cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		log.Fatalf("Failed to initialize LLM provider: %v", err)
	}
	agentController := llmagent.NewController(llmProvider, db)

	// The call-graph snapshot store is an external collaborator reached
	// over its REST surface; without a configured URL no reachable-path
	// verdict can be computed, so the reachability stage is left unstarted.
	var reachabilityEngine *reachability.Engine
	if graphStore := callGraphStoreFromEnv(); graphStore != nil {
		reachabilityEngine = reachability.New(db, gh, graphStore, reachability.Config{}, logging.For("reachability"))
	} else {
		log.Println("VULNSENTINEL_CALLGRAPH_URL not set; reachability stage disabled")
	}

	collectorEngine := collector.New(db, gh, collector.Config{
		Concurrency: cfg.Scheduler.CollectConcurrency,
		DueWindow:   cfg.Scheduler.ScanCutoff,
	}, logging.For("collector"))
	classifierEngine := classifier.New(db, gh, agentController, classifier.Config{
		Model:       cfg.LLM.Model,
		Concurrency: cfg.Scheduler.AnalyzeConcurrency,
	}, logging.For("classifier"))
	analyzerEngine := analyzer.New(db, gh, agentController, analyzer.Config{
		Model:       cfg.LLM.Model,
		Concurrency: cfg.Scheduler.AnalyzeConcurrency,
	}, logging.For("analyzer"))
	impactEngine := impact.New(db, impact.Config{
		BatchSize: cfg.Scheduler.ImpactBatchSize,
	}, logging.For("impact"))
	mailer := notify.NewMailer(notify.MailerConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		User:     cfg.Mail.User,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	})
	notifyEngine := notify.New(db, mailer, notify.Config{
		BatchSize:  cfg.Scheduler.NotifyBatchSize,
		FallbackTo: firstNonEmpty(cfg.Mail.NotifyTo, cfg.Mail.From),
	}, logging.For("notify"))

	stages := []*scheduler.Stage{
		{Name: "event_collector", Work: collectorEngine.CollectDue, PollInterval: cfg.Scheduler.CollectInterval},
		{Name: "event_classifier", Work: classifierEngine.ClassifyPending, PollInterval: cfg.Scheduler.ClassifyInterval},
		{Name: "vuln_analyzer", Work: analyzerEngine.AnalyzePending, PollInterval: cfg.Scheduler.AnalyzeInterval},
		{Name: "impact_matcher", Work: impactEngine.MatchPending, PollInterval: cfg.Scheduler.ImpactInterval},
	}
	if reachabilityEngine != nil {
		stages = append(stages, &scheduler.Stage{Name: "reachability", Work: reachabilityEngine.ProcessPending, PollInterval: cfg.Scheduler.ReachabilityInterval})
	}
	stages = append(stages, &scheduler.Stage{Name: "notification", Work: notifyEngine.NotifyPending, PollInterval: cfg.Scheduler.NotifyInterval})

	sched := scheduler.New(logging.For("scheduler"), stages...)
	sched.Start(ctx)
	log.Printf("Pipeline scheduler started with %d stages", len(stages))

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		dbHealth, err := database.Health(reqCtx, db)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": dbHealth,
				"error":    err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"database": dbHealth,
			"stages":   len(stages),
		})
	})

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"app": version.AppName, "commit": version.GitCommit})
	})

	if cfg.HTTP.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown signal received, stopping pipeline and HTTP server")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
}

// llmBaseURL maps a provider name to its OpenAI-compatible base URL. Only
// "openai" is wired today; any other provider name still resolves to a
// base URL the caller can override with VULNSENTINEL_LLM_BASE_URL.
func llmBaseURL(provider string) string {
	if override := os.Getenv("VULNSENTINEL_LLM_BASE_URL"); override != "" {
		return override
	}
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	default:
		return "https://api.openai.com/v1"
	}
}

// callGraphStoreFromEnv resolves the external call-graph snapshot store.
// The store itself is owned and operated by the static-analysis engine;
// this process only consumes its query surface over HTTP. Returning nil
// (no URL configured) disables the reachability stage rather than
// fabricating verdicts without a store to ask.
func callGraphStoreFromEnv() reachability.Store {
	base := os.Getenv("VULNSENTINEL_CALLGRAPH_URL")
	if base == "" {
		return nil
	}
	return reachability.NewHTTPStore(reachability.HTTPStoreConfig{BaseURL: base})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
