package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"meetcorrect/internal/api"
	"meetcorrect/internal/auth"
	"meetcorrect/internal/config"
	"meetcorrect/internal/correction"
	"meetcorrect/internal/correctionsvc"
	"meetcorrect/internal/database"
	"meetcorrect/internal/heartbeat"
	"meetcorrect/internal/notify"
	"meetcorrect/internal/pipeline"
	"meetcorrect/internal/reattach"
	"meetcorrect/internal/repository"
	"meetcorrect/internal/store"
	"meetcorrect/internal/stuckdetect"
	"meetcorrect/internal/transcribe"
	"meetcorrect/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// @title Meeting Transcription & Correction Pipeline API
// @version 1.0
// @description Thin operator API in front of the transcription/correction pipeline
// @termsOfService http://swagger.io/terms/

// @contact.name Pipeline operators
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token with Bearer prefix

var rootCmd = &cobra.Command{
	Use:   "meetcorrect",
	Short: "Meeting transcription and correction pipeline daemon",
	Run: func(cmd *cobra.Command, args []string) {
		runServe(context.Background())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("meetcorrect %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
	},
}

func main() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(installCmd, startCmd, stopCmd, uninstallCmd, logsCmd, serviceRunCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// runServe brings the whole daemon up and blocks until ctx is cancelled or a
// termination signal arrives, whichever comes first.
func runServe(parent context.Context) {
	log.Println("🚀 meetcorrect starting up...")

	log.Println("📋 Loading configuration...")
	cfg := config.Load()

	log.Println("📝 Initializing logging system...")
	logger.Init(cfg.LogLevel)
	logger.Info("Starting meetcorrect", "version", version, "commit", commit)

	log.Println("🗄️  Initializing database connection...")
	if err := database.Initialize(cfg.DatabasePath); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close()
	log.Println("✅ Database connection established")

	log.Println("🔐 Setting up authentication service...")
	authService := auth.New(cfg.JWTSecret)
	log.Println("✅ Authentication service ready")

	meetingStore := store.New(database.DB)
	heartbeats := heartbeat.New()
	emitter := notify.New()
	defer emitter.Shutdown()

	log.Println("🎤 Selecting transcription backend...")
	correctionClient := correction.New(cfg.CorrectionAgentURL, cfg.CorrectionAgentAPIKey)
	backend, err := transcribe.New(cfg, correctionClient)
	if err != nil {
		log.Fatal("Failed to build transcription backend:", err)
	}
	logger.Info("Transcription backend ready", "mode", cfg.DeploymentMode)

	correctionSvc := correctionsvc.New(meetingStore, backend, correctionClient, emitter, heartbeats, cfg)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	log.Println("🔁 Reconciling meetings orphaned by a prior process...")
	reattachCtrl := reattach.New(meetingStore, backend, correctionSvc, emitter, cfg.WorkspaceRoot)
	if err := reattachCtrl.Reconcile(ctx); err != nil {
		logger.Error("reattach reconciliation failed", "error", err)
	}
	log.Println("✅ Reattach reconciliation complete")

	log.Println("🏃 Starting pipeline workers...")
	runner := pipeline.New(meetingStore, backend, correctionSvc, emitter, heartbeats, noopIndexQueue{}, cfg)
	go func() {
		if err := runner.Run(ctx); err != nil {
			logger.Error("pipeline runner exited", "error", err)
		}
	}()
	log.Println("✅ Pipeline workers started")

	log.Println("🩺 Starting stuck-meeting detector...")
	detector := stuckdetect.New(meetingStore, heartbeats, emitter, backend, cfg, time.Now())
	go func() {
		if err := detector.Run(ctx); err != nil {
			logger.Error("stuck detector exited", "error", err)
		}
	}()
	log.Println("✅ Stuck detector started")

	log.Println("🔧 Setting up API handlers...")
	users := repository.NewUserRepository(database.DB)
	apiKeys := repository.NewAPIKeyRepository(database.DB)
	handler := api.NewHandler(cfg, authService, meetingStore, correctionSvc, emitter, heartbeats, users, apiKeys)

	log.Println("🛤️  Configuring routes...")
	router := api.SetupRoutes(handler, authService)
	log.Println("✅ Routes configured")

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("🌐 Starting HTTP server on %s:%s", cfg.Host, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	log.Printf("🎉 meetcorrect is now running! Server listening on http://%s:%s", cfg.Host, cfg.Port)
	log.Println("💡 Visit /swagger/index.html for API documentation")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("Received termination signal")
	case <-ctx.Done():
		log.Println("Parent context cancelled")
	}

	log.Println("Shutting down server...")
	cancel() // stop pipeline workers, stuck detector

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

// noopIndexQueue is the indexing transport runServe hands the pipeline:
// enqueue succeeds immediately, leaving the meeting to advance to INDEXED
// without an external sink. It is used whatever cfg.IndexQueueURL holds;
// this module has no other IndexQueue implementation.
type noopIndexQueue struct{}

func (noopIndexQueue) Enqueue(ctx context.Context, meetingID string, blob string) error {
	logger.Debug("index queue: no-op enqueue", "meeting_id", meetingID, "blob_bytes", len(blob))
	return nil
}
