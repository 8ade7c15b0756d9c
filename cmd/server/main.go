package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"speakwise/internal/config"
	"speakwise/internal/database"
	"speakwise/internal/handlers"
	"speakwise/internal/repository"
	"speakwise/internal/script"
	"speakwise/internal/service"
	"speakwise/internal/session"
	"speakwise/internal/voice/googletts"
)

func main() {
	// Load .env if present, real environment wins
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database (supports sqlite, postgres, mysql)
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	// Load practice scripts
	catalog, err := script.LoadDir(cfg.ScriptsPath)
	if err != nil {
		log.Fatalf("Failed to load scripts from %s: %v", cfg.ScriptsPath, err)
	}
	log.Printf("Loaded %d practice scripts", len(catalog.List()))

	// Initialize repositories and services
	progressRepo := repository.NewProgressRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	progressService := service.NewProgressService(progressRepo, sessionRepo)

	reportService, err := service.NewReportService(cfg.SESRegion, cfg.SESFromEmail, cfg.SESFromName, progressService)
	if err != nil {
		log.Fatalf("Failed to initialize report service: %v", err)
	}

	// Voice output with on-disk audio cache
	synthesizer := googletts.New(cfg.AudioDir)

	// Session registry
	manager := session.NewManager(cfg.SessionIdleTimeout)
	hub := handlers.NewHub()

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(cfg, catalog, manager, hub, progressService, synthesizer)
	progressHandler := handlers.NewProgressHandler(cfg, progressService, reportService)
	scriptHandler := handlers.NewScriptHandler(catalog)

	// Setup routes
	mux := http.NewServeMux()

	// Static files (cached prompt audio lives under /static/audio)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticFilesPath))))

	// Script catalog
	mux.HandleFunc("GET /api/scripts", scriptHandler.List)
	mux.HandleFunc("GET /api/scripts/{id}", scriptHandler.Get)

	// Session lifecycle
	mux.HandleFunc("POST /api/sessions", sessionHandler.Start)
	mux.HandleFunc("GET /api/sessions/{id}", sessionHandler.GetState)
	mux.HandleFunc("GET /api/sessions/{id}/events", sessionHandler.Events)
	mux.HandleFunc("POST /api/sessions/{id}/response", sessionHandler.SubmitResponse)
	mux.HandleFunc("POST /api/sessions/{id}/choice", sessionHandler.SubmitChoice)
	mux.HandleFunc("POST /api/sessions/{id}/audio", sessionHandler.SubmitAudio)
	mux.HandleFunc("POST /api/sessions/{id}/replay", sessionHandler.Replay)
	mux.HandleFunc("POST /api/sessions/{id}/continue", sessionHandler.Continue)
	mux.HandleFunc("POST /api/sessions/{id}/retry-save", sessionHandler.RetrySave)
	mux.HandleFunc("POST /api/sessions/{id}/abort", sessionHandler.Abort)

	// Learner progress and reporting
	mux.HandleFunc("GET /api/learners/{id}/progress", progressHandler.GetProgress)
	mux.HandleFunc("GET /api/learners/{id}/sessions", progressHandler.GetSessions)
	mux.HandleFunc("GET /api/learners/{id}/struggling", progressHandler.GetStrugglingSteps)
	mux.HandleFunc("POST /api/learners/{id}/report", progressHandler.SendReport)
	mux.HandleFunc("GET /api/session-results/{id}", progressHandler.GetSessionResults)

	handler := handlers.Logging(mux)

	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket event streams stay open
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server starting on http://localhost%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := manager.CleanupIdle(); n > 0 {
					log.Printf("Cleaned up %d idle sessions", n)
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Println("Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
