package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"portfolio-studio-server/modules/common/config"
	"portfolio-studio-server/modules/common/database"
	"portfolio-studio-server/modules/common/gemini"
	"portfolio-studio-server/modules/common/logger"
	"portfolio-studio-server/modules/common/media"
	redisclient "portfolio-studio-server/modules/common/redis"
	"portfolio-studio-server/modules/common/registry"
	"portfolio-studio-server/modules/common/session"
	"portfolio-studio-server/modules/common/storage"
	"portfolio-studio-server/modules/common/utils"
	"portfolio-studio-server/modules/jobclient"
	"portfolio-studio-server/modules/studio"
)

// server - shared handles for the admin endpoints
type server struct {
	manager *studio.Manager
	jobs    *jobclient.Client
	keys    *session.KeyPool // nil on the Vertex backend
	store   *database.Client // nil without Supabase
	log     zerolog.Logger
}

// enableCORS - CORS headers for the configured origin
func enableCORS(allowedOrigin string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// healthCheck - liveness plus key pool health
func (s *server) healthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "healthy",
		"service": "portfolio-studio",
	}
	if s.keys != nil {
		total, healthy := s.keys.Keys()
		body["apiKeys"] = map[string]int{"total": total, "healthy": healthy}
	}
	writeJSON(w, http.StatusOK, body)
}

// getMetrics - modal counters and open modals
func (s *server) getMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"server":     s.manager.Metrics(),
		"activeJobs": s.jobs.Active(),
		"modals":     s.manager.Views(),
	})
}

// forceCleanup - run both modal sweeps now (admin)
func (s *server) forceCleanup(w http.ResponseWriter, r *http.Request) {
	cleaned := s.manager.Cleanup()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "Cleanup completed",
		"cleaned": cleaned,
	})
}

// resetKeys - clear lost marks on the key pool (admin)
func (s *server) resetKeys(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "key pool not in use"})
		return
	}
	s.keys.Reset()
	s.log.Info().Msg("🔑 API key pool reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "Key pool reset"})
}

// getJobRecord - stored Supabase job record (admin)
func (s *server) getJobRecord(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job records disabled"})
		return
	}
	record, err := s.store.FetchJob(r.Context(), mux.Vars(r)["jobId"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.New("production", "").Fatal().Err(err).Msg("❌ Failed to load config")
	}
	log := logger.New(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session provider
	var (
		provider session.Provider
		keys     gemini.KeySource
		pool     *session.KeyPool
		vertex   *gemini.VertexOptions
	)
	if cfg.GeminiBackend == config.BackendVertex {
		ambient := session.Ambient{}
		provider, keys = ambient, ambient
		vertex = &gemini.VertexOptions{
			Project:         cfg.VertexProject,
			Location:        cfg.VertexLocation,
			CredentialsJSON: cfg.VertexCredentialsJSON,
			CredentialsPath: cfg.VertexCredentialsPath,
		}
		log.Info().Str("project", cfg.VertexProject).Str("location", cfg.VertexLocation).Msg("☁️  Using Vertex AI backend")
	} else {
		pool = session.NewKeyPool(cfg.GeminiAPIKeys, logger.Component(log, "keypool"))
		provider, keys = pool, pool
		log.Info().Int("keys", len(cfg.GeminiAPIKeys)).Msg("🔑 Using Gemini API key pool")
	}

	service := gemini.NewService(gemini.Options{
		ImageModel:        cfg.ImageModel,
		VideoModel:        cfg.VideoModel,
		Vertex:            vertex,
		RateLimitAttempts: cfg.RateLimitAttempts,
	}, keys, logger.Component(log, "gemini"))

	jobs := jobclient.NewClient(service, session.NewGate(provider), logger.Component(log, "jobclient"),
		jobclient.WithPollInterval(cfg.PollInterval),
		jobclient.WithMaxPollAttempts(cfg.MaxPollAttempts),
		jobclient.WithPollDeadline(cfg.PollDeadline),
	)

	// Edited asset registry
	var reg registry.Registry
	if cfg.RegistryBackend == config.RegistryRedis {
		rdb, err := redisclient.Connect(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("❌ Failed to connect to Redis")
		}
		defer rdb.Close()
		reg = registry.NewRedis(rdb, "", cfg.RegistryCapacity)
	} else {
		reg = registry.NewMemory(cfg.RegistryCapacity)
	}

	deps := studio.Deps{
		Jobs:     jobs,
		Encoder:  media.NewEncoder(nil, logger.Component(log, "encoder")),
		Registry: reg,
		Video: studio.VideoDefaults{
			Prompt:     cfg.VideoPrompt,
			Resolution: cfg.VideoResolution,
			Count:      cfg.VideoCount,
		},
		Log: logger.Component(log, "studio"),
	}

	// Supabase is optional
	var store *database.Client
	if cfg.SupabaseEnabled() {
		store, err = database.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, logger.Component(log, "database"))
		if err != nil {
			log.Fatal().Err(err).Msg("❌ Failed to create Supabase client")
		}
		deps.Store = store
		deps.Publisher = storage.NewPublisher(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket,
			cfg.WebPQuality, utils.ConvertToWebP, nil, logger.Component(log, "storage"))
		log.Info().Str("bucket", cfg.SupabaseStorageBucket).Msg("✅ Supabase storage and job records enabled")
	}

	catalogue, err := studio.LoadCatalogue(cfg.ProjectsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to load projects")
	}

	manager := studio.NewManager(deps, catalogue)
	manager.StartCleanupRoutine(ctx)

	srv := &server{manager: manager, jobs: jobs, keys: pool, store: store, log: log}

	r := mux.NewRouter()
	r.Use(enableCORS(cfg.AllowedOrigin))

	r.HandleFunc("/", srv.healthCheck).Methods("GET")
	r.HandleFunc("/health", srv.healthCheck).Methods("GET")
	r.HandleFunc("/metrics", srv.getMetrics).Methods("GET")
	r.HandleFunc("/admin/cleanup", srv.forceCleanup).Methods("POST")
	r.HandleFunc("/admin/keys/reset", srv.resetKeys).Methods("POST")
	r.HandleFunc("/admin/jobs/{jobId}", srv.getJobRecord).Methods("GET")
	studio.NewHandler(manager, cfg.AllowedOrigin, logger.Component(log, "http")).Register(r)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("port", cfg.Port).Msg("🚀 Portfolio Studio Server starting")
	log.Info().Msgf("🎨 Studio API: http://localhost:%s/api/studio", cfg.Port)
	log.Info().Msgf("❤️  Health check: http://localhost:%s/health", cfg.Port)
	log.Info().Msgf("📊 Metrics: http://localhost:%s/metrics", cfg.Port)

	go func() {
		<-ctx.Done()
		log.Info().Msg("🛑 Shutting down")
		manager.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("❌ Graceful shutdown failed")
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed to start")
	}
}
