package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omnifunnel/visibility-cli/internal/engine"
	"github.com/omnifunnel/visibility-cli/internal/store"
	"github.com/omnifunnel/visibility-cli/internal/visibility"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the visibility HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Background health probes keep the registry fresh for dispatch
		// decisions and the engines endpoint.
		prober := engine.NewProber(env.Registry, env.Health, time.Duration(cfg.Tracker.HealthIntervalSecs)*time.Second)
		go prober.Run(ctx)

		api := &apiServer{env: env, baseCtx: ctx}
		r := api.router(cfg.Server.AllowedOrigins)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

type apiServer struct {
	env *trackerEnv

	// baseCtx outlives individual requests; accepted runs execute on it so
	// a client disconnect does not cancel the run.
	baseCtx context.Context
}

// router assembles the API routes and middleware.
func (s *apiServer) router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/engines", s.handleEngines)
		r.Post("/clusters/{clusterID}/runs", s.handleCreateRun)
		r.Get("/clusters/{clusterID}/answers", s.handleListAnswers)
		r.Get("/runs/{runID}", s.handleGetRun)
		r.Post("/scores", s.handleComputeScore)
		r.Get("/scores/history", s.handleScoreHistory)
	})
	return r
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleEngines(w http.ResponseWriter, r *http.Request) {
	type engineInfo struct {
		Name            string `json:"name"`
		SearchGrounding bool   `json:"search_grounding"`
		NativeCitations bool   `json:"native_citations"`
		Health          string `json:"health"`
	}
	var out []engineInfo
	for _, name := range s.env.Registry.Names() {
		caps := s.env.Registry.Get(name).Capabilities()
		out = append(out, engineInfo{
			Name:            name,
			SearchGrounding: caps.SearchGrounding,
			NativeCitations: caps.NativeCitations,
			Health:          string(s.env.Health.State(name)),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"engines": out})
}

func (s *apiServer) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	clusterID := chi.URLParam(r, "clusterID")

	var req struct {
		Engines       []string `json:"engines"`
		VariantSample int      `json:"variant_sample"`
	}
	// The body is optional; chunked requests carry no ContentLength, so
	// decode whatever is there and treat an immediate EOF as absent.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	cluster, err := s.env.Store.GetCluster(ctx, clusterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "cluster not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup cluster failed")
		return
	}

	selected, err := s.env.Store.ListVariants(ctx, cluster.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list variants failed")
		return
	}
	if len(selected) == 0 {
		writeError(w, http.StatusConflict, "cluster has no variants")
		return
	}
	if req.VariantSample > 0 && req.VariantSample < len(selected) {
		selected = selected[:req.VariantSample]
	}

	engines, err := s.env.Registry.Select(req.Engines)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.env.Store.CreateRun(ctx, cluster.ID, req.Engines, len(selected))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create run failed")
		return
	}

	// Accepted asynchronously; execution continues after this response.
	go func() {
		if err := s.env.Orch.Execute(s.baseCtx, run, selected, engines); err != nil {
			zap.L().Error("run execution failed",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": run.ID,
		"jobs":   len(selected) * len(engines),
	})
}

func (s *apiServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.env.Store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup run failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *apiServer) handleListAnswers(w http.ResponseWriter, r *http.Request) {
	filter := store.AnswerFilter{
		Engine: r.URL.Query().Get("engine"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}

	answers, err := s.env.Store.ListAnswers(r.Context(), chi.URLParam(r, "clusterID"), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list answers failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answers": answers})
}

func (s *apiServer) handleComputeScore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SiteID     string `json:"site_id"`
		ClusterID  string `json:"cluster_id"`
		WindowDays int    `json:"window_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SiteID == "" {
		writeError(w, http.StatusBadRequest, "site_id is required")
		return
	}

	site, err := cfg.Site(req.SiteID)
	if err != nil {
		writeError(w, http.StatusNotFound, "site not configured")
		return
	}
	if req.WindowDays <= 0 {
		req.WindowDays = cfg.Score.WindowDays
	}

	score, err := s.env.Aggregator.Compute(r.Context(), site, req.ClusterID, req.WindowDays)
	if err != nil {
		if errors.Is(err, visibility.ErrNoScoreAvailable) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no score available"})
			return
		}
		writeError(w, http.StatusInternalServerError, "compute score failed")
		return
	}

	if err := s.env.Store.InsertScore(r.Context(), *score); err != nil {
		writeError(w, http.StatusInternalServerError, "store score failed")
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *apiServer) handleScoreHistory(w http.ResponseWriter, r *http.Request) {
	siteID := r.URL.Query().Get("site_id")
	if siteID == "" {
		writeError(w, http.StatusBadRequest, "site_id is required")
		return
	}

	scores, err := s.env.Store.ListScores(r.Context(), siteID, r.URL.Query().Get("cluster_id"), queryInt(r, "limit"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list scores failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scores": scores})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(key))
	return v
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
