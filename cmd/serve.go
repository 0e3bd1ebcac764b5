package main

import (
	"context"
	"encoding/json"
	"fmt"
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

	"github.com/stablewatch/ecosystem-cli/internal/model"
	"github.com/stablewatch/ecosystem-cli/internal/pipeline"
	"github.com/stablewatch/ecosystem-cli/internal/store"
)

var (
	servePort         int
	serveChain        string
	serveAsset        string
	serveWithResearch bool
	serveOffline      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for pipeline runs",
	Long:  "Serves job control endpoints: start a pipeline run, inspect or stop jobs. Runs execute in the background; job state lives in the run store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initPipeline(ctx, serveChain, serveAsset, serveWithResearch, serveOffline)
		if err != nil {
			return err
		}
		defer env.Close()

		manager := pipeline.NewManager(env.Pipeline, env.Store)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(manager, env.Store, cfg.Records.Path),
		}

		// Graceful shutdown: stop accepting, then wait for in-flight jobs.
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		manager.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveChain, "chain", "", "default chain id for started runs")
	serveCmd.Flags().StringVar(&serveAsset, "asset", "USDT", "target asset ticker")
	serveCmd.Flags().BoolVar(&serveWithResearch, "with-research", false, "append the AI research stage (paid API)")
	serveCmd.Flags().BoolVar(&serveOffline, "offline-index", false, "build a full registry index up front and match locally")
	rootCmd.AddCommand(serveCmd)
}

// newRouter wires the job control API. defaultStore is used when a start
// request names no record store.
func newRouter(m *pipeline.Manager, st store.Store, defaultStore string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/pipeline", func(r chi.Router) {
		r.Post("/start", handleStart(m, defaultStore))
		r.Get("/jobs", handleListJobs(st))
		r.Get("/jobs/{id}", handleGetJob(st))
		r.Post("/jobs/{id}/stop", handleStopJob(m, st))
	})

	return r
}

type startRequest struct {
	StorePath string   `json:"store_path"`
	Chain     string   `json:"chain"`
	Only      []string `json:"only"`
	Skip      []string `json:"skip"`
	Rollback  bool     `json:"rollback"`
}

func handleStart(m *pipeline.Manager, defaultStore string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.StorePath == "" {
			req.StorePath = defaultStore
		}
		if req.StorePath == "" {
			writeError(w, http.StatusBadRequest, "store_path is required")
			return
		}

		job, err := m.Start(r.Context(), pipeline.Options{
			StorePath: req.StorePath,
			Chain:     req.Chain,
			Only:      req.Only,
			Skip:      req.Skip,
			Rollback:  req.Rollback,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		zap.L().Info("job started",
			zap.String("job", job.ID),
			zap.String("store", req.StorePath),
			zap.String("chain", req.Chain))
		writeJSON(w, http.StatusAccepted, job)
	}
}

func handleListJobs(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 50
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		jobs, err := st.ListJobs(r.Context(), store.JobFilter{
			Status: model.JobStatus(q.Get("status")),
			Chain:  q.Get("chain"),
			Limit:  limit,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if jobs == nil {
			jobs = []model.Job{}
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}

func handleGetJob(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := st.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleStopJob(m *pipeline.Manager, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := m.Stop(r.Context(), id); err != nil {
			if _, gerr := st.GetJob(r.Context(), id); gerr != nil {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping", "id": id})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
