package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geobatch/internal/geocoding"
	"github.com/sells-group/geobatch/internal/jobs"
	"github.com/sells-group/geobatch/internal/store"
	"github.com/sells-group/geobatch/pkg/geocode"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job control server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initGeoEnv(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		mgr := jobs.NewManager(env.Engine, env.ManagerOptions(cfg)...)
		api := &jobServer{ctx: ctx, jobs: mgr, history: env.Store}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		err = g.Wait()
		// Running jobs saw ctx end and stop after their current record.
		mgr.Wait()
		return err
	},
}

// jobServer exposes the job registry over HTTP.
type jobServer struct {
	ctx     context.Context // lifetime of started jobs
	jobs    *jobs.Manager
	history store.Store
}

func (s *jobServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleStart)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Post("/{id}/cancel", s.handleCancel)
		r.Get("/{id}/result", s.handleResult)
	})
	r.Get("/history", s.handleHistory)
	return r
}

// startRequest is the body of POST /jobs.
type startRequest struct {
	Records                []geocode.AddressRecord `json:"records"`
	Destination            jobs.Destination        `json:"destination"`
	SaveOnErrorOrInterrupt *bool                   `json:"save_on_error_or_interrupt"`
}

func (s *jobServer) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records are required")
		return
	}

	params := jobs.Params{
		Records:                req.Records,
		Destination:            req.Destination,
		SaveOnErrorOrInterrupt: true,
	}
	if req.SaveOnErrorOrInterrupt != nil {
		params.SaveOnErrorOrInterrupt = *req.SaveOnErrorOrInterrupt
	}

	id, err := s.jobs.Start(s.ctx, params)
	if errors.Is(err, jobs.ErrJobActive) {
		writeError(w, http.StatusConflict, "a geocoding job is already running")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "accepted"})
}

func (s *jobServer) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.List())
}

func (s *jobServer) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.jobs.Get(id)
	if errors.Is(err, jobs.ErrUnknownJob) {
		// Pruned jobs may still be in the history.
		if s.history != nil {
			if rec, herr := s.history.GetJob(r.Context(), id); herr == nil {
				writeJSON(w, http.StatusOK, rec)
				return
			}
		}
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *jobServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Cancel(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel requested"})
}

// resultResponse is the body of GET /jobs/{id}/result.
type resultResponse struct {
	*geocoding.Report
	Summary          string `json:"summary"`
	PersistenceError string `json:"persistence_error,omitempty"`
}

func (s *jobServer) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.jobs.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	if !info.Done {
		writeError(w, http.StatusConflict, "job is still running")
		return
	}

	report, err := s.jobs.Await(r.Context(), id)
	if report == nil {
		writeError(w, http.StatusInternalServerError, eris.Wrap(err, "await").Error())
		return
	}
	resp := resultResponse{Report: report, Summary: report.Summary()}
	if err != nil {
		resp.PersistenceError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *jobServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []store.JobRecord{})
		return
	}
	filter := store.JobFilter{Status: geocoding.Status(r.URL.Query().Get("status"))}
	recs, err := s.history.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []store.JobRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
