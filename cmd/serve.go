package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vergilyu/geoai-retail/internal/enrich"
	"github.com/vergilyu/geoai-retail/internal/source"
	"github.com/vergilyu/geoai-retail/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API over the run registry and enrichment pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		router := newRouter(st, newResolver())

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(st store.Store, resolver *source.Resolver) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		runs, err := st.ListRuns(req.Context(), store.RunFilter{
			Status: store.RunStatus(req.URL.Query().Get("status")),
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if runs == nil {
			runs = []store.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Post("/enrich", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Closest string `json:"closest"`
			Plan    string `json:"plan"`
			Output  string `json:"output"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.Plan == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "plan is required"})
			return
		}

		plan, err := enrich.LoadPlan(body.Plan)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		closest := body.Closest
		if closest == "" {
			closest = plan.Closest
		}
		if closest == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "closest is required"})
			return
		}

		run, err := st.CreateRun(req.Context(), "enrich", closest)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		// Run enrichment asynchronously; poll /runs/{id} for the result.
		go func() {
			ctx := context.Background()
			if err := applyPlanRun(ctx, st, resolver, plan, run.ID, closest, body.Output); err != nil {
				zap.L().Error("api enrichment failed", zap.String("run", run.ID), zap.Error(err))
				if failErr := st.FailRun(ctx, run.ID, err.Error()); failErr != nil {
					zap.L().Warn("could not record run failure", zap.String("run", run.ID), zap.Error(failErr))
				}
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"run_id": run.ID,
		})
	})

	return r
}

func applyPlanRun(ctx context.Context, st store.Store, resolver *source.Resolver, plan *enrich.Plan, runID, closest, output string) error {
	parent, err := resolver.Resolve(ctx, closest)
	if err != nil {
		return err
	}
	result, err := plan.Apply(ctx, parent, resolver.Resolve)
	if err != nil {
		return err
	}

	if output == "" {
		output = plan.Output
	}
	if output != "" {
		if err := source.WriteCSVFile(result, output); err != nil {
			return err
		}
	}

	if err := st.CompleteRun(ctx, runID, result.NumRows(), len(result.Columns()), output); err != nil {
		zap.L().Warn("could not record run completion", zap.String("run", runID), zap.Error(err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
