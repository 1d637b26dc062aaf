package main

import (
	"context"
	"encoding/json"
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

	"github.com/placepin/importer/internal/model"
	"github.com/placepin/importer/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	Long:  "Exposes pipeline state and control endpoints for an external review UI.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initImporter(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/api", func(r chi.Router) {
			r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
				snap := e.Coordinator.State()
				writeJSON(w, http.StatusOK, statusResponse(snap))
			})

			r.Get("/candidates", func(w http.ResponseWriter, _ *http.Request) {
				snap := e.Coordinator.State()
				writeJSON(w, http.StatusOK, candidatesResponse(snap))
			})

			r.Post("/import", func(w http.ResponseWriter, req *http.Request) {
				var body struct {
					Input string `json:"input"`
				}
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Input == "" {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "input is required"})
					return
				}
				e.Coordinator.Start(body.Input)
				writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
			})

			r.Post("/cancel", func(w http.ResponseWriter, _ *http.Request) {
				e.Coordinator.Cancel()
				writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
			})

			r.Post("/retry/{id}", func(w http.ResponseWriter, req *http.Request) {
				e.Coordinator.Retry(chi.URLParam(req, "id"))
				writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
			})

			r.Post("/confirm", func(w http.ResponseWriter, req *http.Request) {
				var body struct {
					IDs []string `json:"ids"`
				}
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
					return
				}
				if err := e.Coordinator.Confirm(req.Context(), body.IDs); err != nil {
					writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			// Fresh context: the signal context is already cancelled and
			// would give in-flight requests no drain window.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting review server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

type candidateJSON struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name,omitempty"`
	Normalized  string  `json:"normalized"`
	Status      string  `json:"status"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
}

func statusResponse(snap pipeline.Snapshot) map[string]any {
	resp := map[string]any{
		"stage":                 snap.Stage.String(),
		"candidates":            len(snap.Candidates),
		"used_fallback_compute": snap.UsedFallbackCompute,
	}
	if snap.Stage.Kind == model.StageGeocoding {
		resp["done"] = snap.Stage.Done
		resp["total"] = snap.Stage.Total
	}
	if snap.Stage.Kind == model.StageFailed {
		resp["message"] = snap.Stage.Message
	}
	return resp
}

func candidatesResponse(snap pipeline.Snapshot) []candidateJSON {
	out := make([]candidateJSON, 0, len(snap.Candidates))
	for _, c := range snap.Candidates {
		cj := candidateJSON{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Normalized:  c.NormalizedText,
			Status:      string(c.Status),
		}
		if c.Coordinate != nil {
			cj.Latitude = c.Coordinate.Latitude
			cj.Longitude = c.Coordinate.Longitude
		}
		out = append(out, cj)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
