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

	"github.com/prospectly/leadgen-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server",
	Long:  "Exposes generation, refresh, lead listing, status, and export-check endpoints. Generation runs detach from the request; completion is observed via the persisted status and the live-update event.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

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

		return nil
	},
}

func newRouter(env *env) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/customers/{customerID}/generate", func(w http.ResponseWriter, req *http.Request) {
		customerID := chi.URLParam(req, "customerID")

		var body struct {
			Target     int  `json:"target"`
			Subscribed bool `json:"subscribed"`
			Restart    bool `json:"restart"`
		}
		if req.Body != nil {
			_ = json.NewDecoder(req.Body).Decode(&body)
		}
		target := body.Target
		if target == 0 {
			target = targetFor(body.Subscribed)
		}

		// Fire-and-forget: the caller polls status or listens for the
		// live-update event. The request context dies with the request,
		// so the run detaches onto the background context.
		go runDetached(env, customerID, target, body.Restart)

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":      "accepted",
			"customer_id": customerID,
		})
	})

	r.Post("/customers/{customerID}/refresh", func(w http.ResponseWriter, req *http.Request) {
		customerID := chi.URLParam(req, "customerID")

		var body struct {
			Subscribed bool `json:"subscribed"`
			Bypass     bool `json:"bypass"`
		}
		if req.Body != nil {
			_ = json.NewDecoder(req.Body).Decode(&body)
		}

		dec, err := env.Gate.ConsumeRefresh(req.Context(), customerID, body.Bypass)
		if err != nil {
			if eris.Is(err, store.ErrProfileNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "customer not found"})
				return
			}
			zap.L().Error("refresh allowance check failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "allowance check failed"})
			return
		}
		if !dec.Allowed {
			resp := map[string]any{"error": "refresh allowance exhausted"}
			if dec.RetryAt != nil {
				resp["retry_at"] = dec.RetryAt.Format(time.RFC3339)
			}
			writeJSON(w, http.StatusTooManyRequests, resp)
			return
		}

		go runDetached(env, customerID, targetFor(body.Subscribed), true)

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":      "accepted",
			"customer_id": customerID,
		})
	})

	r.Get("/customers/{customerID}/status", func(w http.ResponseWriter, req *http.Request) {
		customerID := chi.URLParam(req, "customerID")

		p, err := env.Store.GetProfile(req.Context(), customerID)
		if err != nil {
			if eris.Is(err, store.ErrProfileNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "customer not found"})
				return
			}
			zap.L().Error("load profile failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "load profile failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"customer_id":       p.CustomerID,
			"generation_status": p.GenerationStatus,
			"current_page":      p.CurrentPage,
			"total_pages":       p.TotalPages,
			"refresh_allowance": p.RefreshAllowance,
		})
	})

	r.Get("/customers/{customerID}/leads", func(w http.ResponseWriter, req *http.Request) {
		customerID := chi.URLParam(req, "customerID")

		leads, err := env.Store.ListLeads(req.Context(), customerID)
		if err != nil {
			zap.L().Error("list leads failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list leads failed"})
			return
		}
		writeJSON(w, http.StatusOK, leads)
	})

	r.Post("/organizations/{orgID}/export-check", func(w http.ResponseWriter, req *http.Request) {
		orgID := chi.URLParam(req, "orgID")

		var body struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Count < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "count must be a positive integer"})
			return
		}

		dec, err := env.Gate.CheckAndDecrementQuota(req.Context(), orgID, body.Count)
		if err != nil {
			zap.L().Error("quota check failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "quota check failed"})
			return
		}
		status := http.StatusOK
		if !dec.OK {
			status = http.StatusPaymentRequired
		}
		writeJSON(w, status, map[string]any{
			"ok":        dec.OK,
			"remaining": dec.Remaining,
		})
	})

	return r
}

// runDetached executes one generation run on the background context.
func runDetached(env *env, customerID string, target int, restart bool) {
	result, err := env.Generator.Run(context.Background(), customerID, target, restart)
	if err != nil {
		zap.L().Error("detached generation failed",
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("detached generation complete",
		zap.String("customer_id", customerID),
		zap.Int("created_leads", len(result.CreatedLeads)),
	)
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
