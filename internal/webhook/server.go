/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"stars-storefront-go/internal/botapi"
	"stars-storefront-go/internal/listener"
	"stars-storefront-go/internal/models"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SecretHeader carries the secret registered with setWebhook
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxUpdateBytes = 1 << 20

// Enqueuer accepts decoded updates for asynchronous processing
type Enqueuer interface {
	Enqueue(update botapi.Update) error
}

// HealthChecker reports whether the store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server is the inbound HTTP surface: platform updates, health and metrics
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	updates    Enqueuer
	health     HealthChecker
	secret     string
}

// NewServer builds the router. metrics may be nil to disable /metrics.
func NewServer(cfg models.ServerConfig, updates Enqueuer, health HealthChecker, metrics http.Handler) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		updates: updates,
		health:  health,
		secret:  cfg.WebhookSecret,
	}
	s.RegisterRoutes(metrics)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// RegisterRoutes registers the webhook, health and metrics routes
func (s *Server) RegisterRoutes(metrics http.Handler) {
	s.router.Use(logRequests)

	s.router.HandleFunc("/webhook", s.handleUpdate).Methods(http.MethodPost)
	s.router.HandleFunc("/webhook/{secret}", s.handleUpdate).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens in the background. Errors other than a clean shutdown are
// logged and reported on the returned channel.
func (s *Server) Start() <-chan error {
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		zap.L().Info("Webhook server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("Webhook server failed", zap.Error(err))
			errs <- err
		}
	}()
	return errs
}

// Serve runs on an existing listener, used when the port is chosen by the OS
func (s *Server) Serve(l net.Listener) error {
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	zap.L().Info("Shutting down webhook server")
	return s.httpServer.Shutdown(ctx)
}

// authorized accepts the secret from the path or the platform header. An
// empty configured secret disables the check.
func (s *Server) authorized(r *http.Request) bool {
	if s.secret == "" {
		return true
	}
	for _, candidate := range []string{mux.Vars(r)["secret"], r.Header.Get(SecretHeader)} {
		if candidate != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(s.secret)) == 1 {
			return true
		}
	}
	return false
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		zap.L().Warn("Webhook call with invalid secret", zap.String("remote_addr", r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var update botapi.Update
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes))
	if err := decoder.Decode(&update); err != nil {
		zap.L().Warn("Malformed update", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed update"})
		return
	}

	if err := s.updates.Enqueue(update); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, listener.ErrQueueFull) || errors.Is(err, listener.ErrListenerStopped) {
			status = http.StatusServiceUnavailable
		}
		zap.L().Warn("Update not accepted",
			zap.Int64("update_id", update.UpdateId),
			zap.Error(err))
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.health.Ping(ctx); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Debug("Failed to write response", zap.Error(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// The route template keeps the secret out of the logs
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		zap.L().Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
