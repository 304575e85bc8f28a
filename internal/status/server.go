// Package status serves a small local HTTP surface for health, connection
// state and the profile setting.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/config"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/connection"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/profile"
)

// Connection reports the native port state.
type Connection interface {
	Snapshot() connection.Snapshot
}

type Server struct {
	cfg   config.Config
	conn  Connection
	store profile.Store
	gate  *profile.Gate
}

func New(cfg config.Config, conn Connection, store profile.Store) *Server {
	return &Server{
		cfg:   cfg,
		conn:  conn,
		store: store,
		gate:  profile.NewGate(store, cfg.Settings.Profile()),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", s.handleHealth)
	router.Get("/status", s.handleStatus)
	router.Get("/profile", s.handleGetProfile)
	router.Put("/profile", s.handlePutProfile)
	return router
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"name":      s.cfg.Server.Name,
		"version":   s.cfg.Server.Version,
		"host_name": s.cfg.Server.HostName,
		"transport": s.cfg.Native.Transport,
		"profile":   s.gate.Current(r.Context()),
	}
	if s.conn != nil {
		payload["connection"] = s.conn.Snapshot()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"profile": s.gate.Current(r.Context())})
}

type profileRequest struct {
	Profile string `json:"profile"`
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"profile\": \"<name>\"}")
		return
	}
	name := strings.TrimSpace(req.Profile)
	if name == "" {
		writeError(w, http.StatusBadRequest, "profile must not be empty")
		return
	}

	previous := s.gate.Current(r.Context())
	if err := s.store.Set(r.Context(), name); err != nil {
		log.Printf("set profile %q: %v", name, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Printf("profile changed from %q to %q", previous, name)
	writeJSON(w, http.StatusOK, map[string]string{"previous": previous, "profile": name})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Printf("http %s %s status=%d bytes=%d duration_ms=%d request_id=%s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(),
			time.Since(start).Milliseconds(), middleware.GetReqID(r.Context()))
	})
}
