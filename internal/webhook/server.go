// internal/webhook/server.go
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/relaybot/internal/notify"
	"github.com/user/relaybot/internal/telegram"
	"github.com/user/relaybot/internal/types"
)

const maxBodyBytes = 1 << 20

// Notifier routes a parsed notification event.
type Notifier interface {
	Route(ctx context.Context, e notify.Event) (notify.Report, error)
}

// UpdateHandler accepts a Telegram update for processing.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
}

// Options configures optional server behavior.
type Options struct {
	// AdminToken guards /api/sessions. Empty disables the endpoint.
	AdminToken string
	// CORSOrigins enables CORS for the listed origins. Empty disables CORS.
	CORSOrigins []string
}

// Server is the HTTP surface: health check, notification intake, Telegram
// webhook and the admin session listing.
type Server struct {
	notifier   Notifier
	updates    UpdateHandler
	sessions   types.SessionStore
	adminToken string
	router     chi.Router
}

// NewServer creates a Server.
func NewServer(notifier Notifier, updates UpdateHandler, sessions types.SessionStore, opts Options) *Server {
	s := &Server{
		notifier:   notifier,
		updates:    updates,
		sessions:   sessions,
		adminToken: opts.AdminToken,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/", s.handleHealth)
	r.Post("/notify", s.handleNotify)
	r.Post(telegram.WebhookPath, s.handleTelegram)
	r.Get("/api/sessions", s.handleAPISessions)

	s.router = r
	return s
}

// ServeHTTP delegates to the internal router, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "could not read body"})
		return
	}

	event, err := notify.ParseEvent(body)
	if err != nil {
		msg := "invalid JSON"
		if errors.Is(err, notify.ErrMissingMessage) {
			msg = err.Error()
		}
		slog.Warn("notification rejected", "error", err)
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: msg})
		return
	}

	if _, err := s.notifier.Route(r.Context(), event); err != nil {
		slog.Error("route notification failed", "error", err)
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleTelegram(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&update); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	if err := s.updates.HandleUpdate(r.Context(), update); err != nil {
		slog.Error("telegram update failed", "update_id", update.UpdateID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	if s.adminToken == "" || s.sessions == nil {
		http.Error(w, `{"error":"admin API not configured"}`, http.StatusServiceUnavailable)
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, s.sessions.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

// accessLog writes one slog record per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
