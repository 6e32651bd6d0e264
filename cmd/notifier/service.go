package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/angelmondragon/velora-notify/internal/engine"
	"github.com/angelmondragon/velora-notify/internal/preferences"
	pkgerrors "github.com/angelmondragon/velora-notify/pkg/errors"
	"github.com/angelmondragon/velora-notify/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// service exposes the session's presentation surface plus operational
// endpoints over HTTP.
type service struct {
	logg     *logger.Logger
	session  *engine.Session
	prefs    *preferences.RedisStore
	userID   string
	registry *prometheus.Registry
	pingers  map[string]pinger
}

func (s *service) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/toasts", s.handleToasts)
		r.Post("/toasts/{id}/dismiss", s.handleDismiss)
		r.Post("/toasts/{id}/accept", s.handleAccept)

		r.Get("/notifications", s.handleNotifications)
		r.Get("/notifications/unread-count", s.handleUnreadCount)
		r.Post("/notifications/{id}/read", s.handleMarkRead)
		r.Post("/notifications/read-all", s.handleMarkAllRead)

		r.Get("/sources", s.handleSources)

		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handlePutPreferences)
	})

	return r
}

func (s *service) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{}
	for name, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	s.writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
}

func (s *service) handleToasts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"toasts":   s.session.VisibleToasts(),
		"overflow": s.session.OverflowCount(),
	})
}

func (s *service) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.session.Dismiss(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *service) handleAccept(w http.ResponseWriter, r *http.Request) {
	action, err := s.session.AcceptOffer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"action": action})
}

func (s *service) handleNotifications(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"groups": s.session.GroupedList()})
}

func (s *service) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"unread": s.session.UnreadCount()})
}

func (s *service) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	changed := s.session.MarkAsRead(r.Context(), chi.URLParam(r, "id"))
	s.writeJSON(w, http.StatusOK, map[string]any{"changed": changed, "unread": s.session.UnreadCount()})
}

func (s *service) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	changed := s.session.MarkAllAsRead(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{"changed": changed, "unread": s.session.UnreadCount()})
}

func (s *service) handleSources(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"sources": s.session.SourceHealth()})
}

func (s *service) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.Preferences())
}

func (s *service) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs preferences.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		s.writeError(w, r, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding preferences"))
		return
	}
	if s.prefs != nil {
		if err := s.prefs.Save(r.Context(), s.userID, prefs); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.session.SetPreferences(prefs)
	s.writeJSON(w, http.StatusOK, prefs)
}

func (s *service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logg.Error(context.Background(), "encoding response", err)
	}
}

func (s *service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := pkgerrors.CodeInternal
	if coded := pkgerrors.As(err); coded != nil {
		code = coded.Code()
		switch code {
		case pkgerrors.CodeValidation:
			status = http.StatusBadRequest
		case pkgerrors.CodeNotFound:
			status = http.StatusNotFound
		case pkgerrors.CodeDuplicate, pkgerrors.CodeStateConflict:
			status = http.StatusConflict
		case pkgerrors.CodeExpired:
			status = http.StatusGone
		case pkgerrors.CodeDependency:
			status = http.StatusServiceUnavailable
		}
	}
	if status >= http.StatusInternalServerError {
		s.logg.Error(r.Context(), "request failed", err)
	}
	s.writeJSON(w, status, map[string]any{"error": err.Error(), "code": string(code)})
}
