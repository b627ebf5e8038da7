// Package server exposes the polling engine over HTTP: the websocket
// endpoint participants connect to, liveness lookups and admin teardown.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Guizzs26/live_polling_system/internal/auth"
	"github.com/Guizzs26/live_polling_system/internal/model"
	"github.com/Guizzs26/live_polling_system/internal/session"
	"github.com/Guizzs26/live_polling_system/internal/store"
)

// maxLiveLookup caps the codes accepted by one POST /groups/live.
const maxLiveLookup = 500

type Options struct {
	Manager  *session.Manager
	Groups   store.GroupStore
	Verifier *auth.Verifier
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	// OriginPatterns is passed to the websocket upgrade. Empty means same
	// origin only.
	OriginPatterns []string
}

type API struct {
	mgr      *session.Manager
	groups   store.GroupStore
	verifier *auth.Verifier
	logger   *slog.Logger
	origins  []string
}

func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	a := &API{
		mgr:      opts.Manager,
		groups:   opts.Groups,
		verifier: opts.Verifier,
		logger:   opts.Logger,
		origins:  opts.OriginPatterns,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	// hijacked connections outlive the request, so they skip request logging
	r.Get("/ws/groups/{code}", a.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(withLogging(a.logger))
		r.Get("/groups/{code}/live", a.IsLiveHandler)
		r.Post("/groups/live", a.LiveGroupsHandler)
		r.Post("/groups/{code}/end", a.EndGroupHandler)
	})

	return r
}

func (a *API) IsLiveHandler(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	writeJSON(w, http.StatusOK, map[string]any{
		"code": code,
		"live": a.mgr.IsLive(r.Context(), code),
	})
}

func (a *API) LiveGroupsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Codes []string `json:"codes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Codes) > maxLiveLookup {
		writeError(w, http.StatusBadRequest, "too many codes, max "+strconv.Itoa(maxLiveLookup))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"live": a.mgr.LiveGroups(r.Context(), req.Codes),
	})
}

func (a *API) EndGroupHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	participantID, err := a.verifier.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	persist := true
	if s := r.URL.Query().Get("persist"); s != "" {
		persist, err = strconv.ParseBool(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "persist must be true or false")
			return
		}
	}

	group, ok := a.lookupGroup(r.Context(), w, chi.URLParam(r, "code"))
	if !ok {
		return
	}

	role, err := a.groups.MemberRole(r.Context(), group.ID, participantID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		a.logger.Error("member lookup failed", "group", group.Code, "error", err)
		writeError(w, http.StatusInternalServerError, "member lookup failed")
		return
	}
	if role != model.RoleAdmin {
		a.logger.Warn("non-admin tried to end group", "group", group.Code, "participant", participantID)
		writeError(w, http.StatusForbidden, "only admins can end the group")
		return
	}

	if err := a.mgr.EndGroup(r.Context(), group, persist); err != nil {
		var perr *session.PersistError
		if errors.As(err, &perr) {
			a.logger.Error("could not end group", "group", group.Code, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{
				Error:     http.StatusText(http.StatusServiceUnavailable),
				Message:   "could not save the group, try again",
				Retryable: true,
			})
			return
		}
		a.logger.Error("could not end group", "group", group.Code, "error", err)
		writeError(w, http.StatusInternalServerError, "could not end group")
		return
	}

	a.logger.Info("group ended", "group", group.Code, "persist", persist, "by", participantID)
	w.WriteHeader(http.StatusNoContent)
}

// lookupGroup writes the error response itself when it returns false.
func (a *API) lookupGroup(ctx context.Context, w http.ResponseWriter, code string) (model.Group, bool) {
	group, err := a.groups.FindGroup(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "group not found")
		return model.Group{}, false
	}
	if err != nil {
		a.logger.Error("group lookup failed", "group", code, "error", err)
		writeError(w, http.StatusInternalServerError, "group lookup failed")
		return model.Group{}, false
	}
	return group, true
}
