// Package api exposes the HTTP intake for workout completions.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"example.com/progression/internal/auth"
	"example.com/progression/internal/domain"
)

// Handler routes HTTP requests to the domain services. The acting user is
// always the token subject.
type Handler struct {
	processor *domain.Processor
	sessions  *domain.Sessions
	profiles  *domain.Profiles
	goals     *domain.Goals
	logger    logrus.FieldLogger
	now       func() time.Time
}

type Option func(*Handler)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(processor *domain.Processor, sessions *domain.Sessions, profiles *domain.Profiles, goals *domain.Goals, opts ...Option) *Handler {
	h := &Handler{
		processor: processor,
		sessions:  sessions,
		profiles:  profiles,
		goals:     goals,
		logger:    logrus.StandardLogger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/workouts/complete", h.completeWorkout)
	mux.HandleFunc("/v1/workouts/start", h.startWorkout)
	mux.HandleFunc("/v1/workouts/", h.workoutByID)
	mux.HandleFunc("/v1/profile", h.profile)
	mux.HandleFunc("/v1/goals", h.goalsRoute)
	mux.HandleFunc("/healthz", healthz)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) completeWorkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	var req CompleteWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	result, err := h.processor.ProcessWorkoutCompletion(r.Context(), req.toDomain(claims.Subject))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompletionResponse(result))
}

func (h *Handler) startWorkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	var req StartWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	session, err := h.sessions.StartWorkout(r.Context(), claims.Subject, req.StartedAt)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionView(*session))
}

// workoutByID serves /v1/workouts/{id}/cancel.
func (h *Handler) workoutByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/workouts/")
	id, action, found := strings.Cut(rest, "/")
	if !found || id == "" || action != "cancel" {
		writeError(w, http.StatusNotFound, "not_found", "unknown route")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := authorize(w, r, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	if err := h.sessions.CancelWorkout(r.Context(), claims.Subject, id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		claims, ok := authorize(w, r, auth.ScopeWorkoutsWrite)
		if !ok {
			return
		}
		user, created, err := h.profiles.Register(r.Context(), claims.Subject, h.now())
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, toProgressionView(*user))
	case http.MethodGet:
		claims, ok := authorize(w, r, auth.ScopeWorkoutsRead, auth.ScopeWorkoutsWrite)
		if !ok {
			return
		}
		profile, err := h.profiles.Get(r.Context(), claims.Subject)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toProfileResponse(profile))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) goalsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		claims, ok := authorize(w, r, auth.ScopeWorkoutsWrite)
		if !ok {
			return
		}
		var req CreateGoalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		goal, err := h.goals.Create(r.Context(), claims.Subject, req.toDomain(), h.now())
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toGoalView(*goal))
	case http.MethodGet:
		claims, ok := authorize(w, r, auth.ScopeWorkoutsRead, auth.ScopeWorkoutsWrite)
		if !ok {
			return
		}
		activeOnly := true
		if raw := r.URL.Query().Get("active_only"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "active_only must be a boolean")
				return
			}
			activeOnly = parsed
		}
		goals, err := h.goals.List(r.Context(), claims.Subject, activeOnly, h.now())
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		views := make([]GoalView, 0, len(goals))
		for _, g := range goals {
			views = append(views, toGoalView(g))
		}
		writeJSON(w, http.StatusOK, GoalListResponse{Goals: views})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// authorize requires claims carrying any one of scopes.
func authorize(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok || claims.Subject == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyWorkout),
		errors.Is(err, domain.ErrInvalidTimeRange),
		errors.Is(err, domain.ErrInvalidSetMagnitude),
		errors.Is(err, domain.ErrInvalidGoal):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrSessionAlreadyCompleted),
		errors.Is(err, domain.ErrSessionNotActive):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		h.logger.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
