package formsession

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"udyam/internal/formflow"
	"udyam/internal/platform/metrics"
	"udyam/internal/platform/middleware"
	dErrors "udyam/pkg/domain-errors"
	"udyam/pkg/platform/httputil"
	"udyam/pkg/platform/sentinel"
)

type sessionResponse struct {
	ID    uuid.UUID      `json:"id"`
	State formflow.State `json:"state"`
}

type resultResponse struct {
	OK                bool   `json:"ok"`
	Message           string `json:"message,omitempty"`
	AlreadyRegistered bool   `json:"already_registered,omitempty"`
	Stale             bool   `json:"stale,omitempty"`
}

type operationResponse struct {
	ID     uuid.UUID      `json:"id"`
	Result resultResponse `json:"result"`
	State  formflow.State `json:"state"`
}

type setFieldsRequest struct {
	Fields map[formflow.Field]string `json:"fields"`
}

// Handler serves the form session endpoints.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHandler(manager *Manager, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{manager: manager, logger: logger, metrics: metrics}
}

func (h *Handler) Register(r chi.Router) {
	sessions := chi.NewRouter()
	sessions.Use(middleware.Recovery(h.logger))
	sessions.Use(middleware.RequestID)
	sessions.Use(middleware.Logger(h.logger))
	sessions.Use(middleware.Timeout(30 * time.Second))
	sessions.Use(middleware.ContentTypeJSON)
	sessions.Use(middleware.LatencyMiddleware(h.metrics))
	sessions.Use(middleware.ClientMetadata)

	sessions.Post("/", h.handleCreate)
	sessions.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
		r.Put("/fields", h.handleSetFields)
		r.Post("/otp", h.operation((*formflow.Engine).RequestOTP))
		r.Post("/otp/verify", h.operation((*formflow.Engine).ValidateOTP))
		r.Post("/pan/verify", h.operation((*formflow.Engine).ValidatePAN))
		r.Post("/back", h.handleBack)
	})

	r.Mount("/api/form-sessions", sessions)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, engine, err := h.manager.Create(r.Context())
	if err != nil {
		if errors.Is(err, ErrTooManySessions) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "Too many active form sessions"))
			return
		}
		h.fail(w, r, "failed to create form session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sessionResponse{ID: id, State: engine.Snapshot()})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, engine, ok := h.lookup(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionResponse{ID: id, State: engine.Snapshot()})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.manager.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleSetFields applies every field in the body; unknown names reject the
// whole request before anything is applied.
func (h *Handler) handleSetFields(w http.ResponseWriter, r *http.Request) {
	id, engine, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req setFieldsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(req.Fields) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "fields are required"))
		return
	}
	for name := range req.Fields {
		if !name.Valid() {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "unknown field: "+name.String()))
			return
		}
	}
	for _, name := range formflow.Fields {
		if value, present := req.Fields[name]; present {
			engine.SetField(name, value)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, sessionResponse{ID: id, State: engine.Snapshot()})
}

func (h *Handler) operation(op func(*formflow.Engine, context.Context) formflow.Result) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, engine, ok := h.lookup(w, r)
		if !ok {
			return
		}
		res := op(engine, r.Context())
		httputil.WriteJSON(w, http.StatusOK, operationResponse{
			ID: id,
			Result: resultResponse{
				OK:                res.OK,
				Message:           res.Message,
				AlreadyRegistered: res.AlreadyRegistered,
				Stale:             res.Stale,
			},
			State: engine.Snapshot(),
		})
	}
}

func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	id, engine, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := engine.Back(); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "step transition not allowed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionResponse{ID: id, State: engine.Snapshot()})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (uuid.UUID, *formflow.Engine, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return uuid.Nil, nil, false
	}
	engine, err := h.manager.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "form session not found"))
			return uuid.Nil, nil, false
		}
		h.fail(w, r, "failed to load form session", err)
		return uuid.Nil, nil, false
	}
	return id, engine, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg,
		"request_id", middleware.GetRequestID(r.Context()),
		"error", err,
	)
	httputil.WriteError(w, err)
}
