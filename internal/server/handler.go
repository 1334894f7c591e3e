package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/satyaki-up/issueboard/internal/hub"
	"github.com/satyaki-up/issueboard/internal/issues"
)

// UserHeader carries the caller's identity. Requests without it act as the
// configured default actor.
const UserHeader = "X-Board-User"

// IssueService is the part of issues.Service the handler drives.
type IssueService interface {
	Create(ctx context.Context, in issues.NewIssue, override bool) (*issues.CreateResult, error)
	UpdateStatus(ctx context.Context, id string, to issues.Status) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*issues.Issue, error)
	List(ctx context.Context, f issues.Filter) (issues.Snapshot, error)
}

// Feed hands out live snapshot subscriptions.
type Feed interface {
	Subscribe(fn func(issues.Snapshot)) (*hub.Subscription, error)
	Len() int
}

type Handler struct {
	service IssueService
	feed    Feed
	logger  *slog.Logger
	actor   string

	connsMu sync.Mutex
	conns   map[string]*websocket.Conn
}

type HandlerConfig struct {
	Service IssueService
	Feed    Feed
	Logger  *slog.Logger
	Actor   string
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: cfg.Service,
		feed:    cfg.Feed,
		logger:  logger,
		actor:   cfg.Actor,
		conns:   make(map[string]*websocket.Conn),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/issues", h.handleList)
	mux.HandleFunc("POST /api/issues", h.handleCreate)
	mux.HandleFunc("GET /api/issues/{id}", h.handleGet)
	mux.HandleFunc("PATCH /api/issues/{id}", h.handleUpdateStatus)
	mux.HandleFunc("DELETE /api/issues/{id}", h.handleDelete)
	mux.HandleFunc("GET /ws", h.handleWebSocket)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": h.feed.Len(),
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var f issues.Filter
	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		st, err := issues.ParseStatus(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		f.Status = &st
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "active must be a boolean"})
			return
		}
		f.ActiveOnly = active
	}
	f.AssignedTo = q.Get("assignee")

	snap, err := h.service.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	is, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, is)
}

type createRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	AssignedTo  string `json:"assigned_to"`
	Override    bool   `json:"override"`
}

type createResponse struct {
	ID    string        `json:"id"`
	Issue *issues.Issue `json:"issue"`
}

type confirmationResponse struct {
	NeedsConfirmation bool           `json:"needs_confirmation"`
	Similar           []issues.Issue `json:"similar"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	priority, err := issues.ParsePriority(req.Priority)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.Create(r.Context(), issues.NewIssue{
		Title:       req.Title,
		Description: req.Description,
		Priority:    priority,
		AssignedTo:  req.AssignedTo,
		CreatedBy:   h.identity(r),
	}, req.Override)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.NeedsConfirmation() {
		writeJSON(w, http.StatusConflict, confirmationResponse{NeedsConfirmation: true, Similar: res.Similar})
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{ID: res.ID, Issue: res.Issue})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	to, err := issues.ParseStatus(req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.service.UpdateStatus(r.Context(), r.PathValue("id"), to); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) identity(r *http.Request) string {
	if user := strings.TrimSpace(r.Header.Get(UserHeader)); user != "" {
		return user
	}
	return h.actor
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, issues.ErrWorkflowViolation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case errors.Is(err, issues.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, issues.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "store unavailable"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
