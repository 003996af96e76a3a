// Package web implements the admin HTTP API for the simulator.
//
// The API exposes the live session registry and message queue as JSON and
// accepts mobile-originated injections. It carries no authentication; the
// simulator is a test tool meant to run on trusted networks.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dantte-lp/smppsim/internal/smpp"
)

// requestTimeout bounds every admin API request.
const requestTimeout = 30 * time.Second

// -------------------------------------------------------------------------
// Handler — Admin API over Registry, Queue, and MO Service
// -------------------------------------------------------------------------

// Handler serves the admin API from live simulator state.
type Handler struct {
	registry *smpp.Registry
	queue    *smpp.MessageQueue
	mo       *smpp.MoService
	logger   *slog.Logger
}

// NewHandler creates a Handler over the simulator's registry, queue, and
// MO service.
func NewHandler(registry *smpp.Registry, queue *smpp.MessageQueue, mo *smpp.MoService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		queue:    queue,
		mo:       mo,
		logger:   logger.With(slog.String("component", "web")),
	}
}

// Router builds the chi router with the middleware stack and all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(recoverer(h.logger))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.stats)
		r.Get("/sessions", h.sessions)
		r.Get("/messages", h.messages)
		r.Post("/inject-mo", h.injectMo)
	})

	return r
}

// -------------------------------------------------------------------------
// Response Shapes
// -------------------------------------------------------------------------

// MessageView is the JSON form of a queued message.
type MessageView struct {
	MessageID  string    `json:"message_id"`
	SourceAddr string    `json:"source_addr"`
	DestAddr   string    `json:"dest_addr"`
	Message    string    `json:"message"`
	DataCoding byte      `json:"data_coding"`
	SessionID  string    `json:"session_id"`
	Submitted  time.Time `json:"submitted"`
}

// StatsResponse aggregates the simulator state for a single dashboard poll.
type StatsResponse struct {
	SessionCount   int                    `json:"session_count"`
	MessageCount   int                    `json:"message_count"`
	PendingDRCount int                    `json:"pending_dr_count"`
	Sessions       []smpp.SessionSnapshot `json:"sessions"`
	Messages       []MessageView          `json:"messages"`
}

// InjectRequest is the body of POST /api/inject-mo.
type InjectRequest struct {
	Source  string `json:"source"`
	Dest    string `json:"dest"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// -------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		SessionCount:   h.registry.Len(),
		MessageCount:   h.queue.RecentCount(),
		PendingDRCount: h.queue.PendingCount(),
		Sessions:       sortedSessions(h.registry.Snapshot()),
		Messages:       messageViews(h.queue.RecentSnapshot()),
	}
	h.writeJSON(r, w, http.StatusOK, resp)
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(r, w, http.StatusOK, sortedSessions(h.registry.Snapshot()))
}

func (h *Handler) messages(w http.ResponseWriter, r *http.Request) {
	pending, _ := strconv.ParseBool(r.URL.Query().Get("pending"))

	snapshot := h.queue.RecentSnapshot()
	if pending {
		snapshot = h.queue.PendingSnapshot()
	}
	h.writeJSON(r, w, http.StatusOK, messageViews(snapshot))
}

func (h *Handler) injectMo(w http.ResponseWriter, r *http.Request) {
	req, err := decodeInject(r)
	if err != nil {
		h.writeJSON(r, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	err = h.mo.Inject(smpp.MoMessage{
		SourceAddr:   req.Source,
		DestAddr:     req.Dest,
		ShortMessage: req.Message,
	})
	if err != nil {
		if errors.Is(err, smpp.ErrInjectFull) {
			h.writeJSON(r, w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
		h.writeJSON(r, w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	h.logger.InfoContext(r.Context(), "mo message queued",
		slog.String("source", req.Source),
		slog.String("dest", req.Dest),
	)
	h.writeJSON(r, w, http.StatusAccepted, statusResponse{Status: "queued"})
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

var (
	errMissingSource = errors.New("missing required field: source")
	errMissingDest   = errors.New("missing required field: dest")
)

// decodeInject accepts either a JSON document or an HTML form body.
func decodeInject(r *http.Request) (InjectRequest, error) {
	var req InjectRequest

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "application/x-www-form-urlencoded" || contentType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Source = r.PostFormValue("source")
		req.Dest = r.PostFormValue("dest")
		req.Message = r.PostFormValue("message")
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
	}

	if strings.TrimSpace(req.Source) == "" {
		return req, errMissingSource
	}
	if strings.TrimSpace(req.Dest) == "" {
		return req, errMissingDest
	}
	return req, nil
}

func (h *Handler) writeJSON(r *http.Request, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.DebugContext(r.Context(), "response encode failed",
			slog.String("error", err.Error()))
	}
}

// sortedSessions orders registry snapshots by system_id, then session id,
// so repeated polls return stable output.
func sortedSessions(sessions []smpp.SessionSnapshot) []smpp.SessionSnapshot {
	slices.SortFunc(sessions, func(a, b smpp.SessionSnapshot) int {
		if c := strings.Compare(a.SystemID, b.SystemID); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return sessions
}

// messageViews converts queue snapshots to their JSON form, ordered by
// message id. Message ids are fixed-width hex, so the string order matches
// the assignment order.
func messageViews(msgs []smpp.QueuedMessage) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, MessageView{
			MessageID:  m.MessageID,
			SourceAddr: m.SourceAddr,
			DestAddr:   m.DestAddr,
			Message:    string(m.Message),
			DataCoding: m.DataCoding,
			SessionID:  m.SessionID,
			Submitted:  m.Submitted,
		})
	}
	slices.SortFunc(views, func(a, b MessageView) int {
		return strings.Compare(a.MessageID, b.MessageID)
	})
	return views
}
