// Package api exposes the scheme bridge over HTTP so rendered pages can be
// previewed in an ordinary browser. It stands in for a web view's custom
// scheme handler.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"

	"github.com/pitr/gemini-ios-sub000/internal/bridge"
	"github.com/pitr/gemini-ios-sub000/internal/identity"
	"github.com/pitr/gemini-ios-sub000/internal/log"
	"github.com/pitr/gemini-ios-sub000/internal/pubsub"
)

// Loader is the subset of bridge.Bridge used by the handler.
type Loader interface {
	Start(ctx context.Context, rawURL string) (<-chan bridge.Response, error)
	Stop()
	Subscribe(ctx context.Context) <-chan pubsub.Event[bridge.LoadEvent]
}

// IdentityLister lists stored identities.
type IdentityLister interface {
	List(host string) ([]*identity.Identity, error)
}

// Handler provides HTTP endpoints for the bridge.
type Handler struct {
	loader     Loader
	identities IdentityLister
	heartbeat  time.Duration
}

// HandlerConfig configures the API handler.
type HandlerConfig struct {
	// Loader runs loads (required).
	Loader Loader
	// Identities backs GET /identities (optional).
	Identities IdentityLister
}

// NewHandler creates a handler for loader.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		loader:     cfg.Loader,
		identities: cfg.Identities,
		heartbeat:  30 * time.Second,
	}
}

// Routes returns an http.Handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/load", h.Load).Methods(http.MethodGet)
	r.HandleFunc("/stop", h.Stop).Methods(http.MethodPost)
	r.HandleFunc("/events", h.StreamEvents).Methods(http.MethodGet)
	r.HandleFunc("/identities", h.ListIdentities).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	return r
}

// ErrorResponse is the response body for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// IdentityResponse describes one stored identity. The certificate itself is
// never exposed.
type IdentityResponse struct {
	ID          int64      `json:"id"`
	GUID        string     `json:"guid"`
	Host        string     `json:"host"`
	Name        string     `json:"name"`
	Active      bool       `json:"active"`
	Fingerprint string     `json:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// ListIdentitiesResponse is the response body for GET /identities.
type ListIdentitiesResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
}

// HealthResponse is the response body for the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// Load fetches the url query parameter and writes the bridge output with
// its content type.
// GET /load?url=gemini://...
func (h *Handler) Load(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		h.writeError(w, http.StatusBadRequest, "missing_url", "url query parameter is required", "")
		return
	}

	ch, err := h.loader.Start(r.Context(), rawURL)
	if err != nil {
		if errors.Is(err, bridge.ErrClosed) {
			h.writeError(w, http.StatusServiceUnavailable, "closed", "Bridge is closed", "")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_url", "Invalid Gemini URL", err.Error())
		return
	}

	resp, ok := <-ch
	if !ok {
		if r.Context().Err() != nil {
			return
		}
		h.writeError(w, http.StatusConflict, "cancelled", "Load was stopped or superseded", "")
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("X-Gemini-Status", fmt.Sprintf("%d", int(resp.Status)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Body); err != nil {
		log.Warn(log.CatBridge, "writing preview response", "url", rawURL, "error", err)
	}
}

// Stop cancels the load in progress.
// POST /stop
func (h *Handler) Stop(w http.ResponseWriter, _ *http.Request) {
	h.loader.Stop()
	w.WriteHeader(http.StatusNoContent)
}

// ListIdentities lists identities, optionally filtered by ?host=.
// GET /identities
func (h *Handler) ListIdentities(w http.ResponseWriter, r *http.Request) {
	if h.identities == nil {
		h.writeError(w, http.StatusNotImplemented, "no_identities", "Identity store not configured", "")
		return
	}

	ids, err := h.identities.List(r.URL.Query().Get("host"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "list_failed", "Failed to list identities", err.Error())
		return
	}

	resp := ListIdentitiesResponse{Identities: make([]IdentityResponse, 0, len(ids)), Total: len(ids)}
	for _, id := range ids {
		resp.Identities = append(resp.Identities, IdentityResponse{
			ID:          id.ID,
			GUID:        id.GUID,
			Host:        id.Host,
			Name:        id.Name,
			Active:      id.Active,
			Fingerprint: id.Fingerprint,
			CreatedAt:   id.CreatedAt,
			LastUsedAt:  id.LastUsedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// StreamEvents streams bridge load events via SSE.
// GET /events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}

	ctx := r.Context()
	events := h.loader.Subscribe(ctx)

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}

			data, err := sonic.Marshal(eventToJSON(event))
			if err != nil {
				log.Error(log.CatBridge, "Failed to marshal event", "error", err)
				continue
			}

			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// Health reports that the server is up.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func eventToJSON(event pubsub.Event[bridge.LoadEvent]) map[string]any {
	result := map[string]any{
		"type":      string(event.Type),
		"url":       event.Payload.URL,
		"timestamp": event.Timestamp,
	}
	if event.Payload.Status != 0 {
		result["status"] = int(event.Payload.Status)
	}
	if event.Payload.MIME != "" {
		result["mime"] = event.Payload.MIME
		result["bytes"] = event.Payload.Bytes
	}
	if event.Payload.Err != nil {
		result["error"] = event.Payload.Err.Error()
	}
	return result
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatBridge, "Failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
