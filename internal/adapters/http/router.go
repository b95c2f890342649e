package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/extraction-tracker/internal/core/domain"
	"github.com/kirillkom/extraction-tracker/internal/core/ports"
)

// Router exposes the shared tracker to local UI surfaces: snapshot reads,
// an SSE re-broadcast of snapshots, and imperative start/abort.
type Router struct {
	tracker ports.ProgressTracker
	metrics http.Handler
	log     *slog.Logger
}

func NewRouter(tracker ports.ProgressTracker, metricsHandler http.Handler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		tracker: tracker,
		metrics: metricsHandler,
		log:     logger.With("component", "http"),
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)

	r.Get("/healthz", rt.healthz)
	r.Get("/api/progress", rt.getSnapshot)
	r.Get("/api/progress/stream", rt.streamSnapshots)
	r.Get("/api/progress/{resourceID}", rt.getProgress)
	r.Post("/api/process/{ownerID}/{resourceID}/start", rt.startProcessing)
	r.Post("/api/process/{ownerID}/{resourceID}/abort", rt.abortProcessing)

	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics)
	}
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) getSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.tracker.Snapshot())
}

func (rt *Router) getProgress(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "resourceID")
	entry, ok := rt.tracker.GetProgress(resourceID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": domain.ErrResourceNotTracked.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (rt *Router) startProcessing(w http.ResponseWriter, r *http.Request) {
	ref := domain.ResourceRef{
		OwnerID:    chi.URLParam(r, "ownerID"),
		ResourceID: chi.URLParam(r, "resourceID"),
	}

	var req struct {
		DisplayName string `json:"display_name"`
		Token       string `json:"token"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}
	ref.DisplayName = req.DisplayName
	ref.Token = req.Token

	started := rt.tracker.StartProcessing(r.Context(), ref)
	status := http.StatusAccepted
	if !started {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]bool{"started": started})
}

func (rt *Router) abortProcessing(w http.ResponseWriter, r *http.Request) {
	aborted := rt.tracker.AbortProcessing(
		r.Context(),
		chi.URLParam(r, "ownerID"),
		chi.URLParam(r, "resourceID"),
	)
	writeJSON(w, http.StatusAccepted, map[string]bool{"aborted": aborted})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("write json response", "error", err)
	}
}
