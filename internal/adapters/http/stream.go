package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kirillkom/extraction-tracker/internal/core/domain"
)

// streamSnapshots re-broadcasts tracker snapshots as an SSE stream so
// browser surfaces can mirror the shared state without polling. Delivery is
// last-snapshot-wins: if the client lags, intermediate snapshots are
// replaced, never queued.
func (rt *Router) streamSnapshots(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	updates := make(chan domain.Snapshot, 1)
	unsubscribe := rt.tracker.Subscribe(func(snap domain.Snapshot) {
		for {
			select {
			case updates <- snap:
				return
			default:
				// Drop the stale pending snapshot and retry with the
				// newest one.
				select {
				case <-updates:
				default:
				}
			}
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates:
			payload, err := json.Marshal(snap)
			if err != nil {
				rt.log.Error("marshal snapshot", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
