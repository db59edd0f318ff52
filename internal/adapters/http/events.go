package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/regiond/internal/domain"
)

// keepAliveInterval is the pause after which a comment line is sent on an
// idle event stream.
const keepAliveInterval = 15 * time.Second

// handleDownloadEvents streams events of an in-flight download as
// server-sent events. The stream ends after the terminal event.
func (s *Server) handleDownloadEvents(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRegionID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, domain.CodeDownloadEvents, err.Error())
		return
	}

	events, cancel, err := s.regions.WatchDownload(id)
	if err != nil {
		s.handleServiceError(w, r, domain.CodeDownloadEvents, err)
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Debug("event stream not flushable", "id", id, "error", err)
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				s.logger.Debug("event stream closed", "id", id, "error", err)
				return
			}
			_ = rc.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

// writeEvent writes one server-sent event named after the event kind.
func writeEvent(w http.ResponseWriter, ev domain.DownloadEvent) error {
	data, err := json.Marshal(toEventJSON(ev))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}
