package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/regiond/internal/application"
	"github.com/jobrunner/regiond/internal/domain"
)

// progressJSON is the wire form of download counters.
type progressJSON struct {
	CompletedResources int64   `json:"completedResources"`
	RequiredResources  int64   `json:"requiredResources"`
	CompletedBytes     int64   `json:"completedBytes"`
	Fraction           float64 `json:"fraction"`
}

func toProgressJSON(p domain.DownloadProgress) progressJSON {
	return progressJSON{
		CompletedResources: p.CompletedResources,
		RequiredResources:  p.RequiredResources,
		CompletedBytes:     p.CompletedBytes,
		Fraction:           p.Fraction(),
	}
}

// eventJSON is the wire form of a download event.
type eventJSON struct {
	Kind     domain.EventKind `json:"kind"`
	Progress progressJSON     `json:"progress"`
	Message  string           `json:"message,omitempty"`
	At       time.Time        `json:"at"`
}

func toEventJSON(ev domain.DownloadEvent) eventJSON {
	return eventJSON{
		Kind:     ev.Kind,
		Progress: toProgressJSON(ev.Progress),
		Message:  ev.Message,
		At:       ev.At.UTC(),
	}
}

// handleStartDownload registers and starts a region download.
func (s *Server) handleStartDownload(w http.ResponseWriter, r *http.Request) {
	limit := s.config.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, domain.CodeDownloadRegion, "reading request body: "+err.Error())
		return
	}

	def, err := application.ParseDownloadRequest(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, domain.CodeDownloadRegion, err.Error())
		return
	}

	desc, err := s.regions.StartDownload(r.Context(), def)
	if err != nil {
		s.handleServiceError(w, r, domain.CodeDownloadRegion, err)
		return
	}

	data, err := application.MarshalDescriptor(*desc)
	if err != nil {
		s.handleServiceError(w, r, domain.CodeDownloadRegion, err)
		return
	}
	s.writeRawJSON(w, http.StatusCreated, data)
}

// handleListRegions returns all persisted regions.
func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.regions.ListRegions(r.Context())
	if err != nil {
		s.handleServiceError(w, r, domain.CodeRegionList, err)
		return
	}

	data, err := application.MarshalDescriptors(regions)
	if err != nil {
		s.handleServiceError(w, r, domain.CodeRegionList, err)
		return
	}
	s.writeRawJSON(w, http.StatusOK, data)
}

// handleGetRegion returns one region with its engine state.
func (s *Server) handleGetRegion(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRegionID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, domain.CodeRegionStatus, err.Error())
		return
	}

	status, err := s.regions.GetRegion(r.Context(), id)
	if err != nil {
		s.handleServiceError(w, r, domain.CodeRegionStatus, err)
		return
	}

	region, err := application.MarshalDescriptor(status.Descriptor)
	if err != nil {
		s.handleServiceError(w, r, domain.CodeRegionStatus, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"region":    json.RawMessage(region),
		"state":     status.State,
		"progress":  toProgressJSON(status.Progress),
		"createdAt": status.CreatedAt,
		"active":    status.Active,
		"finished":  status.State.IsTerminal(),
	})
}

// handleDeleteRegion removes a persisted region. Success carries a null body.
func (s *Server) handleDeleteRegion(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRegionID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, domain.CodeDeleteRegion, err.Error())
		return
	}

	if err := s.regions.DeleteRegion(r.Context(), id); err != nil {
		s.handleServiceError(w, r, domain.CodeDeleteRegion, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

// handleListDownloads returns the registered in-flight downloads.
func (s *Server) handleListDownloads(w http.ResponseWriter, r *http.Request) {
	snapshots := s.regions.ActiveDownloads()

	downloads := make([]map[string]interface{}, len(snapshots))
	for i, snap := range snapshots {
		region, err := application.MarshalDescriptor(snap.Region)
		if err != nil {
			s.handleServiceError(w, r, domain.CodeRegionList, &domain.ListError{Err: err})
			return
		}
		downloads[i] = map[string]interface{}{
			"id":        int64(snap.ID),
			"region":    json.RawMessage(region),
			"startedAt": snap.StartedAt.UTC(),
			"latest":    toEventJSON(snap.Latest),
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"downloads": downloads,
		"count":     len(downloads),
	})
}

// handleReleaseDownload drops the handle for an id. Unknown ids are a no-op.
func (s *Server) handleReleaseDownload(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRegionID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, domain.CodeReleaseHandle, err.Error())
		return
	}

	s.regions.ReleaseDownload(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":            boolToStatus(details.Healthy),
		"ready":             details.Ready,
		"active_downloads":  details.ActiveDownloads,
		"persisted_regions": details.PersistedRegions,
		"components":        details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "OpenAPIError", "Failed to load OpenAPI specification")
		return
	}
	s.writeRawJSON(w, http.StatusOK, spec)
}

// handleServiceError maps a service error to a status and writes it with the
// operation's error code.
func (s *Server) handleServiceError(w http.ResponseWriter, r *http.Request, code string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"code", code,
			"error", err,
			"request_id", requestID(r.Context()),
		)
	}
	s.writeError(w, status, code, err.Error())
}

// statusForError returns the HTTP status for a service error.
func statusForError(err error) int {
	var (
		encodingErr   *domain.EncodingError
		validationErr *domain.ValidationError
		engineErr     *domain.EngineError
		listErr       *domain.ListError
	)

	switch {
	case errors.As(err, &encodingErr), errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &engineErr), errors.As(err, &listErr):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeRawJSON writes an already encoded JSON body.
func (s *Server) writeRawJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"code":    code,
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
