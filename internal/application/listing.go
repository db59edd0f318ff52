package application

import (
	"context"

	"github.com/jobrunner/regiond/internal/domain"
)

// ListRegions returns every persisted region whose context blob decodes.
// Records written by other producers are skipped.
func (s *RegionService) ListRegions(ctx context.Context) ([]domain.RegionDescriptor, error) {
	records, err := s.listRecords(ctx)
	if err != nil {
		s.logger.Error("failed to list engine records", "error", err)
		return nil, &domain.ListError{Err: &domain.EngineError{Operation: "list", Err: err}}
	}

	regions := make([]domain.RegionDescriptor, 0, len(records))
	for _, rec := range records {
		desc := Decode(rec.Context)
		if desc == nil {
			s.logger.Debug("skipping record without region context", "engine_key", rec.Key)
			continue
		}
		regions = append(regions, *desc)
	}

	return regions, nil
}

// GetRegion returns the persisted state of a region. Progress of an
// in-flight download is taken from its handle.
func (s *RegionService) GetRegion(ctx context.Context, id domain.RegionID) (*domain.RegionStatus, error) {
	records, err := s.listRecords(ctx)
	if err != nil {
		return nil, &domain.EngineError{Operation: "list", Err: err}
	}

	for _, rec := range records {
		desc := Decode(rec.Context)
		if desc == nil || desc.ID != id {
			continue
		}

		status := &domain.RegionStatus{
			Descriptor: *desc,
			State:      rec.State,
			Progress:   rec.Progress,
			CreatedAt:  rec.CreatedAt,
		}
		if handle, ok := s.registry.Lookup(id); ok {
			status.Active = true
			status.Progress = handle.Latest().Progress
		}
		return status, nil
	}

	return nil, &domain.RegionNotFoundError{ID: id}
}
