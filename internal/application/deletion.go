package application

import (
	"context"
	"time"

	"github.com/jobrunner/regiond/internal/domain"
)

// DeleteRegion removes the first persisted region carrying id and releases
// its download handle, if any.
func (s *RegionService) DeleteRegion(ctx context.Context, id domain.RegionID) error {
	records, err := s.listRecords(ctx)
	if err != nil {
		return &domain.EngineError{Operation: "list", Err: err}
	}

	for _, rec := range records {
		desc := Decode(rec.Context)
		if desc == nil || desc.ID != id {
			continue
		}

		start := time.Now()
		err := s.engine.RemoveRecord(ctx, rec)
		s.metrics.ObserveEngineDuration("remove", time.Since(start))
		s.metrics.IncEngineOperations("remove", err == nil)
		if err != nil {
			s.logger.Error("failed to remove region", "id", id, "engine_key", rec.Key, "error", err)
			return &domain.EngineError{Operation: "remove", Err: err}
		}

		s.registry.Release(id)
		s.logger.Info("region deleted", "id", id, "engine_key", rec.Key)
		return nil
	}

	return &domain.RegionNotFoundError{ID: id}
}
