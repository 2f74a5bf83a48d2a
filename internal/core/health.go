package core

import (
	"fmt"
	"time"

	"github.com/themadorg/mailaggregator/entity"
)

// Health reports the most recent poll activity across every account,
// backing GET /health.
func (c *Core) Health() (*entity.HealthResponse, error) {
	statuses, err := c.pollCache.All()
	if err != nil {
		return nil, fmt.Errorf("list poll statuses: %w", err)
	}

	var started, finished *time.Time
	for _, s := range statuses {
		if s.LastStartedAt != nil && (started == nil || s.LastStartedAt.After(*started)) {
			started = s.LastStartedAt
		}
		if s.LastFinishedAt != nil && (finished == nil || s.LastFinishedAt.After(*finished)) {
			finished = s.LastFinishedAt
		}
	}

	return &entity.HealthResponse{Poller: entity.PollerHealth{
		LastStartedAt:  started,
		LastFinishedAt: finished,
	}}, nil
}
