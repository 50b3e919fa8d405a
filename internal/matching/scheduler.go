package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	svcErr "github.com/oggyb/event-network/internal/errors"
)

// EventLister lists the events that have registrants.
type EventLister interface {
	ListEventIDs(ctx context.Context) ([]uint64, error)
}

// Scheduler periodically recomputes every event with registrations.
type Scheduler struct {
	job      *Job
	events   EventLister
	interval time.Duration
	log      *slog.Logger
}

func NewScheduler(job *Job, events EventLister, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		job:      job,
		events:   events,
		interval: interval,
		log:      log.With("component", "match_scheduler"),
	}
}

// RunOnce recomputes all events sequentially. A failing event does not stop
// the others; all failures are returned joined. Events whose recompute is
// already running elsewhere are skipped silently.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ids, err := s.events.ListEventIDs(ctx)
	if err != nil {
		return svcErr.Transient("matching.schedule", err)
	}

	var errs []error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.job.Run(ctx, id); err != nil {
			if svcErr.Is(err, svcErr.KindConflict) {
				continue
			}
			errs = append(errs, fmt.Errorf("event %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Start blocks, running RunOnce every interval until ctx is done.
// A non-positive interval disables scheduling and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("scheduled recompute disabled")
		return
	}

	s.log.Info("scheduled recompute enabled", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("scheduled recompute had failures", "err", err)
			}
		}
	}
}
