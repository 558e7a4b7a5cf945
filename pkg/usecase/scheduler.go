package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orgsync/pkg/domain/model"
	"github.com/secmon-lab/orgsync/pkg/domain/types"
)

// DefaultPollInterval is how often the scheduler checks the clock
const DefaultPollInterval = time.Minute

// Starter launches a run unless one is alive
type Starter interface {
	Start(ctx context.Context, trigger types.Trigger) bool
}

// Scheduler fires a run once a day at a wall clock time
type Scheduler struct {
	gate   Starter
	hour   int
	minute int
	loc    *time.Location
	poll   time.Duration
	now    func() time.Time

	lastFired string
}

// SchedulerOption configures Scheduler
type SchedulerOption func(*Scheduler)

// WithPollInterval changes how often the clock is checked
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler firing at daily ("HH:MM") in loc.
// A nil loc means UTC.
func NewScheduler(gate Starter, daily string, loc *time.Location, opts ...SchedulerOption) (*Scheduler, error) {
	at, err := time.Parse("15:04", daily)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid daily schedule, expected HH:MM",
			goerr.V("schedule", daily),
			goerr.T(model.ErrTagConfig))
	}
	if loc == nil {
		loc = time.UTC
	}

	s := &Scheduler{
		gate:   gate,
		hour:   at.Hour(),
		minute: at.Minute(),
		loc:    loc,
		poll:   DefaultPollInterval,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run polls the clock until ctx is canceled
func (s *Scheduler) Run(ctx context.Context) error {
	logger := ctxlog.From(ctx)
	logger.Info("Scheduler started",
		"hour", s.hour,
		"minute", s.minute,
		"location", s.loc.String(),
		"poll", s.poll,
	)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// tick starts a run when the scheduled minute is reached, at most once per day
func (s *Scheduler) tick(ctx context.Context) bool {
	now := s.now().In(s.loc)
	if now.Hour() != s.hour || now.Minute() != s.minute {
		return false
	}

	today := now.Format(time.DateOnly)
	if s.lastFired == today {
		return false
	}
	s.lastFired = today

	started := s.gate.Start(ctx, types.TriggerSchedule)
	ctxlog.From(ctx).Info("Scheduled sync triggered", "started", started, "date", today)
	return started
}
