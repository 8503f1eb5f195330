package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
)

// CronScheduler runs jobs on standard five-field cron expressions.
// A panicking job is recovered and logged so later occurrences still fire.
type CronScheduler struct {
	cron    *cron.Cron
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewCronScheduler creates a scheduler evaluating expressions in loc
func NewCronScheduler(loc *time.Location) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{logger: observability.GetLogger()}
	ctx, cancel := context.WithCancel(context.Background())

	return &CronScheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			// Recover sits inside SkipIfStillRunning so a panicking job still frees its slot.
			cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
		),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

var _ providers.Scheduler = (*CronScheduler)(nil)

// Register adds job under name
func (s *CronScheduler) Register(name, spec string, job providers.Job) error {
	id, err := s.cron.AddFunc(spec, func() {
		job(s.baseCtx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s with %q: %w", name, spec, err)
	}

	next := s.cron.Entry(id).Schedule.Next(time.Now())
	observability.GetLogger().Info().
		Str("job", name).
		Str("schedule", spec).
		Time("next_run", next).
		Msg("scheduled job registered")
	return nil
}

// Start begins dispatching in the background
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop prevents new dispatches, cancels running jobs' context once ctx
// expires, and waits for them to return
func (s *CronScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// NextRun returns when the named expression would next fire after from
func NextRun(spec string, from time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
