package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/i474232898/climate-timeseries/internal/climate"
)

// Ensurer makes sure a retrieval's file exists; *climate.Service in production.
type Ensurer interface {
	Ensure(ctx context.Context, p climate.Params) (climate.Record, error)
}

// Scheduler periodically ensures the configured retrievals are on disk.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Ensurer
	jobs      []climate.Params
	interval  time.Duration
	timeout   time.Duration
	log       zerolog.Logger
}

// New creates a new Scheduler. A timeout of 0 lets each retrieval run
// until it finishes.
func New(jobs []climate.Params, interval, timeout time.Duration, service Ensurer, log zerolog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		service:   service,
		jobs:      jobs,
		interval:  interval,
		timeout:   timeout,
		log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.jobs) == 0 {
		s.log.Info().Msg("no jobs configured; nothing to schedule")
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	if _, err := s.scheduler.Every(interval).Do(s.RunOnce); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce ensures every job concurrently and waits for all of them.
func (s *Scheduler) RunOnce() {
	s.log.Info().Int("jobs", len(s.jobs)).Msg("running retrieval jobs")

	var wg sync.WaitGroup
	for _, p := range s.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx := context.Background()
			if s.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, s.timeout)
				defer cancel()
			}

			rec, err := s.service.Ensure(ctx, p)
			if err != nil {
				s.log.Error().Err(err).Str("key", p.Key()).Msg("retrieval job failed")
				return
			}
			s.log.Info().Str("file", rec.Path).Str("status", string(rec.Status)).Msg("retrieval job done")
		}()
	}
	wg.Wait()
	s.log.Info().Msg("completed retrieval jobs")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
