package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/stakevault/backend/internal/approval"
	"github.com/stakevault/backend/internal/logger"
	"github.com/stakevault/backend/internal/queue"
)

// Sweeper runs the periodic lifecycle transitions
type Sweeper interface {
	ActivatePendingRates(ctx context.Context, asOf time.Time) (int, error)
	CompleteMatured(ctx context.Context, asOf time.Time) (int, error)
}

// Scheduler runs the recurring jobs on a gocron scheduler
type Scheduler struct {
	cron     *gocron.Scheduler
	sweeper  Sweeper
	profits  *ProfitSummaryJob
	reportAt string
	now      func() time.Time
	log      *logger.Logger
}

// NewScheduler creates a scheduler in loc. reportAt is the "HH:MM" time of
// the daily profit summary.
func NewScheduler(sweeper Sweeper, profits *ProfitSummaryJob, loc *time.Location, reportAt string, log *logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if reportAt == "" {
		reportAt = "09:00"
	}
	cron := gocron.NewScheduler(loc)
	cron.SingletonModeAll()
	return &Scheduler{
		cron:     cron,
		sweeper:  sweeper,
		profits:  profits,
		reportAt: reportAt,
		now:      time.Now,
		log:      log.Component("scheduler"),
	}
}

// Start registers the recurring jobs and starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.Every(1).Hour().Do(func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule lifecycle sweep: %w", err)
	}
	if s.profits != nil {
		if _, err := s.cron.Every(1).Day().At(s.reportAt).Do(func() { s.Report(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule profit summary: %w", err)
		}
	}

	s.cron.StartAsync()
	s.log.Info().Str("report_at", s.reportAt).Msg("Scheduler started")
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info().Msg("Scheduler stopped")
}

// Sweep activates due rates before completing matured investments so a
// rate that switches on the last day is applied first
func (s *Scheduler) Sweep(ctx context.Context) {
	asOf := s.now()
	activated, err := s.sweeper.ActivatePendingRates(ctx, asOf)
	if err != nil {
		s.log.Error().Err(err).Msg("Rate activation sweep failed")
	}
	completed, err := s.sweeper.CompleteMatured(ctx, asOf)
	if err != nil {
		s.log.Error().Err(err).Msg("Maturity sweep failed")
	}
	s.log.Debug().Int("activated", activated).Int("completed", completed).Msg("Lifecycle sweep done")
}

// Report records the daily profit snapshots and queues summaries
func (s *Scheduler) Report(ctx context.Context) {
	if _, err := s.profits.Run(ctx, s.now()); err != nil {
		s.log.Error().Err(err).Msg("Profit summary failed")
	}
}

// RegisterHandlers wires the queue job handlers
func RegisterHandlers(p *queue.Processor, notifier approval.Notifier, sender TextSender) {
	p.Handle(queue.JobTypeNotifyApproval, approval.DeliveryHandler(notifier))
	p.Handle(queue.JobTypeProfitSummary, ProfitSummaryHandler(sender))
}
