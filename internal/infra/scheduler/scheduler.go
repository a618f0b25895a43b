package scheduler

import (
	"context"
	"fmt"
	"time"

	"payment_scheduler/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TickRunner is the part of the ticker the cron jobs drive.
type TickRunner interface {
	RunTick(ctx context.Context) app.TickSummary
	RunConditionalTick(ctx context.Context) app.TickSummary
}

type PaymentScheduler struct {
	cronEngine          *cron.Cron
	ticker              TickRunner
	logger              logrus.FieldLogger
	cronSpecGeneral     string // e.g. "@every 60s"
	cronSpecConditional string // e.g. "@every 30s"
	tickTimeout         time.Duration
}

func NewPaymentScheduler(
	ticker TickRunner,
	logger logrus.FieldLogger,
	cronSpecGeneral string,
	cronSpecConditional string,
	tickTimeout time.Duration,
) *PaymentScheduler {
	return &PaymentScheduler{
		// A slow tick delays the next run of the same job instead of overlapping it.
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		ticker:              ticker,
		logger:              logger,
		cronSpecGeneral:     cronSpecGeneral,
		cronSpecConditional: cronSpecConditional,
		tickTimeout:         tickTimeout,
	}
}

// Start registers both tick jobs and starts the cron engine.
func (s *PaymentScheduler) Start() error {
	s.logger.Info("Starting payment scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cronSpecGeneral, s.runGeneralTick); err != nil {
		return fmt.Errorf("could not add general tick cron job %q: %w", s.cronSpecGeneral, err)
	}
	if _, err := s.cronEngine.AddFunc(s.cronSpecConditional, s.runConditionalTick); err != nil {
		return fmt.Errorf("could not add conditional tick cron job %q: %w", s.cronSpecConditional, err)
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"general_spec":     s.cronSpecGeneral,
		"conditional_spec": s.cronSpecConditional,
	}).Info("Payment scheduler started with jobs.")
	return nil
}

func (s *PaymentScheduler) runGeneralTick() {
	s.runTick(app.TickGeneral, s.ticker.RunTick)
}

func (s *PaymentScheduler) runConditionalTick() {
	s.runTick(app.TickConditional, s.ticker.RunConditionalTick)
}

func (s *PaymentScheduler) runTick(kind app.TickKind, run func(context.Context) app.TickSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), s.tickTimeout)
	defer cancel()

	summary := run(ctx)
	entry := s.logger.WithFields(logrus.Fields{
		"tick":      kind,
		"processed": summary.Processed,
		"duration":  summary.FinishedAt.Sub(summary.StartedAt).String(),
	})
	if summary.Error != "" {
		entry.WithField("error", summary.Error).Warn("Scheduled tick finished with an error")
		return
	}
	if summary.Processed > 0 {
		entry.Info("Scheduled tick finished")
		return
	}
	entry.Debug("Scheduled tick found nothing to do")
}

func (s *PaymentScheduler) Stop() {
	s.logger.Info("Stopping payment scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Payment scheduler gracefully stopped.")
}
