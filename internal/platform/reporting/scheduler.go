package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSchedule runs the daily report at 23:30.
const DefaultSchedule = "30 23 * * *"

// TenantScope runs fn with a context bound to the tenant's schema.
// db.WithTenantConn satisfies it once the pool is bound.
type TenantScope func(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error

// SchedulerConfig configures the daily report trigger.
type SchedulerConfig struct {
	Spec     string
	Tenants  []string
	Location *time.Location
	// Timeout bounds one tenant's run. Zero means no limit.
	Timeout time.Duration
}

// Scheduler fires the daily report for every configured tenant.
type Scheduler struct {
	reporter *Reporter
	scope    TenantScope
	cfg      SchedulerConfig
	schedule cron.Schedule
	logger   zerolog.Logger
}

func NewScheduler(reporter *Reporter, scope TenantScope, cfg SchedulerConfig, logger zerolog.Logger) (*Scheduler, error) {
	if cfg.Spec == "" {
		cfg.Spec = DefaultSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	schedule, err := cron.ParseStandard(cfg.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse report schedule %q: %w", cfg.Spec, err)
	}
	if len(cfg.Tenants) == 0 {
		return nil, errors.New("at least one report tenant is required")
	}
	return &Scheduler{
		reporter: reporter,
		scope:    scope,
		cfg:      cfg,
		schedule: schedule,
		logger:   logger.With().Str("component", "report-scheduler").Logger(),
	}, nil
}

// Next returns the first trigger time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.cfg.Location))
}

// RunOnce runs the daily report for each tenant in turn. A failing tenant
// does not stop the others; all failures are returned joined.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, tenant := range s.cfg.Tenants {
		if err := s.runTenant(ctx, tenant); err != nil {
			s.logger.Error().Err(err).Str("tenant_id", tenant).Msg("daily report failed")
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) runTenant(ctx context.Context, tenant string) error {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	return s.scope(ctx, tenant, func(ctx context.Context) error {
		_, err := s.reporter.RunDailyReport(ctx)
		return err
	})
}

// Start registers the cron entry and blocks until ctx is cancelled, then
// waits for a running report to finish.
func (s *Scheduler) Start(ctx context.Context) {
	cl := cronLogger{s.logger}
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		_ = s.RunOnce(ctx)
	}))
	c.Start()
	s.logger.Info().
		Str("schedule", s.cfg.Spec).
		Strs("tenants", s.cfg.Tenants).
		Time("next_run", s.Next(time.Now())).
		Msg("report scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info().Msg("report scheduler stopped")
}

// cronLogger sends cron's own messages, such as skipped overlapping runs,
// to zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
