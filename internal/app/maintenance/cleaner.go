package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/verygoodsaas/backoffice/internal/services"
	"github.com/verygoodsaas/backoffice/pkg/logger"
)

// Cleaner runs the periodic maintenance jobs: pruning used and expired
// password reset tokens and enforcing the activity log retention window.
type Cleaner struct {
	accounts *services.AccountService
	activity *services.ActivityService

	schedule      string
	retentionDays int

	cron *cron.Cron
	log  *zap.Logger
}

func NewCleaner(accounts *services.AccountService, activity *services.ActivityService, schedule string, retentionDays int) (*Cleaner, error) {
	if accounts == nil || activity == nil {
		return nil, errors.New("cleaner requires account and activity services")
	}
	if schedule == "" {
		schedule = "@hourly"
	}

	return &Cleaner{
		accounts:      accounts,
		activity:      activity,
		schedule:      schedule,
		retentionDays: retentionDays,
		log:           logger.WithModule("maintenance"),
	}, nil
}

// Start registers the cron job and begins the schedule.
func (c *Cleaner) Start() error {
	runner := cron.New()
	if _, err := runner.AddFunc(c.schedule, func() { c.RunOnce(context.Background()) }); err != nil {
		return err
	}
	runner.Start()
	c.cron = runner

	c.log.Info("maintenance schedule started", zap.String("schedule", c.schedule))
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (c *Cleaner) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
}

// RunOnce executes every maintenance job and reports the combined result.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	var errs error

	tokens, err := c.accounts.PruneExpiredResetTokens(ctx)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else if tokens > 0 {
		c.log.Info("pruned password reset tokens", zap.Int64("removed", tokens))
	}

	if c.retentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -c.retentionDays)
		entries, err := c.activity.PruneOlderThan(ctx, cutoff)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else if entries > 0 {
			c.log.Info("pruned activity log entries",
				zap.Int64("removed", entries),
				zap.Time("cutoff", cutoff))
		}
	}

	if errs != nil {
		c.log.Error("maintenance run finished with errors", zap.Error(errs))
	}
	return errs
}
