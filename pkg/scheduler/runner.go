package scheduler

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/IrishJohn1973/tenderned-scraper/pkg/extractor"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/feeder"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/metrics"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/redis"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/tracing"
)

const (
	lockExtract = "extract_organizations"
	lockFeed    = "feed_to_master"
)

// Runner serializes the batch operations behind distributed locks and drives
// the periodic feed loop. Every extraction and projection entry point goes
// through here; nothing else may call the extractor or feeder directly, or
// two overlapping runs could double-apply accumulating statistics.
type Runner struct {
	extractor *extractor.Service
	feeder    *feeder.Service
	locker    *redis.Locker
	logger    ectologger.Logger
	interval  time.Duration
	lockTTL   time.Duration
}

func NewRunner(
	extractorSvc *extractor.Service,
	feederSvc *feeder.Service,
	locker *redis.Locker,
	logger ectologger.Logger,
	interval time.Duration,
	lockTTL time.Duration,
) *Runner {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Runner{
		extractor: extractorSvc,
		feeder:    feederSvc,
		locker:    locker,
		logger:    logger,
		interval:  interval,
		lockTTL:   lockTTL,
	}
}

// ExtractOrganizations runs one organization extraction pass under the
// extraction lock.
func (r *Runner) ExtractOrganizations(ctx context.Context) (*models.ExtractResult, error) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Runner.ExtractOrganizations")
	defer span.End()

	var result *models.ExtractResult
	err := r.locker.WithLock(ctx, lockExtract, r.lockTTL, func() error {
		var err error
		result, err = r.extractor.Extract(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			metrics.LockContentionTotal.WithLabelValues(lockExtract).Inc()
		}
		return nil, err
	}

	metrics.ExtractedOrganizationsTotal.Add(float64(result.Organizations))
	metrics.ExtractedAwardsTotal.Add(float64(result.AwardsConsumed))
	return result, nil
}

// MergeTenders runs one tender projection pass under the feed lock.
func (r *Runner) MergeTenders(ctx context.Context) (*models.MergeOutcome, error) {
	return r.mergeOne(ctx, "tenders", r.feeder.MergeTenders)
}

// MergeAwards runs one award projection pass under the feed lock.
func (r *Runner) MergeAwards(ctx context.Context) (*models.MergeOutcome, error) {
	return r.mergeOne(ctx, "awards", r.feeder.MergeAwards)
}

// MergeOrganizations runs one organization projection pass under the feed lock.
func (r *Runner) MergeOrganizations(ctx context.Context) (*models.MergeOutcome, error) {
	return r.mergeOne(ctx, "organizations", r.feeder.MergeOrganizations)
}

func (r *Runner) mergeOne(ctx context.Context, kind string, merge func(context.Context) (*models.MergeOutcome, error)) (*models.MergeOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Runner.mergeOne")
	defer span.End()

	var outcome *models.MergeOutcome
	err := r.locker.WithLock(ctx, lockFeed, r.lockTTL, func() error {
		var err error
		outcome, err = merge(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			metrics.LockContentionTotal.WithLabelValues(lockFeed).Inc()
		}
		return nil, err
	}

	metrics.FedRowsTotal.WithLabelValues(kind).Add(float64(outcome.Fed))
	metrics.RejectedRowsTotal.WithLabelValues(kind).Add(float64(len(outcome.Rejected)))
	return outcome, nil
}

// FeedAll runs extraction followed by the full projection sequence under one
// feed lock. This is the entry point the periodic loop and the feed endpoint
// share.
func (r *Runner) FeedAll(ctx context.Context) (*models.FeedResult, error) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Runner.FeedAll")
	defer span.End()

	start := time.Now()
	var result *models.FeedResult
	err := r.locker.WithLock(ctx, lockFeed, r.lockTTL, func() error {
		extractLock, err := r.locker.Acquire(ctx, lockExtract, r.lockTTL)
		if err != nil {
			return err
		}
		defer extractLock.Release(ctx)

		if _, err := r.extractor.ExtractAll(ctx); err != nil {
			return err
		}
		result, err = r.feeder.MergeAll(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			metrics.LockContentionTotal.WithLabelValues(lockFeed).Inc()
			metrics.FeedRunsTotal.WithLabelValues("skipped").Inc()
		} else {
			metrics.FeedRunsTotal.WithLabelValues("failed").Inc()
		}
		return nil, err
	}

	metrics.FeedRunDuration.Observe(time.Since(start).Seconds())
	metrics.FeedRunsTotal.WithLabelValues("completed").Inc()
	metrics.FedRowsTotal.WithLabelValues("tenders").Add(float64(result.Tenders.Fed))
	metrics.FedRowsTotal.WithLabelValues("awards").Add(float64(result.Awards.Fed))
	metrics.FedRowsTotal.WithLabelValues("organizations").Add(float64(result.Organizations.Fed))
	return result, nil
}

// Start runs the periodic feed loop until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("Feed scheduler disabled")
		return
	}

	r.logger.Infof("Starting feed scheduler with interval %s", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Feed scheduler stopped")
			return
		case <-ticker.C:
			if _, err := r.FeedAll(ctx); err != nil {
				if errors.Is(err, redis.ErrLockNotAcquired) {
					r.logger.WithContext(ctx).Debug("Skipping feed run, lock held elsewhere")
					continue
				}
				r.logger.WithContext(ctx).WithError(err).Error("Scheduled feed run failed")
			}
		}
	}
}
