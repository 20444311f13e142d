package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/internal/billing"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
)

const (
	SubscriptionExpiryJobName = "subscription-expiry"

	defaultGracePeriod = 72 * time.Hour
	expiryBatchSize    = 100
)

type SubscriptionExpiryJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Billing     billing.Repository
	GracePeriod time.Duration
	Now         func() time.Time
}

// SubscriptionExpiryJob moves ACTIVE subscriptions whose period has ended to
// PAST_DUE and stamps the grace deadline.
type SubscriptionExpiryJob struct {
	logg  *logger.Logger
	db    txRunner
	repo  billing.Repository
	grace time.Duration
	now   func() time.Time
}

func NewSubscriptionExpiryJob(params SubscriptionExpiryJobParams) (*SubscriptionExpiryJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	grace := params.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &SubscriptionExpiryJob{logg: params.Logger, db: params.DB, repo: params.Billing, grace: grace, now: now}, nil
}

func (j *SubscriptionExpiryJob) Name() string { return SubscriptionExpiryJobName }

func (j *SubscriptionExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	expired := 0
	for {
		batch, err := j.repo.ListExpiredActive(ctx, now, expiryBatchSize)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list expired subscriptions: %w", err))
		}
		if len(batch) == 0 {
			break
		}
		progressed := 0
		for _, candidate := range batch {
			if err := j.expire(ctx, candidate.ID, now); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("expire subscription %s: %w", candidate.ID, err))
				continue
			}
			progressed++
		}
		expired += progressed
		if len(batch) < expiryBatchSize || progressed == 0 {
			break
		}
	}
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", expired), "subscriptions moved to past due")
	}
	return errs
}

func (j *SubscriptionExpiryJob) expire(ctx context.Context, id uuid.UUID, now time.Time) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.repo.WithTx(tx)
		sub, err := repo.FindSubscriptionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sub.Status != enums.SubscriptionStatusActive || !sub.CurrentPeriodEnd.Before(now) {
			return nil
		}
		graceEnd := sub.CurrentPeriodEnd.Add(j.grace)
		sub.Status = enums.SubscriptionStatusPastDue
		sub.GracePeriodEndsAt = &graceEnd
		sub.UpdatedAt = now
		return repo.UpdateSubscription(ctx, sub)
	})
}
