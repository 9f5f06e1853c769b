package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
)

// FraudSweepJobParams configure the periodic fraud sweep.
type FraudSweepJobParams struct {
	Logger   *logger.Logger
	Users    userPager
	Fraud    fraudChecker
	PageSize int
	// Workers bounds concurrent checks within a page. Zero runs them one by one.
	Workers int
}

type fraudChecker interface {
	RunFraudCheck(ctx context.Context, userID uuid.UUID, requested *decimal.Decimal) (*models.FraudAlert, error)
}

// NewFraudSweepJob builds the job that re-runs the fraud detector for every user.
func NewFraudSweepJob(params FraudSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user pager required")
	}
	if params.Fraud == nil {
		return nil, fmt.Errorf("fraud checker required")
	}
	return &fraudSweepJob{
		logg:     params.Logger,
		users:    params.Users,
		fraud:    params.Fraud,
		pageSize: params.PageSize,
		workers:  params.Workers,
	}, nil
}

type fraudSweepJob struct {
	logg     *logger.Logger
	users    userPager
	fraud    fraudChecker
	pageSize int
	workers  int
}

func (j *fraudSweepJob) Name() string { return "fraud-sweep" }

func (j *fraudSweepJob) Run(ctx context.Context) error {
	var (
		mu         sync.Mutex
		errs       error
		checked    int
		skipped    int
		bySeverity = map[string]int{}
	)
	walkErr := forEachUser(ctx, j.users, j.pageSize, j.workers, func(ctx context.Context, id uuid.UUID) {
		alert, err := j.fraud.RunFraudCheck(ctx, id, nil)
		mu.Lock()
		defer mu.Unlock()
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			skipped++
			return
		case err != nil && alert == nil:
			errs = multierr.Append(errs, fmt.Errorf("fraud check %s: %w", id, err))
			return
		case err != nil:
			// alert persisted but the automatic block failed
			errs = multierr.Append(errs, fmt.Errorf("auto-block %s: %w", id, err))
		}
		checked++
		if alert != nil {
			bySeverity[string(alert.Severity)]++
		}
	})
	errs = multierr.Append(errs, walkErr)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":  checked,
		"skipped":  skipped,
		"alerts":   bySeverity,
		"failures": len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "fraud sweep complete")
	return errs
}
