package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/trustlend-backend/pkg/logger"
)

// RegistrationDedupeJobParams configure the registration bonus cleanup.
type RegistrationDedupeJobParams struct {
	Logger   *logger.Logger
	Users    userPager
	Ledger   bonusDeduper
	PageSize int
	Workers  int
}

type bonusDeduper interface {
	DedupeRegistrationBonus(ctx context.Context, userID uuid.UUID) (int, error)
}

// NewRegistrationDedupeJob builds the job that removes duplicate registration bonuses.
func NewRegistrationDedupeJob(params RegistrationDedupeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user pager required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("trust ledger required")
	}
	return &registrationDedupeJob{
		logg:     params.Logger,
		users:    params.Users,
		ledger:   params.Ledger,
		pageSize: params.PageSize,
		workers:  params.Workers,
	}, nil
}

type registrationDedupeJob struct {
	logg     *logger.Logger
	users    userPager
	ledger   bonusDeduper
	pageSize int
	workers  int
}

func (j *registrationDedupeJob) Name() string { return "registration-bonus-dedupe" }

func (j *registrationDedupeJob) Run(ctx context.Context) error {
	var (
		mu       sync.Mutex
		errs     error
		removed  int
		affected int
	)
	walkErr := forEachUser(ctx, j.users, j.pageSize, j.workers, func(ctx context.Context, id uuid.UUID) {
		n, err := j.ledger.DedupeRegistrationBonus(ctx, id)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("dedupe %s: %w", id, err))
			return
		}
		if n > 0 {
			removed += n
			affected++
		}
	})
	errs = multierr.Append(errs, walkErr)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"users_affected": affected,
		"events_removed": removed,
	})
	j.logg.Info(logCtx, "registration bonus dedupe complete")
	return errs
}
