package cron

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
)

type sliceUserPager struct {
	ids   []uuid.UUID
	calls int
}

func (p *sliceUserPager) ListIDsPage(_ context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	p.calls++
	start := 0
	if after != uuid.Nil {
		for i, id := range p.ids {
			if id == after {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(p.ids) {
		end = len(p.ids)
	}
	return p.ids[start:end], nil
}

func newPager(n int) *sliceUserPager {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return &sliceUserPager{ids: ids}
}

type scriptedFraud struct {
	outcomes map[uuid.UUID]func() (*models.FraudAlert, error)
	checked  []uuid.UUID
}

func (f *scriptedFraud) RunFraudCheck(_ context.Context, userID uuid.UUID, requested *decimal.Decimal) (*models.FraudAlert, error) {
	f.checked = append(f.checked, userID)
	if requested != nil {
		return nil, errors.New("sweep must not pass a requested amount")
	}
	if outcome, ok := f.outcomes[userID]; ok {
		return outcome()
	}
	return nil, nil
}

func TestForEachUserPagesUntilShortPage(t *testing.T) {
	pager := newPager(5)
	var seen []uuid.UUID
	err := forEachUser(context.Background(), pager, 2, 0, func(_ context.Context, id uuid.UUID) {
		seen = append(seen, id)
	})
	require.NoError(t, err)
	assert.Equal(t, pager.ids, seen)
	assert.Equal(t, 3, pager.calls)
}

func TestForEachUserBoundsConcurrency(t *testing.T) {
	pager := newPager(7)
	var (
		mu       sync.Mutex
		seen     []uuid.UUID
		inFlight atomic.Int32
		peak     atomic.Int32
	)
	err := forEachUser(context.Background(), pager, 4, 2, func(_ context.Context, id uuid.UUID) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, pager.ids, seen)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 2, pager.calls)
}

func TestForEachUserStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pager := newPager(3)
	err := forEachUser(ctx, pager, 2, 1, func(context.Context, uuid.UUID) {
		t.Fatal("no user should be visited")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, pager.calls)
}

func TestFraudSweepToleratesMissingUsersAndCollectsFailures(t *testing.T) {
	pager := newPager(4)
	fraud := &scriptedFraud{outcomes: map[uuid.UUID]func() (*models.FraudAlert, error){
		pager.ids[0]: func() (*models.FraudAlert, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		},
		pager.ids[1]: func() (*models.FraudAlert, error) {
			return nil, errors.New("db down")
		},
		pager.ids[2]: func() (*models.FraudAlert, error) {
			return &models.FraudAlert{Severity: enums.FraudSeverityHigh}, nil
		},
	}}
	job, err := NewFraudSweepJob(FraudSweepJobParams{Logger: testLogger(), Users: pager, Fraud: fraud, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, "fraud-sweep", job.Name())

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, pager.ids, fraud.checked, "every user is checked despite failures")
}

func TestFraudSweepReportsFailedAutoBlock(t *testing.T) {
	pager := newPager(1)
	fraud := &scriptedFraud{outcomes: map[uuid.UUID]func() (*models.FraudAlert, error){
		pager.ids[0]: func() (*models.FraudAlert, error) {
			return &models.FraudAlert{Severity: enums.FraudSeverityCritical}, errors.New("lock timeout")
		},
	}}
	job, err := NewFraudSweepJob(FraudSweepJobParams{Logger: testLogger(), Users: pager, Fraud: fraud})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auto-block")
}

type countingDeduper struct {
	removed map[uuid.UUID]int
	failFor uuid.UUID
	calls   int
}

func (d *countingDeduper) DedupeRegistrationBonus(_ context.Context, userID uuid.UUID) (int, error) {
	d.calls++
	if userID == d.failFor {
		return 0, errors.New("conflict")
	}
	return d.removed[userID], nil
}

func TestRegistrationDedupeVisitsEveryUser(t *testing.T) {
	pager := newPager(3)
	deduper := &countingDeduper{
		removed: map[uuid.UUID]int{pager.ids[0]: 2},
		failFor: pager.ids[1],
	}
	job, err := NewRegistrationDedupeJob(RegistrationDedupeJobParams{Logger: testLogger(), Users: pager, Ledger: deduper, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, "registration-bonus-dedupe", job.Name())

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")
	assert.Equal(t, 3, deduper.calls)
}

func TestJobConstructorsValidate(t *testing.T) {
	_, err := NewFraudSweepJob(FraudSweepJobParams{Logger: testLogger(), Users: newPager(0)})
	assert.EqualError(t, err, "fraud checker required")
	_, err = NewRegistrationDedupeJob(RegistrationDedupeJobParams{Logger: testLogger(), Ledger: &countingDeduper{}})
	assert.EqualError(t, err, "user pager required")
}
