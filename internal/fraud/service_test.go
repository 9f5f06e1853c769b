package fraud

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/trustlend-backend/internal/profiler"
	"github.com/angelmondragon/trustlend-backend/pkg/db/dbtest"
	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
	"github.com/angelmondragon/trustlend-backend/pkg/pagination"
)

type fakeProfiler struct {
	snaps    map[uuid.UUID]*profiler.Snapshot
	profiled []uuid.UUID
}

func (f *fakeProfiler) Profile(_ context.Context, id uuid.UUID) (*profiler.Snapshot, error) {
	f.profiled = append(f.profiled, id)
	if s, ok := f.snaps[id]; ok {
		return s, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
}

type fakeRepo struct {
	created []*models.FraudAlert
}

func (f *fakeRepo) Create(_ context.Context, alert *models.FraudAlert) error {
	alert.ID = uuid.New()
	f.created = append(f.created, alert)
	return nil
}

func (f *fakeRepo) ListByUser(context.Context, uuid.UUID, *pagination.Cursor, int) ([]models.FraudAlert, error) {
	return nil, nil
}

type mockBlocker struct {
	mock.Mock
}

func (m *mockBlocker) BlockAutomatically(ctx context.Context, userID uuid.UUID, alert *models.FraudAlert) error {
	args := m.Called(ctx, userID, alert)
	return args.Error(0)
}

func newTestService(t *testing.T, prof *fakeProfiler, repo Repository, blocker Blocker) Service {
	t.Helper()
	svc, err := NewService(Options{
		Detector:      newTestDetector(),
		Profiler:      prof,
		Repo:          repo,
		Blocker:       blocker,
		MaxPopulation: 200,
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func TestRunFraudCheck_NoAlert(t *testing.T) {
	snap := established()
	prof := &fakeProfiler{snaps: map[uuid.UUID]*profiler.Snapshot{snap.UserID: snap}}
	repo := &fakeRepo{}
	blocker := &mockBlocker{}
	svc := newTestService(t, prof, repo, blocker)

	alert, err := svc.RunFraudCheck(context.Background(), snap.UserID, nil)
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Empty(t, repo.created)
	blocker.AssertNotCalled(t, "BlockAutomatically", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunFraudCheck_PersistsReviewedAlert(t *testing.T) {
	snap := established()
	snap.AccountAgeDays = 1
	prof := &fakeProfiler{snaps: map[uuid.UUID]*profiler.Snapshot{snap.UserID: snap}}
	repo := &fakeRepo{}
	blocker := &mockBlocker{}
	svc := newTestService(t, prof, repo, blocker)

	requested := decimal.NewFromInt(150)
	alert, err := svc.RunFraudCheck(context.Background(), snap.UserID, &requested)
	require.NoError(t, err)
	require.NotNil(t, alert)
	require.Len(t, repo.created, 1)
	assert.Equal(t, enums.FraudSeverityLow, alert.Severity)
	assert.Equal(t, enums.FraudActionReviewed, alert.ActionTaken)
	assert.Equal(t, []string{FlagNewAccount}, []string(alert.RedFlags))
	require.NotNil(t, alert.RequestedAmount)
	assert.Equal(t, "150", *alert.RequestedAmount)
	blocker.AssertNotCalled(t, "BlockAutomatically", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunFraudCheck_CriticalBlocks(t *testing.T) {
	snap := established()
	snap.AccountAgeDays = 1
	snap.LoansLast24h = 6
	snap.TotalDisputes = 3
	prof := &fakeProfiler{snaps: map[uuid.UUID]*profiler.Snapshot{snap.UserID: snap}}
	repo := &fakeRepo{}
	blocker := &mockBlocker{}
	blocker.On("BlockAutomatically", mock.Anything, snap.UserID, mock.MatchedBy(func(a *models.FraudAlert) bool {
		return a.Severity == enums.FraudSeverityCritical
	})).Return(nil).Once()
	svc := newTestService(t, prof, repo, blocker)

	requested := decimal.NewFromInt(5000)
	alert, err := svc.RunFraudCheck(context.Background(), snap.UserID, &requested)
	require.NoError(t, err)
	assert.Equal(t, enums.FraudActionBlocked, alert.ActionTaken)
	blocker.AssertExpectations(t)
}

func TestRunFraudCheck_BlockFailureSurfaces(t *testing.T) {
	snap := established()
	snap.AccountAgeDays = 1
	snap.LoansLast24h = 6
	snap.TotalDisputes = 3
	prof := &fakeProfiler{snaps: map[uuid.UUID]*profiler.Snapshot{snap.UserID: snap}}
	blocker := &mockBlocker{}
	blocker.On("BlockAutomatically", mock.Anything, snap.UserID, mock.Anything).Return(errors.New("db down"))
	svc := newTestService(t, prof, &fakeRepo{}, blocker)

	requested := decimal.NewFromInt(5000)
	alert, err := svc.RunFraudCheck(context.Background(), snap.UserID, &requested)
	require.Error(t, err)
	assert.NotNil(t, alert, "the alert stays persisted for audit")
}

func TestRunFraudCheck_BuildsLendingNeighbourhood(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	missing := uuid.New()
	prof := &fakeProfiler{snaps: map[uuid.UUID]*profiler.Snapshot{
		a: {UserID: a, AccountAgeDays: 100, TrustScore: 90, LentTo: []uuid.UUID{b, missing}},
		b: {UserID: b, AccountAgeDays: 100, TrustScore: 90, LentTo: []uuid.UUID{c}},
		c: {UserID: c, AccountAgeDays: 100, TrustScore: 90, LentTo: []uuid.UUID{a}},
	}}
	repo := &fakeRepo{}
	svc := newTestService(t, prof, repo, &mockBlocker{})

	alert, err := svc.RunFraudCheck(context.Background(), a, nil)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, enums.FraudAlertCircularLending, alert.AlertType)
	assert.ElementsMatch(t, []uuid.UUID{a, b, missing, c}, prof.profiled)
}

func TestRunFraudCheck_Errors(t *testing.T) {
	svc := newTestService(t, &fakeProfiler{}, &fakeRepo{}, &mockBlocker{})

	_, err := svc.RunFraudCheck(context.Background(), uuid.New(), nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	negative := decimal.NewFromInt(-5)
	_, err = svc.RunFraudCheck(context.Background(), uuid.New(), &negative)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListAlertsPaginatesNewestFirst(t *testing.T) {
	conn := dbtest.Open(t)
	user := &models.User{Email: "a@x.io", PasswordHash: "h", DisplayName: "A", TrustScore: 50}
	require.NoError(t, conn.Create(user).Error)

	repo := NewRepository(conn)
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(context.Background(), &models.FraudAlert{
			UserID:         user.ID,
			AlertType:      enums.FraudAlertVelocity,
			Severity:       enums.FraudSeverityLow,
			SuspicionScore: 20 + i,
			RedFlags:       []string{FlagVelocity},
			ActionTaken:    enums.FraudActionReviewed,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}

	svc := newTestService(t, &fakeProfiler{}, repo, &mockBlocker{})
	first, err := svc.ListAlerts(context.Background(), user.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Alerts, 2)
	require.NotEmpty(t, first.NextCursor)
	assert.Equal(t, 22, first.Alerts[0].SuspicionScore)

	second, err := svc.ListAlerts(context.Background(), user.ID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Alerts, 1)
	assert.Empty(t, second.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, a := range append(first.Alerts, second.Alerts...) {
		assert.False(t, seen[a.ID])
		seen[a.ID] = true
	}
}
