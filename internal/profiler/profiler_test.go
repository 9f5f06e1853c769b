package profiler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
)

type fakeUsers struct {
	users map[uuid.UUID]*models.User
}

func (f *fakeUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeRecords struct {
	loans      []models.Loan
	repayments []models.Repayment
	disputes   []models.Dispute
}

func (f *fakeRecords) ListForUser(_ context.Context, userID uuid.UUID) ([]models.Loan, error) {
	var out []models.Loan
	for _, l := range f.loans {
		if l.BorrowerID == userID || (l.LenderID != nil && *l.LenderID == userID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRecords) ListRepaymentsForUser(_ context.Context, userID uuid.UUID) ([]models.Repayment, error) {
	var out []models.Repayment
	for _, r := range f.repayments {
		if r.PayerID == userID || r.PayeeID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecords) ListDisputesForUser(_ context.Context, userID uuid.UUID) ([]models.Dispute, error) {
	var out []models.Dispute
	for _, d := range f.disputes {
		if d.RaisedByID == userID || d.AgainstID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestProfile_FoldsRecords(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	subject := &models.User{ID: uuid.New(), DisplayName: "Dana", Email: "dana@x.io", TrustScore: 72, CreatedAt: now.Add(-30*24*time.Hour - time.Hour)}
	lender := uuid.New()
	borrower := uuid.New()

	repaymentID := uuid.New()
	records := &fakeRecords{
		loans: []models.Loan{
			{ID: uuid.New(), BorrowerID: subject.ID, LenderID: ptr(lender), Amount: decimal.NewFromInt(100), CreatedAt: now.Add(-2 * time.Hour)},
			{ID: uuid.New(), BorrowerID: subject.ID, Amount: decimal.NewFromInt(300), CreatedAt: now.Add(-3 * 24 * time.Hour)},
			{ID: uuid.New(), BorrowerID: subject.ID, LenderID: ptr(lender), Amount: decimal.NewFromInt(200), CreatedAt: now.Add(-20 * 24 * time.Hour)},
			{ID: uuid.New(), BorrowerID: borrower, LenderID: ptr(subject.ID), Amount: decimal.NewFromInt(999), CreatedAt: now.Add(-time.Hour)},
		},
		repayments: []models.Repayment{
			{ID: uuid.New(), PayerID: subject.ID, PayeeID: lender, Status: enums.RepaymentStatusConfirmed},
			{ID: repaymentID, PayerID: borrower, PayeeID: subject.ID, Status: enums.RepaymentStatusDisputed},
			{ID: uuid.New(), PayerID: borrower, PayeeID: subject.ID, Status: enums.RepaymentStatusConfirmed},
		},
		disputes: []models.Dispute{
			{ID: uuid.New(), RepaymentID: &repaymentID, RaisedByID: subject.ID, AgainstID: borrower},
			{ID: uuid.New(), RaisedByID: lender, AgainstID: subject.ID},
		},
	}

	p, err := New(&fakeUsers{users: map[uuid.UUID]*models.User{subject.ID: subject}}, records, func() time.Time { return now })
	require.NoError(t, err)

	snap, err := p.Profile(context.Background(), subject.ID)
	require.NoError(t, err)

	assert.Equal(t, 30, snap.AccountAgeDays)
	assert.Equal(t, 72, snap.TrustScore)
	assert.Equal(t, 3, snap.LoansRequested)
	assert.Equal(t, 1, snap.LoansLast24h)
	assert.Equal(t, 2, snap.LoansLast7d)
	assert.True(t, snap.AverageLoanAmount.Equal(decimal.NewFromInt(200)), snap.AverageLoanAmount.String())
	assert.True(t, snap.MaxLoanAmount.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, 2, snap.TotalDisputes)
	assert.Equal(t, 2, snap.TotalConfirmations)
	assert.Equal(t, 2, snap.RepaymentsReceived)
	assert.Equal(t, 1, snap.ConfirmedRepayments)
	assert.ElementsMatch(t, []uuid.UUID{lender, borrower}, snap.LoanPartners)
	assert.Equal(t, []uuid.UUID{borrower}, snap.LentTo)
	assert.Equal(t, []uuid.UUID{lender}, snap.BorrowedFrom)
}

func TestProfile_EmptyHistory(t *testing.T) {
	now := time.Now()
	user := &models.User{ID: uuid.New(), CreatedAt: now.Add(-time.Hour)}
	p, err := New(&fakeUsers{users: map[uuid.UUID]*models.User{user.ID: user}}, &fakeRecords{}, func() time.Time { return now })
	require.NoError(t, err)

	snap, err := p.Profile(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.AccountAgeDays)
	assert.True(t, snap.AverageLoanAmount.IsZero())
	assert.True(t, snap.MaxLoanAmount.IsZero())
	assert.Empty(t, snap.LoanPartners)
}

func TestProfile_IsIdempotent(t *testing.T) {
	now := time.Now()
	user := &models.User{ID: uuid.New(), CreatedAt: now.Add(-48 * time.Hour)}
	records := &fakeRecords{loans: []models.Loan{
		{ID: uuid.New(), BorrowerID: user.ID, LenderID: ptr(uuid.New()), Amount: decimal.NewFromInt(40), CreatedAt: now},
		{ID: uuid.New(), BorrowerID: user.ID, LenderID: ptr(uuid.New()), Amount: decimal.NewFromInt(60), CreatedAt: now},
	}}
	p, err := New(&fakeUsers{users: map[uuid.UUID]*models.User{user.ID: user}}, records, func() time.Time { return now })
	require.NoError(t, err)

	first, err := p.Profile(context.Background(), user.ID)
	require.NoError(t, err)
	second, err := p.Profile(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProfile_MissingUser(t *testing.T) {
	p, err := New(&fakeUsers{}, &fakeRecords{}, nil)
	require.NoError(t, err)

	_, err = p.Profile(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
