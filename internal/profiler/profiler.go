// Package profiler folds a user's loans, repayments and disputes into the
// activity snapshot the fraud detector scores.
package profiler

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
)

// Snapshot is a derived view of a user's activity. It is never persisted.
type Snapshot struct {
	UserID              uuid.UUID       `json:"user_id"`
	DisplayName         string          `json:"display_name"`
	Email               string          `json:"email"`
	AccountAgeDays      int             `json:"account_age_days"`
	TrustScore          int             `json:"trust_score"`
	LoansRequested      int             `json:"loans_requested"`
	LoansLast24h        int             `json:"loans_last_24h"`
	LoansLast7d         int             `json:"loans_last_7d"`
	AverageLoanAmount   decimal.Decimal `json:"average_loan_amount"`
	MaxLoanAmount       decimal.Decimal `json:"max_loan_amount"`
	TotalDisputes       int             `json:"total_disputes"`
	TotalConfirmations  int             `json:"total_confirmations"`
	RepaymentsReceived  int             `json:"repayments_received"`
	ConfirmedRepayments int             `json:"confirmed_repayments"`
	// LoanPartners holds counterparties in both directions, sorted.
	LoanPartners []uuid.UUID `json:"loan_partners"`
	// LentTo holds borrowers of loans this user funded, sorted.
	LentTo []uuid.UUID `json:"lent_to"`
	// BorrowedFrom holds lenders that funded this user, sorted.
	BorrowedFrom []uuid.UUID `json:"borrowed_from"`
}

// UserReader loads the subject user.
type UserReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RecordReader loads the raw records a snapshot folds over.
type RecordReader interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Loan, error)
	ListRepaymentsForUser(ctx context.Context, userID uuid.UUID) ([]models.Repayment, error)
	ListDisputesForUser(ctx context.Context, userID uuid.UUID) ([]models.Dispute, error)
}

// Profiler builds snapshots on demand.
type Profiler struct {
	users   UserReader
	records RecordReader
	now     func() time.Time
}

// New constructs a profiler. A nil clock defaults to time.Now.
func New(users UserReader, records RecordReader, now func() time.Time) (*Profiler, error) {
	if users == nil {
		return nil, errors.New("user reader required")
	}
	if records == nil {
		return nil, errors.New("record reader required")
	}
	if now == nil {
		now = time.Now
	}
	return &Profiler{users: users, records: records, now: now}, nil
}

// Profile builds a fresh snapshot for userID. A missing user yields CodeNotFound.
func (p *Profiler) Profile(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	user, err := p.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	loans, err := p.records.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load loans")
	}
	repayments, err := p.records.ListRepaymentsForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load repayments")
	}
	disputes, err := p.records.ListDisputesForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load disputes")
	}
	return Build(p.now(), user, loans, repayments, disputes), nil
}

// Build folds the records into a snapshot as of now.
func Build(now time.Time, user *models.User, loans []models.Loan, repayments []models.Repayment, disputes []models.Dispute) *Snapshot {
	snap := &Snapshot{
		UserID:            user.ID,
		DisplayName:       user.DisplayName,
		Email:             user.Email,
		AccountAgeDays:    wholeDays(now.Sub(user.CreatedAt)),
		TrustScore:        user.TrustScore,
		AverageLoanAmount: decimal.Zero,
		MaxLoanAmount:     decimal.Zero,
	}

	partners := idSet{}
	lentTo := idSet{}
	borrowedFrom := idSet{}
	total := decimal.Zero
	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	for _, loan := range loans {
		if loan.BorrowerID == user.ID {
			snap.LoansRequested++
			total = total.Add(loan.Amount)
			if loan.Amount.GreaterThan(snap.MaxLoanAmount) {
				snap.MaxLoanAmount = loan.Amount
			}
			if !loan.CreatedAt.Before(dayAgo) {
				snap.LoansLast24h++
			}
			if !loan.CreatedAt.Before(weekAgo) {
				snap.LoansLast7d++
			}
			if loan.LenderID != nil && *loan.LenderID != user.ID {
				partners.add(*loan.LenderID)
				borrowedFrom.add(*loan.LenderID)
			}
			continue
		}
		if loan.LenderID != nil && *loan.LenderID == user.ID {
			partners.add(loan.BorrowerID)
			lentTo.add(loan.BorrowerID)
		}
	}
	if snap.LoansRequested > 0 {
		snap.AverageLoanAmount = total.Div(decimal.NewFromInt(int64(snap.LoansRequested)))
	}

	disputed := idSet{}
	for _, r := range repayments {
		switch r.Status {
		case enums.RepaymentStatusConfirmed:
			snap.TotalConfirmations++
		case enums.RepaymentStatusDisputed:
			disputed.add(r.ID)
		}
		if r.PayeeID == user.ID {
			snap.RepaymentsReceived++
			if r.Status == enums.RepaymentStatusConfirmed {
				snap.ConfirmedRepayments++
			}
		}
	}
	// A thread about an already disputed repayment counts once.
	for _, d := range disputes {
		if d.RepaymentID != nil {
			disputed.add(*d.RepaymentID)
			continue
		}
		disputed.add(d.ID)
	}
	snap.TotalDisputes = len(disputed)

	snap.LoanPartners = partners.sorted()
	snap.LentTo = lentTo.sorted()
	snap.BorrowedFrom = borrowedFrom.sorted()
	return snap
}

func wholeDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

type idSet map[uuid.UUID]struct{}

func (s idSet) add(id uuid.UUID) { s[id] = struct{}{} }

func (s idSet) sorted() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
