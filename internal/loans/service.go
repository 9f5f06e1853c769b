package loans

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/trustlend-backend/internal/trust"
	"github.com/angelmondragon/trustlend-backend/pkg/db/models"
	"github.com/angelmondragon/trustlend-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
	"github.com/angelmondragon/trustlend-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type blockChecker interface {
	IsBlocked(ctx context.Context, userID uuid.UUID) (bool, error)
}

type limitsReader interface {
	ComputeLimits(ctx context.Context, userID uuid.UUID) (*trust.LimitsView, error)
}

type fraudChecker interface {
	RunFraudCheck(ctx context.Context, userID uuid.UUID, requested *decimal.Decimal) (*models.FraudAlert, error)
}

type ledger interface {
	AppendInTx(ctx context.Context, tx *gorm.DB, input trust.AppendInput) (*trust.AppendResult, error)
	Committed(ctx context.Context, result *trust.AppendResult)
}

// Service opens loan requests behind the trust and fraud guards.
type Service interface {
	RequestLoan(ctx context.Context, input RequestInput) (*RequestResult, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Loan, error)
}

// RequestInput is a borrower's loan request. LenderID is set when the request
// targets a specific lender.
type RequestInput struct {
	BorrowerID uuid.UUID
	LenderID   *uuid.UUID
	Amount     decimal.Decimal
	Purpose    string
	DueDate    *time.Time
}

// RequestResult carries the created loan together with the guard outcomes.
type RequestResult struct {
	Loan   *models.Loan
	Limits *trust.LimitsView
	// Alert is the non-blocking fraud alert raised for the request, if any.
	Alert *models.FraudAlert
}

type service struct {
	tx        txRunner
	repo      *Repository
	blacklist blockChecker
	limits    limitsReader
	fraud     fraudChecker
	ledger    ledger
	now       func() time.Time
	logg      *logger.Logger
	metrics   *metrics.EngineMetrics
}

// Options wires the loans service.
type Options struct {
	Tx        txRunner
	Repo      *Repository
	Blacklist blockChecker
	Limits    limitsReader
	Fraud     fraudChecker
	Ledger    ledger
	Now       func() time.Time
	Logger    *logger.Logger
	Metrics   *metrics.EngineMetrics
}

// NewService wires a loans service.
func NewService(opts Options) (Service, error) {
	switch {
	case opts.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case opts.Repo == nil:
		return nil, fmt.Errorf("loans repository required")
	case opts.Blacklist == nil:
		return nil, fmt.Errorf("blacklist checker required")
	case opts.Limits == nil:
		return nil, fmt.Errorf("limits reader required")
	case opts.Fraud == nil:
		return nil, fmt.Errorf("fraud checker required")
	case opts.Ledger == nil:
		return nil, fmt.Errorf("trust ledger required")
	case opts.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &service{
		tx:        opts.Tx,
		repo:      opts.Repo,
		blacklist: opts.Blacklist,
		limits:    opts.Limits,
		fraud:     opts.Fraud,
		ledger:    opts.Ledger,
		now:       opts.Now,
		logg:      opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

func (s *service) RequestLoan(ctx context.Context, input RequestInput) (*RequestResult, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, input.BorrowerID.String())

	blocked, err := s.blacklist.IsBlocked(ctx, input.BorrowerID)
	if err != nil {
		return nil, err
	}
	if blocked {
		s.metrics.IncLoanDecision("blocked")
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "borrower is blacklisted")
	}

	view, err := s.limits.ComputeLimits(ctx, input.BorrowerID)
	if err != nil {
		return nil, err
	}
	if input.Amount.GreaterThan(view.MaxAmount) {
		s.metrics.IncLoanDecision("limit")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("amount exceeds %s tier limit of %s", view.Tier, view.MaxAmount.StringFixed(2)))
	}
	active, err := s.repo.CountActiveAsBorrower(ctx, input.BorrowerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count active loans")
	}
	if active >= int64(view.MaxActiveLoans) {
		s.metrics.IncLoanDecision("limit")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("borrower already has %d active loans (limit %d)", active, view.MaxActiveLoans))
	}

	amount := input.Amount
	alert, err := s.fraud.RunFraudCheck(ctx, input.BorrowerID, &amount)
	if err != nil {
		return nil, err
	}
	if alert != nil && alert.Severity == enums.FraudSeverityCritical {
		s.metrics.IncLoanDecision("fraud")
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "loan request blocked by fraud checks").
			WithDetails(map[string]any{"alert_id": alert.ID.String(), "red_flags": []string(alert.RedFlags)})
	}

	loan := &models.Loan{
		BorrowerID: input.BorrowerID,
		LenderID:   input.LenderID,
		Amount:     input.Amount,
		Status:     enums.LoanStatusRequested,
		Purpose:    strings.TrimSpace(input.Purpose),
		DueDate:    input.DueDate,
	}
	var appended *trust.AppendResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, loan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create loan")
		}
		loanID := loan.ID
		amount := loan.Amount
		result, err := s.ledger.AppendInTx(ctx, tx, trust.AppendInput{
			UserID:        input.BorrowerID,
			Kind:          enums.TrustEventLoanCreated,
			RelatedLoanID: &loanID,
			Metadata:      &trust.EventMetadata{Amount: &amount},
		})
		appended = result
		return err
	})
	if err != nil {
		return nil, err
	}
	s.ledger.Committed(ctx, appended)
	s.metrics.IncLoanDecision("allowed")

	fields := map[string]any{"loan_id": loan.ID.String(), "amount": loan.Amount.String(), "tier": view.Tier}
	if alert != nil {
		fields["fraud_alert_id"] = alert.ID.String()
		fields["fraud_severity"] = alert.Severity
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "loan requested")
	return &RequestResult{Loan: loan, Limits: view, Alert: alert}, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Loan, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	loans, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list loans")
	}
	return loans, nil
}

func (s *service) validate(input RequestInput) error {
	if input.BorrowerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "borrower id is required")
	}
	if input.LenderID != nil && *input.LenderID == input.BorrowerID {
		return pkgerrors.New(pkgerrors.CodeValidation, "borrower cannot lend to themselves")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.DueDate != nil && !input.DueDate.After(s.now()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "due date must be in the future")
	}
	return nil
}
